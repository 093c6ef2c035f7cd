package otp

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// Generator produces fixed-length numeric one-time codes.
type Generator struct {
	Length int
}

func New(length int) *Generator {
	if length <= 0 {
		length = 6
	}
	return &Generator{Length: length}
}

var ten = big.NewInt(10)

func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// NewResetToken returns an opaque 64-character hex token for the
// post-OTP password-reset step.
func NewResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
