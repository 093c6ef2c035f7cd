package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

const (
	StatusActive  = "ACTIVE"
	StatusBlocked = "BLOCKED"
	StatusDeleted = "DELETED"
)

const (
	TokenKindRefresh       = "refresh"
	TokenKindPasswordReset = "password_reset"
)

// Authentication is the per-user OTP challenge state. OneTimeCode and
// ExpireAt are set and cleared together; an empty OneTimeCode means no
// outstanding challenge. IsResetPassword is true only while a reset
// token is outstanding.
type Authentication struct {
	OneTimeCode     string     `json:"-"`
	ExpireAt        *time.Time `json:"-"`
	IsResetPassword bool       `json:"-"`
	IsExistUser     bool       `json:"-"`
}

type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"  json:"id"`
	Name           string         `gorm:"not null"              json:"name"`
	Email          string         `gorm:"uniqueIndex;not null"  json:"email"`
	PasswordHash   string         `gorm:"not null"              json:"-"`
	Role           string         `gorm:"not null"              json:"role"`
	Status         string         `gorm:"not null"              json:"status"`
	Verified       bool           `gorm:"default:false"         json:"verified"`
	Image          string         `json:"image,omitempty"`
	Authentication Authentication `gorm:"embedded;embeddedPrefix:auth_" json:"-"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Scrubbed returns a copy safe to cross the trust boundary: the
// password hash and the challenge state are zeroed.
func (u User) Scrubbed() User {
	u.PasswordHash = ""
	u.Authentication = Authentication{}
	return u
}

// Token is an issued credential row. Kind disambiguates refresh tokens
// from password-reset tokens so lookups can never cross-match.
type Token struct {
	ID        uint      `gorm:"primaryKey"               json:"id"`
	Value     string    `gorm:"uniqueIndex;not null"     json:"-"`
	Kind      string    `gorm:"index;not null"           json:"kind"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
