package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rootwire/account-service/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrTokenNotFound = errors.New("token not found")
	ErrEmailTaken    = errors.New("email already taken")
)

// CredentialStore is the minimal persistence surface the lifecycle
// services depend on, kept narrow so they can be exercised against an
// in-memory database.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	UpdateAuthentication(ctx context.Context, id uuid.UUID, auth models.Authentication) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	MarkVerified(ctx context.Context, id uuid.UUID) error

	CreateToken(ctx context.Context, token *models.Token) error
	FindToken(ctx context.Context, value, kind string) (*models.Token, error)
	DeleteUserTokens(ctx context.Context, userID uuid.UUID, kind string) error
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

type GormRepo struct {
	DB *gorm.DB
}

var _ CredentialStore = (*GormRepo)(nil)

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
