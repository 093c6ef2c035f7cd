package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rootwire/account-service/internal/models"
)

func (r *GormRepo) CreateToken(ctx context.Context, token *models.Token) error {
	return r.DB.WithContext(ctx).Create(token).Error
}

// FindToken looks a token up by value and kind. The kind filter keeps
// refresh and password-reset rows from ever satisfying each other's
// lookups. Expiry is left to the caller so it can pick the error.
func (r *GormRepo) FindToken(ctx context.Context, value, kind string) (*models.Token, error) {
	var token models.Token
	err := r.DB.WithContext(ctx).
		Where("value = ? AND kind = ?", value, kind).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *GormRepo) DeleteUserTokens(ctx context.Context, userID uuid.UUID, kind string) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Delete(&models.Token{}).Error
}

// DeleteExpiredTokens sweeps rows past their expiry, regardless of
// kind. Called periodically from the server's GC ticker.
func (r *GormRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	tx := r.DB.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.Token{})
	return tx.RowsAffected, tx.Error
}
