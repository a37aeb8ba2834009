package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/poseannotator/internal/models"
	"gorm.io/gorm"
)

type TokenRepo struct {
	db *gorm.DB
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db.GORM()}
}

func (r *TokenRepo) Create(ctx context.Context, token string) (*models.AccessToken, error) {
	t := &models.AccessToken{Token: token, IsActive: true}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}
	return t, nil
}

// IsActive reports whether token exists and has not been revoked.
func (r *TokenRepo) IsActive(ctx context.Context, token string) (bool, error) {
	var t models.AccessToken
	err := r.db.WithContext(ctx).
		Where("token = ? AND is_active = ?", token, true).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up token: %w", err)
	}
	return true, nil
}

// Revoke deactivates token, reporting whether an active token was found.
func (r *TokenRepo) Revoke(ctx context.Context, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AccessToken{}).
		Where("token = ? AND is_active = ?", token, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, fmt.Errorf("failed to revoke token: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
