// Package auth issues and checks the opaque tokens that scope annotation
// sessions to a user.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/kdimtricp/poseannotator/internal/models"
	"go.uber.org/zap"
)

const tokenBytes = 32

// TokenStore persists issued tokens.
type TokenStore interface {
	Create(ctx context.Context, token string) (*models.AccessToken, error)
	IsActive(ctx context.Context, token string) (bool, error)
}

type Gate struct {
	store  TokenStore
	logger *zap.Logger
}

func NewGate(store TokenStore, logger *zap.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Issue mints a new active token.
func (g *Gate) Issue(ctx context.Context) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if _, err := g.store.Create(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
	}
	g.logger.Info("issued access token")
	return token, nil
}

func (g *Gate) Validate(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := g.store.IsActive(ctx, token)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
	}
	return ok, nil
}

// Check rejects a presented token that is not active. An empty token is
// anonymous and always passes.
func (g *Gate) Check(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	ok, err := g.Validate(ctx, presented)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrUnauthorized
	}
	return nil
}

// Authorize is Check plus ownership: a valid token that differs from the
// session's recorded owner is forbidden.
func (g *Gate) Authorize(ctx context.Context, presented string, owner *string) error {
	if presented == "" {
		return nil
	}
	if err := g.Check(ctx, presented); err != nil {
		return err
	}
	if owner != nil && *owner != presented {
		return models.ErrForbidden
	}
	return nil
}
