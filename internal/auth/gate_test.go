package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]bool
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: map[string]bool{}}
}

func (m *memoryStore) Create(_ context.Context, token string) (*models.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.tokens[token] = true
	return &models.AccessToken{Token: token, IsActive: true}, nil
}

func (m *memoryStore) IsActive(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.tokens[token], nil
}

func TestGate_Issue(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	gate := NewGate(store, zap.NewNop())

	a, err := gate.Issue(ctx)
	require.NoError(t, err)
	b, err := gate.Issue(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	ok, err := gate.Validate(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGate_IssueStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("disk full")
	gate := NewGate(store, zap.NewNop())

	_, err := gate.Issue(context.Background())
	assert.ErrorIs(t, err, models.ErrStorageFailure)
}

func TestGate_Authorize(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	gate := NewGate(store, zap.NewNop())

	alice, err := gate.Issue(ctx)
	require.NoError(t, err)
	bob, err := gate.Issue(ctx)
	require.NoError(t, err)

	tests := []struct {
		name      string
		presented string
		owner     *string
		want      error
	}{
		{name: "anonymous on unowned", presented: "", owner: nil},
		{name: "anonymous on owned", presented: "", owner: &alice},
		{name: "invalid token", presented: "nope", owner: nil, want: models.ErrUnauthorized},
		{name: "invalid token on owned", presented: "nope", owner: &alice, want: models.ErrUnauthorized},
		{name: "owner", presented: alice, owner: &alice},
		{name: "valid on unowned", presented: bob, owner: nil},
		{name: "other owner", presented: bob, owner: &alice, want: models.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Authorize(ctx, tt.presented, tt.owner)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGate_CheckStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection reset")
	gate := NewGate(store, zap.NewNop())

	assert.ErrorIs(t, gate.Check(context.Background(), "anything"), models.ErrStorageFailure)
	assert.NoError(t, gate.Check(context.Background(), ""))
}
