package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrObjectNotFound is returned by Get when no object exists under a key.
var ErrObjectNotFound = errors.New("object not found")

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutFile(ctx context.Context, key string, path string, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

func PutJSON(ctx context.Context, s ObjectStore, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// GetJSON decodes the object under key into v. A missing object yields
// ErrObjectNotFound.
func GetJSON(ctx context.Context, s ObjectStore, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
