package core

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned when a storage key is blank.
var ErrEmptyKey = errors.New("storage key must not be empty")

// Storage persists state bags. Read returns only the keys that exist; values
// are decoded into generic JSON shapes (map[string]any, []any, float64...).
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]any, error)
	Write(ctx context.Context, changes map[string]any) error
	Delete(ctx context.Context, keys []string) error
}
