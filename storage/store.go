package storage

import (
	"context"
	"errors"
)

var ErrNotInteger = errors.New("value is not an integer or out of range")

type Store interface {
	Set(ctx context.Context, key []byte, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...[]byte) (int, error)
	Keys(ctx context.Context, pattern string) ([][]byte, error)
	Incr(ctx context.Context, key []byte, delta int64) (int64, error)
	IncrFloat(ctx context.Context, key []byte, delta float64) (float64, error)
	Flush(ctx context.Context) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}

// Update describes a write to one key. Value is nil for deletions.
type Update struct {
	Key   []byte
	Value []byte
}
