// Package storage provides the key/value backends behind the local cache.
//
// Values are opaque byte slices; the cache layer stores JSON arrays under
// "<table>_<userId>" keys and a few scalar bookkeeping keys next to them.
// Three backends are available: SQLite (default, goose-migrated), a
// directory of JSON files that can be watched for external writes, and an
// in-memory map used by tests and the "memory" storage option.
package storage

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys that cannot be stored by a backend.
var ErrInvalidKey = errors.New("invalid storage key")

// Storage is a flat key/value store. Get returns (nil, nil) for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
	Close() error
}
