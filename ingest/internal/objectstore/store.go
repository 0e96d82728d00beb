// Package objectstore provides append-only object storage for partition files.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store appends bytes to named objects, creating them on first write.
// Implementations must be safe for concurrent use; concurrent appends to the
// same key must never lose data.
type Store interface {
	Append(ctx context.Context, key string, data []byte, contentType string) error
	Close() error
}

// Reader is implemented by backends that can return an object's current contents.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// ErrNotFound is returned by Get for keys that were never written.
var ErrNotFound = errors.New("object not found")

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendBbolt  = "bbolt"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Path is the root directory for the file backend and the database file for bbolt.
	Path string
	// RedisURL and RedisPrefix configure the redis backend.
	RedisURL    string
	RedisPrefix string
}

// Open constructs the backend named in cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return NewFileStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case BackendBbolt:
		return NewBoltStore(cfg.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("object key is required")
	}
	return nil
}
