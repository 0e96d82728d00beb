package objectstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	objectsBucket      = "objects"
	contentTypesBucket = "content_types"
)

// BoltStore keeps objects in a single BoltDB file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bbolt store path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{objectsBucket, contentTypesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Append(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		objects := tx.Bucket([]byte(objectsBucket))
		if objects == nil {
			return fmt.Errorf("objects bucket is missing")
		}
		k := []byte(key)
		existing := objects.Get(k)
		if existing == nil && contentType != "" {
			types := tx.Bucket([]byte(contentTypesBucket))
			if types == nil {
				return fmt.Errorf("content_types bucket is missing")
			}
			if err := types.Put(k, []byte(contentType)); err != nil {
				return fmt.Errorf("put content type: %w", err)
			}
		}

		// existing is only valid for the life of the transaction
		buf := make([]byte, 0, len(existing)+len(data))
		buf = append(buf, existing...)
		buf = append(buf, data...)
		if err := objects.Put(k, buf); err != nil {
			return fmt.Errorf("put object: %w", err)
		}
		return nil
	})
}

func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	var (
		data []byte
		ct   string
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(objectsBucket)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		if t := tx.Bucket([]byte(contentTypesBucket)).Get([]byte(key)); t != nil {
			ct = string(t)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, ct, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
