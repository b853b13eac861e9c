package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/slskd/slskgo/pkg/errdefs"
)

// Key composes a cache key from its parts. Callers use the same parts
// on both sides of a rendezvous so issue and validation agree.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

// Cache is a time-bounded map of token values. Entries expire at their
// TTL without any sweeper goroutine; an expired entry is gone the
// moment a reader asks for it. Take removes atomically with the read,
// which is what makes one-shot tokens one-shot under concurrency.
type Cache struct {
	db *buntdb.DB
}

// NewCache opens an in-memory cache.
func NewCache() (*Cache, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Set stores value under key for ttl. A non-positive ttl stores the
// value without expiry. An existing entry is replaced and its clock
// reset.
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	err := c.db.Update(func(tx *buntdb.Tx) error {
		opts := &buntdb.SetOptions{}
		if ttl > 0 {
			opts.Expires = true
			opts.TTL = ttl
		}
		_, _, err := tx.Set(key, value, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set token %s: %w", key, err)
	}
	return nil
}

// Get returns the live value under key. Missing or expired entries
// yield a not-found error. The entry remains cached.
func (c *Cache) Get(key string) (string, error) {
	var value string
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", errdefs.NotFoundf("token %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token %s: %w", key, err)
	}
	return value, nil
}

// Take returns the live value under key and removes it in the same
// transaction. Two concurrent Takes of one key cannot both succeed.
func (c *Cache) Take(key string) (string, error) {
	var value string
	err := c.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		if _, err := tx.Delete(key); err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", errdefs.NotFoundf("token %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to take token %s: %w", key, err)
	}
	return value, nil
}

// Remove deletes the entry under key if present. Removing an absent
// key is a no-op.
func (c *Cache) Remove(key string) error {
	err := c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove token %s: %w", key, err)
	}
	return nil
}

// Close releases the cache.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close token cache: %w", err)
	}
	return nil
}
