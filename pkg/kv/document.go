package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// ErrCorrupt wraps a persisted value that no longer decodes.
var ErrCorrupt = errors.New("kv: value could not be decoded")

const defaultCacheSize = 10000

// Documents keeps one JSON document per session under "<prefix>:<session>".
// A bounded write-through cache stays authoritative for the process when the
// backing store rejects a write.
type Documents[T any] struct {
	store  Store
	prefix string
	cache  *lru.Cache
}

func NewDocuments[T any](store Store, prefix string, cacheSize int) (*Documents[T], error) {
	if store == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if prefix == "" {
		return nil, fmt.Errorf("document prefix required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("building document cache: %w", err)
	}
	return &Documents[T]{store: store, prefix: prefix, cache: cache}, nil
}

// Key returns the storage key for the session.
func (d *Documents[T]) Key(sessionID string) string {
	return d.prefix + ":" + sessionID
}

// Load returns the session's document. An absent key yields the zero value
// and no error. Store failures and ErrCorrupt also yield the zero value.
func (d *Documents[T]) Load(ctx context.Context, sessionID string) (T, error) {
	var zero T
	key := d.Key(sessionID)
	if cached, ok := d.cache.Get(key); ok {
		return cached.(T), nil
	}

	raw, err := d.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	d.cache.Add(key, value)
	return value, nil
}

// Encode serializes a document for a multi-key write.
func (d *Documents[T]) Encode(value T) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Remember replaces the cached document without touching the store.
func (d *Documents[T]) Remember(sessionID string, value T) {
	d.cache.Add(d.Key(sessionID), value)
}

// Save overwrites the whole document. The cache is updated before the write,
// so a failed write still leaves the new value visible to Load.
func (d *Documents[T]) Save(ctx context.Context, sessionID string, value T) error {
	d.Remember(sessionID, value)
	raw, err := d.Encode(value)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, d.Key(sessionID), raw)
}
