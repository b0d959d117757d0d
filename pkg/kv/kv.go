// Package kv defines the key-value persistence seam used for session-scoped
// shopper state (carts, wishlists). Every write replaces the whole value.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store persists opaque string values under string keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, entries map[string]string) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
