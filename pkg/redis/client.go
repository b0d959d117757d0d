package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/betadomot/storefront/pkg/config"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
)

const (
	keyNamespace      = "bd"
	idempotencyPrefix = "idempotency"
	statePrefix       = "state"
)

var errNotInitialized = errors.New("redis client not initialized")

// cmdable is the slice of go-redis the client uses; tests swap in a fake.
type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	MSet(context.Context, ...any) *redis.StatusCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client holds shopper state and idempotency records under the "bd:" namespace.
type Client struct {
	store    cmdable
	closer   func() error
	stateTTL time.Duration
}

// IdempotencyStore is the subset of Client the idempotency middleware needs:
// claim with SetNX, finish with Set, release with Del.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// New dials redis and fails fast when it cannot be pinged.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, multierr.Append(fmt.Errorf("ping redis at %s: %w", opts.Addr, err), raw.Close())
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_addr", opts.Addr), "redis connection established")
	}
	return &Client{store: raw, closer: raw.Close, stateTTL: cfg.StateTTL}, nil
}

// optionsFromConfig starts from the URL when one is set. Explicit settings
// fill whatever the URL left at zero.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) cmd() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	store, err := c.cmd()
	if err != nil {
		return "", err
	}
	return store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, value, ttl).Result()
}

// MSet writes all pairs in one atomic command, then applies ttl to each key
// when it is positive. A failed expiry leaves the values written.
func (c *Client) MSet(ctx context.Context, pairs map[string]string, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(pairs)*2)
	for _, k := range keys {
		args = append(args, k, pairs[k])
	}
	if err := store.MSet(ctx, args...).Err(); err != nil {
		return err
	}

	if ttl <= 0 {
		return nil
	}
	var expireErr error
	for _, k := range keys {
		expireErr = multierr.Append(expireErr, store.Expire(ctx, k, ttl).Err())
	}
	return expireErr
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// IdempotencyKey returns bd:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced(idempotencyPrefix, scope, id)
}

// StateKey returns bd:state:<key>.
func (c *Client) StateKey(key string) string {
	return namespaced(statePrefix, key)
}

// KV exposes the client as a kv.Store. Values written through it expire after
// the configured state TTL of inactivity, or never when it is zero.
func (c *Client) KV() kv.Store {
	return stateStore{client: c}
}

func namespaced(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

type stateStore struct {
	client *Client
}

func (s stateStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.client.StateKey(key))
	if errors.Is(err, redis.Nil) {
		return "", kv.ErrNotFound
	}
	return v, err
}

func (s stateStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.client.StateKey(key), value, s.client.stateTTL)
}

func (s stateStore) SetMany(ctx context.Context, entries map[string]string) error {
	pairs := make(map[string]string, len(entries))
	for k, v := range entries {
		pairs[s.client.StateKey(k)] = v
	}
	return s.client.MSet(ctx, pairs, s.client.stateTTL)
}

func (s stateStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.client.StateKey(k)
	}
	return s.client.Del(ctx, full...)
}

func (s stateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
