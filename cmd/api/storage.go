package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/betadomot/storefront/api/controllers"
	"github.com/betadomot/storefront/pkg/config"
	"github.com/betadomot/storefront/pkg/db"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/redis"
)

// storage holds the shopper-state backend plus the optional idempotency store.
type storage struct {
	kv          kv.Store
	idempotency redis.IdempotencyStore
	ready       map[string]controllers.Pinger
	closers     []func() error
}

func openStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*storage, error) {
	s := &storage{ready: map[string]controllers.Pinger{}}

	var redisClient *redis.Client
	if cfg.Storage.Driver == config.StorageDriverRedis || cfg.Redis.Configured() {
		client, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		redisClient = client
		s.idempotency = client
		s.ready["redis"] = client
		s.closers = append(s.closers, client.Close)
	}

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		mem := kv.NewMemory()
		s.kv = mem
		s.ready["storage"] = mem
	case config.StorageDriverRedis:
		s.kv = redisClient.KV()
	case config.StorageDriverSQL:
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("bootstrap database: %w", err), s.close())
		}
		s.kv = client.KV()
		s.ready["database"] = client
		s.closers = append(s.closers, client.Close)
	default:
		return nil, multierr.Append(fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver), s.close())
	}
	return s, nil
}

// close releases every opened backend, newest first.
func (s *storage) close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	s.closers = nil
	return err
}
