package product

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

const (
	defaultRetryBase    = 100 * time.Millisecond
	defaultFetchTimeout = 30 * time.Second
)

// Getter is the slice of the backend client used for product lookups.
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Service fetches product snapshots from the backend.
type Service interface {
	Get(ctx context.Context, id string) (Product, error)
}

type service struct {
	backend   Getter
	retries   uint64
	retryBase time.Duration
	// fetchTimeout bounds a shared fetch, which outlives any one caller's context.
	fetchTimeout time.Duration
	group        singleflight.Group
}

// NewService builds the product lookup. Concurrent fetches of the same id
// share one backend call, and dependency failures retry with backoff.
func NewService(backend Getter, cfg config.BackendConfig) (Service, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend client required")
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	fetchTimeout := defaultFetchTimeout
	if cfg.Timeout > 0 {
		fetchTimeout = cfg.Timeout * time.Duration(cfg.ProductRetries+1)
	}
	return &service{
		backend:      backend,
		retries:      cfg.ProductRetries,
		retryBase:    base,
		fetchTimeout: fetchTimeout,
	}, nil
}

func (s *service) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	// The fetch is shared by every caller waiting on id, so it runs detached
	// from ctx and each caller stops waiting when its own ctx ends.
	ch := s.group.DoChan(id, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetch(fetchCtx, id)
	})
	select {
	case <-ctx.Done():
		return Product{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "fetch product")
	case res := <-ch:
		if res.Err != nil {
			return Product{}, res.Err
		}
		return res.Val.(Product), nil
	}
}

func (s *service) fetch(ctx context.Context, id string) (Product, error) {
	var wire backendProduct
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.backend.Get(ctx, "/products/"+url.PathEscape(id), &wire)
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return Product{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch product")
		}
		return Product{}, err
	}
	if wire.ID == "" {
		wire.ID = id
	}
	return wire.toProduct(), nil
}
