package wishlist

import (
	"context"
	"fmt"
	"strings"

	product "github.com/betadomot/storefront/internal/products"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/metrics"
)

// Service exposes the session wishlist.
type Service interface {
	List(ctx context.Context, sessionID string) ([]product.Product, error)
	Add(ctx context.Context, sessionID, productID string) ([]product.Product, error)
	Remove(ctx context.Context, sessionID, productID string) ([]product.Product, error)
	Contains(ctx context.Context, sessionID, productID string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

type service struct {
	store    *Store
	products product.Service
	locks    *kv.Locks
	metrics  *metrics.CartMetrics
}

// NewService builds the wishlist service. locks must be shared with the cart
// service so moves between the two are serialized per session.
func NewService(store *Store, products product.Service, locks *kv.Locks, m *metrics.CartMetrics) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("wishlist store required")
	}
	if products == nil {
		return nil, fmt.Errorf("product service required")
	}
	if locks == nil {
		return nil, fmt.Errorf("session locks required")
	}
	return &service{store: store, products: products, locks: locks, metrics: m}, nil
}

func (s *service) List(ctx context.Context, sessionID string) ([]product.Product, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	return orEmpty(s.store.Load(ctx, sessionID)), nil
}

func (s *service) Add(ctx context.Context, sessionID, productID string) ([]product.Product, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	items := s.store.Load(ctx, sessionID)
	next, changed := Add(items, p)
	if changed {
		s.store.Save(ctx, sessionID, next)
		s.metrics.IncMutation("wishlist_add")
	}
	return orEmpty(next), nil
}

func (s *service) Remove(ctx context.Context, sessionID, productID string) ([]product.Product, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	items := s.store.Load(ctx, sessionID)
	next, changed := Remove(items, strings.TrimSpace(productID))
	if changed {
		s.store.Save(ctx, sessionID, next)
		s.metrics.IncMutation("wishlist_remove")
	}
	return orEmpty(next), nil
}

func (s *service) Contains(ctx context.Context, sessionID, productID string) (bool, error) {
	if err := requireSession(sessionID); err != nil {
		return false, err
	}
	return Contains(s.store.Load(ctx, sessionID), strings.TrimSpace(productID)), nil
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	s.store.Save(ctx, sessionID, []product.Product{})
	s.metrics.IncMutation("wishlist_clear")
	return nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}

func orEmpty(items []product.Product) []product.Product {
	if items == nil {
		return []product.Product{}
	}
	return items
}
