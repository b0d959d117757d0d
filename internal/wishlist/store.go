package wishlist

import (
	"context"
	"errors"
	"fmt"

	product "github.com/betadomot/storefront/internal/products"
	"github.com/betadomot/storefront/pkg/events"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/metrics"
)

// KeyPrefix namespaces wishlist documents in the key-value store.
const KeyPrefix = "wishlist"

// Store persists each session's wishlist as one JSON array of products.
type Store struct {
	docs    *kv.Documents[[]product.Product]
	hub     *events.Hub
	logg    *logger.Logger
	metrics *metrics.CartMetrics
}

func NewStore(backing kv.Store, hub *events.Hub, cacheSize int, logg *logger.Logger, m *metrics.CartMetrics) (*Store, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if hub == nil {
		return nil, fmt.Errorf("event hub required")
	}
	docs, err := kv.NewDocuments[[]product.Product](backing, KeyPrefix, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{docs: docs, hub: hub, logg: logg, metrics: m}, nil
}

// Load returns the saved items, or none when the value is absent or unreadable.
func (s *Store) Load(ctx context.Context, sessionID string) []product.Product {
	items, err := s.docs.Load(ctx, sessionID)
	if err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"key": s.docs.Key(sessionID), "corrupt": errors.Is(err, kv.ErrCorrupt)})
		s.logg.Warn(ctx, "wishlist.load_failed")
		return nil
	}
	return items
}

// Save overwrites the wishlist and notifies listeners. Write failures are logged and swallowed.
func (s *Store) Save(ctx context.Context, sessionID string, items []product.Product) {
	if err := s.docs.Save(ctx, sessionID, items); err != nil {
		s.persistFailed(ctx, sessionID, err)
	}
	s.notify(sessionID, items)
}

// Entry encodes items for a multi-key write alongside another store.
func (s *Store) Entry(sessionID string, items []product.Product) (string, string, error) {
	raw, err := s.docs.Encode(items)
	if err != nil {
		return "", "", err
	}
	return s.docs.Key(sessionID), raw, nil
}

// Commit makes items current after a multi-key write and notifies listeners.
func (s *Store) Commit(sessionID string, items []product.Product) {
	s.docs.Remember(sessionID, items)
	s.notify(sessionID, items)
}

func (s *Store) Subscribe(sessionID string) (<-chan events.Event, func()) {
	return s.hub.Subscribe(sessionID)
}

func (s *Store) persistFailed(ctx context.Context, sessionID string, err error) {
	s.metrics.IncPersistenceFailure(KeyPrefix)
	ctx = s.logg.WithField(ctx, "key", s.docs.Key(sessionID))
	s.logg.Error(ctx, "wishlist.persist_failed", err)
}

func (s *Store) notify(sessionID string, items []product.Product) {
	s.hub.Publish(events.Event{Type: events.TypeWishlistChanged, SessionID: sessionID, Count: len(items)})
}
