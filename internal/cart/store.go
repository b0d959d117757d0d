package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/betadomot/storefront/pkg/events"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/metrics"
)

// KeyPrefix namespaces cart documents in the key-value store.
const KeyPrefix = "cart"

// Store persists each session's cart as one JSON array of lines. Every save
// is a full overwrite followed by a cart.changed notification.
type Store struct {
	docs    *kv.Documents[[]Line]
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
	docs, err := kv.NewDocuments[[]Line](backing, KeyPrefix, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{docs: docs, hub: hub, logg: logg, metrics: m}, nil
}

// Load never fails: an absent, unreadable or corrupt value yields an empty cart.
func (s *Store) Load(ctx context.Context, sessionID string) Cart {
	lines, err := s.docs.Load(ctx, sessionID)
	if err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"key": s.docs.Key(sessionID), "corrupt": errors.Is(err, kv.ErrCorrupt)})
		s.logg.Warn(ctx, "cart.load_failed")
		return Cart{}
	}
	return sanitize(lines)
}

// Save overwrites the cart and notifies listeners. Write failures are logged
// and swallowed; the cached cart stays current for the session.
func (s *Store) Save(ctx context.Context, sessionID string, c Cart) {
	if err := s.docs.Save(ctx, sessionID, c.Lines); err != nil {
		s.persistFailed(ctx, sessionID, err)
	}
	s.notify(sessionID, c)
}

// Entry encodes c for a multi-key write alongside another store.
func (s *Store) Entry(sessionID string, c Cart) (string, string, error) {
	raw, err := s.docs.Encode(c.Lines)
	if err != nil {
		return "", "", err
	}
	return s.docs.Key(sessionID), raw, nil
}

// Commit makes c current after a multi-key write and notifies listeners.
func (s *Store) Commit(sessionID string, c Cart) {
	s.docs.Remember(sessionID, c.Lines)
	s.notify(sessionID, c)
}

// Subscribe registers a listener for every change event of the session,
// including wishlist changes published on the shared hub.
func (s *Store) Subscribe(sessionID string) (<-chan events.Event, func()) {
	return s.hub.Subscribe(sessionID)
}

func (s *Store) persistFailed(ctx context.Context, sessionID string, err error) {
	s.metrics.IncPersistenceFailure(KeyPrefix)
	ctx = s.logg.WithField(ctx, "key", s.docs.Key(sessionID))
	s.logg.Error(ctx, "cart.persist_failed", err)
}

func (s *Store) notify(sessionID string, c Cart) {
	s.hub.Publish(events.Event{Type: events.TypeCartChanged, SessionID: sessionID, Count: c.ItemCount()})
}

// sanitize drops lines that break the cart invariants, keeping the first line per product.
func sanitize(lines []Line) Cart {
	out := make([]Line, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Product.ID == "" || l.Quantity < 1 {
			continue
		}
		if _, dup := seen[l.Product.ID]; dup {
			continue
		}
		seen[l.Product.ID] = struct{}{}
		out = append(out, l)
	}
	return Cart{Lines: out}
}
