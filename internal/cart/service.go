package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/betadomot/storefront/internal/pricing"
	product "github.com/betadomot/storefront/internal/products"
	"github.com/betadomot/storefront/internal/wishlist"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/events"
	"github.com/betadomot/storefront/pkg/kv"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/metrics"
)

// View is a cart together with totals derived from it at read time.
type View struct {
	Lines     []Line         `json:"lines"`
	Totals    pricing.Totals `json:"totals"`
	ItemCount int            `json:"item_count"`
}

// Service applies cart mutations for a shopper session.
type Service interface {
	Get(ctx context.Context, sessionID string) (View, error)
	Snapshot(ctx context.Context, sessionID string) (Cart, pricing.Totals, error)
	Add(ctx context.Context, sessionID, productID string, quantity int) (View, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (View, error)
	Remove(ctx context.Context, sessionID, productID string) (View, error)
	MoveToWishlist(ctx context.Context, sessionID, productID string) (View, error)
	Clear(ctx context.Context, sessionID string) (View, error)
	Subscribe(sessionID string) (<-chan events.Event, func())
}

// Deps wires the cart service.
type Deps struct {
	Store    *Store
	Wishlist *wishlist.Store
	Backing  kv.Store
	Products product.Service
	Locks    *kv.Locks
	Rules    pricing.Rules
	Logger   *logger.Logger
	Metrics  *metrics.CartMetrics
}

type service struct {
	store    *Store
	wishlist *wishlist.Store
	backing  kv.Store
	products product.Service
	locks    *kv.Locks
	rules    pricing.Rules
	logg     *logger.Logger
	metrics  *metrics.CartMetrics
}

func NewService(deps Deps) (Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if deps.Wishlist == nil {
		return nil, fmt.Errorf("wishlist store required")
	}
	if deps.Backing == nil {
		return nil, fmt.Errorf("kv store required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("product service required")
	}
	if deps.Locks == nil {
		return nil, fmt.Errorf("session locks required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:    deps.Store,
		wishlist: deps.Wishlist,
		backing:  deps.Backing,
		products: deps.Products,
		locks:    deps.Locks,
		rules:    deps.Rules,
		logg:     deps.Logger,
		metrics:  deps.Metrics,
	}, nil
}

func (s *service) Get(ctx context.Context, sessionID string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	return s.view(s.store.Load(ctx, sessionID)), nil
}

func (s *service) Snapshot(ctx context.Context, sessionID string) (Cart, pricing.Totals, error) {
	if err := requireSession(sessionID); err != nil {
		return Cart{}, pricing.Totals{}, err
	}
	c := s.store.Load(ctx, sessionID)
	return c, c.Totals(s.rules), nil
}

func (s *service) Add(ctx context.Context, sessionID, productID string, quantity int) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if p.Stock < 1 {
		return View{}, pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock").
			WithDetails(map[string]any{"product_id": p.ID})
	}

	return s.mutate(ctx, sessionID, "add", func(c Cart) Cart {
		return AddOrIncrement(c, p, quantity)
	})
}

func (s *service) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	productID = strings.TrimSpace(productID)
	return s.mutate(ctx, sessionID, "update_quantity", func(c Cart) Cart {
		return UpdateQuantity(c, productID, quantity)
	})
}

func (s *service) Remove(ctx context.Context, sessionID, productID string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	productID = strings.TrimSpace(productID)
	return s.mutate(ctx, sessionID, "remove", func(c Cart) Cart {
		return Remove(c, productID)
	})
}

func (s *service) Clear(ctx context.Context, sessionID string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	next := Clear()
	s.store.Save(ctx, sessionID, next)
	s.metrics.IncMutation("clear")
	return s.view(next), nil
}

// MoveToWishlist computes the next cart and wishlist together and persists
// both in one multi-key write. A missing line leaves both untouched.
func (s *service) MoveToWishlist(ctx context.Context, sessionID, productID string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	productID = strings.TrimSpace(productID)

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current := s.store.Load(ctx, sessionID)
	line, ok := current.Find(productID)
	if !ok {
		return s.view(current), nil
	}

	nextCart := Remove(current, productID)
	nextWishlist, _ := wishlist.Add(s.wishlist.Load(ctx, sessionID), line.Product)

	if err := s.persistBoth(ctx, sessionID, nextCart, nextWishlist); err != nil {
		s.metrics.IncPersistenceFailure("cart_wishlist")
		s.logg.Error(s.logg.WithField(ctx, "product_id", productID), "cart.move_to_wishlist.persist_failed", err)
	}
	s.wishlist.Commit(sessionID, nextWishlist)
	s.store.Commit(sessionID, nextCart)
	s.metrics.IncMutation("move_to_wishlist")
	return s.view(nextCart), nil
}

func (s *service) persistBoth(ctx context.Context, sessionID string, c Cart, items []product.Product) error {
	cartKey, cartValue, err := s.store.Entry(sessionID, c)
	if err != nil {
		return err
	}
	wishKey, wishValue, err := s.wishlist.Entry(sessionID, items)
	if err != nil {
		return err
	}
	return s.backing.SetMany(ctx, map[string]string{
		cartKey: cartValue,
		wishKey: wishValue,
	})
}

func (s *service) Subscribe(sessionID string) (<-chan events.Event, func()) {
	return s.store.Subscribe(sessionID)
}

// mutate applies fn under the session lock and saves only when fn returned a changed cart.
func (s *service) mutate(ctx context.Context, sessionID, op string, fn func(Cart) Cart) (View, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	current := s.store.Load(ctx, sessionID)
	next := fn(current)
	if !changed(current, next) {
		return s.view(current), nil
	}
	s.store.Save(ctx, sessionID, next)
	s.metrics.IncMutation(op)
	return s.view(next), nil
}

func (s *service) view(c Cart) View {
	lines := c.Lines
	if lines == nil {
		lines = []Line{}
	}
	return View{Lines: lines, Totals: c.Totals(s.rules), ItemCount: c.ItemCount()}
}

func changed(a, b Cart) bool {
	if len(a.Lines) != len(b.Lines) {
		return true
	}
	for i := range a.Lines {
		if a.Lines[i].Quantity != b.Lines[i].Quantity || a.Lines[i].Product.ID != b.Lines[i].Product.ID {
			return true
		}
		if !sameSnapshot(a.Lines[i].Product, b.Lines[i].Product) {
			return true
		}
	}
	return false
}

func sameSnapshot(a, b product.Product) bool {
	return a.Price == b.Price && a.Stock == b.Stock && a.EffectivePrice() == b.EffectivePrice() && a.Name == b.Name
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}
