package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

const orderNumberPrefix = "ORD-"

// Submitter places an order with whatever finalizes it.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Confirmation, error)
}

// Poster is the slice of the backend client used to create orders.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// NewSubmitter picks the submitter for the configured mode.
func NewSubmitter(cfg config.CheckoutConfig, backend Poster) (Submitter, error) {
	switch cfg.SubmitMode {
	case config.SubmitModeRemote:
		if backend == nil {
			return nil, fmt.Errorf("backend client required for remote submission")
		}
		return NewRemote(backend, cfg.DeliveryDays), nil
	case config.SubmitModeSimulate, "":
		return NewSimulated(cfg.SimulatedDelay, cfg.DeliveryDays), nil
	}
	return nil, fmt.Errorf("unsupported submit mode %q", cfg.SubmitMode)
}

// Remote submits orders with POST /orders on the storefront backend.
type Remote struct {
	backend      Poster
	deliveryDays int
	now          func() time.Time
}

func NewRemote(backend Poster, deliveryDays int) *Remote {
	return &Remote{backend: backend, deliveryDays: deliveryDays, now: time.Now}
}

type remoteResponse struct {
	ID                string     `json:"id"`
	OrderNumber       string     `json:"order_number"`
	PlacedAt          *time.Time `json:"placed_at"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

func (r *Remote) Submit(ctx context.Context, req Request) (Confirmation, error) {
	var resp remoteResponse
	if err := r.backend.Post(ctx, "/orders", req, &resp); err != nil {
		return Confirmation{}, err
	}
	if strings.TrimSpace(resp.OrderNumber) == "" && strings.TrimSpace(resp.ID) == "" {
		return Confirmation{}, pkgerrors.New(pkgerrors.CodeDependency, "order response missing identifiers")
	}

	placed := r.now().UTC()
	if resp.PlacedAt != nil {
		placed = resp.PlacedAt.UTC()
	}
	delivery := estimatedDelivery(placed, r.deliveryDays)
	if resp.EstimatedDelivery != nil {
		delivery = resp.EstimatedDelivery.UTC()
	}
	number := resp.OrderNumber
	if number == "" {
		number = resp.ID
	}

	return Confirmation{
		OrderID:           resp.ID,
		OrderNumber:       number,
		Email:             req.Customer.Email,
		Total:             req.Totals.Total,
		PlacedAt:          placed,
		EstimatedDelivery: delivery,
	}, nil
}

// Simulated stands in for a payment round trip: it waits, then always succeeds
// unless the context ends first.
type Simulated struct {
	delay        time.Duration
	deliveryDays int
	now          func() time.Time
}

func NewSimulated(delay time.Duration, deliveryDays int) *Simulated {
	return &Simulated{delay: delay, deliveryDays: deliveryDays, now: time.Now}
}

func (s *Simulated) Submit(ctx context.Context, req Request) (Confirmation, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Confirmation{}, ctx.Err()
		}
	}

	placed := s.now().UTC()
	return Confirmation{
		OrderID:           uuid.NewString(),
		OrderNumber:       NewOrderNumber(),
		Email:             req.Customer.Email,
		Total:             req.Totals.Total,
		PlacedAt:          placed,
		EstimatedDelivery: estimatedDelivery(placed, s.deliveryDays),
	}, nil
}

// NewOrderNumber returns "ORD-" followed by nine upper-case alphanumerics.
func NewOrderNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return orderNumberPrefix + raw[:9]
}

func estimatedDelivery(placed time.Time, days int) time.Time {
	if days <= 0 {
		return placed
	}
	return placed.AddDate(0, 0, days)
}
