package checkout

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betadomot/storefront/internal/cart"
	"github.com/betadomot/storefront/internal/orders"
	"github.com/betadomot/storefront/internal/pricing"
	product "github.com/betadomot/storefront/internal/products"
	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/logger"
)

type fakeCart struct {
	mu      sync.Mutex
	carts   map[string]cart.Cart
	cleared []string
}

func newFakeCart() *fakeCart {
	return &fakeCart{carts: map[string]cart.Cart{}}
}

func (f *fakeCart) put(sessionID string, lines ...cart.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[sessionID] = cart.Cart{Lines: lines}
}

func (f *fakeCart) Snapshot(_ context.Context, sessionID string) (cart.Cart, pricing.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.carts[sessionID]
	return c, pricing.Totals{Subtotal: int64(c.ItemCount()) * 100, Total: int64(c.ItemCount()) * 100}, nil
}

func (f *fakeCart) Clear(_ context.Context, sessionID string) (cart.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, sessionID)
	f.cleared = append(f.cleared, sessionID)
	return cart.View{}, nil
}

type fakeSubmitter struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
	last    orders.Request
	mu      sync.Mutex
}

func (f *fakeSubmitter) Submit(ctx context.Context, req orders.Request) (orders.Confirmation, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return orders.Confirmation{}, ctx.Err()
		}
	}
	if f.err != nil {
		return orders.Confirmation{}, f.err
	}
	return orders.Confirmation{OrderNumber: "ORD-TEST00001", Email: req.Customer.Email, Total: req.Totals.Total}, nil
}

type fixture struct {
	svc       Service
	cart      *fakeCart
	submitter *fakeSubmitter
	now       *time.Time
}

func newFixture(t *testing.T, submitter *fakeSubmitter, timeout time.Duration) fixture {
	t.Helper()
	if submitter == nil {
		submitter = &fakeSubmitter{}
	}
	if timeout == 0 {
		timeout = time.Second
	}
	now := t0
	fc := newFakeCart()
	svc, err := NewService(Deps{
		Cart:      fc,
		Submitter: submitter,
		Config: config.CheckoutConfig{
			SubmitMode:     config.SubmitModeSimulate,
			SubmitTimeout:  timeout,
			DefaultCountry: "Nigeria",
			SessionTTL:     time.Hour,
		},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return fixture{svc: svc, cart: fc, submitter: submitter, now: &now}
}

func vaseLine() cart.Line {
	return cart.Line{Product: product.Product{ID: "vase", Price: 100, Stock: 3}, Quantity: 2}
}

func (f fixture) toPayment(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	f.cart.put(sessionID, vaseLine())
	_, err := f.svc.Begin(ctx, sessionID)
	require.NoError(t, err)
	_, err = f.svc.UpdateForm(ctx, sessionID, raw(t, customerFields()))
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, sessionID)
	require.NoError(t, err)
	_, err = f.svc.UpdateForm(ctx, sessionID, raw(t, shippingFields()))
	require.NoError(t, err)
	view, err := f.svc.Advance(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, StepPayment, view.Step)
}

func TestBeginWithEmptyCartRedirects(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.svc.Begin(context.Background(), "s1")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeRedirect, typed.Code())
	assert.Equal(t, map[string]any{"redirect": "/cart"}, typed.Details())

	_, err = f.svc.Get(context.Background(), "s1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "no session may exist after a refused entry")
}

func TestBeginRendersDefaultsAndCart(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.cart.put("s1", vaseLine())

	view, err := f.svc.Begin(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, StepCustomerInfo, view.Step)
	assert.Equal(t, "Nigeria", view.Form.Country)
	assert.Len(t, view.Lines, 1)
	assert.EqualValues(t, 200, view.Totals.Subtotal)
}

func TestSubmitSuccessClearsCart(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.toPayment(t, "s1")
	ctx := context.Background()

	_, err := f.svc.UpdateForm(ctx, "s1", raw(t, map[string]any{
		"payment_method": "card",
		"card_number":    "4111111111111234",
		"expiry_date":    "12/29",
		"cvv":            "123",
		"card_name":      "Ada Obi",
	}))
	require.NoError(t, err)

	view, err := f.svc.Submit(ctx, "s1", "idem-1")
	require.NoError(t, err)

	assert.Equal(t, StepSubmitted, view.Step)
	assert.Equal(t, "/checkout/success", view.Redirect)
	require.NotNil(t, view.Confirmation)
	assert.Equal(t, "ORD-TEST00001", view.Confirmation.OrderNumber)
	assert.Equal(t, []string{"s1"}, f.cart.cleared)
	assert.Equal(t, "", view.Form.CVV)

	req := f.submitter.last
	assert.Equal(t, "idem-1", req.IdempotencyKey)
	assert.Equal(t, "1234", req.Payment.CardLast4)
	assert.Equal(t, req.Shipping, req.Billing)
	assert.Len(t, req.Lines, 1)

	again, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepSubmitted, again.Step)

	_, err = f.svc.Submit(ctx, "s1", "idem-1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.EqualValues(t, 1, f.submitter.calls.Load())
}

func TestSubmitFailureStaysOnPayment(t *testing.T) {
	f := newFixture(t, &fakeSubmitter{err: errors.New("gateway down")}, 0)
	f.toPayment(t, "s1")
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "s1", "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.True(t, typed.Retryable())

	view, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.Step)
	assert.False(t, view.Submitting)
	assert.Equal(t, "order submission failed", view.LastError)
	assert.Empty(t, f.cart.cleared)

	f.submitter.err = nil
	view, err = f.svc.Submit(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, StepSubmitted, view.Step)
	assert.EqualValues(t, 2, f.submitter.calls.Load())
}

func TestSubmitTimeoutIsRetryableFailure(t *testing.T) {
	f := newFixture(t, &fakeSubmitter{release: make(chan struct{})}, 20*time.Millisecond)
	f.toPayment(t, "s1")

	_, err := f.svc.Submit(context.Background(), "s1", "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.Equal(t, "order submission timed out", typed.Message())
}

func TestConcurrentSubmitIsRejected(t *testing.T) {
	sub := &fakeSubmitter{started: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, sub, time.Second)
	f.toPayment(t, "s1")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, "s1", "")
		done <- err
	}()
	<-sub.started

	_, err := f.svc.Submit(ctx, "s1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	view, err := f.svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, view.Submitting)

	_, err = f.svc.Advance(ctx, "s1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.IsCode(f.svc.Abandon(ctx, "s1"), pkgerrors.CodeConflict))

	close(sub.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, sub.calls.Load())
}

func TestSubmitRequiresPaymentStep(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.cart.put("s1", vaseLine())
	_, err := f.svc.Begin(context.Background(), "s1")
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), "s1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.EqualValues(t, 0, f.submitter.calls.Load())
}

func TestSubmitValidatesCardFields(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.toPayment(t, "s1")
	ctx := context.Background()
	_, err := f.svc.UpdateForm(ctx, "s1", raw(t, map[string]any{"payment_method": "card"}))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, "s1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.EqualValues(t, 0, f.submitter.calls.Load())
}

func TestSubmitWithEmptiedCartRedirects(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.toPayment(t, "s1")
	f.cart.put("s1")

	_, err := f.svc.Submit(context.Background(), "s1", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRedirect))

	view, err := f.svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, view.Submitting)
}

func TestSessionsExpire(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.cart.put("s1", vaseLine())
	_, err := f.svc.Begin(context.Background(), "s1")
	require.NoError(t, err)

	*f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.Get(context.Background(), "s1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAbandonDiscardsSession(t *testing.T) {
	f := newFixture(t, nil, 0)
	f.cart.put("s1", vaseLine())
	_, err := f.svc.Begin(context.Background(), "s1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Abandon(context.Background(), "s1"))
	_, err = f.svc.Get(context.Background(), "s1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.NoError(t, f.svc.Abandon(context.Background(), "s1"))
}
