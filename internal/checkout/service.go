package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betadomot/storefront/internal/cart"
	"github.com/betadomot/storefront/internal/orders"
	"github.com/betadomot/storefront/internal/pricing"
	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
	"github.com/betadomot/storefront/pkg/logger"
	"github.com/betadomot/storefront/pkg/metrics"
)

const (
	// CartPath is where callers are sent when checkout cannot start.
	CartPath = "/cart"
	// ConfirmationPath is where callers go after a successful submission.
	ConfirmationPath = "/checkout/success"
)

// CartReader is the slice of the cart service checkout depends on.
type CartReader interface {
	Snapshot(ctx context.Context, sessionID string) (cart.Cart, pricing.Totals, error)
	Clear(ctx context.Context, sessionID string) (cart.View, error)
}

// View is the rendered checkout state returned to callers.
type View struct {
	ID           string               `json:"id"`
	Step         Step                 `json:"step"`
	Form         Form                 `json:"form"`
	Errors       map[string]string    `json:"errors"`
	Submitting   bool                 `json:"submitting"`
	LastError    string               `json:"last_error,omitempty"`
	Lines        []cart.Line          `json:"lines"`
	Totals       pricing.Totals       `json:"totals"`
	Confirmation *orders.Confirmation `json:"confirmation,omitempty"`
	Redirect     string               `json:"redirect,omitempty"`
}

// Service drives the checkout wizard for shopper sessions.
type Service interface {
	Begin(ctx context.Context, sessionID string) (View, error)
	Get(ctx context.Context, sessionID string) (View, error)
	UpdateForm(ctx context.Context, sessionID string, patch map[string]json.RawMessage) (View, error)
	Advance(ctx context.Context, sessionID string) (View, error)
	Back(ctx context.Context, sessionID string) (View, error)
	Submit(ctx context.Context, sessionID, idempotencyKey string) (View, error)
	Abandon(ctx context.Context, sessionID string) error
}

// Deps wires the checkout service.
type Deps struct {
	Cart      CartReader
	Submitter orders.Submitter
	Config    config.CheckoutConfig
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
	Now       func() time.Time
}

type service struct {
	cart      CartReader
	submitter orders.Submitter
	cfg       config.CheckoutConfig
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewService(deps Deps) (Service, error) {
	if deps.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if deps.Submitter == nil {
		return nil, fmt.Errorf("order submitter required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Config.SubmitTimeout <= 0 {
		return nil, fmt.Errorf("submit timeout must be positive")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		cart:      deps.Cart,
		submitter: deps.Submitter,
		cfg:       deps.Config,
		logg:      deps.Logger,
		metrics:   deps.Metrics,
		now:       now,
		sessions:  make(map[string]*Session),
	}, nil
}

// Begin starts a fresh checkout. An empty cart yields a redirect error and no
// session is created.
func (s *service) Begin(ctx context.Context, sessionID string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	c, totals, err := s.cart.Snapshot(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	if c.IsEmpty() {
		return View{}, pkgerrors.Redirect(CartPath, "cart is empty")
	}

	s.mu.Lock()
	s.sweepLocked()
	if existing, ok := s.sessions[sessionID]; ok && existing.Submitting {
		s.mu.Unlock()
		return View{}, pkgerrors.New(pkgerrors.CodeConflict, "order submission in progress")
	}
	sess := newSession(uuid.NewString(), sessionID, NewForm(s.cfg.DefaultCountry), s.now())
	s.sessions[sessionID] = sess
	snapshot := snapshotOf(sess)
	s.mu.Unlock()

	s.logg.Info(s.logg.WithField(ctx, "checkout_id", snapshot.ID), "checkout.started")
	return render(snapshot, c, totals), nil
}

func (s *service) Get(ctx context.Context, sessionID string) (View, error) {
	return s.withSession(ctx, sessionID, func(*Session) error { return nil })
}

func (s *service) UpdateForm(ctx context.Context, sessionID string, patch map[string]json.RawMessage) (View, error) {
	return s.withSession(ctx, sessionID, func(sess *Session) error {
		return sess.UpdateForm(patch, s.now())
	})
}

func (s *service) Advance(ctx context.Context, sessionID string) (View, error) {
	return s.withSession(ctx, sessionID, func(sess *Session) error {
		from := sess.Step
		if err := sess.Advance(s.now()); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				s.metrics.IncStepRejection(from.String())
			}
			return err
		}
		return nil
	})
}

func (s *service) Back(ctx context.Context, sessionID string) (View, error) {
	return s.withSession(ctx, sessionID, func(sess *Session) error {
		return sess.Back(s.now())
	})
}

// Submit places the order from the payment step. Only one submission per
// session may be in flight; a second call while one is pending is rejected.
// A failed submission leaves the session on the payment step.
func (s *service) Submit(ctx context.Context, sessionID, idempotencyKey string) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}
	c, totals, err := s.cart.Snapshot(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	sess, req, err := s.claimSubmission(sessionID, idempotencyKey, c, totals)
	if err != nil {
		return View{}, err
	}

	ctx = s.logg.WithField(ctx, "checkout_id", sess.ID)
	start := time.Now()
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	confirmation, subErr := s.submitter.Submit(subCtx, req)
	cancel()
	s.metrics.ObserveSubmission(s.cfg.SubmitMode, time.Since(start))

	s.mu.Lock()
	sess.Submitting = false
	sess.UpdatedAt = s.now()
	if subErr != nil {
		message := "order submission failed"
		if errors.Is(subErr, context.DeadlineExceeded) {
			message = "order submission timed out"
		}
		sess.LastError = message
		s.mu.Unlock()

		s.metrics.IncOutcome(metrics.OutcomeFailure)
		s.logg.Error(ctx, "checkout.submit_failed", subErr)
		return View{}, pkgerrors.Wrap(pkgerrors.CodeDependency, subErr, message).WithDetails(map[string]any{
			"step":      StepPayment.String(),
			"retryable": true,
		})
	}
	sess.Step = StepSubmitted
	sess.LastError = ""
	sess.Confirmation = &confirmation
	sess.Form.wipeCard()
	snapshot := snapshotOf(sess)
	s.mu.Unlock()

	s.metrics.IncOutcome(metrics.OutcomeSuccess)
	if _, err := s.cart.Clear(context.WithoutCancel(ctx), sessionID); err != nil {
		s.logg.Error(ctx, "checkout.clear_cart_failed", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "order_number", confirmation.OrderNumber), "checkout.submitted")
	return render(snapshot, cart.Cart{}, pricing.Totals{}), nil
}

// claimSubmission checks the submit guard and marks the session in flight.
func (s *service) claimSubmission(sessionID, idempotencyKey string, c cart.Cart, totals pricing.Totals) (*Session, orders.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookupLocked(sessionID)
	if err != nil {
		return nil, orders.Request{}, err
	}
	if sess.Submitting {
		s.metrics.IncOutcome(metrics.OutcomeRejected)
		return nil, orders.Request{}, pkgerrors.New(pkgerrors.CodeConflict, "order submission in progress")
	}
	if sess.Step != StepPayment {
		return nil, orders.Request{}, pkgerrors.New(pkgerrors.CodeStateConflict, "submit is only available from the payment step").
			WithDetails(map[string]any{"step": sess.Step.String()})
	}
	if err := sess.validateThrough(StepPayment); err != nil {
		s.metrics.IncStepRejection(StepPayment.String())
		return nil, orders.Request{}, err
	}
	if c.IsEmpty() {
		return nil, orders.Request{}, pkgerrors.Redirect(CartPath, "cart is empty")
	}

	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = sess.ID
	}
	sess.Submitting = true
	sess.LastError = ""
	sess.UpdatedAt = s.now()
	return sess, buildRequest(key, sess.Form, c, totals), nil
}

func (s *service) Abandon(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if sess.Submitting {
		return pkgerrors.New(pkgerrors.CodeConflict, "order submission in progress")
	}
	delete(s.sessions, sessionID)
	s.logg.Info(s.logg.WithField(ctx, "checkout_id", sess.ID), "checkout.abandoned")
	return nil
}

// withSession runs fn against the live session under the lock and renders the
// result against the current cart.
func (s *service) withSession(ctx context.Context, sessionID string, fn func(*Session) error) (View, error) {
	if err := requireSession(sessionID); err != nil {
		return View{}, err
	}

	s.mu.Lock()
	sess, err := s.lookupLocked(sessionID)
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	opErr := fn(sess)
	snapshot := snapshotOf(sess)
	s.mu.Unlock()

	if opErr != nil {
		return View{}, opErr
	}
	if snapshot.Step == StepSubmitted {
		return render(snapshot, cart.Cart{}, pricing.Totals{}), nil
	}
	c, totals, err := s.cart.Snapshot(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return render(snapshot, c, totals), nil
}

func (s *service) lookupLocked(sessionID string) (*Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout in progress")
	}
	if s.expired(sess) {
		delete(s.sessions, sessionID)
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session expired")
	}
	return sess, nil
}

func (s *service) sweepLocked() {
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
		}
	}
}

func (s *service) expired(sess *Session) bool {
	if s.cfg.SessionTTL <= 0 || sess.Submitting {
		return false
	}
	return s.now().Sub(sess.UpdatedAt) > s.cfg.SessionTTL
}

func snapshotOf(sess *Session) Session {
	out := *sess
	out.Errors = copyErrors(sess.Errors)
	if sess.Confirmation != nil {
		conf := *sess.Confirmation
		out.Confirmation = &conf
	}
	return out
}

func render(sess Session, c cart.Cart, totals pricing.Totals) View {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	view := View{
		ID:           sess.ID,
		Step:         sess.Step,
		Form:         sess.Form.Redacted(),
		Errors:       sess.Errors,
		Submitting:   sess.Submitting,
		LastError:    sess.LastError,
		Lines:        lines,
		Totals:       totals,
		Confirmation: sess.Confirmation,
	}
	if sess.Step == StepSubmitted {
		view.Redirect = ConfirmationPath
	}
	return view
}

func buildRequest(key string, f Form, c cart.Cart, totals pricing.Totals) orders.Request {
	shipping := orders.Address{
		Address:    f.Address,
		Apartment:  f.Apartment,
		City:       f.City,
		State:      f.State,
		PostalCode: f.PostalCode,
		Country:    f.Country,
	}
	billing := shipping
	if !f.SameAsBilling {
		billing = orders.Address{
			Address:    f.BillingAddress,
			City:       f.BillingCity,
			State:      f.BillingState,
			PostalCode: f.BillingPostalCode,
			Country:    f.BillingCountry,
		}
	}
	payment := orders.Payment{Method: f.PaymentMethod.String()}
	if f.PaymentMethod.RequiresCard() {
		payment.CardLast4 = f.CardLast4()
		payment.CardholderName = f.CardName
	}

	lines := make([]cart.Line, len(c.Lines))
	copy(lines, c.Lines)

	return orders.Request{
		IdempotencyKey: key,
		Customer: orders.Contact{
			Email:     f.Email,
			FirstName: f.FirstName,
			LastName:  f.LastName,
			Phone:     f.Phone,
		},
		Shipping:   shipping,
		Billing:    billing,
		Payment:    payment,
		Newsletter: f.Newsletter,
		SaveInfo:   f.SaveInfo,
		Lines:      lines,
		Totals:     totals,
	}
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}
