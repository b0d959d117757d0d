package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betadomot/storefront/internal/pricing"
	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

type stubPoster struct {
	path string
	body any
	resp map[string]any
	err  error
}

func (s *stubPoster) Post(_ context.Context, path string, body, out any) error {
	s.path = path
	s.body = body
	if s.err != nil {
		return s.err
	}
	if dst, ok := out.(*remoteResponse); ok {
		if v, ok := s.resp["id"].(string); ok {
			dst.ID = v
		}
		if v, ok := s.resp["order_number"].(string); ok {
			dst.OrderNumber = v
		}
	}
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleRequest() Request {
	return Request{
		Customer: Contact{Email: "ada@example.com"},
		Totals:   pricing.Totals{Subtotal: 30000, Shipping: 5000, Tax: 2250, Total: 37250},
	}
}

func TestSimulatedSubmit(t *testing.T) {
	sim := NewSimulated(0, 7)
	sim.now = func() time.Time { return fixedNow }

	conf, err := sim.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^ORD-[A-Z0-9]{9}$`), conf.OrderNumber)
	assert.NotEmpty(t, conf.OrderID)
	assert.Equal(t, "ada@example.com", conf.Email)
	assert.EqualValues(t, 37250, conf.Total)
	assert.Equal(t, fixedNow, conf.PlacedAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), conf.EstimatedDelivery)
}

func TestSimulatedSubmitHonoursContext(t *testing.T) {
	sim := NewSimulated(time.Minute, 7)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sim.Submit(ctx, sampleRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteSubmit(t *testing.T) {
	poster := &stubPoster{resp: map[string]any{"id": "o-1", "order_number": "BD-1001"}}
	remote := NewRemote(poster, 7)
	remote.now = func() time.Time { return fixedNow }

	conf, err := remote.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "/orders", poster.path)
	assert.IsType(t, Request{}, poster.body)
	assert.Equal(t, "o-1", conf.OrderID)
	assert.Equal(t, "BD-1001", conf.OrderNumber)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), conf.EstimatedDelivery)
}

func TestRemoteSubmitFallsBackToID(t *testing.T) {
	remote := NewRemote(&stubPoster{resp: map[string]any{"id": "o-2"}}, 7)
	conf, err := remote.Submit(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "o-2", conf.OrderNumber)
}

func TestRemoteSubmitErrors(t *testing.T) {
	remote := NewRemote(&stubPoster{err: errors.New("boom")}, 7)
	_, err := remote.Submit(context.Background(), sampleRequest())
	require.Error(t, err)

	remote = NewRemote(&stubPoster{resp: map[string]any{}}, 7)
	_, err = remote.Submit(context.Background(), sampleRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewSubmitter(t *testing.T) {
	sub, err := NewSubmitter(config.CheckoutConfig{SubmitMode: config.SubmitModeSimulate}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Simulated{}, sub)

	sub, err = NewSubmitter(config.CheckoutConfig{SubmitMode: config.SubmitModeRemote}, &stubPoster{})
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, sub)

	_, err = NewSubmitter(config.CheckoutConfig{SubmitMode: config.SubmitModeRemote}, nil)
	require.Error(t, err)

	_, err = NewSubmitter(config.CheckoutConfig{SubmitMode: "carrier-pigeon"}, nil)
	require.Error(t, err)
}
