package product

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betadomot/storefront/pkg/config"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

type stubBackend struct {
	calls   atomic.Int32
	paths   []string
	mu      sync.Mutex
	body    string
	errs    []error
	started chan struct{}
	release chan struct{}
}

func (s *stubBackend) Get(ctx context.Context, path string, out any) error {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return s.errs[n-1]
	}
	return json.Unmarshal([]byte(s.body), out)
}

func testConfig() config.BackendConfig {
	return config.BackendConfig{ProductRetries: 2, RetryBase: time.Millisecond}
}

const lampJSON = `{"id":"p1","slug":"lamp","name":"Lamp","price":200.00,"sale_price":150.5,"stock":5,"weight":1.2,"category":"lighting","sku":"L-1","images":["a.jpg"],"active":true}`

func TestGetMapsBackendProduct(t *testing.T) {
	backend := &stubBackend{body: lampJSON}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), " p1 ")
	require.NoError(t, err)

	assert.Equal(t, []string{"/products/p1"}, backend.paths)
	assert.Equal(t, "Lamp", got.Name)
	assert.EqualValues(t, 20000, got.Price)
	require.NotNil(t, got.SalePrice)
	assert.EqualValues(t, 15050, *got.SalePrice)
	assert.EqualValues(t, 15050, got.EffectivePrice())
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, []string{"a.jpg"}, got.Images)
}

func TestGetRetriesDependencyFailures(t *testing.T) {
	backend := &stubBackend{
		body: lampJSON,
		errs: []error{
			pkgerrors.New(pkgerrors.CodeDependency, "backend request failed"),
			pkgerrors.New(pkgerrors.CodeDependency, "backend request failed"),
		},
	}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.EqualValues(t, 3, backend.calls.Load())
}

func TestGetStopsAfterMaxRetries(t *testing.T) {
	failure := pkgerrors.New(pkgerrors.CodeDependency, "backend request failed")
	backend := &stubBackend{errs: []error{failure, failure, failure, failure}}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "p1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.EqualValues(t, 3, backend.calls.Load())
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	backend := &stubBackend{errs: []error{pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "missing")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestGetRequiresID(t *testing.T) {
	svc, err := NewService(&stubBackend{}, testConfig())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "  ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetCoalescesConcurrentFetches(t *testing.T) {
	backend := &stubBackend{
		body:    lampJSON,
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Product, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = svc.Get(context.Background(), "p1")
	}()
	<-backend.started

	for i := 1; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = svc.Get(context.Background(), "p1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.EqualValues(t, 1, backend.calls.Load())
	for _, r := range results {
		assert.Equal(t, "p1", r.ID)
	}
}

func TestGetLeaderCancellationDoesNotFailFollowers(t *testing.T) {
	backend := &stubBackend{
		body:    lampJSON,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc, err := NewService(backend, testConfig())
	require.NoError(t, err)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Get(leaderCtx, "p1")
		leaderErr <- err
	}()
	<-backend.started

	type result struct {
		p   Product
		err error
	}
	follower := make(chan result, 1)
	go func() {
		p, err := svc.Get(context.Background(), "p1")
		follower <- result{p, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	err = <-leaderErr
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.ErrorIs(t, err, context.Canceled)

	close(backend.release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, "p1", got.p.ID)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestNewServiceRequiresBackend(t *testing.T) {
	_, err := NewService(nil, testConfig())
	require.Error(t, err)
}
