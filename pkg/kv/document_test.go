package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*Memory
	setErr error
	getErr error
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *failingStore) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Memory.Get(ctx, key)
}

type doc struct {
	Items []string `json:"items"`
}

func TestDocumentsSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	docs, err := NewDocuments[doc](mem, "cart", 8)
	require.NoError(t, err)

	got, err := docs.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	require.NoError(t, docs.Save(ctx, "s1", doc{Items: []string{"a"}}))

	raw, err := mem.Get(ctx, "cart:s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":["a"]}`, raw)

	fresh, err := NewDocuments[doc](mem, "cart", 8)
	require.NoError(t, err)
	got, err = fresh.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Items)
}

func TestDocumentsCacheStaysAuthoritativeOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Memory: NewMemory(), setErr: errors.New("quota exceeded")}
	docs, err := NewDocuments[doc](store, "cart", 8)
	require.NoError(t, err)

	err = docs.Save(ctx, "s1", doc{Items: []string{"kept"}})
	require.Error(t, err)

	store.getErr = errors.New("store down")
	got, err := docs.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, got.Items)
}

func TestDocumentsCorruptValue(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Set(ctx, "cart:s1", "{not json"))
	docs, err := NewDocuments[doc](mem, "cart", 8)
	require.NoError(t, err)

	got, err := docs.Load(ctx, "s1")
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Empty(t, got.Items)
}

func TestNewDocumentsValidatesArguments(t *testing.T) {
	_, err := NewDocuments[doc](nil, "cart", 1)
	require.Error(t, err)
	_, err = NewDocuments[doc](NewMemory(), "", 1)
	require.Error(t, err)
}

func TestLocksSerializeSameSession(t *testing.T) {
	locks := NewLocks()
	release := locks.Lock("s1")

	acquired := make(chan struct{})
	go func() {
		unlock := locks.Lock("s1")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}
