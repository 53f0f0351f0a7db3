package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ikazeshop/payments/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Set(ctx context.Context, entry *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"echo":` + string(body) + `}`))
	})
}

func post(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/kpay/initiate", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMemoryStore()
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusOK, &calls))

	post(h, "", `1`)
	post(h, "", `1`)

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ReplaysSameRequest(t *testing.T) {
	store := newMemoryStore()
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusOK, &calls))

	first := post(h, "k-1", `{"orderId":"o-1"}`)
	second := post(h, "k-1", `{"orderId":"o-1"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))

	entry := store.entries["k-1"]
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.RequestHash)
	assert.WithinDuration(t, entry.CreatedAt.Add(time.Hour), entry.ExpiresAt, time.Second)
}

func TestIdempotency_DifferentBodyConflicts(t *testing.T) {
	store := newMemoryStore()
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusOK, &calls))

	post(h, "k-1", `{"orderId":"o-1"}`)
	w := post(h, "k-1", `{"orderId":"o-2"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_idempotency_key")
}

func TestIdempotency_ClientErrorsAreStored(t *testing.T) {
	store := newMemoryStore()
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusBadRequest, &calls))

	post(h, "k-1", `{}`)
	w := post(h, "k-1", `{}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusServiceUnavailable, &calls))

	post(h, "k-1", `{}`)
	post(h, "k-1", `{}`)

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_StoreErrorFallsThrough(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	var calls int
	h := Idempotency(store, time.Hour)(countingHandler(http.StatusOK, &calls))

	w := post(h, "k-1", `{}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdempotency_LargeResponseNotStored(t *testing.T) {
	store := newMemoryStore()
	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	h := Idempotency(store, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(large)
	}))

	w := post(h, "k-1", `{}`)

	assert.Equal(t, len(large), w.Body.Len())
	assert.Empty(t, store.entries)
}

func TestRequestHash(t *testing.T) {
	a := requestHash(http.MethodPost, "/a", []byte(`{}`))
	assert.Equal(t, a, requestHash(http.MethodPost, "/a", []byte(`{}`)))
	assert.NotEqual(t, a, requestHash(http.MethodPost, "/b", []byte(`{}`)))
	assert.NotEqual(t, a, requestHash(http.MethodPost, "/a", []byte(`{"x":1}`)))
}
