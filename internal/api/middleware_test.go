package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragline/ragline/internal/log"
)

func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	logger := log.NewNop()
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})

	wrapped := recoveryMiddleware(logger)(handler)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
}

func TestRecoveryMiddleware_WithPanic(t *testing.T) {
	logger := log.NewNop()
	handler := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("test panic")
	})

	wrapped := recoveryMiddleware(logger)(handler)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestRequestIDMiddleware_Assigns(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})

	wrapped := requestIDMiddleware(handler)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddleware_PreservesIncoming(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})

	wrapped := requestIDMiddleware(handler)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	assert.Equal(t, "upstream-id", seen)
}

func TestClientLimiter_SeparatesClients(t *testing.T) {
	l := newClientLimiter(1, 1, false)

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
}

func TestClientLimiter_ProxyHeader(t *testing.T) {
	trusting := newClientLimiter(1, 1, true)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", trusting.clientKey(req))

	direct := newClientLimiter(1, 1, false)
	req.RemoteAddr = "192.0.2.4:5123"
	assert.Equal(t, "192.0.2.4", direct.clientKey(req))
}
