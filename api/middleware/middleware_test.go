package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/session"
)

type stubState struct{ st session.State }

func (s stubState) State() session.State { return s.st }

func signedIn(isAdmin bool) stubState {
	return stubState{st: session.State{
		Phase:   session.PhaseAuthenticated,
		User:    &identity.User{ID: uuid.New(), Email: "a@b.com"},
		IsAdmin: isAdmin,
	}}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", UserIDFromContext(r.Context()).String())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSession(t *testing.T) {
	w := httptest.NewRecorder()
	RequireSession(stubState{st: session.State{Phase: session.PhaseAnonymous}}, nil)(echoUser()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	RequireSession(stubState{st: session.State{Phase: session.PhaseUnresolved, Loading: true}}, nil)(echoUser()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "still loading")

	store := signedIn(false)
	w = httptest.NewRecorder()
	RequireSession(store, nil)(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, store.st.User.ID.String(), w.Header().Get("X-User"))
}

func TestRequireAdmin(t *testing.T) {
	w := httptest.NewRecorder()
	RequireAdmin(signedIn(false), nil)(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	RequireAdmin(signedIn(true), nil)(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	RequireAdmin(stubState{st: session.State{Phase: session.PhaseAnonymous}}, nil)(echoUser()).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdminRejectsWhileLoading(t *testing.T) {
	store := signedIn(true)
	store.st.Loading = true

	w := httptest.NewRecorder()
	RequireAdmin(store, nil)(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("X-User"))

	w = httptest.NewRecorder()
	RequireSession(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, IsAdminFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitPerIP(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }
	h := RateLimit(limiter, nil)(echoUser())

	call := func(ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2"))

	clock = clock.Add(2 * time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1"))
}

func TestRecovererAndRequestID(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := RequestID(nil)(Recoverer(nil)(panicky))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(requestIDHeader, "req-1")
	w = httptest.NewRecorder()
	RequestID(nil)(echoUser()).ServeHTTP(w, r)
	require.Equal(t, "req-1", w.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesMalformedInboundID(t *testing.T) {
	var seen string
	h := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, inbound := range []string{"bad id; drop", strings.Repeat("a", 65)} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(requestIDHeader, inbound)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		got := w.Header().Get(requestIDHeader)
		assert.NotEqual(t, inbound, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
		assert.Equal(t, got, seen)
	}
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestLoggingRecordsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	Logging(nil)(echoUser()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
