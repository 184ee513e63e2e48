package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorMiddleware_WithValidCookie(t *testing.T) {
	m := NewActorMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := ActorFromContext(r.Context())
		require.True(t, ok, "actor id not in context")
		assert.Equal(t, int64(42), id)
	})

	w := httptest.NewRecorder()
	m.SetActorCookie(w, 42)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "no cookies set by SetActorCookie")

	r := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	r.AddCookie(cookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, nextCalled)
}

func TestActorMiddleware_Anonymous(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "no cookie"},
		{name: "tampered id", cookie: &http.Cookie{Name: actorCookieName, Value: "7.deadbeef"}},
		{name: "no signature", cookie: &http.Cookie{Name: actorCookieName, Value: "7"}},
	}

	m := NewActorMiddleware("test-secret")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				_, ok := ActorFromContext(r.Context())
				assert.False(t, ok)
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)

			assert.True(t, nextCalled)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestActorMiddleware_OtherSecret(t *testing.T) {
	issuer := NewActorMiddleware("one")
	verifier := NewActorMiddleware("two")

	w := httptest.NewRecorder()
	issuer.SetActorCookie(w, 1)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(w.Result().Cookies()[0])

	verifier.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := ActorFromContext(r.Context())
		assert.False(t, ok)
	})).ServeHTTP(httptest.NewRecorder(), r)
}

func TestActorMiddleware_ClearCookie(t *testing.T) {
	m := NewActorMiddleware("")

	w := httptest.NewRecorder()
	m.ClearActorCookie(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, actorCookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}
