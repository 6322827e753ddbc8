package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authmode/authmode/token"
)

func newTestService(t *testing.T) *token.Service {
	t.Helper()
	svc, err := token.NewService(token.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, token.NewMemoryStore(0))
	require.NoError(t, err)
	return svc
}

func okHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantSubject, claims.Subject)
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAcceptsValidAccessToken(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.GeneratePair("u-1", []string{"read"}, "")
	require.NoError(t, err)

	handler := Guard(svc)(okHandler(t, "u-1"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardRejects(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.GeneratePair("u-1", nil, "")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		// A refresh token is never accepted where an access token is required.
		{"refresh token", "Bearer " + pair.RefreshToken},
	}
	handler := Guard(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	svc := newTestService(t)

	run := func(perms []string, required string) int {
		pair, err := svc.GeneratePair("u-1", perms, "")
		require.NoError(t, err)

		handler := Guard(svc)(RequirePermission(required)(http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) },
		)))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run([]string{"read", "write"}, "write"))
	assert.Equal(t, http.StatusForbidden, run([]string{"read"}, "write"))
	assert.Equal(t, http.StatusOK, run([]string{"all"}, "write"))
}

func TestRequirePermissionWithoutGuard(t *testing.T) {
	handler := RequirePermission("read")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
