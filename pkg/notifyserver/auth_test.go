package notifyserver_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifyserver"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	t.Run("requires key", func(t *testing.T) {
		t.Parallel()
		_, err := notifyserver.NewAuthenticator(nil)
		assert.ErrorIs(t, err, notifyserver.ErrNoSigningKey)
	})

	t.Run("issue and verify", func(t *testing.T) {
		t.Parallel()
		a, err := notifyserver.NewAuthenticator(signingKey)
		require.NoError(t, err)

		token, err := a.Issue("u1", false, time.Hour)
		require.NoError(t, err)
		p, err := a.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, notifyserver.Principal{UserID: "u1"}, p)

		token, err = a.Issue("boss", true, time.Hour)
		require.NoError(t, err)
		p, err = a.Verify(token)
		require.NoError(t, err)
		assert.True(t, p.Admin)
	})

	t.Run("configured admins", func(t *testing.T) {
		t.Parallel()
		a, err := notifyserver.NewAuthenticator(signingKey, " ops ", "")
		require.NoError(t, err)
		token, err := a.Issue("ops", false, time.Hour)
		require.NoError(t, err)
		p, err := a.Verify(token)
		require.NoError(t, err)
		assert.True(t, p.Admin)
	})

	t.Run("rejects bad tokens", func(t *testing.T) {
		t.Parallel()
		a, err := notifyserver.NewAuthenticator(signingKey)
		require.NoError(t, err)
		other, err := notifyserver.NewAuthenticator([]byte("another-key-another-key-another!!"))
		require.NoError(t, err)

		expired, err := a.Issue("u1", false, -time.Minute)
		require.NoError(t, err)
		forged, err := other.Issue("u1", false, time.Hour)
		require.NoError(t, err)
		noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString(signingKey)
		require.NoError(t, err)
		wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(signingKey)
		require.NoError(t, err)

		for name, token := range map[string]string{
			"empty":     "",
			"garbage":   "not.a.token",
			"expired":   expired,
			"forged":    forged,
			"no expiry": noExpiry,
			"wrong alg": wrongAlg,
		} {
			_, err := a.Verify(token)
			assert.ErrorIs(t, err, notifyserver.ErrInvalidToken, name)
		}

		_, err = a.Issue("", false, time.Hour)
		assert.ErrorIs(t, err, notifyserver.ErrInvalidToken)
	})
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		target string
		want   string
	}{
		{"bearer header", "Bearer abc", "/", "abc"},
		{"lower case scheme", "bearer abc", "/", "abc"},
		{"other scheme", "Basic abc", "/?access_token=q", ""},
		{"query", "", "/?access_token=q", "q"},
		{"none", "", "/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, notifyserver.TokenFromRequest(r))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()
	a, err := notifyserver.NewAuthenticator(signingKey)
	require.NoError(t, err)
	userToken, err := a.Issue("u1", false, time.Hour)
	require.NoError(t, err)
	adminToken, err := a.Issue("root", true, time.Hour)
	require.NoError(t, err)

	var seen notifyserver.Principal
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = notifyserver.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(h http.Handler, token string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(a.Middleware(ok), ""))
	assert.Equal(t, http.StatusNoContent, serve(a.Middleware(ok), userToken))
	assert.Equal(t, "u1", seen.UserID)

	admin := a.Middleware(notifyserver.RequireAdmin(ok))
	assert.Equal(t, http.StatusForbidden, serve(admin, userToken))
	assert.Equal(t, http.StatusNoContent, serve(admin, adminToken))
	assert.Equal(t, http.StatusUnauthorized, serve(notifyserver.RequireAdmin(ok), ""))
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var seen string
	h := notifyserver.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = notifyserver.RequestIDFrom(r.Context())
		attr, ok := notifyserver.RequestIDExtractor(r.Context())
		assert.True(t, ok)
		assert.Equal(t, seen, attr.Value.String())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(notifyserver.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(notifyserver.RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(notifyserver.RequestIDHeader, "bad id with spaces")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.NotEqual(t, "bad id with spaces", seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(notifyserver.RequestIDHeader))
}
