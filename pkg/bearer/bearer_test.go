package bearer_test

import (
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/notifykit/pkg/bearer"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestHolder(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("empty holder has no token", func(t *testing.T) {
		t.Parallel()
		h := bearer.NewHolder()
		_, ok := h.Token()
		assert.False(t, ok)
		assert.True(t, h.Expired())
	})

	t.Run("opaque token never expires", func(t *testing.T) {
		t.Parallel()
		h := bearer.Static("opaque-token", bearer.WithClock(clock))
		tok, ok := h.Token()
		assert.True(t, ok)
		assert.Equal(t, "opaque-token", tok)
		assert.False(t, h.Expired())
		assert.True(t, h.ExpiresAt().IsZero())
	})

	t.Run("strips bearer prefix", func(t *testing.T) {
		t.Parallel()
		h := bearer.Static("Bearer abc ")
		tok, _ := h.Token()
		assert.Equal(t, "abc", tok)
	})

	t.Run("jwt expiry honoured with leeway", func(t *testing.T) {
		t.Parallel()
		token := signed(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(3 * time.Second).Unix()})

		h := bearer.Static(token, bearer.WithClock(clock))
		assert.True(t, h.Expired())
		_, ok := h.Token()
		assert.False(t, ok)

		h = bearer.Static(token, bearer.WithClock(clock), bearer.WithLeeway(0))
		assert.False(t, h.Expired())
		assert.Equal(t, now.Add(3*time.Second).Unix(), h.ExpiresAt().Unix())
	})

	t.Run("clear", func(t *testing.T) {
		t.Parallel()
		h := bearer.Static("abc")
		h.Clear()
		_, ok := h.Token()
		assert.False(t, ok)
	})
}

func TestClaims(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signed(t, jwt.MapClaims{"sub": "user-7", "exp": exp.Unix()})

	got, err := bearer.ExpiresAt(token)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	sub, err := bearer.Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "user-7", sub)

	_, err = bearer.ExpiresAt("not-a-jwt")
	assert.ErrorIs(t, err, bearer.ErrNotJWT)

	noExp := signed(t, jwt.MapClaims{"sub": "x"})
	got, err = bearer.ExpiresAt(noExp)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestFromTokenSource(t *testing.T) {
	t.Parallel()

	valid := bearer.FromTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "live"}))
	tok, ok := valid.Token()
	assert.True(t, ok)
	assert.Equal(t, "live", tok)
	assert.False(t, valid.Expired())

	expired := bearer.FromTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: "old",
		Expiry:      time.Now().Add(-time.Minute),
	}))
	_, ok = expired.Token()
	assert.False(t, ok)
	assert.True(t, expired.Expired())
}

func TestKeyringStore(t *testing.T) {
	t.Parallel()

	store := bearer.NewKeyringStore(keyring.NewArrayKeyring(nil))

	_, err := store.Load()
	require.ErrorIs(t, err, bearer.ErrNoStoredToken)

	require.NoError(t, store.Save("saved-token"))
	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-token", tok)

	h, err := store.Holder()
	require.NoError(t, err)
	got, ok := h.Token()
	assert.True(t, ok)
	assert.Equal(t, "saved-token", got)

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())
	_, err = store.Load()
	assert.ErrorIs(t, err, bearer.ErrNoStoredToken)
}
