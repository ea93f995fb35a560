package bearer

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Accessor supplies the current bearer token.
// Token returns false when no usable token is available.
type Accessor interface {
	Token() (string, bool)
	Expired() bool
}

// DefaultLeeway treats a token as expired slightly before its exp claim so a
// request started right before expiry is not rejected in flight.
const DefaultLeeway = 5 * time.Second

// Holder is a mutable Accessor for a single token. It is safe for
// concurrent use.
type Holder struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	leeway    time.Duration
	now       func() time.Time
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) HolderOption {
	return func(h *Holder) {
		if d >= 0 {
			h.leeway = d
		}
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) HolderOption {
	return func(h *Holder) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHolder creates an empty Holder.
func NewHolder(opts ...HolderOption) *Holder {
	h := &Holder{leeway: DefaultLeeway, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Static returns a Holder preloaded with token.
func Static(token string, opts ...HolderOption) *Holder {
	h := NewHolder(opts...)
	h.Set(token)
	return h
}

// Set replaces the token. The expiry is read from the JWT exp claim when the
// token is a JWT; opaque tokens never expire locally.
func (h *Holder) Set(token string) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	exp, _ := ExpiresAt(token)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
	h.expiresAt = exp
}

// Clear forgets the token.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = ""
	h.expiresAt = time.Time{}
}

// Token returns the token if one is set and not expired.
func (h *Holder) Token() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.token == "" || h.expiredLocked() {
		return "", false
	}
	return h.token, true
}

// Expired reports whether the held token is missing or past its expiry.
func (h *Holder) Expired() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token == "" || h.expiredLocked()
}

// ExpiresAt returns the expiry of the held token, zero if unknown.
func (h *Holder) ExpiresAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.expiresAt
}

func (h *Holder) expiredLocked() bool {
	if h.expiresAt.IsZero() {
		return false
	}
	return !h.now().Before(h.expiresAt.Add(-h.leeway))
}

type tokenSource struct {
	ts oauth2.TokenSource
}

// FromTokenSource adapts an oauth2.TokenSource. Tokens are cached until
// they expire, and refreshing is left to the source.
func FromTokenSource(ts oauth2.TokenSource) Accessor {
	return &tokenSource{ts: oauth2.ReuseTokenSource(nil, ts)}
}

func (s *tokenSource) Token() (string, bool) {
	tok, err := s.ts.Token()
	if err != nil || !tok.Valid() {
		return "", false
	}
	return tok.AccessToken, true
}

func (s *tokenSource) Expired() bool {
	_, ok := s.Token()
	return !ok
}
