package authtoken

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Static returns the same bearer token for every call; empty means guest.
type Static struct {
	token string
}

// NewStatic wires a fixed-token provider.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

// Token returns the configured credential.
func (provider *Static) Token(_ context.Context) string {
	return provider.token
}

// Holder is a mutable token slot, updated per request by the HTTP façade and
// read by the cart service.
type Holder struct {
	mu    sync.RWMutex
	token string
}

// NewHolder returns an empty holder (guest session).
func NewHolder() *Holder {
	return &Holder{}
}

// Set replaces the held credential.
func (holder *Holder) Set(token string) {
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.token = strings.TrimSpace(token)
}

// Token returns the held credential.
func (holder *Holder) Token(_ context.Context) string {
	holder.mu.RLock()
	defer holder.mu.RUnlock()
	return holder.token
}

// Source supplies a raw credential for ExpiryAware to inspect.
type Source interface {
	Token(ctx context.Context) string
}

// ExpiryAware wraps a token source and withholds credentials that are already
// expired, so the cart core routes to the guest store instead of issuing a
// request guaranteed to come back 401. Signature verification stays with the
// backend; only the registered exp claim is inspected here.
type ExpiryAware struct {
	source Source
	nowFn  func() time.Time
	leeway time.Duration
}

// NewExpiryAware wires the wrapper. A nil clock defaults to time.Now.
func NewExpiryAware(source Source, now func() time.Time) *ExpiryAware {
	if now == nil {
		now = time.Now
	}
	return &ExpiryAware{source: source, nowFn: now}
}

// Token returns the underlying credential, or empty when its exp claim has
// passed. Opaque non-JWT tokens pass through untouched.
func (provider *ExpiryAware) Token(ctx context.Context) string {
	raw := provider.source.Token(ctx)
	if raw == "" {
		return ""
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return raw
	}
	if claims.ExpiresAt != nil && !provider.nowFn().Add(-provider.leeway).Before(claims.ExpiresAt.Time) {
		return ""
	}
	return raw
}
