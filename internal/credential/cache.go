// Package credential caches bearer tokens issued by remote providers.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrCredential is wrapped by every failure to obtain a token.
var ErrCredential = errors.New("credential error")

// Grant is a token as returned by a provider's issuing endpoint.
type Grant struct {
	AccessToken string
	// ExpiresIn is the TTL in seconds, verbatim from the provider.
	ExpiresIn string
}

// Provider issues fresh tokens for one credential key.
type Provider interface {
	Key() string
	Issue(ctx context.Context) (Grant, error)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// Cache holds tokens keyed by provider key until their provider-declared expiry.
// It is safe for concurrent use; concurrent misses for one key share a single refresh.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty Cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a cached, unexpired token for p, refreshing it synchronously on a miss.
func (c *Cache) Token(ctx context.Context, p Provider) (string, error) {
	key := p.Key()
	if tok, ok := c.lookup(key); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if tok, ok := c.lookup(key); ok {
			return tok, nil
		}
		return c.refresh(ctx, p)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token for key, forcing the next Token call to refresh.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.token, true
}

func (c *Cache) refresh(ctx context.Context, p Provider) (string, error) {
	grant, err := p.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: issue %s: %w", ErrCredential, p.Key(), err)
	}
	if grant.AccessToken == "" {
		return "", fmt.Errorf("%w: issue %s: empty access token", ErrCredential, p.Key())
	}
	ttl, err := parseTTL(grant.ExpiresIn)
	if err != nil {
		return "", fmt.Errorf("%w: issue %s: %w", ErrCredential, p.Key(), err)
	}

	c.mu.Lock()
	c.entries[p.Key()] = entry{token: grant.AccessToken, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	return grant.AccessToken, nil
}

func parseTTL(raw string) (time.Duration, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse expires_in %q: %w", raw, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("non-positive expires_in %d", secs)
	}
	return time.Duration(secs) * time.Second, nil
}

// TokenSource adapts the cache to oauth2 so an oauth2.Transport can authenticate requests.
// tokenType becomes the Authorization scheme, e.g. "QQBot".
func (c *Cache) TokenSource(ctx context.Context, p Provider, tokenType string) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, cache: c, provider: p, tokenType: tokenType}
}

type tokenSource struct {
	ctx       context.Context
	cache     *Cache
	provider  Provider
	tokenType string
}

// Token implements oauth2.TokenSource. Expiry is left zero; the cache owns expiry.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.cache.Token(s.ctx, s.provider)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok, TokenType: s.tokenType}, nil
}
