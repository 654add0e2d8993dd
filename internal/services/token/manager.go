// Package token caches a bearer credential for an upstream API and refreshes
// it before it expires. Concurrent refreshes share one in-flight fetch.
package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrEmptyToken = errors.New("token fetch returned an empty credential")

// Token is what a FetchFunc obtains from the upstream.
type Token struct {
	Value    string
	Lifespan time.Duration
}

type FetchFunc func(ctx context.Context) (Token, error)

// StaticFetcher serves a long-lived API key through the same refresh cycle as
// a minted token.
func StaticFetcher(key string, lifespan time.Duration) FetchFunc {
	return func(context.Context) (Token, error) {
		return Token{Value: key, Lifespan: lifespan}, nil
	}
}

const (
	DefaultBufferFraction = 0.2
	DefaultFetchTimeout   = 10 * time.Second
)

type Manager struct {
	fetch   FetchFunc
	buffer  float64
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu        sync.RWMutex
	value     string
	expiresAt time.Time

	inflight singleflight.Group
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithBufferFraction sets how early, as a fraction of the lifespan, a token
// is considered expired.
func WithBufferFraction(f float64) Option {
	return func(m *Manager) {
		if f >= 0 && f < 1 {
			m.buffer = f
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(fetch FetchFunc, opts ...Option) *Manager {
	m := &Manager{
		fetch:   fetch,
		buffer:  DefaultBufferFraction,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns the cached credential, fetching a new one when none is cached
// or the cached one is past its refresh point.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if v, ok := m.cached(); ok {
		return v, nil
	}
	return m.Refresh(ctx)
}

// Refresh fetches a new credential unconditionally. Callers arriving while a
// fetch is running wait for that fetch instead of starting another one.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	ch := m.inflight.DoChan("token", func() (interface{}, error) {
		return m.doFetch(ctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// RefreshStale refreshes only if stale is still the cached credential. A
// caller that got a 401 with an old token picks up a newer one fetched by
// someone else without another round trip.
func (m *Manager) RefreshStale(ctx context.Context, stale string) (string, error) {
	m.mu.RLock()
	current, expiresAt := m.value, m.expiresAt
	m.mu.RUnlock()
	if current != "" && current != stale && m.now().Before(expiresAt) {
		return current, nil
	}
	return m.Refresh(ctx)
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.value == "" || !m.now().Before(m.expiresAt) {
		return "", false
	}
	return m.value, true
}

func (m *Manager) doFetch(ctx context.Context) (string, error) {
	// The fetch is shared, so one caller giving up must not cancel it for the rest.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	tok, err := m.fetch(fctx)
	if err == nil && tok.Value == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		m.mu.Lock()
		m.value = ""
		m.expiresAt = time.Time{}
		m.mu.Unlock()
		m.log.Warn("token refresh failed", zap.Error(err))
		return "", err
	}

	ttl := time.Duration(float64(tok.Lifespan) * (1 - m.buffer))
	m.mu.Lock()
	m.value = tok.Value
	m.expiresAt = m.now().Add(ttl)
	m.mu.Unlock()

	m.log.Debug("token refreshed", zap.Duration("valid_for", ttl))
	return tok.Value, nil
}
