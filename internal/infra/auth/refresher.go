// File: internal/infra/auth/refresher.go
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	"screenshot-ai-assistant/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Refresher deduplicates concurrent session refreshes for the same
// refresh credential. Refresh tokens are single-use at the provider, so two
// simultaneous refreshes with the same token make the second one fail as
// "already used"; a per-credential lock plus a short-TTL result cache keeps
// one provider call in flight and hands the same new pair to every caller.
type Refresher struct {
	provider   adapter.IdentityProvider
	ttl        time.Duration
	sweepEvery time.Duration
	log        *zerolog.Logger

	mu      sync.Mutex
	locks   map[string]*credentialLock
	results map[string]*cacheEntry

	done chan struct{}
	once sync.Once
}

type credentialLock struct {
	sync.Mutex
	lastUsed time.Time
}

type cacheEntry struct {
	session  *model.Session
	cachedAt time.Time
}

func NewRefresher(provider adapter.IdentityProvider, ttl, sweepEvery time.Duration, logger *zerolog.Logger) *Refresher {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	r := &Refresher{
		provider:   provider,
		ttl:        ttl,
		sweepEvery: sweepEvery,
		log:        logger,
		locks:      make(map[string]*credentialLock),
		results:    make(map[string]*cacheEntry),
		done:       make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Refresh exchanges the refresh credential for a new session, serialized
// per distinct credential and answered from cache within the TTL window.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrInvalidArgument
	}
	key := hashCredential(refreshToken)
	lock := r.lockFor(key)

	// Held across cache check, provider call and cache fill: that window is
	// exactly the race this type exists to close.
	lock.Lock()
	defer lock.Unlock()

	if s := r.cached(key); s != nil {
		metrics.IncRefresh("cache_hit")
		return s, nil
	}

	session, err := r.provider.Refresh(ctx, refreshToken)
	if err != nil {
		// The provider burning the token means someone else already spent it.
		// If their result is still cached, hand it out instead of failing.
		if isAlreadyUsed(err) {
			if s := r.cached(key); s != nil {
				metrics.IncRefresh("self_heal")
				r.log.Warn().Str("credential", key[:8]).Msg("refresh token already used, serving cached session")
				return s, nil
			}
		}
		metrics.IncRefresh("failure")
		return nil, domain.ErrRefreshFailed
	}

	r.mu.Lock()
	r.results[key] = &cacheEntry{session: session, cachedAt: time.Now()}
	r.mu.Unlock()
	metrics.IncRefresh("success")
	return session, nil
}

func (r *Refresher) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Refresher) lockFor(key string) *credentialLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &credentialLock{}
		r.locks[key] = l
	}
	l.lastUsed = time.Now()
	return l
}

func (r *Refresher) cached(key string) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.results[key]
	if !ok || time.Since(e.cachedAt) > r.ttl {
		return nil
	}
	return e.session
}

func (r *Refresher) sweepLoop() {
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

// sweep drops locks and entries idle longer than the sweep interval so the
// maps stay bounded by recent traffic.
func (r *Refresher) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, l := range r.locks {
		if now.Sub(l.lastUsed) > r.sweepEvery {
			delete(r.locks, k)
		}
	}
	for k, e := range r.results {
		if now.Sub(e.cachedAt) > r.ttl {
			delete(r.results, k)
		}
	}
}

func hashCredential(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isAlreadyUsed(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already used") || strings.Contains(msg, "invalid refresh token")
}

var _ adapter.IdentityProvider = (*guardedProvider)(nil)

// guardedProvider wraps an IdentityProvider so callers get refresh
// deduplication without knowing about the coordinator.
type guardedProvider struct {
	inner     adapter.IdentityProvider
	refresher *Refresher
}

func NewGuardedProvider(inner adapter.IdentityProvider, refresher *Refresher) adapter.IdentityProvider {
	return &guardedProvider{inner: inner, refresher: refresher}
}

func (g *guardedProvider) Validate(ctx context.Context, accessToken string) (*model.Identity, error) {
	return g.inner.Validate(ctx, accessToken)
}

func (g *guardedProvider) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	return g.refresher.Refresh(ctx, refreshToken)
}
