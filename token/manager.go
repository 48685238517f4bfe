package token

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// refreshBuffer is how long before the recorded expiry a cached token stops
// being served from cache. Refreshing early avoids acting with a token that
// dies mid-cycle.
const refreshBuffer = time.Hour

// ErrNoToken means no credential is configured at all (absent or placeholder).
var ErrNoToken = errors.New(
	"token: no access token configured; generate one in the platform's token explorer " +
		"and set access_token in the config (or the env var it references)")

// ErrUnavailable means a token exists but could not be made valid: validation
// failed and every refresh path was exhausted.
var ErrUnavailable = errors.New(
	"token: could not obtain a valid access token; update access_token manually " +
		"or configure app_id/app_secret to enable automated refresh")

// Extractor recovers a token interactively when automated refresh is
// unavailable. Implemented by the browser package; may block on operator
// input, acceptable for semi-attended operation.
type Extractor interface {
	ExtractToken(ctx context.Context) (string, error)
}

type validator interface {
	Validate(ctx context.Context, tok string) Validation
}

type refresher interface {
	Refresh(ctx context.Context, oldToken string) string
}

// Manager composes the store, validator and refresher into a single
// GetValidToken operation with an in-memory cache. Multiple callers within
// a cycle share one Manager; cache mutations are mutex-guarded, and the
// lock is never held across a network call.
type Manager struct {
	store     Store
	validator validator
	refresher refresher
	extractor Extractor
	logger    *slog.Logger

	mu            sync.Mutex
	cached        string
	expiresAt     *time.Time // nil while cached != "" means no fixed expiry
	lastValidated time.Time

	now func() time.Time
}

// NewManager creates a Manager. extractor may be nil when no browser
// session is available.
func NewManager(store Store, v *Validator, r *Refresher, extractor Extractor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		validator: v,
		refresher: r,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

// GetValidToken returns a token that is valid right now, refreshing or
// re-extracting as needed. With forceRefresh false a cache-valid credential
// is returned without any I/O.
func (m *Manager) GetValidToken(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if tok, ok := m.cachedValid(); ok {
			return tok, nil
		}
	}

	tok := m.store.LoadToken()
	if tok == "" {
		m.logger.Error("token: no token configured",
			"hint", "set access_token in the config; see the token explorer to generate one")
		return "", ErrNoToken
	}

	val := m.validator.Validate(ctx, tok)
	if val.Valid {
		m.setCache(tok, val.ExpiresAt)
		m.logger.Info("token: validated", "expires_at", expiryString(val.ExpiresAt))
		return tok, nil
	}

	m.logger.Error("token: validation failed",
		"code", val.ErrCode, "subcode", val.ErrSubcode, "error", val.Err)

	if val.ErrCode == 190 {
		if fresh := m.refresher.Refresh(ctx, tok); fresh != "" {
			m.persist(fresh)
			return fresh, nil
		}
		if m.extractor != nil {
			m.logger.Warn("token: automated refresh unavailable, trying browser extraction")
			fresh, err := m.extractor.ExtractToken(ctx)
			if err != nil {
				m.logger.Error("token: browser extraction failed", "error", err)
			} else if fresh != "" {
				m.persist(fresh)
				return fresh, nil
			}
		}
	}

	return "", ErrUnavailable
}

// cachedValid returns the cached token when it is still safe to use:
// a known expiry must be more than refreshBuffer away; a credential with no
// known expiry stays cache-valid until a force refresh evicts it.
func (m *Manager) cachedValid() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == "" {
		return "", false
	}
	if m.expiresAt == nil {
		return m.cached, true
	}
	if m.now().Before(m.expiresAt.Add(-refreshBuffer)) {
		return m.cached, true
	}
	return "", false
}

func (m *Manager) setCache(tok string, expiresAt *time.Time) {
	m.mu.Lock()
	m.cached = tok
	m.expiresAt = expiresAt
	m.lastValidated = m.now()
	m.mu.Unlock()
}

// persist stores a refreshed token and caches it with unknown expiry.
// A save failure is logged, not fatal: the token is still good for this
// process lifetime.
func (m *Manager) persist(tok string) {
	if err := m.store.SaveToken(tok); err != nil {
		m.logger.Error("token: persisting refreshed token failed", "error", err)
	} else {
		m.logger.Info("token: refreshed token persisted")
	}
	m.setCache(tok, nil)
}

// Info is the read-only diagnostic view of the configured token.
type Info struct {
	Configured bool       `json:"configured"`
	Preview    string     `json:"preview,omitempty"`
	Valid      bool       `json:"valid"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Err        string     `json:"error,omitempty"`
	ErrCode    int        `json:"error_code,omitempty"`
}

// TokenInfo validates the currently configured token and reports on it
// without touching the cache.
func (m *Manager) TokenInfo(ctx context.Context) Info {
	tok := m.store.LoadToken()
	if tok == "" {
		return Info{Configured: false}
	}

	val := m.validator.Validate(ctx, tok)
	info := Info{
		Configured: true,
		Preview:    maskToken(tok),
		Valid:      val.Valid,
	}
	if val.Valid {
		info.ExpiresAt = val.ExpiresAt
	} else {
		info.Err = val.Err
		info.ErrCode = val.ErrCode
	}
	return info
}

func maskToken(tok string) string {
	if len(tok) <= 20 {
		return tok
	}
	return tok[:20] + "..."
}

func expiryString(t *time.Time) string {
	if t == nil {
		return "never (long-lived)"
	}
	return t.Format(time.RFC3339)
}
