// Package browser is the UI-automation execution path: when no valid API
// token exists, moderation actions and comment listing fall back to scripted
// interaction with the rendered fanpage. The Chrome session is a single
// shared resource reused across all calls within a cycle; every page opened
// against it is closed on every exit path.
package browser

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures the shared Chrome session.
type Config struct {
	// Remote is the WebSocket URL of an external Chrome. Empty = launch local.
	Remote string

	// Headless controls the local launch mode. Headful helps when the
	// operator must complete an interactive step (login, token extraction).
	Headless bool

	Logger *slog.Logger
}

// Session manages the Chrome lifecycle.
type Session struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewSession creates a Session. Call Start to launch or connect.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{cfg: cfg}
}

// Start launches a local Chrome (or connects to a remote one).
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("browser: session is closed")
	}
	if s.browser != nil {
		return nil
	}

	wsURL := s.cfg.Remote
	if wsURL == "" {
		l := launcher.New().
			Headless(s.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		s.lnch = l
		wsURL = u
		s.cfg.Logger.Info("browser: launched local chrome", "headless", s.cfg.Headless)
	} else {
		s.cfg.Logger.Info("browser: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return nil
}

// Active reports whether a browser is connected.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil && !s.closed
}

// page opens a new stealth page. The caller owns it and must Close it on
// every exit path.
func (s *Session) page() (*rod.Page, error) {
	s.mu.Lock()
	b := s.browser
	s.mu.Unlock()
	if b == nil {
		return nil, fmt.Errorf("browser: no active session")
	}
	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return p, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.cfg.Logger.Warn("browser: close", "error", err)
		}
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}
