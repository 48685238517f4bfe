package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// explorerURL is the developer-tools page that surfaces the current
// session's access token in an input field.
const explorerURL = "https://developers.facebook.com/tools/explorer/"

// minTokenLen filters out empty fields and truncated paste accidents.
const minTokenLen = 50

// TokenExtractor recovers an access token through the logged-in browser
// session: it reads the token field on the developer explorer page and, when
// automated extraction fails, blocks on operator input. Last-resort path,
// acceptable only because the system runs semi-attended.
type TokenExtractor struct {
	session *Session
	logger  *slog.Logger

	// in is the operator input stream. os.Stdin outside tests.
	in io.Reader
}

// NewTokenExtractor creates a TokenExtractor over the shared session.
func NewTokenExtractor(session *Session, logger *slog.Logger) *TokenExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenExtractor{session: session, logger: logger, in: os.Stdin}
}

// ExtractToken implements token.Extractor.
func (e *TokenExtractor) ExtractToken(ctx context.Context) (string, error) {
	if !e.session.Active() {
		return "", fmt.Errorf("browser: no session for token extraction")
	}

	page, err := e.session.page()
	if err != nil {
		return "", err
	}
	defer page.Close()

	nav := page.Context(ctx).Timeout(navTimeout)
	if err := nav.Navigate(explorerURL); err != nil {
		return "", fmt.Errorf("browser: open token explorer: %w", err)
	}
	if err := nav.WaitLoad(); err != nil {
		e.logger.Warn("browser: token explorer load timeout", "error", err)
	}
	time.Sleep(3 * time.Second)

	has, field, err := page.Has("input[name='access_token'], textarea[placeholder*='Access Token']")
	if err == nil && has {
		if v, err := field.Property("value"); err == nil {
			tok := strings.TrimSpace(v.Str())
			if len(tok) >= minTokenLen {
				e.logger.Info("browser: token extracted from explorer page")
				return tok, nil
			}
		}
	}

	// Automated read failed: hand over to the operator. The browser window
	// stays open so they can generate a token and paste it here.
	e.logger.Warn("browser: automated token extraction failed",
		"next", "generate an access token in the opened explorer window and paste it below")
	fmt.Fprint(os.Stderr, "\nPaste access token: ")

	tok, err := e.readLine(ctx)
	if err != nil {
		return "", fmt.Errorf("browser: read operator token: %w", err)
	}
	if len(tok) < minTokenLen {
		return "", fmt.Errorf("browser: entered token too short")
	}
	return tok, nil
}

// readLine blocks on operator input but aborts when ctx is cancelled.
func (e *TokenExtractor) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(e.in).ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			return "", r.err
		}
		return r.line, nil
	}
}
