package token

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Refresher exchanges a short-lived token for a long-lived one using the
// app-level secret pair. Missing credentials and remote failures both yield
// an empty token, never a panic or propagated error: the caller decides
// whether to fall through to interactive extraction.
type Refresher struct {
	store   Store
	http    *http.Client
	baseURL string
	version string
	logger  *slog.Logger
}

// NewRefresher creates a Refresher reading app credentials from store.
func NewRefresher(store Store, baseURL, version string, httpClient *http.Client, logger *slog.Logger) *Refresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		store:   store,
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		logger:  logger,
	}
}

// Refresh performs the token exchange. Returns "" when app credentials are
// not configured (a configuration gap, logged at warn) or when the exchange
// fails for any reason.
func (r *Refresher) Refresh(ctx context.Context, oldToken string) string {
	appID, appSecret := r.store.AppCredentials()
	if appID == "" || appSecret == "" {
		r.logger.Warn("token: app_id/app_secret not configured, automated refresh unavailable",
			"hint", "set app_id and app_secret in the config to enable token exchange")
		return ""
	}

	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {oldToken},
	}

	u := r.baseURL + "/" + r.version + "/oauth/access_token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		r.logger.Error("token: build refresh request", "error", err)
		return ""
	}

	resp, err := r.http.Do(req)
	if err != nil {
		r.logger.Error("token: refresh request failed", "error", err)
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		r.logger.Error("token: read refresh response", "error", err)
		return ""
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		r.logger.Error("token: exchange rejected",
			"status", resp.StatusCode, "code", envelope.Error.Code, "message", envelope.Error.Message)
		return ""
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		r.logger.Error("token: exchange response missing access_token")
		return ""
	}

	r.logger.Info("token: exchanged for long-lived token")
	return out.AccessToken
}
