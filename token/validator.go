package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Validation is the structured outcome of a token check. The validator
// never returns a Go error: network failures report Valid=false with a
// generic reason so the caller's state machine stays uniform.
type Validation struct {
	Valid      bool
	ExpiresAt  *time.Time // nil = no fixed expiry (long-lived class)
	Err        string
	ErrCode    int
	ErrSubcode int
}

// Validator checks a token against the identity endpoint and derives its
// expiry via the introspection endpoint.
type Validator struct {
	http    *http.Client
	baseURL string
	version string
	logger  *slog.Logger
}

// NewValidator creates a Validator against the given API host and version.
func NewValidator(baseURL, version string, httpClient *http.Client, logger *slog.Logger) *Validator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		logger:  logger,
	}
}

// Validate calls the identity endpoint; on success it introspects the token
// for an absolute expiry. expires_at of 0 means the token never expires.
func (v *Validator) Validate(ctx context.Context, tok string) Validation {
	body, code, err := v.get(ctx, "me", url.Values{
		"access_token": {tok},
		"fields":       {"id,name"},
	})
	if err != nil {
		v.logger.Warn("token: validation request failed", "error", err)
		return Validation{Valid: false, Err: "request failed: " + err.Error()}
	}

	if code < 200 || code >= 300 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
				Subcode int    `json:"error_subcode"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		msg := envelope.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d", code)
		}
		return Validation{
			Valid:      false,
			Err:        msg,
			ErrCode:    envelope.Error.Code,
			ErrSubcode: envelope.Error.Subcode,
		}
	}

	return Validation{Valid: true, ExpiresAt: v.introspect(ctx, tok)}
}

// introspect asks the debug endpoint for the token's absolute expiry.
// Failures here are non-fatal: the token already proved valid, we just
// lose the expiry estimate.
func (v *Validator) introspect(ctx context.Context, tok string) *time.Time {
	body, code, err := v.get(ctx, "debug_token", url.Values{
		"input_token":  {tok},
		"access_token": {tok},
	})
	if err != nil || code < 200 || code >= 300 {
		v.logger.Warn("token: introspection failed", "status", code, "error", err)
		return nil
	}

	var resp struct {
		Data struct {
			ExpiresAt int64 `json:"expires_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.ExpiresAt <= 0 {
		return nil
	}
	t := time.Unix(resp.Data.ExpiresAt, 0)
	return &t
}

func (v *Validator) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	u := v.baseURL + "/" + v.version + "/" + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
