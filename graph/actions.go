package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/vuxmai/fankeeper/fanpage"
)

// DefaultRetries is the attempt budget for side-effecting calls.
const DefaultRetries = 3

// Reply posts a public reply under the given comment. Each attempt is an
// independent remote call: the API offers no idempotency key, so a retry
// after a lost response may duplicate the reply server-side. Accepted risk.
func (c *Client) Reply(ctx context.Context, commentID, text string, retries int) fanpage.Result {
	return c.mutate(ctx, "reply", retries, func(token string) ([]byte, error) {
		return c.postForm(ctx, commentID+"/comments", url.Values{
			"access_token": {token},
			"message":      {text},
			"is_hidden":    {"false"},
		})
	})
}

// Hide hides the given comment from the page audience.
func (c *Client) Hide(ctx context.Context, commentID string, retries int) fanpage.Result {
	return c.mutate(ctx, "hide", retries, func(token string) ([]byte, error) {
		return c.postForm(ctx, commentID, url.Values{
			"access_token": {token},
			"is_hidden":    {"true"},
		})
	})
}

// mutate drives the shared attempt loop for side-effecting calls:
//
//	rate-limit code  -> sleep Backoff(attempt), re-fetch token, retry
//	code 190         -> force-refresh token, short delay, retry
//	other API error  -> terminal, no further attempts
//	timeout          -> short delay, retry
//	unclassified     -> short delay, retry
//
// Exhausting the budget without a terminal classification yields
// "max retries exceeded".
func (c *Client) mutate(ctx context.Context, op string, retries int, call func(token string) ([]byte, error)) fanpage.Result {
	if retries <= 0 {
		retries = DefaultRetries
	}

	token, err := c.tokens.GetValidToken(ctx, false)
	if err != nil || token == "" {
		c.logger.Warn("graph: no credential for "+op, "error", err)
		return fanpage.Result{Status: fanpage.StatusMissingCredential, Detail: "no valid access token"}
	}

	for attempt := 0; attempt < retries; attempt++ {
		body, err := call(token)
		if err == nil {
			detail := op + " ok"
			if id := responseID(body); id != "" {
				detail = fmt.Sprintf("%s ok (id %s)", op, id)
				c.logger.Info("graph: "+op+" posted", "id", id)
			}
			return fanpage.Result{Status: fanpage.StatusOK, Detail: detail}
		}

		last := attempt == retries-1

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.RateLimited():
				if last {
					continue // budget exhausted, fall out as max-retries
				}
				wait := Backoff(attempt)
				c.logger.Warn("graph: rate limited, backing off",
					"op", op, "code", apiErr.Code, "attempt", attempt+1, "wait", wait)
				if err := c.nap(ctx, wait); err != nil {
					return fanpage.Result{Status: fanpage.StatusFailed, Detail: "cancelled during backoff"}
				}
				// The limit window may outlive the token's validity; pick
				// up a fresher one if the manager has it.
				if t, err := c.tokens.GetValidToken(ctx, false); err == nil && t != "" {
					token = t
				}
				continue

			case apiErr.ExpiredToken():
				c.logger.Warn("graph: token expired mid-call, refreshing", "op", op, "attempt", attempt+1)
				fresh, err := c.tokens.GetValidToken(ctx, true)
				if err != nil || fresh == "" {
					return fanpage.Result{
						Status: fanpage.StatusMissingCredential,
						Detail: "credential expired and refresh failed",
					}
				}
				token = fresh
				if last {
					continue
				}
				if err := c.nap(ctx, retryDelay); err != nil {
					return fanpage.Result{Status: fanpage.StatusFailed, Detail: "cancelled during retry delay"}
				}
				continue

			default:
				return fanpage.Result{
					Status: fanpage.StatusFailed,
					Detail: fmt.Sprintf("%s failed: http %d %s", op, apiErr.HTTPStatus, apiErr.Body),
				}
			}
		}

		if isTimeout(err) {
			if last {
				return fanpage.Result{Status: fanpage.StatusFailed, Detail: op + " failed: timeout"}
			}
			c.logger.Warn("graph: timeout, retrying", "op", op, "attempt", attempt+1)
			if err := c.nap(ctx, retryDelay); err != nil {
				return fanpage.Result{Status: fanpage.StatusFailed, Detail: "cancelled during retry delay"}
			}
			continue
		}

		// Unclassified transport failure.
		if last {
			return fanpage.Result{Status: fanpage.StatusFailed, Detail: op + " failed: " + err.Error()}
		}
		c.logger.Warn("graph: request failed, retrying", "op", op, "attempt", attempt+1, "error", err)
		if err := c.nap(ctx, retryDelay); err != nil {
			return fanpage.Result{Status: fanpage.StatusFailed, Detail: "cancelled during retry delay"}
		}
	}

	return fanpage.Result{Status: fanpage.StatusFailed, Detail: op + " failed: max retries exceeded"}
}

func responseID(body []byte) string {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	return v.ID
}
