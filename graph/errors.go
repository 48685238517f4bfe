// Package graph implements the remote fanpage API surface: the two
// side-effecting moderation calls (reply, hide), the paged comment listing,
// and the shared retry/backoff discipline driven by the platform's
// structured error codes.
package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rate-limit class codes. The platform signals throttling with several
// distinct codes depending on whether the limit is app-, page- or
// user-scoped; all of them mean "back off and retry later".
var rateLimitCodes = map[int]bool{
	4:   true, // application request limit
	17:  true, // user request limit
	32:  true, // page request limit
	613: true, // custom rate limit
}

// codeExpiredToken marks an expired or invalidated credential.
const codeExpiredToken = 190

// APIError is the structured outcome of a failed remote call, parsed from
// the {error:{message,code,error_subcode}} body the API returns on non-2xx.
type APIError struct {
	Code       int
	Subcode    int
	Message    string
	HTTPStatus int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: api error %d (subcode %d, http %d): %s",
		e.Code, e.Subcode, e.HTTPStatus, e.Message)
}

// RateLimited reports whether the error is in the rate-limit class and the
// call should be retried after a backoff sleep.
func (e *APIError) RateLimited() bool { return rateLimitCodes[e.Code] }

// ExpiredToken reports whether the credential must be refreshed before the
// next attempt.
func (e *APIError) ExpiredToken() bool { return e.Code == codeExpiredToken }

// parseAPIError decodes an error body. A body that does not carry the
// structured error envelope yields an APIError with Code 0, which classifies
// as terminal.
func parseAPIError(httpStatus int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
			Subcode int    `json:"error_subcode"`
		} `json:"error"`
	}
	apiErr := &APIError{HTTPStatus: httpStatus, Body: string(body)}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Subcode = envelope.Error.Subcode
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = "unknown error"
	}
	return apiErr
}

const (
	backoffBase = 60 * time.Second
	backoffCap  = 5 * time.Minute

	// retryDelay is the short fixed pause before retrying after a timeout,
	// an unclassified failure, or a token refresh.
	retryDelay = 2 * time.Second
)

// Backoff returns the rate-limit wait before the given retry attempt:
// 60s doubled per attempt, capped at 5 minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := backoffBase << uint(attempt)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
