// Package fanpage holds the domain types shared across the fetch, execution
// and reporting layers: the comment being moderated and the outcome of an
// executed action.
package fanpage

import "time"

// Comment is a single item fetched from under a parent post.
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	Author    string
	AvatarURL string
	Message   string
	Permalink string
	CreatedAt time.Time
}

// Status classifies the outcome of one executed action.
type Status string

const (
	// StatusOK means the side effect was applied remotely.
	StatusOK Status = "ok"

	// StatusMissingCredential means no valid token was available and the
	// attempt chain was never entered.
	StatusMissingCredential Status = "missing-credential"

	// StatusFailed carries a terminal failure; Detail explains it.
	StatusFailed Status = "failed"

	// StatusNotAvailable means the fallback path had no browser session or
	// no navigable permalink for the target item.
	StatusNotAvailable Status = "not-available"

	// StatusNotFound means the fallback path navigated but the expected
	// interactive elements were absent.
	StatusNotFound Status = "not-found"

	// StatusSimulated is returned in demo mode; nothing was executed.
	StatusSimulated Status = "simulated"
)

// Result is the outcome of one action against one comment.
type Result struct {
	Status Status
	Detail string
}

// OK reports whether the action took effect.
func (r Result) OK() bool { return r.Status == StatusOK }

// String renders the result the way the audit log records it.
func (r Result) String() string {
	if r.Detail == "" {
		return string(r.Status)
	}
	return string(r.Status) + ": " + r.Detail
}
