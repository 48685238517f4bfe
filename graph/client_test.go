package graph

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestIsTimeout(t *testing.T) {
	// WHAT: Timeouts classify through the typed net.Error interface, even
	// when wrapped; nothing classifies by message text.
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"net timeout", fakeNetError{timeout: true}, true},
		{"net non-timeout", fakeNetError{timeout: false}, false},
		{"url error wrapping timeout", &url.Error{Op: "Post", URL: "http://x", Err: fakeNetError{timeout: true}}, true},
		{"wrapped timeout", fmt.Errorf("graph: POST c1: %w", fakeNetError{timeout: true}), true},
		{"plain error", errors.New("connection refused"), false},
		{"message mentions timeout", errors.New("Client.Timeout exceeded while awaiting headers"), false},
	}
	for _, tc := range cases {
		if got := isTimeout(tc.err); got != tc.want {
			t.Errorf("%s: isTimeout = %v, want %v", tc.name, got, tc.want)
		}
	}
}
