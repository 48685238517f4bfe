// Package agent wires the poll-classify-act cycle: it selects the execution
// path (remote API, browser fallback, or demo simulation) once per cycle
// from configuration, runs each classified decision's actions in order, and
// hands every outcome to the audit recorder.
package agent

import (
	"context"
	"log/slog"

	"github.com/vuxmai/fankeeper/classify"
	"github.com/vuxmai/fankeeper/fanpage"
	"github.com/vuxmai/fankeeper/graph"
)

// defaultInboxGreeting is sent on open-inbox actions when the classifier
// produced no reply text.
const defaultInboxGreeting = "Chào bạn, mình hỗ trợ nhé?"

// RemoteExecutor is the API execution path. Implemented by *graph.Client.
type RemoteExecutor interface {
	Reply(ctx context.Context, commentID, text string, retries int) fanpage.Result
	Hide(ctx context.Context, commentID string, retries int) fanpage.Result
}

// FallbackExecutor is the browser execution path. Implemented by
// *browser.Fallback.
type FallbackExecutor interface {
	Reply(comment fanpage.Comment, text string) fanpage.Result
	Hide(comment fanpage.Comment) fanpage.Result
}

// Mode is the execution path for a cycle.
type Mode int

const (
	// ModeDemo simulates every action; no network or browser call is made.
	ModeDemo Mode = iota
	// ModeRemote executes through the API client.
	ModeRemote
	// ModeFallback executes through browser automation.
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeDemo:
		return "demo"
	case ModeRemote:
		return "remote"
	default:
		return "fallback"
	}
}

// SelectMode picks the execution path: demo short-circuits everything;
// a configured credential selects the remote path; otherwise the browser
// fallback. Pure function, evaluated once per executor.
func SelectMode(demo bool, tokenConfigured bool) Mode {
	switch {
	case demo:
		return ModeDemo
	case tokenConfigured:
		return ModeRemote
	default:
		return ModeFallback
	}
}

// ActionResult pairs one executed action with its outcome.
type ActionResult struct {
	Action classify.Action
	Result fanpage.Result
	// ReplyText is the text sent, when the action sent any.
	ReplyText string
}

// Executor dispatches classified decisions to the selected execution path.
// It performs no persistence; side effects surface only through the
// returned results.
type Executor struct {
	mode     Mode
	remote   RemoteExecutor
	fallback FallbackExecutor
	logger   *slog.Logger
}

// NewExecutor creates an Executor for the given mode. remote may be nil in
// demo/fallback modes, fallback may be nil in demo/remote modes.
func NewExecutor(mode Mode, remote RemoteExecutor, fallback FallbackExecutor, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{mode: mode, remote: remote, fallback: fallback, logger: logger}
}

// Mode returns the executor's execution path.
func (e *Executor) Mode() Mode { return e.mode }

// Execute runs each action tag in the decision, in the decision's order,
// and returns one result per executed action. A reply action with empty
// reply text is skipped (nothing sensible to send).
func (e *Executor) Execute(ctx context.Context, comment fanpage.Comment, decision classify.Decision) []ActionResult {
	var out []ActionResult
	for _, action := range decision.Actions {
		switch action {
		case classify.ActionHide:
			out = append(out, ActionResult{
				Action: classify.ActionHide,
				Result: e.hide(ctx, comment),
			})
		case classify.ActionReply:
			if decision.ReplyText == "" {
				continue
			}
			out = append(out, ActionResult{
				Action:    classify.ActionReply,
				Result:    e.reply(ctx, comment, decision.ReplyText),
				ReplyText: decision.ReplyText,
			})
		case classify.ActionOpenInbox:
			text := decision.ReplyText
			if text == "" {
				text = defaultInboxGreeting
			}
			out = append(out, ActionResult{
				Action:    classify.ActionOpenInbox,
				Result:    e.inbox(comment, text),
				ReplyText: text,
			})
		}
	}
	return out
}

func (e *Executor) hide(ctx context.Context, comment fanpage.Comment) fanpage.Result {
	switch e.mode {
	case ModeDemo:
		e.logger.Info("agent: [demo] hide", "comment_id", comment.ID)
		return fanpage.Result{Status: fanpage.StatusSimulated, Detail: "demo hide"}
	case ModeRemote:
		res := e.remote.Hide(ctx, comment.ID, graph.DefaultRetries)
		e.logger.Info("agent: hide", "comment_id", comment.ID, "status", res.Status)
		return res
	default:
		res := e.fallback.Hide(comment)
		e.logger.Info("agent: hide via browser", "comment_id", comment.ID, "status", res.Status)
		return res
	}
}

func (e *Executor) reply(ctx context.Context, comment fanpage.Comment, text string) fanpage.Result {
	switch e.mode {
	case ModeDemo:
		e.logger.Info("agent: [demo] reply", "comment_id", comment.ID, "text", text)
		return fanpage.Result{Status: fanpage.StatusSimulated, Detail: "demo reply"}
	case ModeRemote:
		res := e.remote.Reply(ctx, comment.ID, text, graph.DefaultRetries)
		e.logger.Info("agent: reply", "comment_id", comment.ID, "status", res.Status)
		return res
	default:
		res := e.fallback.Reply(comment, text)
		e.logger.Info("agent: reply via browser", "comment_id", comment.ID, "status", res.Status)
		return res
	}
}

// inbox opens a private conversation with the commenter. There is no API
// for operator-initiated conversations, so outside demo mode this reports
// not-available rather than pretending.
func (e *Executor) inbox(comment fanpage.Comment, text string) fanpage.Result {
	if e.mode == ModeDemo {
		e.logger.Info("agent: [demo] inbox", "author", comment.Author, "text", text)
		return fanpage.Result{Status: fanpage.StatusSimulated, Detail: "demo inbox"}
	}
	e.logger.Warn("agent: inbox send not implemented for live mode", "author", comment.Author)
	return fanpage.Result{Status: fanpage.StatusNotAvailable, Detail: "inbox send not implemented"}
}
