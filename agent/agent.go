package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/vuxmai/fankeeper/classify"
	"github.com/vuxmai/fankeeper/store"
)

// Recorder receives one audit record per executed action. Implemented by
// *store.Store.
type Recorder interface {
	RecordAction(ctx context.Context, rec store.ActionRecord) error
}

// TokenRefresher is consulted when a whole fetch cycle fails: one forced
// refresh is attempted before the cycle is abandoned.
type TokenRefresher interface {
	GetValidToken(ctx context.Context, forceRefresh bool) (string, error)
}

// Config tunes the agent loop.
type Config struct {
	// Interval between cycles. Default: 90s.
	Interval time.Duration
	// MaxActionsPerCycle caps executed actions per cycle. Default: 20.
	MaxActionsPerCycle int
	// Cycles bounds the run; 0 = run until the context is cancelled.
	Cycles int
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 90 * time.Second
	}
	if c.MaxActionsPerCycle <= 0 {
		c.MaxActionsPerCycle = 20
	}
}

// Agent executes the poll-classify-act cycle. One logical thread runs a
// cycle to completion before sleeping; no two cycles ever overlap.
type Agent struct {
	source     Source
	classifier classify.Classifier
	executor   *Executor
	recorder   Recorder
	tokens     TokenRefresher // may be nil in demo/fallback modes
	config     Config
	logger     *slog.Logger

	// trigger wakes the loop for an immediate extra cycle.
	trigger chan struct{}
}

// New creates an Agent.
func New(source Source, classifier classify.Classifier, executor *Executor, recorder Recorder, tokens TokenRefresher, cfg Config, logger *slog.Logger) *Agent {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		source:     source,
		classifier: classifier,
		executor:   executor,
		recorder:   recorder,
		tokens:     tokens,
		config:     cfg,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an immediate cycle. Non-blocking; a pending trigger is
// collapsed into one.
func (a *Agent) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Run executes cycles until the context is cancelled or the configured
// cycle count is reached. Unbounded runs sleep the interval (or a manual
// trigger) between cycles; cycle-bounded runs do not sleep.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for count := 0; ; {
		a.RunCycle(ctx)
		count++
		if a.config.Cycles > 0 {
			if count >= a.config.Cycles {
				return
			}
			// Bounded runs execute back to back: the cycle count exists
			// for smoke runs, where waiting out the interval has no value.
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.trigger:
			a.logger.Info("agent: manual trigger")
		}
	}
}

// RunCycle runs one poll-classify-act pass. A fetch failure gets one
// force-refresh-and-retry before the cycle is abandoned; a single item's
// failure never aborts the rest of the cycle.
func (a *Agent) RunCycle(ctx context.Context) {
	limit := a.config.MaxActionsPerCycle

	comments, err := a.source.FetchNew(ctx, limit)
	if err != nil {
		a.logger.Error("agent: fetch failed, forcing token refresh", "error", err)
		if a.tokens == nil {
			return
		}
		if _, rerr := a.tokens.GetValidToken(ctx, true); rerr != nil {
			a.logger.Error("agent: token refresh failed, skipping cycle", "error", rerr)
			return
		}
		comments, err = a.source.FetchNew(ctx, limit)
		if err != nil {
			a.logger.Error("agent: fetch still failing after refresh, skipping cycle", "error", err)
			return
		}
	}

	if len(comments) == 0 {
		a.logger.Info("agent: no new comments")
		return
	}
	a.logger.Info("agent: cycle start", "comments", len(comments), "mode", a.executor.Mode().String())

	actionsDone := 0
	for _, comment := range comments {
		decision := a.classifier.Classify(comment)
		a.logger.Info("agent: classified",
			"comment_id", comment.ID,
			"intent", string(decision.Intent),
			"confidence", decision.Confidence,
			"actions", len(decision.Actions))

		results := a.executor.Execute(ctx, comment, decision)

		recorded := 0
		for _, r := range results {
			rec := store.ActionRecord{
				CommentID: comment.ID,
				PostID:    comment.PostID,
				Author:    comment.Author,
				AvatarURL: comment.AvatarURL,
				Message:   comment.Message,
				Intent:    string(decision.Intent),
				Actions:   actionNames(decision.Actions),
				Detail:    r.Result.String(),
				ReplyText: r.ReplyText,
				CreatedAt: comment.CreatedAt,
			}
			if err := a.recorder.RecordAction(ctx, rec); err != nil {
				a.logger.Error("agent: record action failed", "comment_id", comment.ID, "error", err)
				continue
			}
			recorded++
			actionsDone++
			if actionsDone >= limit {
				a.source.MarkProcessed(comment.ID)
				a.logger.Warn("agent: action cap reached for this cycle", "cap", limit)
				return
			}
		}
		if recorded > 0 || len(results) == 0 {
			a.source.MarkProcessed(comment.ID)
		}
	}
}

func actionNames(actions []classify.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
