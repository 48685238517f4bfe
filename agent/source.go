package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vuxmai/fankeeper/browser"
	"github.com/vuxmai/fankeeper/fanpage"
	"github.com/vuxmai/fankeeper/graph"
)

// Source yields new, not-yet-processed comments each cycle.
type Source interface {
	FetchNew(ctx context.Context, limit int) ([]fanpage.Comment, error)
	// MarkProcessed records a durably-handled comment so it is never
	// re-emitted within this process.
	MarkProcessed(id string)
}

// CompositeSource fetches via the API and, when the remote path yields
// nothing, falls back to the browser listing. Both paths dedup through the
// API source's seen-set.
type CompositeSource struct {
	api    *graph.CommentSource
	ui     *browser.Fallback // may be nil
	logger *slog.Logger
}

// NewCompositeSource creates a CompositeSource. ui may be nil when no
// browser session exists.
func NewCompositeSource(api *graph.CommentSource, ui *browser.Fallback, logger *slog.Logger) *CompositeSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeSource{api: api, ui: ui, logger: logger}
}

func (s *CompositeSource) FetchNew(ctx context.Context, limit int) ([]fanpage.Comment, error) {
	comments, err := s.api.FetchNew(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(comments) > 0 || s.ui == nil {
		return comments, nil
	}

	listed, err := s.ui.ListComments(limit)
	if err != nil {
		s.logger.Warn("agent: browser comment listing failed", "error", err)
		return nil, nil
	}
	return s.api.FilterNew(listed), nil
}

func (s *CompositeSource) MarkProcessed(id string) { s.api.MarkProcessed(id) }

// DemoSource emits a fixed sample set once. Exercises the full cycle
// without any remote dependency.
type DemoSource struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDemoSource creates a DemoSource; processedIDs seeds its seen-set.
func NewDemoSource(processedIDs []string) *DemoSource {
	seen := make(map[string]struct{}, len(processedIDs))
	for _, id := range processedIDs {
		seen[id] = struct{}{}
	}
	return &DemoSource{seen: seen}
}

func (s *DemoSource) FetchNew(_ context.Context, limit int) ([]fanpage.Comment, error) {
	samples := []fanpage.Comment{
		{ID: "c1", PostID: "p1", Author: "Lan", Message: "Cho minh xin gia", CreatedAt: time.Now().UTC()},
		{ID: "c2", PostID: "p1", Author: "Minh", Message: "ib minh nhe", CreatedAt: time.Now().UTC()},
		{ID: "c3", PostID: "p2", Author: "UserX", Message: "http://spam.com giam gia cuc soc", CreatedAt: time.Now().UTC()},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fanpage.Comment
	for _, c := range samples {
		if len(out) >= limit {
			break
		}
		if _, ok := s.seen[c.ID]; ok {
			continue
		}
		s.seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (s *DemoSource) MarkProcessed(id string) {
	s.mu.Lock()
	s.seen[id] = struct{}{}
	s.mu.Unlock()
}
