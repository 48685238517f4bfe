package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/vuxmai/fankeeper/fanpage"
)

// containersPerFetch bounds how many parent posts are enumerated per cycle.
const containersPerFetch = 5

// CommentSource fetches new, not-yet-seen comments from under the page's
// recent posts. De-duplication is two-layered: a process-local seen-set and
// the persisted processed-ID set loaded from the audit log at startup.
type CommentSource struct {
	client *Client
	pageID string

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCommentSource creates a CommentSource. processedIDs is the durable
// already-handled set; it seeds the in-memory seen-set so restarts do not
// re-emit recorded comments.
func NewCommentSource(client *Client, pageID string, processedIDs []string) *CommentSource {
	seen := make(map[string]struct{}, len(processedIDs))
	for _, id := range processedIDs {
		seen[id] = struct{}{}
	}
	return &CommentSource{client: client, pageID: pageID, seen: seen}
}

// MarkProcessed records an ID in the seen-set. Called by the cycle loop once
// a comment's actions are durably recorded.
func (s *CommentSource) MarkProcessed(id string) {
	s.mu.Lock()
	s.seen[id] = struct{}{}
	s.mu.Unlock()
}

// markSeen adds the ID and reports whether it was already present.
func (s *CommentSource) markSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

// FilterNew applies the seen-set to comments obtained outside the API path
// (the UI-automation listing) so both paths share one dedup layer. Comments
// that pass are marked seen.
func (s *CommentSource) FilterNew(comments []fanpage.Comment) []fanpage.Comment {
	var out []fanpage.Comment
	for _, c := range comments {
		if c.ID == "" || s.markSeen(c.ID) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Reset clears the in-memory seen-set to bound memory on long runs. Comments
// whose record already exists stay deduplicated by the storage layer.
func (s *CommentSource) Reset(processedIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{}, len(processedIDs))
	for _, id := range processedIDs {
		s.seen[id] = struct{}{}
	}
}

// FetchNew returns up to limit unseen comments, newest-first within each
// post. Enumeration tries the published-posts listing first and falls back
// to the plain posts listing. A terminal listing failure for one post skips
// that post, not the cycle.
func (s *CommentSource) FetchNew(ctx context.Context, limit int) ([]fanpage.Comment, error) {
	posts, err := s.listPosts(ctx, "published_posts")
	if err != nil {
		s.client.logger.Warn("graph: published_posts listing failed, falling back", "error", err)
		posts, err = s.listPosts(ctx, "posts")
		if err != nil {
			return nil, fmt.Errorf("graph: enumerate posts: %w", err)
		}
	}

	var out []fanpage.Comment
	for _, postID := range posts {
		items, err := s.listComments(ctx, postID, limit)
		if err != nil {
			s.client.logger.Warn("graph: comment listing failed, skipping post",
				"post_id", postID, "error", err)
			continue
		}

		for _, c := range items {
			if c.ID == "" || s.isSelf(c) {
				if c.ID != "" {
					s.MarkProcessed(c.ID)
				}
				continue
			}
			if s.markSeen(c.ID) {
				continue
			}
			out = append(out, c)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// isSelf reports whether the comment was authored by the page itself
// (our own replies must not be re-processed).
func (s *CommentSource) isSelf(c fanpage.Comment) bool {
	return c.AuthorID != "" && c.AuthorID == s.pageID
}

func (s *CommentSource) listPosts(ctx context.Context, endpoint string) ([]string, error) {
	body, err := s.listWithRetry(ctx, s.pageID+"/"+endpoint, url.Values{
		"limit": {strconv.Itoa(containersPerFetch)},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("graph: decode posts: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, p := range resp.Data {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *CommentSource) listComments(ctx context.Context, postID string, limit int) ([]fanpage.Comment, error) {
	body, err := s.listWithRetry(ctx, postID+"/comments", url.Values{
		"filter": {"stream"},
		"order":  {"reverse_chronological"},
		"limit":  {strconv.Itoa(limit)},
		"fields": {"from{id,name,picture},message,created_time,permalink_url,id"},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []commentPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("graph: decode comments: %w", err)
	}

	out := make([]fanpage.Comment, 0, len(resp.Data))
	for _, c := range resp.Data {
		out = append(out, c.toComment(postID))
	}
	return out, nil
}

// listWithRetry mirrors the side-effect retry discipline for read calls:
// rate-limit backoff, in-band refresh on 190, terminal otherwise.
func (s *CommentSource) listWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	c := s.client
	token, err := c.tokens.GetValidToken(ctx, false)
	if err != nil || token == "" {
		return nil, fmt.Errorf("graph: no valid access token: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < DefaultRetries; attempt++ {
		params.Set("access_token", token)
		body, err := c.get(ctx, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		last := attempt == DefaultRetries-1

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.RateLimited():
				if last {
					continue
				}
				if err := c.nap(ctx, Backoff(attempt)); err != nil {
					return nil, lastErr
				}
				continue
			case apiErr.ExpiredToken():
				fresh, err := c.tokens.GetValidToken(ctx, true)
				if err != nil || fresh == "" {
					return nil, fmt.Errorf("graph: credential expired and refresh failed: %w", apiErr)
				}
				token = fresh
				if last {
					continue
				}
				if err := c.nap(ctx, retryDelay); err != nil {
					return nil, lastErr
				}
				continue
			default:
				return nil, apiErr
			}
		}

		if last {
			return nil, lastErr
		}
		if err := c.nap(ctx, retryDelay); err != nil {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("graph: list %s: max retries exceeded: %w", path, lastErr)
}

type commentPayload struct {
	ID   string `json:"id"`
	From struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	} `json:"from"`
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
}

func (p commentPayload) toComment(postID string) fanpage.Comment {
	c := fanpage.Comment{
		ID:        p.ID,
		PostID:    postID,
		AuthorID:  p.From.ID,
		Author:    p.From.Name,
		AvatarURL: p.From.Picture.Data.URL,
		Message:   p.Message,
		Permalink: p.PermalinkURL,
		CreatedAt: parseGraphTime(p.CreatedTime),
	}
	if c.Author == "" {
		c.Author = "Unknown"
	}
	return c
}

// parseGraphTime handles the API's "+0000" zone suffix, which is not valid
// RFC 3339. Unparseable values fall back to now.
func parseGraphTime(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
