package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/microcosm-cc/bluemonday"

	"github.com/vuxmai/fankeeper/fanpage"
)

const (
	navTimeout = 30 * time.Second

	// settle is the fixed pause after navigation before querying elements.
	// The feed hydrates client-side; there is no reliable load event for it.
	settle = 1500 * time.Millisecond
)

// Fallback executes moderation actions by scripted page interaction.
// Semantically mirrors the API client's contract with weaker guarantees:
// best-effort element discovery, single attempt, no retry loop (a changed
// page structure will not heal by retrying identically).
type Fallback struct {
	session *Session
	siteURL string
	pageID  string

	// sanitizer strips markup from scraped text before it reaches the
	// classifier and the audit log.
	sanitizer *bluemonday.Policy
}

// NewFallback creates a Fallback against the given site (e.g.
// "https://www.facebook.com") and fanpage ID.
func NewFallback(session *Session, siteURL, pageID string) *Fallback {
	return &Fallback{
		session:   session,
		siteURL:   strings.TrimRight(siteURL, "/"),
		pageID:    pageID,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Reply fills the comment editor on the item's permalink and submits.
func (f *Fallback) Reply(comment fanpage.Comment, text string) fanpage.Result {
	if !f.session.Active() || comment.Permalink == "" {
		return fanpage.Result{Status: fanpage.StatusNotAvailable, Detail: "no browser session or permalink"}
	}

	page, err := f.open(comment.Permalink)
	if err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "reply: " + err.Error()}
	}
	defer page.Close()

	has, editor, err := page.Has("textarea, div[contenteditable='true']")
	if err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "reply: " + err.Error()}
	}
	if !has {
		return fanpage.Result{Status: fanpage.StatusNotFound, Detail: "comment editor not found"}
	}

	if err := editor.Input(text); err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "reply input: " + err.Error()}
	}
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "reply submit: " + err.Error()}
	}
	time.Sleep(800 * time.Millisecond)
	return fanpage.Result{Status: fanpage.StatusOK, Detail: "reply via browser"}
}

// Hide opens the item's action menu and clicks the hide entry.
func (f *Fallback) Hide(comment fanpage.Comment) fanpage.Result {
	if !f.session.Active() || comment.Permalink == "" {
		return fanpage.Result{Status: fanpage.StatusNotAvailable, Detail: "no browser session or permalink"}
	}

	page, err := f.open(comment.Permalink)
	if err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "hide: " + err.Error()}
	}
	defer page.Close()

	has, menu, err := page.Has("div[aria-label='More actions'], div[aria-label='Actions for this comment']")
	if err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "hide: " + err.Error()}
	}
	if !has {
		return fanpage.Result{Status: fanpage.StatusNotFound, Detail: "action menu not found"}
	}
	if err := menu.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "hide menu: " + err.Error()}
	}
	time.Sleep(settle / 2)

	item, err := page.Sleeper(rod.NotFoundSleeper).ElementR("span, div[role='menuitem']", "Hide comment")
	if err != nil {
		return fanpage.Result{Status: fanpage.StatusNotFound, Detail: "hide entry not found"}
	}
	if err := item.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fanpage.Result{Status: fanpage.StatusFailed, Detail: "hide click: " + err.Error()}
	}
	time.Sleep(800 * time.Millisecond)
	return fanpage.Result{Status: fanpage.StatusOK, Detail: "hide via browser"}
}

// ListComments scrapes up to limit comments from the rendered fanpage.
// Final fallback when the API listing path yields nothing.
func (f *Fallback) ListComments(limit int) ([]fanpage.Comment, error) {
	if !f.session.Active() || f.pageID == "" {
		return nil, fmt.Errorf("browser: no session or page id for listing")
	}

	page, err := f.open(f.siteURL + "/" + f.pageID)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	elements, err := page.Elements("div[aria-label='Comment']")
	if err != nil {
		return nil, fmt.Errorf("browser: query comments: %w", err)
	}

	var out []fanpage.Comment
	for i, el := range elements {
		if len(out) >= limit {
			break
		}
		id := attrOr(el, "data-commentid", fmt.Sprintf("ui-%d", i+1))
		author := attrOr(el, "data-commenter", "Unknown")
		text, err := el.Text()
		if err != nil {
			continue
		}
		out = append(out, fanpage.Comment{
			ID:        id,
			PostID:    f.pageID + "-post",
			Author:    author,
			Message:   f.sanitizer.Sanitize(text),
			CreatedAt: time.Now().UTC(),
		})
	}
	return out, nil
}

// open navigates a fresh page and waits for it to settle.
func (f *Fallback) open(url string) (*rod.Page, error) {
	page, err := f.session.page()
	if err != nil {
		return nil, err
	}
	nav := page.Timeout(navTimeout)
	if err := nav.Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	time.Sleep(settle)
	return page, nil
}

func attrOr(el *rod.Element, name, fallback string) string {
	v, err := el.Attribute(name)
	if err != nil || v == nil || *v == "" {
		return fallback
	}
	return *v
}
