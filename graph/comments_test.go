package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vuxmai/fankeeper/fanpage"
)

const pageFeedJSON = `{"data":[{"id":"post1"},{"id":"post2"}]}`

func commentJSON(id, authorID, author, msg string) string {
	return fmt.Sprintf(`{"id":%q,"from":{"id":%q,"name":%q,"picture":{"data":{"url":"https://cdn/x.jpg"}}},"message":%q,"created_time":"2026-08-25T10:00:00+0000","permalink_url":"https://fb/%s"}`,
		id, authorID, author, msg, id)
}

// feedServer serves a page feed with two posts and a fixed comment set.
func feedServer(t *testing.T, comments map[string][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/published_posts"):
			fmt.Fprint(w, pageFeedJSON)
		case strings.HasSuffix(r.URL.Path, "/comments"):
			postID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v24.0/"), "/comments")
			fmt.Fprintf(w, `{"data":[%s]}`, strings.Join(comments[postID], ","))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchNew_DedupAcrossCalls(t *testing.T) {
	// WHAT: A second FetchNew with an unchanged feed returns nothing.
	// WHY: The seen-set is the only guard against acting on a comment twice
	// within one process lifetime.
	srv := feedServer(t, map[string][]string{
		"post1": {commentJSON("c1", "u1", "Lan", "Cho minh xin gia")},
		"post2": {commentJSON("c2", "u2", "Minh", "ib nhe")},
	})
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", nil)

	first, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d comments, want 2", len(first))
	}
	if first[0].ID != "c1" || first[0].Author != "Lan" {
		t.Fatalf("unexpected first comment %+v", first[0])
	}

	second, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("got %d comments on second fetch, want 0", len(second))
	}
}

func TestFetchNew_SkipsOwnComments(t *testing.T) {
	// WHAT: Comments authored by the page itself never surface.
	// WHY: Re-processing our own replies would loop forever.
	srv := feedServer(t, map[string][]string{
		"post1": {
			commentJSON("c1", "page1", "My Page", "Cam on ban"),
			commentJSON("c2", "u2", "Minh", "gia bao nhieu"),
		},
		"post2": {},
	})
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", nil)
	got, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("got %v, want only c2", got)
	}
}

func TestFetchNew_SeededProcessedIDs(t *testing.T) {
	// WHAT: IDs loaded from the audit log at startup are never re-emitted.
	srv := feedServer(t, map[string][]string{
		"post1": {commentJSON("c1", "u1", "Lan", "hello")},
		"post2": {commentJSON("c2", "u2", "Minh", "hi")},
	})
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", []string{"c1"})
	got, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("got %v, want only c2", got)
	}
}

func TestFetchNew_LimitCap(t *testing.T) {
	srv := feedServer(t, map[string][]string{
		"post1": {
			commentJSON("c1", "u1", "A", "m1"),
			commentJSON("c2", "u2", "B", "m2"),
			commentJSON("c3", "u3", "C", "m3"),
		},
		"post2": {commentJSON("c4", "u4", "D", "m4")},
	})
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", nil)
	got, err := src.FetchNew(context.Background(), 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d comments, want 2", len(got))
	}
}

func TestFetchNew_FallsBackToPosts(t *testing.T) {
	// WHAT: When published_posts is denied, the plain posts listing serves.
	// WHY: Page tokens without the newer permission still need to work.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/published_posts"):
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"message":"permission","code":200}}`)
		case strings.HasSuffix(r.URL.Path, "/posts"):
			fmt.Fprint(w, `{"data":[{"id":"post1"}]}`)
		case strings.HasSuffix(r.URL.Path, "/comments"):
			fmt.Fprintf(w, `{"data":[%s]}`, commentJSON("c1", "u1", "Lan", "hi"))
		}
	}))
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", nil)
	got, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("got %v, want c1", got)
	}
}

func TestFetchNew_SkipsFailingPost(t *testing.T) {
	// WHAT: A terminal listing failure on one post does not fail the cycle.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/published_posts"):
			fmt.Fprint(w, pageFeedJSON)
		case strings.HasPrefix(r.URL.Path, "/v24.0/post1/"):
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"gone","code":100}}`)
		case strings.HasSuffix(r.URL.Path, "/comments"):
			fmt.Fprintf(w, `{"data":[%s]}`, commentJSON("c2", "u2", "Minh", "hi"))
		}
	}))
	defer srv.Close()

	src := NewCommentSource(newTestClient(srv.URL, StaticToken("tok"), nil), "page1", nil)
	got, err := src.FetchNew(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("got %v, want c2 only", got)
	}
}

func TestFilterNew_SharesSeenSet(t *testing.T) {
	// WHAT: Comments already emitted by the API path are filtered from the
	// UI path, and vice versa.
	src := NewCommentSource(nil, "page1", []string{"c1"})

	got := src.FilterNew([]fanpage.Comment{
		{ID: "c1", Message: "dup"},
		{ID: "c2", Message: "new"},
		{ID: "", Message: "no id"},
	})
	if len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("got %v, want only c2", got)
	}
	// c2 is now seen too.
	if again := src.FilterNew([]fanpage.Comment{{ID: "c2"}}); len(again) != 0 {
		t.Fatalf("got %v, want empty", again)
	}
}

func TestParseGraphTime(t *testing.T) {
	// WHAT: The API's "+0000" suffix parses; garbage falls back to now.
	got := parseGraphTime("2026-08-25T10:30:00+0000")
	want := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	before := time.Now().Add(-time.Second)
	if fallback := parseGraphTime("not a time"); fallback.Before(before) {
		t.Fatalf("fallback %v not near now", fallback)
	}
}
