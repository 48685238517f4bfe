package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vuxmai/fankeeper/agent"
	"github.com/vuxmai/fankeeper/classify"
	"github.com/vuxmai/fankeeper/config"
	"github.com/vuxmai/fankeeper/store"
	"github.com/vuxmai/fankeeper/token"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st := store.OpenMemory(t)
	tokens := token.NewManager(token.ConfigStore{Cfg: &config.Config{}}, nil, nil, nil, nil)
	ag := agent.New(agent.NewDemoSource(nil), classify.Heuristic{},
		agent.NewExecutor(agent.ModeDemo, nil, nil, nil), st, nil, agent.Config{}, nil)
	return NewServer(tokens, st, ag, nil), st
}

func TestStatus_Unconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var info token.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Configured {
		t.Fatalf("got %+v, want unconfigured", info)
	}
}

func TestActions_EmptyIsJSONArray(t *testing.T) {
	// WHAT: An empty audit log serves [] rather than null.
	// WHY: Dashboard clients iterate the response without null checks.
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/actions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Fatalf("got body %q, want []", got)
	}
}

func TestActions_LimitParameter(t *testing.T) {
	srv, st := newTestServer(t)
	for i := 0; i < 3; i++ {
		err := st.RecordAction(context.Background(), store.ActionRecord{
			CommentID: string(rune('a' + i)),
			Intent:    "spam",
			Actions:   []string{"hide"},
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/actions?limit=2", nil))

	var rows []store.ActionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestSummary_ComputesRollup(t *testing.T) {
	srv, st := newTestServer(t)
	day := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	err := st.RecordAction(context.Background(), store.ActionRecord{
		CommentID: "c1", Intent: "ask_price", Actions: []string{"reply"}, CreatedAt: day,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary/2026-08-25", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	var summary store.DailySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Total != 1 || summary.ByIntent["ask_price"] != 1 {
		t.Fatalf("got %+v", summary)
	}
}

func TestSummary_BadDay(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary/not-a-day", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestTrigger_Accepted(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d, want 202", rec.Code)
	}
}
