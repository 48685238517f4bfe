package token

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type fakeStore struct {
	token     string
	saved     []string
	saveErr   error
	appID     string
	appSecret string
}

func (f *fakeStore) LoadToken() string { return CleanToken(f.token) }
func (f *fakeStore) SaveToken(tok string) error {
	f.saved = append(f.saved, tok)
	if f.saveErr != nil {
		return f.saveErr
	}
	f.token = tok
	return nil
}
func (f *fakeStore) AppCredentials() (string, string) { return f.appID, f.appSecret }

type fakeValidator struct {
	calls   int
	results []Validation
}

func (f *fakeValidator) Validate(_ context.Context, _ string) Validation {
	f.calls++
	if f.calls > len(f.results) {
		return f.results[len(f.results)-1]
	}
	return f.results[f.calls-1]
}

type fakeRefresher struct {
	calls  int
	result string
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) string {
	f.calls++
	return f.result
}

type fakeExtractor struct {
	calls  int
	result string
	err    error
}

func (f *fakeExtractor) ExtractToken(context.Context) (string, error) {
	f.calls++
	return f.result, f.err
}

func newTestManager(store Store, v validator, r refresher, e Extractor) *Manager {
	return &Manager{
		store:     store,
		validator: v,
		refresher: r,
		extractor: e,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

func TestGetValidToken_CacheHitSkipsValidation(t *testing.T) {
	// WHAT: A second call within the expiry buffer does no validation I/O.
	// WHY: Every action in a cycle asks for the token; one remote check per
	// cycle is the intent, not one per action.
	expiry := time.Now().Add(4 * time.Hour)
	v := &fakeValidator{results: []Validation{{Valid: true, ExpiresAt: &expiry}}}
	m := newTestManager(&fakeStore{token: "tok-1"}, v, &fakeRefresher{}, nil)

	for i := 0; i < 3; i++ {
		tok, err := m.GetValidToken(context.Background(), false)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if tok != "tok-1" {
			t.Fatalf("call %d: got %q, want tok-1", i, tok)
		}
	}
	if v.calls != 1 {
		t.Fatalf("got %d validations, want 1", v.calls)
	}
}

func TestGetValidToken_ExpiryBufferEvictsCache(t *testing.T) {
	// WHAT: A token expiring within the one-hour buffer is not cache-valid.
	expiry := time.Now().Add(30 * time.Minute)
	v := &fakeValidator{results: []Validation{{Valid: true, ExpiresAt: &expiry}}}
	m := newTestManager(&fakeStore{token: "tok-1"}, v, &fakeRefresher{}, nil)

	if _, err := m.GetValidToken(context.Background(), false); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := m.GetValidToken(context.Background(), false); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if v.calls != 2 {
		t.Fatalf("got %d validations, want 2 (cache must not serve inside buffer)", v.calls)
	}
}

func TestGetValidToken_NoExpiryCachesIndefinitely(t *testing.T) {
	// WHAT: A token with no recorded expiry stays cache-valid regardless of
	// elapsed time.
	v := &fakeValidator{results: []Validation{{Valid: true}}}
	m := newTestManager(&fakeStore{token: "tok-1"}, v, &fakeRefresher{}, nil)
	base := time.Now()
	m.now = func() time.Time { return base }

	if _, err := m.GetValidToken(context.Background(), false); err != nil {
		t.Fatalf("first call: %v", err)
	}

	m.now = func() time.Time { return base.Add(90 * 24 * time.Hour) }
	if _, err := m.GetValidToken(context.Background(), false); err != nil {
		t.Fatalf("later call: %v", err)
	}
	if v.calls != 1 {
		t.Fatalf("got %d validations, want 1", v.calls)
	}
}

func TestGetValidToken_ForceRefreshBypassesCache(t *testing.T) {
	expiry := time.Now().Add(4 * time.Hour)
	v := &fakeValidator{results: []Validation{{Valid: true, ExpiresAt: &expiry}}}
	m := newTestManager(&fakeStore{token: "tok-1"}, v, &fakeRefresher{}, nil)

	m.GetValidToken(context.Background(), false)
	m.GetValidToken(context.Background(), true)
	if v.calls != 2 {
		t.Fatalf("got %d validations, want 2", v.calls)
	}
}

func TestGetValidToken_PlaceholderIsNoToken(t *testing.T) {
	// WHAT: An unresolved ${VAR} or documentation sentinel counts as absent.
	// WHY: Entering the refresh machinery with a placeholder would burn the
	// retry budget on a credential that was never real.
	for _, raw := range []string{"", "  ", "${FB_TOKEN}", "YOUR_TOKEN"} {
		v := &fakeValidator{results: []Validation{{Valid: true}}}
		m := newTestManager(&fakeStore{token: raw}, v, &fakeRefresher{}, nil)

		_, err := m.GetValidToken(context.Background(), false)
		if !errors.Is(err, ErrNoToken) {
			t.Errorf("token %q: got %v, want ErrNoToken", raw, err)
		}
		if v.calls != 0 {
			t.Errorf("token %q: validator called %d times, want 0", raw, v.calls)
		}
	}
}

func TestGetValidToken_ExpiredRefreshesAndPersists(t *testing.T) {
	// WHAT: Validation code 190 triggers the exchange; the new token is
	// saved back to the store and cached with unknown expiry.
	store := &fakeStore{token: "stale"}
	v := &fakeValidator{results: []Validation{{Valid: false, Err: "expired", ErrCode: 190}}}
	r := &fakeRefresher{result: "fresh"}
	m := newTestManager(store, v, r, nil)

	tok, err := m.GetValidToken(context.Background(), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok != "fresh" {
		t.Fatalf("got %q, want fresh", tok)
	}
	if r.calls != 1 {
		t.Fatalf("got %d refreshes, want 1", r.calls)
	}
	if len(store.saved) != 1 || store.saved[0] != "fresh" {
		t.Fatalf("saved %v, want [fresh]", store.saved)
	}

	// The refreshed token serves from cache without re-validating.
	if tok, _ := m.GetValidToken(context.Background(), false); tok != "fresh" {
		t.Fatalf("cache: got %q, want fresh", tok)
	}
	if v.calls != 1 {
		t.Fatalf("got %d validations, want 1", v.calls)
	}
}

func TestGetValidToken_SaveFailureIsNonFatal(t *testing.T) {
	// WHAT: The refreshed token is still returned when persisting it fails.
	store := &fakeStore{token: "stale", saveErr: errors.New("disk full")}
	v := &fakeValidator{results: []Validation{{Valid: false, ErrCode: 190}}}
	m := newTestManager(store, v, &fakeRefresher{result: "fresh"}, nil)

	tok, err := m.GetValidToken(context.Background(), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok != "fresh" {
		t.Fatalf("got %q, want fresh", tok)
	}
}

func TestGetValidToken_ExtractorFallback(t *testing.T) {
	// WHAT: When the app-secret exchange yields nothing, the browser
	// extraction path supplies the token.
	store := &fakeStore{token: "stale"}
	v := &fakeValidator{results: []Validation{{Valid: false, ErrCode: 190}}}
	e := &fakeExtractor{result: "extracted"}
	m := newTestManager(store, v, &fakeRefresher{result: ""}, e)

	tok, err := m.GetValidToken(context.Background(), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tok != "extracted" {
		t.Fatalf("got %q, want extracted", tok)
	}
	if e.calls != 1 {
		t.Fatalf("got %d extractions, want 1", e.calls)
	}
	if len(store.saved) != 1 || store.saved[0] != "extracted" {
		t.Fatalf("saved %v, want [extracted]", store.saved)
	}
}

func TestGetValidToken_AllPathsExhausted(t *testing.T) {
	// WHAT: Refresh and extraction both failing yields the remediation error.
	v := &fakeValidator{results: []Validation{{Valid: false, ErrCode: 190}}}
	e := &fakeExtractor{err: errors.New("no browser")}
	m := newTestManager(&fakeStore{token: "stale"}, v, &fakeRefresher{}, e)

	_, err := m.GetValidToken(context.Background(), false)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestGetValidToken_NonExpiredFailureDoesNotRefresh(t *testing.T) {
	// WHAT: Validation failures other than code 190 never trigger the
	// exchange; the token may be rate-limited, not dead.
	v := &fakeValidator{results: []Validation{{Valid: false, Err: "limit", ErrCode: 4}}}
	r := &fakeRefresher{result: "fresh"}
	m := newTestManager(&fakeStore{token: "tok"}, v, r, nil)

	_, err := m.GetValidToken(context.Background(), false)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if r.calls != 0 {
		t.Fatalf("got %d refreshes, want 0", r.calls)
	}
}

func TestTokenInfo_MasksToken(t *testing.T) {
	// WHAT: The diagnostic view shows only a prefix of the credential.
	long := "EAABsbCS1234567890abcdefghij"
	v := &fakeValidator{results: []Validation{{Valid: true}}}
	m := newTestManager(&fakeStore{token: long}, v, &fakeRefresher{}, nil)

	info := m.TokenInfo(context.Background())
	if !info.Configured || !info.Valid {
		t.Fatalf("got %+v, want configured and valid", info)
	}
	if info.Preview != long[:20]+"..." {
		t.Fatalf("got preview %q", info.Preview)
	}
}

func TestTokenInfo_Unconfigured(t *testing.T) {
	m := newTestManager(&fakeStore{}, &fakeValidator{results: []Validation{{}}}, &fakeRefresher{}, nil)
	info := m.TokenInfo(context.Background())
	if info.Configured {
		t.Fatalf("got %+v, want unconfigured", info)
	}
}

func TestCleanToken(t *testing.T) {
	cases := []struct{ in, want string }{
		{"EAAB123", "EAAB123"},
		{"  EAAB123  ", "EAAB123"},
		{"", ""},
		{"${PAGE_TOKEN}", ""},
		{"YOUR_TOKEN", ""},
	}
	for _, tc := range cases {
		if got := CleanToken(tc.in); got != tc.want {
			t.Errorf("CleanToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
