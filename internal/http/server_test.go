package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/notify"
	notifymem "subtrack/internal/notify/memory"
	"subtrack/internal/services"
	storemem "subtrack/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	st := storemem.New()
	svc := services.NewSubscriptionService(st, st, notify.NewScheduler(notifymem.New()),
		func() time.Time { return now })
	srv := NewServer(":0", svc)
	t.Cleanup(func() {
		srv.rateLimiter.stop()
		close(srv.stopCacheCleanup)
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndGetSubscription(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Music","amount":9.99,"interval":"monthly","nextRenewal":"2025-06-25","reminderDays":7}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /subscriptions = %d, body %s", rec.Code, rec.Body)
	}

	var created core.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created subscription: %v", err)
	}
	if created.ID == "" {
		t.Error("created subscription has no id")
	}
	if created.Currency != core.EUR {
		t.Errorf("currency = %s, want default EUR", created.Currency)
	}

	rec = doRequest(t, srv, http.MethodGet, "/subscriptions/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /subscriptions/{id} = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/subscriptions/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing subscription = %d, want 404", rec.Code)
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty label", `{"label":"","amount":5,"interval":"monthly"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"label":"X","amount":-1,"interval":"monthly"}`, http.StatusUnprocessableEntity},
		{"unknown interval", `{"label":"X","amount":5,"interval":"weekly"}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"label":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/subscriptions", tt.body)
			if rec.Code != tt.want {
				t.Errorf("POST /subscriptions = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestListSubscriptionsSorted(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []string{
		`{"label":"Cheap","amount":5,"interval":"monthly"}`,
		`{"label":"Pricey","amount":50,"interval":"monthly"}`,
	} {
		if rec := doRequest(t, srv, http.MethodPost, "/subscriptions", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed create = %d", rec.Code)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/subscriptions?sort=highest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /subscriptions?sort=highest = %d", rec.Code)
	}
	var subs []core.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &subs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(subs) != 2 || subs[0].Label != "Pricey" {
		t.Errorf("sorted list = %+v, want Pricey first", subs)
	}

	rec = doRequest(t, srv, http.MethodGet, "/subscriptions?sort=sideways", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown sort = %d, want 400", rec.Code)
	}
}

func TestUpdateAndDeleteSubscription(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Music","amount":9.99,"interval":"monthly"}`)
	var created core.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	rec = doRequest(t, srv, http.MethodPut, "/subscriptions/"+created.ID,
		`{"label":"Music Premium","amount":12.99,"interval":"monthly"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /subscriptions/{id} = %d, body %s", rec.Code, rec.Body)
	}
	var updated core.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Label != "Music Premium" || updated.Amount != 12.99 {
		t.Errorf("updated = %+v", updated)
	}

	rec = doRequest(t, srv, http.MethodPut, "/subscriptions/missing",
		`{"label":"X","amount":1,"interval":"monthly"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("PUT missing = %d, want 404", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/subscriptions/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, "/subscriptions/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", rec.Code)
	}
}

func TestSummaryReflectsMutations(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /summary = %d", rec.Code)
	}
	var empty services.Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if empty.TotalMonthly != 0 {
		t.Errorf("empty TotalMonthly = %v, want 0", empty.TotalMonthly)
	}

	// A create must invalidate the cached aggregate.
	doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Music","amount":10,"interval":"monthly"}`)

	rec = doRequest(t, srv, http.MethodGet, "/summary", "")
	var after services.Overview
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if after.TotalMonthly != 10 {
		t.Errorf("TotalMonthly after create = %v, want 10", after.TotalMonthly)
	}
}

func TestRenewalQueries(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Soon","amount":10,"interval":"monthly","nextRenewal":"2025-06-18"}`)
	doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Later","amount":10,"interval":"monthly","nextRenewal":"2025-09-01"}`)

	rec := doRequest(t, srv, http.MethodGet, "/renewals/upcoming?days=7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /renewals/upcoming = %d", rec.Code)
	}
	var subs []core.Subscription
	if err := json.Unmarshal(rec.Body.Bytes(), &subs); err != nil {
		t.Fatalf("decode upcoming: %v", err)
	}
	if len(subs) != 1 || subs[0].Label != "Soon" {
		t.Errorf("upcoming = %+v, want only Soon", subs)
	}

	rec = doRequest(t, srv, http.MethodGet, "/renewals/timeline?months=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /renewals/timeline = %d", rec.Code)
	}
	var groups []core.RenewalGroup
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(groups) != 3 {
		t.Errorf("timeline groups = %d, want 3", len(groups))
	}

	rec = doRequest(t, srv, http.MethodGet, "/renewals/upcoming?days=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative days = %d, want 400", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/renewals/timeline?months=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("months=0 = %d, want 400", rec.Code)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/preferences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /preferences = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, "/preferences",
		`{"defaultCurrency":"USD","notifications":true,"reminderDays":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /preferences = %d, body %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, srv, http.MethodGet, "/preferences", "")
	var prefs core.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode preferences: %v", err)
	}
	if prefs.DefaultCurrency != core.USD || prefs.ReminderDays != 3 {
		t.Errorf("preferences = %+v", prefs)
	}

	rec = doRequest(t, srv, http.MethodPut, "/preferences",
		`{"defaultCurrency":"BTC","notifications":true,"reminderDays":3}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid currency = %d, want 422", rec.Code)
	}
}

func TestExportImport(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/subscriptions",
		`{"label":"Music","amount":9.99,"interval":"monthly"}`)

	rec := doRequest(t, srv, http.MethodGet, "/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /export = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = doRequest(t, srv, http.MethodPost, "/import", rec.Body.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /import = %d, body %s", rec.Code, rec.Body)
	}
	var result map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	if result["imported"] != 1 {
		t.Errorf("imported = %d, want 1", result["imported"])
	}

	rec = doRequest(t, srv, http.MethodPost, "/import", `{"exportDate":"2025-06-15T00:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("import without subscriptions array = %d, want 400", rec.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.7:1234", "", "203.0.113.7"},
		{"trusted proxy honors XFF", "127.0.0.1:1234", "203.0.113.9", "203.0.113.9"},
		{"untrusted peer ignores XFF", "203.0.113.7:1234", "10.0.0.1", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractClientIP(r); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
