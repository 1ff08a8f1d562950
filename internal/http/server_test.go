package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tracker/internal/cache"
	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/services"
	"tracker/internal/storage"
)

type memStore struct {
	mu         sync.Mutex
	entries    map[int64]core.Entry
	nextID     int64
	lastFilter storage.EntryFilter
	failApply  error
}

func newMemStore(entries ...core.Entry) *memStore {
	s := &memStore{entries: make(map[int64]core.Entry), nextID: 100}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *memStore) get(id int64) (core.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *memStore) CreateEntry(_ context.Context, e core.Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries[e.ID] = e
	return e.ID, nil
}

func (s *memStore) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	if e, ok := s.get(id); ok {
		return e, nil
	}
	return core.Entry{}, storage.ErrNotFound
}

func (s *memStore) matching(f storage.EntryFilter) []core.Entry {
	var out []core.Entry
	for _, e := range s.entries {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if !f.Since.IsZero() && e.Date.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *memStore) ListEntries(_ context.Context, f storage.EntryFilter) (storage.EntryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	all := s.matching(f)
	return storage.EntryPage{Entries: all, Page: 1, PageSize: storage.DefaultPageSize, Total: len(all)}, nil
}

func (s *memStore) Records(_ context.Context, f storage.EntryFilter) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Record
	for _, e := range s.matching(f) {
		out = append(out, e.Record())
	}
	return out, nil
}

func (s *memStore) ListCategories(context.Context) ([]storage.NameCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, e := range s.entries {
		counts[e.Category]++
	}
	var out []storage.NameCount
	for name, n := range counts {
		out = append(out, storage.NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ListTags(context.Context) ([]storage.NameCount, error) { return nil, nil }

func (s *memStore) EntriesExist(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool)
	for _, id := range ids {
		_, out[id] = s.entries[id]
	}
	return out, nil
}

func (s *memStore) ApplyUpdates(_ context.Context, edits []core.Entry, deletions []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply != nil {
		return s.failApply
	}
	for _, id := range deletions {
		if _, ok := s.entries[id]; !ok {
			return storage.ErrNotFound
		}
	}
	for _, e := range edits {
		s.entries[e.ID] = e
	}
	for _, id := range deletions {
		delete(s.entries, id)
	}
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database closed") }

func day(d int) time.Time { return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC) }

func seedEntries() []core.Entry {
	return []core.Entry{
		{ID: 1, Date: day(1), Amount: 2, Category: "Food", Tags: []string{"lunch"}},
		{ID: 2, Date: day(1), Amount: 3, Category: "Fun"},
		{ID: 3, Date: day(2), Amount: 4, Category: "Food", Comment: "dinner"},
	}
}

type testEnv struct {
	srv   *Server
	store *memStore
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	store := newMemStore(seedEntries()...)
	entries := services.NewEntryService(store, nil, time.UTC)
	chartSvc := services.NewChartService(store, charts.Options{
		Series:  charts.SeriesOptions{Location: time.UTC},
		Heatmap: charts.HeatmapOptions{Location: time.UTC},
	}, cache.NewLRUCache[charts.Views](8, time.Minute))
	entries.OnChange(chartSvc.Invalidate)

	opts := Options{
		Addr:   ":0",
		Logger: log.New(log.Config{Output: &bytes.Buffer{}}),
		Now:    func() time.Time { return time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := NewServer(opts, entries, chartSvc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, target string, body url.Values, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/", nil, nil)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/entries/" {
		t.Fatalf("index: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := env.do(t, http.MethodGet, path, nil, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	rr = env.do(t, http.MethodGet, "/metrics", nil, nil)
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Errorf("metrics body missing counters: %s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing security headers")
	}
}

func TestReadyzReportsFailure(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Ready = failingPinger{} })
	if rr := env.do(t, http.MethodGet, "/readyz", nil, nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/entries/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"dinner", `value="Fun"`, "3 entries", `id="entry-table"`} {
		if !strings.Contains(body, want) {
			t.Errorf("list body missing %q", want)
		}
	}
	if got := len(env.srv.Table().State().Rows); got != 3 {
		t.Errorf("table session rows = %d, want 3", got)
	}
}

func TestListEntriesPaths(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path         string
		wantStatus   int
		wantCategory string
		wantSince    bool
	}{
		{"/entries/Food/", http.StatusOK, "Food", false},
		{"/entries/2weeks/", http.StatusOK, "", true},
		{"/entries/Food/30days/", http.StatusOK, "Food", true},
		{"/entries/Food/later/", http.StatusNotFound, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			env.store.lastFilter = storage.EntryFilter{}
			rr := env.do(t, http.MethodGet, tt.path, nil, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			f := env.store.lastFilter
			if f.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", f.Category, tt.wantCategory)
			}
			if f.Since.IsZero() == tt.wantSince {
				t.Errorf("since = %v, want set=%v", f.Since, tt.wantSince)
			}
			if f.PageSize != storage.DefaultPageSize || f.Page != 1 {
				t.Errorf("paging = %d/%d", f.Page, f.PageSize)
			}
		})
	}
}

func TestListEntriesAmountFilter(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/entries/?amount=%3E%3D3", nil, nil)
	if got := len(env.srv.Table().State().Rows); got != 2 {
		t.Errorf("filtered rows = %d, want 2", got)
	}
	env.do(t, http.MethodGet, "/entries/?amount=abc", nil, nil)
	if got := len(env.srv.Table().State().Rows); got != 3 {
		t.Errorf("invalid filter rows = %d, want all 3", got)
	}
}

func TestCreateEntry(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		path       string
		form       url.Values
		htmx       bool
		wantStatus int
	}{
		{"invalid amount", "/entries/", url.Values{"amount": {"abc"}, "category": {"Food"}}, false, http.StatusUnprocessableEntity},
		{"negative amount", "/entries/", url.Values{"amount": {"-1"}, "category": {"Food"}}, false, http.StatusUnprocessableEntity},
		{"missing category", "/entries/", url.Values{"amount": {"1"}}, false, http.StatusUnprocessableEntity},
		{"plain form", "/entries/", url.Values{"amount": {"1.5"}, "category": {"Food"}, "date": {"2024-06-05"}}, false, http.StatusSeeOther},
		{"htmx", "/entries/", url.Values{"amount": {"2"}, "category": {"Fun"}}, true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers map[string]string
			if tt.htmx {
				headers = map[string]string{"HX-Request": "true"}
			}
			rr := env.do(t, http.MethodPost, tt.path, tt.form, headers)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.htmx && !strings.Contains(rr.Header().Get("HX-Trigger"), "entries:changed") {
				t.Errorf("missing entries:changed trigger: %q", rr.Header().Get("HX-Trigger"))
			}
		})
	}
	if _, ok := env.store.get(101); !ok {
		t.Fatal("plain form entry was not stored")
	}
	if e, _ := env.store.get(102); !e.Date.Equal(day(10)) {
		t.Errorf("default date = %v, want today", e.Date)
	}
}

func TestCreateEntryUsesPathCategoryAndSanitizes(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/entries/Travel/", url.Values{
		"amount":  {"12"},
		"comment": {"<b>train</b>"},
		"tags":    {"work, <i>trip</i>"},
	}, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/entries/Travel/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	e, ok := env.store.get(101)
	if !ok {
		t.Fatal("entry not stored")
	}
	if e.Category != "Travel" || e.Comment != "train" || strings.Join(e.Tags, ",") != "work,trip" {
		t.Errorf("stored %+v", e)
	}
}

func TestEntryDetailAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)

	if rr := env.do(t, http.MethodGet, "/entry/3/", nil, nil); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "dinner") {
		t.Fatalf("detail status=%d", rr.Code)
	}
	for _, path := range []string{"/entry/99/", "/entry/abc/"} {
		if rr := env.do(t, http.MethodGet, path, nil, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s status=%d, want 404", path, rr.Code)
		}
	}

	rr := env.do(t, http.MethodPost, "/entry/3/delete", url.Values{}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if _, ok := env.store.get(3); ok {
		t.Error("entry 3 still stored")
	}
	if rr := env.do(t, http.MethodPost, "/entry/3/delete", url.Values{}, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d, want 404", rr.Code)
	}
}

func TestUpdatesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{"missing field", url.Values{"other": {"x"}}, http.StatusBadRequest},
		{"bad json", url.Values{"updates": {"{"}}, http.StatusBadRequest},
		{"too many", url.Values{"updates": {"{}", "{}"}}, http.StatusBadRequest},
		{"unknown deletion", url.Values{"updates": {`{"deletions":[42],"edits":[]}`}}, http.StatusBadRequest},
		{"edit without id", url.Values{"updates": {`{"deletions":[],"edits":[{"amount":"1","date":"2024-06-01","category":"A"}]}`}}, http.StatusBadRequest},
		{"valid", url.Values{"updates": {`{"deletions":["2"],"edits":[{"id":1,"amount":"9","date":"2024-06-01","category":"Food","tags":"a,b","comment":""}]}`}}, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/updates/", tt.form, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}

	if _, ok := env.store.get(2); ok {
		t.Error("entry 2 should be deleted")
	}
	if e, _ := env.store.get(1); e.Amount != 9 || len(e.Tags) != 2 {
		t.Errorf("entry 1 = %+v", e)
	}
}

func TestUpdatesEndpointStorageFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.failApply = errors.New("disk full")

	rr := env.do(t, http.MethodPost, "/updates/", url.Values{"updates": {`{"deletions":[1]}`}}, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
}

func TestChartsPages(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/charts/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("charts status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, want := range []string{"By category", "Food", `class="calendar"`} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("charts body missing %q", want)
		}
	}
	if rr := env.do(t, http.MethodGet, "/charts/2weeks/", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("windowed charts status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/charts/someday/", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("bad window status=%d, want 404", rr.Code)
	}
}

func TestChartsAPI(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/charts", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var views charts.Views
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []core.CategoryAmount{{Name: "Food", Amount: 6}, {Name: "Fun", Amount: 3}}
	if len(views.Breakdown) != 2 || views.Breakdown[0] != want[0] || views.Breakdown[1] != want[1] {
		t.Errorf("breakdown = %+v, want %+v", views.Breakdown, want)
	}
	if len(views.Series.DailyTotal) != 2 {
		t.Errorf("daily totals = %+v", views.Series.DailyTotal)
	}

	if rr := env.do(t, http.MethodGet, "/api/charts?window=nope", nil, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad window status=%d, want 400", rr.Code)
	}
}

func TestChartsInvalidatedAfterWrite(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/api/charts", nil, nil)
	env.do(t, http.MethodPost, "/entries/", url.Values{"amount": {"10"}, "category": {"Books"}, "date": {"2024-06-03"}}, nil)

	rr := env.do(t, http.MethodGet, "/api/charts", nil, nil)
	var views charts.Views
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views.Breakdown) != 3 || views.Breakdown[0].Name != "Books" {
		t.Errorf("cached views not invalidated: %+v", views.Breakdown)
	}
}

func TestPostRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerMinute: 1}
	})

	form := url.Values{"amount": {"1"}, "category": {"Food"}}
	if rr := env.do(t, http.MethodPost, "/entries/", form, nil); rr.Code != http.StatusSeeOther {
		t.Fatalf("first post status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/entries/", form, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second post status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rr := env.do(t, http.MethodGet, "/entries/", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("get after limit status=%d", rr.Code)
	}
}

func TestCSRFProtection(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.CSRFKey = strings.Repeat("k", 32)
	})

	rr := env.do(t, http.MethodGet, "/entries/", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `name="csrf_token"`) {
		t.Error("form is missing the csrf field")
	}
	rr = env.do(t, http.MethodPost, "/entries/", url.Values{"amount": {"1"}, "category": {"Food"}}, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("post without token status=%d, want 403", rr.Code)
	}
}

func TestInvalidCSRFKey(t *testing.T) {
	store := newMemStore()
	entries := services.NewEntryService(store, nil, time.UTC)
	_, err := NewServer(Options{CSRFKey: "short", Logger: log.New(log.Config{Output: &bytes.Buffer{}})}, entries, nil)
	if err == nil {
		t.Fatal("expected error for short csrf key")
	}
}

func TestProbeRequestsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	if rr := env.do(t, http.MethodGet, "/.env", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("scan path status=%d, want 404", rr.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/static/app.css", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}
