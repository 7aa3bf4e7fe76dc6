package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/dashboard"
	"github.com/amosWeiskopf/seowatch/pkg/fetcher"
	"github.com/amosWeiskopf/seowatch/pkg/monitor"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
	"github.com/amosWeiskopf/seowatch/pkg/tracker"
)

var fixedNow = time.Date(2026, 5, 12, 8, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFetcher struct {
	pages map[string]models.PageFacts
	err   error
	calls int
}

func (f *fakeFetcher) FetchAll(_ context.Context, urls []string) ([]fetcher.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	results := make([]fetcher.Result, len(urls))
	for i, u := range urls {
		results[i].URL = u
		if p, ok := f.pages[u]; ok {
			results[i].Page = p
		} else {
			results[i].Err = fetcher.ErrStatus
		}
	}
	return results, nil
}

func page(url string) models.PageFacts {
	return models.PageFacts{
		URL:             url,
		Title:           "Antique Table Polishing in Leeds",
		MetaDescription: strings.Repeat("d", 155),
		H1Tag:           "Antique Table Polishing",
		WordCount:       700,
		InternalLinks:   []string{"/a", "/b", "/c"},
		CanonicalURL:    url,
		SEOScore:        85,
	}
}

func brokenPage(url string) models.PageFacts {
	p := page(url)
	p.H1Tag = ""
	p.CanonicalURL = ""
	return p
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *dashboard.Dashboard) {
	t.Helper()
	cfg := *config.Default()
	cfg.Monitor.AutoFixEnabled = true
	cfg.Monitor.FixRatePerSecond = 1000
	cfg.Server.RateLimit = 0
	dash := dashboard.New(cfg, dashboard.WithClock(func() time.Time { return fixedNow }))
	return New(cfg.Server, dash, opts...), dash
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func analyzeBroken(t *testing.T, s *Server) {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/analyze", pagesRequest{
		Pages: []models.PageFacts{page("https://example.com/ok"), brokenPage("https://example.com/broken")},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAnalyze(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/analyze", pagesRequest{
		Pages: []models.PageFacts{page("https://example.com/ok"), brokenPage("https://example.com/broken")},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	result := decode[dashboard.AnalysisResult](t, w)
	assert.Equal(t, 2, result.Report.TotalPages)
	assert.Equal(t, 2, result.IssueMetrics.OpenIssues)
	assert.NotEmpty(t, result.Recommendations)
	assert.Len(t, result.IssueTrends, dashboard.TrendDays)
}

func TestAnalyze_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"pages": [`},
		{"no pages", `{"pages": []}`},
		{"urls without fetcher", `{"urls": ["https://example.com/"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestAnalyze_FetchesURLs(t *testing.T) {
	ff := &fakeFetcher{pages: map[string]models.PageFacts{
		"https://example.com/broken": brokenPage("https://example.com/broken"),
	}}
	s, _ := newTestServer(t, WithFetcher(ff))

	w := do(t, s, http.MethodPost, "/api/analyze", pagesRequest{
		URLs: []string{"https://example.com/broken", "https://example.com/gone"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, ff.calls)
	result := decode[dashboard.AnalysisResult](t, w)
	assert.Equal(t, 1, result.Report.TotalPages)

	w = do(t, s, http.MethodPost, "/api/analyze", pagesRequest{URLs: []string{"example.com/broken"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid url")
	assert.Equal(t, 1, ff.calls)

	ff.err = context.Canceled
	w = do(t, s, http.MethodPost, "/api/analyze", pagesRequest{URLs: []string{"https://example.com/broken"}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAutoFix(t *testing.T) {
	s, dash := newTestServer(t)
	analyzeBroken(t, s)

	w := do(t, s, http.MethodPost, "/api/autofix", pagesRequest{
		Pages: []models.PageFacts{brokenPage("https://example.com/broken")},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"fixed":2`)
	assert.Len(t, dash.Issues().GetHistory(), 2)
}

func TestBulkUpdateAndRollback(t *testing.T) {
	s, _ := newTestServer(t)
	heading := "Antique Table Restoration"

	w := do(t, s, http.MethodPost, "/api/pages/bulk-update", bulkUpdateRequest{
		Pages:   []models.PageFacts{brokenPage("https://example.com/broken")},
		Updates: []monitor.PageUpdate{{URL: "https://example.com/broken", H1Tag: &heading}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[monitor.BulkUpdateResult](t, w)
	assert.Equal(t, 1, updated.Processed)
	assert.Equal(t, heading, updated.Updated["https://example.com/broken"].H1Tag)

	w = do(t, s, http.MethodPost, "/api/pages/rollback", rollbackRequest{URL: "https://example.com/broken"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rb := decode[monitor.RollbackResult](t, w)
	assert.True(t, rb.Restored)
	assert.Empty(t, rb.Page.H1Tag)

	w = do(t, s, http.MethodPost, "/api/pages/rollback", rollbackRequest{URL: "https://example.com/broken"})
	require.Equal(t, http.StatusOK, w.Code)
	rb = decode[monitor.RollbackResult](t, w)
	assert.False(t, rb.Restored)
	assert.Contains(t, rb.Errors, "https://example.com/broken")

	w = do(t, s, http.MethodPost, "/api/pages/bulk-update", gin.H{"pages": []models.PageFacts{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/api/pages/rollback", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRollback_Disabled(t *testing.T) {
	cfg := *config.Default()
	cfg.Monitor.RollbackEnabled = false
	cfg.Server.RateLimit = 0
	s := New(cfg.Server, dashboard.New(cfg))

	w := do(t, s, http.MethodPost, "/api/pages/rollback", rollbackRequest{URL: "https://example.com/broken"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rb := decode[monitor.RollbackResult](t, w)
	assert.False(t, rb.Restored)
	assert.Equal(t, "rollback is disabled", rb.Errors[monitor.ErrKeyRollback])
}

func TestIssues(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/issues", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	analyzeBroken(t, s)

	all := decode[[]tracker.TrackedIssue](t, do(t, s, http.MethodGet, "/api/issues", nil))
	require.Len(t, all, 2)

	critical := decode[[]tracker.TrackedIssue](t, do(t, s, http.MethodGet, "/api/issues?severity=critical", nil))
	require.Len(t, critical, 1)
	assert.Equal(t, models.IssueMissingH1, critical[0].IssueType)

	byType := decode[[]tracker.TrackedIssue](t, do(t, s, http.MethodGet, "/api/issues?type=missing_h1,missing_canonical", nil))
	assert.Len(t, byType, 2)

	none := decode[[]tracker.TrackedIssue](t, do(t, s, http.MethodGet, "/api/issues?page=https://example.com/ok", nil))
	assert.Empty(t, none)

	w = do(t, s, http.MethodGet, "/api/issues?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/issues/"+all[0].ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodGet, "/api/issues/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueMetricsAndTrends(t *testing.T) {
	s, _ := newTestServer(t)
	analyzeBroken(t, s)

	metrics := decode[tracker.IssueMetrics](t, do(t, s, http.MethodGet, "/api/issues/metrics", nil))
	assert.Equal(t, 2, metrics.TotalIssues)
	assert.Equal(t, 1, metrics.CriticalIssues)

	trends := decode[[]tracker.TrendPoint](t, do(t, s, http.MethodGet, "/api/issues/trends?days=7", nil))
	require.Len(t, trends, 7)
	assert.Equal(t, 2, trends[6].NewIssues)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/issues/trends?days=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/issues/trends?days=x", nil).Code)
}

func TestExportIssues(t *testing.T) {
	s, _ := newTestServer(t)
	analyzeBroken(t, s)

	w := do(t, s, http.MethodGet, "/api/issues/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 3)

	w = do(t, s, http.MethodGet, "/api/issues/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"issues"`)

	w = do(t, s, http.MethodGet, "/api/issues/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueMutations(t *testing.T) {
	s, dash := newTestServer(t)
	analyzeBroken(t, s)
	issues := dash.Issues().GetIssues(tracker.IssueFilter{})
	require.Len(t, issues, 2)
	id := issues[0].ID

	w := do(t, s, http.MethodPatch, "/api/issues/"+id+"/status", statusRequest{Status: "in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, tracker.StatusInProgress, decode[tracker.TrackedIssue](t, w).Status)

	w = do(t, s, http.MethodPatch, "/api/issues/"+id+"/status", statusRequest{Status: "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/issues/"+id+"/notes", noteRequest{Note: "checked the template"})
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[tracker.TrackedIssue](t, w).Notes
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "checked the template")

	w = do(t, s, http.MethodPost, "/api/issues/"+id+"/tags", tagsRequest{Tags: []string{"sprint-12"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[tracker.TrackedIssue](t, w).Tags, "sprint-12")

	w = do(t, s, http.MethodPost, "/api/issues/"+id+"/tags", tagsRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPut, "/api/issues/"+id+"/assignee", assigneeRequest{AssignedTo: "dana"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dana", decode[tracker.TrackedIssue](t, w).AssignedTo)

	w = do(t, s, http.MethodPatch, "/api/issues/"+id+"/status", statusRequest{Status: "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, dash.Issues().GetHistory(), 1)

	// resolved issues leave the registry
	w = do(t, s, http.MethodPost, "/api/issues/"+id+"/notes", noteRequest{Note: "late"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecommendations(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/recommendations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	analyzeBroken(t, s)

	recs := decode[[]recommend.Recommendation](t, do(t, s, http.MethodGet, "/api/recommendations", nil))
	require.NotEmpty(t, recs)

	critical := decode[[]recommend.Recommendation](t, do(t, s, http.MethodGet, "/api/recommendations?priority=critical", nil))
	for _, r := range critical {
		assert.Equal(t, recommend.PriorityCritical, r.Priority)
	}

	plan := decode[[]recommend.Recommendation](t, do(t, s, http.MethodGet, "/api/action-plan?limit=1", nil))
	require.Len(t, plan, 1)

	w = do(t, s, http.MethodPatch, "/api/recommendations/"+plan[0].ID+"/status", statusRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, recommend.StatusCompleted, decode[recommend.Recommendation](t, w).ImplementationStatus)

	next := decode[[]recommend.Recommendation](t, do(t, s, http.MethodGet, "/api/action-plan?limit=1", nil))
	require.Len(t, next, 1)
	assert.NotEqual(t, plan[0].ID, next[0].ID)

	assert.Equal(t, http.StatusNotFound,
		do(t, s, http.MethodPatch, "/api/recommendations/nope/status", statusRequest{Status: "completed"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, s, http.MethodPatch, "/api/recommendations/"+plan[0].ID+"/status", statusRequest{Status: "later"}).Code)
}

func TestPerformance(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/performance/vitals", performance.CoreWebVitals{
		URL: "https://example.com/ok", LCP: 5000, FID: 50, CLS: 0.05,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Alerts []performance.Alert `json:"alerts"`
	}](t, w)
	require.Len(t, created.Alerts, 1)
	assert.Equal(t, performance.MetricLCP, created.Alerts[0].Metric)

	w = do(t, s, http.MethodPost, "/api/performance/vitals", performance.CoreWebVitals{LCP: 1000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	summary := decode[performance.Summary](t, do(t, s, http.MethodGet, "/api/performance/summary", nil))
	assert.Equal(t, 1, summary.TotalPages)
	assert.Equal(t, 1, summary.PoorPages)
	assert.Equal(t, 1, summary.ActiveAlerts)

	trends := decode[[]performance.CombinedTrendPoint](t, do(t, s, http.MethodGet, "/api/performance/trends?days=3", nil))
	require.Len(t, trends, 1)
	assert.Equal(t, 1, trends[0].VitalsPages)

	issues := decode[[]performance.PageIssues](t, do(t, s, http.MethodGet, "/api/performance/issues", nil))
	require.Len(t, issues, 1)
	assert.True(t, issues[0].HasMetric(performance.MetricLCP))

	w = do(t, s, http.MethodGet, "/api/performance/compare?days=7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	alerts := decode[[]performance.Alert](t, do(t, s, http.MethodGet, "/api/performance/alerts", nil))
	require.Len(t, alerts, 1)

	w = do(t, s, http.MethodPost, "/api/performance/alerts/"+alerts[0].ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodPost, "/api/performance/alerts/nope/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	active := decode[[]performance.Alert](t, do(t, s, http.MethodGet, "/api/performance/alerts", nil))
	assert.Empty(t, active)
	withResolved := decode[[]performance.Alert](t, do(t, s, http.MethodGet, "/api/performance/alerts?include_resolved=true", nil))
	assert.Len(t, withResolved, 1)
}

func TestRateLimit(t *testing.T) {
	cfg := *config.Default()
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 2
	s := New(cfg.Server, dashboard.New(cfg))

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = do(t, s, http.MethodGet, "/api/health", nil).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(recovery(zerolog.Nop()))
	r.GET("/boom", func(*gin.Context) { panic(errors.New("boom")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unexpected error")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := *config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.WriteTimeout = time.Second
	s := New(cfg.Server, dashboard.New(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
