package reporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/monitor"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
)

var generatedAt = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

type stubChecker struct{ report *models.SEOReport }

func (s stubChecker) GenerateReport([]models.PageFacts) *models.SEOReport { return s.report }

type stubRecs []recommend.Recommendation

func (s stubRecs) GetPrioritizedActionPlan(int) []recommend.Recommendation { return s }

type stubPerf performance.Summary

func (s stubPerf) GetPerformanceSummary() performance.Summary { return performance.Summary(s) }

// sampleReport has 12 critical missing_h1 issues and 3 low scoring pages
func sampleReport() *models.SEOReport {
	report := &models.SEOReport{GeneratedAt: generatedAt, OverallScore: 71}
	for i := 0; i < 12; i++ {
		url := fmt.Sprintf("https://example.com/page-%02d", i)
		issues := []models.Issue{{PageURL: url, IssueType: models.IssueMissingH1, Severity: models.SeverityCritical, Description: "Page is missing an H1 heading", AutoFixable: true}}
		score := 80
		if i < 3 {
			issues = append(issues, models.Issue{PageURL: url, IssueType: models.IssueLowWordCount, Severity: models.SeverityWarning, Description: "thin"})
			score = 65 - i*10
		}
		report.HealthChecks = append(report.HealthChecks, models.HealthCheck{PageURL: url, Score: score, Issues: issues})
	}
	report.TotalPages = len(report.HealthChecks)
	report.CriticalIssues = 12
	report.WarningIssues = 3
	report.AutoFixableIssues = 12
	return report
}

func newTestGenerator(mutate func(*Config), opts ...Option) *Generator {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, stubChecker{report: sampleReport()}, opts...)
}

func TestRenderHTML(t *testing.T) {
	g := newTestGenerator(nil,
		WithRecommendations(stubRecs{{Title: "Add Missing H1 Headings", Priority: recommend.PriorityCritical, Impact: recommend.LevelHigh, Effort: recommend.LevelLow}}),
		WithPerformance(stubPerf{GoodPages: 4, PoorPages: 1, AvgLCP: 2300}),
	)

	out, err := g.GenerateDailyReport(context.Background(), nil)
	require.NoError(t, err)

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `id="critical-issues"`)
	assert.Equal(t, 10, strings.Count(out, `<div class="issue">`))
	assert.Contains(t, out, "...and 2 more critical issues")
	assert.Contains(t, out, `id="issue-types"`)
	assert.Contains(t, out, "width: 100%")
	assert.Contains(t, out, `id="attention-pages"`)
	assert.Contains(t, out, "Add Missing H1 Headings")
	assert.Contains(t, out, `id="performance"`)
	assert.Contains(t, out, `id="details"`)

	// pages needing attention are listed lowest score first
	first := strings.Index(out, "<td>https://example.com/page-02</td><td>45</td>")
	second := strings.Index(out, "<td>https://example.com/page-00</td><td>65</td>")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
}

func TestRenderHTMLSectionsGated(t *testing.T) {
	g := newTestGenerator(func(c *Config) {
		c.IncludeRecommendations = false
		c.IncludePerformance = false
		c.IncludeDetails = false
	}, WithRecommendations(stubRecs{{Title: "Hidden"}}), WithPerformance(stubPerf{}))

	out, err := g.GenerateDailyReport(context.Background(), nil)
	require.NoError(t, err)
	assert.NotContains(t, out, `id="recommendations"`)
	assert.NotContains(t, out, `id="performance"`)
	assert.NotContains(t, out, `id="details"`)
}

func TestNewReportViewCaps(t *testing.T) {
	report := &models.SEOReport{}
	for i := 0; i < 15; i++ {
		report.HealthChecks = append(report.HealthChecks, models.HealthCheck{PageURL: fmt.Sprintf("p%d", i), Score: 50 - i})
	}
	view := newReportView(report)
	require.Len(t, view.AttentionPages, maxAttentionPages)
	assert.Equal(t, 36, view.AttentionPages[0].Score)
	assert.Empty(t, view.CriticalIssues)
	assert.Empty(t, view.IssueTypes)
}

func TestNewReportViewTruncatesCriticalDescriptions(t *testing.T) {
	long := strings.Repeat("heading missing ", 20)
	report := &models.SEOReport{HealthChecks: []models.HealthCheck{{
		PageURL: "https://example.com/a",
		Issues:  []models.Issue{{PageURL: "https://example.com/a", IssueType: models.IssueMissingH1, Severity: models.SeverityCritical, Description: long}},
	}}}

	view := newReportView(report)
	require.Len(t, view.CriticalIssues, 1)
	desc := view.CriticalIssues[0].Description
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.LessOrEqual(t, len([]rune(desc)), maxSummaryChars+3)
	assert.Equal(t, long, report.HealthChecks[0].Issues[0].Description)
}

func TestRenderFormats(t *testing.T) {
	g := newTestGenerator(nil)
	report := sampleReport()

	t.Run("json", func(t *testing.T) {
		out, err := g.Render(report, FormatJSON)
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Equal(t, float64(12), doc["criticalIssues"])
		assert.Len(t, doc["healthChecks"], 12)
	})

	t.Run("json without details", func(t *testing.T) {
		out, err := newTestGenerator(func(c *Config) { c.IncludeDetails = false }).Render(report, FormatJSON)
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Nil(t, doc["healthChecks"])
		assert.Equal(t, float64(71), doc["overallScore"])
	})

	t.Run("csv", func(t *testing.T) {
		out, err := g.Render(report, FormatCSV)
		require.NoError(t, err)
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 16)
		assert.Equal(t, csvHeader, records[0])
		assert.Equal(t, []string{"https://example.com/page-00", "65", "missing_h1", "critical", "Page is missing an H1 heading", "true", ""}, records[1])
	})

	t.Run("markdown", func(t *testing.T) {
		out, err := g.Render(report, FormatMarkdown)
		require.NoError(t, err)
		assert.Contains(t, out, "# Daily SEO Report")
		assert.Contains(t, out, "| **Overall score** | **71** |")
		assert.Contains(t, out, "- ...and 2 more")
		assert.Contains(t, out, "## Pages Needing Attention")
	})

	t.Run("pdf falls back to html", func(t *testing.T) {
		out, err := g.Render(report, FormatPDF)
		require.NoError(t, err)
		assert.Contains(t, out, "<!DOCTYPE html>")
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := g.Render(report, "docx")
		assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
	})
}

func TestGenerateDailyReportWithMonitor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	g := New(cfg, monitor.New(monitor.DefaultConfig()))

	out, err := g.GenerateDailyReport(context.Background(), []models.PageFacts{{URL: "https://example.com/"}})
	require.NoError(t, err)
	assert.Contains(t, out, `"missing_h1"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GenerateDailyReport(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name     string
		now      time.Time
		schedule string
		loc      *time.Location
		want     time.Time
	}{
		{"later today", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), "09:00", time.UTC, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"already passed", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), "09:00", time.UTC, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"exactly now", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), "09:00", time.UTC, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"month rollover", time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), "06:30", time.UTC, time.Date(2026, 4, 1, 6, 30, 0, 0, time.UTC)},
		{"timezone", time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC), "09:00", berlin, time.Date(2026, 3, 1, 9, 0, 0, 0, berlin)},
		{"nil location", time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC), "23:59", nil, time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.now, tt.schedule, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}

	for _, bad := range []string{"", "9am", "25:00", "12:60"} {
		_, err := NextRun(time.Now(), bad, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidScheduleTime, bad)
	}
}

func TestFileDispatcher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	f := FileDispatcher{Dir: dir, Logger: zerolog.Nop()}
	d := Delivery{Format: FormatMarkdown, Content: "# report", GeneratedAt: generatedAt}

	require.NoError(t, f.Dispatch(context.Background(), d))
	path := filepath.Join(dir, "seo-report-2026-09-01.md")
	assert.Equal(t, path, f.Path(d))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# report", string(data))

	assert.ErrorIs(t, FileDispatcher{}.Dispatch(context.Background(), d), ErrEmptyPath)
}

func TestLogDispatchers(t *testing.T) {
	ctx := context.Background()
	d := Delivery{Format: FormatHTML, Content: "<html>", Report: sampleReport()}
	assert.NoError(t, EmailDispatcher{}.Dispatch(ctx, d))
	assert.NoError(t, EmailDispatcher{Recipients: []string{"ops@example.com"}, Logger: zerolog.Nop()}.Dispatch(ctx, d))
	assert.NoError(t, SlackDispatcher{Webhook: "https://hooks.slack.com/services/x", Logger: zerolog.Nop()}.Dispatch(ctx, d))
	assert.Len(t, DefaultDispatchers(DefaultConfig(), zerolog.Nop()), 3)
}

type recordingDispatcher struct {
	mu    sync.Mutex
	runs  []Delivery
	fired chan struct{}
	err   error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, d Delivery) error {
	r.mu.Lock()
	r.runs = append(r.runs, d)
	r.mu.Unlock()
	if r.fired != nil {
		r.fired <- struct{}{}
	}
	return r.err
}

func TestSchedulerFiresAtScheduledTime(t *testing.T) {
	base := time.Date(2026, 9, 1, 8, 59, 59, int(900*time.Millisecond), time.UTC)
	started := time.Now()
	clock := func() time.Time { return base.Add(time.Since(started)) }

	rec := &recordingDispatcher{fired: make(chan struct{}, 1)}
	s, err := NewScheduler(newTestGenerator(nil), []Dispatcher{rec}, WithSchedulerClock(clock))
	require.NoError(t, err)

	getPages := func(context.Context) ([]models.PageFacts, error) { return nil, nil }
	require.NoError(t, s.Start(context.Background(), getPages))
	assert.ErrorIs(t, s.Start(context.Background(), getPages), ErrSchedulerRunning)

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled report did not run")
	}
	s.Stop()
	s.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "2026-09-01", formatDate(rec.runs[0].GeneratedAt))
	assert.Contains(t, rec.runs[0].Content, "<!DOCTYPE html>")
}

func TestSchedulerStopBeforeFire(t *testing.T) {
	s, err := NewScheduler(newTestGenerator(nil), nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background(), func(context.Context) ([]models.PageFacts, error) { return nil, nil }))

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}

func TestRunOnceErrors(t *testing.T) {
	s, err := NewScheduler(newTestGenerator(nil), nil)
	require.NoError(t, err)

	err = s.RunOnce(context.Background(), func(context.Context) ([]models.PageFacts, error) {
		return nil, errors.New("catalog unavailable")
	})
	assert.ErrorContains(t, err, "catalog unavailable")

	failing := &recordingDispatcher{err: errors.New("smtp down")}
	ok := &recordingDispatcher{}
	s, err = NewScheduler(newTestGenerator(nil), []Dispatcher{failing, ok})
	require.NoError(t, err)
	err = s.RunOnce(context.Background(), func(context.Context) ([]models.PageFacts, error) { return nil, nil })
	assert.ErrorContains(t, err, "smtp down")
	assert.Len(t, ok.runs, 1)
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(newTestGenerator(func(c *Config) { c.ScheduleTime = "noon" }), nil)
	assert.ErrorIs(t, err, ErrInvalidScheduleTime)

	_, err = NewScheduler(newTestGenerator(func(c *Config) { c.Timezone = "Mars/Olympus" }), nil)
	assert.Error(t, err)
}
