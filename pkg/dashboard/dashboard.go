// Package dashboard wires the health checker, issue tracker, performance
// tracker, recommendation engine and report generator into one facade.
//
// A Dashboard is single-writer: callers serving concurrent requests must
// serialize access themselves.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/internal/store"
	"github.com/amosWeiskopf/seowatch/pkg/monitor"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
	"github.com/amosWeiskopf/seowatch/pkg/reporter"
	"github.com/amosWeiskopf/seowatch/pkg/tracker"
)

// Analysis defaults
const (
	ActionPlanLength = 10
	TrendDays        = 30
)

// Store persists dashboard state between runs
type Store interface {
	SaveSnapshot(ctx context.Context, snap store.Snapshot) error
	LoadSnapshot(ctx context.Context) (store.Snapshot, error)
}

// AnalysisResult is the outcome of a comprehensive analysis run
type AnalysisResult struct {
	AnalyzedAt      time.Time                  `json:"analyzedAt"`
	Report          *models.SEOReport          `json:"report"`
	IssueMetrics    tracker.IssueMetrics       `json:"issueMetrics"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	ActionPlan      []recommend.Recommendation `json:"actionPlan"`
	IssueTrends     []tracker.TrendPoint       `json:"issueTrends"`
	Performance     performance.Summary        `json:"performance"`
	Alerts          []performance.Alert        `json:"alerts"`
}

// Dashboard is the entry point for analysis runs
type Dashboard struct {
	cfg    config.Config
	logger zerolog.Logger
	now    func() time.Time
	store  Store

	monitor *monitor.Monitor
	issues  *tracker.IssueTracker
	perf    *performance.Tracker
	engine  *recommend.Engine
	reports *reporter.Generator
}

// Option configures a Dashboard
type Option func(*Dashboard)

// WithLogger sets the logger shared by every component
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dashboard) { d.logger = logger }
}

// WithClock overrides the time source of every component
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// WithStore attaches persistence
func WithStore(s Store) Option {
	return func(d *Dashboard) { d.store = s }
}

// New builds a dashboard and its components from configuration
func New(cfg config.Config, opts ...Option) *Dashboard {
	d := &Dashboard{
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.monitor = monitor.New(MonitorConfig(cfg),
		monitor.WithLogger(d.logger.With().Str("component", "monitor").Logger()),
		monitor.WithClock(d.now))
	d.issues = tracker.New(
		tracker.WithLogger(d.logger.With().Str("component", "tracker").Logger()),
		tracker.WithClock(d.now))
	d.perf = performance.New(PerformanceConfig(cfg),
		performance.WithLogger(d.logger.With().Str("component", "performance").Logger()),
		performance.WithClock(d.now))
	d.engine = recommend.New(
		recommend.WithLogger(d.logger.With().Str("component", "recommend").Logger()),
		recommend.WithClock(d.now))
	d.reports = reporter.New(ReportConfig(cfg), d.monitor,
		reporter.WithLogger(d.logger.With().Str("component", "reporter").Logger()),
		reporter.WithRecommendations(d.engine),
		reporter.WithPerformance(d.perf))
	return d
}

// MonitorConfig maps application configuration onto the health checker
func MonitorConfig(cfg config.Config) monitor.Config {
	mc := monitor.DefaultConfig()
	if cfg.Monitor.HealthCheckIntervalHours > 0 {
		mc.HealthCheckInterval = time.Duration(cfg.Monitor.HealthCheckIntervalHours) * time.Hour
	}
	mc.AutoFixEnabled = cfg.Monitor.AutoFixEnabled
	mc.BulkUpdateBatchSize = cfg.Monitor.BulkUpdateBatchSize
	mc.RollbackEnabled = cfg.Monitor.RollbackEnabled
	mc.FixRatePerSecond = cfg.Monitor.FixRatePerSecond
	return mc
}

// PerformanceConfig maps application configuration onto the performance tracker
func PerformanceConfig(cfg config.Config) performance.Config {
	th := cfg.Performance.Thresholds
	pc := performance.DefaultConfig()
	pc.Thresholds = performance.Thresholds{
		LCP:      performance.Threshold(th.LCP),
		FID:      performance.Threshold(th.FID),
		CLS:      performance.Threshold(th.CLS),
		SEOScore: performance.Threshold(th.SEOScore),
		LoadTime: performance.Threshold(th.LoadTime),
	}
	if cfg.Performance.MaxSamplesPerPage > 0 {
		pc.MaxSamplesPerPage = cfg.Performance.MaxSamplesPerPage
	}
	if cfg.Performance.MaxAlerts > 0 {
		pc.MaxAlerts = cfg.Performance.MaxAlerts
	}
	pc.AlertsEnabled = cfg.Monitor.AlertingEnabled
	return pc
}

// ReportConfig maps application configuration onto the report generator
func ReportConfig(cfg config.Config) reporter.Config {
	r := cfg.Report
	return reporter.Config{
		Format:                 r.Format,
		IncludeDetails:         r.IncludeDetails,
		IncludeRecommendations: r.IncludeRecommendations,
		IncludePerformance:     r.IncludePerformance,
		ScheduleTime:           r.ScheduleTime,
		Timezone:               r.Timezone,
		OutputDir:              r.OutputDir,
		EmailRecipients:        r.EmailRecipients,
		SlackWebhook:           r.SlackWebhook,
	}
}

// Monitor returns the health checker
func (d *Dashboard) Monitor() *monitor.Monitor { return d.monitor }

// Issues returns the issue tracker
func (d *Dashboard) Issues() *tracker.IssueTracker { return d.issues }

// Performance returns the performance tracker
func (d *Dashboard) Performance() *performance.Tracker { return d.perf }

// Recommendations returns the recommendation engine
func (d *Dashboard) Recommendations() *recommend.Engine { return d.engine }

// Reports returns the report generator
func (d *Dashboard) Reports() *reporter.Generator { return d.reports }

// Load restores persisted state. A store holding no snapshot leaves the
// dashboard empty.
func (d *Dashboard) Load(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	snap, err := d.store.LoadSnapshot(ctx)
	if errors.Is(err, store.ErrNotFound) {
		d.logger.Debug().Msg("no stored state")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	d.issues.Restore(snap.Issues)
	d.perf.Restore(snap.Performance)
	d.engine.Restore(snap.Recommendations)
	d.logger.Info().
		Int("issues", len(snap.Issues.Issues)).
		Int("recommendations", len(snap.Recommendations)).
		Msg("state restored")
	return nil
}

// Save persists the current state when a store is attached
func (d *Dashboard) Save(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	snap := store.Snapshot{
		Issues:          d.issues.State(),
		Performance:     d.perf.State(),
		Recommendations: d.engine.State(),
	}
	if err := d.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// PerformComprehensiveAnalysis runs the health checks, updates the issue
// registry, records an SEO performance sample per page and regenerates the
// recommendations.
func (d *Dashboard) PerformComprehensiveAnalysis(ctx context.Context, pages []models.PageFacts) (*AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	at := d.now()

	report := d.monitor.GenerateReport(pages)
	metrics := d.issues.UpdateIssues(report.HealthChecks)

	alerts := []performance.Alert{}
	byURL := make(map[string]models.PageFacts, len(pages))
	for _, p := range pages {
		byURL[p.URL] = p
	}
	for _, hc := range report.HealthChecks {
		page := byURL[hc.PageURL]
		alerts = append(alerts, d.perf.RecordSEOPerformance(performance.SEOPerformance{
			URL:         hc.PageURL,
			Timestamp:   at,
			SEOScore:    page.SEOScore,
			HealthScore: hc.Score,
			LoadTime:    page.LoadTime,
			WordCount:   page.WordCount,
			IssueCount:  len(hc.Issues),
		})...)
	}

	recs := d.engine.Generate(report, &metrics, d.perf)
	result := &AnalysisResult{
		AnalyzedAt:      at,
		Report:          report,
		IssueMetrics:    metrics,
		Recommendations: recs,
		ActionPlan:      d.engine.GetPrioritizedActionPlan(ActionPlanLength),
		IssueTrends:     d.issues.GetIssueTrends(TrendDays),
		Performance:     d.perf.GetPerformanceSummary(),
		Alerts:          alerts,
	}

	d.logger.Info().
		Int("pages", report.TotalPages).
		Int("score", report.OverallScore).
		Int("open_issues", metrics.OpenIssues).
		Int("recommendations", len(recs)).
		Msg("analysis completed")

	if err := d.Save(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// RecordCoreWebVitals stores a browser-measured sample and returns the alerts it raised
func (d *Dashboard) RecordCoreWebVitals(ctx context.Context, sample performance.CoreWebVitals) ([]performance.Alert, error) {
	alerts := d.perf.RecordCoreWebVitals(sample)
	if err := d.Save(ctx); err != nil {
		return alerts, err
	}
	return alerts, nil
}

// AutoFix remediates the auto-fixable issues detected on the pages and
// records every attempt against the matching tracked issue
func (d *Dashboard) AutoFix(ctx context.Context, pages []models.PageFacts) (monitor.FixResult, error) {
	checks := d.monitor.PerformBulkHealthCheck(pages)
	var issues []models.Issue
	for _, hc := range checks {
		issues = append(issues, hc.Issues...)
	}

	result := d.monitor.AutoFixIssues(ctx, pages, issues)
	at := d.now()
	for _, applied := range result.Applied {
		tracked, ok := d.issues.FindByKey(applied.Issue.Key())
		if !ok {
			continue
		}
		attempt := tracker.ResolutionAttempt{
			Timestamp:   at,
			Method:      tracker.MethodAutoFix,
			Description: fmt.Sprintf("Auto-fix %s", applied.Issue.IssueType),
			Success:     applied.Success,
			PerformedBy: tracker.SystemActor,
		}
		if !applied.Success {
			attempt.ErrorMessage = applied.Message
		}
		d.issues.RecordResolutionAttempt(tracked.ID, attempt)
	}

	if err := d.Save(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// BulkUpdate applies field patches to the pages. The previous facts of every
// updated page are kept for Rollback when rollback is enabled.
func (d *Dashboard) BulkUpdate(ctx context.Context, pages []models.PageFacts, updates []monitor.PageUpdate) monitor.BulkUpdateResult {
	return d.monitor.BulkUpdate(ctx, pages, updates)
}

// Rollback returns the facts a page had before its latest fix or update
func (d *Dashboard) Rollback(url string) monitor.RollbackResult {
	result := d.monitor.Rollback(url)
	if result.Restored {
		d.logger.Info().Str("page", url).Msg("page rolled back")
	}
	return result
}

// HealthCheckInterval is the configured time between watched analysis runs
func (d *Dashboard) HealthCheckInterval() time.Duration {
	return d.monitor.Config().HealthCheckInterval
}

// Watch runs the analysis now and then every interval until ctx is done.
// A failed run is logged and does not stop the loop.
func (d *Dashboard) Watch(ctx context.Context, interval time.Duration, pages func(context.Context) ([]models.PageFacts, error), onResult func(*AnalysisResult)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid watch interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.watchRun(ctx, pages, onResult)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Dashboard) watchRun(ctx context.Context, pages func(context.Context) ([]models.PageFacts, error), onResult func(*AnalysisResult)) {
	loaded, err := pages(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("watched run skipped: pages unavailable")
		return
	}
	result, err := d.PerformComprehensiveAnalysis(ctx, loaded)
	if err != nil {
		d.logger.Error().Err(err).Msg("watched analysis failed")
	}
	if result != nil && onResult != nil {
		onResult(result)
	}
}

// GenerateReport renders the daily report for the pages
func (d *Dashboard) GenerateReport(ctx context.Context, pages []models.PageFacts) (string, error) {
	return d.reports.GenerateDailyReport(ctx, pages)
}

// NewScheduler builds the daily report scheduler with the configured dispatchers
func (d *Dashboard) NewScheduler() (*reporter.Scheduler, error) {
	logger := d.logger.With().Str("component", "scheduler").Logger()
	return reporter.NewScheduler(d.reports,
		reporter.DefaultDispatchers(d.reports.Config(), logger),
		reporter.WithSchedulerLogger(logger),
		reporter.WithSchedulerClock(d.now))
}
