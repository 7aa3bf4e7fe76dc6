// Package monitor implements the page health checker: issue detection,
// health scoring, bulk reports and the auto-fix / bulk-update bookkeeping.
package monitor

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Score deductions per issue severity
const (
	criticalPenalty = 20
	warningPenalty  = 10
	infoPenalty     = 5
)

// Config holds health checker configuration
type Config struct {
	HealthCheckInterval time.Duration
	AutoFixEnabled      bool
	BulkUpdateBatchSize int
	RollbackEnabled     bool
	FixRatePerSecond    float64

	MinWordCount       int
	MinInternalLinks   int
	MetaDescriptionMin int
	MetaDescriptionMax int
	MinSEOScore        float64
}

// DefaultConfig returns the default health checker configuration
func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 24 * time.Hour,
		AutoFixEnabled:      false,
		BulkUpdateBatchSize: 10,
		RollbackEnabled:     true,
		FixRatePerSecond:    20,
		MinWordCount:        300,
		MinInternalLinks:    3,
		MetaDescriptionMin:  150,
		MetaDescriptionMax:  160,
		MinSEOScore:         50,
	}
}

// Monitor performs page health checks
type Monitor struct {
	config  Config
	logger  zerolog.Logger
	now     func() time.Time
	fixer   Fixer
	limiter *rate.Limiter

	mu        sync.Mutex
	snapshots map[string][]models.PageFacts
}

// Option configures a Monitor
type Option func(*Monitor)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithFixer replaces the default remediation routine
func WithFixer(f Fixer) Option {
	return func(m *Monitor) { m.fixer = f }
}

// New creates a new Monitor instance
func New(config Config, opts ...Option) *Monitor {
	if config.BulkUpdateBatchSize <= 0 {
		config.BulkUpdateBatchSize = 1
	}
	if config.FixRatePerSecond <= 0 {
		config.FixRatePerSecond = DefaultConfig().FixRatePerSecond
	}
	m := &Monitor{
		config:    config,
		logger:    zerolog.Nop(),
		now:       time.Now,
		snapshots: make(map[string][]models.PageFacts),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fixer == nil {
		m.fixer = DefaultFixer{MetaMin: config.MetaDescriptionMin, MetaMax: config.MetaDescriptionMax}
	}
	m.limiter = rate.NewLimiter(rate.Limit(config.FixRatePerSecond), config.BulkUpdateBatchSize)
	return m
}

// Config returns the monitor configuration
func (m *Monitor) Config() Config {
	return m.config
}

// PerformHealthCheck detects the issues on one page and scores it
func (m *Monitor) PerformHealthCheck(page models.PageFacts) models.HealthCheck {
	issues := m.detectIssues(page)
	return models.HealthCheck{
		PageURL:         page.URL,
		Timestamp:       m.now(),
		Issues:          issues,
		Score:           CalculateScore(issues),
		Recommendations: pageRecommendations(issues),
	}
}

// PerformBulkHealthCheck runs the health check on every page independently
func (m *Monitor) PerformBulkHealthCheck(pages []models.PageFacts) []models.HealthCheck {
	checks := make([]models.HealthCheck, 0, len(pages))
	for _, page := range pages {
		checks = append(checks, m.PerformHealthCheck(page))
	}
	return checks
}

// GenerateReport runs a bulk health check and aggregates the results
func (m *Monitor) GenerateReport(pages []models.PageFacts) *models.SEOReport {
	report := &models.SEOReport{
		GeneratedAt:  m.now(),
		TotalPages:   len(pages),
		HealthChecks: m.PerformBulkHealthCheck(pages),
	}

	total := 0
	for _, hc := range report.HealthChecks {
		total += hc.Score
		for _, issue := range hc.Issues {
			switch issue.Severity {
			case models.SeverityCritical:
				report.CriticalIssues++
			case models.SeverityWarning:
				report.WarningIssues++
			case models.SeverityInfo:
				report.InfoIssues++
			}
			if issue.AutoFixable {
				report.AutoFixableIssues++
			}
		}
	}

	if len(report.HealthChecks) > 0 {
		report.OverallScore = int(math.Round(float64(total) / float64(len(report.HealthChecks))))
	} else {
		report.OverallScore = 100
	}
	report.Recommendations = siteRecommendations(report)

	m.logger.Info().
		Int("pages", report.TotalPages).
		Int("score", report.OverallScore).
		Int("critical", report.CriticalIssues).
		Int("warning", report.WarningIssues).
		Msg("health report generated")

	return report
}

// CalculateScore deducts a fixed penalty per issue from 100, floored at 0
func CalculateScore(issues []models.Issue) int {
	score := 100
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			score -= criticalPenalty
		case models.SeverityWarning:
			score -= warningPenalty
		case models.SeverityInfo:
			score -= infoPenalty
		}
	}
	return max(score, 0)
}

// detectIssues applies every detection rule independently
func (m *Monitor) detectIssues(page models.PageFacts) []models.Issue {
	issues := []models.Issue{}

	if strings.TrimSpace(page.H1Tag) == "" {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssueMissingH1,
			Severity:    models.SeverityCritical,
			Description: "Page is missing an H1 heading",
			AutoFixable: true,
			FixAction:   "Add an H1 heading derived from the page title",
		})
	}

	if page.WordCount < m.config.MinWordCount {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssueLowWordCount,
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("Page has %d words, below the recommended minimum of %d", page.WordCount, m.config.MinWordCount),
		})
	}

	desc := strings.TrimSpace(page.MetaDescription)
	if desc == "" {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssueMissingMeta,
			Severity:    models.SeverityCritical,
			Description: "Page is missing a meta description",
			AutoFixable: true,
			FixAction:   "Generate a meta description from the title and heading",
		})
	} else if n := utf8.RuneCountInString(desc); n < m.config.MetaDescriptionMin || n > m.config.MetaDescriptionMax {
		issues = append(issues, models.Issue{
			PageURL:   page.URL,
			IssueType: models.IssueMissingMeta,
			Severity:  models.SeverityWarning,
			Description: fmt.Sprintf("Meta description is %d characters, outside the %d-%d range",
				n, m.config.MetaDescriptionMin, m.config.MetaDescriptionMax),
			AutoFixable: true,
			FixAction:   "Rewrite the meta description to fit the recommended length",
		})
	}

	if len(page.InternalLinks) < m.config.MinInternalLinks {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssueOrphanPage,
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("Page has %d internal links, fewer than %d", len(page.InternalLinks), m.config.MinInternalLinks),
			AutoFixable: true,
			FixAction:   "Link this page from related service pages",
		})
	}

	if strings.TrimSpace(page.CanonicalURL) == "" {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssueMissingCanonical,
			Severity:    models.SeverityInfo,
			Description: "Page has no canonical URL",
			AutoFixable: true,
			FixAction:   "Set the canonical URL to the page URL",
		})
	}

	if page.SEOScore < m.config.MinSEOScore {
		issues = append(issues, models.Issue{
			PageURL:     page.URL,
			IssueType:   models.IssuePoorKeywordDensity,
			Severity:    models.SeverityWarning,
			Description: fmt.Sprintf("SEO score %.0f is below %.0f", page.SEOScore, m.config.MinSEOScore),
		})
	}

	return issues
}

// pageRecommendations turns issues into one actionable line each
func pageRecommendations(issues []models.Issue) []string {
	recs := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.FixAction != "" {
			recs = append(recs, issue.FixAction)
			continue
		}
		recs = append(recs, issue.Description)
	}
	return recs
}

// siteRecommendations summarizes what to work on across the whole report
func siteRecommendations(report *models.SEOReport) []string {
	var recs []string
	if report.CriticalIssues > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d critical issues first; they block indexing quality", report.CriticalIssues))
	}
	if report.AutoFixableIssues > 0 {
		recs = append(recs, fmt.Sprintf("%d issues can be fixed automatically", report.AutoFixableIssues))
	}
	if report.WarningIssues > 0 {
		recs = append(recs, fmt.Sprintf("Review %d warnings for content and linking improvements", report.WarningIssues))
	}
	if report.OverallScore < 70 && report.TotalPages > 0 {
		recs = append(recs, "Overall score is below 70; schedule a site-wide SEO review")
	}
	return recs
}
