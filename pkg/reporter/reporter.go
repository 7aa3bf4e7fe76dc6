// Package reporter renders health reports in several formats and delivers
// them on a daily schedule.
package reporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

// Supported report formats
const (
	FormatHTML     = "html"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

const (
	maxCriticalShown  = 10
	maxSummaryChars   = 160
	maxIssueTypeBars  = 10
	maxAttentionPages = 10
	attentionScore    = 70
)

// Config holds report generation and delivery settings
type Config struct {
	Format                 string
	IncludeDetails         bool
	IncludeRecommendations bool
	IncludePerformance     bool
	ScheduleTime           string
	Timezone               string
	OutputDir              string
	EmailRecipients        []string
	SlackWebhook           string
}

// DefaultConfig returns the default report configuration
func DefaultConfig() Config {
	return Config{
		Format:                 FormatHTML,
		IncludeDetails:         true,
		IncludeRecommendations: true,
		IncludePerformance:     true,
		ScheduleTime:           "09:00",
		Timezone:               "UTC",
		OutputDir:              "reports",
	}
}

// HealthChecker produces the aggregated report a render is based on
type HealthChecker interface {
	GenerateReport(pages []models.PageFacts) *models.SEOReport
}

// RecommendationSource supplies the action plan embedded in reports
type RecommendationSource interface {
	GetPrioritizedActionPlan(n int) []recommend.Recommendation
}

// PerformanceSource supplies the performance summary embedded in reports
type PerformanceSource interface {
	GetPerformanceSummary() performance.Summary
}

// Generator handles report generation in various formats
type Generator struct {
	config  Config
	checker HealthChecker
	recs    RecommendationSource
	perf    PerformanceSource
	logger  zerolog.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithRecommendations embeds the action plan when recommendations are enabled
func WithRecommendations(src RecommendationSource) Option {
	return func(g *Generator) { g.recs = src }
}

// WithPerformance embeds the performance summary when performance is enabled
func WithPerformance(src PerformanceSource) Option {
	return func(g *Generator) { g.perf = src }
}

// New creates a new Generator instance
func New(config Config, checker HealthChecker, opts ...Option) *Generator {
	if config.Format == "" {
		config.Format = FormatHTML
	}
	g := &Generator{
		config:  config,
		checker: checker,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the generator configuration
func (g *Generator) Config() Config {
	return g.config
}

// GenerateDailyReport runs the health checker over pages and renders the
// result in the configured format
func (g *Generator) GenerateDailyReport(ctx context.Context, pages []models.PageFacts) (string, error) {
	out, _, err := g.generate(ctx, pages)
	return out, err
}

func (g *Generator) generate(ctx context.Context, pages []models.PageFacts) (string, *models.SEOReport, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	report := g.checker.GenerateReport(pages)
	out, err := g.Render(report, g.config.Format)
	if err != nil {
		return "", report, err
	}
	g.logger.Info().Str("format", g.config.Format).Int("pages", report.TotalPages).Msg("report generated")
	return out, report, nil
}

// Render formats an existing report
func (g *Generator) Render(report *models.SEOReport, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return g.generateJSON(report)
	case FormatHTML:
		return g.generateHTML(report)
	case FormatMarkdown:
		return g.generateMarkdown(report)
	case FormatCSV:
		return g.generateCSV(report)
	case FormatPDF:
		g.logger.Warn().Msg("pdf rendering is not available, falling back to html")
		return g.generateHTML(report)
	default:
		return "", fmt.Errorf("report format %q: %w", format, models.ErrUnsupportedFormat)
	}
}

// Extension returns the file extension used for a format
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "md"
	default:
		return "html"
	}
}

func (g *Generator) actionPlan() []recommend.Recommendation {
	if !g.config.IncludeRecommendations || g.recs == nil {
		return nil
	}
	return g.recs.GetPrioritizedActionPlan(recommend.DefaultActionPlanLength)
}

func (g *Generator) performanceSummary() *performance.Summary {
	if !g.config.IncludePerformance || g.perf == nil {
		return nil
	}
	summary := g.perf.GetPerformanceSummary()
	return &summary
}

type jsonReport struct {
	*models.SEOReport
	ActionPlan  []recommend.Recommendation `json:"actionPlan,omitempty"`
	Performance *performance.Summary       `json:"performance,omitempty"`
}

// generateJSON creates a JSON formatted report
func (g *Generator) generateJSON(report *models.SEOReport) (string, error) {
	doc := jsonReport{
		SEOReport:   report,
		ActionPlan:  g.actionPlan(),
		Performance: g.performanceSummary(),
	}
	if !g.config.IncludeDetails {
		trimmed := *report
		trimmed.HealthChecks = nil
		doc.SEOReport = &trimmed
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

var csvHeader = []string{"page_url", "score", "issue_type", "severity", "description", "auto_fixable", "fix_action"}

// generateCSV writes one row per issue, and one row for each page without issues
func (g *Generator) generateCSV(report *models.SEOReport) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{csvHeader}
	for _, hc := range report.HealthChecks {
		score := strconv.Itoa(hc.Score)
		if len(hc.Issues) == 0 {
			rows = append(rows, []string{hc.PageURL, score, "", "", "", "", ""})
			continue
		}
		for _, issue := range hc.Issues {
			rows = append(rows, []string{
				hc.PageURL,
				score,
				string(issue.IssueType),
				string(issue.Severity),
				issue.Description,
				strconv.FormatBool(issue.AutoFixable),
				issue.FixAction,
			})
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.String(), nil
}

// generateMarkdown creates a Markdown formatted report
func (g *Generator) generateMarkdown(report *models.SEOReport) (string, error) {
	var buf bytes.Buffer
	view := newReportView(report)

	fmt.Fprintf(&buf, "# Daily SEO Report\n\n")
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", report.GeneratedAt.Format("January 2, 2006 15:04 MST"))

	fmt.Fprintf(&buf, "## Summary\n\n")
	fmt.Fprintf(&buf, "| Metric | Value |\n")
	fmt.Fprintf(&buf, "|--------|-------|\n")
	fmt.Fprintf(&buf, "| Pages analyzed | %d |\n", report.TotalPages)
	fmt.Fprintf(&buf, "| Critical issues | %d |\n", report.CriticalIssues)
	fmt.Fprintf(&buf, "| Warnings | %d |\n", report.WarningIssues)
	fmt.Fprintf(&buf, "| Info | %d |\n", report.InfoIssues)
	fmt.Fprintf(&buf, "| Auto-fixable | %d |\n", report.AutoFixableIssues)
	fmt.Fprintf(&buf, "| **Overall score** | **%d** |\n\n", report.OverallScore)

	if len(view.CriticalIssues) > 0 {
		fmt.Fprintf(&buf, "## Critical Issues\n\n")
		for _, issue := range view.CriticalIssues {
			fmt.Fprintf(&buf, "- **%s** %s: %s\n", issue.IssueType, issue.PageURL, issue.Description)
		}
		if view.MoreCritical > 0 {
			fmt.Fprintf(&buf, "- ...and %d more\n", view.MoreCritical)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(view.IssueTypes) > 0 {
		fmt.Fprintf(&buf, "## Most Common Issues\n\n")
		for _, bar := range view.IssueTypes {
			fmt.Fprintf(&buf, "- %s: %d\n", bar.IssueType, bar.Count)
		}
		fmt.Fprintf(&buf, "\n")
	}

	if len(view.AttentionPages) > 0 {
		fmt.Fprintf(&buf, "## Pages Needing Attention\n\n")
		for _, hc := range view.AttentionPages {
			fmt.Fprintf(&buf, "- %s (score %d, %d issues)\n", hc.PageURL, hc.Score, len(hc.Issues))
		}
		fmt.Fprintf(&buf, "\n")
	}

	if recs := g.actionPlan(); len(recs) > 0 {
		fmt.Fprintf(&buf, "## Recommendations\n\n")
		for i, rec := range recs {
			fmt.Fprintf(&buf, "### %d. %s\n", i+1, rec.Title)
			fmt.Fprintf(&buf, "- **Priority:** %s\n", rec.Priority)
			fmt.Fprintf(&buf, "- **Category:** %s\n", rec.Category)
			fmt.Fprintf(&buf, "- **Impact:** %s\n", rec.Impact)
			fmt.Fprintf(&buf, "- **Effort:** %s\n", rec.Effort)
			fmt.Fprintf(&buf, "- **Description:** %s\n", rec.Description)
			fmt.Fprintf(&buf, "\n")
		}
	}

	if summary := g.performanceSummary(); summary != nil {
		fmt.Fprintf(&buf, "## Performance\n\n")
		fmt.Fprintf(&buf, "- Good pages: %d\n", summary.GoodPages)
		fmt.Fprintf(&buf, "- Needs improvement: %d\n", summary.NeedsImprovementPages)
		fmt.Fprintf(&buf, "- Poor pages: %d\n", summary.PoorPages)
		fmt.Fprintf(&buf, "- Active alerts: %d\n\n", summary.ActiveAlerts)
	}

	return buf.String(), nil
}

// issueTypeBar is one row of the issue type breakdown
type issueTypeBar struct {
	IssueType models.IssueType
	Count     int
	Width     int // percent of the most common type
}

// reportView holds the derived sections shared by the html and markdown renderers
type reportView struct {
	Report          *models.SEOReport
	CriticalIssues  []models.Issue
	MoreCritical    int
	IssueTypes      []issueTypeBar
	AttentionPages  []models.HealthCheck
	IncludeDetails  bool
	Recommendations []recommend.Recommendation
	Performance     *performance.Summary
}

func newReportView(report *models.SEOReport) reportView {
	view := reportView{Report: report}

	counts := make(map[models.IssueType]int)
	for _, issue := range report.AllIssues() {
		counts[issue.IssueType]++
		if issue.Severity != models.SeverityCritical {
			continue
		}
		if len(view.CriticalIssues) < maxCriticalShown {
			issue.Description = utils.TruncateText(issue.Description, maxSummaryChars)
			view.CriticalIssues = append(view.CriticalIssues, issue)
		} else {
			view.MoreCritical++
		}
	}

	for issueType, count := range counts {
		view.IssueTypes = append(view.IssueTypes, issueTypeBar{IssueType: issueType, Count: count})
	}
	sort.Slice(view.IssueTypes, func(i, j int) bool {
		if view.IssueTypes[i].Count != view.IssueTypes[j].Count {
			return view.IssueTypes[i].Count > view.IssueTypes[j].Count
		}
		return view.IssueTypes[i].IssueType < view.IssueTypes[j].IssueType
	})
	if len(view.IssueTypes) > maxIssueTypeBars {
		view.IssueTypes = view.IssueTypes[:maxIssueTypeBars]
	}
	if len(view.IssueTypes) > 0 {
		top := view.IssueTypes[0].Count
		for i := range view.IssueTypes {
			view.IssueTypes[i].Width = view.IssueTypes[i].Count * 100 / top
		}
	}

	for _, hc := range report.HealthChecks {
		if hc.Score < attentionScore {
			view.AttentionPages = append(view.AttentionPages, hc)
		}
	}
	sort.SliceStable(view.AttentionPages, func(i, j int) bool {
		return view.AttentionPages[i].Score < view.AttentionPages[j].Score
	})
	if len(view.AttentionPages) > maxAttentionPages {
		view.AttentionPages = view.AttentionPages[:maxAttentionPages]
	}
	return view
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
