// Package recommend turns health reports, issue metrics and performance data
// into prioritized recommendations and an action plan.
package recommend

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/tracker"
)

// Score and volume limits that trigger site-wide recommendations
const (
	metaScoreThreshold     = 80
	linkingScoreThreshold  = 70
	mobileScoreThreshold   = 75
	auditScoreThreshold    = 60
	processIssuesThreshold = 50
)

// DefaultActionPlanLength is the action plan size used for dashboards
const DefaultActionPlanLength = 10

// PerformanceSource provides the pages whose performance needs attention
type PerformanceSource interface {
	GetPerformanceIssues() []performance.PageIssues
}

// Engine generates and keeps recommendations. Every call to Generate adds
// fresh recommendations; earlier ones are kept until cleared.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	logger zerolog.Logger
	now    func() time.Time

	recs  map[string]*Recommendation
	order []string
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a new Engine instance
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: zerolog.Nop(),
		now:    time.Now,
		recs:   make(map[string]*Recommendation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate runs every analysis pass over the report and returns the
// recommendations created by this call. metrics and perf are optional.
func (e *Engine) Generate(report *models.SEOReport, metrics *tracker.IssueMetrics, perf PerformanceSource) []Recommendation {
	if report == nil {
		return []Recommendation{}
	}

	var drafts []Recommendation
	drafts = append(drafts, criticalIssueRecommendations(report)...)
	drafts = append(drafts, contentRecommendations(report)...)
	drafts = append(drafts, technicalRecommendations(report)...)
	if perf != nil {
		drafts = append(drafts, performanceRecommendations(perf)...)
	}
	drafts = append(drafts, metaRecommendations(report)...)
	drafts = append(drafts, linkingRecommendations(report)...)
	drafts = append(drafts, mobileRecommendations(report)...)
	drafts = append(drafts, strategicRecommendations(report, metrics)...)

	now := e.now()
	out := make([]Recommendation, 0, len(drafts))
	for _, d := range drafts {
		rec := d
		rec.ID = uuid.NewString()
		rec.ImplementationStatus = StatusPending
		rec.CreatedAt = now
		e.recs[rec.ID] = &rec
		e.order = append(e.order, rec.ID)
		out = append(out, rec.clone())
	}

	e.logger.Info().Int("generated", len(out)).Int("total", len(e.order)).Msg("recommendations generated")
	return out
}

// GetRecommendations returns the recommendations matching the filter,
// highest priority first
func (e *Engine) GetRecommendations(filter Filter) []Recommendation {
	out := []Recommendation{}
	for _, id := range e.order {
		rec := e.recs[id]
		if len(filter.Priority) > 0 && !slices.Contains(filter.Priority, rec.Priority) {
			continue
		}
		if len(filter.Category) > 0 && !slices.Contains(filter.Category, rec.Category) {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, rec.ImplementationStatus) {
			continue
		}
		out = append(out, rec.clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Weight() > out[j].Priority.Weight()
	})
	return out
}

// GetPrioritizedActionPlan returns up to n pending recommendations ordered by
// priority, then impact, then lowest effort. n <= 0 returns all of them.
func (e *Engine) GetPrioritizedActionPlan(n int) []Recommendation {
	plan := e.GetRecommendations(Filter{Status: []Status{StatusPending}})
	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		if a.Impact.Weight() != b.Impact.Weight() {
			return a.Impact.Weight() > b.Impact.Weight()
		}
		return a.Effort.Weight() < b.Effort.Weight()
	})
	if n > 0 && len(plan) > n {
		plan = plan[:n]
	}
	return plan
}

// UpdateRecommendationStatus overwrites the implementation status
func (e *Engine) UpdateRecommendationStatus(id string, status Status) bool {
	if !status.Valid() {
		return false
	}
	rec, ok := e.recs[id]
	if !ok {
		return false
	}
	rec.ImplementationStatus = status
	return true
}

// GetRecommendation returns a copy of one recommendation
func (e *Engine) GetRecommendation(id string) (Recommendation, bool) {
	rec, ok := e.recs[id]
	if !ok {
		return Recommendation{}, false
	}
	return rec.clone(), true
}

// ClearRecommendations drops every stored recommendation
func (e *Engine) ClearRecommendations() {
	e.recs = make(map[string]*Recommendation)
	e.order = nil
}

// State returns every stored recommendation in creation order
func (e *Engine) State() []Recommendation {
	out := make([]Recommendation, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.recs[id].clone())
	}
	return out
}

// Restore replaces the stored recommendations
func (e *Engine) Restore(recs []Recommendation) {
	e.ClearRecommendations()
	for i := range recs {
		rec := recs[i].clone()
		if _, dup := e.recs[rec.ID]; dup {
			continue
		}
		e.recs[rec.ID] = &rec
		e.order = append(e.order, rec.ID)
	}
}

func pagesWithIssue(report *models.SEOReport, match func(models.Issue) bool) []string {
	var pages []string
	for _, hc := range report.HealthChecks {
		for _, issue := range hc.Issues {
			if match(issue) {
				pages = append(pages, hc.PageURL)
				break
			}
		}
	}
	return pages
}

func allPages(report *models.SEOReport) []string {
	pages := make([]string, 0, len(report.HealthChecks))
	for _, hc := range report.HealthChecks {
		pages = append(pages, hc.PageURL)
	}
	return pages
}

func ofType(t models.IssueType) func(models.Issue) bool {
	return func(i models.Issue) bool { return i.IssueType == t }
}

func criticalIssueRecommendations(report *models.SEOReport) []Recommendation {
	var out []Recommendation

	if pages := pagesWithIssue(report, func(i models.Issue) bool {
		return i.IssueType == models.IssueMissingH1 && i.Severity == models.SeverityCritical
	}); len(pages) > 0 {
		out = append(out, Recommendation{
			Title:         "Add Missing H1 Headings",
			Description:   fmt.Sprintf("%d pages have no H1 heading, which weakens topical relevance for search engines.", len(pages)),
			Priority:      PriorityCritical,
			Impact:        LevelHigh,
			Effort:        LevelLow,
			Category:      CategoryMeta,
			AffectedPages: pages,
			ActionItems: []string{
				"Add exactly one H1 per page",
				"Include the primary service keyword in the H1",
				"Keep the H1 consistent with the page title",
			},
			EstimatedTime:  "1-2 hours",
			ExpectedImpact: "Clearer page topics and better rankings for primary keywords",
		})
	}

	if pages := pagesWithIssue(report, func(i models.Issue) bool {
		return i.IssueType == models.IssueMissingMeta && i.Severity == models.SeverityCritical
	}); len(pages) > 0 {
		out = append(out, Recommendation{
			Title:         "Write Missing Meta Descriptions",
			Description:   fmt.Sprintf("%d pages have no meta description, so search results show arbitrary snippets.", len(pages)),
			Priority:      PriorityCritical,
			Impact:        LevelHigh,
			Effort:        LevelMedium,
			Category:      CategoryMeta,
			AffectedPages: pages,
			ActionItems: []string{
				"Write a unique 150-160 character description per page",
				"Lead with the service and location",
				"End with a clear call to action",
			},
			EstimatedTime:  "2-4 hours",
			ExpectedImpact: "Higher click-through rate from search results",
		})
	}

	if pages := pagesWithIssue(report, ofType(models.IssueOrphanPage)); len(pages) > 0 {
		out = append(out, Recommendation{
			Title:         "Link Orphan Pages",
			Description:   fmt.Sprintf("%d pages have fewer than 3 internal links and are hard for crawlers to reach.", len(pages)),
			Priority:      PriorityHigh,
			Impact:        LevelHigh,
			Effort:        LevelMedium,
			Category:      CategoryLinking,
			AffectedPages: pages,
			ActionItems: []string{
				"Link each page from at least three related pages",
				"Use descriptive anchor text",
				"Add the pages to navigation or hub pages where relevant",
			},
			EstimatedTime:  "2-3 hours",
			ExpectedImpact: "Better crawl coverage and link equity distribution",
		})
	}
	return out
}

func contentRecommendations(report *models.SEOReport) []Recommendation {
	pages := pagesWithIssue(report, ofType(models.IssueLowWordCount))
	if len(pages) == 0 {
		return nil
	}
	return []Recommendation{{
		Title:         "Improve Content Length",
		Description:   fmt.Sprintf("%d pages have thin content below the recommended word count.", len(pages)),
		Priority:      PriorityMedium,
		Impact:        LevelMedium,
		Effort:        LevelHigh,
		Category:      CategoryContent,
		AffectedPages: pages,
		ActionItems: []string{
			"Expand each page to at least 300 words",
			"Answer common customer questions",
			"Describe the process, materials and pricing",
		},
		EstimatedTime:  "1-2 days",
		ExpectedImpact: "More long-tail rankings and stronger topical authority",
	}}
}

func technicalRecommendations(report *models.SEOReport) []Recommendation {
	pages := pagesWithIssue(report, ofType(models.IssueMissingCanonical))
	if len(pages) == 0 {
		return nil
	}
	return []Recommendation{{
		Title:         "Add Canonical URLs",
		Description:   fmt.Sprintf("%d pages have no canonical URL, which risks duplicate indexing.", len(pages)),
		Priority:      PriorityMedium,
		Impact:        LevelMedium,
		Effort:        LevelLow,
		Category:      CategoryTechnical,
		AffectedPages: pages,
		ActionItems: []string{
			"Add a self-referencing canonical link to each page",
			"Point duplicate variants to the preferred URL",
		},
		EstimatedTime:  "1 hour",
		ExpectedImpact: "Consolidated ranking signals on preferred URLs",
	}}
}

func performanceRecommendations(perf PerformanceSource) []Recommendation {
	var pages []string
	for _, p := range perf.GetPerformanceIssues() {
		if p.HasMetric(performance.MetricLCP) || p.HasMetric(performance.MetricLoadTime) {
			pages = append(pages, p.URL)
		}
	}
	if len(pages) == 0 {
		return nil
	}
	sort.Strings(pages)
	return []Recommendation{{
		Title:         "Improve Page Load Performance",
		Description:   fmt.Sprintf("%d pages load slowly or have a poor Largest Contentful Paint.", len(pages)),
		Priority:      PriorityHigh,
		Impact:        LevelHigh,
		Effort:        LevelMedium,
		Category:      CategoryPerformance,
		AffectedPages: pages,
		ActionItems: []string{
			"Compress and lazy-load images",
			"Preload the hero image and critical fonts",
			"Remove render-blocking scripts",
		},
		EstimatedTime:  "1-3 days",
		ExpectedImpact: "Better Core Web Vitals and lower bounce rate",
	}}
}

func metaRecommendations(report *models.SEOReport) []Recommendation {
	var pages []string
	for _, hc := range report.HealthChecks {
		if hc.Score < metaScoreThreshold {
			pages = append(pages, hc.PageURL)
		}
	}
	if len(pages) == 0 {
		return nil
	}
	return []Recommendation{{
		Title:         "Add Social Meta Tags",
		Description:   fmt.Sprintf("%d pages score below %d and lack rich sharing metadata.", len(pages), metaScoreThreshold),
		Priority:      PriorityMedium,
		Impact:        LevelMedium,
		Effort:        LevelLow,
		Category:      CategoryMeta,
		AffectedPages: pages,
		ActionItems: []string{
			"Add Open Graph title, description and image",
			"Add Twitter card tags",
			"Validate previews with social debuggers",
		},
		EstimatedTime:  "2-3 hours",
		ExpectedImpact: "Better looking shares and more referral traffic",
	}}
}

func linkingRecommendations(report *models.SEOReport) []Recommendation {
	if report.OverallScore >= linkingScoreThreshold || report.TotalPages == 0 {
		return nil
	}
	return []Recommendation{{
		Title:         "Strengthen Internal Linking Structure",
		Description:   fmt.Sprintf("The overall score of %d suggests pages are poorly connected.", report.OverallScore),
		Priority:      PriorityMedium,
		Impact:        LevelHigh,
		Effort:        LevelMedium,
		Category:      CategoryLinking,
		AffectedPages: allPages(report),
		ActionItems: []string{
			"Build hub pages per service category",
			"Cross-link related services and locations",
			"Add breadcrumbs",
		},
		EstimatedTime:  "1 day",
		ExpectedImpact: "Faster discovery of new pages and stronger page authority",
	}}
}

func mobileRecommendations(report *models.SEOReport) []Recommendation {
	if report.OverallScore >= mobileScoreThreshold || report.TotalPages == 0 {
		return nil
	}
	return []Recommendation{{
		Title:         "Optimize Mobile Experience",
		Description:   "Most visitors book from phones; low scoring pages usually also underperform on mobile.",
		Priority:      PriorityMedium,
		Impact:        LevelHigh,
		Effort:        LevelMedium,
		Category:      CategoryMobile,
		AffectedPages: allPages(report),
		ActionItems: []string{
			"Check tap target sizes and font legibility",
			"Avoid layout shifts from late-loading images",
			"Test the booking flow on small screens",
		},
		EstimatedTime:  "1-2 days",
		ExpectedImpact: "Better mobile rankings and conversion",
	}}
}

func strategicRecommendations(report *models.SEOReport, metrics *tracker.IssueMetrics) []Recommendation {
	var out []Recommendation

	issues := report.CriticalIssues + report.WarningIssues
	if issues > processIssuesThreshold {
		desc := fmt.Sprintf("%d critical and warning issues point to a process gap rather than isolated mistakes.", issues)
		if metrics != nil {
			desc += fmt.Sprintf(" Tracked resolution rate is %.1f%%.", metrics.ResolutionRate)
		}
		out = append(out, Recommendation{
			Title:         "Establish an SEO Quality Process",
			Description:   desc,
			Priority:      PriorityHigh,
			Impact:        LevelHigh,
			Effort:        LevelHigh,
			Category:      CategoryStrategy,
			AffectedPages: allPages(report),
			ActionItems: []string{
				"Add an SEO checklist to the page publishing workflow",
				"Run health checks before every release",
				"Review issue trends weekly",
			},
			EstimatedTime:  "1 week",
			ExpectedImpact: "Fewer regressions and steady score improvement",
		})
	}

	if report.TotalPages > 0 && report.OverallScore < auditScoreThreshold {
		out = append(out, Recommendation{
			Title:         "Conduct a Comprehensive SEO Audit",
			Description:   fmt.Sprintf("The overall score of %d is below %d.", report.OverallScore, auditScoreThreshold),
			Priority:      PriorityHigh,
			Impact:        LevelHigh,
			Effort:        LevelHigh,
			Category:      CategoryStrategy,
			AffectedPages: allPages(report),
			ActionItems: []string{
				"Audit keyword targeting per page",
				"Review site architecture and URL structure",
				"Benchmark against local competitors",
			},
			EstimatedTime:  "1-2 weeks",
			ExpectedImpact: "A prioritized roadmap for site-wide improvement",
		})
	}
	return out
}
