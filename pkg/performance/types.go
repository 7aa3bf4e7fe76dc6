package performance

import (
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Threshold holds the good and needs-improvement boundaries of one metric.
// For SEO score, higher is better and the boundaries are lower bounds.
type Threshold struct {
	Good             float64 `json:"good"`
	NeedsImprovement float64 `json:"needsImprovement"`
}

// Thresholds groups the boundaries of every tracked metric
type Thresholds struct {
	LCP      Threshold `json:"lcp"`
	FID      Threshold `json:"fid"`
	CLS      Threshold `json:"cls"`
	SEOScore Threshold `json:"seoScore"`
	LoadTime Threshold `json:"loadTime"`
}

// Config holds performance tracker configuration
type Config struct {
	Thresholds        Thresholds
	MaxSamplesPerPage int
	MaxAlerts         int
	AlertsEnabled     bool
}

// DefaultConfig returns the default performance tracker configuration
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			LCP:      Threshold{Good: 2500, NeedsImprovement: 4000},
			FID:      Threshold{Good: 100, NeedsImprovement: 300},
			CLS:      Threshold{Good: 0.1, NeedsImprovement: 0.25},
			SEOScore: Threshold{Good: 80, NeedsImprovement: 60},
			LoadTime: Threshold{Good: 2000, NeedsImprovement: 4000},
		},
		MaxSamplesPerPage: 100,
		MaxAlerts:         500,
		AlertsEnabled:     true,
	}
}

// CoreWebVitals is one browser-measured sample for a page
type CoreWebVitals struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	LCP       float64   `json:"lcp"`
	FID       float64   `json:"fid"`
	CLS       float64   `json:"cls"`
	FCP       float64   `json:"fcp,omitempty"`
	TTFB      float64   `json:"ttfb,omitempty"`
}

// SEOPerformance is one analysis-derived sample for a page
type SEOPerformance struct {
	URL         string    `json:"url"`
	Timestamp   time.Time `json:"timestamp"`
	SEOScore    float64   `json:"seoScore"`
	HealthScore int       `json:"healthScore"`
	LoadTime    float64   `json:"loadTime"`
	WordCount   int       `json:"wordCount"`
	IssueCount  int       `json:"issueCount"`
}

// AlertType classifies an alert by the series that triggered it
type AlertType string

const (
	AlertCoreWebVitals AlertType = "core_web_vitals"
	AlertSEOScore      AlertType = "seo_score"
	AlertLoadTime      AlertType = "load_time"
)

// Metric names
const (
	MetricLCP      = "lcp"
	MetricFID      = "fid"
	MetricCLS      = "cls"
	MetricSEOScore = "seo_score"
	MetricLoadTime = "load_time"
)

// Alert is raised when a sample crosses a needs-improvement boundary
type Alert struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Type      AlertType       `json:"type"`
	Metric    string          `json:"metric"`
	Severity  models.Severity `json:"severity"`
	Value     float64         `json:"value"`
	Threshold float64         `json:"threshold"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Resolved  bool            `json:"resolved"`
}

// VitalsTrendPoint aggregates Core Web Vitals samples of one day
type VitalsTrendPoint struct {
	Date    string  `json:"date"`
	AvgLCP  float64 `json:"avgLcp"`
	AvgFID  float64 `json:"avgFid"`
	AvgCLS  float64 `json:"avgCls"`
	Pages   int     `json:"pages"`
	Samples int     `json:"samples"`
}

// SEOTrendPoint aggregates SEO performance samples of one day
type SEOTrendPoint struct {
	Date         string  `json:"date"`
	AvgSEOScore  float64 `json:"avgSeoScore"`
	AvgLoadTime  float64 `json:"avgLoadTime"`
	AvgWordCount float64 `json:"avgWordCount"`
	Pages        int     `json:"pages"`
	Samples      int     `json:"samples"`
}

// CombinedTrendPoint merges both series for one day
type CombinedTrendPoint struct {
	Date        string  `json:"date"`
	AvgLCP      float64 `json:"avgLcp"`
	AvgFID      float64 `json:"avgFid"`
	AvgCLS      float64 `json:"avgCls"`
	AvgSEOScore float64 `json:"avgSeoScore"`
	AvgLoadTime float64 `json:"avgLoadTime"`
	VitalsPages int     `json:"vitalsPages"`
	SEOPages    int     `json:"seoPages"`
}

// Summary classifies every page by its latest Core Web Vitals sample
type Summary struct {
	TotalPages            int     `json:"totalPages"`
	GoodPages             int     `json:"goodPages"`
	NeedsImprovementPages int     `json:"needsImprovementPages"`
	PoorPages             int     `json:"poorPages"`
	AvgLCP                float64 `json:"avgLcp"`
	AvgFID                float64 `json:"avgFid"`
	AvgCLS                float64 `json:"avgCls"`
	AvgSEOScore           float64 `json:"avgSeoScore"`
	AvgLoadTime           float64 `json:"avgLoadTime"`
	ActiveAlerts          int     `json:"activeAlerts"`
}

// PerformanceIssue is one metric of a page outside its good boundary
type PerformanceIssue struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// PageIssues lists the performance issues of one page
type PageIssues struct {
	URL    string             `json:"url"`
	Issues []PerformanceIssue `json:"issues"`
}

// HasMetric reports whether one of the issues concerns metric
func (p PageIssues) HasMetric(metric string) bool {
	for _, issue := range p.Issues {
		if issue.Metric == metric {
			return true
		}
	}
	return false
}

// PeriodStats holds the metric averages of one comparison window
type PeriodStats struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	AvgLCP      float64   `json:"avgLcp"`
	AvgFID      float64   `json:"avgFid"`
	AvgCLS      float64   `json:"avgCls"`
	AvgSEOScore float64   `json:"avgSeoScore"`
	AvgLoadTime float64   `json:"avgLoadTime"`
	Samples     int       `json:"samples"`
}

// Comparison is a period-over-period view with percentage changes per metric
type Comparison struct {
	Current  PeriodStats        `json:"current"`
	Previous PeriodStats        `json:"previous"`
	Changes  map[string]float64 `json:"changes"`
}

// State is a serializable copy of the tracker series and alerts
type State struct {
	CoreWebVitals  []CoreWebVitals  `json:"coreWebVitals"`
	SEOPerformance []SEOPerformance `json:"seoPerformance"`
	Alerts         []Alert          `json:"alerts"`
}
