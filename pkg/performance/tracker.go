// Package performance records Core Web Vitals and SEO performance samples per
// page, raises threshold alerts and aggregates trends and summaries.
//
// A Tracker is a single-writer store and is not safe for concurrent use.
package performance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const dateLayout = "2006-01-02"

// Tracker keeps bounded per-page sample series and an alert history
type Tracker struct {
	config Config
	logger zerolog.Logger
	now    func() time.Time

	vitals map[string]*Series[CoreWebVitals]
	seo    map[string]*Series[SEOPerformance]
	alerts *Ring[*Alert]
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a new Tracker instance
func New(config Config, opts ...Option) *Tracker {
	defaults := DefaultConfig()
	if config.MaxSamplesPerPage <= 0 {
		config.MaxSamplesPerPage = defaults.MaxSamplesPerPage
	}
	if config.MaxAlerts <= 0 {
		config.MaxAlerts = defaults.MaxAlerts
	}
	t := &Tracker{
		config: config,
		logger: zerolog.Nop(),
		now:    time.Now,
		vitals: make(map[string]*Series[CoreWebVitals]),
		seo:    make(map[string]*Series[SEOPerformance]),
		alerts: NewRing[*Alert](config.MaxAlerts),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Thresholds returns the configured metric boundaries
func (t *Tracker) Thresholds() Thresholds {
	return t.config.Thresholds
}

// RecordCoreWebVitals stores a sample and returns the alerts it raised
func (t *Tracker) RecordCoreWebVitals(sample CoreWebVitals) []Alert {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = t.now()
	}
	series, ok := t.vitals[sample.URL]
	if !ok {
		series = newVitalsSeries(t.config.MaxSamplesPerPage)
		t.vitals[sample.URL] = series
	}
	if !series.Push(sample) {
		t.logger.Debug().Str("page", sample.URL).Time("timestamp", sample.Timestamp).Msg("sample older than retained history dropped")
		return nil
	}

	th := t.config.Thresholds
	var raised []Alert
	for _, c := range []struct {
		metric, label, unit string
		value, limit        float64
	}{
		{MetricLCP, "LCP", "ms", sample.LCP, th.LCP.NeedsImprovement},
		{MetricFID, "FID", "ms", sample.FID, th.FID.NeedsImprovement},
		{MetricCLS, "CLS", "", sample.CLS, th.CLS.NeedsImprovement},
	} {
		if c.value > c.limit {
			raised = t.raise(raised, sample.URL, AlertCoreWebVitals, c.metric, models.SeverityCritical, c.value, c.limit, sample.Timestamp,
				fmt.Sprintf("%s of %s%s exceeds threshold of %s%s on %s", c.label, formatValue(c.value), c.unit, formatValue(c.limit), c.unit, sample.URL))
		}
	}
	return raised
}

// RecordSEOPerformance stores a sample and returns the alerts it raised
func (t *Tracker) RecordSEOPerformance(sample SEOPerformance) []Alert {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = t.now()
	}
	series, ok := t.seo[sample.URL]
	if !ok {
		series = newSEOSeries(t.config.MaxSamplesPerPage)
		t.seo[sample.URL] = series
	}
	if !series.Push(sample) {
		t.logger.Debug().Str("page", sample.URL).Time("timestamp", sample.Timestamp).Msg("sample older than retained history dropped")
		return nil
	}

	th := t.config.Thresholds
	var raised []Alert
	if sample.SEOScore < th.SEOScore.NeedsImprovement {
		raised = t.raise(raised, sample.URL, AlertSEOScore, MetricSEOScore, models.SeverityWarning, sample.SEOScore, th.SEOScore.NeedsImprovement, sample.Timestamp,
			fmt.Sprintf("SEO score of %s is below threshold of %s on %s", formatValue(sample.SEOScore), formatValue(th.SEOScore.NeedsImprovement), sample.URL))
	}
	if sample.LoadTime > th.LoadTime.NeedsImprovement {
		raised = t.raise(raised, sample.URL, AlertLoadTime, MetricLoadTime, models.SeverityWarning, sample.LoadTime, th.LoadTime.NeedsImprovement, sample.Timestamp,
			fmt.Sprintf("Load time of %sms exceeds threshold of %sms on %s", formatValue(sample.LoadTime), formatValue(th.LoadTime.NeedsImprovement), sample.URL))
	}
	return raised
}

// raise stores an alert and appends it to raised. Nothing is raised while
// alerting is disabled.
func (t *Tracker) raise(raised []Alert, url string, typ AlertType, metric string, sev models.Severity, value, limit float64, at time.Time, msg string) []Alert {
	if !t.config.AlertsEnabled {
		return raised
	}
	alert := &Alert{
		ID:        uuid.NewString(),
		URL:       url,
		Type:      typ,
		Metric:    metric,
		Severity:  sev,
		Value:     value,
		Threshold: limit,
		Message:   msg,
		Timestamp: at,
	}
	t.alerts.Push(alert)
	t.logger.Warn().Str("page", url).Str("metric", metric).Float64("value", value).Msg(msg)
	return append(raised, *alert)
}

// LatestCoreWebVitals returns the most recent sample for a page
func (t *Tracker) LatestCoreWebVitals(url string) (CoreWebVitals, bool) {
	series, ok := t.vitals[url]
	if !ok {
		return CoreWebVitals{}, false
	}
	return series.Latest()
}

// LatestSEOPerformance returns the most recent sample for a page
func (t *Tracker) LatestSEOPerformance(url string) (SEOPerformance, bool) {
	series, ok := t.seo[url]
	if !ok {
		return SEOPerformance{}, false
	}
	return series.Latest()
}

func newVitalsSeries(capacity int) *Series[CoreWebVitals] {
	return NewSeries(capacity, func(s CoreWebVitals) time.Time { return s.Timestamp })
}

func newSEOSeries(capacity int) *Series[SEOPerformance] {
	return NewSeries(capacity, func(s SEOPerformance) time.Time { return s.Timestamp })
}

// windowStart returns the first instant of a trailing window of days ending today
func (t *Tracker) windowStart(days int) time.Time {
	y, m, d := t.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
}

// GetCoreWebVitalsTrends averages Core Web Vitals per day over the last days
func (t *Tracker) GetCoreWebVitalsTrends(days int) []VitalsTrendPoint {
	if days <= 0 {
		return []VitalsTrendPoint{}
	}
	from := t.windowStart(days)

	type bucket struct {
		lcp, fid, cls float64
		samples       int
		pages         map[string]struct{}
	}
	buckets := make(map[string]*bucket)
	for url, series := range t.vitals {
		series.Each(func(s CoreWebVitals) bool {
			if s.Timestamp.Before(from) {
				return true
			}
			key := s.Timestamp.UTC().Format(dateLayout)
			b, ok := buckets[key]
			if !ok {
				b = &bucket{pages: make(map[string]struct{})}
				buckets[key] = b
			}
			b.lcp += s.LCP
			b.fid += s.FID
			b.cls += s.CLS
			b.samples++
			b.pages[url] = struct{}{}
			return true
		})
	}

	points := make([]VitalsTrendPoint, 0, len(buckets))
	for date, b := range buckets {
		n := float64(b.samples)
		points = append(points, VitalsTrendPoint{
			Date:    date,
			AvgLCP:  round2(b.lcp / n),
			AvgFID:  round2(b.fid / n),
			AvgCLS:  round3(b.cls / n),
			Pages:   len(b.pages),
			Samples: b.samples,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// GetSEOPerformanceTrends averages SEO performance per day over the last days
func (t *Tracker) GetSEOPerformanceTrends(days int) []SEOTrendPoint {
	if days <= 0 {
		return []SEOTrendPoint{}
	}
	from := t.windowStart(days)

	type bucket struct {
		score, load, words float64
		samples            int
		pages              map[string]struct{}
	}
	buckets := make(map[string]*bucket)
	for url, series := range t.seo {
		series.Each(func(s SEOPerformance) bool {
			if s.Timestamp.Before(from) {
				return true
			}
			key := s.Timestamp.UTC().Format(dateLayout)
			b, ok := buckets[key]
			if !ok {
				b = &bucket{pages: make(map[string]struct{})}
				buckets[key] = b
			}
			b.score += s.SEOScore
			b.load += s.LoadTime
			b.words += float64(s.WordCount)
			b.samples++
			b.pages[url] = struct{}{}
			return true
		})
	}

	points := make([]SEOTrendPoint, 0, len(buckets))
	for date, b := range buckets {
		n := float64(b.samples)
		points = append(points, SEOTrendPoint{
			Date:         date,
			AvgSEOScore:  round2(b.score / n),
			AvgLoadTime:  round2(b.load / n),
			AvgWordCount: round2(b.words / n),
			Pages:        len(b.pages),
			Samples:      b.samples,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// GetCombinedTrends merges both series by date
func (t *Tracker) GetCombinedTrends(days int) []CombinedTrendPoint {
	byDate := make(map[string]*CombinedTrendPoint)
	get := func(date string) *CombinedTrendPoint {
		p, ok := byDate[date]
		if !ok {
			p = &CombinedTrendPoint{Date: date}
			byDate[date] = p
		}
		return p
	}
	for _, v := range t.GetCoreWebVitalsTrends(days) {
		p := get(v.Date)
		p.AvgLCP, p.AvgFID, p.AvgCLS, p.VitalsPages = v.AvgLCP, v.AvgFID, v.AvgCLS, v.Pages
	}
	for _, s := range t.GetSEOPerformanceTrends(days) {
		p := get(s.Date)
		p.AvgSEOScore, p.AvgLoadTime, p.SEOPages = s.AvgSEOScore, s.AvgLoadTime, s.Pages
	}

	points := make([]CombinedTrendPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

// GetPerformanceSummary classifies pages by their latest Core Web Vitals.
// A page is good only when all three metrics are within the good boundary
// and needs improvement only when all three are within the looser one.
func (t *Tracker) GetPerformanceSummary() Summary {
	th := t.config.Thresholds
	var summary Summary
	var lcp, fid, cls float64

	for url := range t.vitals {
		s, ok := t.LatestCoreWebVitals(url)
		if !ok {
			continue
		}
		summary.TotalPages++
		lcp += s.LCP
		fid += s.FID
		cls += s.CLS
		switch {
		case s.LCP <= th.LCP.Good && s.FID <= th.FID.Good && s.CLS <= th.CLS.Good:
			summary.GoodPages++
		case s.LCP <= th.LCP.NeedsImprovement && s.FID <= th.FID.NeedsImprovement && s.CLS <= th.CLS.NeedsImprovement:
			summary.NeedsImprovementPages++
		default:
			summary.PoorPages++
		}
	}
	if summary.TotalPages > 0 {
		n := float64(summary.TotalPages)
		summary.AvgLCP = round2(lcp / n)
		summary.AvgFID = round2(fid / n)
		summary.AvgCLS = round3(cls / n)
	}

	var score, load float64
	var seoPages int
	for url := range t.seo {
		s, ok := t.LatestSEOPerformance(url)
		if !ok {
			continue
		}
		score += s.SEOScore
		load += s.LoadTime
		seoPages++
	}
	if seoPages > 0 {
		summary.AvgSEOScore = round2(score / float64(seoPages))
		summary.AvgLoadTime = round2(load / float64(seoPages))
	}

	t.alerts.Each(func(a *Alert) bool {
		if !a.Resolved {
			summary.ActiveAlerts++
		}
		return true
	})
	return summary
}

// GetPerformanceIssues lists pages whose latest samples fall outside the good
// boundary of at least one metric, most issues first
func (t *Tracker) GetPerformanceIssues() []PageIssues {
	th := t.config.Thresholds
	byURL := make(map[string][]PerformanceIssue)

	for url := range t.vitals {
		s, _ := t.LatestCoreWebVitals(url)
		if s.LCP > th.LCP.Good {
			byURL[url] = append(byURL[url], PerformanceIssue{MetricLCP, s.LCP, th.LCP.Good,
				fmt.Sprintf("LCP %sms is above %sms", formatValue(s.LCP), formatValue(th.LCP.Good))})
		}
		if s.FID > th.FID.Good {
			byURL[url] = append(byURL[url], PerformanceIssue{MetricFID, s.FID, th.FID.Good,
				fmt.Sprintf("FID %sms is above %sms", formatValue(s.FID), formatValue(th.FID.Good))})
		}
		if s.CLS > th.CLS.Good {
			byURL[url] = append(byURL[url], PerformanceIssue{MetricCLS, s.CLS, th.CLS.Good,
				fmt.Sprintf("CLS %s is above %s", formatValue(s.CLS), formatValue(th.CLS.Good))})
		}
	}
	for url := range t.seo {
		s, _ := t.LatestSEOPerformance(url)
		if s.SEOScore < th.SEOScore.Good {
			byURL[url] = append(byURL[url], PerformanceIssue{MetricSEOScore, s.SEOScore, th.SEOScore.Good,
				fmt.Sprintf("SEO score %s is below %s", formatValue(s.SEOScore), formatValue(th.SEOScore.Good))})
		}
		if s.LoadTime > th.LoadTime.Good {
			byURL[url] = append(byURL[url], PerformanceIssue{MetricLoadTime, s.LoadTime, th.LoadTime.Good,
				fmt.Sprintf("Load time %sms is above %sms", formatValue(s.LoadTime), formatValue(th.LoadTime.Good))})
		}
	}

	out := make([]PageIssues, 0, len(byURL))
	for url, issues := range byURL {
		out = append(out, PageIssues{URL: url, Issues: issues})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Issues) != len(out[j].Issues) {
			return len(out[i].Issues) > len(out[j].Issues)
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// ResolveAlert marks an alert resolved
func (t *Tracker) ResolveAlert(id string) bool {
	found := false
	t.alerts.Each(func(a *Alert) bool {
		if a.ID == id {
			a.Resolved = true
			found = true
			return false
		}
		return true
	})
	return found
}

// GetAlerts returns alerts newest first
func (t *Tracker) GetAlerts(includeResolved bool) []Alert {
	items := t.alerts.Items()
	out := make([]Alert, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Resolved && !includeResolved {
			continue
		}
		out = append(out, *items[i])
	}
	return out
}

// ComparePerformance compares the last days with the equally long window
// before it. Percentage changes are 0 when the previous average is 0.
func (t *Tracker) ComparePerformance(days int) Comparison {
	if days <= 0 {
		days = 1
	}
	now := t.now()
	window := time.Duration(days) * 24 * time.Hour
	current := t.periodStats(now.Add(-window), now)
	previous := t.periodStats(now.Add(-2*window), now.Add(-window))

	return Comparison{
		Current:  current,
		Previous: previous,
		Changes: map[string]float64{
			MetricLCP:      percentChange(previous.AvgLCP, current.AvgLCP),
			MetricFID:      percentChange(previous.AvgFID, current.AvgFID),
			MetricCLS:      percentChange(previous.AvgCLS, current.AvgCLS),
			MetricSEOScore: percentChange(previous.AvgSEOScore, current.AvgSEOScore),
			MetricLoadTime: percentChange(previous.AvgLoadTime, current.AvgLoadTime),
		},
	}
}

// periodStats averages samples with from < timestamp <= to
func (t *Tracker) periodStats(from, to time.Time) PeriodStats {
	stats := PeriodStats{From: from, To: to}
	in := func(ts time.Time) bool { return ts.After(from) && !ts.After(to) }

	var lcp, fid, cls float64
	var nv int
	for _, series := range t.vitals {
		series.Each(func(s CoreWebVitals) bool {
			if in(s.Timestamp) {
				lcp += s.LCP
				fid += s.FID
				cls += s.CLS
				nv++
			}
			return true
		})
	}
	if nv > 0 {
		stats.AvgLCP = round2(lcp / float64(nv))
		stats.AvgFID = round2(fid / float64(nv))
		stats.AvgCLS = round3(cls / float64(nv))
	}

	var score, load float64
	var ns int
	for _, series := range t.seo {
		series.Each(func(s SEOPerformance) bool {
			if in(s.Timestamp) {
				score += s.SEOScore
				load += s.LoadTime
				ns++
			}
			return true
		})
	}
	if ns > 0 {
		stats.AvgSEOScore = round2(score / float64(ns))
		stats.AvgLoadTime = round2(load / float64(ns))
	}
	stats.Samples = nv + ns
	return stats
}

// State returns every stored sample and alert
func (t *Tracker) State() State {
	state := State{
		CoreWebVitals:  []CoreWebVitals{},
		SEOPerformance: []SEOPerformance{},
		Alerts:         []Alert{},
	}
	for _, url := range sortedKeys(t.vitals) {
		state.CoreWebVitals = append(state.CoreWebVitals, t.vitals[url].Items()...)
	}
	for _, url := range sortedKeys(t.seo) {
		state.SEOPerformance = append(state.SEOPerformance, t.seo[url].Items()...)
	}
	for _, a := range t.alerts.Items() {
		state.Alerts = append(state.Alerts, *a)
	}
	return state
}

// Restore replaces the stored series and alerts without raising new alerts
func (t *Tracker) Restore(state State) {
	t.vitals = make(map[string]*Series[CoreWebVitals])
	t.seo = make(map[string]*Series[SEOPerformance])
	t.alerts = NewRing[*Alert](t.config.MaxAlerts)

	for _, s := range state.CoreWebVitals {
		series, ok := t.vitals[s.URL]
		if !ok {
			series = newVitalsSeries(t.config.MaxSamplesPerPage)
			t.vitals[s.URL] = series
		}
		series.Push(s)
	}
	for _, s := range state.SEOPerformance {
		series, ok := t.seo[s.URL]
		if !ok {
			series = newSEOSeries(t.config.MaxSamplesPerPage)
			t.seo[s.URL] = series
		}
		series.Push(s)
	}
	for i := range state.Alerts {
		a := state.Alerts[i]
		t.alerts.Push(&a)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func percentChange(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return round2((current - previous) / previous * 100)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
