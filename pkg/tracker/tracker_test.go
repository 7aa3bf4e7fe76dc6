package tracker

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*IssueTracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now)), clock
}

func check(url string, issues ...models.Issue) models.HealthCheck {
	for i := range issues {
		issues[i].PageURL = url
	}
	return models.HealthCheck{PageURL: url, Issues: issues}
}

var (
	missingH1 = models.Issue{IssueType: models.IssueMissingH1, Severity: models.SeverityCritical, AutoFixable: true}
	thinPage  = models.Issue{IssueType: models.IssueLowWordCount, Severity: models.SeverityWarning}
	orphan    = models.Issue{IssueType: models.IssueOrphanPage, Severity: models.SeverityWarning, AutoFixable: true}
	canonical = models.Issue{IssueType: models.IssueMissingCanonical, Severity: models.SeverityInfo, AutoFixable: true}
)

func TestResolutionRoundTrip(t *testing.T) {
	tr, _ := newTestTracker()

	metrics := tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", missingH1)})
	assert.Equal(t, 1, metrics.OpenIssues)
	assert.Equal(t, 0, metrics.ResolvedIssues)

	metrics = tr.UpdateIssues([]models.HealthCheck{check("https://example.com/")})
	assert.Equal(t, 0, metrics.OpenIssues)
	assert.Equal(t, 1, metrics.ResolvedIssues)

	history := tr.GetHistory()
	require.Len(t, history, 1)
	assert.Equal(t, StatusResolved, history[0].Status)
	require.Len(t, history[0].ResolutionAttempts, 1)
	attempt := history[0].ResolutionAttempts[0]
	assert.Equal(t, MethodAutoFix, attempt.Method)
	assert.True(t, attempt.Success)
	assert.Equal(t, SystemActor, attempt.PerformedBy)
}

func TestLifecycleClosure(t *testing.T) {
	tr, clock := newTestTracker()
	url := "https://example.com/oak"

	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1, thinPage, canonical)})
	issues := tr.GetIssues(IssueFilter{IssueType: []models.IssueType{models.IssueLowWordCount}})
	require.Len(t, issues, 1)
	require.True(t, tr.UpdateIssueStatus(issues[0].ID, StatusInProgress))

	clock.Advance(time.Hour)
	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1)})
	clock.Advance(time.Hour)
	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1)})

	history := tr.GetHistory()
	require.Len(t, history, 2)
	seen := map[string]int{}
	for _, ti := range history {
		seen[ti.Key]++
		assert.Equal(t, StatusResolved, ti.Status)
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, "key %s archived more than once", key)
	}
	assert.Equal(t, 1, tr.GetMetrics().OpenIssues)
}

func TestOccurrenceMonotonicity(t *testing.T) {
	tr, clock := newTestTracker()
	first := clock.Now()

	const runs = 5
	for i := 0; i < runs; i++ {
		tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", orphan)})
		clock.Advance(24 * time.Hour)
	}

	issues := tr.GetIssues(IssueFilter{})
	require.Len(t, issues, 1)
	assert.Equal(t, runs, issues[0].OccurrenceCount)
	assert.Equal(t, first, issues[0].FirstDetected)
	assert.Equal(t, first.Add((runs-1)*24*time.Hour), issues[0].LastSeen)
}

func TestIgnoredIssuesStayInRegistry(t *testing.T) {
	tr, _ := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", canonical)})
	id := tr.GetIssues(IssueFilter{})[0].ID

	require.True(t, tr.UpdateIssueStatus(id, StatusIgnored))
	metrics := tr.UpdateIssues(nil)
	assert.Equal(t, 1, metrics.IgnoredIssues)
	assert.Equal(t, 0, metrics.ResolvedIssues)

	ti, ok := tr.GetIssue(id)
	require.True(t, ok)
	assert.Equal(t, StatusIgnored, ti.Status)
}

func TestDerivePriority(t *testing.T) {
	tests := []struct {
		issue models.Issue
		want  Priority
	}{
		{models.Issue{IssueType: models.IssueMissingH1, Severity: models.SeverityCritical}, PriorityCritical},
		{models.Issue{IssueType: models.IssueMissingMeta, Severity: models.SeverityWarning}, PriorityHigh},
		{models.Issue{IssueType: models.IssueOrphanPage, Severity: models.SeverityWarning}, PriorityHigh},
		{models.Issue{IssueType: models.IssueLowWordCount, Severity: models.SeverityWarning}, PriorityMedium},
		{models.Issue{IssueType: models.IssueMissingCanonical, Severity: models.SeverityInfo}, PriorityLow},
	}
	for _, tt := range tests {
		t.Run(string(tt.issue.IssueType)+"/"+string(tt.issue.Severity), func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePriority(tt.issue))
		})
	}
}

func TestDeriveTags(t *testing.T) {
	assert.Equal(t, []string{"critical", "meta-tags", "auto-fixable"}, DeriveTags(missingH1))
	assert.Equal(t, []string{"warning", "internal-linking", "auto-fixable"}, DeriveTags(orphan))
	assert.Equal(t, []string{"warning", "content-quality"}, DeriveTags(thinPage))
	assert.Equal(t, []string{"critical", "performance"},
		DeriveTags(models.Issue{IssueType: models.IssueSlowLoading, Severity: models.SeverityCritical}))
}

func TestRecordResolutionAttempt(t *testing.T) {
	tr, _ := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", orphan)})
	id := tr.GetIssues(IssueFilter{})[0].ID

	assert.False(t, tr.RecordResolutionAttempt("missing", ResolutionAttempt{}))

	require.True(t, tr.RecordResolutionAttempt(id, ResolutionAttempt{
		Method: MethodAutoFix, Success: false, ErrorMessage: "requires manual fix", PerformedBy: SystemActor,
	}))
	ti, ok := tr.GetIssue(id)
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, ti.Status)
	require.Len(t, ti.ResolutionAttempts, 1)
	assert.NotEmpty(t, ti.ResolutionAttempts[0].ID)

	require.True(t, tr.RecordResolutionAttempt(id, ResolutionAttempt{Method: MethodManual, Success: true, PerformedBy: "dana"}))
	ti, ok = tr.GetIssue(id)
	require.True(t, ok)
	assert.Equal(t, StatusResolved, ti.Status)
	assert.NotNil(t, ti.ResolvedAt)
	assert.Len(t, tr.GetHistory(), 1)

	// archived issues no longer accept changes
	assert.False(t, tr.AddIssueNote(id, "late"))
	assert.Equal(t, map[string]int{MethodManual: 1}, tr.GetResolutionPerformance().ByMethod)
}

func TestNotesTagsAndAssignment(t *testing.T) {
	tr, clock := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", thinPage)})
	id := tr.GetIssues(IssueFilter{})[0].ID

	require.True(t, tr.AddIssueNote(id, "needs copywriter"))
	require.True(t, tr.AddIssueTags(id, "q3", "warning", "q3", " "))
	require.True(t, tr.AssignIssue(id, "dana"))
	assert.False(t, tr.AssignIssue("nope", "dana"))
	assert.False(t, tr.UpdateIssueStatus(id, Status("bogus")))

	ti, _ := tr.GetIssue(id)
	assert.Equal(t, []string{"[" + clock.Now().Format(time.RFC3339) + "] needs copywriter"}, ti.Notes)
	assert.Equal(t, []string{"warning", "content-quality", "q3"}, ti.Tags)
	assert.Equal(t, "dana", ti.AssignedTo)
}

func TestGetIssuesFilter(t *testing.T) {
	tr, clock := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{
		check("https://example.com/tables", missingH1, thinPage),
		check("https://example.com/chairs", canonical),
	})
	start := clock.Now()
	clock.Advance(48 * time.Hour)
	tr.UpdateIssues([]models.HealthCheck{
		check("https://example.com/tables", missingH1, thinPage),
		check("https://example.com/chairs", canonical),
		check("https://example.com/desks", orphan),
	})

	tests := []struct {
		name   string
		filter IssueFilter
		want   int
	}{
		{"all", IssueFilter{}, 4},
		{"severity", IssueFilter{Severity: []models.Severity{models.SeverityWarning}}, 2},
		{"page substring", IssueFilter{PageURL: "tables"}, 2},
		{"tag overlap", IssueFilter{Tags: []string{"meta-tags", "internal-linking"}}, 3},
		{"date range", IssueFilter{From: start.Add(time.Hour)}, 1},
		{"conjunctive", IssueFilter{Severity: []models.Severity{models.SeverityWarning}, PageURL: "tables"}, 1},
		{"status", IssueFilter{Status: []Status{StatusResolved}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tr.GetIssues(tt.filter), tt.want)
		})
	}

	all := tr.GetIssues(IssueFilter{})
	assert.Equal(t, PriorityCritical, all[0].Priority)
	assert.Equal(t, PriorityLow, all[len(all)-1].Priority)
}

func TestGetIssueTrends(t *testing.T) {
	tr, clock := newTestTracker()
	url := "https://example.com/"

	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1, thinPage)})
	clock.Advance(24 * time.Hour)
	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1, orphan)})
	clock.Advance(24 * time.Hour)

	trends := tr.GetIssueTrends(3)
	require.Len(t, trends, 3)
	assert.Equal(t, TrendPoint{Date: "2026-05-10", NewIssues: 2, ResolvedIssues: 0, OpenIssues: 2}, trends[0])
	assert.Equal(t, TrendPoint{Date: "2026-05-11", NewIssues: 1, ResolvedIssues: 1, OpenIssues: 2}, trends[1])
	assert.Equal(t, TrendPoint{Date: "2026-05-12", NewIssues: 0, ResolvedIssues: 0, OpenIssues: 2}, trends[2])

	assert.Empty(t, tr.GetIssueTrends(0))
}

func TestGetResolutionPerformance(t *testing.T) {
	tr, clock := newTestTracker()
	url := "https://example.com/"
	tr.UpdateIssues([]models.HealthCheck{check(url, missingH1, thinPage)})
	clock.Advance(6 * time.Hour)
	tr.UpdateIssues([]models.HealthCheck{check(url, thinPage)})

	perf := tr.GetResolutionPerformance()
	assert.Equal(t, 1, perf.TotalResolved)
	assert.Equal(t, 6.0, perf.AverageResolutionHours)
	assert.Equal(t, RateStat{Total: 1, Resolved: 1, Rate: 100}, perf.ByIssueType[models.IssueMissingH1])
	assert.Equal(t, RateStat{Total: 1, Resolved: 0, Rate: 0}, perf.BySeverity[models.SeverityWarning])
	assert.Equal(t, 1, perf.ByMethod[MethodAutoFix])

	metrics := tr.GetMetrics()
	assert.Equal(t, 50.0, metrics.ResolutionRate)
	assert.Equal(t, 6.0, metrics.AverageResolutionHours)
}

func TestGetMetrics(t *testing.T) {
	tr, _ := newTestTracker()
	metrics := tr.UpdateIssues([]models.HealthCheck{
		check("https://example.com/a", missingH1, thinPage, canonical),
		check("https://example.com/b", thinPage),
	})

	assert.Equal(t, 4, metrics.TotalIssues)
	assert.Equal(t, 4, metrics.OpenIssues)
	assert.Equal(t, 1, metrics.CriticalIssues)
	assert.Equal(t, 2, metrics.WarningIssues)
	assert.Equal(t, 1, metrics.InfoIssues)
	assert.Equal(t, 2, metrics.AutoFixableIssues)
	assert.Equal(t, map[string]int{"https://example.com/a": 3, "https://example.com/b": 1}, metrics.IssuesByPage)
	require.NotEmpty(t, metrics.TopIssueTypes)
	assert.Equal(t, IssueTypeCount{IssueType: models.IssueLowWordCount, Count: 2}, metrics.TopIssueTypes[0])
}

func TestExportIssueData(t *testing.T) {
	tr, _ := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", missingH1, thinPage)})
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", thinPage)})

	out, err := tr.ExportIssueData("json")
	require.NoError(t, err)
	var doc struct {
		Issues  []TrackedIssue `json:"issues"`
		History []TrackedIssue `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.Issues, 1)
	assert.Len(t, doc.History, 1)
	assert.Equal(t, models.IssueLowWordCount, doc.Issues[0].IssueType)

	out, err = tr.ExportIssueData("CSV")
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])

	_, err = tr.ExportIssueData("xml")
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
}

func TestStateRestore(t *testing.T) {
	tr, clock := newTestTracker()
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", missingH1, orphan)})
	tr.UpdateIssues([]models.HealthCheck{check("https://example.com/", orphan)})

	restored := New(WithClock(clock.Now))
	restored.Restore(tr.State())

	assert.Equal(t, tr.GetMetrics(), restored.GetMetrics())
	open := restored.GetIssues(IssueFilter{Status: []Status{StatusOpen}})
	require.Len(t, open, 1)

	metrics := restored.UpdateIssues([]models.HealthCheck{check("https://example.com/", orphan)})
	assert.Equal(t, 1, metrics.OpenIssues)
	ti, ok := restored.GetIssue(open[0].ID)
	require.True(t, ok)
	assert.Equal(t, 3, ti.OccurrenceCount)
}
