// Package tracker follows detected issues across analysis runs: it keeps one
// tracked entry per issue key, refreshes it while the issue is still seen and
// moves it to an append-only history once it is resolved.
//
// An IssueTracker is a single-writer registry and is not safe for concurrent use.
package tracker

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const topIssueTypesLimit = 10

// IssueTracker keeps the registry of tracked issues
type IssueTracker struct {
	logger zerolog.Logger
	now    func() time.Time

	issues  map[string]*TrackedIssue // by issue key
	byID    map[string]string        // id -> issue key
	history []TrackedIssue
}

// Option configures an IssueTracker
type Option func(*IssueTracker)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *IssueTracker) { t.logger = logger }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *IssueTracker) { t.now = now }
}

// New creates a new IssueTracker instance
func New(opts ...Option) *IssueTracker {
	t := &IssueTracker{
		logger: zerolog.Nop(),
		now:    time.Now,
		issues: make(map[string]*TrackedIssue),
		byID:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UpdateIssues reconciles the registry with the issues of one analysis run.
// Issues still present are refreshed, active issues no longer present are
// resolved and archived, and new issues start tracking as open.
func (t *IssueTracker) UpdateIssues(checks []models.HealthCheck) IssueMetrics {
	now := t.now()

	current := make(map[string]models.Issue)
	var order []string
	for _, hc := range checks {
		for _, issue := range hc.Issues {
			key := issue.Key()
			if _, seen := current[key]; !seen {
				order = append(order, key)
			}
			current[key] = issue
		}
	}

	var refreshed, resolved, created int
	for key, ti := range t.issues {
		if issue, ok := current[key]; ok {
			ti.LastSeen = now
			ti.OccurrenceCount++
			ti.Description = issue.Description
			ti.FixAction = issue.FixAction
			refreshed++
			continue
		}
		if ti.Status.Active() {
			ti.ResolutionAttempts = append(ti.ResolutionAttempts, ResolutionAttempt{
				ID:          uuid.NewString(),
				Timestamp:   now,
				Method:      MethodAutoFix,
				Description: "Issue no longer detected",
				Success:     true,
				PerformedBy: SystemActor,
			})
			t.resolve(ti, now)
			resolved++
		}
	}

	for _, key := range order {
		if _, ok := t.issues[key]; ok {
			continue
		}
		issue := current[key]
		ti := &TrackedIssue{
			Issue:           issue,
			ID:              uuid.NewString(),
			Key:             key,
			FirstDetected:   now,
			LastSeen:        now,
			OccurrenceCount: 1,
			Status:          StatusOpen,
			Priority:        DerivePriority(issue),
			Tags:            DeriveTags(issue),
			Notes:           []string{},
		}
		t.issues[key] = ti
		t.byID[ti.ID] = key
		created++
	}

	t.logger.Info().
		Int("created", created).
		Int("refreshed", refreshed).
		Int("resolved", resolved).
		Msg("issues updated")

	return t.GetMetrics()
}

// resolve marks the issue resolved and moves it from the registry to history
func (t *IssueTracker) resolve(ti *TrackedIssue, at time.Time) {
	ti.Status = StatusResolved
	ti.ResolvedAt = &at
	delete(t.issues, ti.Key)
	delete(t.byID, ti.ID)
	t.history = append(t.history, ti.clone())
	t.logger.Debug().Str("issue_id", ti.ID).Str("page", ti.PageURL).Msg("issue resolved")
}

func (t *IssueTracker) lookup(id string) (*TrackedIssue, bool) {
	key, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	ti, ok := t.issues[key]
	return ti, ok
}

// RecordResolutionAttempt appends an attempt to an active issue. A successful
// attempt resolves the issue, a failed one puts it in progress.
func (t *IssueTracker) RecordResolutionAttempt(id string, attempt ResolutionAttempt) bool {
	ti, ok := t.lookup(id)
	if !ok {
		return false
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = t.now()
	}
	ti.ResolutionAttempts = append(ti.ResolutionAttempts, attempt)
	if attempt.Success {
		t.resolve(ti, attempt.Timestamp)
	} else {
		ti.Status = StatusInProgress
	}
	return true
}

// UpdateIssueStatus overwrites the status of an active issue
func (t *IssueTracker) UpdateIssueStatus(id string, status Status) bool {
	if !status.Valid() {
		return false
	}
	ti, ok := t.lookup(id)
	if !ok {
		return false
	}
	if status == StatusResolved {
		t.resolve(ti, t.now())
		return true
	}
	ti.Status = status
	return true
}

// AddIssueNote appends a timestamped note
func (t *IssueTracker) AddIssueNote(id, note string) bool {
	ti, ok := t.lookup(id)
	if !ok {
		return false
	}
	ti.Notes = append(ti.Notes, fmt.Sprintf("[%s] %s", t.now().Format(time.RFC3339), note))
	return true
}

// AddIssueTags adds tags that are not already present
func (t *IssueTracker) AddIssueTags(id string, tags ...string) bool {
	ti, ok := t.lookup(id)
	if !ok {
		return false
	}
	ti.Tags = appendUnique(ti.Tags, tags...)
	return true
}

// AssignIssue sets the assignee; an empty assignee clears it
func (t *IssueTracker) AssignIssue(id, assignee string) bool {
	ti, ok := t.lookup(id)
	if !ok {
		return false
	}
	ti.AssignedTo = assignee
	return true
}

// GetIssue returns a copy of an issue from the registry or history
func (t *IssueTracker) GetIssue(id string) (TrackedIssue, bool) {
	if ti, ok := t.lookup(id); ok {
		return ti.clone(), true
	}
	for i := range t.history {
		if t.history[i].ID == id {
			return t.history[i].clone(), true
		}
	}
	return TrackedIssue{}, false
}

// FindByKey returns the active issue tracked under the given issue key
func (t *IssueTracker) FindByKey(key string) (TrackedIssue, bool) {
	ti, ok := t.issues[key]
	if !ok {
		return TrackedIssue{}, false
	}
	return ti.clone(), true
}

// GetHistory returns the resolved issues in resolution order
func (t *IssueTracker) GetHistory() []TrackedIssue {
	out := make([]TrackedIssue, 0, len(t.history))
	for i := range t.history {
		out = append(out, t.history[i].clone())
	}
	return out
}

// all returns copies of every registry and history entry
func (t *IssueTracker) all() []TrackedIssue {
	out := make([]TrackedIssue, 0, len(t.issues)+len(t.history))
	for _, ti := range t.issues {
		out = append(out, ti.clone())
	}
	return append(out, t.GetHistory()...)
}

// GetIssues returns the issues matching the filter, highest priority first
func (t *IssueTracker) GetIssues(filter IssueFilter) []TrackedIssue {
	var out []TrackedIssue
	for _, ti := range t.all() {
		if filter.matches(ti) {
			out = append(out, ti)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if wi, wj := out[i].Priority.Weight(), out[j].Priority.Weight(); wi != wj {
			return wi > wj
		}
		if !out[i].FirstDetected.Equal(out[j].FirstDetected) {
			return out[i].FirstDetected.Before(out[j].FirstDetected)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (f IssueFilter) matches(ti TrackedIssue) bool {
	if len(f.Severity) > 0 && !slices.Contains(f.Severity, ti.Severity) {
		return false
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, ti.Status) {
		return false
	}
	if len(f.IssueType) > 0 && !slices.Contains(f.IssueType, ti.IssueType) {
		return false
	}
	if f.PageURL != "" && !strings.Contains(ti.PageURL, f.PageURL) {
		return false
	}
	if f.AssignedTo != "" && ti.AssignedTo != f.AssignedTo {
		return false
	}
	if !f.From.IsZero() && ti.FirstDetected.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ti.FirstDetected.After(f.To) {
		return false
	}
	if len(f.Tags) > 0 {
		overlap := false
		for _, tag := range f.Tags {
			if slices.Contains(ti.Tags, tag) {
				overlap = true
				break
			}
		}
		if !overlap {
			return false
		}
	}
	return true
}

// GetMetrics computes the registry summary
func (t *IssueTracker) GetMetrics() IssueMetrics {
	m := IssueMetrics{
		TotalIssues:    len(t.issues) + len(t.history),
		ResolvedIssues: len(t.history),
		IssuesByPage:   make(map[string]int),
		TopIssueTypes:  []IssueTypeCount{},
	}

	byType := make(map[models.IssueType]int)
	for _, ti := range t.issues {
		switch ti.Status {
		case StatusOpen:
			m.OpenIssues++
		case StatusInProgress:
			m.InProgressIssues++
		case StatusIgnored:
			m.IgnoredIssues++
		}
		if !ti.Status.Active() {
			continue
		}
		switch ti.Severity {
		case models.SeverityCritical:
			m.CriticalIssues++
		case models.SeverityWarning:
			m.WarningIssues++
		case models.SeverityInfo:
			m.InfoIssues++
		}
		if ti.AutoFixable {
			m.AutoFixableIssues++
		}
		byType[ti.IssueType]++
		m.IssuesByPage[ti.PageURL]++
	}

	for issueType, count := range byType {
		m.TopIssueTypes = append(m.TopIssueTypes, IssueTypeCount{IssueType: issueType, Count: count})
	}
	sortTypeCounts(m.TopIssueTypes)
	if len(m.TopIssueTypes) > topIssueTypesLimit {
		m.TopIssueTypes = m.TopIssueTypes[:topIssueTypesLimit]
	}

	if m.TotalIssues > 0 {
		m.ResolutionRate = round2(float64(m.ResolvedIssues) / float64(m.TotalIssues) * 100)
	}
	m.AverageResolutionHours = round2(averageResolutionHours(t.history))
	return m
}

// GetIssueTrends buckets issue activity by calendar day (UTC) over the
// trailing window ending today
func (t *IssueTracker) GetIssueTrends(days int) []TrendPoint {
	if days <= 0 {
		return []TrendPoint{}
	}
	today := startOfDay(t.now())
	all := t.all()

	points := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		dayStart := today.AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)
		point := TrendPoint{Date: dayStart.Format("2006-01-02")}
		for _, ti := range all {
			detected := ti.FirstDetected.UTC()
			if !detected.Before(dayStart) && detected.Before(dayEnd) {
				point.NewIssues++
			}
			if ti.ResolvedAt != nil {
				resolvedAt := ti.ResolvedAt.UTC()
				if !resolvedAt.Before(dayStart) && resolvedAt.Before(dayEnd) {
					point.ResolvedIssues++
				}
			}
			if ti.Status == StatusIgnored || !detected.Before(dayEnd) {
				continue
			}
			if ti.ResolvedAt == nil || !ti.ResolvedAt.UTC().Before(dayEnd) {
				point.OpenIssues++
			}
		}
		points = append(points, point)
	}
	return points
}

// GetResolutionPerformance reports resolution latency and rates
func (t *IssueTracker) GetResolutionPerformance() ResolutionPerformance {
	perf := ResolutionPerformance{
		TotalResolved:          len(t.history),
		AverageResolutionHours: round2(averageResolutionHours(t.history)),
		ByIssueType:            make(map[models.IssueType]RateStat),
		BySeverity:             make(map[models.Severity]RateStat),
		ByMethod:               make(map[string]int),
	}

	for _, ti := range t.all() {
		resolved := ti.Status == StatusResolved

		st := perf.ByIssueType[ti.IssueType]
		st.Total++
		sv := perf.BySeverity[ti.Severity]
		sv.Total++
		if resolved {
			st.Resolved++
			sv.Resolved++
			perf.ByMethod[resolutionMethod(ti)]++
		}
		perf.ByIssueType[ti.IssueType] = st
		perf.BySeverity[ti.Severity] = sv
	}

	for k, st := range perf.ByIssueType {
		st.Rate = round2(float64(st.Resolved) / float64(st.Total) * 100)
		perf.ByIssueType[k] = st
	}
	for k, sv := range perf.BySeverity {
		sv.Rate = round2(float64(sv.Resolved) / float64(sv.Total) * 100)
		perf.BySeverity[k] = sv
	}
	return perf
}

// State returns a copy of the registry for persistence
func (t *IssueTracker) State() State {
	state := State{Issues: make([]TrackedIssue, 0, len(t.issues)), History: t.GetHistory()}
	for _, ti := range t.issues {
		state.Issues = append(state.Issues, ti.clone())
	}
	sort.Slice(state.Issues, func(i, j int) bool { return state.Issues[i].Key < state.Issues[j].Key })
	return state
}

// Restore replaces the registry with a previously saved state
func (t *IssueTracker) Restore(state State) {
	t.issues = make(map[string]*TrackedIssue, len(state.Issues))
	t.byID = make(map[string]string, len(state.Issues))
	for i := range state.Issues {
		ti := state.Issues[i].clone()
		if ti.Key == "" {
			ti.Key = ti.Issue.Key()
		}
		t.issues[ti.Key] = &ti
		t.byID[ti.ID] = ti.Key
	}
	t.history = make([]TrackedIssue, 0, len(state.History))
	for i := range state.History {
		t.history = append(t.history, state.History[i].clone())
	}
}

// DerivePriority maps severity and issue type to a work priority
func DerivePriority(issue models.Issue) Priority {
	switch issue.Severity {
	case models.SeverityCritical:
		return PriorityCritical
	case models.SeverityWarning:
		switch issue.IssueType {
		case models.IssueMissingH1, models.IssueMissingMeta, models.IssueOrphanPage:
			return PriorityHigh
		}
		return PriorityMedium
	}
	return PriorityLow
}

// DeriveTags builds the initial tags of a tracked issue
func DeriveTags(issue models.Issue) []string {
	tags := []string{string(issue.Severity)}
	if group := tagGroup(issue.IssueType); group != "" {
		tags = append(tags, group)
	}
	if issue.AutoFixable {
		tags = append(tags, "auto-fixable")
	}
	return tags
}

func tagGroup(issueType models.IssueType) string {
	switch issueType {
	case models.IssueMissingMeta, models.IssueMissingH1, models.IssueMissingCanonical:
		return "meta-tags"
	case models.IssueOrphanPage:
		return "internal-linking"
	case models.IssueLowWordCount, models.IssuePoorKeywordDensity, models.IssueDuplicateContent:
		return "content-quality"
	case models.IssueSlowLoading:
		return "performance"
	}
	return ""
}

func resolutionMethod(ti TrackedIssue) string {
	for i := len(ti.ResolutionAttempts) - 1; i >= 0; i-- {
		if ti.ResolutionAttempts[i].Success {
			return ti.ResolutionAttempts[i].Method
		}
	}
	return MethodManual
}

func averageResolutionHours(history []TrackedIssue) float64 {
	var total float64
	var n int
	for _, ti := range history {
		if ti.ResolvedAt == nil {
			continue
		}
		total += ti.ResolvedAt.Sub(ti.FirstDetected).Hours()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func sortTypeCounts(counts []IssueTypeCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].IssueType < counts[j].IssueType
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}
