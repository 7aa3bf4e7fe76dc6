package tracker

import (
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Status is the lifecycle state of a tracked issue
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Active reports whether the issue still needs work
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// Priority is the work priority assigned when an issue is first tracked
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight orders priorities, critical first
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Resolution methods
const (
	MethodAutoFix = "auto_fix"
	MethodManual  = "manual"
)

// SystemActor is recorded as the author of automatic resolutions
const SystemActor = "system"

// ResolutionAttempt is one recorded try at resolving an issue
type ResolutionAttempt struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Description  string    `json:"description"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	PerformedBy  string    `json:"performedBy"`
}

// TrackedIssue is an issue followed across analysis runs
type TrackedIssue struct {
	models.Issue

	ID                 string              `json:"id"`
	Key                string              `json:"key"`
	FirstDetected      time.Time           `json:"firstDetected"`
	LastSeen           time.Time           `json:"lastSeen"`
	OccurrenceCount    int                 `json:"occurrenceCount"`
	Status             Status              `json:"status"`
	Priority           Priority            `json:"priority"`
	Tags               []string            `json:"tags"`
	Notes              []string            `json:"notes"`
	AssignedTo         string              `json:"assignedTo,omitempty"`
	ResolutionAttempts []ResolutionAttempt `json:"resolutionAttempts"`
	ResolvedAt         *time.Time          `json:"resolvedAt,omitempty"`
}

func (ti *TrackedIssue) clone() TrackedIssue {
	out := *ti
	out.Tags = append([]string(nil), ti.Tags...)
	out.Notes = append([]string(nil), ti.Notes...)
	out.ResolutionAttempts = append([]ResolutionAttempt(nil), ti.ResolutionAttempts...)
	if ti.ResolvedAt != nil {
		at := *ti.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// IssueTypeCount is the number of issues of one type
type IssueTypeCount struct {
	IssueType models.IssueType `json:"issueType"`
	Count     int              `json:"count"`
}

// IssueMetrics summarizes the tracker registry
type IssueMetrics struct {
	TotalIssues            int              `json:"totalIssues"`
	OpenIssues             int              `json:"openIssues"`
	InProgressIssues       int              `json:"inProgressIssues"`
	ResolvedIssues         int              `json:"resolvedIssues"`
	IgnoredIssues          int              `json:"ignoredIssues"`
	CriticalIssues         int              `json:"criticalIssues"`
	WarningIssues          int              `json:"warningIssues"`
	InfoIssues             int              `json:"infoIssues"`
	AutoFixableIssues      int              `json:"autoFixableIssues"`
	ResolutionRate         float64          `json:"resolutionRate"`
	AverageResolutionHours float64          `json:"averageResolutionHours"`
	TopIssueTypes          []IssueTypeCount `json:"topIssueTypes"`
	IssuesByPage           map[string]int   `json:"issuesByPage"`
}

// IssueFilter selects tracked issues. Empty fields match everything and
// set fields are combined with AND.
type IssueFilter struct {
	Severity   []models.Severity  `json:"severity,omitempty"`
	Status     []Status           `json:"status,omitempty"`
	IssueType  []models.IssueType `json:"issueType,omitempty"`
	PageURL    string             `json:"pageUrl,omitempty"`
	AssignedTo string             `json:"assignedTo,omitempty"`
	From       time.Time          `json:"from,omitempty"`
	To         time.Time          `json:"to,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
}

// TrendPoint is one calendar day of issue activity
type TrendPoint struct {
	Date           string `json:"date"`
	NewIssues      int    `json:"newIssues"`
	ResolvedIssues int    `json:"resolvedIssues"`
	OpenIssues     int    `json:"openIssues"`
}

// RateStat is a resolved/total ratio for one bucket
type RateStat struct {
	Total    int     `json:"total"`
	Resolved int     `json:"resolved"`
	Rate     float64 `json:"rate"`
}

// ResolutionPerformance describes how quickly and how issues get resolved
type ResolutionPerformance struct {
	TotalResolved          int                           `json:"totalResolved"`
	AverageResolutionHours float64                       `json:"averageResolutionHours"`
	ByIssueType            map[models.IssueType]RateStat `json:"byIssueType"`
	BySeverity             map[models.Severity]RateStat  `json:"bySeverity"`
	ByMethod               map[string]int                `json:"byMethod"`
}

// State is a serializable copy of the tracker registry
type State struct {
	Issues  []TrackedIssue `json:"issues"`
	History []TrackedIssue `json:"history"`
}
