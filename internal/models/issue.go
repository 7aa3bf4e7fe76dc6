package models

import "strings"

// IssueType identifies the kind of SEO problem detected on a page
type IssueType string

const (
	IssueMissingH1          IssueType = "missing_h1"
	IssueLowWordCount       IssueType = "low_word_count"
	IssueMissingMeta        IssueType = "missing_meta"
	IssueOrphanPage         IssueType = "orphan_page"
	IssueMissingCanonical   IssueType = "missing_canonical"
	IssuePoorKeywordDensity IssueType = "poor_keyword_density"
	IssueSlowLoading        IssueType = "slow_loading"
	IssueDuplicateContent   IssueType = "duplicate_content"
)

// Severity is the severity level of an issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Weight orders severities, critical first
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Issue represents a single detected problem on a page
type Issue struct {
	PageURL     string    `json:"pageUrl"`
	IssueType   IssueType `json:"issueType"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	AutoFixable bool      `json:"autoFixable"`
	FixAction   string    `json:"fixAction,omitempty"`
}

// Key returns the derived identity of the issue: pageUrl:issueType:severity
func (i Issue) Key() string {
	return strings.Join([]string{i.PageURL, string(i.IssueType), string(i.Severity)}, ":")
}
