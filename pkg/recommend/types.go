package recommend

import "time"

// Priority is the urgency of a recommendation
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

// Level grades impact and effort
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Weight orders levels, high first
func (l Level) Weight() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	}
	return 0
}

// Category groups recommendations by area of work
type Category string

const (
	CategoryMeta        Category = "meta"
	CategoryContent     Category = "content"
	CategoryTechnical   Category = "technical"
	CategoryPerformance Category = "performance"
	CategoryLinking     Category = "linking"
	CategoryMobile      Category = "mobile"
	CategoryStrategy    Category = "strategy"
)

// Status is the implementation state of a recommendation
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDismissed  Status = "dismissed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusDismissed:
		return true
	}
	return false
}

// Recommendation is one actionable piece of SEO work
type Recommendation struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Priority             Priority  `json:"priority"`
	Impact               Level     `json:"impact"`
	Effort               Level     `json:"effort"`
	Category             Category  `json:"category"`
	AffectedPages        []string  `json:"affectedPages"`
	ActionItems          []string  `json:"actionItems"`
	EstimatedTime        string    `json:"estimatedTime"`
	ExpectedImpact       string    `json:"expectedImpact"`
	ImplementationStatus Status    `json:"implementationStatus"`
	CreatedAt            time.Time `json:"createdAt"`
}

func (r *Recommendation) clone() Recommendation {
	out := *r
	out.AffectedPages = append([]string(nil), r.AffectedPages...)
	out.ActionItems = append([]string(nil), r.ActionItems...)
	return out
}

// Filter selects recommendations; empty fields match everything
type Filter struct {
	Priority []Priority `json:"priority,omitempty"`
	Category []Category `json:"category,omitempty"`
	Status   []Status   `json:"status,omitempty"`
}
