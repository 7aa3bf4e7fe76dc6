package tracker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

type exportDocument struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Metrics    IssueMetrics   `json:"metrics"`
	Issues     []TrackedIssue `json:"issues"`
	History    []TrackedIssue `json:"history"`
}

var csvHeader = []string{
	"id", "page_url", "issue_type", "severity", "status", "priority",
	"first_detected", "last_seen", "occurrence_count", "assigned_to",
	"tags", "resolution_attempts", "resolved_at",
}

// ExportIssueData serializes every tracked issue as json or csv
func (t *IssueTracker) ExportIssueData(format string) (string, error) {
	state := t.State()
	switch strings.ToLower(format) {
	case "json":
		doc := exportDocument{
			ExportedAt: t.now(),
			Metrics:    t.GetMetrics(),
			Issues:     state.Issues,
			History:    state.History,
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal issues: %w", err)
		}
		return string(data), nil
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(csvHeader); err != nil {
			return "", fmt.Errorf("failed to write csv header: %w", err)
		}
		for _, ti := range append(state.Issues, state.History...) {
			if err := w.Write(csvRow(ti)); err != nil {
				return "", fmt.Errorf("failed to write csv row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("failed to flush csv: %w", err)
		}
		return buf.String(), nil
	}
	return "", fmt.Errorf("issue export %q: %w", format, models.ErrUnsupportedFormat)
}

func csvRow(ti TrackedIssue) []string {
	resolvedAt := ""
	if ti.ResolvedAt != nil {
		resolvedAt = ti.ResolvedAt.Format(time.RFC3339)
	}
	return []string{
		ti.ID,
		ti.PageURL,
		string(ti.IssueType),
		string(ti.Severity),
		string(ti.Status),
		string(ti.Priority),
		ti.FirstDetected.Format(time.RFC3339),
		ti.LastSeen.Format(time.RFC3339),
		strconv.Itoa(ti.OccurrenceCount),
		ti.AssignedTo,
		strings.Join(ti.Tags, ";"),
		strconv.Itoa(len(ti.ResolutionAttempts)),
		resolvedAt,
	}
}
