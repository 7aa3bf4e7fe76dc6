package models

import "time"

// PageFacts represents the facts gathered for one generated marketing page
type PageFacts struct {
	URL             string         `json:"url" yaml:"url"`
	Title           string         `json:"title" yaml:"title"`
	MetaDescription string         `json:"metaDescription" yaml:"meta_description"`
	H1Tag           string         `json:"h1Tag" yaml:"h1_tag"`
	WordCount       int            `json:"wordCount" yaml:"word_count"`
	InternalLinks   []string       `json:"internalLinks" yaml:"internal_links"`
	OutgoingLinks   []string       `json:"outgoingLinks" yaml:"outgoing_links"`
	CanonicalURL    string         `json:"canonicalUrl" yaml:"canonical_url"`
	StructuredData  map[string]any `json:"structuredData,omitempty" yaml:"structured_data,omitempty"`
	SEOScore        float64        `json:"seoScore" yaml:"seo_score"`

	// LoadTime is the measured load time in milliseconds, zero when unknown
	LoadTime float64 `json:"loadTime,omitempty" yaml:"load_time,omitempty"`
}

// Clone returns a deep copy of the page facts
func (p PageFacts) Clone() PageFacts {
	out := p
	out.InternalLinks = append([]string(nil), p.InternalLinks...)
	out.OutgoingLinks = append([]string(nil), p.OutgoingLinks...)
	if p.StructuredData != nil {
		out.StructuredData = make(map[string]any, len(p.StructuredData))
		for k, v := range p.StructuredData {
			out.StructuredData[k] = v
		}
	}
	return out
}

// HealthCheck is the per-page output of the health checker
type HealthCheck struct {
	PageURL         string    `json:"pageUrl"`
	Timestamp       time.Time `json:"timestamp"`
	Issues          []Issue   `json:"issues"`
	Score           int       `json:"score"`
	Recommendations []string  `json:"recommendations"`
}

// SEOReport aggregates the health checks of a bulk run
type SEOReport struct {
	GeneratedAt       time.Time     `json:"generatedAt"`
	TotalPages        int           `json:"totalPages"`
	OverallScore      int           `json:"overallScore"`
	CriticalIssues    int           `json:"criticalIssues"`
	WarningIssues     int           `json:"warningIssues"`
	InfoIssues        int           `json:"infoIssues"`
	AutoFixableIssues int           `json:"autoFixableIssues"`
	HealthChecks      []HealthCheck `json:"healthChecks"`
	Recommendations   []string      `json:"recommendations"`
}

// AllIssues flattens the issues of every health check in the report
func (r *SEOReport) AllIssues() []Issue {
	var issues []Issue
	for _, hc := range r.HealthChecks {
		issues = append(issues, hc.Issues...)
	}
	return issues
}
