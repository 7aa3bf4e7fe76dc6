package store

import "time"

// IssueRow persists one tracked issue. Archived rows belong to the
// tracker history.
type IssueRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	IssueKey      string    `gorm:"index;size:512"`
	PageURL       string    `gorm:"index;size:2048"`
	IssueType     string    `gorm:"index;size:64"`
	Severity      string    `gorm:"size:16"`
	Status        string    `gorm:"index;size:16"`
	Priority      string    `gorm:"size:16"`
	Archived      bool      `gorm:"index"`
	FirstDetected time.Time `gorm:"index"`
	Position      int
	Payload       string `gorm:"type:text"`
}

// TableName implements gorm's tabler
func (IssueRow) TableName() string { return "tracked_issues" }

// Sample series names
const (
	SeriesVitals = "vitals"
	SeriesSEO    = "seo"
)

// SampleRow persists one Core Web Vitals or SEO performance sample
type SampleRow struct {
	ID        uint      `gorm:"primarykey"`
	Series    string    `gorm:"index:idx_sample_series_url;size:16"`
	URL       string    `gorm:"index:idx_sample_series_url;size:2048"`
	Timestamp time.Time `gorm:"index"`
	Position  int
	Payload   string `gorm:"type:text"`
}

// TableName implements gorm's tabler
func (SampleRow) TableName() string { return "performance_samples" }

// AlertRow persists one performance alert
type AlertRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	URL       string    `gorm:"index;size:2048"`
	Metric    string    `gorm:"size:32"`
	Resolved  bool      `gorm:"index"`
	Timestamp time.Time `gorm:"index"`
	Position  int
	Payload   string `gorm:"type:text"`
}

// TableName implements gorm's tabler
func (AlertRow) TableName() string { return "performance_alerts" }

// RecommendationRow persists one recommendation
type RecommendationRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"size:256"`
	Priority  string `gorm:"index;size:16"`
	Category  string `gorm:"index;size:32"`
	Status    string `gorm:"index;size:16"`
	CreatedAt time.Time
	Position  int
	Payload   string `gorm:"type:text"`
}

// TableName implements gorm's tabler
func (RecommendationRow) TableName() string { return "recommendations" }

func allModels() []any {
	return []any{&IssueRow{}, &SampleRow{}, &AlertRow{}, &RecommendationRow{}}
}
