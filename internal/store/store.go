// Package store persists tracker, performance and recommendation state in
// SQLite through GORM.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
	"github.com/amosWeiskopf/seowatch/pkg/tracker"
)

var (
	// ErrEmptyPath is returned when the database path is empty
	ErrEmptyPath = errors.New("database path is required")
	// ErrNotFound is returned by LoadSnapshot when nothing has been saved yet
	ErrNotFound = errors.New("no snapshot stored")
)

const insertBatchSize = 200

// OpenOptions holds options for opening a store
type OpenOptions struct {
	Path        string          // Database file path, ":memory:" for an in-memory database
	LogLevel    logger.LogLevel // GORM log level (default: Silent)
	AutoMigrate bool            // Create or update tables on open
}

// Snapshot is the complete persisted state of a dashboard
type Snapshot struct {
	Issues          tracker.State
	Performance     performance.State
	Recommendations []recommend.Recommendation
}

// Store is a SQLite backed snapshot store
type Store struct {
	db *gorm.DB
}

// Open opens the database, applying the SQLite pragmas used for a single
// writer with concurrent readers
func Open(opts OpenOptions) (*Store, error) {
	if opts.Path == "" {
		return nil, ErrEmptyPath
	}
	if opts.Path != ":memory:" {
		if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if opts.AutoMigrate {
		if err := s.AutoMigrate(); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("auto-migration failed: %w", err)
		}
	}
	return s, nil
}

// AutoMigrate creates or updates the tables
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(allModels()...)
}

// DB returns the underlying GORM handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot replaces every stored row with the snapshot in one transaction
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	issues, err := issueRows(snap.Issues)
	if err != nil {
		return err
	}
	samples, err := sampleRows(snap.Performance)
	if err != nil {
		return err
	}
	alerts, err := alertRows(snap.Performance.Alerts)
	if err != nil {
		return err
	}
	recs, err := recommendationRows(snap.Recommendations)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range allModels() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear %T: %w", model, err)
			}
		}
		if err := insert(tx, issues); err != nil {
			return fmt.Errorf("failed to save issues: %w", err)
		}
		if err := insert(tx, samples); err != nil {
			return fmt.Errorf("failed to save performance samples: %w", err)
		}
		if err := insert(tx, alerts); err != nil {
			return fmt.Errorf("failed to save alerts: %w", err)
		}
		if err := insert(tx, recs); err != nil {
			return fmt.Errorf("failed to save recommendations: %w", err)
		}
		return nil
	})
}

// LoadSnapshot reads the stored state back. It returns ErrNotFound when
// every table is empty.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	db := s.db.WithContext(ctx)
	snap := Snapshot{
		Issues: tracker.State{Issues: []tracker.TrackedIssue{}, History: []tracker.TrackedIssue{}},
		Performance: performance.State{
			CoreWebVitals:  []performance.CoreWebVitals{},
			SEOPerformance: []performance.SEOPerformance{},
			Alerts:         []performance.Alert{},
		},
		Recommendations: []recommend.Recommendation{},
	}

	var issues []IssueRow
	if err := db.Order("archived, position").Find(&issues).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to load issues: %w", err)
	}
	for _, row := range issues {
		var issue tracker.TrackedIssue
		if err := decode(row.Payload, &issue); err != nil {
			return Snapshot{}, err
		}
		if row.Archived {
			snap.Issues.History = append(snap.Issues.History, issue)
		} else {
			snap.Issues.Issues = append(snap.Issues.Issues, issue)
		}
	}

	var samples []SampleRow
	if err := db.Order("position").Find(&samples).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to load performance samples: %w", err)
	}
	for _, row := range samples {
		switch row.Series {
		case SeriesVitals:
			var v performance.CoreWebVitals
			if err := decode(row.Payload, &v); err != nil {
				return Snapshot{}, err
			}
			snap.Performance.CoreWebVitals = append(snap.Performance.CoreWebVitals, v)
		case SeriesSEO:
			var p performance.SEOPerformance
			if err := decode(row.Payload, &p); err != nil {
				return Snapshot{}, err
			}
			snap.Performance.SEOPerformance = append(snap.Performance.SEOPerformance, p)
		default:
			return Snapshot{}, fmt.Errorf("unknown sample series %q", row.Series)
		}
	}

	var alerts []AlertRow
	if err := db.Order("position").Find(&alerts).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to load alerts: %w", err)
	}
	for _, row := range alerts {
		var a performance.Alert
		if err := decode(row.Payload, &a); err != nil {
			return Snapshot{}, err
		}
		snap.Performance.Alerts = append(snap.Performance.Alerts, a)
	}

	var recs []RecommendationRow
	if err := db.Order("position").Find(&recs).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to load recommendations: %w", err)
	}
	for _, row := range recs {
		var r recommend.Recommendation
		if err := decode(row.Payload, &r); err != nil {
			return Snapshot{}, err
		}
		snap.Recommendations = append(snap.Recommendations, r)
	}

	if len(issues)+len(samples)+len(alerts)+len(recs) == 0 {
		return snap, ErrNotFound
	}
	return snap, nil
}

func insert[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, insertBatchSize).Error
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

func decode(payload string, v any) error {
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func issueRows(state tracker.State) ([]IssueRow, error) {
	rows := make([]IssueRow, 0, len(state.Issues)+len(state.History))
	add := func(issues []tracker.TrackedIssue, archived bool) error {
		for i, issue := range issues {
			payload, err := encode(issue)
			if err != nil {
				return err
			}
			rows = append(rows, IssueRow{
				ID:            issue.ID,
				IssueKey:      issue.Key,
				PageURL:       issue.PageURL,
				IssueType:     string(issue.IssueType),
				Severity:      string(issue.Severity),
				Status:        string(issue.Status),
				Priority:      string(issue.Priority),
				Archived:      archived,
				FirstDetected: issue.FirstDetected,
				Position:      i,
				Payload:       payload,
			})
		}
		return nil
	}
	if err := add(state.Issues, false); err != nil {
		return nil, err
	}
	if err := add(state.History, true); err != nil {
		return nil, err
	}
	return rows, nil
}

func sampleRows(state performance.State) ([]SampleRow, error) {
	rows := make([]SampleRow, 0, len(state.CoreWebVitals)+len(state.SEOPerformance))
	for _, v := range state.CoreWebVitals {
		payload, err := encode(v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, SampleRow{Series: SeriesVitals, URL: v.URL, Timestamp: v.Timestamp, Position: len(rows), Payload: payload})
	}
	for _, p := range state.SEOPerformance {
		payload, err := encode(p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, SampleRow{Series: SeriesSEO, URL: p.URL, Timestamp: p.Timestamp, Position: len(rows), Payload: payload})
	}
	return rows, nil
}

func alertRows(alerts []performance.Alert) ([]AlertRow, error) {
	rows := make([]AlertRow, 0, len(alerts))
	for i, a := range alerts {
		payload, err := encode(a)
		if err != nil {
			return nil, err
		}
		rows = append(rows, AlertRow{
			ID:        a.ID,
			URL:       a.URL,
			Metric:    a.Metric,
			Resolved:  a.Resolved,
			Timestamp: a.Timestamp,
			Position:  i,
			Payload:   payload,
		})
	}
	return rows, nil
}

func recommendationRows(recs []recommend.Recommendation) ([]RecommendationRow, error) {
	rows := make([]RecommendationRow, 0, len(recs))
	for i, r := range recs {
		payload, err := encode(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecommendationRow{
			ID:        r.ID,
			Title:     r.Title,
			Priority:  string(r.Priority),
			Category:  string(r.Category),
			Status:    string(r.ImplementationStatus),
			CreatedAt: r.CreatedAt,
			Position:  i,
			Payload:   payload,
		})
	}
	return rows, nil
}
