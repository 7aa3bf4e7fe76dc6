package reporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// ErrEmptyPath is returned when a file delivery has no output directory
var ErrEmptyPath = errors.New("output directory is empty")

// Delivery is a rendered report ready to be sent
type Delivery struct {
	Format      string
	Content     string
	GeneratedAt time.Time
	Report      *models.SEOReport
}

// Dispatcher sends a rendered report somewhere
type Dispatcher interface {
	Dispatch(ctx context.Context, d Delivery) error
}

// EmailDispatcher logs the email it would send. The hosting application
// is expected to replace it with a real mail transport.
type EmailDispatcher struct {
	Recipients []string
	Logger     zerolog.Logger
}

// Dispatch implements Dispatcher
func (e EmailDispatcher) Dispatch(ctx context.Context, d Delivery) error {
	if len(e.Recipients) == 0 {
		return nil
	}
	e.Logger.Info().
		Strs("recipients", e.Recipients).
		Str("format", d.Format).
		Int("bytes", len(d.Content)).
		Msg("email report dispatched")
	return ctx.Err()
}

// SlackDispatcher logs the Slack post it would make
type SlackDispatcher struct {
	Webhook string
	Logger  zerolog.Logger
}

// Dispatch implements Dispatcher
func (s SlackDispatcher) Dispatch(ctx context.Context, d Delivery) error {
	if s.Webhook == "" {
		return nil
	}
	event := s.Logger.Info().Str("format", d.Format)
	if d.Report != nil {
		event = event.Int("score", d.Report.OverallScore).Int("critical", d.Report.CriticalIssues)
	}
	event.Msg("slack report dispatched")
	return ctx.Err()
}

// FileDispatcher writes reports into a directory as seo-report-YYYY-MM-DD.<ext>
type FileDispatcher struct {
	Dir    string
	Logger zerolog.Logger
}

// Path returns the file a delivery is written to
func (f FileDispatcher) Path(d Delivery) string {
	return filepath.Join(f.Dir, fmt.Sprintf("seo-report-%s.%s", formatDate(d.GeneratedAt), Extension(d.Format)))
}

// Dispatch implements Dispatcher
func (f FileDispatcher) Dispatch(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Dir == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := f.Path(d)
	if err := os.WriteFile(path, []byte(d.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	f.Logger.Info().Str("path", path).Msg("report written")
	return nil
}

// DefaultDispatchers builds the email, Slack and file dispatchers from config
func DefaultDispatchers(cfg Config, logger zerolog.Logger) []Dispatcher {
	return []Dispatcher{
		EmailDispatcher{Recipients: cfg.EmailRecipients, Logger: logger},
		SlackDispatcher{Webhook: cfg.SlackWebhook, Logger: logger},
		FileDispatcher{Dir: cfg.OutputDir, Logger: logger},
	}
}
