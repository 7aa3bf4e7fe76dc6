package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

var (
	// ErrInvalidScheduleTime is returned for schedule times not in HH:MM form
	ErrInvalidScheduleTime = errors.New("invalid schedule time")
	// ErrSchedulerRunning is returned when Start is called twice
	ErrSchedulerRunning = errors.New("scheduler already running")
)

// PageProvider returns the pages to analyze for a scheduled run
type PageProvider func(ctx context.Context) ([]models.PageFacts, error)

// ParseScheduleTime parses an HH:MM wall clock time
func ParseScheduleTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidScheduleTime, s)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns today's HH:MM in loc, or tomorrow's when that time is not
// after now
func NextRun(now time.Time, scheduleTime string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseScheduleTime(scheduleTime)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next, nil
}

// Scheduler regenerates and dispatches the report once a day. Each run
// computes the next wake-up from the wall clock, so delays do not accumulate.
type Scheduler struct {
	gen         *Generator
	dispatchers []Dispatcher
	schedule    string
	loc         *time.Location
	logger      zerolog.Logger
	now         func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger
func WithSchedulerLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithSchedulerClock overrides the scheduler time source
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler for the generator's configured time and timezone
func NewScheduler(gen *Generator, dispatchers []Dispatcher, opts ...SchedulerOption) (*Scheduler, error) {
	cfg := gen.Config()
	if _, _, err := ParseScheduleTime(cfg.ScheduleTime); err != nil {
		return nil, err
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	s := &Scheduler{
		gen:         gen,
		dispatchers: dispatchers,
		schedule:    cfg.ScheduleTime,
		loc:         loc,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the scheduling loop. It returns ErrSchedulerRunning if the
// loop is already active.
func (s *Scheduler) Start(ctx context.Context, getPages PageProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, getPages, s.done)
	return nil
}

// Stop clears the pending wake-up and waits for a run in progress to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, getPages PageProvider, done chan struct{}) {
	defer close(done)
	for {
		next, err := NextRun(s.now(), s.schedule, s.loc)
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduler stopped")
			return
		}
		s.logger.Info().Time("next_run", next).Msg("daily report scheduled")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// a started run completes even if Stop is called meanwhile
		if err := s.RunOnce(context.WithoutCancel(ctx), getPages); err != nil {
			s.logger.Error().Err(err).Msg("scheduled report failed")
		}
	}
}

// RunOnce generates the report and hands it to every dispatcher. A failing
// dispatcher does not prevent the others from running.
func (s *Scheduler) RunOnce(ctx context.Context, getPages PageProvider) error {
	pages, err := getPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}
	content, report, err := s.gen.generate(ctx, pages)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	delivery := Delivery{
		Format:      s.gen.Config().Format,
		Content:     content,
		GeneratedAt: s.now().In(s.loc),
		Report:      report,
	}
	var errs []error
	for _, d := range s.dispatchers {
		if err := d.Dispatch(ctx, delivery); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
