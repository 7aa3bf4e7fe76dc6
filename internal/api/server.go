// Package api exposes the dashboard over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/pkg/dashboard"
	"github.com/amosWeiskopf/seowatch/pkg/fetcher"
)

// PageFetcher downloads pages for analyze requests that list URLs
type PageFetcher interface {
	FetchAll(ctx context.Context, urls []string) ([]fetcher.Result, error)
}

// Server serves the dashboard API. Every handler holds mu while it touches
// the dashboard.
type Server struct {
	cfg     config.ServerConfig
	logger  zerolog.Logger
	fetcher PageFetcher

	mu   sync.Mutex
	dash *dashboard.Dashboard

	router *gin.Engine
	http   *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithFetcher enables analyze requests by URL
func WithFetcher(f PageFetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// New builds the server and its routes
func New(cfg config.ServerConfig, dash *dashboard.Dashboard, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: zerolog.Nop(),
		dash:   dash,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(recovery(s.logger), requestLogger(s.logger))
	if cfg.RateLimit > 0 {
		r.Use(newRateLimiter(cfg.RateLimit, cfg.RateBurst).middleware())
	}
	s.routes(r)
	s.router = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/analyze", s.analyze)
	api.POST("/autofix", s.autoFix)

	pages := api.Group("/pages")
	pages.POST("/bulk-update", s.bulkUpdate)
	pages.POST("/rollback", s.rollback)

	issues := api.Group("/issues")
	issues.GET("", s.listIssues)
	issues.GET("/metrics", s.issueMetrics)
	issues.GET("/trends", s.issueTrends)
	issues.GET("/resolution", s.resolutionPerformance)
	issues.GET("/export", s.exportIssues)
	issues.GET("/:id", s.getIssue)
	issues.PATCH("/:id/status", s.updateIssueStatus)
	issues.POST("/:id/notes", s.addIssueNote)
	issues.POST("/:id/tags", s.addIssueTags)
	issues.PUT("/:id/assignee", s.assignIssue)

	api.GET("/recommendations", s.listRecommendations)
	api.PATCH("/recommendations/:id/status", s.updateRecommendationStatus)
	api.GET("/action-plan", s.actionPlan)

	perf := api.Group("/performance")
	perf.POST("/vitals", s.recordVitals)
	perf.GET("/summary", s.performanceSummary)
	perf.GET("/trends", s.performanceTrends)
	perf.GET("/issues", s.performanceIssues)
	perf.GET("/compare", s.comparePerformance)
	perf.GET("/alerts", s.listAlerts)
	perf.POST("/alerts/:id/resolve", s.resolveAlert)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server starting")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
