package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/api"
	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/internal/store"
	"github.com/amosWeiskopf/seowatch/pkg/dashboard"
	"github.com/amosWeiskopf/seowatch/pkg/fetcher"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app holds what PersistentPreRunE prepares for every command
var app struct {
	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

var rootCmd = &cobra.Command{
	Use:   "seowatch",
	Short: "SEOWatch - SEO health monitoring for generated pages",
	Long: `SEOWatch checks the SEO health of generated marketing pages, tracks
issues and performance over time, recommends fixes and produces daily reports.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env is optional
		_ = godotenv.Load()

		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.Logging.Level = "debug"
		}
		logger, closer, err := logging.New(cfg.Logging, nil)
		if err != nil {
			return err
		}
		app.cfg, app.logger, app.closer = cfg, logger, closer
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if app.closer != nil {
			return app.closer.Close()
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a comprehensive SEO analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		asJSON, _ := cmd.Flags().GetBool("json")
		emit := func(result *dashboard.AnalysisResult) {
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					app.logger.Error().Err(err).Msg("failed to write analysis")
				}
				return
			}
			printAnalysis(cmd.OutOrStdout(), result)
		}

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			interval := dash.HealthCheckInterval()
			app.logger.Info().Dur("interval", interval).Msg("watching pages")
			return dash.Watch(ctx, interval, func(ctx context.Context) ([]models.PageFacts, error) {
				return loadPages(ctx, cmd)
			}, emit)
		}

		pages, err := loadPages(ctx, cmd)
		if err != nil {
			return err
		}
		result, err := dash.PerformComprehensiveAnalysis(ctx, pages)
		if err != nil && result == nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		if err != nil {
			app.logger.Error().Err(err).Msg("analysis not persisted")
		}
		emit(result)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the SEO report for a set of pages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if format, _ := cmd.Flags().GetString("format"); format != "" {
			app.cfg.Report.Format = format
		}
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		pages, err := loadPages(ctx, cmd)
		if err != nil {
			return err
		}
		report, err := dash.GenerateReport(ctx, pages)
		if err != nil {
			return fmt.Errorf("report generation failed: %w", err)
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		}
		if err := os.WriteFile(output, []byte(report), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", output)
		return nil
	},
}

var autofixCmd = &cobra.Command{
	Use:   "autofix",
	Short: "Apply automatic fixes to the detected issues",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		pages, err := loadPages(ctx, cmd)
		if err != nil {
			return err
		}
		result, err := dash.AutoFix(ctx, pages)
		if err != nil {
			app.logger.Error().Err(err).Msg("auto-fix not persisted")
		}

		out := cmd.OutOrStdout()
		for key, msg := range result.Errors {
			color.New(color.FgRed).Fprintf(out, "%s: %s\n", key, msg)
		}
		fmt.Fprintf(out, "Attempted %d fixes: %s fixed, %s failed\n", result.Attempted,
			color.GreenString("%d", result.Fixed), color.RedString("%d", result.Failed))

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			fixed := make([]models.PageFacts, 0, len(result.Pages))
			for _, p := range pages {
				if fp, ok := result.Pages[p.URL]; ok {
					fixed = append(fixed, fp)
				}
			}
			if err := writeCatalog(output, fixed); err != nil {
				return err
			}
			fmt.Fprintf(out, "Fixed pages written to %s\n", output)
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [URL...]",
	Short: "Fetch pages and write them as a page catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := newFetcher()
		results, err := f.FetchAll(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("fetch interrupted: %w", err)
		}
		out := cmd.ErrOrStderr()
		for _, r := range results {
			if r.Err != nil {
				color.New(color.FgYellow).Fprintf(out, "skipped %s: %v\n", r.URL, r.Err)
			}
		}

		pages := fetcher.Pages(results)
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			return writeYAML(cmd.OutOrStdout(), pages)
		}
		if err := writeCatalog(output, pages); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d pages to %s\n", len(pages), output)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tracked issues from storage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if !app.cfg.Storage.Enabled {
			return fmt.Errorf("export needs storage.enabled")
		}
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		format, _ := cmd.Flags().GetString("format")
		data, err := dash.Issues().ExportIssueData(format)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			fmt.Fprintln(cmd.OutOrStdout(), data)
			return nil
		}
		return os.WriteFile(output, []byte(data), 0o644)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate and dispatch the report every day at the configured time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		scheduler, err := dash.NewScheduler()
		if err != nil {
			return err
		}
		provider := func(ctx context.Context) ([]models.PageFacts, error) {
			return loadPages(ctx, cmd)
		}
		if once, _ := cmd.Flags().GetBool("once"); once {
			return scheduler.RunOnce(ctx, provider)
		}
		if err := scheduler.Start(ctx, provider); err != nil {
			return err
		}
		<-ctx.Done()
		scheduler.Stop()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dash, cleanup, err := openDashboard(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			app.cfg.Server.Port = port
		}
		srv := api.New(app.cfg.Server, dash,
			api.WithLogger(app.logger.With().Str("component", "api").Logger()),
			api.WithFetcher(newFetcher()))
		return srv.Run(ctx)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{analyzeCmd, reportCmd, autofixCmd, scheduleCmd} {
		addPageFlags(cmd)
	}
	analyzeCmd.Flags().Bool("json", false, "Print the full analysis as JSON")
	analyzeCmd.Flags().Bool("watch", false, "Re-run the analysis every monitor.health_check_interval_hours until interrupted")

	reportCmd.Flags().String("format", "", "Report format (html, json, csv, markdown, pdf)")
	reportCmd.Flags().String("output", "", "Output file for the report")

	autofixCmd.Flags().String("output", "", "Write the fixed pages to this catalog file")

	fetchCmd.Flags().String("output", "", "Catalog file to write (.yaml or .json)")

	exportCmd.Flags().String("format", "json", "Export format (json, csv)")
	exportCmd.Flags().String("output", "", "Output file")

	scheduleCmd.Flags().Bool("once", false, "Run the report once and exit")

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(analyzeCmd, reportCmd, autofixCmd, fetchCmd, exportCmd, scheduleCmd, serveCmd)

	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
}

// openDashboard builds the dashboard and restores stored state when storage is enabled
func openDashboard(ctx context.Context) (*dashboard.Dashboard, func(), error) {
	opts := []dashboard.Option{dashboard.WithLogger(app.logger)}
	cleanup := func() {}

	if app.cfg.Storage.Enabled {
		st, err := store.Open(store.OpenOptions{
			Path:        filepath.Clean(app.cfg.Storage.Path),
			AutoMigrate: true,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, dashboard.WithStore(st))
		cleanup = func() {
			if err := st.Close(); err != nil {
				app.logger.Warn().Err(err).Msg("failed to close store")
			}
		}
	}

	dash := dashboard.New(*app.cfg, opts...)
	if err := dash.Load(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return dash, cleanup, nil
}

func newFetcher() *fetcher.Fetcher {
	fc := app.cfg.Fetcher
	cfg := fetcher.DefaultConfig()
	cfg.UserAgent = fc.UserAgent
	cfg.RequestsPerSecond = fc.RequestsPerSecond
	cfg.Timeout = fc.Timeout
	cfg.RespectRobots = fc.RespectRobots
	cfg.Concurrency = fc.Concurrency
	return fetcher.New(cfg, fetcher.WithLogger(app.logger.With().Str("component", "fetcher").Logger()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnalysis(w io.Writer, r *dashboard.AnalysisResult) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "SEO analysis of %d pages\n", r.Report.TotalPages)
	fmt.Fprintf(w, "Overall score: %s\n", scoreColor(r.Report.OverallScore).Sprintf("%d", r.Report.OverallScore))
	fmt.Fprintf(w, "Issues: %s critical, %s warning, %d info (%d auto-fixable)\n",
		color.RedString("%d", r.Report.CriticalIssues),
		color.YellowString("%d", r.Report.WarningIssues),
		r.Report.InfoIssues, r.Report.AutoFixableIssues)
	fmt.Fprintf(w, "Tracked: %d open, %d resolved, resolution rate %.1f%%\n",
		r.IssueMetrics.OpenIssues, r.IssueMetrics.ResolvedIssues, r.IssueMetrics.ResolutionRate)

	if len(r.Alerts) > 0 {
		bold.Fprintln(w, "\nAlerts")
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "  [%s] %s\n", a.Severity, a.Message)
		}
	}
	if len(r.ActionPlan) > 0 {
		bold.Fprintln(w, "\nAction plan")
		for i, rec := range r.ActionPlan {
			fmt.Fprintf(w, "  %2d. %s (%s priority, %s)\n", i+1, rec.Title, rec.Priority, rec.EstimatedTime)
		}
	}
}

func scoreColor(score int) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen, color.Bold)
	case score >= 60:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgRed, color.Bold)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
