package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	Report      ReportConfig      `mapstructure:"report"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Fetcher     FetcherConfig     `mapstructure:"fetcher"`
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// MonitorConfig holds health checker and remediation settings
type MonitorConfig struct {
	HealthCheckIntervalHours int     `mapstructure:"health_check_interval_hours"`
	AutoFixEnabled           bool    `mapstructure:"auto_fix_enabled"`
	AlertingEnabled          bool    `mapstructure:"alerting_enabled"`
	BulkUpdateBatchSize      int     `mapstructure:"bulk_update_batch_size"`
	RollbackEnabled          bool    `mapstructure:"rollback_enabled"`
	FixRatePerSecond         float64 `mapstructure:"fix_rate_per_second"`
}

// ReportConfig holds report rendering and scheduling settings
type ReportConfig struct {
	Format                 string   `mapstructure:"format"` // "html", "json", "csv", "markdown", "pdf"
	IncludeDetails         bool     `mapstructure:"include_details"`
	IncludeRecommendations bool     `mapstructure:"include_recommendations"`
	IncludePerformance     bool     `mapstructure:"include_performance"`
	ScheduleTime           string   `mapstructure:"schedule_time"` // HH:MM
	Timezone               string   `mapstructure:"timezone"`
	OutputDir              string   `mapstructure:"output_dir"`
	EmailRecipients        []string `mapstructure:"email_recipients"`
	SlackWebhook           string   `mapstructure:"slack_webhook"`
}

// Threshold is a good / needs-improvement boundary pair for one metric
type Threshold struct {
	Good             float64 `mapstructure:"good"`
	NeedsImprovement float64 `mapstructure:"needs_improvement"`
}

// ThresholdsConfig holds the per-metric performance thresholds
type ThresholdsConfig struct {
	LCP      Threshold `mapstructure:"lcp"`
	FID      Threshold `mapstructure:"fid"`
	CLS      Threshold `mapstructure:"cls"`
	SEOScore Threshold `mapstructure:"seo_score"`
	LoadTime Threshold `mapstructure:"load_time"`
}

// PerformanceConfig holds performance tracker settings
type PerformanceConfig struct {
	Thresholds        ThresholdsConfig `mapstructure:"thresholds"`
	MaxSamplesPerPage int              `mapstructure:"max_samples_per_page"`
	MaxAlerts         int              `mapstructure:"max_alerts"`
}

// FetcherConfig holds page fetcher settings
type FetcherConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst    int           `mapstructure:"rate_burst"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("seowatch")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.seowatch")
	}

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine, defaults and env still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.health_check_interval_hours", 24)
	v.SetDefault("monitor.auto_fix_enabled", false)
	v.SetDefault("monitor.alerting_enabled", true)
	v.SetDefault("monitor.bulk_update_batch_size", 10)
	v.SetDefault("monitor.rollback_enabled", true)
	v.SetDefault("monitor.fix_rate_per_second", 20.0)

	v.SetDefault("report.format", "html")
	v.SetDefault("report.include_details", true)
	v.SetDefault("report.include_recommendations", true)
	v.SetDefault("report.include_performance", true)
	v.SetDefault("report.schedule_time", "09:00")
	v.SetDefault("report.timezone", "UTC")
	v.SetDefault("report.output_dir", "./reports")
	v.SetDefault("report.email_recipients", []string{})
	v.SetDefault("report.slack_webhook", "")

	v.SetDefault("performance.thresholds.lcp.good", 2500)
	v.SetDefault("performance.thresholds.lcp.needs_improvement", 4000)
	v.SetDefault("performance.thresholds.fid.good", 100)
	v.SetDefault("performance.thresholds.fid.needs_improvement", 300)
	v.SetDefault("performance.thresholds.cls.good", 0.1)
	v.SetDefault("performance.thresholds.cls.needs_improvement", 0.25)
	v.SetDefault("performance.thresholds.seo_score.good", 80)
	v.SetDefault("performance.thresholds.seo_score.needs_improvement", 60)
	v.SetDefault("performance.thresholds.load_time.good", 2000)
	v.SetDefault("performance.thresholds.load_time.needs_improvement", 4000)
	v.SetDefault("performance.max_samples_per_page", 100)
	v.SetDefault("performance.max_alerts", 500)

	v.SetDefault("fetcher.user_agent", "SEOWatch/1.0")
	v.SetDefault("fetcher.requests_per_second", 5.0)
	v.SetDefault("fetcher.timeout", "15s")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.concurrency", 4)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.path", "./data/seowatch.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stderr")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("SEOWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("report.email_recipients", "SEOWATCH_REPORT_EMAIL_RECIPIENTS")
	// SLACK_WEBHOOK_URL is accepted as an alias
	_ = v.BindEnv("report.slack_webhook", "SEOWATCH_REPORT_SLACK_WEBHOOK", "SLACK_WEBHOOK_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Monitor.BulkUpdateBatchSize <= 0 {
		return fmt.Errorf("monitor.bulk_update_batch_size must be positive")
	}
	if c.Monitor.FixRatePerSecond <= 0 {
		return fmt.Errorf("monitor.fix_rate_per_second must be positive")
	}
	if c.Performance.MaxSamplesPerPage <= 0 {
		return fmt.Errorf("performance.max_samples_per_page must be positive")
	}
	if c.Performance.MaxAlerts <= 0 {
		return fmt.Errorf("performance.max_alerts must be positive")
	}
	if _, err := time.Parse("15:04", c.Report.ScheduleTime); err != nil {
		return fmt.Errorf("report.schedule_time must be HH:MM: %w", err)
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	switch c.Report.Format {
	case "html", "json", "csv", "markdown", "pdf":
	default:
		return fmt.Errorf("report.format %q is not supported", c.Report.Format)
	}
	if c.Fetcher.Concurrency <= 0 {
		return fmt.Errorf("fetcher.concurrency must be positive")
	}
	return nil
}
