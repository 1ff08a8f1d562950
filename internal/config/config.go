// Package config reads tracker settings from the environment and an
// optional YAML file of chart settings.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tracker/internal/charts"
)

// Config holds application configuration
type Config struct {
	// HTTP Server
	Port     string
	LogLevel string
	CSRFKey  string
	TZName   string

	// Storage; DataBackend is "sqlite" or "memory".
	DataBackend  string
	SQLiteDBPath string
	DataDir      string

	// AMQP; publishing is disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Charts
	ChartSettingsFile string
	ChartCacheSize    int
	ChartCacheTTL     time.Duration
	Charts            ChartSettings
}

// ChartSettings tunes the chart builders.
type ChartSettings struct {
	MovingAverageWindow   int      `yaml:"moving_average_window"`
	HeatmapSpanWeeks      int      `yaml:"heatmap_span_weeks"`
	HeatmapLabelThreshold *float64 `yaml:"heatmap_label_threshold"`
	WeekEnd               string   `yaml:"week_end"`
}

// DefaultChartSettings returns the chart settings used without a settings file.
func DefaultChartSettings() ChartSettings {
	return ChartSettings{
		MovingAverageWindow: 14,
		HeatmapSpanWeeks:    14,
		WeekEnd:             "saturday",
	}
}

// Load reads the environment. The chart settings file, when configured,
// overrides the chart defaults field by field.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		CSRFKey:  getEnv("CSRF_KEY", ""),
		TZName:   getEnv("TZ_NAME", "Local"),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tracker.db"),
		DataDir:      getEnv("DATA_DIR", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tracker"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "entry_changes"),

		ChartSettingsFile: getEnv("CHART_SETTINGS_FILE", ""),
		ChartCacheSize:    getEnvInt("CHART_CACHE_SIZE", 64),
		ChartCacheTTL:     getEnvDuration("CHART_CACHE_TTL", 5*time.Minute),
		Charts:            DefaultChartSettings(),
	}

	if cfg.ChartSettingsFile != "" {
		charts, err := LoadChartSettings(cfg.ChartSettingsFile)
		if err != nil {
			return cfg, err
		}
		cfg.Charts = charts
	}
	return cfg, nil
}

// LoadChartSettings reads a YAML chart settings file on top of the defaults.
func LoadChartSettings(path string) (ChartSettings, error) {
	settings := DefaultChartSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read chart settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse chart settings %s: %w", path, err)
	}
	return settings, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeekEndDay returns the configured last day of the week.
func (s ChartSettings) WeekEndDay() (time.Weekday, error) {
	if s.WeekEnd == "" {
		return time.Saturday, nil
	}
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s.WeekEnd))]
	if !ok {
		return 0, fmt.Errorf("unknown week day %q", s.WeekEnd)
	}
	return d, nil
}

// Location resolves TZName.
func (c *Config) Location() (*time.Location, error) {
	if c.TZName == "" || c.TZName == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TZName)
}

// AMQPEnabled reports whether change notifications should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// ChartOptions turns the chart settings into builder options for the
// configured time zone.
func (c *Config) ChartOptions() (charts.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return charts.Options{}, err
	}
	weekEnd, err := c.Charts.WeekEndDay()
	if err != nil {
		return charts.Options{}, err
	}
	return charts.Options{
		Series: charts.SeriesOptions{
			Window:   c.Charts.MovingAverageWindow,
			Location: loc,
		},
		Heatmap: charts.HeatmapOptions{
			SpanWeeks:      c.Charts.HeatmapSpanWeeks,
			LabelThreshold: c.Charts.HeatmapLabelThreshold,
			WeekEnd:        &weekEnd,
			Location:       loc,
		},
	}, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty")
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be 'sqlite' or 'memory'", c.DataBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CSRFKey != "" && len(c.CSRFKey) != 32 {
		errors = append(errors, fmt.Sprintf("invalid CSRF key: must be 32 bytes, got %d", len(c.CSRFKey)))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid time zone '%s': %v", c.TZName, err))
	}

	if c.ChartCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid chart cache size %d: must be at least 1", c.ChartCacheSize))
	}
	if c.ChartCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid chart cache TTL %v: must be at least 1 second", c.ChartCacheTTL))
	}

	if c.Charts.MovingAverageWindow < 1 {
		errors = append(errors, fmt.Sprintf("invalid moving average window %d: must be at least 1", c.Charts.MovingAverageWindow))
	}
	if c.Charts.HeatmapSpanWeeks < 1 {
		errors = append(errors, fmt.Sprintf("invalid heatmap span %d: must be at least 1 week", c.Charts.HeatmapSpanWeeks))
	}
	if _, err := c.Charts.WeekEndDay(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid week end: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
