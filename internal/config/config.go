// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	DB       DBConfig       `mapstructure:"db"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// CrawlerConfig governs the pagination walk and fetch behavior.
type CrawlerConfig struct {
	StartURL           string `mapstructure:"start_url"`
	UserAgent          string `mapstructure:"user_agent"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_seconds"`
	RequestDelaySecs   int    `mapstructure:"request_delay_seconds"`
	MaxPages           int    `mapstructure:"max_pages"`
	RetryAttempts      int    `mapstructure:"retry_attempts"`
	RetryDelaySecs     int    `mapstructure:"retry_delay_seconds"`
}

// RequestTimeout converts the timeout knob into a duration.
func (c CrawlerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// RequestDelay converts the inter-request delay knob into a duration.
func (c CrawlerConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySecs) * time.Second
}

// RetryDelay converts the retry pause knob into a duration.
func (c CrawlerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// HeadlessConfig configures the listing-page browser.
type HeadlessConfig struct {
	NavTimeoutSecs    int `mapstructure:"nav_timeout_seconds"`
	RevealTimeoutSecs int `mapstructure:"reveal_timeout_seconds"`
}

// NavTimeout converts the navigation timeout knob into a duration.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSecs) * time.Second
}

// RevealTimeout converts the phone reveal timeout knob into a duration.
func (c HeadlessConfig) RevealTimeout() time.Duration {
	return time.Duration(c.RevealTimeoutSecs) * time.Second
}

// ScheduleConfig sets the daily run times in "HH:MM" local time.
type ScheduleConfig struct {
	CrawlTime  string `mapstructure:"crawl_time"`
	BackupTime string `mapstructure:"backup_time"`
}

// BackupConfig controls the dump output.
type BackupConfig struct {
	Dir  string `mapstructure:"dir"`
	JSON bool   `mapstructure:"json"`
	CSV  bool   `mapstructure:"csv"`
}

// MetricsConfig exposes the Prometheus endpoint; empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUTORIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "autoria")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("crawler.start_url", "https://auto.ria.com/uk/car/used")
	v.SetDefault("crawler.user_agent", "autoria-crawler/0.1")
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.request_delay_seconds", 2)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.retry_attempts", 3)
	v.SetDefault("crawler.retry_delay_seconds", 5)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.reveal_timeout_seconds", 5)
	v.SetDefault("schedule.crawl_time", "12:00")
	v.SetDefault("schedule.backup_time", "23:00")
	v.SetDefault("backup.dir", "dumps")
	v.SetDefault("backup.json", true)
	v.SetDefault("backup.csv", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.StartURL == "" {
		return fmt.Errorf("crawler.start_url is required")
	}
	parsed, err := url.Parse(c.Crawler.StartURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("crawler.start_url must be an http(s) URL")
	}
	if c.Crawler.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.RequestDelaySecs < 0 {
		return fmt.Errorf("crawler.request_delay_seconds must be >= 0")
	}
	if c.Crawler.RetryAttempts < 1 {
		return fmt.Errorf("crawler.retry_attempts must be >= 1")
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		return fmt.Errorf("db.host and db.name are required")
	}
	if !c.Backup.JSON && !c.Backup.CSV {
		return fmt.Errorf("at least one of backup.json and backup.csv must be enabled")
	}
	for _, value := range []string{c.Schedule.CrawlTime, c.Schedule.BackupTime} {
		if _, err := time.Parse("15:04", value); err != nil {
			return fmt.Errorf("schedule times must be HH:MM, got %q", value)
		}
	}
	return nil
}
