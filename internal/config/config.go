// Package config loads the server configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file named by CONFIG_FILE (optional)
//  3. a .env file in the working directory (optional, never overrides real env)
//  4. environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/knightclub/tournament-app/pkg/logging"
)

// Config is the top-level server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	Log       LogConfig       `yaml:"log"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// DatabaseURL is a PostgreSQL DSN. Store-backed routes answer 503 without it.
	DatabaseURL string `yaml:"database_url"`

	// RedisURL is a redis:// URL. Rate limiting is process-local without it.
	RedisURL string `yaml:"redis_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CalendarConfig configures calendar fetching and caching.
type CalendarConfig struct {
	// IDs are the Google calendars to merge. Empty serves sample events.
	IDs []string `yaml:"ids"`

	// GoogleCredentials is a service account key, inline JSON or a file path.
	GoogleCredentials string `yaml:"google_credentials"`

	// GoogleAPIKey is used for public calendars without a service account.
	GoogleAPIKey string `yaml:"google_api_key"`

	// Timezone is the IANA zone used for all-day events.
	Timezone string `yaml:"timezone"`

	CacheTTL        time.Duration `yaml:"cache_ttl"`
	StaleRetention  time.Duration `yaml:"stale_retention"`
	BucketWidth     time.Duration `yaml:"bucket_width"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	MaxEntries      int           `yaml:"max_entries"`
}

// TelegramConfig configures the bot and Mini App authentication.
type TelegramConfig struct {
	BotToken       string        `yaml:"bot_token"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	WebhookURL     string        `yaml:"webhook_url"`
	WebAppURL      string        `yaml:"webapp_url"`
	AdminIDs       []int64       `yaml:"admin_ids"`
	InitDataMaxAge time.Duration `yaml:"init_data_max_age"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Port: "8080",
		Log: LogConfig{
			Level: "info",
		},
		Calendar: CalendarConfig{
			Timezone:        "UTC",
			CacheTTL:        5 * time.Minute,
			StaleRetention:  time.Hour,
			UpstreamTimeout: 10 * time.Second,
			MaxEntries:      256,
		},
		Telegram: TelegramConfig{
			InitDataMaxAge: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 60,
		},
	}
}

// Load reads configuration from CONFIG_FILE, .env and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile applies defaults, the YAML file at path (if non-empty) and the
// environment, then validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables that are set.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_PRETTY", &c.Log.Pretty)

	if v, ok := lookup("CALENDAR_IDS"); ok && v != "" {
		c.Calendar.IDs = splitList(v)
	}
	str("GOOGLE_CREDENTIALS", &c.Calendar.GoogleCredentials)
	str("GOOGLE_API_KEY", &c.Calendar.GoogleAPIKey)
	str("TIMEZONE", &c.Calendar.Timezone)
	duration("CALENDAR_CACHE_TTL", &c.Calendar.CacheTTL)
	duration("CALENDAR_STALE_RETENTION", &c.Calendar.StaleRetention)
	duration("CALENDAR_BUCKET_WIDTH", &c.Calendar.BucketWidth)
	duration("CALENDAR_UPSTREAM_TIMEOUT", &c.Calendar.UpstreamTimeout)
	integer("CALENDAR_MAX_ENTRIES", &c.Calendar.MaxEntries)

	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	integer("RATE_LIMIT_PER_MINUTE", &c.RateLimit.PerMinute)

	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_WEBHOOK_SECRET", &c.Telegram.WebhookSecret)
	str("TELEGRAM_WEBHOOK_URL", &c.Telegram.WebhookURL)
	str("WEBAPP_URL", &c.Telegram.WebAppURL)
	duration("INIT_DATA_MAX_AGE", &c.Telegram.InitDataMaxAge)

	if v, ok := lookup("ADMIN_TELEGRAM_IDS"); ok && v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err))
		} else {
			c.Telegram.AdminIDs = ids
		}
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535 (got %q)", c.Port))
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.Log.Level)); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Calendar.Timezone, err))
	}
	if c.Calendar.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("calendar cache ttl must be > 0 (got %s)", c.Calendar.CacheTTL))
	}
	if c.Calendar.StaleRetention < 0 {
		errs = append(errs, fmt.Errorf("calendar stale retention must be >= 0 (got %s)", c.Calendar.StaleRetention))
	}
	if c.Calendar.BucketWidth < 0 {
		errs = append(errs, fmt.Errorf("calendar bucket width must be >= 0 (got %s)", c.Calendar.BucketWidth))
	}
	if c.Calendar.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("calendar upstream timeout must be > 0 (got %s)", c.Calendar.UpstreamTimeout))
	}
	if c.Calendar.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("calendar max entries must be >= 0 (got %d)", c.Calendar.MaxEntries))
	}
	if len(c.Calendar.IDs) > 0 && c.Calendar.GoogleCredentials == "" && c.Calendar.GoogleAPIKey == "" {
		errs = append(errs, fmt.Errorf("calendar ids require GOOGLE_CREDENTIALS or GOOGLE_API_KEY"))
	}
	if c.RateLimit.PerMinute <= 0 {
		errs = append(errs, fmt.Errorf("rate limit per minute must be > 0 (got %d)", c.RateLimit.PerMinute))
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.BotToken == "" {
		errs = append(errs, fmt.Errorf("telegram webhook url requires TELEGRAM_BOT_TOKEN"))
	}
	if c.Telegram.BotToken != "" && c.Telegram.WebhookSecret == "" {
		errs = append(errs, fmt.Errorf("TELEGRAM_BOT_TOKEN requires TELEGRAM_WEBHOOK_SECRET"))
	}
	if c.Telegram.InitDataMaxAge < 0 {
		errs = append(errs, fmt.Errorf("init data max age must be >= 0 (got %s)", c.Telegram.InitDataMaxAge))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the calendar time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GoogleCredentialsJSON returns the service account key. The setting may
// hold the JSON itself or a path to it. Returns nil when unset.
func (c *Config) GoogleCredentialsJSON() ([]byte, error) {
	creds := strings.TrimSpace(c.Calendar.GoogleCredentials)
	if creds == "" {
		return nil, nil
	}
	if strings.HasPrefix(creds, "{") {
		return []byte(creds), nil
	}
	data, err := os.ReadFile(creds)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	return data, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
