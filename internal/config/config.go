package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cache     CacheConfig     `yaml:"cache"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Filter    FilterConfig    `yaml:"filter"`
}

// DatabaseConfig selects the persistence driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// ScheduleConfig configures background refresh.
type ScheduleConfig struct {
	RefreshInterval string   `yaml:"refresh_interval"`
	Regions         []string `yaml:"regions"`
}

// ParseRefreshInterval returns the refresh interval as time.Duration.
func (s ScheduleConfig) ParseRefreshInterval() time.Duration {
	return parseDuration(s.RefreshInterval, 55*time.Minute)
}

// YouTubeConfig configures the Data API client.
type YouTubeConfig struct {
	APIKeys           []string `yaml:"api_keys"`
	Endpoint          string   `yaml:"endpoint"`
	FeedURL           string   `yaml:"feed_url"`
	FeedFallback      bool     `yaml:"feed_fallback"`
	Language          string   `yaml:"language"`
	ShortsQuery       string   `yaml:"shorts_query"`
	PageSize          int      `yaml:"page_size"`
	CallTimeout       string   `yaml:"call_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// ParseCallTimeout returns the per-call timeout as time.Duration.
func (y YouTubeConfig) ParseCallTimeout() time.Duration {
	return parseDuration(y.CallTimeout, 15*time.Second)
}

// DiscoveryConfig configures the aggregation engine.
type DiscoveryConfig struct {
	Region          string  `yaml:"region"`
	Category        string  `yaml:"category"`
	Workers         int     `yaml:"workers"`
	RecentVideos    int     `yaml:"recent_videos"`
	RunTimeout      string  `yaml:"run_timeout"`
	SubscriberFloor int64   `yaml:"subscriber_floor"`
	RevenuePerMille float64 `yaml:"revenue_per_mille"`
	RevenueDays     int     `yaml:"revenue_days"`
}

// ParseRunTimeout returns the overall run budget as time.Duration.
func (d DiscoveryConfig) ParseRunTimeout() time.Duration {
	return parseDuration(d.RunTimeout, 60*time.Second)
}

// CacheConfig configures the snapshot cache.
type CacheConfig struct {
	TTL        string `yaml:"ttl"`
	PartialTTL string `yaml:"partial_ttl"`
	MinFill    int    `yaml:"min_fill"`
	MaxEntries int    `yaml:"max_entries"`
	RedisURL   string `yaml:"redis_url"`
}

// ParseTTL returns the snapshot TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	return parseDuration(c.TTL, time.Hour)
}

// ParsePartialTTL returns the lifetime of a snapshot missing a content type.
func (c CacheConfig) ParsePartialTTL() time.Duration {
	return parseDuration(c.PartialTTL, 5*time.Minute)
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	MinScore float64       `yaml:"min_score"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
	Webhook  WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// FilterConfig configures candidate filtering.
type FilterConfig struct {
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./hotradar.db"},
		Schedule: ScheduleConfig{
			RefreshInterval: "55m",
			Regions:         []string{"US"},
		},
		YouTube: YouTubeConfig{
			FeedFallback:      true,
			ShortsQuery:       "#shorts",
			PageSize:          50,
			CallTimeout:       "15s",
			RequestsPerSecond: 5,
		},
		Discovery: DiscoveryConfig{
			Region:          "US",
			Workers:         5,
			RecentVideos:    5,
			RunTimeout:      "60s",
			SubscriberFloor: 1000,
			RevenuePerMille: 200,
			RevenueDays:     30,
		},
		Cache: CacheConfig{
			TTL:        "1h",
			PartialTTL: "5m",
			MinFill:    150,
			MaxEntries: 256,
		},
		Alerts: AlertsConfig{MinScore: 5},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, a .env file in the working
// directory if present, and environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("YOUTUBE_API_KEYS"); v != "" {
		cfg.YouTube.APIKeys = splitList(v)
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKeys = append(cfg.YouTube.APIKeys, strings.TrimSpace(v))
	}
	if v := os.Getenv("HOTRADAR_REGION"); v != "" {
		cfg.Discovery.Region = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("HOTRADAR_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("HOTRADAR_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("HOTRADAR_CACHE_TTL"); v != "" {
		cfg.Cache.TTL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
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
