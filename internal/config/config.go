// Package config loads painminer settings from defaults, an optional YAML
// file and PAINMINER_* environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/painminer/internal/analyzer"
	"github.com/FranksOps/painminer/internal/fingerprint"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PAINMINER"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Presets   []Preset        `mapstructure:"presets"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type RedditConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Limit             int           `mapstructure:"limit"`
	TimeWindow        string        `mapstructure:"time_window"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	// RotateUserAgent sends browser User-Agents matching Fingerprint instead
	// of UserAgent.
	RotateUserAgent  bool          `mapstructure:"rotate_user_agent"`
	Proxies          []string      `mapstructure:"proxies"`
	ProxyFile        string        `mapstructure:"proxy_file"`
	ProxyMaxFailures int           `mapstructure:"proxy_max_failures"`
	ProxyCooldown    time.Duration `mapstructure:"proxy_cooldown"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AnthropicConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
}

type ScoringConfig struct {
	// Rules replaces the built-in signal categories when non-empty.
	Rules []analyzer.RuleSpec `mapstructure:"rules"`
}

// Preset is a named, reusable search. Schedule is an optional cron spec.
type Preset struct {
	Name       string   `mapstructure:"name" json:"name"`
	Query      string   `mapstructure:"query" json:"query"`
	Subreddits []string `mapstructure:"subreddits" json:"subreddits"`
	Schedule   string   `mapstructure:"schedule" json:"schedule,omitempty"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "painminer.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "PainMiner/1.0 (Startup Research)")
	v.SetDefault("reddit.limit", 50)
	v.SetDefault("reddit.time_window", "year")
	v.SetDefault("reddit.timeout", 15*time.Second)
	v.SetDefault("reddit.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("reddit.requests_per_second", 1.0)
	v.SetDefault("reddit.jitter", 0.2)
	v.SetDefault("reddit.rotate_user_agent", false)
	v.SetDefault("reddit.proxy_file", "")
	v.SetDefault("reddit.proxy_max_failures", 3)
	v.SetDefault("reddit.proxy_cooldown", 5*time.Minute)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("anthropic.timeout", 2*time.Minute)

	v.SetDefault("pipeline.fetch_concurrency", 1)
	v.SetDefault("pipeline.run_timeout", 10*time.Minute)
}

// BindEnv wires PAINMINER_* overrides plus the conventional Anthropic
// variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("anthropic.api_key", "PAINMINER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY", "AI_INTEGRATIONS_ANTHROPIC_API_KEY")
	_ = v.BindEnv("anthropic.base_url", "PAINMINER_ANTHROPIC_BASE_URL", "AI_INTEGRATIONS_ANTHROPIC_BASE_URL")
}

// NewViper returns a viper instance with defaults and env bindings applied.
// When path is non-empty the file is read; a missing explicit file is an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("painminer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.painminer")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from path (or the default search locations).
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Presets) == 0 {
		cfg.Presets = DefaultPresets()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn: required")
	}
	if _, err := fingerprint.ParseProfile(c.Reddit.Fingerprint); err != nil {
		return fmt.Errorf("reddit.fingerprint: %w", err)
	}
	if c.Reddit.Jitter < 0 || c.Reddit.Jitter > 1 {
		return fmt.Errorf("reddit.jitter: %v not in [0, 1]", c.Reddit.Jitter)
	}
	if c.Pipeline.FetchConcurrency < 1 {
		return fmt.Errorf("pipeline.fetch_concurrency: must be at least 1")
	}
	if _, err := c.Rules(); err != nil {
		return fmt.Errorf("scoring.rules: %w", err)
	}

	seen := map[string]bool{}
	for _, p := range c.Presets {
		if p.Name == "" {
			return errors.New("presets: name required")
		}
		if seen[p.Name] {
			return fmt.Errorf("presets: duplicate name %q", p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Query) == "" || len(p.Subreddits) == 0 {
			return fmt.Errorf("presets.%s: query and subreddits required", p.Name)
		}
	}
	return nil
}

// Rules returns the configured scoring rules, or the defaults.
func (c *Config) Rules() ([]analyzer.Rule, error) {
	if len(c.Scoring.Rules) == 0 {
		return analyzer.DefaultRules(), nil
	}
	return analyzer.ParseRules(c.Scoring.Rules)
}

// Preset looks up a preset by name.
func (c *Config) Preset(name string) (Preset, bool) {
	for _, p := range c.Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// NewLogger builds a slog logger honoring log.level and log.format.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log.format: unsupported format %q", c.Format)
}
