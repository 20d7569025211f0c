// Package config loads server configuration from defaults, an optional
// runway.yaml and RUNWAY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/swayz032/aspire-runway/pkg/auth"
)

// Config holds server configuration.
type Config struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseURL    string `mapstructure:"database_url"`

	OrchestratorURL   string        `mapstructure:"orchestrator_url"`
	OrchestratorToken string        `mapstructure:"orchestrator_token"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout"`
	// AuthorityTTL is how long a yellow or red action waits for a decision.
	AuthorityTTL time.Duration `mapstructure:"authority_ttl"`

	// AuthSecret signs and verifies operator tokens. Without it every /v1
	// request is refused.
	AuthSecret string `mapstructure:"auth_secret"`

	TelemetryEndpoint string `mapstructure:"telemetry_endpoint"`
	TelemetryCohort   string `mapstructure:"telemetry_cohort"`
	OTelEnabled       bool   `mapstructure:"otel_enabled"`
	OTLPEndpoint      string `mapstructure:"otlp_endpoint"`
	OTelInsecure      bool   `mapstructure:"otel_insecure"`

	LayoutStore string `mapstructure:"layout_store"`
	// LayoutPath is the SQLite file for layouts when the ledger is not SQLite.
	LayoutPath    string `mapstructure:"layout_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

var defaults = map[string]any{
	"port":               "8080",
	"environment":        "development",
	"log_level":          "INFO",
	"log_format":         "json",
	"database_driver":    "sqlite",
	"database_url":       "runway.db",
	"orchestrator_url":   "http://localhost:8000",
	"orchestrator_token": "",
	"exec_timeout":       "30s",
	"authority_ttl":      "15m",
	"auth_secret":        "",
	"telemetry_endpoint": "",
	"telemetry_cohort":   "default",
	"otel_enabled":       false,
	"otlp_endpoint":      "",
	"otel_insecure":      true,
	"layout_store":       "sqlite",
	"layout_path":        "runway-layout.db",
	"redis_addr":         "localhost:6379",
	"redis_password":     "",
	"redis_db":           0,
	"rate_limit_rps":     20.0,
	"rate_limit_burst":   40,
}

// Load reads configuration. An empty path looks for runway.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runway")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("RUNWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid TCP port", c.Port))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or text", c.LogFormat))
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database_driver %q must be sqlite or postgres", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if u, err := url.Parse(c.OrchestratorURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("orchestrator_url %q must be an absolute http(s) URL", c.OrchestratorURL))
	}
	if c.ExecTimeout <= 0 {
		errs = append(errs, errors.New("exec_timeout must be positive"))
	}
	if c.AuthorityTTL <= 0 {
		errs = append(errs, errors.New("authority_ttl must be positive"))
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < auth.MinSecretLength {
		errs = append(errs, fmt.Errorf("auth_secret must be at least %d bytes", auth.MinSecretLength))
	}
	switch c.LayoutStore {
	case "memory":
	case "sqlite":
		if c.DatabaseDriver != "sqlite" && c.LayoutPath == "" {
			errs = append(errs, errors.New("layout_path is required for the sqlite layout store when the ledger is not sqlite"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis layout store"))
		}
	default:
		errs = append(errs, fmt.Errorf("layout_store %q must be memory, sqlite or redis", c.LayoutStore))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate_limit_rps and rate_limit_burst must be positive"))
	}
	if c.OTelEnabled && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp_endpoint is required when otel_enabled is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q is not a valid level", s)
	}
	return l, nil
}
