// Package config handles loading hpcctl settings from a config file, the
// environment and command line flags.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. HPCMARKET_URL.
const EnvPrefix = "HPCMARKET"

// Default values.
const (
	DefaultURL            = "http://localhost:8000"
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Second
)

// Config holds all configuration values for the CLI and console.
type Config struct {
	// Base URL of the marketplace backend
	APIURL string

	// Interval between poll ticks of every synchronizer
	PollInterval time.Duration

	// Upper bound for a single backend request
	RequestTimeout time.Duration

	// Client-side request rate limit; 0 means unlimited
	RateLimit float64
	RateBurst int

	LogLevel string

	// Address for the Prometheus /metrics listener; empty disables it
	MetricsAddr string

	// OTLP gRPC collector address; empty disables tracing
	OTELEndpoint string

	// Postgres DSN for the action ledger; empty keeps the ledger in memory
	LedgerURL string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", DefaultURL)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("ledger_url", "")
}

// Bind registers the default values on v and makes it read HPCMARKET_*
// environment variables. Environment variables override config file values.
func Bind(v *viper.Viper) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// FromViper builds and validates a Config from a viper instance prepared with
// Bind. The CLI uses this with its flag-bound global instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIURL:         strings.TrimRight(v.GetString("url"), "/"),
		PollInterval:   v.GetDuration("poll_interval"),
		RequestTimeout: v.GetDuration("request_timeout"),
		RateLimit:      v.GetFloat64("rate_limit"),
		RateBurst:      v.GetInt("rate_burst"),
		LogLevel:       v.GetString("log_level"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTELEndpoint:   v.GetString("otel_endpoint"),
		LedgerURL:      v.GetString("ledger_url"),
	}

	if cfg.APIURL == "" {
		return nil, fmt.Errorf("url is required (env: %s_URL)", EnvPrefix)
	}
	if u, err := url.Parse(cfg.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q (env: %s_URL)", cfg.APIURL, EnvPrefix)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive (env: %s_POLL_INTERVAL)", EnvPrefix)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive (env: %s_REQUEST_TIMEOUT)", EnvPrefix)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must not be negative (env: %s_RATE_LIMIT)", EnvPrefix)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}

	return cfg, nil
}
