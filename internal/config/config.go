// Package config loads and validates the API server configuration.
// Values are layered with koanf: defaults, an optional YAML file, then
// REFMARKET_ prefixed environment variables. A few unprefixed variables
// (PORT, DATABASE_URL, JWT_SECRET, REDIS_URL) are honoured as fallbacks.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. REFMARKET_REDIS_URL.
const EnvPrefix = "REFMARKET_"

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// JWT Authentication. JWTPreviousSecret keeps tokens signed before a
	// rotation valid until they expire.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Ranking
	RankingCalibrationPath string `koanf:"ranking_calibration_path"`

	// Background jobs and caches
	ReputationRecomputeInterval time.Duration `koanf:"reputation_recompute_interval"`
	SnapshotCacheTTL            time.Duration `koanf:"snapshot_cache_ttl"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret     = errors.New("JWT_SECRET is required")
	ErrInvalidPort          = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidSampleRate    = errors.New("tracing_sample_rate must be between 0 and 1")
	ErrInvalidInterval      = errors.New("reputation_recompute_interval must be positive")
	ErrInvalidTracingExport = errors.New("tracing_exporter must be otlp-http or otlp-grpc")
)

// Default values for non-secret configuration.
const (
	DefaultPort                        = 8080
	DefaultEnv                         = "development"
	DefaultReputationRecomputeInterval = 30 * time.Second
	DefaultSnapshotCacheTTL            = 5 * time.Minute
	DefaultTracingExporter             = "otlp-http"
	DefaultTracingSampleRate           = 0.1
)

// fallbackEnv maps unprefixed environment variables to config keys.
var fallbackEnv = map[string]string{
	"PORT":         "port",
	"DATABASE_URL": "database_url",
	"JWT_SECRET":   "jwt_secret",
	"REDIS_URL":    "redis_url",
}

func defaults() map[string]any {
	return map[string]any{
		"port":                          DefaultPort,
		"env":                           DefaultEnv,
		"reputation_recompute_interval": DefaultReputationRecomputeInterval.String(),
		"snapshot_cache_ttl":            DefaultSnapshotCacheTTL.String(),
		"tracing_exporter":              DefaultTracingExporter,
		"tracing_sample_rate":           DefaultTracingSampleRate,
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
// Returns the loaded config and every error found (empty if valid). Parse
// errors are reported before, and instead of, validation errors. The config is
// nil only when the file or the environment could not be read at all.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, []error{fmt.Errorf("failed to set default %s: %w", key, err)}
		}
	}

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Unprefixed fallbacks sit below the prefixed variables.
	for envKey, key := range fallbackEnv {
		if val := os.Getenv(envKey); val != "" {
			if err := k.Set(key, val); err != nil {
				return nil, []error{fmt.Errorf("failed to apply %s: %w", envKey, err)}
			}
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, []error{fmt.Errorf("failed to load environment: %w", err)}
	}

	var loadErrs []error
	port, err := strconv.Atoi(k.String("port"))
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%q: %w", k.String("port"), ErrInvalidPort))
	}
	sampleRate, err := strconv.ParseFloat(k.String("tracing_sample_rate"), 64)
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%q: %w", k.String("tracing_sample_rate"), ErrInvalidSampleRate))
	}
	interval, err := time.ParseDuration(k.String("reputation_recompute_interval"))
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("%q: %w", k.String("reputation_recompute_interval"), ErrInvalidInterval))
	}
	cacheTTL, err := time.ParseDuration(k.String("snapshot_cache_ttl"))
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("snapshot_cache_ttl %q: %w", k.String("snapshot_cache_ttl"), err))
	}

	cfg := &Config{
		Port:                        port,
		Env:                         k.String("env"),
		DatabaseURL:                 k.String("database_url"),
		RedisURL:                    k.String("redis_url"),
		JWTSecret:                   k.String("jwt_secret"),
		JWTPreviousSecret:           k.String("jwt_previous_secret"),
		RankingCalibrationPath:      k.String("ranking_calibration_path"),
		ReputationRecomputeInterval: interval,
		SnapshotCacheTTL:            cacheTTL,
		TracingEnabled:              parseBool(k.String("tracing_enabled")),
		TracingExporter:             k.String("tracing_exporter"),
		OTLPEndpoint:                k.String("otlp_endpoint"),
		TracingSampleRate:           sampleRate,
		TracingInsecure:             parseBool(k.String("tracing_insecure")),
	}
	if len(loadErrs) > 0 {
		return cfg, loadErrs
	}

	return cfg, cfg.Validate()
}

// parseBool accepts the usual spellings of a feature flag. Anything else is false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks required values and ranges.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	if c.ReputationRecomputeInterval <= 0 {
		errs = append(errs, ErrInvalidInterval)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}
	if c.TracingEnabled && c.TracingExporter != "otlp-http" && c.TracingExporter != "otlp-grpc" {
		errs = append(errs, ErrInvalidTracingExport)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                          strconv.Itoa(c.Port),
		"env":                           c.Env,
		"database_url":                  maskURLPassword(c.DatabaseURL),
		"redis_url":                     maskURLPassword(c.RedisURL),
		"jwt_secret":                    maskSecret(c.JWTSecret),
		"jwt_previous_secret":           maskSecret(c.JWTPreviousSecret),
		"ranking_calibration_path":      c.RankingCalibrationPath,
		"reputation_recompute_interval": c.ReputationRecomputeInterval.String(),
		"snapshot_cache_ttl":            c.SnapshotCacheTTL.String(),
		"tracing_enabled":               strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":              c.TracingExporter,
		"otlp_endpoint":                 c.OTLPEndpoint,
		"tracing_sample_rate":           strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret shows only the first 4 characters of a secret.
// Secrets shorter than 8 characters are fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURLPassword masks the password in a postgres:// or redis:// URL.
func maskURLPassword(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // no credentials
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // username only
	}

	return s[:schemeEnd+3] + rest[:colonIndex] + ":****" + rest[atIndex:]
}
