package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks the unprefixed fallbacks; blank values are ignored by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range fallbackEnv {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_MissingMandatory(t *testing.T) {
	tests := []struct {
		name         string
		envVars      map[string]string
		wantErrCount int
		wantErr      error
	}{
		{
			name:         "nothing set",
			envVars:      map[string]string{},
			wantErrCount: 2,
		},
		{
			name:         "only DATABASE_URL set",
			envVars:      map[string]string{"DATABASE_URL": "postgres://localhost/refmarket"},
			wantErrCount: 1,
			wantErr:      ErrMissingJWTSecret,
		},
		{
			name:         "only prefixed JWT secret set",
			envVars:      map[string]string{"REFMARKET_JWT_SECRET": "supersecret32characterlongvalue!"},
			wantErrCount: 1,
			wantErr:      ErrMissingDatabaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, errs := Load("")
			if cfg == nil {
				t.Fatal("expected config to be returned")
			}
			if len(errs) != tt.wantErrCount {
				t.Fatalf("expected %d errors, got %d: %v", tt.wantErrCount, len(errs), errs)
			}
			if tt.wantErr != nil && !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, errs[0])
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/refmarket")
	t.Setenv("JWT_SECRET", "supersecret32characterlongvalue!")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.ReputationRecomputeInterval != DefaultReputationRecomputeInterval {
		t.Errorf("ReputationRecomputeInterval = %v", cfg.ReputationRecomputeInterval)
	}
	if cfg.SnapshotCacheTTL != DefaultSnapshotCacheTTL {
		t.Errorf("SnapshotCacheTTL = %v", cfg.SnapshotCacheTTL)
	}
	if cfg.TracingEnabled {
		t.Error("tracing should be disabled by default")
	}
	if cfg.TracingSampleRate != DefaultTracingSampleRate {
		t.Errorf("TracingSampleRate = %v", cfg.TracingSampleRate)
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
port: 9000
env: staging
database_url: postgres://file/refmarket
jwt_secret: file-secret-value-long-enough
redis_url: redis://file:6379/0
snapshot_cache_ttl: 2m
tracing_enabled: true
tracing_exporter: otlp-grpc
`)

	t.Setenv("PORT", "9100")
	t.Setenv("REFMARKET_PORT", "9200")
	t.Setenv("REDIS_URL", "redis://fallback:6379/0")
	t.Setenv("REFMARKET_REPUTATION_RECOMPUTE_INTERVAL", "1m")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.Port != 9200 {
		t.Errorf("prefixed env should win, Port = %d", cfg.Port)
	}
	if cfg.Env != "staging" {
		t.Errorf("Env = %q, want staging", cfg.Env)
	}
	if cfg.RedisURL != "redis://fallback:6379/0" {
		t.Errorf("unprefixed env should beat the file, RedisURL = %q", cfg.RedisURL)
	}
	if cfg.DatabaseURL != "postgres://file/refmarket" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SnapshotCacheTTL != 2*time.Minute {
		t.Errorf("SnapshotCacheTTL = %v", cfg.SnapshotCacheTTL)
	}
	if cfg.ReputationRecomputeInterval != time.Minute {
		t.Errorf("ReputationRecomputeInterval = %v", cfg.ReputationRecomputeInterval)
	}
	if !cfg.TracingEnabled || cfg.TracingExporter != "otlp-grpc" {
		t.Errorf("tracing = %v/%q", cfg.TracingEnabled, cfg.TracingExporter)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/refmarket")
	t.Setenv("JWT_SECRET", "supersecret32characterlongvalue!")
	t.Setenv("PORT", "not-a-port")
	t.Setenv("REFMARKET_TRACING_SAMPLE_RATE", "lots")

	_, errs := Load("")
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if !errors.Is(errs[0], ErrInvalidPort) {
		t.Errorf("expected ErrInvalidPort, got %v", errs[0])
	}
	if !errors.Is(errs[1], ErrInvalidSampleRate) {
		t.Errorf("expected ErrInvalidSampleRate, got %v", errs[1])
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, errs := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg != nil {
		t.Error("expected nil config")
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "failed to load config file") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:                        8080,
		DatabaseURL:                 "postgres://localhost/refmarket",
		JWTSecret:                   "secret",
		ReputationRecomputeInterval: time.Second,
		TracingSampleRate:           0.5,
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.Port = 70000 }, want: ErrInvalidPort},
		{name: "sample rate above one", mutate: func(c *Config) { c.TracingSampleRate = 1.5 }, want: ErrInvalidSampleRate},
		{name: "zero interval", mutate: func(c *Config) { c.ReputationRecomputeInterval = 0 }, want: ErrInvalidInterval},
		{name: "unknown exporter", mutate: func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "zipkin"
		}, want: ErrInvalidTracingExport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			errs := c.Validate()
			if tt.want == nil {
				if len(errs) != 0 {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], tt.want) {
				t.Errorf("expected [%v], got %v", tt.want, errs)
			}
		})
	}
}

func TestLogSummary_MasksSecrets(t *testing.T) {
	c := Config{
		Port:              8080,
		DatabaseURL:       "postgres://app:hunter2@db:5432/refmarket",
		RedisURL:          "redis://:redispass@cache:6379/0",
		JWTSecret:         "supersecret32characterlongvalue!",
		JWTPreviousSecret: "short",
	}
	summary := c.LogSummary()

	if got := summary["database_url"]; got != "postgres://app:****@db:5432/refmarket" {
		t.Errorf("database_url = %q", got)
	}
	if got := summary["redis_url"]; got != "redis://:****@cache:6379/0" {
		t.Errorf("redis_url = %q", got)
	}
	if got := summary["jwt_secret"]; got != "supe****" {
		t.Errorf("jwt_secret = %q", got)
	}
	if got := summary["jwt_previous_secret"]; got != "****" {
		t.Errorf("jwt_previous_secret = %q", got)
	}
	for k, v := range summary {
		if strings.Contains(v, "hunter2") || strings.Contains(v, "redispass") {
			t.Errorf("%s leaks a password: %q", k, v)
		}
	}
}

func TestMaskURLPassword(t *testing.T) {
	tests := map[string]string{
		"":                             "<not set>",
		"postgres://localhost/db":      "postgres://localhost/db",
		"postgres://user@localhost/db": "postgres://user@localhost/db",
		"not a url at all":             "not ****",
	}
	for in, want := range tests {
		if got := maskURLPassword(in); got != want {
			t.Errorf("maskURLPassword(%q) = %q, want %q", in, got, want)
		}
	}
}
