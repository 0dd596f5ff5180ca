package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/app"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Rules() != app.DefaultRules() {
		t.Fatalf("default rules mismatch: %+v", cfg.Rules())
	}
	if cfg.PollInterval() != time.Second {
		t.Fatalf("expected 1s poll interval, got %v", cfg.PollInterval())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
store:
  driver: redis
redis:
  addr: localhost:6379
game:
  answer_window: 20s
scoring:
  negative_estimates: allow
  estimate_span: range
log:
  format: json
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	rules := cfg.Rules()
	if rules.AnswerWindow != 20*time.Second || rules.RevealDelay != 5*time.Second {
		t.Fatalf("unexpected timings %+v", rules)
	}
	if rules.NegativeEstimates != app.AllowNegative || rules.EstimateSpan != app.SpanRange {
		t.Fatalf("unexpected scoring %+v", rules)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("untouched keys keep defaults, got level %q", cfg.Log.Level)
	}
}

func TestValidateRejectsFatalConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }, "postgres.url"},
		{"redis without addr", func(c *Config) { c.Store.Driver = DriverRedis }, "redis.addr"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store driver"},
		{"unknown policy", func(c *Config) { c.Scoring.NegativeEstimates = "sometimes" }, "negative estimate policy"},
		{"unknown span", func(c *Config) { c.Scoring.EstimateSpan = "wide" }, "estimate span"},
		{"bad duration", func(c *Config) { c.Game.AnswerWindow = "soon" }, "game.answer_window"},
		{"zero window", func(c *Config) { c.Game.AnswerWindow = "0s" }, "answer window"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty should fall back, got %v", got)
	}
	if got := TTLDuration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("invalid should fall back, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
