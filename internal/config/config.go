package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/app"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game struct {
		AnswerWindow string `yaml:"answer_window"`
		RevealDelay  string `yaml:"reveal_delay"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"game"`
	Scoring struct {
		// NegativeEstimates is "clamp" (default) or "allow". With "allow" a
		// guess outside the range keeps its negative score.
		NegativeEstimates string `yaml:"negative_estimates"`
		EstimateSpan      string `yaml:"estimate_span"`
	} `yaml:"scoring"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Store.Driver = DriverMemory
	cfg.Redis.TTL = "2h"
	cfg.Quiz.TTL = "10m"
	cfg.Game.AnswerWindow = "15s"
	cfg.Game.RevealDelay = "5s"
	cfg.Game.PollInterval = "1s"
	cfg.Scoring.NegativeEstimates = string(app.ClampToZero)
	cfg.Scoring.EstimateSpan = string(app.SpanSide)
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path on top of Defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("store driver redis requires redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("store driver postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	for name, raw := range map[string]string{
		"redis.ttl":          c.Redis.TTL,
		"quiz.ttl":           c.Quiz.TTL,
		"game.answer_window": c.Game.AnswerWindow,
		"game.reveal_delay":  c.Game.RevealDelay,
		"game.poll_interval": c.Game.PollInterval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if TTLDuration(c.Game.PollInterval, time.Second) <= 0 {
		return errors.New("game.poll_interval must be positive")
	}
	return c.Rules().Validate()
}

// Rules builds the game rules from the game and scoring sections.
func (c Config) Rules() app.Rules {
	defaults := app.DefaultRules()
	return app.Rules{
		AnswerWindow:      TTLDuration(c.Game.AnswerWindow, defaults.AnswerWindow),
		RevealDelay:       TTLDuration(c.Game.RevealDelay, defaults.RevealDelay),
		NegativeEstimates: app.NegativeEstimatePolicy(c.Scoring.NegativeEstimates),
		EstimateSpan:      app.EstimateSpan(c.Scoring.EstimateSpan),
	}
}

// PollInterval is how often the terminal clients re-read the session.
func (c Config) PollInterval() time.Duration {
	return TTLDuration(c.Game.PollInterval, time.Second)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
