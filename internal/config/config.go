package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Telegram struct {
		Token  string  `yaml:"token"`
		Admins []int64 `yaml:"admins"`
	} `yaml:"telegram"`
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
		// TTL bounds how long quiz content may be served from cache.
		TTL string `yaml:"ttl"`
		// DefaultTimeLimitSec applies to quizzes authored without an explicit
		// per-question limit.
		DefaultTimeLimitSec int `yaml:"defaultTimeLimit"`
		// DefaultNegativeMarking is the factor suggested during authoring.
		DefaultNegativeMarking float64 `yaml:"defaultNegativeMarking"`
		// AdvanceDelay is the pause between resolving a question and showing
		// the next one.
		AdvanceDelay string `yaml:"advanceDelay"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Quiz.DefaultTimeLimitSec <= 0 {
		cfg.Quiz.DefaultTimeLimitSec = 30
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or
// malformed.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
