// Package config loads process-wide settings from the environment. Settings
// only affect diagnostics and determinism; the protocol surface itself is not
// configurable.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Config for the mock server process.
type Config struct {
	// LogLevel is one of debug, info, warn, error. ENV: MOCKSERVER_LOG_LEVEL
	LogLevel string `env:"MOCKSERVER_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: MOCKSERVER_LOG_FORMAT
	LogFormat string `env:"MOCKSERVER_LOG_FORMAT,default=text"`
	// WeatherSeed makes the weather tool deterministic when non-zero.
	// ENV: MOCKSERVER_WEATHER_SEED
	WeatherSeed uint64 `env:"MOCKSERVER_WEATHER_SEED,default=0"`
}

// Load decodes Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: want text or json", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel. An empty value means info.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger builds the process logger writing to w in the configured format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Rand returns a generator seeded from WeatherSeed, or nil when the seed is
// zero so callers fall back to a randomly seeded source.
func (c Config) Rand() *rand.Rand {
	if c.WeatherSeed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(c.WeatherSeed, c.WeatherSeed))
}
