package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	// Location is the default zone for rules created without one.
	Location *time.Location

	DueWindow        time.Duration
	DispatchInterval time.Duration
	// MissAfter of zero disables the missed-occurrence sweep.
	MissAfter time.Duration
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Every invalid value is reported, not
// just the first.
func FromEnv(getenv func(string) string) (*Config, error) {
	var errs []error
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	duration := func(key, def string, allowZero bool) time.Duration {
		raw := get(key, def)
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 || (d == 0 && !allowZero) {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return 0
		}
		return d
	}

	cfg := &Config{
		Port:      get("FAMILYHEALTH_PORT", "8080"),
		DBPath:    get("FAMILYHEALTH_DB_PATH", "familyhealth.db"),
		LogLevel:  get("FAMILYHEALTH_LOG_LEVEL", "info"),
		LogFormat: get("FAMILYHEALTH_LOG_FORMAT", "text"),

		DueWindow:        duration("FAMILYHEALTH_DUE_WINDOW", "15m", false),
		DispatchInterval: duration("FAMILYHEALTH_DISPATCH_INTERVAL", "1m", false),
		MissAfter:        duration("FAMILYHEALTH_MISS_AFTER", "2h", true),
	}

	if n, err := strconv.Atoi(cfg.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, fmt.Errorf("FAMILYHEALTH_PORT: invalid port %q", cfg.Port))
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("FAMILYHEALTH_LOG_LEVEL: unknown level %q", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("FAMILYHEALTH_LOG_FORMAT: unknown format %q", cfg.LogFormat))
	}

	tz := get("FAMILYHEALTH_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Errorf("FAMILYHEALTH_TIMEZONE: %w", err))
	}
	cfg.Location = loc

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
