// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AdminConfig struct {
	Port       int           `yaml:"port"`
	JWTSecret  string        `yaml:"jwt_secret"`
	APISecret  string        `yaml:"api_secret"` // exchanged for a session token; login is disabled when empty
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// PaymentConfig drives the retry machinery. Marking failed payments as
// retry-eligible is decoupled from retrying them; the worker interval is
// the scheduler's cadence, retry_interval_hours the eligibility window.
type PaymentConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	RetryIntervalHours int           `yaml:"retry_interval_hours"`
	RetrySweepEvery    time.Duration `yaml:"retry_sweep_every"`
	CleanupDaysOld     int           `yaml:"cleanup_days_old"`
	CleanupSweepEvery  time.Duration `yaml:"cleanup_sweep_every"`
}

type GraceConfig struct {
	PeriodDays   int           `yaml:"period_days"`
	ReminderDays []int         `yaml:"reminder_days"`
	SweepEvery   time.Duration `yaml:"sweep_every"`
}

// Auto-resolve is on by default; the yaml knob disables it so the zero
// value of the struct matches the default deployment.
type ConflictConfig struct {
	DisableAutoResolve bool   `yaml:"disable_auto_resolve"`
	DefaultStrategy    string `yaml:"default_strategy"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`
	Payment  PaymentConfig  `yaml:"payment"`
	Grace    GraceConfig    `yaml:"grace"`
	Conflict ConflictConfig `yaml:"conflict"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	for _, d := range cfg.Grace.ReminderDays {
		if d < 0 || d >= cfg.Grace.PeriodDays {
			return nil, fmt.Errorf("grace.reminder_days entry %d outside grace period of %d days", d, cfg.Grace.PeriodDays)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Payment.MaxRetries <= 0 {
		cfg.Payment.MaxRetries = 3
	}
	if cfg.Payment.RetryIntervalHours <= 0 {
		cfg.Payment.RetryIntervalHours = 6
	}
	if cfg.Payment.RetrySweepEvery <= 0 {
		cfg.Payment.RetrySweepEvery = 15 * time.Minute
	}
	if cfg.Payment.CleanupDaysOld <= 0 {
		cfg.Payment.CleanupDaysOld = 90
	}
	if cfg.Payment.CleanupSweepEvery <= 0 {
		cfg.Payment.CleanupSweepEvery = 24 * time.Hour
	}
	if cfg.Grace.PeriodDays <= 0 {
		cfg.Grace.PeriodDays = 7
	}
	if len(cfg.Grace.ReminderDays) == 0 {
		cfg.Grace.ReminderDays = []int{3, 6}
	}
	sort.Ints(cfg.Grace.ReminderDays)
	if cfg.Grace.SweepEvery <= 0 {
		cfg.Grace.SweepEvery = time.Hour
	}
	if cfg.Conflict.DefaultStrategy == "" {
		cfg.Conflict.DefaultStrategy = "last_write_wins"
	}
}
