package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development staging production"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	Limits    LimitsConfig    `koanf:"limits"`
	Detection DetectionConfig `koanf:"detection"`
	Baseline  BaselineConfig  `koanf:"baseline"`
	Audit     AuditConfig     `koanf:"audit"`
	Workers   WorkerConfig    `koanf:"workers"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig covers the daemon's operational HTTP surface (metrics and
// health probes); the decision path itself is a library call, not an
// endpoint.
type ServerConfig struct {
	MetricsPort     int           `koanf:"metrics_port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL               string        `koanf:"url"`
	MaxConns          int           `koanf:"max_conns" validate:"min=1"`
	MinConns          int           `koanf:"min_conns" validate:"min=0"`
	MaxConnLifetime   time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// AuthConfig drives client scope resolution. Scope tokens are HMAC-signed;
// clients without a token fall back to the default category scopes.
type AuthConfig struct {
	ScopeTokenSecret string        `koanf:"scope_token_secret"`
	TokenLeeway      time.Duration `koanf:"token_leeway"`
	DefaultScopes    []string      `koanf:"default_scopes" validate:"dive,oneof=profile behavioral assessment real_time aggregated"`
}

// LimitsConfig holds the deterministic base limits. Per-tenant overrides
// live in the rate_limit_config table, not here.
type LimitsConfig struct {
	WindowMinutes         int `koanf:"window_minutes" validate:"min=1"`
	BurstAllowance        int `koanf:"burst_allowance" validate:"min=0"`
	MaxConcurrentSessions int `koanf:"max_concurrent_sessions" validate:"min=1"`

	// RequestsPerMinute maps data category to its base rate before tier
	// scaling.
	RequestsPerMinute map[string]int `koanf:"requests_per_minute"`

	// DailyVolumeMB maps data category to its 24h byte budget in MB
	// before tier scaling.
	DailyVolumeMB map[string]int `koanf:"daily_volume_mb"`
}

// DetectionConfig consolidates every detector and scorer threshold in one
// place so no two components can disagree about them.
type DetectionConfig struct {
	LookbackHours            int     `koanf:"lookback_hours" validate:"min=1"`
	MinDetectorConfidence    float64 `koanf:"min_detector_confidence" validate:"min=0,max=1"`
	MeanConfidenceFloor      float64 `koanf:"mean_confidence_floor" validate:"min=0,max=1"`
	DenyConfidence           float64 `koanf:"deny_confidence" validate:"min=0,max=1"`
	AnomalyHighThreshold     float64 `koanf:"anomaly_high_threshold" validate:"min=0,max=1"`
	AnomalyCriticalThreshold float64 `koanf:"anomaly_critical_threshold" validate:"min=0,max=1"`
	BusinessHoursStart       int     `koanf:"business_hours_start" validate:"min=0,max=23"`
	BusinessHoursEnd         int     `koanf:"business_hours_end" validate:"min=0,max=23"`
}

type BaselineConfig struct {
	LearningPeriodDays int `koanf:"learning_period_days" validate:"min=1"`
	MinSamples         int `koanf:"min_samples" validate:"min=1"`
}

type AuditConfig struct {
	BufferSize  int     `koanf:"buffer_size" validate:"min=1"`
	RetryPerSec float64 `koanf:"retry_per_sec"`
	RetryBurst  int     `koanf:"retry_burst"`
}

type WorkerConfig struct {
	BaselineRefreshInterval time.Duration `koanf:"baseline_refresh_interval"`
	RecoveryInterval        time.Duration `koanf:"recovery_interval"`
	SweepPerSec             float64       `koanf:"sweep_per_sec"`
	SweepBurst              int           `koanf:"sweep_burst"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	Insecure     bool    `koanf:"insecure"`
	SampleRate   float64 `koanf:"sample_rate" validate:"min=0,max=1"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load defaults
	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:          25,
			MinConns:          5,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Auth: AuthConfig{
			TokenLeeway:   30 * time.Second,
			DefaultScopes: []string{"profile", "aggregated"},
		},
		Limits: LimitsConfig{
			WindowMinutes:         1,
			BurstAllowance:        10,
			MaxConcurrentSessions: 5,
			RequestsPerMinute: map[string]int{
				"profile":    60,
				"behavioral": 90,
				"assessment": 30,
				"real_time":  300,
				"aggregated": 20,
			},
			DailyVolumeMB: map[string]int{
				"profile":    50,
				"behavioral": 40,
				"assessment": 30,
				"real_time":  75,
				"aggregated": 100,
			},
		},
		Detection: DetectionConfig{
			LookbackHours:            24,
			MinDetectorConfidence:    0.4,
			MeanConfidenceFloor:      0.6,
			DenyConfidence:           0.8,
			AnomalyHighThreshold:     0.8,
			AnomalyCriticalThreshold: 0.95,
			BusinessHoursStart:       8,
			BusinessHoursEnd:         18,
		},
		Baseline: BaselineConfig{
			LearningPeriodDays: 7,
			MinSamples:         50,
		},
		Audit: AuditConfig{
			BufferSize:  1024,
			RetryPerSec: 50,
			RetryBurst:  100,
		},
		Workers: WorkerConfig{
			BaselineRefreshInterval: 6 * time.Hour,
			RecoveryInterval:        24 * time.Hour,
			SweepPerSec:             10,
			SweepBurst:              20,
		},
		Telemetry: TelemetryConfig{
			SampleRate: 0.1,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if exists
	if err := k.Load(file.Provider("configs/config.yaml"), yaml.Parser()); err != nil {
		// Config file is optional, only log if it's not a "file not found" error
	}

	// Override with environment variables
	if err := k.Load(env.Provider("LDG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LDG_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Window is the rate window as a duration.
func (l LimitsConfig) Window() time.Duration {
	return time.Duration(l.WindowMinutes) * time.Minute
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
