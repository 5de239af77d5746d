// Package config loads ambient connection settings (pool sizing, timeouts,
// retries) from an optional local YAML file, the way the teacher agent
// loads its own configuration, via spf13/viper. spec.md's recognized
// environment variables (SERVER_LANGUAGE, SERVER_IP, ...) describe the
// external profile collaborator that builds a model.Endpoint; this package
// is a separate, client-owned concern the base spec is silent on.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is the default location for the client's local
// connection-tuning file, analogous to the teacher's DefaultConfigPath.
const DefaultConfigPath = "./blackholio.yaml"

// PoolSettings mirrors pool.Config's recognized fields so they can be
// loaded from YAML/env without internal/config depending on the pool
// package (avoiding an import cycle back from pool into config).
type PoolSettings struct {
	MinConns            int           `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConns            int           `mapstructure:"max_conns" yaml:"max_conns"`
	MaxIdle             time.Duration `mapstructure:"max_idle" yaml:"max_idle"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" yaml:"health_check_interval"`
	ConnTimeout         time.Duration `mapstructure:"conn_timeout" yaml:"conn_timeout"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Retries             int           `mapstructure:"retries" yaml:"retries"`
	BackoffFactor       float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	MaxDelay            time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	BreakerThreshold    int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
	HealthChecksOn      bool          `mapstructure:"health_checks_on" yaml:"health_checks_on"`
	MetricsOn           bool          `mapstructure:"metrics_on" yaml:"metrics_on"`
}

// PipelineSettings mirrors pipeline.Config's ambient (non-endpoint) fields.
type PipelineSettings struct {
	Validation  bool `mapstructure:"validation" yaml:"validation"`
	Adaptation  bool `mapstructure:"adaptation" yaml:"adaptation"`
	Compression bool `mapstructure:"compression" yaml:"compression"`
	BatchSize   int  `mapstructure:"batch_size" yaml:"batch_size"`
	Retries     int  `mapstructure:"retries" yaml:"retries"`

	TimeoutSeconds float64 `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout renders TimeoutSeconds as a time.Duration.
func (p PipelineSettings) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds * float64(time.Second))
}

// SessionSettings mirrors the session connect-sequence tunables.
type SessionSettings struct {
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	BaseReconnectDelay time.Duration `mapstructure:"base_reconnect_delay" yaml:"base_reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay" yaml:"max_reconnect_delay"`
	MaxReconnectAttempts int        `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	CoreTables        []string      `mapstructure:"core_tables" yaml:"core_tables"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
}

// Config is the top-level ambient configuration document.
type Config struct {
	Pool     PoolSettings      `mapstructure:"pool" yaml:"pool"`
	Pipeline PipelineSettings  `mapstructure:"pipeline" yaml:"pipeline"`
	Session  SessionSettings   `mapstructure:"session" yaml:"session"`
}

// Load reads configuration from configPath, falling back to DefaultConfigPath
// when configPath is empty. A missing file is not an error; defaults and the
// BLACKHOLIO_-prefixed environment overrides still apply, exactly as the
// teacher's config.Load treats a missing file as "rely on env and defaults".
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("pool.min_conns", 1)
	v.SetDefault("pool.max_conns", 10)
	v.SetDefault("pool.max_idle", 5*time.Minute)
	v.SetDefault("pool.health_check_interval", 30*time.Second)
	v.SetDefault("pool.conn_timeout", 30*time.Second)
	v.SetDefault("pool.request_timeout", 10*time.Second)
	v.SetDefault("pool.retries", 3)
	v.SetDefault("pool.backoff_factor", 2.0)
	v.SetDefault("pool.max_delay", 60*time.Second)
	v.SetDefault("pool.breaker_threshold", 5)
	v.SetDefault("pool.breaker_timeout", 30*time.Second)
	v.SetDefault("pool.health_checks_on", true)
	v.SetDefault("pool.metrics_on", true)

	v.SetDefault("pipeline.validation", true)
	v.SetDefault("pipeline.adaptation", true)
	v.SetDefault("pipeline.compression", false)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.retries", 3)
	v.SetDefault("pipeline.timeout_seconds", 10.0)

	v.SetDefault("session.connection_timeout", 30*time.Second)
	v.SetDefault("session.heartbeat_interval", 30*time.Second)
	v.SetDefault("session.base_reconnect_delay", 1*time.Second)
	v.SetDefault("session.max_reconnect_delay", 60*time.Second)
	v.SetDefault("session.max_reconnect_attempts", 5)
	v.SetDefault("session.core_tables", []string{"entity", "player", "circle", "food", "config"})
	v.SetDefault("session.log_level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(DefaultConfigPath)
	}

	v.SetEnvPrefix("BLACKHOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}
	return &cfg, nil
}
