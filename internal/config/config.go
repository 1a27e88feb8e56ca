// Package config defines the top-level configuration for the spread monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SPREADWATCH_* environment
// variables.
type Config struct {
	Redis     RedisConfig    `toml:"redis"`
	Postgres  PostgresConfig `toml:"postgres"`
	S3        S3Config       `toml:"s3"`
	Consumer  ConsumerConfig `toml:"consumer"`
	WS        WSConfig       `toml:"ws"`
	Server    ServerConfig   `toml:"server"`
	Notify    NotifyConfig   `toml:"notify"`
	Alerting  AlertingConfig `toml:"alerting"`
	Recorder  RecorderConfig `toml:"recorder"`
	Archive   ArchiveConfig  `toml:"archive"`
	PairsPath string         `toml:"pairs_path"`
	Mode      string         `toml:"mode"`
	LogLevel  string         `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. Only used in full
// mode; monitor mode never touches Postgres.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the tick
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ConsumerConfig holds the stream consumer-group identity and poll
// parameters.
type ConsumerConfig struct {
	Group        string   `toml:"group"`
	Name         string   `toml:"name"`
	BatchSize    int      `toml:"batch_size"`
	Block        duration `toml:"block"`
	RetryBackoff duration `toml:"retry_backoff"`
}

// WSConfig holds WebSocket hub parameters.
type WSConfig struct {
	MaxConnections    int      `toml:"max_connections"`
	HeartbeatInterval duration `toml:"heartbeat_interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AlertingConfig holds alert watcher parameters.
type AlertingConfig struct {
	Interval    duration `toml:"interval"`
	MinSeverity string   `toml:"min_severity"`
}

// RecorderConfig holds history recorder batching parameters.
type RecorderConfig struct {
	FlushInterval    duration `toml:"flush_interval"`
	FlushBatchSize   int      `toml:"flush_batch_size"`
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// ArchiveConfig holds tick archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "spreadwatch",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "spreadwatch-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Consumer: ConsumerConfig{
			Group:        "spreadwatch",
			Name:         "consumer-1",
			BatchSize:    10,
			Block:        duration{5 * time.Second},
			RetryBackoff: duration{time.Second},
		},
		WS: WSConfig{
			MaxConnections:    100,
			HeartbeatInterval: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"spread_alert", "consumer_lag"},
		},
		Alerting: AlertingConfig{
			Interval:    duration{30 * time.Second},
			MinSeverity: "high",
		},
		Recorder: RecorderConfig{
			FlushInterval:    duration{10 * time.Second},
			FlushBatchSize:   100,
			SnapshotInterval: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		PairsPath: "pairs.toml",
		Mode:      "monitor",
		LogLevel:  "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSeverities enumerates the accepted values for alerting.min_severity.
var validSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Redis is mandatory in every mode.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres and S3 only matter in full mode.
	if strings.ToLower(c.Mode) == "full" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Archive.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
		}
	}

	// Consumer identity.
	if c.Consumer.Group == "" {
		errs = append(errs, "consumer: group must not be empty")
	}
	if c.Consumer.Name == "" {
		errs = append(errs, "consumer: name must not be empty")
	}
	if c.Consumer.BatchSize < 1 {
		errs = append(errs, "consumer: batch_size must be >= 1")
	}

	// WebSocket hub.
	if c.WS.MaxConnections < 1 {
		errs = append(errs, "ws: max_connections must be >= 1")
	}

	// Server.
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Alerting.
	if !validSeverities[strings.ToLower(c.Alerting.MinSeverity)] {
		errs = append(errs, fmt.Sprintf("alerting: unknown min_severity %q (valid: low, medium, high, critical)", c.Alerting.MinSeverity))
	}

	if c.PairsPath == "" {
		errs = append(errs, "pairs_path must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
