package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPREADWATCH_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SPREADWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPREADWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREADWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREADWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPREADWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPREADWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SPREADWATCH_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SPREADWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SPREADWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPREADWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPREADWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPREADWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPREADWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPREADWATCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SPREADWATCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SPREADWATCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SPREADWATCH_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SPREADWATCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SPREADWATCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "SPREADWATCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SPREADWATCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SPREADWATCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SPREADWATCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SPREADWATCH_S3_FORCE_PATH_STYLE")

	// ── Consumer ──
	setStr(&cfg.Consumer.Group, "SPREADWATCH_CONSUMER_GROUP")
	setStr(&cfg.Consumer.Name, "SPREADWATCH_CONSUMER_NAME")
	setInt(&cfg.Consumer.BatchSize, "SPREADWATCH_CONSUMER_BATCH_SIZE")
	setDuration(&cfg.Consumer.Block, "SPREADWATCH_CONSUMER_BLOCK")
	setDuration(&cfg.Consumer.RetryBackoff, "SPREADWATCH_CONSUMER_RETRY_BACKOFF")

	// ── WebSocket ──
	setInt(&cfg.WS.MaxConnections, "SPREADWATCH_WS_MAX_CONNECTIONS")
	setDuration(&cfg.WS.HeartbeatInterval, "SPREADWATCH_WS_HEARTBEAT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPREADWATCH_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SPREADWATCH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SPREADWATCH_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SPREADWATCH_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SPREADWATCH_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "SPREADWATCH_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SPREADWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SPREADWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SPREADWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SPREADWATCH_NOTIFY_EVENTS")

	// ── Alerting ──
	setDuration(&cfg.Alerting.Interval, "SPREADWATCH_ALERTING_INTERVAL")
	setStr(&cfg.Alerting.MinSeverity, "SPREADWATCH_ALERTING_MIN_SEVERITY")

	// ── Recorder ──
	setDuration(&cfg.Recorder.FlushInterval, "SPREADWATCH_RECORDER_FLUSH_INTERVAL")
	setInt(&cfg.Recorder.FlushBatchSize, "SPREADWATCH_RECORDER_FLUSH_BATCH_SIZE")
	setDuration(&cfg.Recorder.SnapshotInterval, "SPREADWATCH_RECORDER_SNAPSHOT_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "SPREADWATCH_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "SPREADWATCH_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "SPREADWATCH_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.PairsPath, "SPREADWATCH_PAIRS_PATH")
	setStr(&cfg.Mode, "SPREADWATCH_MODE")
	setStr(&cfg.LogLevel, "SPREADWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
