package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/spreadwatch/internal/blob/s3"
	"github.com/alanyoungcy/spreadwatch/internal/cache/redis"
	"github.com/alanyoungcy/spreadwatch/internal/config"
	"github.com/alanyoungcy/spreadwatch/internal/consumer"
	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/notify"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
	"github.com/alanyoungcy/spreadwatch/internal/spread"
	"github.com/alanyoungcy/spreadwatch/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Redis
	Redis       *redis.Client
	Bus         domain.TickBus
	RateLimiter domain.RateLimiter

	// In-process pipeline
	PriceCache *pricecache.Cache
	Evaluator  *spread.Evaluator
	Consumer   *consumer.Consumer

	// Stores (full mode only)
	TickStore   domain.TickStore
	SpreadStore domain.SpreadStore

	// Blob storage (full mode with archiving enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "full"
}

// needsS3 returns true when the configuration requires object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "full" && cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (required in every mode) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.Bus = redis.NewTickBus(redisClient, domain.TickStreamMaxLen)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- In-process pipeline: cache, evaluator, consumer ---
	deps.PriceCache = pricecache.New()
	deps.Evaluator = spread.New(deps.PriceCache, logger)

	pairs, err := config.LoadPairs(cfg.PairsPath, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load pairs: %w", err)
	}
	deps.Evaluator.SetPairs(pairs)

	deps.Consumer = consumer.New(deps.Bus, deps.PriceCache, consumer.Config{
		Stream:       domain.TickStream,
		Group:        cfg.Consumer.Group,
		Consumer:     cfg.Consumer.Name,
		BatchSize:    int64(cfg.Consumer.BatchSize),
		Block:        cfg.Consumer.Block.Duration,
		RetryBackoff: cfg.Consumer.RetryBackoff.Duration,
	}, logger)

	// --- PostgreSQL (only for modes that persist history) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TickStore = postgres.NewTickStore(pool)
		deps.SpreadStore = postgres.NewSpreadStore(pool)
	}

	// --- S3 blob storage (only when archiving is on) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		// Archiver reads from the tick store, so it needs Postgres too.
		if deps.TickStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TickStore)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
