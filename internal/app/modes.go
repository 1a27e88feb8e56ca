package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spreadwatch/internal/config"
	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/notify"
	"github.com/alanyoungcy/spreadwatch/internal/server"
	"github.com/alanyoungcy/spreadwatch/internal/server/handler"
	"github.com/alanyoungcy/spreadwatch/internal/server/ws"
	"github.com/alanyoungcy/spreadwatch/internal/service"
)

// consumerLagThreshold is the pending-entry count above which the consumer is
// considered to be falling behind and a consumer_lag notification fires.
const consumerLagThreshold = 1000

// MonitorMode runs the live pipeline without persistence: the stream consumer,
// the WebSocket hub, and the HTTP API. Nothing is written to Postgres or S3.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startCore(ctx, g, deps); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	return g.Wait()
}

// FullMode runs everything monitor mode runs, plus history recording to
// Postgres, alert delivery, consumer lag watching, and periodic tick
// archiving to S3 when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startCore(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	// History recorder: raw ticks plus periodic spread snapshots.
	recorder := service.NewRecorder(deps.Bus, deps.TickStore, deps.SpreadStore, deps.Evaluator,
		service.RecorderConfig{
			FlushInterval:    a.cfg.Recorder.FlushInterval.Duration,
			FlushBatchSize:   a.cfg.Recorder.FlushBatchSize,
			SnapshotInterval: a.cfg.Recorder.SnapshotInterval.Duration,
		}, a.logger)
	g.Go(func() error {
		return recorder.Run(ctx)
	})

	// Alert delivery.
	minSeverity := domain.Severity(strings.ToLower(a.cfg.Alerting.MinSeverity))
	watcher := service.NewAlertWatcher(deps.Evaluator, deps.Notifier,
		a.cfg.Alerting.Interval.Duration, minSeverity, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	// Consumer lag watch: fires once per excursion above the threshold.
	g.Go(func() error {
		return a.watchConsumerLag(ctx, deps)
	})

	// Periodic tick archiving to S3.
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// startCore launches the subsystems shared by every mode: the stream consumer,
// the WebSocket hub, and (when enabled) the HTTP server.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.Consumer.Start(ctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		deps.Consumer.Stop()
		return ctx.Err()
	})

	hub := ws.NewHub(deps.Bus, deps.Evaluator, a.logger, ws.Config{
		MaxConnections:    a.cfg.WS.MaxConnections,
		HeartbeatInterval: a.cfg.WS.HeartbeatInterval.Duration,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub)
	}

	return nil
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	reload := func() (int, error) {
		pairs, err := config.LoadPairs(a.cfg.PairsPath, a.logger)
		if err != nil {
			return 0, err
		}
		deps.Evaluator.SetPairs(pairs)
		return len(pairs), nil
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Redis, a.cfg.Mode, a.logger),
		Spreads: handler.NewSpreadHandler(deps.Evaluator, a.logger),
		Ticks:   handler.NewTickHandler(deps.Bus, a.logger),
		Pairs:   handler.NewPairHandler(deps.Evaluator, reload, a.logger),
		Stats:   handler.NewStatsHandler(deps.PriceCache, deps.Consumer, hub, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// watchConsumerLag polls the consumer group's pending-entry count and sends a
// consumer_lag notification when the backlog crosses the threshold. The alert
// re-arms once the backlog has drained back under it.
func (a *App) watchConsumerLag(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var alerted bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pending, err := deps.Consumer.PendingCount(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "lag watch: pending count failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if pending < consumerLagThreshold {
				alerted = false
				continue
			}
			if alerted {
				continue
			}
			alerted = true
			a.logger.WarnContext(ctx, "consumer is lagging",
				slog.Int64("pending", pending),
				slog.Int64("threshold", consumerLagThreshold),
			)
			msg := fmt.Sprintf("Consumer group %q has %d pending entries (threshold %d).",
				a.cfg.Consumer.Group, pending, consumerLagThreshold)
			if err := deps.Notifier.Notify(ctx, notify.EventConsumerLag, "Consumer lag", msg); err != nil {
				a.logger.WarnContext(ctx, "lag watch: notify failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// runArchiveLoop periodically moves ticks older than the retention window out
// of Postgres and into S3. The first run happens one interval after startup.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			archived, err := deps.Archiver.ArchiveTicks(ctx, before)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
					slog.Int64("archived", archived),
				)
				continue
			}
			if archived > 0 {
				a.logger.InfoContext(ctx, "archived ticks",
					slog.Int64("count", archived),
					slog.Time("before", before),
				)
			}
		}
	}
}
