// Package consumer implements the durable tick stream reader. It claims
// batches from the tick log with consumer-group semantics, decodes and
// validates ticks, and feeds the price cache.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
)

// Config holds the consumer-group identity and poll parameters.
type Config struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int64
	Block        time.Duration
	RetryBackoff time.Duration
}

// Stats is a snapshot of consumer counters for operational visibility.
type Stats struct {
	Running     bool   `json:"running"`
	Processed   int64  `json:"messages_processed"`
	Failed      int64  `json:"messages_failed"`
	LastEntryID string `json:"last_entry_id"`
	Stream      string `json:"stream"`
	Group       string `json:"group"`
	Consumer    string `json:"consumer"`
}

// Consumer is the single logical stream reader for this process. It never
// terminates on a processing error: malformed entries are acknowledged and
// counted as failures so a poison message cannot stall the group, and
// transient read errors back off briefly and resume. Only cancellation
// stops the poll loop.
type Consumer struct {
	bus    domain.TickBus
	cache  *pricecache.Cache
	cfg    Config
	logger *slog.Logger

	running   atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	lastID string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Consumer. It does not touch Redis until Start.
func New(bus domain.TickBus, cache *pricecache.Cache, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{
		bus:    bus,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "consumer")),
	}
}

// Start ensures the consumer group exists (idempotently) and launches the
// poll loop. Starting an already-running consumer is an error.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("consumer: %w", domain.ErrAlreadyRunning)
	}

	if err := c.bus.EnsureGroup(ctx, c.cfg.Stream, c.cfg.Group); err != nil {
		c.running.Store(false)
		return fmt.Errorf("consumer: ensure group: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "consumer starting",
		slog.String("stream", c.cfg.Stream),
		slog.String("group", c.cfg.Group),
		slog.String("consumer", c.cfg.Consumer),
	)

	go func() {
		defer close(done)
		c.loop(loopCtx)
	}()

	return nil
}

// Stop cancels the in-flight blocking read and waits for the loop to observe
// cancellation before reporting stopped, so no claim dangles mid-flight.
// Stopping a consumer that is not running is a no-op.
func (c *Consumer) Stop() {
	if !c.running.Load() {
		return
	}

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.running.Store(false)

	c.logger.Info("consumer stopped",
		slog.Int64("processed", c.processed.Load()),
		slog.Int64("failed", c.failed.Load()),
	)
}

// loop is the poll loop: claim a batch, process each entry, repeat.
func (c *Consumer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := c.bus.ReadGroup(ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("claim failed, backing off",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		// A block timeout with no new entries is a normal iteration.
		for _, entry := range entries {
			c.processEntry(ctx, entry)
		}
	}
}

// processEntry decodes, validates, and applies one claimed entry. Every
// path acknowledges, including failures: malformed entries are never
// redelivered, only counted.
func (c *Consumer) processEntry(ctx context.Context, entry domain.StreamEntry) {
	ack := func() {
		if err := c.bus.Ack(ctx, c.cfg.Stream, c.cfg.Group, entry.ID); err != nil {
			c.logger.Warn("ack failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(entry.Payload) == 0 {
		c.logger.Warn("entry missing data field", slog.String("entry_id", entry.ID))
		ack()
		c.failed.Add(1)
		return
	}

	tick, err := domain.DecodeTick(entry.Payload)
	if err != nil {
		c.logger.Error("tick decode failed",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		ack()
		c.failed.Add(1)
		return
	}

	if err := tick.Validate(); err != nil {
		c.logger.Error("tick validation failed",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		ack()
		c.failed.Add(1)
		return
	}

	if err := c.cache.Update(tick.Source, tick.ContractID, tick.Price); err != nil {
		c.logger.Error("price cache update failed",
			slog.String("entry_id", entry.ID),
			slog.String("source", tick.Source),
			slog.String("error", err.Error()),
		)
		ack()
		c.failed.Add(1)
		return
	}

	ack()
	processed := c.processed.Add(1)

	c.mu.Lock()
	c.lastID = entry.ID
	c.mu.Unlock()

	if processed%100 == 0 {
		c.logger.Info("consumer progress",
			slog.Int64("processed", processed),
			slog.Int64("failed", c.failed.Load()),
			slog.String("last_entry_id", entry.ID),
		)
	}
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() Stats {
	c.mu.Lock()
	lastID := c.lastID
	c.mu.Unlock()

	return Stats{
		Running:     c.running.Load(),
		Processed:   c.processed.Load(),
		Failed:      c.failed.Load(),
		LastEntryID: lastID,
		Stream:      c.cfg.Stream,
		Group:       c.cfg.Group,
		Consumer:    c.cfg.Consumer,
	}
}

// PendingCount reports entries claimed by the group but not yet acked,
// used for backlog alarms.
func (c *Consumer) PendingCount(ctx context.Context) (int64, error) {
	return c.bus.PendingCount(ctx, c.cfg.Stream, c.cfg.Group)
}
