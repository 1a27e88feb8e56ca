package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// SnapshotEvaluator is what the recorder needs from the spread evaluator.
type SnapshotEvaluator interface {
	EvaluateAll() []domain.SpreadResult
}

// RecorderConfig bounds the recorder's batching behaviour.
type RecorderConfig struct {
	FlushInterval    time.Duration
	FlushBatchSize   int
	SnapshotInterval time.Duration
}

// Recorder subscribes to the live tick channels and persists history: raw
// ticks batched into the tick store, plus periodic spread snapshots. It is
// an observer only; losing it never affects the live pipeline.
type Recorder struct {
	bus       domain.TickBus
	ticks     domain.TickStore
	spreads   domain.SpreadStore
	evaluator SnapshotEvaluator
	cfg       RecorderConfig
	logger    *slog.Logger

	buf []domain.Tick
}

// NewRecorder creates a Recorder.
func NewRecorder(bus domain.TickBus, ticks domain.TickStore, spreads domain.SpreadStore, evaluator SnapshotEvaluator, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = 100
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = time.Minute
	}
	return &Recorder{
		bus:       bus,
		ticks:     ticks,
		spreads:   spreads,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "recorder")),
	}
}

// Run consumes the tick channels until the context is cancelled. Remaining
// buffered ticks are flushed on the way out.
func (r *Recorder) Run(ctx context.Context) error {
	msgCh, err := r.bus.Subscribe(ctx, domain.TickChannelPrefix+"*")
	if err != nil {
		return err
	}

	flush := time.NewTicker(r.cfg.FlushInterval)
	defer flush.Stop()
	snapshot := time.NewTicker(r.cfg.SnapshotInterval)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return ctx.Err()

		case payload, ok := <-msgCh:
			if !ok {
				r.flush(context.WithoutCancel(ctx))
				return nil
			}
			tick, err := domain.DecodeTick(payload)
			if err != nil {
				continue
			}
			r.buf = append(r.buf, tick)
			if len(r.buf) >= r.cfg.FlushBatchSize {
				r.flush(ctx)
			}

		case <-flush.C:
			r.flush(ctx)

		case <-snapshot.C:
			r.snapshot(ctx)
		}
	}
}

// flush writes the buffered ticks. The buffer is kept on failure and retried
// on the next flush.
func (r *Recorder) flush(ctx context.Context) {
	if len(r.buf) == 0 {
		return
	}
	if err := r.ticks.InsertBatch(ctx, r.buf); err != nil {
		r.logger.ErrorContext(ctx, "tick flush failed",
			slog.Int("buffered", len(r.buf)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.DebugContext(ctx, "ticks flushed", slog.Int("count", len(r.buf)))
	r.buf = r.buf[:0]
}

// snapshot records the current spread table.
func (r *Recorder) snapshot(ctx context.Context) {
	results := r.evaluator.EvaluateAll()
	if len(results) == 0 {
		return
	}
	if err := r.spreads.InsertBatch(ctx, results); err != nil {
		r.logger.ErrorContext(ctx, "spread snapshot failed",
			slog.Int("count", len(results)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.DebugContext(ctx, "spread snapshot recorded", slog.Int("count", len(results)))
}
