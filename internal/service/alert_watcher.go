// Package service contains the background loops that run beside the core
// pipeline: alert delivery and history recording.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/notify"
)

// AlertEvaluator is what the watcher needs from the spread evaluator.
type AlertEvaluator interface {
	Alerts(minThreshold float64) []domain.Alert
}

// Notifier is the delivery side, satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AlertWatcher periodically evaluates all pairs and delivers notifications
// for pairs in breach. Each pair is notified once per excursion: a pair
// stays muted at its current severity and fires again only when severity
// escalates or after the spread has dropped back under threshold.
type AlertWatcher struct {
	evaluator   AlertEvaluator
	notifier    Notifier
	interval    time.Duration
	minSeverity domain.Severity
	logger      *slog.Logger

	mu       sync.Mutex
	notified map[string]domain.Severity // pair id -> last notified severity
}

// NewAlertWatcher creates an AlertWatcher. Alerts below minSeverity are
// logged but not delivered.
func NewAlertWatcher(evaluator AlertEvaluator, notifier Notifier, interval time.Duration, minSeverity domain.Severity, logger *slog.Logger) *AlertWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if minSeverity == "" {
		minSeverity = domain.SeverityHigh
	}
	return &AlertWatcher{
		evaluator:   evaluator,
		notifier:    notifier,
		interval:    interval,
		minSeverity: minSeverity,
		logger:      logger.With(slog.String("component", "alert_watcher")),
		notified:    make(map[string]domain.Severity),
	}
}

// Run evaluates on a fixed interval until the context is cancelled. Call in
// a goroutine.
func (w *AlertWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check runs one evaluation sweep.
func (w *AlertWatcher) check(ctx context.Context) {
	alerts := w.evaluator.Alerts(0)

	active := make(map[string]bool, len(alerts))
	for _, alert := range alerts {
		active[alert.Spread.PairID] = true
		w.handle(ctx, alert)
	}

	// Un-mute pairs that have dropped back under threshold.
	w.mu.Lock()
	for pairID := range w.notified {
		if !active[pairID] {
			delete(w.notified, pairID)
		}
	}
	w.mu.Unlock()
}

// handle delivers one alert unless the pair is muted at this severity.
func (w *AlertWatcher) handle(ctx context.Context, alert domain.Alert) {
	w.logger.InfoContext(ctx, "pair in breach",
		slog.String("pair_id", alert.Spread.PairID),
		slog.Float64("max_spread", alert.Spread.MaxSpread),
		slog.String("severity", string(alert.Severity)),
	)

	if alert.Severity.Rank() < w.minSeverity.Rank() {
		return
	}

	w.mu.Lock()
	last, seen := w.notified[alert.Spread.PairID]
	if seen && alert.Severity.Rank() <= last.Rank() {
		w.mu.Unlock()
		return
	}
	w.notified[alert.Spread.PairID] = alert.Severity
	w.mu.Unlock()

	title, message := notify.FormatAlert(alert)
	if err := w.notifier.Notify(ctx, notify.EventSpreadAlert, title, message); err != nil {
		w.logger.ErrorContext(ctx, "alert delivery failed",
			slog.String("pair_id", alert.Spread.PairID),
			slog.String("error", err.Error()),
		)
	}
}
