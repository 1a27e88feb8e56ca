package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// Event types recognised by the notifier filter.
const (
	EventSpreadAlert = "spread_alert"
	EventConsumerLag = "consumer_lag"
)

// FormatAlert renders a spread alert as a notification title and body.
func FormatAlert(alert domain.Alert) (title, message string) {
	title = fmt.Sprintf("[%s] Spread alert: %s", strings.ToUpper(string(alert.Severity)), alert.Spread.PairID)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", alert.Spread.Description)
	fmt.Fprintf(&b, "Max spread: %.1f%% (%s)\n", alert.Spread.MaxSpread*100, alert.Spread.MaxSpreadPair)
	if alert.Spread.KalshiProb != nil {
		fmt.Fprintf(&b, "Kalshi: %.1f%%\n", *alert.Spread.KalshiProb*100)
	}
	if alert.Spread.PolyProb != nil {
		fmt.Fprintf(&b, "Polymarket: %.1f%%\n", *alert.Spread.PolyProb*100)
	}
	if alert.Spread.ManifoldProb != nil {
		fmt.Fprintf(&b, "Manifold: %.1f%%\n", *alert.Spread.ManifoldProb*100)
	}
	fmt.Fprintf(&b, "Threshold: %.1f%%, completeness: %.0f%%", alert.Threshold*100, alert.Spread.DataCompleteness*100)

	return title, b.String()
}
