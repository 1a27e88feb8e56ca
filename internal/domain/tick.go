package domain

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// TickStream is the Redis stream that tick producers append to.
	TickStream = "market_ticks"

	// TickStreamMaxLen is the approximate stream length enforced on append
	// via XADD MAXLEN ~.
	TickStreamMaxLen int64 = 10000

	// TickChannelPrefix prefixes the per-contract Pub/Sub channels.
	TickChannelPrefix = "tick:"
)

// TickChannel returns the Pub/Sub channel carrying updates for one contract.
func TickChannel(contractID string) string {
	return TickChannelPrefix + contractID
}

// Tick is one normalized price observation for a contract on one platform.
// The wire format is a msgpack-encoded map; unknown keys are ignored on
// decode and missing required keys fail Validate.
type Tick struct {
	Source     string  `json:"source" msgpack:"source"`
	ContractID string  `json:"contract_id" msgpack:"contract_id"`
	Price      float64 `json:"price" msgpack:"price"`
	TsSource   int64   `json:"ts_source" msgpack:"ts_source"` // producer-reported, epoch ms
	TsIngest   int64   `json:"ts_ingest" msgpack:"ts_ingest"` // ingestor receive time, epoch ms
	TsEmit     int64   `json:"ts_emit,omitempty" msgpack:"ts_emit,omitempty"`
}

// Validate checks the required wire fields. Violating ticks are rejected,
// never clamped.
func (t *Tick) Validate() error {
	if t.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidTick)
	}
	if _, err := ParsePlatform(t.Source); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTick, t.Source)
	}
	if t.ContractID == "" {
		return fmt.Errorf("%w: missing contract_id", ErrInvalidTick)
	}
	if t.Price < 0 || t.Price > 1 {
		return fmt.Errorf("%w: price %v outside [0,1]", ErrInvalidTick, t.Price)
	}
	if t.TsSource <= 0 {
		return fmt.Errorf("%w: missing ts_source", ErrInvalidTick)
	}
	if t.TsIngest <= 0 {
		return fmt.Errorf("%w: missing ts_ingest", ErrInvalidTick)
	}
	return nil
}

// IngestLatencyMS is the producer-to-consumer latency in milliseconds.
func (t *Tick) IngestLatencyMS() int64 {
	return t.TsIngest - t.TsSource
}

// EmitLatencyMS is the producer-to-subscriber latency in milliseconds. It is
// zero until TsEmit has been stamped by the distribution layer.
func (t *Tick) EmitLatencyMS() int64 {
	if t.TsEmit == 0 {
		return 0
	}
	return t.TsEmit - t.TsSource
}

// EncodeTick serializes a tick to its msgpack wire form.
func EncodeTick(t Tick) ([]byte, error) {
	data, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("tick: encode: %w", err)
	}
	return data, nil
}

// DecodeTick parses the msgpack wire form. It does not validate; callers
// should invoke Validate on the result.
func DecodeTick(data []byte) (Tick, error) {
	var t Tick
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return Tick{}, fmt.Errorf("tick: decode: %w", err)
	}
	return t, nil
}
