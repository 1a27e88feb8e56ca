package domain

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestTickWireRoundTrip(t *testing.T) {
	in := Tick{
		Source:     "kalshi",
		ContractID: "FED-25MAR-HIKE",
		Price:      0.62,
		TsSource:   1756300000000,
		TsIngest:   1756300000045,
	}

	payload, err := EncodeTick(in)
	if err != nil {
		t.Fatalf("EncodeTick: %v", err)
	}

	out, err := DecodeTick(payload)
	if err != nil {
		t.Fatalf("DecodeTick: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
	if out.IngestLatencyMS() != 45 {
		t.Fatalf("ingest latency = %d, want 45", out.IngestLatencyMS())
	}
	if out.EmitLatencyMS() != 0 {
		t.Fatalf("emit latency = %d, want 0 before ts_emit is set", out.EmitLatencyMS())
	}
}

func TestDecodeTickIgnoresUnknownKeys(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{
		"source":      "polymarket",
		"contract_id": "fed-rate-hike",
		"price":       0.58,
		"ts_source":   int64(1756300000000),
		"ts_ingest":   int64(1756300000020),
		"shard":       7,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tick, err := DecodeTick(payload)
	if err != nil {
		t.Fatalf("DecodeTick: %v", err)
	}
	if err := tick.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tick.ContractID != "fed-rate-hike" || tick.Price != 0.58 {
		t.Fatalf("decoded tick = %+v", tick)
	}
}
