package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// fakeTickBus records appends and publishes and serves canned range results.
type fakeTickBus struct {
	entries   []domain.StreamEntry
	appended  [][]byte
	published map[string][]byte
}

func (f *fakeTickBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if f.published == nil {
		f.published = make(map[string][]byte)
	}
	f.published[channel] = payload
	return nil
}

func (f *fakeTickBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeTickBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeTickBus) StreamRevRangeN(ctx context.Context, stream string, count int64) ([]domain.StreamEntry, error) {
	if count < int64(len(f.entries)) {
		return f.entries[:count], nil
	}
	return f.entries, nil
}

func (f *fakeTickBus) EnsureGroup(ctx context.Context, stream, group string) error { return nil }

func (f *fakeTickBus) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (f *fakeTickBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return nil
}

func (f *fakeTickBus) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	return 0, nil
}

func encodedTick(t *testing.T, source, contract string, price float64) []byte {
	t.Helper()
	payload, err := domain.EncodeTick(domain.Tick{
		Source:     source,
		ContractID: contract,
		Price:      price,
		TsSource:   time.Now().UnixMilli(),
		TsIngest:   time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}
	return payload
}

func TestListTicksSkipsUndecodable(t *testing.T) {
	bus := &fakeTickBus{entries: []domain.StreamEntry{
		{ID: "3-0", Payload: encodedTick(t, "kalshi", "FED-YES", 0.61)},
		{ID: "2-0", Payload: []byte("junk")},
		{ID: "1-0", Payload: encodedTick(t, "manifold", "fed-yes", 0.57)},
	}}
	h := NewTickHandler(bus, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ticks", h.ListTicks)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ticks?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Ticks []tickEntry `json:"ticks"`
		Count int         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2 decodable ticks", body.Count)
	}
	if body.Ticks[0].EntryID != "3-0" || body.Ticks[1].EntryID != "1-0" {
		t.Fatalf("ticks = %+v, want 3-0 then 1-0", body.Ticks)
	}
}

func TestDebugPrice(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"source":"kalshi","contract_id":"FED-YES","price":0.5}`, http.StatusAccepted},
		{"unknown source", `{"source":"intrade","contract_id":"X","price":0.5}`, http.StatusBadRequest},
		{"price out of range", `{"source":"kalshi","contract_id":"X","price":1.5}`, http.StatusBadRequest},
		{"missing contract", `{"source":"kalshi","price":0.5}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeTickBus{}
			h := NewTickHandler(bus, testLogger())

			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/debug/price", h.DebugPrice)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/debug/price", strings.NewReader(tt.body))
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantStatus == http.StatusAccepted {
				if len(bus.appended) != 1 {
					t.Fatalf("appended = %d entries, want 1", len(bus.appended))
				}
				if _, ok := bus.published[domain.TickChannel("FED-YES")]; !ok {
					t.Fatal("tick was not published to its contract channel")
				}
			}
		})
	}
}
