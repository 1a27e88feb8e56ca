package consumer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/pricecache"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus serves scripted batches from ReadGroup, then blocks until the
// caller's context is cancelled, like a real blocking stream read.
type fakeBus struct {
	mu      sync.Mutex
	batches [][]domain.StreamEntry
	acked   []string
	groups  []string
	pending int64
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (f *fakeBus) StreamRevRangeN(ctx context.Context, stream string, count int64) ([]domain.StreamEntry, error) {
	return nil, nil
}

func (f *fakeBus) EnsureGroup(ctx context.Context, stream, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, stream+"/"+group)
	return nil
}

func (f *fakeBus) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeBus) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeBus) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.acked))
	copy(out, f.acked)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func validPayload(t *testing.T, source, contract string, price float64) []byte {
	t.Helper()
	tick := domain.Tick{
		Source:     source,
		ContractID: contract,
		Price:      price,
		TsSource:   time.Now().UnixMilli(),
		TsIngest:   time.Now().UnixMilli(),
	}
	payload, err := domain.EncodeTick(tick)
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}
	return payload
}

func TestConsumerProcessesAndAcksBatch(t *testing.T) {
	bus := &fakeBus{
		batches: [][]domain.StreamEntry{{
			{ID: "1-0", Payload: []byte("not msgpack at all")},
			{ID: "1-1", Payload: nil},
			{ID: "2-0", Payload: validPayload(t, "kalshi", "FED-HIKE", 0.62)},
		}},
	}
	cache := pricecache.New()
	c := New(bus, cache, Config{
		Stream:   domain.TickStream,
		Group:    "spreadwatch",
		Consumer: "test-1",
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return len(bus.ackedIDs()) == 3 })

	stats := c.Stats()
	if stats.Processed != 1 {
		t.Fatalf("processed = %d, want 1", stats.Processed)
	}
	if stats.Failed != 2 {
		t.Fatalf("failed = %d, want 2", stats.Failed)
	}
	if stats.LastEntryID != "2-0" {
		t.Fatalf("last entry id = %q, want 2-0", stats.LastEntryID)
	}

	price, ok := cache.Get(domain.PlatformKalshi, "FED-HIKE")
	if !ok || price != 0.62 {
		t.Fatalf("cached price = %v ok=%v, want 0.62", price, ok)
	}
}

func TestConsumerAcksInvalidTicks(t *testing.T) {
	// Structurally valid msgpack with an out-of-range price fails
	// validation and is still acked.
	payload, err := domain.EncodeTick(domain.Tick{
		Source:     "polymarket",
		ContractID: "fed-hike",
		Price:      1.7,
		TsSource:   time.Now().UnixMilli(),
		TsIngest:   time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}

	bus := &fakeBus{
		batches: [][]domain.StreamEntry{{{ID: "5-0", Payload: payload}}},
	}
	cache := pricecache.New()
	c := New(bus, cache, Config{Stream: domain.TickStream, Group: "g", Consumer: "c"}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	waitFor(t, func() bool { return len(bus.ackedIDs()) == 1 })

	stats := c.Stats()
	if stats.Failed != 1 || stats.Processed != 0 {
		t.Fatalf("stats = %+v, want failed=1 processed=0", stats)
	}
	if _, ok := cache.Get(domain.PlatformPolymarket, "fed-hike"); ok {
		t.Fatal("invalid tick must not reach the cache")
	}
}

func TestConsumerStopJoinsLoop(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus, pricecache.New(), Config{Stream: domain.TickStream, Group: "g", Consumer: "c"}, testLogger())

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.Stats().Running {
		t.Fatal("consumer should report running after Start")
	}

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while loop was blocked in ReadGroup")
	}
	if c.Stats().Running {
		t.Fatal("consumer should report stopped after Stop")
	}

	// Stopping again is a no-op.
	c.Stop()
}

func TestConsumerDoubleStart(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus, pricecache.New(), Config{Stream: domain.TickStream, Group: "g", Consumer: "c"}, testLogger())

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestConsumerPendingCount(t *testing.T) {
	bus := &fakeBus{pending: 7}
	c := New(bus, pricecache.New(), Config{Stream: domain.TickStream, Group: "g", Consumer: "c"}, testLogger())

	n, err := c.PendingCount(context.Background())
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if n != 7 {
		t.Fatalf("pending = %d, want 7", n)
	}
}
