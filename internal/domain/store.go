package domain

import (
	"context"
	"io"
	"time"
)

// TickStore persists tick history for offline analytics. The core pipeline
// never reads from it.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []Tick) error
	ListBefore(ctx context.Context, before time.Time) ([]Tick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SpreadStore persists periodic spread snapshots for charting.
type SpreadStore interface {
	InsertBatch(ctx context.Context, results []SpreadResult) error
	ListRecent(ctx context.Context, pairID string, limit int) ([]SpreadResult, error)
}

// BlobWriter uploads archive objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged tick history out of the primary store.
type Archiver interface {
	ArchiveTicks(ctx context.Context, before time.Time) (int64, error)
}
