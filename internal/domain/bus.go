package domain

import (
	"context"
	"time"
)

// StreamEntry is a single entry claimed from the tick stream.
type StreamEntry struct {
	ID      string
	Payload []byte
}

// TickBus provides the durable tick log (consumer-group semantics) and the
// ephemeral per-contract Pub/Sub side-channel.
type TickBus interface {
	// Publish sends a payload to a Pub/Sub channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a read-only channel of payloads for a channel or
	// glob pattern. The subscription closes when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// StreamAppend appends a payload to the tick stream with approximate
	// MAXLEN trimming.
	StreamAppend(ctx context.Context, stream string, payload []byte) error

	// StreamRevRangeN returns the newest count entries from the stream.
	StreamRevRangeN(ctx context.Context, stream string, count int64) ([]StreamEntry, error)

	// EnsureGroup creates the consumer group if it does not exist. An
	// already-existing group is not an error.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup claims up to count new entries for the consumer, blocking
	// for at most block. Zero entries after the block timeout is a normal
	// no-op, returned as an empty slice with a nil error.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)

	// Ack removes entries from the group's pending set.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// PendingCount reports entries claimed by the group but not yet acked.
	PendingCount(ctx context.Context, stream, group string) (int64, error)
}

// RateLimiter answers whether a keyed action is allowed under a fixed-window
// limit. Implementations fail open on backend errors.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
