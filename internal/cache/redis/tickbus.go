package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// dataField is the stream entry field carrying the msgpack tick payload.
const dataField = "data"

// TickBus implements domain.TickBus using Redis Streams for the durable,
// ordered tick log and Redis Pub/Sub for ephemeral per-contract triggers.
type TickBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewTickBus creates a TickBus backed by the given Client.
func NewTickBus(c *Client, maxLen int64) *TickBus {
	if maxLen <= 0 {
		maxLen = domain.TickStreamMaxLen
	}
	return &TickBus{rdb: c.Underlying(), maxLen: maxLen}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (b *TickBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription and returns a read-only channel
// of payloads. Glob patterns use PSUBSCRIBE. The subscription and the
// returned channel are closed when ctx is cancelled.
func (b *TickBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Receive the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// StreamAppend appends a payload to the stream via XADD with approximate
// MAXLEN trimming.
func (b *TickBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{dataField: payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRevRangeN returns the newest count entries, newest first.
func (b *TickBus) StreamRevRangeN(ctx context.Context, stream string, count int64) ([]domain.StreamEntry, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream revrange %s: %w", stream, err)
	}
	return toEntries(msgs), nil
}

// EnsureGroup creates the consumer group starting at the beginning of the
// stream, creating the stream as a side effect. BUSYGROUP means the group
// already exists and is not an error.
func (b *TickBus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis: create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup claims up to count new entries for the consumer, blocking for at
// most block. A block timeout without new entries returns an empty slice.
func (b *TickBus) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}

	results, err := b.rdb.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read group %s on %s: %w", group, stream, err)
	}

	var entries []domain.StreamEntry
	for _, s := range results {
		entries = append(entries, toEntries(s.Messages)...)
	}
	return entries, nil
}

// Ack removes entries from the group's pending set.
func (b *TickBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("redis: ack %s on %s: %w", group, stream, err)
	}
	return nil
}

// PendingCount reports how many entries the group has claimed but not acked.
func (b *TickBus) PendingCount(ctx context.Context, stream, group string) (int64, error) {
	pending, err := b.rdb.XPending(ctx, stream, group).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis: pending %s on %s: %w", group, stream, err)
	}
	return pending.Count, nil
}

// toEntries extracts the data field from raw stream messages. Entries
// without a data field are kept with a nil payload so the consumer can count
// them as failures rather than silently skipping stream positions.
func toEntries(msgs []redis.XMessage) []domain.StreamEntry {
	entries := make([]domain.StreamEntry, 0, len(msgs))
	for _, msg := range msgs {
		var payload []byte
		switch v := msg.Values[dataField].(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		}
		entries = append(entries, domain.StreamEntry{ID: msg.ID, Payload: payload})
	}
	return entries
}

// Compile-time interface check.
var _ domain.TickBus = (*TickBus)(nil)
