package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertBatch inserts ticks efficiently using pgx Batch. A tick already
// recorded (same source, contract_id, ts_source) is silently skipped via
// ON CONFLICT DO NOTHING.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ticks (source, contract_id, price, ts_source, ts_ingest)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, contract_id, ts_source) DO NOTHING`

	for _, t := range ticks {
		batch.Queue(query, t.Source, t.ContractID, t.Price, t.TsSource, t.TsIngest)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert tick %d/%d: %w", i+1, len(ticks), err)
		}
	}
	return nil
}

// ListBefore returns all ticks recorded before the cutoff, oldest first.
func (s *TickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source, contract_id, price, ts_source, ts_ingest
		FROM ticks
		WHERE recorded_at < $1
		ORDER BY recorded_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		if err := rows.Scan(&t.Source, &t.ContractID, &t.Price, &t.TsSource, &t.TsIngest); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ticks: %w", err)
	}
	return ticks, nil
}

// DeleteBefore removes ticks recorded before the cutoff and reports how many
// rows went away.
func (s *TickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ticks WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.TickStore = (*TickStore)(nil)
