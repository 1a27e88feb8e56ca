package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
)

// SpreadStore implements domain.SpreadStore using PostgreSQL. The full
// result is kept as JSONB; the indexed columns exist for querying.
type SpreadStore struct {
	pool *pgxpool.Pool
}

// NewSpreadStore creates a SpreadStore backed by the given connection pool.
func NewSpreadStore(pool *pgxpool.Pool) *SpreadStore {
	return &SpreadStore{pool: pool}
}

// InsertBatch records a batch of spread snapshots using pgx Batch.
func (s *SpreadStore) InsertBatch(ctx context.Context, results []domain.SpreadResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO spread_snapshots (pair_id, max_spread, max_spread_pair, completeness, payload)
		VALUES ($1, $2, $3, $4, $5)`

	for i, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("postgres: marshal snapshot %d/%d: %w", i+1, len(results), err)
		}
		batch.Queue(query, r.PairID, r.MaxSpread, r.MaxSpreadPair, r.DataCompleteness, payload)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot %d/%d: %w", i+1, len(results), err)
		}
	}
	return nil
}

// ListRecent returns the newest snapshots for a pair, newest first.
func (s *SpreadStore) ListRecent(ctx context.Context, pairID string, limit int) ([]domain.SpreadResult, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT payload
		FROM spread_snapshots
		WHERE pair_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`,
		pairID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", pairID, err)
	}
	defer rows.Close()

	var results []domain.SpreadResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		var r domain.SpreadResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	return results, nil
}

var _ domain.SpreadStore = (*SpreadStore)(nil)
