package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stableswap/internal/model"
)

// Store provides Postgres persistence for pool snapshots, engine events, replay results
// and job cursors.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Commit upserts the pool snapshot and inserts its events in one transaction. A stale
// snapshot (sequence not ahead of the stored one) is rejected.
func (s *Store) Commit(ctx context.Context, state model.PoolState, events []model.PoolEvent) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal pool state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO pool_state (pool_address, name, sequence, phase, total_supply, invariant, state, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, now())
		ON CONFLICT (pool_address) DO UPDATE SET
			name = EXCLUDED.name,
			sequence = EXCLUDED.sequence,
			phase = EXCLUDED.phase,
			total_supply = EXCLUDED.total_supply,
			invariant = EXCLUDED.invariant,
			state = EXCLUDED.state,
			updated_at = now()
		WHERE pool_state.sequence < EXCLUDED.sequence
	`,
		state.Address,
		state.Name,
		int64(state.Sequence),
		state.Phase,
		numeric(state.TotalSupply),
		numeric(state.Invariant),
		raw,
	)
	if err != nil {
		return fmt.Errorf("upsert pool state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: sequence %d is not ahead of the stored state", state.Address, state.Sequence)
	}

	if len(events) > 0 {
		batch := &pgx.Batch{}
		for i, ev := range events {
			data, err := json.Marshal(ev.Data)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", ev.EventName, err)
			}
			batch.Queue(`
				INSERT INTO pool_events (pool_address, sequence, position, event_name, event_ts, data)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, ev.Pool, int64(ev.Sequence), i, ev.EventName, ev.Timestamp, data)
		}
		br := tx.SendBatch(ctx, batch)
		for range events {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert pool event: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert pool events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadPoolState returns the stored snapshot of a pool.
func (s *Store) LoadPoolState(ctx context.Context, poolAddress string) (model.PoolState, bool, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM pool_state WHERE pool_address = $1`, poolAddress)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, err
	}
	var state model.PoolState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.PoolState{}, false, fmt.Errorf("parse pool state: %w", err)
	}
	return state, true, nil
}

// PoolEvents returns the events of a pool with sequence above after, in commit order.
func (s *Store) PoolEvents(ctx context.Context, poolAddress string, after uint64) ([]model.PoolEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, sequence, event_name, event_ts, data
		FROM pool_events
		WHERE pool_address = $1 AND sequence > $2
		ORDER BY sequence, position
	`, poolAddress, int64(after))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PoolEvent
	for rows.Next() {
		var (
			ev  model.PoolEvent
			seq int64
			raw []byte
		)
		if err := rows.Scan(&ev.Pool, &seq, &ev.EventName, &ev.Timestamp, &raw); err != nil {
			return nil, err
		}
		ev.Sequence = uint64(seq)
		ev.Data = json.RawMessage(raw)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PutReplayResults inserts or updates replay comparisons.
func (s *Store) PutReplayResults(ctx context.Context, results []model.ReplayResult) error {
	if len(results) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range results {
		batch.Queue(`
			INSERT INTO replay_results (
				chain_id, pool_address, block_number, tx_hash, log_index, event_name,
				status, expected, actual, delta, error, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
			ON CONFLICT (chain_id, tx_hash, log_index)
			DO UPDATE SET
				status = EXCLUDED.status,
				expected = EXCLUDED.expected,
				actual = EXCLUDED.actual,
				delta = EXCLUDED.delta,
				error = EXCLUDED.error,
				updated_at = now()
		`,
			int64(r.ChainID),
			r.PoolAddress,
			int64(r.BlockNumber),
			r.TxHash,
			int64(r.LogIndex),
			r.EventName,
			r.Status,
			r.Expected,
			r.Actual,
			r.Delta,
			r.Error,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range results {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ReplayStatusCounts returns the number of results per status for a pool.
func (s *Store) ReplayStatusCounts(ctx context.Context, poolAddress string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM replay_results WHERE pool_address = $1 GROUP BY status
	`, poolAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = int(count)
	}
	return out, rows.Err()
}

// LoadCursor returns the stored position for a job name.
func (s *Store) LoadCursor(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("cursor name required")
	}
	var pos int64
	row := s.pool.QueryRow(ctx, `SELECT position FROM job_cursor WHERE name=$1`, name)
	if err := row.Scan(&pos); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(pos), true, nil
}

// SaveCursor upserts the position for a job name.
func (s *Store) SaveCursor(ctx context.Context, name string, position uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_cursor (name, position, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET position = EXCLUDED.position, updated_at = now()
	`, name, int64(position))
	return err
}

// Cursor binds a job name to the store.
type Cursor struct {
	Store *Store
	Name  string
}

func (c *Cursor) Load(ctx context.Context) (uint64, bool, error) {
	if c == nil || c.Store == nil {
		return 0, false, nil
	}
	return c.Store.LoadCursor(ctx, c.Name)
}

func (c *Cursor) Save(ctx context.Context, position uint64) error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.SaveCursor(ctx, c.Name, position)
}

func numeric(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
