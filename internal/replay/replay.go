// Package replay re-executes decoded on-chain pool events against a local pool seeded
// from chain state and records where the two disagree.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"stableswap/internal/curve"
	"stableswap/internal/fixedpoint"
	"stableswap/internal/metrics"
	"stableswap/internal/model"
	"stableswap/internal/sim"
	"stableswap/internal/storage"
)

// StateSource loads a pool snapshot at a block. curve.Reader implements it.
type StateSource interface {
	FetchPoolState(ctx context.Context, ref curve.PoolRef, block uint64) (model.PoolState, error)
}

// Config controls a replay run. Tolerance is the largest absolute difference, in
// native units, still reported as a match.
type Config struct {
	Pool      curve.PoolRef
	ChainID   uint64
	Tolerance uint64
	BatchSize int
	Metrics   *metrics.Metrics
}

// Summary counts results by status.
type Summary struct {
	Total      int    `json:"total"`
	Matched    int    `json:"matched"`
	Mismatched int    `json:"mismatched"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Reseeds    int    `json:"reseeds"`
	LastBlock  uint64 `json:"last_block"`
}

func (s *Summary) add(status string) {
	s.Total++
	switch status {
	case model.ReplayMatch:
		s.Matched++
	case model.ReplayMismatch:
		s.Mismatched++
	case model.ReplayFailed:
		s.Failed++
	case model.ReplaySkipped:
		s.Skipped++
	}
}

// Replayer applies events block by block. After a mismatch or failure the rest of
// that block is skipped and the pool is reseeded from the chain at the next block.
type Replayer struct {
	cfg     Config
	source  StateSource
	results storage.ResultSink
	cursor  storage.CursorStore
	logger  *zap.Logger

	env        *sim.Env
	dirty      bool
	dirtyBlock uint64
}

// NewReplayer builds a Replayer. cursor may be nil.
func NewReplayer(cfg Config, source StateSource, results storage.ResultSink, cursor storage.CursorStore, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Replayer{
		cfg:     cfg,
		source:  source,
		results: results,
		cursor:  cursor,
		logger:  logger.With(zap.String("pool", cfg.Pool.Address.Hex())),
	}
}

// ReadEvents loads decoded events from a JSONL file.
func ReadEvents(path string) ([]model.TypedEventRecord, error) {
	var out []model.TypedEventRecord
	err := storage.ReadJSONL(path, func(line []byte) error {
		var rec model.TypedEventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Run replays the events of the configured pool that lie after the cursor. The cursor
// only ever points at the end of a block.
func (r *Replayer) Run(ctx context.Context, events []model.TypedEventRecord) (Summary, error) {
	var summary Summary
	if r.source == nil {
		return summary, fmt.Errorf("state source is nil")
	}
	if r.results == nil {
		return summary, fmt.Errorf("result sink is nil")
	}

	var after uint64
	if r.cursor != nil {
		last, ok, err := r.cursor.Load(ctx)
		if err != nil {
			return summary, fmt.Errorf("load cursor: %w", err)
		}
		if ok {
			after = last
			summary.LastBlock = last
			r.logger.Info("resume from cursor", zap.Uint64("last_block", last))
		}
	}

	pending := r.pendingEvents(events, after)
	batch := make([]model.ReplayResult, 0, r.cfg.BatchSize)
	for idx, ev := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := r.step(ctx, ev, &summary)
		if err != nil {
			return summary, err
		}
		batch = append(batch, res)
		summary.add(res.Status)
		r.cfg.Metrics.ObserveReplay(res.Status)

		endOfBlock := idx == len(pending)-1 || pending[idx+1].BlockNumber != ev.BlockNumber
		if endOfBlock && (len(batch) >= r.cfg.BatchSize || idx == len(pending)-1) {
			if err := r.flush(ctx, batch, ev.BlockNumber); err != nil {
				return summary, err
			}
			batch = batch[:0]
			summary.LastBlock = ev.BlockNumber
		}
	}

	r.logger.Info("replay complete",
		zap.Int("total", summary.Total),
		zap.Int("matched", summary.Matched),
		zap.Int("mismatched", summary.Mismatched),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("reseeds", summary.Reseeds),
	)
	return summary, nil
}

// pendingEvents keeps the pool's events in blocks after the cursor, in chain order.
func (r *Replayer) pendingEvents(events []model.TypedEventRecord, afterBlock uint64) []model.TypedEventRecord {
	addr := r.cfg.Pool.Address.Hex()
	out := make([]model.TypedEventRecord, 0, len(events))
	for _, ev := range events {
		if !strings.EqualFold(ev.Address, addr) {
			continue
		}
		if afterBlock > 0 && ev.BlockNumber <= afterBlock {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position() < out[j].Position() })
	return out
}

func (r *Replayer) step(ctx context.Context, ev model.TypedEventRecord, summary *Summary) (model.ReplayResult, error) {
	res := model.ReplayResult{
		ChainID:     ev.ChainID,
		PoolAddress: r.cfg.Pool.Address.Hex(),
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
		EventName:   ev.EventName,
	}
	if res.ChainID == 0 {
		res.ChainID = r.cfg.ChainID
	}

	if r.dirty && ev.BlockNumber == r.dirtyBlock {
		res.Status = model.ReplaySkipped
		res.Error = "pool diverged earlier in this block"
		return res, nil
	}
	if r.env == nil || r.dirty {
		if err := r.seed(ctx, ev.BlockNumber); err != nil {
			return res, err
		}
		summary.Reseeds++
		r.cfg.Metrics.Reseeded()
	}

	payload, err := ev.Payload()
	if err != nil {
		res.Status = model.ReplaySkipped
		res.Error = err.Error()
		return res, nil
	}

	cmp, err := r.apply(ctx, payload)
	r.env.Bank.Finalise()
	if err != nil {
		res.Status = model.ReplayFailed
		res.Error = err.Error()
		r.markDirty(ev)
		return res, nil
	}
	if cmp == nil {
		res.Status = model.ReplaySkipped
		return res, nil
	}

	res.Expected = cmp.expected
	res.Actual = cmp.actual
	res.Delta = fixedpoint.Format(cmp.delta)
	res.Status = model.ReplayMatch
	if cmp.delta.GtUint64(r.cfg.Tolerance) {
		res.Status = model.ReplayMismatch
		r.markDirty(ev)
	}
	return res, nil
}

func (r *Replayer) markDirty(ev model.TypedEventRecord) {
	r.dirty = true
	r.dirtyBlock = ev.BlockNumber
	r.logger.Warn("local pool diverged",
		zap.Uint64("block_number", ev.BlockNumber),
		zap.String("tx_hash", ev.TxHash),
		zap.String("event", ev.EventName),
	)
}

// seed rebuilds the local pool from chain state at the end of the previous block.
func (r *Replayer) seed(ctx context.Context, block uint64) error {
	at := uint64(0)
	if block > 0 {
		at = block - 1
	}
	state, err := r.source.FetchPoolState(ctx, r.cfg.Pool, at)
	if err != nil {
		return fmt.Errorf("fetch pool state at %d: %w", at, err)
	}
	cfg, err := sim.ConfigFromState(state)
	if err != nil {
		return fmt.Errorf("pool state at %d: %w", at, err)
	}
	env, err := sim.NewEnv(cfg, sim.Options{Logger: r.logger})
	if err != nil {
		return err
	}
	if err := env.Load(state); err != nil {
		return fmt.Errorf("load pool state at %d: %w", at, err)
	}
	r.env = env
	r.dirty = false
	r.logger.Debug("seeded local pool", zap.Uint64("block_number", at), zap.String("total_supply", state.TotalSupply))
	return nil
}

func (r *Replayer) flush(ctx context.Context, batch []model.ReplayResult, block uint64) error {
	if err := r.results.PutReplayResults(ctx, batch); err != nil {
		return fmt.Errorf("store replay results: %w", err)
	}
	if r.cursor != nil {
		if err := r.cursor.Save(ctx, block); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}
	return nil
}
