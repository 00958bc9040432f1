// Package indexer pulls pool logs from the chain in block batches, stores them raw and
// decoded, and remembers the last indexed block.
package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stableswap/internal/metrics"
	"stableswap/internal/model"
	"stableswap/internal/storage"
)

// Chain is the part of chain.Client the indexer needs.
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Decoder turns raw pool logs into typed events. curve.Decoder implements it.
type Decoder interface {
	Topics() []common.Hash
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// RunConfig holds runtime settings for the indexer. ToBlock 0 follows the chain head,
// minus Confirmations.
type RunConfig struct {
	FromBlock     uint64
	ToBlock       uint64
	Confirmations uint64
	Pools         []common.Address
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	Metrics       *metrics.Metrics
}

// Runner streams pool logs and writes them to the sinks.
type Runner struct {
	cfg     RunConfig
	chain   Chain
	decoder Decoder
	logs    storage.LogSink
	events  storage.EventSink
	cursor  storage.CursorStore
	logger  *zap.Logger
	now     func() time.Time
	seen    map[string]struct{}
}

// NewRunner builds a Runner. events and cursor may be nil.
func NewRunner(cfg RunConfig, chainClient Chain, decoder Decoder, logs storage.LogSink, events storage.EventSink, cursor storage.CursorStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		chain:   chainClient,
		decoder: decoder,
		logs:    logs,
		events:  events,
		cursor:  cursor,
		logger:  logger,
		now:     time.Now,
		seen:    make(map[string]struct{}),
	}
}

// Run indexes every batch in the configured range and returns the last indexed block.
func (r *Runner) Run(ctx context.Context) (uint64, error) {
	if r.chain == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if r.decoder == nil {
		return 0, fmt.Errorf("decoder is nil")
	}
	if r.logs == nil {
		return 0, fmt.Errorf("log sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Pools) == 0 {
		return 0, fmt.Errorf("at least one pool address is required")
	}

	chainID, err := r.chain.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return 0, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from, to, err := r.bounds(ctx)
	if err != nil {
		return 0, err
	}
	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		if from == 0 {
			return 0, nil
		}
		return from - 1, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var last uint64
	if from > 0 {
		last = from - 1
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if err := r.runBatch(ctx, chainID.Uint64(), blockRange); err != nil {
			return last, err
		}
		last = blockRange.To
	}
	return last, nil
}

// bounds resolves the block range, resuming after the cursor when it is ahead of
// FromBlock.
func (r *Runner) bounds(ctx context.Context) (uint64, uint64, error) {
	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		var latest uint64
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			latest, err = r.chain.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return 0, 0, fmt.Errorf("get latest block: %w", err)
		}
		to = SafeHead(latest, r.cfg.Confirmations)
	}

	if r.cursor != nil {
		last, ok, err := r.cursor.Load(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("load cursor: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from cursor", zap.Uint64("last_indexed", last), zap.Uint64("from", from))
		}
	}
	return from, to, nil
}

func (r *Runner) runBatch(ctx context.Context, chainID uint64, blockRange BlockRange) error {
	r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	ingestedAt := r.now().UTC()
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Removed || r.isDuplicate(log) {
			continue
		}
		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, buildLogRecord(chainID, log, ts, ingestedAt))
	}
	model.SortLogRecords(records)

	if err := r.logs.PutLogBatch(records); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}

	events, failed := decodeRecords(r.decoder, records)
	for _, f := range failed {
		r.logger.Warn("decode failed", zap.String("tx_hash", f.TxHash), zap.Uint64("log_index", f.LogIndex), zap.String("error", f.Error))
	}
	if r.events != nil {
		if err := r.events.PutTypedEvents(events); err != nil {
			return fmt.Errorf("store events: %w", err)
		}
		if err := r.events.PutDecodeErrors(failed); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}

	if r.cursor != nil {
		if err := r.cursor.Save(ctx, blockRange.To); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}

	r.cfg.Metrics.AddIndexed(len(records), len(failed), blockRange.To)
	r.logger.Info("batch complete",
		zap.Int("logs", len(records)),
		zap.Int("events", len(events)),
		zap.Int("decode_errors", len(failed)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Pools, r.decoder.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
