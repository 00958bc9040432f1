package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stableswap/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "stableswap",
		Short:        "StableSwap pool engine, indexer and replay",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("metrics-file", "", "write Prometheus metrics to this file when the command ends")

	root.AddCommand(newSimulateCmd(), newQuoteCmd(), newIndexCmd(), newReplayCmd())
	return root
}

// writeMetrics writes m to --metrics-file when set.
func writeMetrics(cmd *cobra.Command, m *metrics.Metrics, logger *zap.Logger) {
	path, _ := cmd.Flags().GetString("metrics-file")
	if path == "" {
		return
	}
	if err := m.WriteFile(path); err != nil {
		logger.Warn("write metrics failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("metrics written", zap.String("path", path))
}

// addPoolFlags registers the local pool description shared by several commands.
func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool-name", "local", "pool name")
	cmd.Flags().String("pool-address", "", "pool address")
	cmd.Flags().String("pool-lp-token", "", "LP token address")
	cmd.Flags().String("pool-owner", "", "owner allowed to withdraw admin fees")
	cmd.Flags().StringSlice("pool-coins", nil, "coin addresses (comma-separated)")
	cmd.Flags().StringSlice("pool-decimals", nil, "coin decimals (comma-separated, default 18 each)")
	cmd.Flags().Uint64("pool-a", 100, "amplification coefficient")
	cmd.Flags().Uint64("pool-fee", 4_000_000, "swap fee in parts per 1e10")
	cmd.Flags().Uint64("pool-admin-fee", 5_000_000_000, "admin share of fees in parts per 1e10")
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a JSONL operation script against a local pool",
		RunE:  runSimulate,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("script", "", "scenario JSONL path")
	cmd.Flags().String("out", "./data/steps.jsonl", "step results JSONL path")
	cmd.Flags().String("state", "./data/pool_state.json", "pool state file")
	cmd.Flags().String("events", "./data/pool_events.jsonl", "pool events JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; replaces the state and events files")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote an exchange locally, and on chain when an RPC URL is given",
		RunE:  runQuote,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Int("n-coins", 2, "number of coins in the on-chain pool")
	cmd.Flags().String("index", "uint256", "coin index type of the on-chain pool (uint256 or int128)")
	cmd.Flags().Uint64("block", 0, "block to read, 0 means latest")
	cmd.Flags().String("state", "./data/pool_state.json", "pool state file used without --rpc")
	cmd.Flags().Int("i", 0, "index of the coin sold")
	cmd.Flags().Int("j", 1, "index of the coin bought")
	cmd.Flags().String("dx", "", "amount sold in native units")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index pool logs into raw and decoded JSONL",
		RunE:  runIndex,
	}
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 follows the head")
	cmd.Flags().Uint64("confirmations", 12, "blocks to stay behind the head when following it")
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	cmd.Flags().Int("n-coins", 2, "number of coins of the pools")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("out", "./data/logs.jsonl", "raw logs JSONL path")
	cmd.Flags().String("events", "./data/typed_events.jsonl", "decoded events JSONL path")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL path")
	cmd.Flags().String("cursor", "./data/index_cursor.json", "cursor file path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; keeps the cursor in the database")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay decoded pool events against a local pool and compare outputs",
		RunE:  runReplay,
	}
	addPoolFlags(cmd)
	cmd.Flags().String("rpc", "", "archive RPC URL")
	cmd.Flags().Int("n-coins", 2, "number of coins in the pool")
	cmd.Flags().String("index", "uint256", "coin index type of the pool (uint256 or int128)")
	cmd.Flags().String("in", "./data/typed_events.jsonl", "decoded events JSONL path")
	cmd.Flags().String("out", "./data/replay_results.jsonl", "replay results JSONL path")
	cmd.Flags().String("cursor", "./data/replay_cursor.json", "cursor file path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN; stores results and the cursor in the database")
	cmd.Flags().Uint64("tolerance", 0, "largest difference in native units still reported as a match")
	cmd.Flags().Int("batch-size", 500, "results per write")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
