package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableswap/internal/chain"
	"stableswap/internal/config"
	"stableswap/internal/curve"
	"stableswap/internal/metrics"
	"stableswap/internal/replay"
	"stableswap/internal/storage"
	"stableswap/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	m := metrics.New()
	defer writeMetrics(cmd, m, logger)

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	ref, err := poolRef(cfg.Pool, cfg.NCoins, cfg.Index)
	if err != nil {
		return err
	}
	events, err := replay.ReadEvents(cfg.In)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	var (
		results storage.ResultSink  = storage.NewJsonlSink(cfg.Out)
		cursor  storage.CursorStore = &storage.FileCursor{Path: cfg.Cursor}
		store   *postgres.Store
	)
	if cfg.PGDSN != "" {
		if store, err = postgres.NewStore(ctx, cfg.PGDSN); err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		results = store
		cursor = &postgres.Cursor{Store: store, Name: "replay:" + ref.Address.Hex()}
	}

	replayer := replay.NewReplayer(replay.Config{
		Pool:      ref,
		ChainID:   chainID.Uint64(),
		Tolerance: cfg.Tolerance,
		BatchSize: cfg.BatchSize,
		Metrics:   m,
	}, curve.NewReader(chainClient, curve.NewTokenCache(0), logger), results, cursor, logger)

	logger.Info("replay start",
		zap.String("pool", ref.Address.Hex()),
		zap.String("input", cfg.In),
		zap.Int("events", len(events)),
		zap.Uint64("tolerance", cfg.Tolerance),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	summary, err := replayer.Run(ctx, events)
	if err != nil {
		return err
	}
	if store != nil {
		counts, err := store.ReplayStatusCounts(ctx, ref.Address.Hex())
		if err != nil {
			return err
		}
		logger.Info("replay totals", zap.Any("status_counts", counts))
	}
	logger.Info("replay summary", zap.Any("summary", summary))
	return nil
}
