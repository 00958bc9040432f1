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
	"stableswap/internal/indexer"
	"stableswap/internal/metrics"
	"stableswap/internal/storage"
	"stableswap/internal/storage/postgres"
)

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIndex(cfgFile, cmd.Flags())
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
	pools, err := indexer.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool address list is required")
	}
	decoder, err := curve.NewDecoder(cfg.NCoins)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var cursor storage.CursorStore = &storage.FileCursor{Path: cfg.Cursor}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		cursor = &postgres.Cursor{Store: store, Name: "index"}
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		Confirmations: cfg.Confirmations,
		Pools:         pools,
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		Metrics:       m,
	}, chainClient, decoder, storage.NewJsonlSink(cfg.Out), storage.NewEventFiles(cfg.Events, cfg.Errors), cursor, logger)

	logger.Info("index start",
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("pools", len(pools)),
		zap.Int("n_coins", cfg.NCoins),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("events", cfg.Events),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	last, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("index complete", zap.Uint64("last_block", last))
	return nil
}
