package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableswap/internal/config"
	"stableswap/internal/metrics"
	"stableswap/internal/pool"
	"stableswap/internal/sim"
	"stableswap/internal/storage"
	"stableswap/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
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

	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}
	poolCfg, err := cfg.Pool.PoolConfig()
	if err != nil {
		return err
	}
	ops, err := sim.ReadOps(cfg.Script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store pool.Store
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if _, ok, err := pg.LoadPoolState(ctx, poolCfg.Address.Hex()); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("pool %s already has state in postgres", poolCfg.Address.Hex())
		}
		store = pg
	} else {
		fs := storage.NewFileStore(cfg.State, cfg.Events)
		if _, ok, err := fs.LoadPoolState(ctx); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("state file %s exists; remove it or pass another --state", cfg.State)
		}
		store = fs
	}

	env, err := sim.NewEnv(poolCfg, sim.Options{Store: store, Logger: logger, Metrics: m})
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("pool", poolCfg.Name),
		zap.Int("coins", len(poolCfg.Coins)),
		zap.Uint64("a", poolCfg.A),
		zap.Uint64("fee", poolCfg.Fee),
		zap.Int("ops", len(ops)),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	results, runErr := sim.NewRunner(env, logger).Run(ctx, ops)

	records := make([]interface{}, len(results))
	counts := make(map[string]int)
	for i, res := range results {
		records[i] = res
		counts[res.Status]++
	}
	if err := storage.NewJsonlSink(cfg.Out).Append(records...); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	logger.Info("simulate complete",
		zap.Int("steps", len(results)),
		zap.Int("ok", counts[sim.StepOK]),
		zap.Int("failed", counts[sim.StepFailed]),
		zap.Int("unexpected", counts[sim.StepUnexpected]),
		zap.String("out", cfg.Out),
	)
	if runErr != nil {
		return runErr
	}
	if counts[sim.StepUnexpected] > 0 {
		return fmt.Errorf("%d steps did not fail as expected", counts[sim.StepUnexpected])
	}
	return nil
}
