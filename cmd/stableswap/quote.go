package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stableswap/internal/chain"
	"stableswap/internal/config"
	"stableswap/internal/curve"
	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
	"stableswap/internal/sim"
	"stableswap/internal/storage"
)

type quoteOutput struct {
	Pool              string `json:"pool"`
	Block             uint64 `json:"block,omitempty"`
	I                 int    `json:"i"`
	J                 int    `json:"j"`
	Dx                string `json:"dx"`
	Dy                string `json:"dy"`
	ChainDy           string `json:"chain_dy,omitempty"`
	VirtualPrice      string `json:"virtual_price,omitempty"`
	ChainVirtualPrice string `json:"chain_virtual_price,omitempty"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dx, err := fixedpoint.Parse(cfg.Dx)
	if err != nil {
		return fmt.Errorf("dx: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		state  model.PoolState
		reader *curve.Reader
		ref    curve.PoolRef
	)
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		if ref, err = poolRef(cfg.Pool, cfg.NCoins, cfg.Index); err != nil {
			return err
		}
		reader = curve.NewReader(chainClient, curve.NewTokenCache(0), logger)
		if state, err = reader.FetchPoolState(ctx, ref, cfg.Block); err != nil {
			return fmt.Errorf("fetch pool state: %w", err)
		}
	} else {
		var ok bool
		state, ok, err = storage.NewFileStore(cfg.State, "").LoadPoolState(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no pool state at %s; pass --rpc or run simulate first", cfg.State)
		}
	}

	poolCfg, err := sim.ConfigFromState(state)
	if err != nil {
		return err
	}
	env, err := sim.NewEnv(poolCfg, sim.Options{Logger: logger})
	if err != nil {
		return err
	}
	if err := env.Load(state); err != nil {
		return err
	}

	dy, err := env.Pool.GetDy(cfg.I, cfg.J, dx)
	if err != nil {
		return fmt.Errorf("local quote: %w", err)
	}
	out := quoteOutput{
		Pool:  state.Address,
		Block: cfg.Block,
		I:     cfg.I,
		J:     cfg.J,
		Dx:    fixedpoint.Format(dx),
		Dy:    fixedpoint.Format(dy),
	}
	if vp, err := env.Pool.VirtualPrice(); err == nil {
		out.VirtualPrice = fixedpoint.Format(vp)
	}
	if reader != nil {
		chainDy, err := reader.QuoteDy(ctx, ref, cfg.I, cfg.J, dx, cfg.Block)
		if err != nil {
			logger.Warn("on-chain quote failed", zap.Error(err))
		} else {
			out.ChainDy = fixedpoint.Format(chainDy)
		}
		if vp, err := reader.VirtualPrice(ctx, ref, cfg.Block); err != nil {
			logger.Debug("on-chain virtual price failed", zap.Error(err))
		} else {
			out.ChainVirtualPrice = fixedpoint.Format(vp)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// poolRef describes the on-chain pool named by the settings.
func poolRef(s config.PoolSettings, nCoins int, index string) (curve.PoolRef, error) {
	if !common.IsHexAddress(s.Address) {
		return curve.PoolRef{}, fmt.Errorf("pool-address: invalid address %q", s.Address)
	}
	if !common.IsHexAddress(s.LPToken) {
		return curve.PoolRef{}, fmt.Errorf("pool-lp-token: invalid address %q", s.LPToken)
	}
	ref := curve.PoolRef{
		Name:    s.Name,
		Address: common.HexToAddress(s.Address),
		NCoins:  nCoins,
		Index:   curve.IndexType(index),
		LPToken: common.HexToAddress(s.LPToken),
	}
	if _, err := curve.PoolABI(ref.NCoins, ref.Index); err != nil {
		return curve.PoolRef{}, err
	}
	return ref, nil
}
