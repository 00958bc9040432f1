// Package sim runs pools over an in-memory token ledger: scripted scenarios from JSONL
// and the local side of chain replay.
package sim

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/ledger"
	"stableswap/internal/metrics"
	"stableswap/internal/model"
	"stableswap/internal/pool"
)

// Reserve holds LP shares minted for a pool loaded from a snapshot. Withdrawals in
// replay borrow from it.
var Reserve = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

// Env is a pool wired to its own ledger.
type Env struct {
	Bank   *ledger.Bank
	Pool   *pool.Pool
	Config pool.Config
}

// Options are the optional collaborators of an Env's pool.
type Options struct {
	Store   pool.Store
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewEnv deploys the pool's coins and LP token on a fresh ledger and builds an empty
// pool over them.
func NewEnv(cfg pool.Config, opts Options) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bank := ledger.NewBank()
	tokens := make([]pool.Token, len(cfg.Coins))
	for i, coin := range cfg.Coins {
		if err := bank.Deploy(ledger.TokenInfo{Address: coin.Address, Symbol: fmt.Sprintf("COIN%d", i), Decimals: coin.Decimals}); err != nil {
			return nil, err
		}
		tokens[i] = bank.Handle(coin.Address, cfg.Address)
	}
	if err := bank.Deploy(ledger.TokenInfo{Address: cfg.LPToken, Symbol: "LP", Decimals: fixedpoint.InternalDecimals, Minter: cfg.Address}); err != nil {
		return nil, err
	}
	bank.Finalise()

	p, err := pool.New(cfg, pool.Deps{
		Tokens:  tokens,
		LPToken: bank.Handle(cfg.LPToken, cfg.Address),
		Journal: bank,
		Store:   opts.Store,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Env{Bank: bank, Pool: p, Config: cfg}, nil
}

// ConfigFromState derives a pool configuration from a snapshot.
func ConfigFromState(ps model.PoolState) (pool.Config, error) {
	for _, addr := range []string{ps.Address, ps.LPToken} {
		if !common.IsHexAddress(addr) {
			return pool.Config{}, fmt.Errorf("%w: address %q", pool.ErrInvalidConfig, addr)
		}
	}
	cfg := pool.Config{
		Name:     ps.Name,
		Address:  common.HexToAddress(ps.Address),
		LPToken:  common.HexToAddress(ps.LPToken),
		A:        ps.A,
		Fee:      ps.Fee,
		AdminFee: ps.AdminFee,
	}
	if common.IsHexAddress(ps.Owner) {
		cfg.Owner = common.HexToAddress(ps.Owner)
	}
	for i, coin := range ps.Coins {
		if !common.IsHexAddress(coin.Address) {
			return pool.Config{}, fmt.Errorf("%w: coin %d address %q", pool.ErrInvalidConfig, i, coin.Address)
		}
		cfg.Coins = append(cfg.Coins, pool.Coin{Address: common.HexToAddress(coin.Address), Decimals: coin.Decimals})
	}
	return cfg, cfg.Validate()
}

// Load restores a snapshot into the pool and credits the ledger to match: the pool
// holds its balances plus admin balances and Reserve holds the whole LP supply.
func (e *Env) Load(ps model.PoolState) error {
	if err := e.Pool.Restore(ps); err != nil {
		return err
	}
	balances := e.Pool.Balances()
	admin := e.Pool.AdminBalances()
	for i, coin := range e.Config.Coins {
		held, err := e.Bank.BalanceOf(coin.Address, e.Config.Address)
		if err != nil {
			return err
		}
		want, err := fixedpoint.Add(balances[i], admin[i])
		if err != nil {
			return err
		}
		if err := e.settle(coin.Address, e.Config.Address, held, want); err != nil {
			return fmt.Errorf("coin %d: %w", i, err)
		}
	}
	supply, err := e.Bank.TotalSupply(e.Config.LPToken)
	if err != nil {
		return err
	}
	if !supply.IsZero() {
		return fmt.Errorf("lp token already has supply %s", fixedpoint.Format(supply))
	}
	if err := e.Bank.MintForTesting(e.Config.LPToken, Reserve, e.Pool.TotalSupply()); err != nil {
		return err
	}
	e.Bank.Finalise()
	return nil
}

// settle brings account's balance from held up to want. Balances never shrink here.
func (e *Env) settle(token, account common.Address, held, want *uint256.Int) error {
	if held.Gt(want) {
		return fmt.Errorf("ledger holds %s, snapshot wants %s", fixedpoint.Format(held), fixedpoint.Format(want))
	}
	return e.Bank.MintForTesting(token, account, new(uint256.Int).Sub(want, held))
}

// Fund mints amount of coin i to account and approves the pool to pull it.
func (e *Env) Fund(account common.Address, i int, amount *uint256.Int) error {
	if i < 0 || i >= len(e.Config.Coins) {
		return fmt.Errorf("coin %d out of range", i)
	}
	coin := e.Config.Coins[i].Address
	if err := e.Bank.MintForTesting(coin, account, amount); err != nil {
		return err
	}
	if err := e.Bank.Approve(coin, account, e.Config.Address, ledger.MaxAllowance()); err != nil {
		return err
	}
	e.Bank.Finalise()
	return nil
}

// FundAll funds one amount per coin.
func (e *Env) FundAll(account common.Address, amounts []*uint256.Int) error {
	for i, amount := range amounts {
		if amount == nil || amount.IsZero() {
			continue
		}
		if err := e.Fund(account, i, amount); err != nil {
			return err
		}
	}
	return nil
}

// Lend moves every Reserve share to account and returns a function that moves what is
// left back.
func (e *Env) Lend(account common.Address) (func() error, error) {
	held, err := e.Bank.BalanceOf(e.Config.LPToken, Reserve)
	if err != nil {
		return nil, err
	}
	if err := e.Bank.Transfer(e.Config.LPToken, Reserve, account, held); err != nil {
		return nil, err
	}
	e.Bank.Finalise()
	return func() error {
		left, err := e.Bank.BalanceOf(e.Config.LPToken, account)
		if err != nil {
			return err
		}
		if left.IsZero() {
			return nil
		}
		if err := e.Bank.Transfer(e.Config.LPToken, account, Reserve, left); err != nil {
			return err
		}
		e.Bank.Finalise()
		return nil
	}, nil
}
