package curve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
)

// PoolRef identifies a deployed pool and how to call it.
type PoolRef struct {
	Name    string
	Address common.Address
	NCoins  int
	Index   IndexType
	LPToken common.Address
}

// Reader queries pools through eth_call.
type Reader struct {
	caller Caller
	tokens *TokenCache
	logger *zap.Logger
}

func NewReader(caller Caller, tokens *TokenCache, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = NewTokenCache(0)
	}
	return &Reader{caller: caller, tokens: tokens, logger: logger}
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

func (r *Reader) poolABI(ref PoolRef) (abi.ABI, error) {
	if r.caller == nil {
		return abi.ABI{}, fmt.Errorf("chain client is nil")
	}
	return PoolABI(ref.NCoins, ref.Index)
}

// FetchPoolState reads parameters, coins, balances, admin balances and LP supply at a
// block (0 is latest). Admin balances are what the pool holds above its balances.
func (r *Reader) FetchPoolState(ctx context.Context, ref PoolRef, block uint64) (model.PoolState, error) {
	parsed, err := r.poolABI(ref)
	if err != nil {
		return model.PoolState{}, err
	}
	at := blockArg(block)
	erc20, err := erc20ABIStringInstance()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	state := model.PoolState{
		Name:    ref.Name,
		Address: ref.Address.Hex(),
		LPToken: ref.LPToken.Hex(),
	}
	for _, p := range []struct {
		method string
		dst    *uint64
	}{{"A", &state.A}, {"fee", &state.Fee}, {"admin_fee", &state.AdminFee}} {
		values, err := call(ctx, r.caller, ref.Address, parsed, p.method, at)
		if err != nil {
			return model.PoolState{}, err
		}
		if *p.dst, err = uint64From(values[0]); err != nil {
			return model.PoolState{}, fmt.Errorf("%s: %w", p.method, err)
		}
	}
	if values, err := call(ctx, r.caller, ref.Address, parsed, "owner", at); err == nil {
		if owner, err := asAddress(values[0]); err == nil {
			state.Owner = owner.Hex()
		}
	} else {
		r.logger.Debug("owner call failed", zap.String("pool", ref.Address.Hex()), zap.Error(err))
	}

	for i := 0; i < ref.NCoins; i++ {
		idx := big.NewInt(int64(i))
		values, err := call(ctx, r.caller, ref.Address, parsed, "coins", at, idx)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("coin %d: %w", i, err)
		}
		coin, err := asAddress(values[0])
		if err != nil {
			return model.PoolState{}, fmt.Errorf("coin %d: %w", i, err)
		}
		meta, err := TokenMeta(ctx, r.caller, r.tokens, coin, r.logger)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("coin %d metadata: %w", i, err)
		}
		r.logger.Debug("pool coin", zap.Int("index", i), zap.String("token", meta.Label()), zap.Uint8("decimals", meta.Decimals))

		values, err = call(ctx, r.caller, ref.Address, parsed, "balances", at, idx)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("balance %d: %w", i, err)
		}
		balance, err := asUint256(values[0])
		if err != nil {
			return model.PoolState{}, fmt.Errorf("balance %d: %w", i, err)
		}
		values, err = call(ctx, r.caller, coin, erc20, "balanceOf", at, ref.Address)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("coin %d holdings: %w", i, err)
		}
		held, err := asUint256(values[0])
		if err != nil {
			return model.PoolState{}, fmt.Errorf("coin %d holdings: %w", i, err)
		}
		admin := new(uint256.Int)
		if held.Gt(balance) {
			admin.Sub(held, balance)
		}

		state.Coins = append(state.Coins, meta.Coin())
		state.Balances = append(state.Balances, fixedpoint.Format(balance))
		state.AdminBalances = append(state.AdminBalances, fixedpoint.Format(admin))
	}

	values, err := call(ctx, r.caller, ref.LPToken, erc20, "totalSupply", at)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("lp supply: %w", err)
	}
	supply, err := asUint256(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("lp supply: %w", err)
	}
	state.TotalSupply = fixedpoint.Format(supply)
	state.Phase = "active"
	if supply.IsZero() {
		state.Phase = "empty"
	}
	return state, nil
}

// QuoteDy calls get_dy on the pool.
func (r *Reader) QuoteDy(ctx context.Context, ref PoolRef, i, j int, dx *uint256.Int, block uint64) (*uint256.Int, error) {
	parsed, err := r.poolABI(ref)
	if err != nil {
		return nil, err
	}
	values, err := call(ctx, r.caller, ref.Address, parsed, "get_dy", blockArg(block),
		big.NewInt(int64(i)), big.NewInt(int64(j)), dx.ToBig())
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}

// CalcWithdrawOneCoin calls calc_withdraw_one_coin on the pool.
func (r *Reader) CalcWithdrawOneCoin(ctx context.Context, ref PoolRef, burn *uint256.Int, i int, block uint64) (*uint256.Int, error) {
	parsed, err := r.poolABI(ref)
	if err != nil {
		return nil, err
	}
	values, err := call(ctx, r.caller, ref.Address, parsed, "calc_withdraw_one_coin", blockArg(block),
		burn.ToBig(), big.NewInt(int64(i)))
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}

// VirtualPrice calls get_virtual_price on the pool.
func (r *Reader) VirtualPrice(ctx context.Context, ref PoolRef, block uint64) (*uint256.Int, error) {
	parsed, err := r.poolABI(ref)
	if err != nil {
		return nil, err
	}
	values, err := call(ctx, r.caller, ref.Address, parsed, "get_virtual_price", blockArg(block))
	if err != nil {
		return nil, err
	}
	return asUint256(values[0])
}
