package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
)

// comparison is the on-chain and local value of one event's output.
type comparison struct {
	expected string
	actual   string
	delta    *uint256.Int
}

func compare(expected, actual *uint256.Int) *comparison {
	return &comparison{
		expected: fixedpoint.Format(expected),
		actual:   fixedpoint.Format(actual),
		delta:    fixedpoint.AbsDiff(expected, actual),
	}
}

// compareAll reports the largest per-coin difference.
func compareAll(expected, actual []*uint256.Int) *comparison {
	delta := new(uint256.Int)
	for i := range expected {
		if d := fixedpoint.AbsDiff(expected[i], actual[i]); d.Gt(delta) {
			delta = d
		}
	}
	return &comparison{
		expected: joinAll(expected),
		actual:   joinAll(actual),
		delta:    delta,
	}
}

func joinAll(values []*uint256.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fixedpoint.Format(v)
	}
	return strings.Join(parts, ",")
}

func actor(hex string) (common.Address, error) {
	if !common.IsHexAddress(hex) {
		return common.Address{}, fmt.Errorf("invalid actor address %q", hex)
	}
	return common.HexToAddress(hex), nil
}

func parseAll(values []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		parsed, err := fixedpoint.Parse(v)
		if err != nil {
			return nil, err
		}
		out[i] = parsed
	}
	return out, nil
}

// apply executes one payload locally. A nil comparison means the event has no local
// counterpart.
func (r *Replayer) apply(ctx context.Context, payload interface{}) (*comparison, error) {
	switch d := payload.(type) {
	case model.TokenExchangeData:
		return r.applyExchange(ctx, d)
	case model.AddLiquidityData:
		return r.applyAdd(ctx, d)
	case model.RemoveLiquidityData:
		return r.applyRemove(ctx, d)
	case model.RemoveLiquidityImbalanceData:
		return r.applyRemoveImbalance(ctx, d)
	case model.RemoveLiquidityOneData:
		return r.applyRemoveOne(ctx, d)
	default:
		return nil, nil
	}
}

func (r *Replayer) applyExchange(ctx context.Context, d model.TokenExchangeData) (*comparison, error) {
	buyer, err := actor(d.Buyer)
	if err != nil {
		return nil, err
	}
	dx, err := fixedpoint.Parse(d.TokensSold)
	if err != nil {
		return nil, err
	}
	want, err := fixedpoint.Parse(d.TokensBought)
	if err != nil {
		return nil, err
	}
	if err := r.env.Fund(buyer, d.SoldID, dx); err != nil {
		return nil, err
	}
	got, err := r.env.Pool.Exchange(ctx, buyer, d.SoldID, d.BoughtID, dx, nil)
	if err != nil {
		return nil, err
	}
	return compare(want, got), nil
}

func (r *Replayer) applyAdd(ctx context.Context, d model.AddLiquidityData) (*comparison, error) {
	provider, err := actor(d.Provider)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAll(d.TokenAmounts)
	if err != nil {
		return nil, err
	}
	want, err := fixedpoint.Parse(d.TokenSupply)
	if err != nil {
		return nil, err
	}
	if err := r.env.FundAll(provider, amounts); err != nil {
		return nil, err
	}
	giveBack, err := r.env.Lend(provider)
	if err != nil {
		return nil, err
	}
	if _, err := r.env.Pool.AddLiquidity(ctx, provider, amounts, nil); err != nil {
		return nil, err
	}
	if err := giveBack(); err != nil {
		return nil, err
	}
	return compare(want, r.env.Pool.TotalSupply()), nil
}

func (r *Replayer) applyRemove(ctx context.Context, d model.RemoveLiquidityData) (*comparison, error) {
	provider, err := actor(d.Provider)
	if err != nil {
		return nil, err
	}
	want, err := parseAll(d.TokenAmounts)
	if err != nil {
		return nil, err
	}
	after, err := fixedpoint.Parse(d.TokenSupply)
	if err != nil {
		return nil, err
	}
	burn, err := fixedpoint.Sub(r.env.Pool.TotalSupply(), after)
	if err != nil {
		return nil, fmt.Errorf("event supply %s above local supply: %w", d.TokenSupply, err)
	}
	mins := make([]*uint256.Int, len(want))
	for i := range mins {
		mins[i] = new(uint256.Int)
	}
	giveBack, err := r.env.Lend(provider)
	if err != nil {
		return nil, err
	}
	got, err := r.env.Pool.RemoveLiquidity(ctx, provider, burn, mins)
	if err != nil {
		return nil, err
	}
	if err := giveBack(); err != nil {
		return nil, err
	}
	return compareAll(want, got), nil
}

func (r *Replayer) applyRemoveImbalance(ctx context.Context, d model.RemoveLiquidityImbalanceData) (*comparison, error) {
	provider, err := actor(d.Provider)
	if err != nil {
		return nil, err
	}
	amounts, err := parseAll(d.TokenAmounts)
	if err != nil {
		return nil, err
	}
	want, err := fixedpoint.Parse(d.TokenSupply)
	if err != nil {
		return nil, err
	}
	giveBack, err := r.env.Lend(provider)
	if err != nil {
		return nil, err
	}
	if _, err := r.env.Pool.RemoveLiquidityImbalance(ctx, provider, amounts, nil); err != nil {
		return nil, err
	}
	if err := giveBack(); err != nil {
		return nil, err
	}
	return compare(want, r.env.Pool.TotalSupply()), nil
}

func (r *Replayer) applyRemoveOne(ctx context.Context, d model.RemoveLiquidityOneData) (*comparison, error) {
	provider, err := actor(d.Provider)
	if err != nil {
		return nil, err
	}
	burn, err := fixedpoint.Parse(d.TokenAmount)
	if err != nil {
		return nil, err
	}
	want, err := fixedpoint.Parse(d.CoinAmount)
	if err != nil {
		return nil, err
	}
	i := d.CoinIndex
	if i < 0 {
		if i, err = r.inferCoin(burn, want); err != nil {
			return nil, err
		}
	}
	giveBack, err := r.env.Lend(provider)
	if err != nil {
		return nil, err
	}
	got, err := r.env.Pool.RemoveLiquidityOneCoin(ctx, provider, burn, i, nil)
	if err != nil {
		return nil, err
	}
	if err := giveBack(); err != nil {
		return nil, err
	}
	return compare(want, got), nil
}

// inferCoin picks the coin whose local quote is closest to the paid amount.
func (r *Replayer) inferCoin(burn, paid *uint256.Int) (int, error) {
	best := -1
	var bestDelta *uint256.Int
	var lastErr error
	for i := 0; i < r.env.Pool.N(); i++ {
		quote, err := r.env.Pool.CalcWithdrawOneCoin(burn, i)
		if err != nil {
			lastErr = err
			continue
		}
		delta := fixedpoint.AbsDiff(quote, paid)
		if best < 0 || delta.Lt(bestDelta) {
			best, bestDelta = i, delta
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("no coin can pay out %s shares: %w", fixedpoint.Format(burn), lastErr)
	}
	return best, nil
}
