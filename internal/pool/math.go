package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
)

func (p *Pool) xp(balances []*uint256.Int) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(balances))
	for i, b := range balances {
		scaled, err := fixedpoint.ScaleToInternal(b, p.cfg.Coins[i].Decimals)
		if err != nil {
			return nil, fmt.Errorf("scale coin %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func (p *Pool) getD(st *state, balances []*uint256.Int) (*uint256.Int, error) {
	xp, err := p.xp(balances)
	if err != nil {
		return nil, err
	}
	return p.solver.D(xp, st.a)
}

// imbalanceFee is the fee charged on the part of a deposit or withdrawal that deviates
// from the pool's proportions: fee * n / (4 * (n - 1)).
func (p *Pool) imbalanceFee(st *state) *uint256.Int {
	n := uint64(p.N())
	return new(uint256.Int).Div(
		new(uint256.Int).Mul(uint256.NewInt(st.fee), uint256.NewInt(n)),
		uint256.NewInt(4*(n-1)),
	)
}

// imbalance describes balances after a non-proportional deposit or withdrawal.
type imbalance struct {
	fees      []*uint256.Int // full imbalance fee per coin
	adminFees []*uint256.Int // admin share of fees
	stored    []*uint256.Int // balances kept for LPs: new - adminFees
	reduced   []*uint256.Int // balances the share price is computed on: new - fees
}

// chargeImbalance charges each coin on |D1*old/D0 - new|.
func (p *Pool) chargeImbalance(st *state, old, next []*uint256.Int, d0, d1 *uint256.Int) (*imbalance, error) {
	n := p.N()
	rate := p.imbalanceFee(st)
	adminRate := uint256.NewInt(st.adminFee)
	out := &imbalance{
		fees:      make([]*uint256.Int, n),
		adminFees: make([]*uint256.Int, n),
		stored:    make([]*uint256.Int, n),
		reduced:   make([]*uint256.Int, n),
	}
	for i := 0; i < n; i++ {
		ideal, err := fixedpoint.MulDiv(d1, old[i], d0)
		if err != nil {
			return nil, err
		}
		diff := fixedpoint.AbsDiff(ideal, next[i])
		if out.fees[i], err = fixedpoint.MulDiv(rate, diff, fixedpoint.FeeDenominator); err != nil {
			return nil, err
		}
		if out.adminFees[i], err = fixedpoint.MulDiv(out.fees[i], adminRate, fixedpoint.FeeDenominator); err != nil {
			return nil, err
		}
		if out.stored[i], err = fixedpoint.Sub(next[i], out.adminFees[i]); err != nil {
			return nil, fmt.Errorf("coin %d admin fee: %w", i, err)
		}
		if out.reduced[i], err = fixedpoint.Sub(next[i], out.fees[i]); err != nil {
			return nil, fmt.Errorf("coin %d imbalance fee: %w", i, err)
		}
	}
	return out, nil
}

func (p *Pool) checkIndices(i, j int) error {
	n := p.N()
	if i == j {
		return invariant.ErrSameCoin
	}
	if i < 0 || j < 0 || i >= n || j >= n {
		return fmt.Errorf("i=%d j=%d n=%d: %w", i, j, n, invariant.ErrCoinIndex)
	}
	return nil
}

func (p *Pool) checkAmounts(amounts []*uint256.Int) error {
	if len(amounts) != p.N() {
		return fmt.Errorf("%w: got %d, want %d", ErrAmountsLength, len(amounts), p.N())
	}
	for i, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: amount %d is nil", ErrAmountsLength, i)
		}
	}
	return nil
}

func addAll(dst, src []*uint256.Int) error {
	for i := range dst {
		sum, err := fixedpoint.Add(dst[i], src[i])
		if err != nil {
			return err
		}
		dst[i] = sum
	}
	return nil
}

// afterWithdrawal sets the phase once shares were burned.
func afterWithdrawal(st *state) {
	if st.totalSupply.IsZero() {
		st.phase = PhaseEmpty
		return
	}
	st.phase = PhaseActive
}
