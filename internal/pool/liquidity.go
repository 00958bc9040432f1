package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
	"stableswap/internal/model"
)

type depositQuote struct {
	d0, d1, d2 *uint256.Int
	minted     *uint256.Int
	fees       []*uint256.Int
	adminFees  []*uint256.Int
	stored     []*uint256.Int
}

func (p *Pool) quoteDeposit(st *state, amounts []*uint256.Int) (*depositQuote, error) {
	if err := p.checkAmounts(amounts); err != nil {
		return nil, err
	}
	n := p.N()
	supply := st.totalSupply
	old := st.balances

	d0 := new(uint256.Int)
	if !supply.IsZero() {
		var err error
		if d0, err = p.getD(st, old); err != nil {
			return nil, err
		}
	}

	next := make([]*uint256.Int, n)
	for i := range amounts {
		if supply.IsZero() && amounts[i].IsZero() {
			return nil, fmt.Errorf("%w: coin %d", ErrInitialDeposit, i)
		}
		sum, err := fixedpoint.Add(old[i], amounts[i])
		if err != nil {
			return nil, err
		}
		next[i] = sum
	}

	d1, err := p.getD(st, next)
	if err != nil {
		return nil, err
	}
	if d1.Cmp(d0) <= 0 {
		return nil, fmt.Errorf("%w: deposit does not grow the invariant", ErrZeroAmount)
	}

	q := &depositQuote{d0: d0, d1: d1, d2: d1, fees: zeros(n), adminFees: zeros(n), stored: next}
	if supply.IsZero() {
		q.minted = d1.Clone()
		return q, nil
	}

	charged, err := p.chargeImbalance(st, old, next, d0, d1)
	if err != nil {
		return nil, err
	}
	q.fees, q.adminFees, q.stored = charged.fees, charged.adminFees, charged.stored
	if q.d2, err = p.getD(st, charged.reduced); err != nil {
		return nil, err
	}
	if q.d2.Cmp(d0) <= 0 {
		return nil, fmt.Errorf("%w: deposit is consumed by fees", ErrZeroAmount)
	}
	if q.minted, err = fixedpoint.MulDiv(supply, new(uint256.Int).Sub(q.d2, d0), d0); err != nil {
		return nil, err
	}
	return q, nil
}

// AddLiquidity deposits amounts (native units, one per coin) from provider and mints LP
// shares to it. The first deposit must include every coin and mints D; later deposits
// mint supply*(D2-D0)/D0 where D2 is computed after the imbalance fee.
func (p *Pool) AddLiquidity(ctx context.Context, provider common.Address, amounts []*uint256.Int, minMint *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.execute(ctx, "add_liquidity", func(tx *txn) error {
		st := tx.st
		q, err := p.quoteDeposit(st, amounts)
		if err != nil {
			return err
		}
		if minMint != nil && q.minted.Lt(minMint) {
			return fmt.Errorf("%w: mint %s below minimum %s", ErrSlippage, fixedpoint.Format(q.minted), fixedpoint.Format(minMint))
		}

		for i, amount := range amounts {
			if err := tx.pull(i, provider, amount); err != nil {
				return err
			}
		}
		if err := tx.mint(provider, q.minted); err != nil {
			return err
		}

		supplyBefore := st.totalSupply.Clone()
		st.balances = q.stored
		if err := addAll(st.adminBalances, q.adminFees); err != nil {
			return err
		}
		if st.totalSupply, err = fixedpoint.Add(st.totalSupply, q.minted); err != nil {
			return err
		}
		if st.d, err = p.getD(st, st.balances); err != nil {
			return err
		}
		if err := p.checkPerShare(q.d0, supplyBefore, st.d, st.totalSupply); err != nil {
			return err
		}
		if st.phase == PhaseEmpty {
			st.phase = PhaseSeeded
		} else {
			st.phase = PhaseActive
		}

		tx.emit(model.EventAddLiquidity, model.AddLiquidityData{
			Provider:     provider.Hex(),
			TokenAmounts: formatAll(amounts),
			Fees:         formatAll(q.fees),
			Invariant:    fixedpoint.Format(q.d1),
			TokenSupply:  fixedpoint.Format(st.totalSupply),
		})
		minted = q.minted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// CalcTokenAmount estimates shares minted by a deposit, or burned by a withdrawal,
// ignoring fees.
func (p *Pool) CalcTokenAmount(amounts []*uint256.Int, deposit bool) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.st
	if err := p.checkAmounts(amounts); err != nil {
		return nil, err
	}

	d0, err := p.getD(st, st.balances)
	if err != nil {
		return nil, err
	}
	next := fixedpoint.Clone(st.balances)
	for i, amount := range amounts {
		if deposit {
			next[i], err = fixedpoint.Add(next[i], amount)
		} else {
			next[i], err = fixedpoint.Sub(next[i], amount)
		}
		if err != nil {
			return nil, fmt.Errorf("coin %d: %w", i, err)
		}
	}
	d1, err := p.getD(st, next)
	if err != nil {
		return nil, err
	}
	if st.totalSupply.IsZero() {
		if !deposit {
			return nil, ErrEmptyPool
		}
		return d1, nil
	}
	return fixedpoint.MulDiv(fixedpoint.AbsDiff(d1, d0), st.totalSupply, d0)
}

// RemoveLiquidity burns shares and pays out every coin in proportion to the pool. No
// fee is charged.
func (p *Pool) RemoveLiquidity(ctx context.Context, provider common.Address, burnAmount *uint256.Int, minAmounts []*uint256.Int) ([]*uint256.Int, error) {
	var paid []*uint256.Int
	err := p.execute(ctx, "remove_liquidity", func(tx *txn) error {
		st := tx.st
		if err := p.checkAmounts(minAmounts); err != nil {
			return err
		}
		if err := p.checkBurn(st, burnAmount); err != nil {
			return err
		}

		amounts := make([]*uint256.Int, p.N())
		for i, balance := range st.balances {
			value, err := fixedpoint.MulDiv(balance, burnAmount, st.totalSupply)
			if err != nil {
				return err
			}
			if value.Lt(minAmounts[i]) {
				return fmt.Errorf("%w: coin %d pays %s below minimum %s", ErrSlippage, i, fixedpoint.Format(value), fixedpoint.Format(minAmounts[i]))
			}
			amounts[i] = value
		}

		if err := tx.burn(provider, burnAmount); err != nil {
			return err
		}
		for i, amount := range amounts {
			if err := tx.push(i, provider, amount); err != nil {
				return err
			}
			st.balances[i] = new(uint256.Int).Sub(st.balances[i], amount)
		}
		st.totalSupply = new(uint256.Int).Sub(st.totalSupply, burnAmount)
		var err error
		if st.d, err = p.getD(st, st.balances); err != nil {
			return err
		}
		afterWithdrawal(st)

		tx.emit(model.EventRemoveLiquidity, model.RemoveLiquidityData{
			Provider:     provider.Hex(),
			TokenAmounts: formatAll(amounts),
			Fees:         formatAll(zeros(p.N())),
			TokenSupply:  fixedpoint.Format(st.totalSupply),
		})
		paid = amounts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// RemoveLiquidityImbalance withdraws exact amounts, burning the shares that the drop
// in D (after the imbalance fee) is worth, plus one unit.
func (p *Pool) RemoveLiquidityImbalance(ctx context.Context, provider common.Address, amounts []*uint256.Int, maxBurn *uint256.Int) (*uint256.Int, error) {
	var burned *uint256.Int
	err := p.execute(ctx, "remove_liquidity_imbalance", func(tx *txn) error {
		st := tx.st
		if err := p.checkAmounts(amounts); err != nil {
			return err
		}
		if st.totalSupply.IsZero() {
			return ErrEmptyPool
		}

		old := st.balances
		d0, err := p.getD(st, old)
		if err != nil {
			return err
		}
		next := make([]*uint256.Int, p.N())
		for i := range old {
			if amounts[i].Cmp(old[i]) >= 0 && !amounts[i].IsZero() {
				return fmt.Errorf("%w: coin %d withdrawal %s leaves no balance", ErrInsufficientLiquidity, i, fixedpoint.Format(amounts[i]))
			}
			next[i] = new(uint256.Int).Sub(old[i], amounts[i])
		}
		d1, err := p.getD(st, next)
		if err != nil {
			return err
		}
		charged, err := p.chargeImbalance(st, old, next, d0, d1)
		if err != nil {
			return err
		}
		d2, err := p.getD(st, charged.reduced)
		if err != nil {
			return err
		}
		if d2.Cmp(d0) >= 0 {
			return fmt.Errorf("%w: nothing to withdraw", ErrZeroAmount)
		}
		burn, err := fixedpoint.MulDiv(new(uint256.Int).Sub(d0, d2), st.totalSupply, d0)
		if err != nil {
			return err
		}
		if burn.IsZero() {
			return fmt.Errorf("%w: withdrawal burns no shares", ErrZeroAmount)
		}
		burn.AddUint64(burn, 1)
		if maxBurn != nil && burn.Gt(maxBurn) {
			return fmt.Errorf("%w: burn %s above maximum %s", ErrSlippage, fixedpoint.Format(burn), fixedpoint.Format(maxBurn))
		}
		if burn.Gt(st.totalSupply) {
			return fmt.Errorf("%w: burn %s", ErrInsufficientShares, fixedpoint.Format(burn))
		}

		if err := tx.burn(provider, burn); err != nil {
			return err
		}
		for i, amount := range amounts {
			if err := tx.push(i, provider, amount); err != nil {
				return err
			}
		}

		supplyBefore := st.totalSupply.Clone()
		st.balances = charged.stored
		if err := addAll(st.adminBalances, charged.adminFees); err != nil {
			return err
		}
		st.totalSupply = new(uint256.Int).Sub(st.totalSupply, burn)
		if st.d, err = p.getD(st, st.balances); err != nil {
			return err
		}
		if err := p.checkPerShare(d0, supplyBefore, st.d, st.totalSupply); err != nil {
			return err
		}
		afterWithdrawal(st)

		tx.emit(model.EventRemoveLiquidityImbalance, model.RemoveLiquidityImbalanceData{
			Provider:     provider.Hex(),
			TokenAmounts: formatAll(amounts),
			Fees:         formatAll(charged.fees),
			Invariant:    fixedpoint.Format(d1),
			TokenSupply:  fixedpoint.Format(st.totalSupply),
		})
		burned = burn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return burned, nil
}

// CalcWithdrawOneCoin returns the amount of coin i paid for burning burnAmount shares.
func (p *Pool) CalcWithdrawOneCoin(burnAmount *uint256.Int, i int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dy, _, err := p.quoteWithdrawOne(p.st, burnAmount, i)
	return dy, err
}

// quoteWithdrawOne returns the payout and the fee, both in native units of coin i.
func (p *Pool) quoteWithdrawOne(st *state, burnAmount *uint256.Int, i int) (*uint256.Int, *uint256.Int, error) {
	n := p.N()
	if i < 0 || i >= n {
		return nil, nil, fmt.Errorf("coin %d of %d: %w", i, n, invariant.ErrCoinIndex)
	}
	if err := p.checkBurn(st, burnAmount); err != nil {
		return nil, nil, err
	}
	decimals := p.cfg.Coins[i].Decimals

	xp, err := p.xp(st.balances)
	if err != nil {
		return nil, nil, err
	}
	d0, err := p.solver.D(xp, st.a)
	if err != nil {
		return nil, nil, err
	}
	share, err := fixedpoint.MulDiv(burnAmount, d0, st.totalSupply)
	if err != nil {
		return nil, nil, err
	}
	d1 := new(uint256.Int).Sub(d0, share)
	newY, err := p.solver.YD(i, xp, d1, st.a)
	if err != nil {
		return nil, nil, err
	}
	if newY.Gt(xp[i]) {
		return nil, nil, fmt.Errorf("%w: coin %d", ErrInsufficientLiquidity, i)
	}
	dy0, err := fixedpoint.ScaleFromInternal(new(uint256.Int).Sub(xp[i], newY), decimals)
	if err != nil {
		return nil, nil, err
	}

	rate := p.imbalanceFee(st)
	reduced := fixedpoint.Clone(xp)
	for j := 0; j < n; j++ {
		scaled, err := fixedpoint.MulDiv(xp[j], d1, d0)
		if err != nil {
			return nil, nil, err
		}
		var expected *uint256.Int
		if j == i {
			expected, err = fixedpoint.Sub(scaled, newY)
		} else {
			expected, err = fixedpoint.Sub(xp[j], scaled)
		}
		if err != nil {
			return nil, nil, err
		}
		fee, err := fixedpoint.MulDiv(rate, expected, fixedpoint.FeeDenominator)
		if err != nil {
			return nil, nil, err
		}
		if reduced[j], err = fixedpoint.Sub(reduced[j], fee); err != nil {
			return nil, nil, err
		}
	}

	y, err := p.solver.YD(i, reduced, d1, st.a)
	if err != nil {
		return nil, nil, err
	}
	if y.Cmp(reduced[i]) >= 0 {
		return nil, nil, fmt.Errorf("%w: withdrawal rounds to zero", ErrInsufficientLiquidity)
	}
	// One unit less to absorb rounding in the pool's favour.
	dyXP := new(uint256.Int).Sub(reduced[i], y)
	dyXP.SubUint64(dyXP, 1)
	dy, err := fixedpoint.ScaleFromInternal(dyXP, decimals)
	if err != nil {
		return nil, nil, err
	}
	fee, err := fixedpoint.Sub(dy0, dy)
	if err != nil {
		return nil, nil, err
	}
	return dy, fee, nil
}

// RemoveLiquidityOneCoin burns shares and pays out a single coin.
func (p *Pool) RemoveLiquidityOneCoin(ctx context.Context, provider common.Address, burnAmount *uint256.Int, i int, minAmount *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	err := p.execute(ctx, "remove_liquidity_one_coin", func(tx *txn) error {
		st := tx.st
		dy, dyFee, err := p.quoteWithdrawOne(st, burnAmount, i)
		if err != nil {
			return err
		}
		if minAmount != nil && dy.Lt(minAmount) {
			return fmt.Errorf("%w: payout %s below minimum %s", ErrSlippage, fixedpoint.Format(dy), fixedpoint.Format(minAmount))
		}
		adminFee, err := fixedpoint.MulDiv(dyFee, uint256.NewInt(st.adminFee), fixedpoint.FeeDenominator)
		if err != nil {
			return err
		}
		out, err := fixedpoint.Add(dy, adminFee)
		if err != nil {
			return err
		}
		if out.Cmp(st.balances[i]) >= 0 {
			return fmt.Errorf("%w: coin %d would be drained", ErrInsufficientLiquidity, i)
		}

		if err := tx.burn(provider, burnAmount); err != nil {
			return err
		}
		if err := tx.push(i, provider, dy); err != nil {
			return err
		}

		st.balances[i] = new(uint256.Int).Sub(st.balances[i], out)
		st.adminBalances[i] = new(uint256.Int).Add(st.adminBalances[i], adminFee)
		st.totalSupply = new(uint256.Int).Sub(st.totalSupply, burnAmount)
		if st.d, err = p.getD(st, st.balances); err != nil {
			return err
		}
		afterWithdrawal(st)

		tx.emit(model.EventRemoveLiquidityOne, model.RemoveLiquidityOneData{
			Provider:    provider.Hex(),
			TokenAmount: fixedpoint.Format(burnAmount),
			CoinIndex:   i,
			CoinAmount:  fixedpoint.Format(dy),
		})
		paid = dy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (p *Pool) checkBurn(st *state, burnAmount *uint256.Int) error {
	if st.totalSupply.IsZero() {
		return ErrEmptyPool
	}
	if burnAmount == nil || burnAmount.IsZero() {
		return fmt.Errorf("%w: burn amount", ErrZeroAmount)
	}
	if burnAmount.Gt(st.totalSupply) {
		return fmt.Errorf("%w: burn %s of %s", ErrInsufficientShares, fixedpoint.Format(burnAmount), fixedpoint.Format(st.totalSupply))
	}
	return nil
}
