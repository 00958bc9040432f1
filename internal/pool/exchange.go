package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
)

type swapQuote struct {
	dy       *uint256.Int // paid to the trader, native units of j
	fee      *uint256.Int // swap fee, native units of j
	adminFee *uint256.Int // admin share of the fee, native units of j
}

func (p *Pool) quoteExchange(st *state, i, j int, dx *uint256.Int) (*swapQuote, error) {
	if err := p.checkIndices(i, j); err != nil {
		return nil, err
	}
	if dx == nil || dx.IsZero() {
		return nil, fmt.Errorf("%w: dx", ErrZeroAmount)
	}
	if st.totalSupply.IsZero() {
		return nil, ErrEmptyPool
	}

	xp, err := p.xp(st.balances)
	if err != nil {
		return nil, err
	}
	dxXP, err := fixedpoint.ScaleToInternal(dx, p.cfg.Coins[i].Decimals)
	if err != nil {
		return nil, err
	}
	x, err := fixedpoint.Add(xp[i], dxXP)
	if err != nil {
		return nil, err
	}
	y, err := p.solver.Y(i, j, x, xp, st.a)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).AddUint64(y, 1).Cmp(xp[j]) >= 0 {
		return nil, fmt.Errorf("%w: coin %d cannot pay out", ErrInsufficientLiquidity, j)
	}

	dy := new(uint256.Int).Sub(xp[j], y)
	dy.SubUint64(dy, 1)
	fee, err := fixedpoint.MulDiv(dy, uint256.NewInt(st.fee), fixedpoint.FeeDenominator)
	if err != nil {
		return nil, err
	}
	adminFee, err := fixedpoint.MulDiv(fee, uint256.NewInt(st.adminFee), fixedpoint.FeeDenominator)
	if err != nil {
		return nil, err
	}

	decimals := p.cfg.Coins[j].Decimals
	q := &swapQuote{}
	if q.dy, err = fixedpoint.ScaleFromInternal(new(uint256.Int).Sub(dy, fee), decimals); err != nil {
		return nil, err
	}
	if q.fee, err = fixedpoint.ScaleFromInternal(fee, decimals); err != nil {
		return nil, err
	}
	if q.adminFee, err = fixedpoint.ScaleFromInternal(adminFee, decimals); err != nil {
		return nil, err
	}
	return q, nil
}

// GetDy returns the amount of coin j an exchange of dx of coin i would pay, net of fee.
func (p *Pool) GetDy(i, j int, dx *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, err := p.quoteExchange(p.st, i, j, dx)
	if err != nil {
		return nil, err
	}
	return q.dy, nil
}

// Exchange sells dx of coin i for coin j. The swap fee is taken from the output; its
// admin share leaves the LP balance.
func (p *Pool) Exchange(ctx context.Context, trader common.Address, i, j int, dx, minDy *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	err := p.execute(ctx, "exchange", func(tx *txn) error {
		st := tx.st
		q, err := p.quoteExchange(st, i, j, dx)
		if err != nil {
			return err
		}
		if minDy != nil && q.dy.Lt(minDy) {
			return fmt.Errorf("%w: exchange pays %s below minimum %s", ErrSlippage, fixedpoint.Format(q.dy), fixedpoint.Format(minDy))
		}
		out, err := fixedpoint.Add(q.dy, q.adminFee)
		if err != nil {
			return err
		}
		if out.Cmp(st.balances[j]) >= 0 {
			return fmt.Errorf("%w: coin %d would be drained", ErrInsufficientLiquidity, j)
		}

		d0 := st.d
		if d0.IsZero() {
			if d0, err = p.getD(st, st.balances); err != nil {
				return err
			}
		}

		if err := tx.pull(i, trader, dx); err != nil {
			return err
		}
		if err := tx.push(j, trader, q.dy); err != nil {
			return err
		}

		if st.balances[i], err = fixedpoint.Add(st.balances[i], dx); err != nil {
			return err
		}
		st.balances[j] = new(uint256.Int).Sub(st.balances[j], out)
		if st.adminBalances[j], err = fixedpoint.Add(st.adminBalances[j], q.adminFee); err != nil {
			return err
		}
		if st.d, err = p.getD(st, st.balances); err != nil {
			return err
		}
		if err := p.checkPerShare(d0, st.totalSupply, st.d, st.totalSupply); err != nil {
			return err
		}
		st.phase = PhaseActive

		tx.emit(model.EventTokenExchange, model.TokenExchangeData{
			Buyer:        trader.Hex(),
			SoldID:       i,
			TokensSold:   fixedpoint.Format(dx),
			BoughtID:     j,
			TokensBought: fixedpoint.Format(q.dy),
		})
		paid = q.dy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
