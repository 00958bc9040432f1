package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
)

// WithdrawAdminFees sends every coin the pool holds above its LP balances to the
// owner. Only the owner may call it.
func (p *Pool) WithdrawAdminFees(ctx context.Context, caller common.Address) ([]*uint256.Int, error) {
	var paid []*uint256.Int
	err := p.execute(ctx, "withdraw_admin_fees", func(tx *txn) error {
		if caller != p.cfg.Owner {
			return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
		}
		st := tx.st
		amounts := make([]*uint256.Int, p.N())
		for i, token := range p.tokens {
			held, err := token.BalanceOf(p.cfg.Address)
			if err != nil {
				return fmt.Errorf("balanceOf coin %d: %w: %w", i, ErrExternalCall, err)
			}
			if held.Lt(st.balances[i]) {
				return fmt.Errorf("%w: coin %d holds %s, owes LPs %s", ErrInsufficientLiquidity, i, fixedpoint.Format(held), fixedpoint.Format(st.balances[i]))
			}
			amounts[i] = new(uint256.Int).Sub(held, st.balances[i])
			if err := tx.push(i, caller, amounts[i]); err != nil {
				return err
			}
		}
		st.adminBalances = zeros(p.N())
		if st.phase != PhaseEmpty {
			st.phase = PhaseActive
		}

		tx.emit(model.EventWithdrawAdminFees, model.WithdrawAdminFeesData{
			Recipient: caller.Hex(),
			Amounts:   formatAll(amounts),
		})
		paid = amounts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
