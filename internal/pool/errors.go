package pool

import (
	"errors"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/invariant"
)

var (
	ErrSlippage              = errors.New("slippage bound violated")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientShares    = errors.New("burn amount exceeds total supply")
	ErrZeroAmount            = errors.New("zero amount")
	ErrAmountsLength         = errors.New("amounts length does not match coin count")
	ErrInitialDeposit        = errors.New("initial deposit requires all coins")
	ErrEmptyPool             = errors.New("pool has no liquidity")
	ErrUnauthorized          = errors.New("caller is not the pool owner")
	ErrInvariantViolated     = errors.New("invariant per share decreased")
	ErrInvalidConfig         = errors.New("invalid pool config")
	ErrExternalCall          = errors.New("external token call failed")
)

// IsFatal reports whether err signals corrupted state, adversarial input or an
// arithmetic fault rather than a caller bound the caller may adjust and retry.
func IsFatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrDivisionByZero),
		errors.Is(err, invariant.ErrConvergence),
		errors.Is(err, ErrInvariantViolated),
		errors.Is(err, ErrExternalCall):
		return true
	default:
		return false
	}
}
