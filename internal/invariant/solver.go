// Package invariant solves the StableSwap invariant over 18-decimal balances.
//
// The pool curve is
//
//	A·n·Σx + D = A·n·D + D^(n+1) / (n^n·Πx)
//
// where A·n (Ann) is the amplification as stored by the pool contracts; the A of the
// whitepaper is Ann / n^(n-1).
package invariant

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"stableswap/internal/fixedpoint"
)

const (
	DefaultMaxIterations = 255
	MaxCoins             = 8
)

var (
	ErrConvergence = errors.New("solver did not converge")
	ErrCoinCount   = errors.New("invalid coin count")
	ErrCoinIndex   = errors.New("coin index out of range")
	ErrSameCoin    = errors.New("same coin")
	ErrZeroAmp     = errors.New("amplification must be positive")
)

// Solver holds the iteration policy shared by D and Y.
type Solver struct {
	MaxIterations int
	Tolerance     *uint256.Int
}

// DefaultSolver stops after 255 rounds or once successive iterates differ by at most 1.
func DefaultSolver() Solver {
	return Solver{MaxIterations: DefaultMaxIterations, Tolerance: uint256.NewInt(1)}
}

func (s Solver) converged(a, b *uint256.Int) bool {
	tol := s.Tolerance
	if tol == nil {
		tol = new(uint256.Int)
	}
	return fixedpoint.AbsDiff(a, b).Cmp(tol) <= 0
}

func (s Solver) iterations() int {
	if s.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return s.MaxIterations
}

func ann(amp uint64, n int) (*uint256.Int, error) {
	if amp == 0 {
		return nil, ErrZeroAmp
	}
	return fixedpoint.Mul(uint256.NewInt(amp), uint256.NewInt(uint64(n)))
}

// D returns the invariant for the scaled balances xp.
func (s Solver) D(xp []*uint256.Int, amp uint64) (*uint256.Int, error) {
	n := len(xp)
	if n < 2 || n > MaxCoins {
		return nil, fmt.Errorf("%d coins: %w", n, ErrCoinCount)
	}
	sum, err := fixedpoint.Sum(xp)
	if err != nil {
		return nil, err
	}
	if sum.IsZero() {
		return new(uint256.Int), nil
	}
	a, err := ann(amp, n)
	if err != nil {
		return nil, err
	}
	nCoins := uint256.NewInt(uint64(n))
	nPlusOne := uint256.NewInt(uint64(n + 1))
	annMinusOne := new(uint256.Int).Sub(a, uint256.NewInt(1))
	annS, err := fixedpoint.Mul(a, sum)
	if err != nil {
		return nil, err
	}

	d := sum.Clone()
	for it := 0; it < s.iterations(); it++ {
		dP := d.Clone()
		for _, x := range xp {
			den, err := fixedpoint.Mul(x, nCoins)
			if err != nil {
				return nil, err
			}
			if den.IsZero() {
				return nil, fmt.Errorf("zero balance: %w", fixedpoint.ErrDivisionByZero)
			}
			if dP, err = fixedpoint.MulDiv(dP, d, den); err != nil {
				return nil, err
			}
		}

		prev := d
		dPn, err := fixedpoint.Mul(dP, nCoins)
		if err != nil {
			return nil, err
		}
		num, err := fixedpoint.Add(annS, dPn)
		if err != nil {
			return nil, err
		}
		left, err := fixedpoint.Mul(annMinusOne, d)
		if err != nil {
			return nil, err
		}
		right, err := fixedpoint.Mul(nPlusOne, dP)
		if err != nil {
			return nil, err
		}
		den, err := fixedpoint.Add(left, right)
		if err != nil {
			return nil, err
		}
		if d, err = fixedpoint.MulDiv(num, d, den); err != nil {
			return nil, err
		}
		if s.converged(d, prev) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("D after %d iterations: %w", s.iterations(), ErrConvergence)
}

// Y returns the balance of coin j that keeps D of xp unchanged once coin i is set to x.
func (s Solver) Y(i, j int, x *uint256.Int, xp []*uint256.Int, amp uint64) (*uint256.Int, error) {
	n := len(xp)
	if i == j {
		return nil, ErrSameCoin
	}
	if i < 0 || j < 0 || i >= n || j >= n {
		return nil, fmt.Errorf("i=%d j=%d n=%d: %w", i, j, n, ErrCoinIndex)
	}
	d, err := s.D(xp, amp)
	if err != nil {
		return nil, err
	}
	adjusted := fixedpoint.Clone(xp)
	adjusted[i] = x.Clone()
	return s.solveY(j, adjusted, d, amp)
}

// YD returns the balance of coin i that yields invariant d with the other balances of
// xp held fixed.
func (s Solver) YD(i int, xp []*uint256.Int, d *uint256.Int, amp uint64) (*uint256.Int, error) {
	n := len(xp)
	if i < 0 || i >= n {
		return nil, fmt.Errorf("i=%d n=%d: %w", i, n, ErrCoinIndex)
	}
	return s.solveY(i, xp, d, amp)
}

func (s Solver) solveY(j int, xp []*uint256.Int, d *uint256.Int, amp uint64) (*uint256.Int, error) {
	n := len(xp)
	if n < 2 || n > MaxCoins {
		return nil, fmt.Errorf("%d coins: %w", n, ErrCoinCount)
	}
	a, err := ann(amp, n)
	if err != nil {
		return nil, err
	}
	nCoins := uint256.NewInt(uint64(n))

	c := d.Clone()
	sum := new(uint256.Int)
	for k, x := range xp {
		if k == j {
			continue
		}
		if sum, err = fixedpoint.Add(sum, x); err != nil {
			return nil, err
		}
		den, err := fixedpoint.Mul(x, nCoins)
		if err != nil {
			return nil, err
		}
		if den.IsZero() {
			return nil, fmt.Errorf("zero balance: %w", fixedpoint.ErrDivisionByZero)
		}
		if c, err = fixedpoint.MulDiv(c, d, den); err != nil {
			return nil, err
		}
	}
	annN, err := fixedpoint.Mul(a, nCoins)
	if err != nil {
		return nil, err
	}
	if c, err = fixedpoint.MulDiv(c, d, annN); err != nil {
		return nil, err
	}
	dOverAnn, err := fixedpoint.Div(d, a)
	if err != nil {
		return nil, err
	}
	b, err := fixedpoint.Add(sum, dOverAnn)
	if err != nil {
		return nil, err
	}

	y := d.Clone()
	for it := 0; it < s.iterations(); it++ {
		prev := y
		ySq, err := fixedpoint.Mul(y, y)
		if err != nil {
			return nil, err
		}
		num, err := fixedpoint.Add(ySq, c)
		if err != nil {
			return nil, err
		}
		twoY, err := fixedpoint.Add(y, y)
		if err != nil {
			return nil, err
		}
		den, err := fixedpoint.Add(twoY, b)
		if err != nil {
			return nil, err
		}
		if den, err = fixedpoint.Sub(den, d); err != nil {
			return nil, err
		}
		if y, err = fixedpoint.Div(num, den); err != nil {
			return nil, err
		}
		if s.converged(y, prev) {
			return y, nil
		}
	}
	return nil, fmt.Errorf("y after %d iterations: %w", s.iterations(), ErrConvergence)
}
