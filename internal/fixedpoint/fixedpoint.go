package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// InternalDecimals is the precision every asset is scaled to before invariant math.
const InternalDecimals = 18

// maxDecimals bounds asset decimals so the scaling factor stays well inside 256 bits.
const maxDecimals = 36

var (
	ErrOverflow        = errors.New("arithmetic overflow")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrInvalidDecimals = errors.New("invalid decimals")
)

var (
	// Precision is 10^18, the internal fixed-point unit.
	Precision = uint256.NewInt(1_000_000_000_000_000_000)
	// FeeDenominator is the unit fee rates are expressed in (parts per 10^10).
	FeeDenominator = uint256.NewInt(10_000_000_000)
)

var pow10 [maxDecimals + 1]*uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i <= maxDecimals; i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Pow10 returns a fresh copy of 10^exp for exp in [0, 36].
func Pow10(exp uint8) (*uint256.Int, error) {
	if int(exp) > maxDecimals {
		return nil, fmt.Errorf("10^%d: %w", exp, ErrInvalidDecimals)
	}
	return pow10[exp].Clone(), nil
}

// ScaleToInternal maps a native token amount to 18-decimal fixed point.
func ScaleToInternal(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if int(decimals) > maxDecimals {
		return nil, fmt.Errorf("decimals %d: %w", decimals, ErrInvalidDecimals)
	}
	if decimals <= InternalDecimals {
		return Mul(amount, pow10[InternalDecimals-decimals])
	}
	return Div(amount, pow10[decimals-InternalDecimals])
}

// ScaleFromInternal maps an 18-decimal amount back to native units, rounding down.
func ScaleFromInternal(amount *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if int(decimals) > maxDecimals {
		return nil, fmt.Errorf("decimals %d: %w", decimals, ErrInvalidDecimals)
	}
	if decimals <= InternalDecimals {
		return Div(amount, pow10[InternalDecimals-decimals])
	}
	return Mul(amount, pow10[decimals-InternalDecimals])
}

// MulDiv computes floor(a*b/denominator) with a 512-bit intermediate product.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, fmt.Errorf("muldiv %s*%s/%s: %w", a.ToBig(), b.ToBig(), denominator.ToBig(), ErrOverflow)
	}
	return z, nil
}

func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add: %w", ErrOverflow)
	}
	return z, nil
}

// Sub returns a-b; an underflow is reported as ErrOverflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub %s-%s: %w", a.ToBig(), b.ToBig(), ErrOverflow)
	}
	return z, nil
}

func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul: %w", ErrOverflow)
	}
	return z, nil
}

func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) >= 0 {
		return new(uint256.Int).Sub(a, b)
	}
	return new(uint256.Int).Sub(b, a)
}

// Precisions returns the per-asset multipliers 10^(18-decimals). Assets with more than
// 18 decimals are not supported by the pool.
func Precisions(decimals []uint8) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(decimals))
	for i, d := range decimals {
		if d > InternalDecimals {
			return nil, fmt.Errorf("coin %d decimals %d: %w", i, d, ErrInvalidDecimals)
		}
		out[i] = pow10[InternalDecimals-d].Clone()
	}
	return out, nil
}

// Parse reads a base-10 integer into a 256-bit value.
func Parse(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	z, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", value, err)
	}
	return z, nil
}

// Format renders a 256-bit value in base 10.
func Format(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.ToBig().String()
}

// Clone copies a slice of values.
func Clone(values []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		out[i] = v.Clone()
	}
	return out
}

// Sum adds all values.
func Sum(values []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range values {
		var overflow bool
		total, overflow = total.AddOverflow(total, v)
		if overflow {
			return nil, fmt.Errorf("sum: %w", ErrOverflow)
		}
	}
	return total, nil
}
