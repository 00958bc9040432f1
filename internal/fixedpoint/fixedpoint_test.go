package fixedpoint

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestScaleToInternal(t *testing.T) {
	got, err := ScaleToInternal(uint256.NewInt(1_500_000), 6)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", Format(got))

	got, err = ScaleToInternal(uint256.NewInt(42), 18)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.Uint64())
}

func TestScaleToInternalOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := ScaleToInternal(max, 6)
	require.True(t, errors.Is(err, ErrOverflow))
}

func TestScaleFromInternalRoundsDown(t *testing.T) {
	got, err := ScaleFromInternal(uint256.NewInt(1_999_999_999_999), 6)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Uint64())
}

func TestScaleRejectsLargeDecimals(t *testing.T) {
	_, err := ScaleToInternal(uint256.NewInt(1), 40)
	require.ErrorIs(t, err, ErrInvalidDecimals)
}

func TestMulDivFullPrecision(t *testing.T) {
	// (2^255 * 4) / 8 overflows a 256-bit product but not the quotient.
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	got, err := MulDiv(a, uint256.NewInt(4), uint256.NewInt(8))
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Lsh(uint256.NewInt(1), 254), got)
}

func TestMulDivFloor(t *testing.T) {
	got, err := MulDiv(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, uint64(33), got.Uint64())
}

func TestMulDivErrors(t *testing.T) {
	_, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	require.ErrorIs(t, err, ErrDivisionByZero)

	max := new(uint256.Int).SetAllOne()
	_, err = MulDiv(max, max, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestSubUnderflow(t *testing.T) {
	_, err := Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPrecisions(t *testing.T) {
	got, err := Precisions([]uint8{18, 6, 8})
	require.NoError(t, err)
	require.Equal(t, uint64(1), got[0].Uint64())
	require.Equal(t, uint64(1_000_000_000_000), got[1].Uint64())
	require.Equal(t, uint64(10_000_000_000), got[2].Uint64())

	_, err = Precisions([]uint8{24})
	require.ErrorIs(t, err, ErrInvalidDecimals)
}

func TestParseFormat(t *testing.T) {
	v, err := Parse("300000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "300000000000000000000", Format(v))

	_, err = Parse("-1")
	require.Error(t, err)
}
