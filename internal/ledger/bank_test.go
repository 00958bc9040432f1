package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	minter = common.HexToAddress("0x000000000000000000000000000000000000beef")
)

func newBank(t *testing.T) *Bank {
	t.Helper()
	b := NewBank()
	require.NoError(t, b.Deploy(TokenInfo{Address: tokenA, Symbol: "A", Decimals: 18, Minter: minter}))
	return b
}

func balance(t *testing.T, b *Bank, account common.Address) uint64 {
	t.Helper()
	v, err := b.BalanceOf(tokenA, account)
	require.NoError(t, err)
	return v.Uint64()
}

func TestDeployTwice(t *testing.T) {
	b := newBank(t)
	err := b.Deploy(TokenInfo{Address: tokenA})
	require.ErrorIs(t, err, ErrTokenExists)
	assert.Equal(t, []common.Address{tokenA}, b.Tokens())
}

func TestUnknownToken(t *testing.T) {
	b := NewBank()
	_, err := b.BalanceOf(tokenA, alice)
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestTransfer(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.MintForTesting(tokenA, alice, uint256.NewInt(100)))

	require.NoError(t, b.Transfer(tokenA, alice, bob, uint256.NewInt(40)))
	assert.Equal(t, uint64(60), balance(t, b, alice))
	assert.Equal(t, uint64(40), balance(t, b, bob))

	err := b.Transfer(tokenA, alice, bob, uint256.NewInt(61))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(60), balance(t, b, alice))

	supply, err := b.TotalSupply(tokenA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), supply.Uint64())
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.MintForTesting(tokenA, alice, uint256.NewInt(100)))

	err := b.TransferFrom(tokenA, bob, alice, bob, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, b.Approve(tokenA, alice, bob, uint256.NewInt(50)))
	require.NoError(t, b.TransferFrom(tokenA, bob, alice, bob, uint256.NewInt(30)))
	left, err := b.Allowance(tokenA, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), left.Uint64())
	assert.Equal(t, uint64(30), balance(t, b, bob))
}

func TestInfiniteAllowanceIsNotSpent(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.MintForTesting(tokenA, alice, uint256.NewInt(100)))
	require.NoError(t, b.Approve(tokenA, alice, bob, MaxAllowance()))
	require.NoError(t, b.TransferFrom(tokenA, bob, alice, bob, uint256.NewInt(100)))
	left, err := b.Allowance(tokenA, alice, bob)
	require.NoError(t, err)
	assert.True(t, left.Eq(MaxAllowance()))
}

func TestMintAndBurnRequireMinter(t *testing.T) {
	b := newBank(t)
	require.ErrorIs(t, b.Mint(tokenA, alice, alice, uint256.NewInt(1)), ErrNotMinter)
	require.NoError(t, b.Mint(tokenA, minter, alice, uint256.NewInt(10)))
	require.ErrorIs(t, b.Burn(tokenA, alice, alice, uint256.NewInt(1)), ErrNotMinter)
	require.ErrorIs(t, b.Burn(tokenA, minter, alice, uint256.NewInt(11)), ErrInsufficientBalance)
	require.NoError(t, b.Burn(tokenA, minter, alice, uint256.NewInt(4)))
	assert.Equal(t, uint64(6), balance(t, b, alice))

	require.NoError(t, b.SetMinter(tokenA, alice))
	require.NoError(t, b.Mint(tokenA, alice, bob, uint256.NewInt(1)))
}

func TestRevertToSnapshot(t *testing.T) {
	b := newBank(t)
	require.NoError(t, b.MintForTesting(tokenA, alice, uint256.NewInt(100)))

	outer := b.Snapshot()
	require.NoError(t, b.Transfer(tokenA, alice, bob, uint256.NewInt(10)))
	inner := b.Snapshot()
	require.NoError(t, b.Approve(tokenA, alice, bob, uint256.NewInt(5)))
	require.NoError(t, b.Mint(tokenA, minter, bob, uint256.NewInt(7)))

	b.RevertToSnapshot(inner)
	assert.Equal(t, uint64(10), balance(t, b, bob))
	allowance, err := b.Allowance(tokenA, alice, bob)
	require.NoError(t, err)
	assert.True(t, allowance.IsZero())

	b.RevertToSnapshot(outer)
	assert.Equal(t, uint64(100), balance(t, b, alice))
	assert.Equal(t, uint64(0), balance(t, b, bob))
	supply, err := b.TotalSupply(tokenA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), supply.Uint64())

	// Reverted ids are gone.
	require.NoError(t, b.Transfer(tokenA, alice, bob, uint256.NewInt(1)))
	b.RevertToSnapshot(inner)
	assert.Equal(t, uint64(1), balance(t, b, bob))
}

func TestFinaliseDropsSnapshots(t *testing.T) {
	b := newBank(t)
	id := b.Snapshot()
	require.NoError(t, b.MintForTesting(tokenA, alice, uint256.NewInt(3)))
	b.Finalise()
	b.RevertToSnapshot(id)
	assert.Equal(t, uint64(3), balance(t, b, alice))
}

func TestHandle(t *testing.T) {
	b := newBank(t)
	pool := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	require.NoError(t, b.SetMinter(tokenA, pool))
	h := b.Handle(tokenA, pool)
	assert.Equal(t, tokenA, h.Token())

	require.NoError(t, h.Mint(alice, uint256.NewInt(50)))
	require.NoError(t, b.Approve(tokenA, alice, pool, uint256.NewInt(20)))
	require.NoError(t, h.TransferFrom(alice, pool, uint256.NewInt(20)))
	require.NoError(t, h.Transfer(bob, uint256.NewInt(5)))
	require.NoError(t, h.Burn(alice, uint256.NewInt(30)))

	got, err := h.BalanceOf(pool)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got.Uint64())
	assert.Equal(t, uint64(0), balance(t, b, alice))
}
