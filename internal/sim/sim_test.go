package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableswap/internal/fixedpoint"
	"stableswap/internal/model"
	"stableswap/internal/pool"
)

var (
	poolAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lpAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func susdConfig() pool.Config {
	return pool.Config{
		Name:     "susd",
		Address:  poolAddr,
		LPToken:  lpAddr,
		Owner:    ActorAddress("owner"),
		Coins:    []pool.Coin{{Address: common.HexToAddress("0xa0"), Decimals: 18}, {Address: common.HexToAddress("0xb0"), Decimals: 18}},
		A:        100,
		Fee:      4_000_000,
		AdminFee: 5_000_000_000,
	}
}

func newEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(susdConfig(), Options{})
	require.NoError(t, err)
	return env
}

func TestActorAddress(t *testing.T) {
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	assert.Equal(t, addr, ActorAddress(addr.Hex()))
	assert.Equal(t, ActorAddress("Alice"), ActorAddress("alice"))
	assert.NotEqual(t, ActorAddress("alice"), ActorAddress("bob"))
}

func TestScenarioSeedExchangeWithdraw(t *testing.T) {
	env := newEnv(t)
	ops := []Op{
		{Op: OpMint, Actor: "alice", I: 0, Amount: "1000000000000000000000"},
		{Op: OpMint, Actor: "alice", I: 1, Amount: "300000000000000000000"},
		{Op: OpAdd, Actor: "alice", Amounts: []string{"1000000000000000000000", "300000000000000000000"}},
		{Op: OpMint, Actor: "bob", I: 0, Amount: "1000000000000000000"},
		{Op: OpExchange, Actor: "bob", I: 0, J: 1, Amount: "1000000000000000000", Min: "2000000000000000000", ExpectError: "slippage"},
		{Op: OpExchange, Actor: "bob", I: 0, J: 1, Amount: "1000000000000000000"},
		{Op: OpWithdrawAdminFees, Actor: "bob", ExpectError: "unauthorized"},
		{Op: OpWithdrawAdminFees, Actor: "owner"},
		{Op: OpRemove, Actor: "alice", Amount: "100000000000000000000"},
		{Op: OpRemoveOne, Actor: "alice", Amount: "10000000000000000000", I: 1},
		{Op: OpRemoveImbalance, Actor: "alice", Amounts: []string{"1000000000000000000", "0"}},
	}
	results, err := NewRunner(env, nil).Run(context.Background(), ops)
	require.NoError(t, err)
	require.Len(t, results, len(ops))
	for _, res := range results {
		assert.Equal(t, StepOK, res.Status, "step %d %s: %s", res.Step, res.Op, res.Error)
	}

	// The seed mints exactly D shares.
	seed := results[2]
	assert.Equal(t, seed.Invariant, seed.TotalSupply)
	assert.Equal(t, "1000000000000000000", seed.VirtualPrice)

	dy, err := fixedpoint.Parse(results[5].Output[0])
	require.NoError(t, err)
	assert.True(t, dy.Gt(uint256.NewInt(0)))
	assert.True(t, dy.Lt(uint256.NewInt(1e18)))

	fees := results[7].Output
	require.Len(t, fees, 2)
	assert.NotEqual(t, "0", fees[1])
}

func TestScenarioRecordsFailures(t *testing.T) {
	env := newEnv(t)
	ops := []Op{
		{Op: OpExchange, Actor: "bob", I: 0, J: 1, Amount: "1"},
		{Op: OpAdd, Actor: "alice", Amounts: []string{"1"}, ExpectError: "amounts_length"},
		{Op: OpAdd, Actor: "alice", Amounts: []string{"1", "0"}, ExpectError: "slippage"},
	}
	results, err := NewRunner(env, nil).Run(context.Background(), ops)
	require.NoError(t, err)
	assert.Equal(t, StepFailed, results[0].Status)
	assert.Contains(t, results[0].Error, pool.ErrEmptyPool.Error())
	assert.Equal(t, StepOK, results[1].Status)
	assert.Equal(t, StepUnexpected, results[2].Status)

	_, err = NewRunner(env, nil).Run(context.Background(), []Op{{Op: OpAdd, ExpectError: "nope"}})
	require.Error(t, err)

	results, err = NewRunner(env, nil).Run(context.Background(), []Op{{Op: "flashloan"}})
	require.NoError(t, err)
	assert.Equal(t, StepFailed, results[0].Status)
}

func TestReadOps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	script := `{"op":"mint","actor":"alice","i":0,"amount":"5"}
{"op":"exchange","actor":"alice","i":0,"j":1,"amount":"5","min":"4"}
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))
	ops, err := ReadOps(path)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, Op{Op: OpExchange, Actor: "alice", I: 0, J: 1, Amount: "5", Min: "4"}, ops[1])
}

func TestLoadSnapshotAndLend(t *testing.T) {
	env := newEnv(t)
	cfg := susdConfig()
	state := model.PoolState{
		Name:          "susd",
		Address:       poolAddr.Hex(),
		LPToken:       lpAddr.Hex(),
		Coins:         []model.CoinMeta{{Address: cfg.Coins[0].Address.Hex(), Decimals: 18}, {Address: cfg.Coins[1].Address.Hex(), Decimals: 18}},
		A:             200,
		Fee:           4_000_000,
		AdminFee:      5_000_000_000,
		Balances:      []string{"1000000000000000000000", "300000000000000000000"},
		AdminBalances: []string{"5", "0"},
		TotalSupply:   "1290000000000000000000",
		Phase:         "active",
	}
	require.NoError(t, env.Load(state))

	held, err := env.Bank.BalanceOf(cfg.Coins[0].Address, poolAddr)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000005", fixedpoint.Format(held))
	reserve, err := env.Bank.BalanceOf(lpAddr, Reserve)
	require.NoError(t, err)
	assert.Equal(t, state.TotalSupply, fixedpoint.Format(reserve))
	assert.Equal(t, pool.PhaseActive, env.Pool.Phase())

	alice := ActorAddress("alice")
	giveBack, err := env.Lend(alice)
	require.NoError(t, err)
	_, err = env.Pool.RemoveLiquidity(context.Background(), alice, uint256.NewInt(1e18), []*uint256.Int{new(uint256.Int), new(uint256.Int)})
	require.NoError(t, err)
	require.NoError(t, giveBack())

	reserve, err = env.Bank.BalanceOf(lpAddr, Reserve)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Format(env.Pool.TotalSupply()), fixedpoint.Format(reserve))

	// A second load would double the LP supply.
	require.Error(t, env.Load(state))
}

func TestConfigFromState(t *testing.T) {
	state := model.PoolState{
		Name:     "susd",
		Address:  poolAddr.Hex(),
		LPToken:  lpAddr.Hex(),
		Owner:    "",
		Coins:    []model.CoinMeta{{Address: "0x00000000000000000000000000000000000000a0", Decimals: 18}, {Address: "0x00000000000000000000000000000000000000b0", Decimals: 6}},
		A:        100,
		Fee:      4_000_000,
		AdminFee: 0,
	}
	cfg, err := ConfigFromState(state)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), cfg.Coins[1].Decimals)
	assert.Equal(t, common.Address{}, cfg.Owner)

	state.Coins[1].Address = "nope"
	_, err = ConfigFromState(state)
	require.ErrorIs(t, err, pool.ErrInvalidConfig)

	state.Coins = state.Coins[:1]
	state.Coins[0].Address = "0x00000000000000000000000000000000000000a0"
	_, err = ConfigFromState(state)
	require.ErrorIs(t, err, pool.ErrInvalidConfig)
}
