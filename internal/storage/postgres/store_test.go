package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableswap/internal/model"
)

const testPool = "0x00000000000000000000000000000000000000F0"

func poolState(seq uint64) model.PoolState {
	return model.PoolState{
		Name:          "susd",
		Address:       testPool,
		Coins:         []model.CoinMeta{{Address: "0xc0", Decimals: 18}, {Address: "0xc1", Decimals: 18}},
		A:             100,
		Fee:           4_000_000,
		Balances:      []string{"1000000000000000000000", "300000000000000000000"},
		AdminBalances: []string{"0", "0"},
		TotalSupply:   "1290000000000000000000",
		Invariant:     "1290000000000000000000",
		Phase:         "seeded",
		Sequence:      seq,
	}
}

func TestStore_CommitAndLoad(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := store.LoadPoolState(ctx, testPool)
	require.NoError(t, err)
	assert.False(t, ok)

	events := []model.PoolEvent{{
		Pool:      testPool,
		Sequence:  1,
		EventName: model.EventAddLiquidity,
		Timestamp: "2024-01-01T00:00:00Z",
		Data:      model.AddLiquidityData{Provider: "0xa11", TokenAmounts: []string{"1", "2"}},
	}}
	require.NoError(t, store.Commit(ctx, poolState(1), events))

	loaded, ok, err := store.LoadPoolState(ctx, testPool)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, poolState(1), loaded)

	got, err := store.PoolEvents(ctx, testPool, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventAddLiquidity, got[0].EventName)
	var data model.AddLiquidityData
	require.NoError(t, json.Unmarshal(got[0].Data.(json.RawMessage), &data))
	assert.Equal(t, []string{"1", "2"}, data.TokenAmounts)
}

func TestStore_CommitRejectsStaleSequence(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Commit(ctx, poolState(2), nil))
	err := store.Commit(ctx, poolState(2), []model.PoolEvent{{Pool: testPool, Sequence: 2, EventName: model.EventTokenExchange, Data: struct{}{}}})
	require.Error(t, err)

	got, err := store.PoolEvents(ctx, testPool, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ReplayResultsUpsert(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	result := model.ReplayResult{
		ChainID:     1,
		PoolAddress: testPool,
		BlockNumber: 100,
		TxHash:      "0xabc",
		LogIndex:    3,
		EventName:   model.EventTokenExchange,
		Status:      model.ReplayMismatch,
		Expected:    "10",
		Actual:      "9",
		Delta:       "1",
	}
	require.NoError(t, store.PutReplayResults(ctx, []model.ReplayResult{result}))
	result.Status = model.ReplayMatch
	result.Actual = "10"
	result.Delta = "0"
	require.NoError(t, store.PutReplayResults(ctx, []model.ReplayResult{result}))

	counts, err := store.ReplayStatusCounts(ctx, testPool)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.ReplayMatch: 1}, counts)
}

func TestStore_Cursor(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	cursor := &Cursor{Store: store, Name: "replay"}
	_, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cursor.Save(ctx, 17))
	require.NoError(t, cursor.Save(ctx, 18))
	pos, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(18), pos)

	_, _, err = store.LoadCursor(ctx, "")
	require.Error(t, err)
}
