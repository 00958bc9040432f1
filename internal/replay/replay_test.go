package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableswap/internal/curve"
	"stableswap/internal/model"
	"stableswap/internal/pool"
	"stableswap/internal/sim"
	"stableswap/internal/storage"
)

var (
	poolAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lpAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice    = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob      = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

// recorder collects the events a reference pool commits.
type recorder struct {
	events []model.PoolEvent
}

func (r *recorder) Commit(_ context.Context, _ model.PoolState, events []model.PoolEvent) error {
	r.events = append(r.events, events...)
	return nil
}

// history is a reference pool played forward block by block, standing in for a chain.
type history struct {
	states map[uint64]model.PoolState
	events []model.TypedEventRecord
	calls  int
}

func (h *history) FetchPoolState(_ context.Context, ref curve.PoolRef, block uint64) (model.PoolState, error) {
	h.calls++
	if ref.Address != poolAddr {
		return model.PoolState{}, fmt.Errorf("unknown pool %s", ref.Address.Hex())
	}
	st, ok := h.states[block]
	if !ok {
		return model.PoolState{}, fmt.Errorf("no state at block %d", block)
	}
	return st, nil
}

func e18(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1e18))
}

func buildHistory(t *testing.T) *history {
	t.Helper()
	rec := &recorder{}
	env, err := sim.NewEnv(pool.Config{
		Name:     "ref",
		Address:  poolAddr,
		LPToken:  lpAddr,
		Coins:    []pool.Coin{{Address: common.HexToAddress("0xa0"), Decimals: 18}, {Address: common.HexToAddress("0xb0"), Decimals: 6}},
		A:        100,
		Fee:      4_000_000,
		AdminFee: 5_000_000_000,
	}, sim.Options{Store: rec})
	require.NoError(t, err)
	ctx := context.Background()
	p := env.Pool
	zero := []*uint256.Int{new(uint256.Int), new(uint256.Int)}

	blocks := []struct {
		number uint64
		ops    []func() error
	}{
		{10, []func() error{
			func() error {
				require.NoError(t, env.FundAll(alice, []*uint256.Int{e18(1000), uint256.NewInt(300_000_000)}))
				_, err := p.AddLiquidity(ctx, alice, []*uint256.Int{e18(1000), uint256.NewInt(300_000_000)}, nil)
				return err
			},
		}},
		{11, []func() error{
			func() error {
				require.NoError(t, env.Fund(bob, 0, e18(5)))
				_, err := p.Exchange(ctx, bob, 0, 1, e18(5), nil)
				return err
			},
			func() error {
				require.NoError(t, env.Fund(bob, 1, uint256.NewInt(2_000_000)))
				_, err := p.Exchange(ctx, bob, 1, 0, uint256.NewInt(2_000_000), nil)
				return err
			},
		}},
		{12, []func() error{
			func() error {
				_, err := p.RemoveLiquidity(ctx, alice, e18(100), zero)
				return err
			},
			func() error {
				_, err := p.RemoveLiquidityOneCoin(ctx, alice, e18(10), 1, nil)
				return err
			},
			func() error {
				_, err := p.RemoveLiquidityImbalance(ctx, alice, []*uint256.Int{e18(1), new(uint256.Int)}, nil)
				return err
			},
		}},
		{13, []func() error{
			func() error {
				require.NoError(t, env.Fund(bob, 0, e18(1)))
				_, err := p.Exchange(ctx, bob, 0, 1, e18(1), nil)
				return err
			},
		}},
	}

	h := &history{states: make(map[uint64]model.PoolState)}
	for _, b := range blocks {
		h.states[b.number-1] = p.Snapshot()
		for logIndex, op := range b.ops {
			before := len(rec.events)
			require.NoError(t, op())
			env.Bank.Finalise()
			require.Len(t, rec.events, before+1)
			h.events = append(h.events, toRecord(t, rec.events[before], b.number, uint64(logIndex)))
		}
	}
	return h
}

func toRecord(t *testing.T, ev model.PoolEvent, block, logIndex uint64) model.TypedEventRecord {
	t.Helper()
	data := ev.Data
	if one, ok := data.(model.RemoveLiquidityOneData); ok {
		one.CoinIndex = -1
		data = one
	}
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return model.TypedEventRecord{
		ChainID:     1,
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0x%02x%02x", block, logIndex),
		LogIndex:    logIndex,
		Address:     poolAddr.Hex(),
		EventName:   ev.EventName,
		Decoded:     raw,
	}
}

func newReplayer(t *testing.T, h *history, cursor storage.CursorStore) (*Replayer, *storage.JsonlSink) {
	t.Helper()
	sink := storage.NewJsonlSink(filepath.Join(t.TempDir(), "replay.jsonl"))
	cfg := Config{
		Pool:      curve.PoolRef{Name: "ref", Address: poolAddr, NCoins: 2, Index: curve.IndexUint256, LPToken: lpAddr},
		ChainID:   1,
		BatchSize: 2,
	}
	return NewReplayer(cfg, h, sink, cursor, nil), sink
}

func readResults(t *testing.T, sink *storage.JsonlSink) []model.ReplayResult {
	t.Helper()
	var out []model.ReplayResult
	require.NoError(t, storage.ReadJSONL(sink.Path(), func(line []byte) error {
		var r model.ReplayResult
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}))
	return out
}

func TestReplayMatchesReferencePool(t *testing.T) {
	h := buildHistory(t)
	r, sink := newReplayer(t, h, nil)

	summary, err := r.Run(context.Background(), h.events)
	require.NoError(t, err)
	assert.Equal(t, len(h.events), summary.Total)
	assert.Equal(t, summary.Total, summary.Matched)
	assert.Equal(t, 1, summary.Reseeds)
	assert.Equal(t, uint64(13), summary.LastBlock)
	assert.Equal(t, 1, h.calls)

	results := readResults(t, sink)
	require.Len(t, results, len(h.events))
	for _, res := range results {
		assert.Equal(t, model.ReplayMatch, res.Status, "%s at %d: %s", res.EventName, res.BlockNumber, res.Error)
		assert.Equal(t, "0", res.Delta)
	}
}

func TestReplayReseedsAfterMismatch(t *testing.T) {
	h := buildHistory(t)
	var tampered model.TokenExchangeData
	require.NoError(t, json.Unmarshal(h.events[1].Decoded, &tampered))
	tampered.TokensBought = "1"
	raw, err := json.Marshal(tampered)
	require.NoError(t, err)
	h.events[1].Decoded = raw

	r, sink := newReplayer(t, h, nil)
	summary, err := r.Run(context.Background(), h.events)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Mismatched)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, len(h.events)-2, summary.Matched)
	assert.Equal(t, 2, summary.Reseeds)

	results := readResults(t, sink)
	assert.Equal(t, model.ReplayMismatch, results[1].Status)
	assert.Equal(t, "1", results[1].Expected)
	assert.Equal(t, model.ReplaySkipped, results[2].Status)
	assert.Equal(t, uint64(12), results[3].BlockNumber)
	assert.Equal(t, model.ReplayMatch, results[3].Status)
}

func TestReplayResumesFromCursor(t *testing.T) {
	h := buildHistory(t)
	cursor := &storage.FileCursor{Path: filepath.Join(t.TempDir(), "cursor.json")}
	r, _ := newReplayer(t, h, cursor)

	// Only the first two blocks are available at first.
	summary, err := r.Run(context.Background(), h.events[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Matched)
	last, ok, err := cursor.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(11), last)

	r, sink := newReplayer(t, h, cursor)
	summary, err = r.Run(context.Background(), h.events)
	require.NoError(t, err)
	assert.Equal(t, len(h.events)-3, summary.Total)
	assert.Equal(t, summary.Total, summary.Matched)
	assert.Equal(t, uint64(12), readResults(t, sink)[0].BlockNumber)
}

func TestReplayIgnoresOtherPools(t *testing.T) {
	h := buildHistory(t)
	events := append([]model.TypedEventRecord(nil), h.events...)
	for i := range events {
		events[i].Address = "0x9999999999999999999999999999999999999999"
	}
	r, _ := newReplayer(t, h, nil)
	summary, err := r.Run(context.Background(), events)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, h.calls)
}

func TestReplayFailsWithoutState(t *testing.T) {
	h := buildHistory(t)
	delete(h.states, 9)
	r, _ := newReplayer(t, h, nil)
	_, err := r.Run(context.Background(), h.events)
	require.ErrorContains(t, err, "no state at block 9")
}

func TestPendingEventsFiltersAndOrders(t *testing.T) {
	r := NewReplayer(Config{Pool: curve.PoolRef{Address: poolAddr}}, &history{}, storage.NewJsonlSink(filepath.Join(t.TempDir(), "r.jsonl")), nil, nil)
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	events := []model.TypedEventRecord{
		{BlockNumber: 12, LogIndex: 1, Address: poolAddr.Hex(), TxHash: "0xc"},
		{BlockNumber: 11, LogIndex: 5, Address: poolAddr.Hex(), TxHash: "0xb"},
		{BlockNumber: 11, LogIndex: 2, Address: other.Hex(), TxHash: "0xother"},
		{BlockNumber: 10, LogIndex: 0, Address: poolAddr.Hex(), TxHash: "0xa"},
		{BlockNumber: 11, LogIndex: 0, Address: poolAddr.Hex(), TxHash: "0xb0"},
	}

	var got []string
	for _, ev := range r.pendingEvents(events, 10) {
		got = append(got, ev.TxHash)
	}
	assert.Equal(t, []string{"0xb0", "0xb", "0xc"}, got)
	assert.Len(t, r.pendingEvents(events, 0), 4)
}
