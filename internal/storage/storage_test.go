package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stableswap/internal/model"
)

func TestJsonlSinkAppendsAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "logs.jsonl")
	sink := NewJsonlSink(path)

	require.NoError(t, sink.PutLogBatch(nil))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 1, LogIndex: 0}, {BlockNumber: 1, LogIndex: 3}}))
	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 2, LogIndex: 1}}))

	var got []model.LogRecord
	err = ReadJSONL(path, func(line []byte) error {
		var rec model.LogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[2].BlockNumber)
	assert.Equal(t, uint64(3), got[1].LogIndex)
}

func TestReadJSONLReportsLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n\nnot json\n"), 0o644))
	err := ReadJSONL(path, func(line []byte) error {
		var v map[string]interface{}
		return json.Unmarshal(line, &v)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestFileStoreCommitAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "state.json"), filepath.Join(dir, "events.jsonl"))
	ctx := context.Background()

	_, ok, err := store.LoadPoolState(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	state := model.PoolState{
		Name:        "susd",
		Balances:    []string{"1000", "300"},
		TotalSupply: "1290",
		Phase:       "seeded",
		Sequence:    1,
	}
	events := []model.PoolEvent{{Pool: "0xf0", Sequence: 1, EventName: model.EventAddLiquidity}}
	require.NoError(t, store.Commit(ctx, state, events))

	state.Sequence = 2
	state.Phase = "active"
	require.NoError(t, store.Commit(ctx, state, []model.PoolEvent{{Pool: "0xf0", Sequence: 2, EventName: model.EventTokenExchange}}))

	loaded, ok, err := store.LoadPoolState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, loaded)

	var names []string
	require.NoError(t, ReadJSONL(filepath.Join(dir, "events.jsonl"), func(line []byte) error {
		var ev model.PoolEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		names = append(names, ev.EventName)
		return nil
	}))
	assert.Equal(t, []string{model.EventAddLiquidity, model.EventTokenExchange}, names)

	_, err = os.Stat(filepath.Join(dir, "state.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreFailedCommitDropsEvents(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	eventsPath := filepath.Join(dir, "events.jsonl")
	store := NewFileStore(statePath, eventsPath)
	ctx := context.Background()

	first := model.PoolState{Name: "susd", TotalSupply: "1290", Phase: "seeded", Sequence: 1}
	require.NoError(t, store.Commit(ctx, first, []model.PoolEvent{{Pool: "0xf0", Sequence: 1, EventName: model.EventAddLiquidity}}))

	// A non-empty directory at the state path makes the rename fail.
	require.NoError(t, os.Remove(statePath))
	require.NoError(t, os.MkdirAll(filepath.Join(statePath, "blocker"), 0o755))

	second := first
	second.Sequence = 2
	err := store.Commit(ctx, second, []model.PoolEvent{{Pool: "0xf0", Sequence: 2, EventName: model.EventTokenExchange}})
	require.ErrorContains(t, err, "save pool state")

	countEvents := func() []uint64 {
		var seqs []uint64
		require.NoError(t, ReadJSONL(eventsPath, func(line []byte) error {
			var ev model.PoolEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				return err
			}
			seqs = append(seqs, ev.Sequence)
			return nil
		}))
		return seqs
	}
	assert.Equal(t, []uint64{1}, countEvents())
	_, err = os.Stat(statePath + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// The retried operation reuses sequence 2 and the journal stays consistent.
	require.NoError(t, os.RemoveAll(statePath))
	require.NoError(t, store.Commit(ctx, second, []model.PoolEvent{{Pool: "0xf0", Sequence: 2, EventName: model.EventTokenExchange}}))
	assert.Equal(t, []uint64{1, 2}, countEvents())
	loaded, ok, err := store.LoadPoolState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), loaded.Sequence)
}

func TestJsonlSinkTruncate(t *testing.T) {
	sink := NewJsonlSink(filepath.Join(t.TempDir(), "out.jsonl"))
	size, err := sink.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
	require.NoError(t, sink.Truncate(0))

	require.NoError(t, sink.Append(map[string]int{"a": 1}))
	mark, err := sink.Size()
	require.NoError(t, err)
	require.NoError(t, sink.Append(map[string]int{"b": 2}))
	require.NoError(t, sink.Truncate(mark))

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(data))
}

func TestFileCursor(t *testing.T) {
	ctx := context.Background()
	cursor := &FileCursor{Path: filepath.Join(t.TempDir(), "cursor.json")}

	_, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cursor.Save(ctx, 42))
	pos, ok, err := cursor.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), pos)

	var disabled *FileCursor
	require.NoError(t, disabled.Save(ctx, 1))
	_, ok, err = disabled.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	dirCursor := &FileCursor{Path: t.TempDir()}
	_, _, err = dirCursor.Load(ctx)
	require.Error(t, err)
}
