package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortLogRecords(t *testing.T) {
	records := []LogRecord{
		{BlockNumber: 11, LogIndex: 0, TxHash: "0xc"},
		{BlockNumber: 10, LogIndex: 7, TxHash: "0xb"},
		{BlockNumber: 10, LogIndex: 2, TxHash: "0xa"},
	}
	SortLogRecords(records)

	assert.Equal(t, "0xa", records[0].TxHash)
	assert.Equal(t, "0xb", records[1].TxHash)
	assert.Equal(t, "0xc", records[2].TxHash)
	assert.Equal(t, "10:0xa:2", records[0].Key())
}

func TestPositionOrdersBlocksFirst(t *testing.T) {
	assert.Less(t, Position(10, 1<<20), Position(11, 0))
	assert.Less(t, Position(10, 1), Position(10, 2))
	assert.Equal(t, Position(5, 3), LogRecord{BlockNumber: 5, LogIndex: 3}.Position())
}

func TestTypedEventRecordPayload(t *testing.T) {
	event := TypedEvent{
		BlockNumber: 100,
		LogIndex:    4,
		EventName:   EventTokenExchange,
		Decoded: TokenExchangeData{
			Buyer:        "0x3333333333333333333333333333333333333333",
			SoldID:       1,
			TokensSold:   "1000",
			BoughtID:     0,
			TokensBought: "998",
		},
	}
	line, err := json.Marshal(event)
	require.NoError(t, err)

	var rec TypedEventRecord
	require.NoError(t, json.Unmarshal(line, &rec))
	payload, err := rec.Payload()
	require.NoError(t, err)
	assert.Equal(t, event.Decoded, payload)
	assert.Equal(t, Position(100, 4), rec.Position())

	rec.EventName = "Transfer"
	_, err = rec.Payload()
	require.Error(t, err)

	rec.EventName = EventAddLiquidity
	rec.Decoded = json.RawMessage(`{"token_amounts": 5}`)
	_, err = rec.Payload()
	require.Error(t, err)
}

func TestTokenMetaLabel(t *testing.T) {
	meta := TokenMeta{Address: "0xabc", Decimals: 6}
	assert.Equal(t, "0xabc", meta.Label())
	meta.Symbol = "USDC"
	assert.Equal(t, "USDC", meta.Label())
	assert.Equal(t, CoinMeta{Address: "0xabc", Decimals: 6}, meta.Coin())
}

func TestNewDecodeError(t *testing.T) {
	rec := LogRecord{ChainID: 1, BlockNumber: 9, LogIndex: 4, TxHash: "0xtx", Address: "0xpool"}
	got := NewDecodeError(rec, errors.New("short data"))
	assert.Equal(t, "", got.Topic0)
	assert.Equal(t, "0xpool", got.Pool)
	assert.Equal(t, "short data", got.Error)
	assert.Equal(t, rec.Position(), got.Position())
}
