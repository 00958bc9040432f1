package model

import (
	"fmt"
	"sort"
)

// LogRecord is the normalized representation of a chain log for storage.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
}

// Key identifies a log across batches.
func (lr LogRecord) Key() string {
	return fmt.Sprintf("%d:%s:%d", lr.BlockNumber, lr.TxHash, lr.LogIndex)
}

// Position orders the log within the chain.
func (lr LogRecord) Position() uint64 {
	return Position(lr.BlockNumber, lr.LogIndex)
}

// Position packs a block number and log index into one ordered cursor value. Log
// indexes must stay below 2^24.
func Position(blockNumber, logIndex uint64) uint64 {
	return blockNumber<<24 | logIndex&(1<<24-1)
}

// SortLogRecords orders records by block number, then log index.
func SortLogRecords(records []LogRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Position() < records[j].Position()
	})
}
