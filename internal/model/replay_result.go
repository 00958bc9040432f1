package model

// Replay outcomes.
const (
	ReplayMatch    = "match"
	ReplayMismatch = "mismatch"
	ReplayFailed   = "failed"
	ReplaySkipped  = "skipped"
)

// ReplayResult compares one on-chain event with the local engine's output.
type ReplayResult struct {
	ChainID     uint64 `json:"chain_id"`
	PoolAddress string `json:"pool_address"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	EventName   string `json:"event_name"`
	Status      string `json:"status"`
	Expected    string `json:"expected"`
	Actual      string `json:"actual"`
	Delta       string `json:"delta"`
	Error       string `json:"error,omitempty"`
}
