package model

// DecodeError is a pool log that matched a known topic but could not be decoded.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Pool        string `json:"pool"`
	Topic0      string `json:"topic0"`
	Error       string `json:"error"`
}

// NewDecodeError describes why rec failed to decode.
func NewDecodeError(rec LogRecord, err error) DecodeError {
	out := DecodeError{
		ChainID:     rec.ChainID,
		BlockNumber: rec.BlockNumber,
		TxHash:      rec.TxHash,
		LogIndex:    rec.LogIndex,
		Pool:        rec.Address,
	}
	if len(rec.Topics) > 0 {
		out.Topic0 = rec.Topics[0]
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// Position orders decode failures with the events around them.
func (e DecodeError) Position() uint64 {
	return Position(e.BlockNumber, e.LogIndex)
}
