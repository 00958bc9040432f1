package model

import (
	"encoding/json"
	"fmt"
)

// TypedEventRecord is TypedEvent as read back from JSONL, with the payload left raw
// until the event name is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// Payload decodes the raw payload into the model.*Data type of its event name.
func (r TypedEventRecord) Payload() (interface{}, error) {
	var (
		out interface{}
		err error
	)
	switch r.EventName {
	case EventTokenExchange:
		var d TokenExchangeData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	case EventAddLiquidity:
		var d AddLiquidityData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	case EventRemoveLiquidity:
		var d RemoveLiquidityData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	case EventRemoveLiquidityImbalance:
		var d RemoveLiquidityImbalanceData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	case EventRemoveLiquidityOne:
		var d RemoveLiquidityOneData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	case EventWithdrawAdminFees:
		var d WithdrawAdminFeesData
		err = json.Unmarshal(r.Decoded, &d)
		out = d
	default:
		return nil, fmt.Errorf("unknown event %q", r.EventName)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", r.EventName, err)
	}
	return out, nil
}

// Position orders the event within the chain.
func (r TypedEventRecord) Position() uint64 {
	return Position(r.BlockNumber, r.LogIndex)
}
