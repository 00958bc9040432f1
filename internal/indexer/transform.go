package indexer

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"stableswap/internal/model"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeRecords splits records into decoded events and decode failures. Records the
// decoder does not recognise are dropped.
func decodeRecords(decoder Decoder, records []model.LogRecord) ([]model.TypedEvent, []model.DecodeError) {
	var (
		events []model.TypedEvent
		failed []model.DecodeError
	)
	for _, rec := range records {
		if len(rec.Topics) == 0 || !decoder.CanDecode(rec.Topics[0]) {
			continue
		}
		event, err := decoder.Decode(rec)
		if err != nil {
			failed = append(failed, model.NewDecodeError(rec, err))
			continue
		}
		events = append(events, *event)
	}
	return events, failed
}
