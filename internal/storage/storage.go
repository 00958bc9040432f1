// Package storage persists pool state, pool events, chain logs and replay results to
// local files.
package storage

import (
	"context"

	"stableswap/internal/model"
)

// LogSink receives raw chain logs from the indexer.
type LogSink interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EventSink receives decoded chain events and the logs that failed to decode.
type EventSink interface {
	PutTypedEvents(events []model.TypedEvent) error
	PutDecodeErrors(errs []model.DecodeError) error
}

// ResultSink receives replay comparisons.
type ResultSink interface {
	PutReplayResults(ctx context.Context, results []model.ReplayResult) error
}

// CursorStore persists the position of a resumable job.
type CursorStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, position uint64) error
}
