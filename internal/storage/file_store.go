package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"stableswap/internal/model"
)

// FileStore keeps the latest pool snapshot in a JSON file and appends committed events
// to a JSONL journal next to it.
type FileStore struct {
	statePath string
	events    *JsonlSink
}

func NewFileStore(statePath, eventsPath string) *FileStore {
	return &FileStore{statePath: statePath, events: NewJsonlSink(eventsPath)}
}

// Commit stages the snapshot in a synced temporary file, appends the events and then
// renames the snapshot into place. When the append or the rename fails the journal is
// cut back to its previous length, so a failed commit leaves no events behind. A crash
// between append and rename leaves events whose sequence is ahead of the snapshot;
// LoadPoolState callers detect this by comparing sequences.
func (s *FileStore) Commit(_ context.Context, state model.PoolState, events []model.PoolEvent) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool state: %w", err)
	}
	tmp, err := stageFile(s.statePath, data)
	if err != nil {
		return fmt.Errorf("save pool state: %w", err)
	}
	mark, err := s.events.Size()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("append events: %w", err)
	}
	if err := s.events.PutPoolEvents(events); err != nil {
		os.Remove(tmp)
		return s.rollback(mark, fmt.Errorf("append events: %w", err))
	}
	if err := replaceFile(tmp, s.statePath); err != nil {
		return s.rollback(mark, fmt.Errorf("save pool state: %w", err))
	}
	return nil
}

func (s *FileStore) rollback(mark int64, cause error) error {
	if err := s.events.Truncate(mark); err != nil {
		return errors.Join(cause, fmt.Errorf("roll back events: %w", err))
	}
	return cause
}

// LoadPoolState returns the last committed snapshot.
func (s *FileStore) LoadPoolState(_ context.Context) (model.PoolState, bool, error) {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, fmt.Errorf("read pool state: %w", err)
	}
	var state model.PoolState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.PoolState{}, false, fmt.Errorf("parse pool state: %w", err)
	}
	return state, true, nil
}
