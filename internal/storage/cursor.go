package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileCursor stores a job position in a local JSON file. A zero path disables it.
type FileCursor struct {
	Path string
}

type cursorRecord struct {
	Position  uint64 `json:"position"`
	UpdatedAt string `json:"updated_at"`
}

func (c *FileCursor) Load(_ context.Context) (uint64, bool, error) {
	if c == nil || c.Path == "" {
		return 0, false, nil
	}
	stat, err := os.Stat(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("stat cursor: %w", err)
	}
	if stat.IsDir() {
		return 0, false, fmt.Errorf("cursor path %s is a directory", c.Path)
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	var rec cursorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("parse cursor: %w", err)
	}
	return rec.Position, true, nil
}

func (c *FileCursor) Save(_ context.Context, position uint64) error {
	if c == nil || c.Path == "" {
		return nil
	}
	data, err := json.Marshal(cursorRecord{
		Position:  position,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	if err := writeAtomic(c.Path, data); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
