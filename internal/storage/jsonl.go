package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"stableswap/internal/model"
)

// JsonlSink appends records to a JSONL file, one JSON object per line.
type JsonlSink struct {
	path string
	mu   sync.Mutex
}

func NewJsonlSink(path string) *JsonlSink {
	return &JsonlSink{path: path}
}

// Path returns the output file.
func (s *JsonlSink) Path() string { return s.path }

// PutLogBatch appends chain logs.
func (s *JsonlSink) PutLogBatch(logs []model.LogRecord) error {
	records := make([]interface{}, len(logs))
	for i := range logs {
		records[i] = logs[i]
	}
	return s.Append(records...)
}

// PutPoolEvents appends engine events.
func (s *JsonlSink) PutPoolEvents(events []model.PoolEvent) error {
	records := make([]interface{}, len(events))
	for i := range events {
		records[i] = events[i]
	}
	return s.Append(records...)
}

// PutReplayResults appends replay comparisons.
func (s *JsonlSink) PutReplayResults(_ context.Context, results []model.ReplayResult) error {
	records := make([]interface{}, len(results))
	for i := range results {
		records[i] = results[i]
	}
	return s.Append(records...)
}

// Append writes records and flushes them before returning.
func (s *JsonlSink) Append(records ...interface{}) error {
	if len(records) == 0 {
		return nil
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return file.Sync()
}

// Size returns the current length of the output file, 0 when it does not exist yet.
func (s *JsonlSink) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat output file: %w", err)
	}
	return info.Size(), nil
}

// Truncate cuts the output file back to size, dropping records appended after it.
func (s *JsonlSink) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(s.path, os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("truncate output file: %w", err)
	}
	return file.Sync()
}

// EventFiles writes decoded events and decode failures to two JSONL files.
type EventFiles struct {
	Events *JsonlSink
	Errors *JsonlSink
}

func NewEventFiles(eventsPath, errorsPath string) *EventFiles {
	return &EventFiles{Events: NewJsonlSink(eventsPath), Errors: NewJsonlSink(errorsPath)}
}

func (f *EventFiles) PutTypedEvents(events []model.TypedEvent) error {
	records := make([]interface{}, len(events))
	for i := range events {
		records[i] = events[i]
	}
	return f.Events.Append(records...)
}

func (f *EventFiles) PutDecodeErrors(errs []model.DecodeError) error {
	records := make([]interface{}, len(errs))
	for i := range errs {
		records[i] = errs[i]
	}
	return f.Errors.Append(records...)
}

// ReadJSONL decodes every line of path with fn. Blank lines are skipped.
func ReadJSONL(path string, fn func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// writeAtomic replaces path with data through a synced temporary file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := stageFile(path, data)
	if err != nil {
		return err
	}
	return replaceFile(tmp, path)
}

// stageFile writes data to path.tmp and syncs it.
func stageFile(path string, data []byte) (string, error) {
	if err := ensureDir(path); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open tmp: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write tmp: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("sync tmp: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close tmp: %w", err)
	}
	return tmp, nil
}

// replaceFile renames a staged file over path and syncs the directory entry. The
// staged file is removed when the rename fails.
func replaceFile(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return nil
	}
	defer dir.Close()
	// Directory sync is best effort.
	_ = dir.Sync()
	return nil
}
