package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONL appends entries to a JSON-lines file.
type JSONL struct {
	path string
	mu   sync.Mutex
}

func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

// Record appends entries as JSON lines.
func (j *JSONL) Record(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", entry.IntentID, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

func (j *JSONL) Close() {}

// ReadJSONL loads every entry from path.
func ReadJSONL(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
