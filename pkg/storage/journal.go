package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Journal is an append-only audit log. The ledger records every accepted
// deposit credit so balances can be reconciled against the chain indexers.
type Journal interface {
	Append(v any) error
}

type NopJournal struct{}

func NewNopJournal() *NopJournal       { return &NopJournal{} }
func (j *NopJournal) Append(any) error { return nil }

// FileJournal writes one JSON document per line, fsynced per append.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal marshal: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := fmt.Fprintln(j.f, string(line)); err != nil {
		return fmt.Errorf("journal append: %w", err)
	}
	return j.f.Sync()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ Journal = (*NopJournal)(nil)
var _ Journal = (*FileJournal)(nil)
