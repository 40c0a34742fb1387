package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/quantora/simrun/pkg/run"
)

const historyFile = "history.json"

// FileStore persists history as one JSON document under a root directory.
type FileStore struct {
	mu    sync.Mutex
	root  string
	limit int
}

func NewFileStore(root string, limit int) (*FileStore, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history root: %w", err)
	}

	return &FileStore{root: root, limit: limit}, nil
}

func (s *FileStore) Append(_ context.Context, summary run.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	entries = append([]run.Summary{summary}, entries...)
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}

	return s.save(entries)
}

func (s *FileStore) List(_ context.Context) ([]run.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() ([]run.Summary, error) {
	body, err := os.ReadFile(path.Join(s.root, historyFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var entries []run.Summary
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	return entries, nil
}

func (s *FileStore) save(entries []run.Summary) error {
	body, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	tmp := path.Join(s.root, historyFile+".tmp")
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	return os.Rename(tmp, path.Join(s.root, historyFile))
}
