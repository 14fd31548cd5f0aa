package peerbook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// bookVersion is the on-disk format version.
	bookVersion = 1

	tempFileSuffix   = ".tmp"
	backupFileSuffix = ".bak"
	lockFileSuffix   = ".lock"
)

// fileStore persists the book as JSON. Writes are atomic (temp file,
// fsync, rename) and guarded by an inter-process file lock so a GUI and a
// CLI sharing a book do not corrupt it.
type fileStore struct {
	path     string
	lockPath string
	mu       sync.Mutex
}

func newFileStore(path string) *fileStore {
	return &fileStore{
		path:     path,
		lockPath: path + lockFileSuffix,
	}
}

// load reads the book. A missing or empty file yields an empty book. A
// corrupted file is moved aside to a .bak and an empty book is returned.
func (s *fileStore) load() (*bookData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.lockFile()
	if err != nil {
		return nil, fmt.Errorf("failed to lock peer book: %w", err)
	}
	defer s.unlockFile(lock)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return emptyBook(), nil
		}
		return nil, fmt.Errorf("failed to read peer book: %w", err)
	}
	if len(raw) == 0 {
		return emptyBook(), nil
	}

	var data bookData
	if err := json.Unmarshal(raw, &data); err != nil {
		backup := s.path + backupFileSuffix
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return nil, fmt.Errorf("corrupted peer book, backup failed: parse error: %w, rename error: %v", err, renameErr)
		}
		return emptyBook(), nil
	}
	if data.Peers == nil {
		data.Peers = make(map[string]*Entry)
	}
	return &data, nil
}

// save writes the book atomically.
func (s *fileStore) save(data *bookData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := s.lockFile()
	if err != nil {
		return fmt.Errorf("failed to lock peer book: %w", err)
	}
	defer s.unlockFile(lock)

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create peer book directory: %w", err)
		}
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode peer book: %w", err)
	}

	tmp := s.path + tempFileSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace peer book: %w", err)
	}
	return nil
}

func emptyBook() *bookData {
	return &bookData{
		Version: bookVersion,
		Peers:   make(map[string]*Entry),
	}
}
