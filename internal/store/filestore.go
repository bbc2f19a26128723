package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	util "github.com/buildflow/site-client/pkg/util"
)

const stateFileName = "state.json"

// FileStore persists entries as a single JSON document under a directory.
// Writes go through a temp file and rename so a crash never leaves a torn
// state file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, util.NewStorageUnavailable(err)
	}
	return &FileStore{path: filepath.Join(dir, stateFileName)}, nil
}

// Get returns the value for key, reporting presence separately from errors.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readLocked()
	if err != nil {
		return nil, false, err
	}
	val, ok := state[key]
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores the value under key.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readLocked()
	if err != nil {
		return err
	}
	state[key] = json.RawMessage(value)
	return s.writeLocked(state)
}

// Delete removes key; deleting an absent key is a no-op.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := state[key]; !ok {
		return nil
	}
	delete(state, key)
	return s.writeLocked(state)
}

func (s *FileStore) readLocked() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, util.NewStorageUnavailable(err)
	}
	state := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt state file: start over rather than wedge the client.
		return map[string]json.RawMessage{}, nil
	}
	return state, nil
}

func (s *FileStore) writeLocked(state map[string]json.RawMessage) error {
	data, err := json.Marshal(state)
	if err != nil {
		return util.NewStorageUnavailable(err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return util.NewQuotaExceeded(err)
		}
		return util.NewStorageUnavailable(err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return util.NewStorageUnavailable(err)
	}
	return nil
}
