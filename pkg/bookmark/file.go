package bookmark

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps bookmarks in a single JSON file mapping username to an
// ordered server list. Reads fail open: a missing file is an empty store and
// a corrupt one is logged and reset, so the onboarding flow stays available.
type FileStore struct {
	path string

	mu   sync.Mutex
	data map[string][]SavedServer
}

// NewFileStore creates a FileStore persisting to path. The file is created on
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, data: make(map[string][]SavedServer)}
}

// Load re-reads the on-disk state.
func (s *FileStore) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("bookmark store: read failed, resetting", "path", s.path, "error", err)
		}
		s.data = make(map[string][]SavedServer)
		return nil
	}

	data := make(map[string][]SavedServer)
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Error("bookmark store: parse failed, resetting", "path", s.path, "error", err)
		s.data = make(map[string][]SavedServer)
		return nil
	}
	s.data = data
	return nil
}

// GetServers returns the user's bookmarks in insertion order.
func (s *FileStore) GetServers(_ context.Context, username string) ([]SavedServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := s.data[username]
	out := make([]SavedServer, len(servers))
	copy(out, servers)
	return out, nil
}

// AddServer upserts by name and persists before committing in memory.
func (s *FileStore) AddServer(_ context.Context, username string, server SavedServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.data[username]
	next := make([]SavedServer, len(current))
	copy(next, current)

	replaced := false
	for i, existing := range next {
		if existing.Name == server.Name {
			next[i] = server
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, server)
	}

	return s.commit(username, next)
}

// RemoveServer deletes by name and persists before committing in memory.
func (s *FileStore) RemoveServer(_ context.Context, username string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.data[username]
	next := make([]SavedServer, 0, len(current))
	found := false
	for _, existing := range current {
		if existing.Name == name {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if !found {
		return nil
	}

	return s.commit(username, next)
}

// commit writes the full store with the user's list replaced, keeping the
// in-memory state unchanged if the write fails. Caller holds s.mu.
func (s *FileStore) commit(username string, servers []SavedServer) error {
	snapshot := make(map[string][]SavedServer, len(s.data))
	for user, list := range s.data {
		snapshot[user] = list
	}
	if len(servers) == 0 {
		delete(snapshot, username)
	} else {
		snapshot[username] = servers
	}

	if err := s.persist(snapshot); err != nil {
		slog.Error("bookmark store: persist failed", "path", s.path, "error", err)
		return err
	}
	s.data = snapshot
	return nil
}

// persist replaces the on-disk file atomically via a temp file and rename.
func (s *FileStore) persist(data map[string][]SavedServer) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bookmarks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bookmarks-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing bookmarks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing bookmarks file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (*FileStore) Close() error { return nil }

// Verify interface compliance.
var _ Store = (*FileStore)(nil)
