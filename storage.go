package gramsetu

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ============================================================================
// Unread store backends
// ============================================================================

// UnreadStore persists the peer→unread-count map across process restarts.
// Save always writes the full map; Load on a fresh store returns an empty
// map, never an error.
type UnreadStore interface {
	Load() (map[string]int, error)
	Save(counts map[string]int) error
}

// ── FileUnreadStore ──────────────────────────────────────

// FileUnreadStore keeps the unread map as a single JSON object on disk,
// under a path namespaced per user so it never collides with other local
// state. It tolerates being read by a freshly started process while live
// events are already flowing.
type FileUnreadStore struct {
	path string
}

// DefaultUnreadPath returns the per-user unread store path under the
// GramSetu config directory.
func DefaultUnreadPath(userID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".gramsetu")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return filepath.Join(dir, "unread_"+userID+".json"), nil
}

// NewFileUnreadStore creates a store backed by the given path.
func NewFileUnreadStore(path string) *FileUnreadStore {
	return &FileUnreadStore{path: path}
}

func (s *FileUnreadStore) Load() (map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("cannot read unread store: %w", err)
	}
	counts := map[string]int{}
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("cannot parse unread store: %w", err)
	}
	return counts, nil
}

func (s *FileUnreadStore) Save(counts map[string]int) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("cannot marshal unread store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write unread store: %w", err)
	}
	return nil
}

// ── MemoryUnreadStore ────────────────────────────────────

// MemoryUnreadStore is a goroutine-safe in-memory store, used in tests and
// for sessions that should not leave state behind.
type MemoryUnreadStore struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewMemoryUnreadStore() *MemoryUnreadStore {
	return &MemoryUnreadStore{counts: map[string]int{}}
}

func (s *MemoryUnreadStore) Load() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryUnreadStore) Save(counts map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int, len(counts))
	for k, v := range counts {
		s.counts[k] = v
	}
	return nil
}
