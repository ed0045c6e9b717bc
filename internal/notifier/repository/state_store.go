package repository

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"mailwatch-bot/internal/notifier/domain"
)

const (
	stateFileName  = "state.json"
	unreadFileName = "unread_store.json"
)

// persistedState is the on-disk shape of the single-destination session
// record: the bound chat and the poll cursor.
type persistedState struct {
	ChatID        int64 `json:"chat_id"`
	LastCheckedTS int64 `json:"last_checked_ts"`
}

// StateStore holds the poll cursor, the bound chat destination and the
// tracked-message map. It is the single source of truth for what has been
// evaluated and what is pending acknowledgment.
//
// Concurrent access is safe: the poller creates entries, the acknowledgment
// handler removes them, reminder jobs only read. Persistence replaces the
// whole file via a temp-file rename so a crash never exposes a torn state.
type StateStore struct {
	mu         sync.RWMutex
	statePath  string
	unreadPath string

	chatID  int64
	cursor  int64
	tracked map[string]domain.TrackedMessage
}

// NewStateStore creates a store persisting under stateDir.
func NewStateStore(stateDir string) *StateStore {
	return &StateStore{
		statePath:  filepath.Join(stateDir, stateFileName),
		unreadPath: filepath.Join(stateDir, unreadFileName),
		tracked:    make(map[string]domain.TrackedMessage),
	}
}

// Load reads both files. A missing or malformed file loads as empty state:
// availability is preferred over crashing on a corrupt store, at the cost
// of a possible duplicate notification.
func (s *StateStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st persistedState
	if err := readJSONFile(s.statePath, &st); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[StateStore] Ignoring unreadable state file: %v", err)
		}
	} else {
		s.chatID = st.ChatID
		s.cursor = st.LastCheckedTS
	}

	tracked := make(map[string]domain.TrackedMessage)
	if err := readJSONFile(s.unreadPath, &tracked); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[StateStore] Ignoring unreadable unread store: %v", err)
		}
		tracked = make(map[string]domain.TrackedMessage)
	}
	s.tracked = tracked
}

// Cursor returns the high-water mark of evaluated internal timestamps.
func (s *StateStore) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// SetCursor advances the cursor. The cursor never moves backwards.
func (s *StateStore) SetCursor(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.cursor {
		s.cursor = ts
	}
}

// ChatID returns the bound destination chat, or 0 when unbound.
func (s *StateStore) ChatID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// SetChatID binds the single destination chat.
func (s *StateStore) SetChatID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = id
}

// Get looks up a tracked message.
func (s *StateStore) Get(messageID string) (domain.TrackedMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tm, ok := s.tracked[messageID]
	return tm, ok
}

// Put records a tracked message.
func (s *StateStore) Put(messageID string, tm domain.TrackedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[messageID] = tm
}

// Remove deletes a tracked message, reporting whether it existed.
func (s *StateStore) Remove(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracked[messageID]
	delete(s.tracked, messageID)
	return ok
}

// All returns a copy of the tracked-message map.
func (s *StateStore) All() map[string]domain.TrackedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.TrackedMessage, len(s.tracked))
	for id, tm := range s.tracked {
		out[id] = tm
	}
	return out
}

// Counts returns the number of tracked messages and how many of them are
// delivered-and-unacknowledged.
func (s *StateStore) Counts() (tracked, pending int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tm := range s.tracked {
		if tm.Delivered() {
			pending++
		}
	}
	return len(s.tracked), pending
}

// Save persists both files atomically (whole-file replace).
func (s *StateStore) Save() error {
	s.mu.RLock()
	st := persistedState{ChatID: s.chatID, LastCheckedTS: s.cursor}
	tracked := make(map[string]domain.TrackedMessage, len(s.tracked))
	for id, tm := range s.tracked {
		tracked[id] = tm
	}
	s.mu.RUnlock()

	if err := writeJSONFile(s.statePath, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := writeJSONFile(s.unreadPath, tracked); err != nil {
		return fmt.Errorf("save unread store: %w", err)
	}
	return nil
}

// Reset clears all state in memory and deletes the backing files. Callers
// must stop the poll loop and cancel reminder jobs first.
func (s *StateStore) Reset() error {
	s.mu.Lock()
	s.chatID = 0
	s.cursor = 0
	s.tracked = make(map[string]domain.TrackedMessage)
	s.mu.Unlock()

	for _, path := range []string{s.statePath, s.unreadPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset state: %w", err)
		}
	}
	return nil
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
