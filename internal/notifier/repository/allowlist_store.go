package repository

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var (
	// ErrInvalidEntry indicates an allow-list entry without an "@".
	ErrInvalidEntry = errors.New("invalid allow-list entry")

	// ErrIndexOutOfRange indicates a removal index past the list bounds.
	ErrIndexOutOfRange = errors.New("allow-list index out of range")
)

// AllowlistStore persists the sender allow-list as a newline-delimited
// text file of entries (user@domain or *@domain). Duplicates are inert;
// insertion order is preserved for display and removal-by-index.
type AllowlistStore struct {
	mu      sync.RWMutex
	path    string
	entries []string
}

// NewAllowlistStore creates a store backed by the file at path.
func NewAllowlistStore(path string) *AllowlistStore {
	return &AllowlistStore{path: path}
}

// Load reads the allow-list file. A missing file loads as an empty list.
func (s *AllowlistStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.entries = nil
			return nil
		}
		return fmt.Errorf("load allow-list: %w", err)
	}

	s.entries = nil
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !contains(s.entries, line) {
			s.entries = append(s.entries, line)
		}
	}
	return nil
}

// Entries returns a copy of the list in insertion order.
func (s *AllowlistStore) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Add appends an entry and persists the list. Adding an entry that is
// already present is a no-op.
func (s *AllowlistStore) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	if !strings.Contains(entry, "@") {
		return ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if contains(s.entries, entry) {
		return nil
	}
	s.entries = append(s.entries, entry)
	return s.saveLocked()
}

// RemoveAt deletes the entry at the zero-based index, persists the list,
// and returns the removed entry.
func (s *AllowlistStore) RemoveAt(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.entries) {
		return "", ErrIndexOutOfRange
	}
	removed := s.entries[index]
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	return removed, s.saveLocked()
}

// Reset clears the list and deletes the backing file.
func (s *AllowlistStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset allow-list: %w", err)
	}
	return nil
}

func (s *AllowlistStore) saveLocked() error {
	var b strings.Builder
	for _, e := range s.entries {
		b.WriteString(e)
		b.WriteString("\n")
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("save allow-list: %w", err)
	}
	return nil
}

func contains(entries []string, entry string) bool {
	for _, e := range entries {
		if e == entry {
			return true
		}
	}
	return false
}
