package delivery

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
)

// AccessControl gates bot usage: admins are the configured operator user
// IDs, and a group chat becomes allowed the first time an admin uses the
// bot in it.
type AccessControl struct {
	adminsPath string
	groupsPath string

	mu            sync.RWMutex
	admins        map[int64]bool
	allowedGroups map[int64]bool
}

// NewAccessControl creates the gate backed by the two JSON files.
func NewAccessControl(adminsPath, groupsPath string) *AccessControl {
	return &AccessControl{
		adminsPath:    adminsPath,
		groupsPath:    groupsPath,
		admins:        make(map[int64]bool),
		allowedGroups: make(map[int64]bool),
	}
}

// Load reads both files. A missing admins file is an error (the bot is
// unusable without at least one operator); a missing groups file is empty.
func (a *AccessControl) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	admins, err := readIDFile(a.adminsPath)
	if err != nil {
		return fmt.Errorf("load admins: %w", err)
	}
	a.admins = admins

	groups, err := readIDFile(a.groupsPath)
	if err != nil {
		if os.IsNotExist(err) {
			a.allowedGroups = make(map[int64]bool)
			return nil
		}
		return fmt.Errorf("load allowed groups: %w", err)
	}
	a.allowedGroups = groups
	return nil
}

// IsAdmin reports whether userID is a configured operator.
func (a *AccessControl) IsAdmin(userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.admins[userID]
}

// IsAuthorized decides whether a user may drive the bot from a chat.
// Private chats require admin; known groups are open to their members; an
// admin speaking in a new group allows that group from then on.
func (a *AccessControl) IsAuthorized(chatID, userID int64, chatType string) bool {
	if chatType == "private" {
		return a.IsAdmin(userID)
	}

	a.mu.RLock()
	allowed := a.allowedGroups[chatID]
	a.mu.RUnlock()
	if allowed {
		return true
	}

	if a.IsAdmin(userID) {
		a.mu.Lock()
		a.allowedGroups[chatID] = true
		err := writeIDFile(a.groupsPath, a.allowedGroups)
		a.mu.Unlock()
		if err != nil {
			log.Printf("[Access] Persisting allowed groups failed: %v", err)
		}
		return true
	}
	return false
}

func readIDFile(path string) (map[int64]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func writeIDFile(path string, ids map[int64]bool) error {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
