package delivery

import "sync"

// sessionState tracks a multi-step allow-list conversation.
type sessionState int

const (
	stateIdle sessionState = iota
	stateAddingEntry
	stateRemovingEntry
	stateConfirmRemove
)

// sessionKey scopes conversation state to the requesting identity, so two
// operators (or the same operator in two chats) never interfere with each
// other's add/remove flow.
type sessionKey struct {
	ChatID int64
	UserID int64
}

type session struct {
	state       sessionState
	removeIndex int
}

type sessionRegistry struct {
	mu sync.Mutex
	m  map[sessionKey]session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{m: make(map[sessionKey]session)}
}

func (r *sessionRegistry) get(key sessionKey) session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[key]
}

func (r *sessionRegistry) set(key sessionKey, s session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = s
}

func (r *sessionRegistry) clear(key sessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}
