package usecase

import "mailwatch-bot/internal/notifier/domain"

// TrackedStore is the slice of the state store the notification engine
// needs: cursor plus tracked-message map, persisted as a unit.
type TrackedStore interface {
	Cursor() int64
	SetCursor(ts int64)
	Get(messageID string) (domain.TrackedMessage, bool)
	Put(messageID string, tm domain.TrackedMessage)
	Remove(messageID string) bool
	All() map[string]domain.TrackedMessage
	Save() error
}
