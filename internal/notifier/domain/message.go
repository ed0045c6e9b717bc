package domain

import "time"

// MessageMeta is the header-level view of a mailbox message, fetched once
// per message during a poll cycle.
type MessageMeta struct {
	ID         string // provider-assigned message identifier
	Sender     string // bare address, e.g. user@example.com
	Subject    string
	InternalTS int64 // provider internal timestamp, milliseconds since epoch
}

// TrackedMessage links a mailbox message to the notification delivered for
// it. A nil NotificationRef means the sender was not on the allow-list and
// the message was recorded only so it is never evaluated again.
//
// FirstReminderAt/FinalReminderAt hold the absolute reminder deadlines so
// that escalation survives a process restart; zero means no schedule.
type TrackedMessage struct {
	NotificationRef *string `json:"notification_ref"`
	Time            float64 `json:"time"`
	FirstReminderAt float64 `json:"first_reminder_at,omitempty"`
	FinalReminderAt float64 `json:"final_reminder_at,omitempty"`
}

// Delivered reports whether a notification was actually sent for this
// message. Suppressed (allow-list blocked) entries never escalate.
func (t TrackedMessage) Delivered() bool {
	return t.NotificationRef != nil
}

// NewTracked builds a tracked record for a delivered notification.
func NewTracked(ref string, at time.Time) TrackedMessage {
	return TrackedMessage{
		NotificationRef: &ref,
		Time:            unixSeconds(at),
	}
}

// NewSuppressed builds a tracked record for an allow-list-blocked message.
func NewSuppressed(at time.Time) TrackedMessage {
	return TrackedMessage{Time: unixSeconds(at)}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
