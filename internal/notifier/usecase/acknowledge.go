package usecase

import (
	"context"
	"fmt"
	"log"

	"mailwatch-bot/internal/notifier/domain"
)

// Acknowledger processes a mark-read action for a tracked message.
type Acknowledger struct {
	store     TrackedStore
	mailbox   domain.MailboxClient
	chat      domain.ChatTransport
	reminders *Scheduler
}

// NewAcknowledger wires the acknowledgment handler.
func NewAcknowledger(store TrackedStore, mailbox domain.MailboxClient, chat domain.ChatTransport, reminders *Scheduler) *Acknowledger {
	return &Acknowledger{
		store:     store,
		mailbox:   mailbox,
		chat:      chat,
		reminders: reminders,
	}
}

// Acknowledge clears the unread flag in the mailbox, strikes through the
// delivered notification, cancels the reminder job, and removes the
// tracked record. Returns domain.ErrNotTracked for unknown or stale
// message identifiers, with no side effects.
//
// Mailbox and chat failures are best-effort: the store removal is
// authoritative, and a reminder job that missed its cancellation will
// observe the absence on its next re-check and terminate itself.
func (a *Acknowledger) Acknowledge(ctx context.Context, messageID, notificationText string) error {
	tm, ok := a.store.Get(messageID)
	if !ok {
		return domain.ErrNotTracked
	}

	if err := a.mailbox.ClearUnread(ctx, messageID); err != nil {
		log.Printf("[Ack] Clearing unread flag for %s failed: %v", messageID, err)
	}

	if tm.Delivered() {
		if err := a.chat.Strike(ctx, *tm.NotificationRef, notificationText); err != nil {
			log.Printf("[Ack] Striking notification for %s failed: %v", messageID, err)
		}
	}

	a.reminders.Cancel(messageID)
	a.store.Remove(messageID)

	if err := a.store.Save(); err != nil {
		return fmt.Errorf("acknowledge %s: persist state: %w", messageID, err)
	}
	return nil
}
