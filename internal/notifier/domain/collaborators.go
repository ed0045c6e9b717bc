package domain

import "context"

// MailboxClient is the mailbox provider the poller and acknowledgment
// handler talk to. Implementations own their timeouts and retry policy;
// callers treat every error as transient unless it is ErrNotAuthorized.
type MailboxClient interface {
	// ListUnread returns the identifiers of unread messages in folder.
	ListUnread(ctx context.Context, folder string) ([]string, error)

	// GetMetadata fetches sender, subject and internal timestamp.
	GetMetadata(ctx context.Context, messageID string) (*MessageMeta, error)

	// GetBody returns the best-effort plain-text body, falling back to the
	// provider's short summary when no text/plain part exists.
	GetBody(ctx context.Context, messageID string) (string, error)

	// ClearUnread removes the unread flag from a message.
	ClearUnread(ctx context.Context, messageID string) error
}

// ChatTransport delivers notifications to the bound chat destination.
type ChatTransport interface {
	// Send delivers a notification carrying a mark-read action for
	// messageID and returns an opaque reference to the sent notification.
	Send(ctx context.Context, text, messageID string) (string, error)

	// Strike visually resolves a previously sent notification.
	Strike(ctx context.Context, ref, originalText string) error

	// SendReminder sends an escalation message referencing the original
	// notification.
	SendReminder(ctx context.Context, ref, text string) error
}
