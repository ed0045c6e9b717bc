package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"mailwatch-bot/internal/notifier/domain"
)

// Poller runs the fixed-interval poll cycle: list unread messages in the
// monitored folder, classify each against the cursor and the allow-list,
// deliver the allowed ones in ascending timestamp order, and persist the
// cursor and tracked-message store at the cycle boundary.
type Poller struct {
	mailbox   domain.MailboxClient
	chat      domain.ChatTransport
	store     TrackedStore
	matcher   *Matcher
	reminders *Scheduler
	interval  time.Duration
	folder    string
}

// NewPoller wires a poller over the given collaborators.
func NewPoller(mailbox domain.MailboxClient, chat domain.ChatTransport, store TrackedStore, matcher *Matcher, reminders *Scheduler, interval time.Duration, folder string) *Poller {
	return &Poller{
		mailbox:   mailbox,
		chat:      chat,
		store:     store,
		matcher:   matcher,
		reminders: reminders,
		interval:  interval,
		folder:    folder,
	}
}

// Run polls until ctx is cancelled. Cycles are independent: a failed cycle
// is logged and the next one runs at its scheduled time. The only fatal
// condition is a missing credential, which stops the loop until the
// operator re-authorizes.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[Poller] Starting poll loop (interval: %s, folder: %s)", p.interval, p.folder)

	if err := p.pollOnce(ctx); err != nil {
		if errors.Is(err, domain.ErrNotAuthorized) {
			log.Printf("[Poller] Not authorized, stopping poll loop: %v", err)
			return
		}
		log.Printf("[Poller] Cycle failed: %v", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Poller] Poll loop stopped")
			return
		case <-ticker.C:
		}

		if err := p.pollOnce(ctx); err != nil {
			if errors.Is(err, domain.ErrNotAuthorized) {
				log.Printf("[Poller] Not authorized, stopping poll loop: %v", err)
				return
			}
			log.Printf("[Poller] Cycle failed: %v", err)
		}
	}
}

// pollOnce executes a single poll cycle. On a mid-cycle failure the store
// and cursor are persisted covering only the messages already processed,
// so the remainder is re-evaluated on the next tick.
func (p *Poller) pollOnce(ctx context.Context) error {
	cycle := uuid.NewString()[:8]

	ids, err := p.mailbox.ListUnread(ctx, p.folder)
	if err != nil {
		return fmt.Errorf("cycle %s: list unread: %w", cycle, err)
	}

	metas := make([]*domain.MessageMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := p.mailbox.GetMetadata(ctx, id)
		if err != nil {
			return fmt.Errorf("cycle %s: metadata for %s: %w", cycle, id, err)
		}
		metas = append(metas, meta)
	}

	// Deliver in ascending internal-timestamp order so the recipient sees
	// multiple notifications in chronological mail order.
	sort.Slice(metas, func(i, j int) bool { return metas[i].InternalTS < metas[j].InternalTS })

	startCursor := p.store.Cursor()
	processedMax := startCursor
	delivered := 0

	for _, m := range metas {
		// Already evaluated in a prior cycle: still advances the cursor.
		if m.InternalTS <= startCursor {
			processedMax = maxTS(processedMax, m.InternalTS)
			continue
		}

		// Exactly-once guard: never deliver twice for the same identifier.
		if _, tracked := p.store.Get(m.ID); tracked {
			processedMax = maxTS(processedMax, m.InternalTS)
			continue
		}

		if !p.matcher.Permits(m.Sender) {
			// Blocked senders are recorded (without a notification) so the
			// message is never re-examined, and never escalates.
			p.store.Put(m.ID, domain.NewSuppressed(time.Now()))
			processedMax = maxTS(processedMax, m.InternalTS)
			continue
		}

		body, err := p.mailbox.GetBody(ctx, m.ID)
		if err != nil {
			p.persist(cycle, processedMax)
			return fmt.Errorf("cycle %s: body for %s: %w", cycle, m.ID, err)
		}

		ref, err := p.chat.Send(ctx, formatNotification(m, body), m.ID)
		if err != nil {
			p.persist(cycle, processedMax)
			return fmt.Errorf("cycle %s: deliver %s: %w", cycle, m.ID, err)
		}

		p.store.Put(m.ID, p.reminders.StampDeadlines(domain.NewTracked(ref, time.Now())))
		p.reminders.Schedule(ctx, m.ID)
		processedMax = maxTS(processedMax, m.InternalTS)
		delivered++
	}

	if delivered > 0 {
		log.Printf("[Poller] Cycle %s delivered %d notification(s)", cycle, delivered)
	}
	p.store.SetCursor(processedMax)
	if err := p.store.Save(); err != nil {
		return fmt.Errorf("cycle %s: persist state: %w", cycle, err)
	}
	return nil
}

// persist flushes cursor and store progress before abandoning a cycle.
func (p *Poller) persist(cycle string, cursor int64) {
	p.store.SetCursor(cursor)
	if err := p.store.Save(); err != nil {
		log.Printf("[Poller] Cycle %s: persisting partial progress failed: %v", cycle, err)
	}
}

func formatNotification(m *domain.MessageMeta, body string) string {
	return fmt.Sprintf("📧 From: %s\n📝 Subject: %s\n\n%s\n%s",
		m.Sender, m.Subject, body, formatTS(m.InternalTS))
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).Format("15:04 02.01")
}

func maxTS(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
