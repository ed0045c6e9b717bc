package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"mailwatch-bot/internal/notifier/domain"
)

const (
	firstReminderText = "📌 Reminder: you still have an unread message."
	finalReminderText = "📌 Final reminder: please mark that message as read."
)

// minResumeDelay is applied to persisted deadlines that are already past
// when the process resumes, so past-due reminders fire promptly instead of
// being dropped.
const minResumeDelay = time.Second

// Scheduler runs one reminder job per delivered-and-unacknowledged
// message. A job waits firstDelay, re-checks the store, sends a first
// reminder, waits finalDelay more, re-checks again, sends a final
// reminder, then terminates. There is no third escalation.
//
// The re-check before each send is the race-resolution rule: a job never
// sends after acknowledgment, because acknowledgment removes the message
// from the store and the job checks store membership, not a flag.
type Scheduler struct {
	store      TrackedStore
	chat       domain.ChatTransport
	firstDelay time.Duration
	finalDelay time.Duration

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewScheduler creates a reminder scheduler with the two escalation delays.
func NewScheduler(store TrackedStore, chat domain.ChatTransport, firstDelay, finalDelay time.Duration) *Scheduler {
	return &Scheduler{
		store:      store,
		chat:       chat,
		firstDelay: firstDelay,
		finalDelay: finalDelay,
		jobs:       make(map[string]context.CancelFunc),
	}
}

// StampDeadlines returns tm with the absolute reminder deadlines set from
// the scheduler's delays, so the schedule survives a restart. The caller
// writes the stamped record to the store itself: stamping must happen in
// the same store write that creates the record, never as a read-modify-
// write that could resurrect a concurrently acknowledged entry.
func (s *Scheduler) StampDeadlines(tm domain.TrackedMessage) domain.TrackedMessage {
	now := time.Now()
	tm.FirstReminderAt = unixSeconds(now.Add(s.firstDelay))
	tm.FinalReminderAt = unixSeconds(now.Add(s.firstDelay + s.finalDelay))
	return tm
}

// Schedule starts a reminder job for a freshly delivered message. It never
// writes the store. Scheduling an already-scheduled message is a no-op.
func (s *Scheduler) Schedule(ctx context.Context, messageID string) {
	s.start(ctx, messageID, s.firstDelay, s.finalDelay)
}

// Resume restarts jobs for every delivered tracked message with a
// persisted schedule, honoring the stored deadlines. Deadlines already in
// the past fire after a minimal delay; a message whose final deadline has
// passed gets no further escalation. Returns the number of resumed jobs.
func (s *Scheduler) Resume(ctx context.Context) int {
	now := time.Now()
	resumed := 0
	for id, tm := range s.store.All() {
		if !tm.Delivered() || tm.FinalReminderAt == 0 {
			continue
		}
		finalAt := fromUnixSeconds(tm.FinalReminderAt)
		if !finalAt.After(now) {
			continue
		}
		firstIn := time.Until(fromUnixSeconds(tm.FirstReminderAt))
		if firstIn < minResumeDelay {
			firstIn = minResumeDelay
		}
		finalIn := finalAt.Sub(now) - firstIn
		if finalIn < minResumeDelay {
			finalIn = minResumeDelay
		}
		s.start(ctx, id, firstIn, finalIn)
		resumed++
	}
	if resumed > 0 {
		log.Printf("[Reminder] Resumed %d reminder job(s) from persisted deadlines", resumed)
	}
	return resumed
}

// Cancel stops the reminder job for a message. Cancelling a job that has
// already finished, or was never started, is a no-op.
func (s *Scheduler) Cancel(messageID string) {
	s.mu.Lock()
	cancel, ok := s.jobs[messageID]
	delete(s.jobs, messageID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll stops every outstanding job and waits for them to exit. Used
// on shutdown and reset, before any state file is touched.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	for id, cancel := range s.jobs {
		delete(s.jobs, id)
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ActiveJobs returns the number of in-flight reminder jobs.
func (s *Scheduler) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) start(ctx context.Context, messageID string, firstIn, finalIn time.Duration) {
	s.mu.Lock()
	if _, running := s.jobs[messageID]; running {
		s.mu.Unlock()
		return
	}
	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[messageID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(jobCtx, messageID, firstIn, finalIn)
}

func (s *Scheduler) run(ctx context.Context, messageID string, firstIn, finalIn time.Duration) {
	defer s.wg.Done()
	defer s.forget(messageID)

	if !sleep(ctx, firstIn) {
		return
	}
	// Check-then-act: only send while the message is still pending.
	tm, ok := s.store.Get(messageID)
	if !ok || !tm.Delivered() {
		return
	}
	if err := s.chat.SendReminder(ctx, *tm.NotificationRef, firstReminderText); err != nil {
		log.Printf("[Reminder] First reminder for %s failed: %v", messageID, err)
	}

	if !sleep(ctx, finalIn) {
		return
	}
	tm, ok = s.store.Get(messageID)
	if !ok || !tm.Delivered() {
		return
	}
	if err := s.chat.SendReminder(ctx, *tm.NotificationRef, finalReminderText); err != nil {
		log.Printf("[Reminder] Final reminder for %s failed: %v", messageID, err)
	}
}

func (s *Scheduler) forget(messageID string) {
	s.mu.Lock()
	delete(s.jobs, messageID)
	s.mu.Unlock()
}

// sleep waits for d, returning false when the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}
