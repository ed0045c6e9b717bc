package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwatch-bot/internal/notifier/domain"
)

func TestScheduler_TwoRemindersThenTerminates(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewTracked("ref-1", time.Now()))

	s := NewScheduler(store, chat, 20*time.Millisecond, 30*time.Millisecond)
	s.Schedule(context.Background(), "m1")

	require.Eventually(t, func() bool { return chat.reminderCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, firstReminderText, chat.reminders[0].Text)
	assert.Equal(t, finalReminderText, chat.reminders[1].Text)
	assert.Equal(t, "ref-1", chat.reminders[0].Ref)

	// No third escalation.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 2, chat.reminderCount())
	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_AcknowledgedBeforeFirstWaitSendsNothing(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewTracked("ref-1", time.Now()))

	s := NewScheduler(store, chat, 30*time.Millisecond, 30*time.Millisecond)
	s.Schedule(context.Background(), "m1")
	store.Remove("m1")

	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, chat.reminderCount())
}

func TestScheduler_AcknowledgedBetweenRemindersStopsEscalation(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewTracked("ref-1", time.Now()))

	s := NewScheduler(store, chat, 20*time.Millisecond, 100*time.Millisecond)
	s.Schedule(context.Background(), "m1")

	require.Eventually(t, func() bool { return chat.reminderCount() == 1 }, time.Second, 5*time.Millisecond)
	store.Remove("m1")

	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, chat.reminderCount())
}

func TestScheduler_SuppressedMessageNeverEscalates(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewSuppressed(time.Now()))

	s := NewScheduler(store, chat, 10*time.Millisecond, 10*time.Millisecond)
	s.Schedule(context.Background(), "m1")

	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, chat.reminderCount())
}

func TestScheduler_StampDeadlines(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	tm := s.StampDeadlines(domain.NewTracked("ref-1", time.Now()))

	assert.Greater(t, tm.FirstReminderAt, float64(0))
	assert.Greater(t, tm.FinalReminderAt, tm.FirstReminderAt)
}

func TestScheduler_ScheduleNeverResurrectsAcknowledged(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()

	s := NewScheduler(store, chat, 10*time.Millisecond, 10*time.Millisecond)
	defer s.CancelAll()

	store.Put("m1", s.StampDeadlines(domain.NewTracked("ref-1", time.Now())))
	// Acknowledgment lands between record creation and job start.
	store.Remove("m1")
	s.Schedule(context.Background(), "m1")

	_, ok := store.Get("m1")
	assert.False(t, ok, "a removed entry must stay removed")
	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, chat.reminderCount())
}

func TestScheduler_CancelIsIdempotent(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewTracked("ref-1", time.Now()))

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	s.Schedule(context.Background(), "m1")

	s.Cancel("m1")
	s.Cancel("m1")
	s.Cancel("never-scheduled")

	require.Eventually(t, func() bool { return s.ActiveJobs() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, chat.reminderCount())
}

func TestScheduler_ScheduleTwiceStartsOneJob(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	store.Put("m1", domain.NewTracked("ref-1", time.Now()))

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	defer s.CancelAll()
	s.Schedule(context.Background(), "m1")
	s.Schedule(context.Background(), "m1")

	assert.Equal(t, 1, s.ActiveJobs())
}

func TestScheduler_ResumeHonorsPersistedDeadlines(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	now := time.Now()

	pending := domain.NewTracked("ref-1", now)
	pending.FirstReminderAt = unixSeconds(now.Add(time.Hour))
	pending.FinalReminderAt = unixSeconds(now.Add(2 * time.Hour))
	store.Put("live", pending)

	expired := domain.NewTracked("ref-2", now.Add(-time.Hour))
	expired.FirstReminderAt = unixSeconds(now.Add(-50 * time.Minute))
	expired.FinalReminderAt = unixSeconds(now.Add(-45 * time.Minute))
	store.Put("expired", expired)

	store.Put("suppressed", domain.NewSuppressed(now))
	store.Put("unscheduled", domain.NewTracked("ref-3", now))

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	defer s.CancelAll()

	resumed := s.Resume(context.Background())
	assert.Equal(t, 1, resumed, "only the live schedule is resumed")
	assert.Equal(t, 1, s.ActiveJobs())
}

func TestScheduler_ResumePastDueFiresPromptly(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	now := time.Now()

	tm := domain.NewTracked("ref-1", now)
	tm.FirstReminderAt = unixSeconds(now.Add(-time.Minute))
	tm.FinalReminderAt = unixSeconds(now.Add(time.Hour))
	store.Put("m1", tm)

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	defer s.CancelAll()
	require.Equal(t, 1, s.Resume(context.Background()))

	require.Eventually(t, func() bool { return chat.reminderCount() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_CancelAllWaitsForJobs(t *testing.T) {
	store := newMemStore(0)
	chat := newFakeChat()
	for _, id := range []string{"a", "b", "c"} {
		store.Put(id, domain.NewTracked("ref-"+id, time.Now()))
	}

	s := NewScheduler(store, chat, time.Hour, time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		s.Schedule(context.Background(), id)
	}
	require.Equal(t, 3, s.ActiveJobs())

	s.CancelAll()
	assert.Equal(t, 0, s.ActiveJobs())
	assert.Equal(t, 0, chat.reminderCount())
}
