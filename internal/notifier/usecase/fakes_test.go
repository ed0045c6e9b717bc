package usecase

import (
	"context"
	"fmt"
	"sync"

	"mailwatch-bot/internal/notifier/domain"
)

// fakeMailbox is an in-memory MailboxClient for tests.
type fakeMailbox struct {
	mu      sync.Mutex
	unread  []string
	metas   map[string]*domain.MessageMeta
	bodies  map[string]string
	cleared []string

	listErr  error
	metaErr  error
	bodyErr  error
	clearErr error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		metas:  make(map[string]*domain.MessageMeta),
		bodies: make(map[string]string),
	}
}

func (f *fakeMailbox) addMessage(id, sender, subject string, ts int64, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = append(f.unread, id)
	f.metas[id] = &domain.MessageMeta{ID: id, Sender: sender, Subject: subject, InternalTS: ts}
	f.bodies[id] = body
}

func (f *fakeMailbox) ListUnread(ctx context.Context, folder string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, len(f.unread))
	copy(out, f.unread)
	return out, nil
}

func (f *fakeMailbox) GetMetadata(ctx context.Context, messageID string) (*domain.MessageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	meta, ok := f.metas[messageID]
	if !ok {
		return nil, fmt.Errorf("unknown message %s", messageID)
	}
	return meta, nil
}

func (f *fakeMailbox) GetBody(ctx context.Context, messageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bodyErr != nil {
		return "", f.bodyErr
	}
	return f.bodies[messageID], nil
}

func (f *fakeMailbox) ClearUnread(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, messageID)
	return nil
}

func (f *fakeMailbox) clearedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cleared))
	copy(out, f.cleared)
	return out
}

type sentNotification struct {
	Text      string
	MessageID string
	Ref       string
}

type sentReminder struct {
	Ref  string
	Text string
}

// fakeChat is an in-memory ChatTransport recording every delivery.
type fakeChat struct {
	mu        sync.Mutex
	sent      []sentNotification
	reminders []sentReminder
	struck    []string
	nextRef   int

	// failAfter makes Send fail once this many sends have succeeded;
	// negative means never fail.
	failAfter int
}

func newFakeChat() *fakeChat {
	return &fakeChat{failAfter: -1}
}

func (f *fakeChat) Send(ctx context.Context, text, messageID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		return "", fmt.Errorf("transport down")
	}
	f.nextRef++
	ref := fmt.Sprintf("ref-%d", f.nextRef)
	f.sent = append(f.sent, sentNotification{Text: text, MessageID: messageID, Ref: ref})
	return ref, nil
}

func (f *fakeChat) Strike(ctx context.Context, ref, originalText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.struck = append(f.struck, ref)
	return nil
}

func (f *fakeChat) SendReminder(ctx context.Context, ref, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = append(f.reminders, sentReminder{Ref: ref, Text: text})
	return nil
}

func (f *fakeChat) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChat) reminderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reminders)
}

func (f *fakeChat) struckRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.struck))
	copy(out, f.struck)
	return out
}

// memStore is an in-memory TrackedStore.
type memStore struct {
	mu      sync.Mutex
	cursor  int64
	tracked map[string]domain.TrackedMessage
	saves   int
	saveErr error
}

func newMemStore(cursor int64) *memStore {
	return &memStore{cursor: cursor, tracked: make(map[string]domain.TrackedMessage)}
}

func (s *memStore) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *memStore) SetCursor(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts > s.cursor {
		s.cursor = ts
	}
}

func (s *memStore) Get(messageID string) (domain.TrackedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.tracked[messageID]
	return tm, ok
}

func (s *memStore) Put(messageID string, tm domain.TrackedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[messageID] = tm
}

func (s *memStore) Remove(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracked[messageID]
	delete(s.tracked, messageID)
	return ok
}

func (s *memStore) All() map[string]domain.TrackedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.TrackedMessage, len(s.tracked))
	for id, tm := range s.tracked {
		out[id] = tm
	}
	return out
}

func (s *memStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return s.saveErr
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// staticAllowList is a fixed allow-list for matcher construction in tests.
type staticAllowList []string

func (s staticAllowList) Entries() []string { return s }
