package usecase

import (
	"context"
	"errors"
	"sync"

	"mailwatch-bot/pkg/gmail"
)

// ErrNoPendingFlow indicates an /auth code arrived from a user who never
// started the authorization flow.
var ErrNoPendingFlow = errors.New("no pending authorization flow")

// Flow drives the installed-app OAuth exchange over chat: an operator
// requests a consent URL, opens it in a browser, and replies with the
// authorization code. Pending flows are keyed by the requesting user so
// concurrent operators cannot complete each other's exchange.
type Flow struct {
	gmail *gmail.Service

	mu      sync.Mutex
	pending map[int64]struct{}
}

// NewFlow creates the authorization flow over the Gmail service.
func NewFlow(g *gmail.Service) *Flow {
	return &Flow{
		gmail:   g,
		pending: make(map[int64]struct{}),
	}
}

// Begin registers a pending flow for userID and returns the consent URL.
func (f *Flow) Begin(userID int64) string {
	f.mu.Lock()
	f.pending[userID] = struct{}{}
	f.mu.Unlock()
	return f.gmail.AuthCodeURL()
}

// Exchange completes the pending flow for userID with the authorization
// code, persisting the credential on success.
func (f *Flow) Exchange(ctx context.Context, userID int64, code string) error {
	f.mu.Lock()
	_, ok := f.pending[userID]
	if ok {
		delete(f.pending, userID)
	}
	f.mu.Unlock()

	if !ok {
		return ErrNoPendingFlow
	}
	return f.gmail.Exchange(ctx, code)
}

// Authorized reports whether a stored credential exists.
func (f *Flow) Authorized() bool {
	return f.gmail.Authorized()
}

// Reset drops the stored credential and any pending flows.
func (f *Flow) Reset() error {
	f.mu.Lock()
	f.pending = make(map[int64]struct{})
	f.mu.Unlock()
	return f.gmail.ResetCredentials()
}
