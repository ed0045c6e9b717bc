package domain

import "errors"

var (
	// ErrNotTracked indicates an acknowledge for a message that is not in
	// the store (already acknowledged, or never tracked). Benign no-op.
	ErrNotTracked = errors.New("message not tracked")

	// ErrNotAuthorized indicates no valid mailbox credential. Fatal to the
	// poll loop; resolved by re-running the authorization flow.
	ErrNotAuthorized = errors.New("not authorized")
)
