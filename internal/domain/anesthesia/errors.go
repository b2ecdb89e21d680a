package anesthesia

import "errors"

// Business-rule failures are typed so handlers can map them to specific
// user-facing responses instead of a generic error.
var (
	ErrNoItemsToCommit   = errors.New("no items to commit")
	ErrSignatureRequired = errors.New("signature required for controlled items")
	ErrCommitNotFound    = errors.New("commit not found")
	ErrAlreadyRolledBack = errors.New("commit already rolled back")
	ErrUsageNotFound     = errors.New("usage record not found")
	ErrRecordNotFound    = errors.New("anesthesia record not found")
	ErrEventNotFound     = errors.New("medication event not found")
	ErrReasonRequired    = errors.New("reason is required")
)
