package app

import "errors"

// Invalid-input errors are returned before any state is touched.
var (
	ErrInvalidCadence    = errors.New("cadence must be a positive integer")
	ErrSelfPreference    = errors.New("a member cannot prefer to be paired with themselves")
	ErrInvalidIdentifier = errors.New("identifier must be non-zero")
	ErrInvalidOutcome    = errors.New("unknown meeting outcome")
	ErrPartnerNotActive  = errors.New("preferred partner is not an active member")
	ErrInvalidSchedule   = errors.New("invalid cron schedule")
)

// Conflict and state errors.
var (
	ErrCycleInProgress = errors.New("a cycle is already running for this tenant")
	ErrAlreadyMember   = errors.New("member is already active")
	ErrNotMember       = errors.New("user is not an active member")
	ErrFeedbackClosed  = errors.New("feedback window has closed")
	ErrNotReporter     = errors.New("feedback report belongs to another member")
)
