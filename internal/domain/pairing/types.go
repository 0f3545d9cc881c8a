// internal/domain/pairing/types.go
package pairing

import (
	"database/sql"
	"time"
)

// Outcome is the reported result of a paired meeting.
type Outcome string

const (
	OutcomeUnset     Outcome = "unset" // no response yet, or the prompt expired
	OutcomeHappened  Outcome = "happened"
	OutcomeScheduled Outcome = "scheduled" // deferred, not yet resolved
	OutcomeMissed    Outcome = "missed"
)

// ResponseOutcomes are the choices offered to a member in a feedback prompt.
var ResponseOutcomes = []Outcome{OutcomeHappened, OutcomeScheduled, OutcomeMissed}

// ParseOutcome accepts only outcomes a member can answer with.
func ParseOutcome(s string) (Outcome, bool) {
	for _, o := range ResponseOutcomes {
		if string(o) == s {
			return o, true
		}
	}
	return "", false
}

// Contradicts reports whether two answers about the same meeting disagree on
// whether it took place.
func Contradicts(a, b Outcome) bool {
	return (a == OutcomeHappened && b == OutcomeMissed) || (a == OutcomeMissed && b == OutcomeHappened)
}

// Pair is an unordered pair of user ids.
type Pair struct {
	A int64
	B int64
}

// Has reports whether userID is one side of the pair.
func (p Pair) Has(userID int64) bool {
	return p.A == userID || p.B == userID
}

// Partner returns the other side of the pair, or 0 if userID is not in it.
func (p Pair) Partner(userID int64) int64 {
	switch userID {
	case p.A:
		return p.B
	case p.B:
		return p.A
	}
	return 0
}

type pairKey struct{ lo, hi int64 }

func keyOf(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Record is one realized pair in one cycle. Append-only; only Outcome changes.
// Corresponds to the 'pairing_records' table.
type Record struct {
	ID        int64
	TenantID  int64
	UserA     int64
	UserB     int64
	Cycle     int64
	Outcome   Outcome
	CreatedAt time.Time
}

// Pair returns the record's members as a Pair.
func (r *Record) Pair() Pair {
	return Pair{A: r.UserA, B: r.UserB}
}

// Preference is a one-shot, unordered wish of two members to be matched.
type Preference struct {
	ID        int64
	TenantID  int64
	UserA     int64
	UserB     int64
	CreatedAt time.Time
}

// Pair returns the preference endpoints as a Pair.
func (p *Preference) Pair() Pair {
	return Pair{A: p.UserA, B: p.UserB}
}

// CurrentPair is a row of the tenant's current pair set. RecordID is zero for
// pairs formed by an on-demand rematch, which are not part of cycle history.
type CurrentPair struct {
	TenantID  int64
	UserA     int64
	UserB     int64
	Cycle     int64
	RecordID  int64
	CreatedAt time.Time
}

// Pair returns the current pair's members as a Pair.
func (c *CurrentPair) Pair() Pair {
	return Pair{A: c.UserA, B: c.UserB}
}

// ReportStatus tracks one side's feedback prompt.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportAnswered ReportStatus = "answered"
	ReportExpired  ReportStatus = "expired"
)

// FeedbackReport is what ReporterID said about their meeting with SubjectID.
// Both sides of a pair get their own report; they are never merged.
// Corresponds to the 'feedback_reports' table.
type FeedbackReport struct {
	ID          int64
	RecordID    int64
	TenantID    int64
	Cycle       int64
	ReporterID  int64
	SubjectID   int64
	Outcome     Outcome
	Status      ReportStatus
	PromptedAt  time.Time
	ExpiresAt   time.Time
	RespondedAt sql.NullTime
}

// Open reports whether a response can still be accepted at now.
func (r *FeedbackReport) Open(now time.Time) bool {
	return r.Status != ReportExpired && now.Before(r.ExpiresAt)
}
