package pairing

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every Repository implementation.
var (
	ErrRecordNotFound     = errors.New("pairing record not found")
	ErrPairNotFound       = errors.New("member has no current pair")
	ErrPreferenceNotFound = errors.New("preference not found")
	ErrPreferenceExists   = errors.New("preference already exists")
	ErrReportNotFound     = errors.New("feedback report not found")
	// ErrCycleConflict means the tenant's cycle counter moved since the snapshot was read.
	ErrCycleConflict = errors.New("cycle counter changed concurrently")
)

// CycleCommit is everything one matching pass writes. It is applied as a single
// transaction: counter compare-and-set, history append, current set and unpaired
// pool replacement, and removal of the preferences the pass satisfied.
type CycleCommit struct {
	TenantID            int64
	PreviousCycle       int64
	Cycle               int64
	Pairs               []Pair
	Unpaired            []int64
	ConsumedPreferences []int64
	CreatedAt           time.Time
}

// RematchCommit pairs UserID with PartnerID outside a scheduled cycle, or puts
// UserID into the unpaired pool when PartnerID is zero.
type RematchCommit struct {
	TenantID     int64
	Cycle        int64
	UserID       int64
	PartnerID    int64
	PreferenceID int64
	CreatedAt    time.Time
}

// Departure describes what RemoveMember dissolved.
type Departure struct {
	PartnerID          int64 // zero when the member held no current pair
	WasUnpaired        bool
	RemovedPreferences int
}

// Repository defines persistence for preferences, history, the current pair set,
// the unpaired pool and feedback reports.
type Repository interface {
	AddPreference(ctx context.Context, p *Preference) error
	FindPreference(ctx context.Context, tenantID, a, b int64) (*Preference, error)
	// ListPreferences returns the tenant's edges in creation order.
	ListPreferences(ctx context.Context, tenantID int64) ([]*Preference, error)

	ListHistory(ctx context.Context, tenantID int64) ([]*Record, error)
	// ListHistoryForMember returns the member's records, newest cycle first.
	ListHistoryForMember(ctx context.Context, tenantID, userID int64) ([]*Record, error)
	GetRecord(ctx context.Context, id int64) (*Record, error)
	ListRecordsForCycle(ctx context.Context, tenantID, cycle int64) ([]*Record, error)

	ListCurrentPairs(ctx context.Context, tenantID int64) ([]*CurrentPair, error)
	GetCurrentPair(ctx context.Context, tenantID, userID int64) (*CurrentPair, error)
	// ListUnpaired returns the pool in insertion order.
	ListUnpaired(ctx context.Context, tenantID int64) ([]int64, error)

	CommitCycle(ctx context.Context, c CycleCommit) ([]*Record, error)
	// CommitRematch returns the new current pair, or nil when the user was placed in the pool.
	CommitRematch(ctx context.Context, c RematchCommit) (*CurrentPair, error)
	// RemoveMember atomically drops the member's preferences and pool entry,
	// dissolves their current pair and marks the member as left.
	RemoveMember(ctx context.Context, tenantID, userID int64) (*Departure, error)

	// CreateFeedbackReports inserts reports, skipping (record, reporter) pairs that already exist.
	// IDs are filled in on the created reports.
	CreateFeedbackReports(ctx context.Context, reports []*FeedbackReport) ([]*FeedbackReport, error)
	GetFeedbackReport(ctx context.Context, id int64) (*FeedbackReport, error)
	FindFeedbackReport(ctx context.Context, recordID, reporterID int64) (*FeedbackReport, error)
	// ResolveFeedbackReport stores the report's outcome and status and copies the
	// outcome onto the pairing record in the same transaction.
	ResolveFeedbackReport(ctx context.Context, r *FeedbackReport) error
	// ListReportsAbout returns reports of any status whose subject is userID,
	// newest cycle first, at most limit rows.
	ListReportsAbout(ctx context.Context, tenantID, userID int64, limit int) ([]*FeedbackReport, error)
	// ExpireFeedbackReports marks pending reports past their deadline as expired with outcome unset.
	ExpireFeedbackReports(ctx context.Context, now time.Time) ([]*FeedbackReport, error)

	// ResetTenant clears history, current pairs, preferences, pool and feedback and
	// zeroes the cycle counter; members are deleted too when includeMembers is set,
	// otherwise everyone is opted back in.
	ResetTenant(ctx context.Context, tenantID int64, includeMembers bool) error
}
