package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/notify"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"
	"pairing_bot/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Trigger identifies what started a cycle run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

const (
	defaultCommitAttempts = 3
	defaultRetryDelay     = 200 * time.Millisecond
)

// CycleReport summarizes a committed cycle.
type CycleReport struct {
	RunID             string         `json:"run_id"`
	TenantID          int64          `json:"tenant_id"`
	Cycle             int64          `json:"cycle"`
	Pairs             []pairing.Pair `json:"pairs"`
	Unpaired          []int64        `json:"unpaired"`
	PreferencesUsed   int            `json:"preferences_used"`
	FeedbackRequested int            `json:"feedback_requested"`
}

// TenantState is an operator view of everything stored for a tenant.
type TenantState struct {
	Tenant       *tenant.Tenant         `json:"tenant"`
	Members      []*member.Member       `json:"members"`
	CurrentPairs []*pairing.CurrentPair `json:"current_pairs"`
	Unpaired     []int64                `json:"unpaired"`
	Preferences  []*pairing.Preference  `json:"preferences"`
}

// CycleService runs the per-tenant cycle: feedback for the cycle that just
// ended, eligibility selection, matching, one atomic commit, announcement.
type CycleService struct {
	tenantRepo  tenant.Repository
	memberRepo  member.Repository
	pairingRepo pairing.Repository
	notifier    notify.Notifier
	feedback    *FeedbackService
	matcher     *pairing.Matcher
	locks       *TenantLocks
	metrics     metrics.Recorder
	log         *logrus.Entry
	now         func() time.Time

	commitAttempts int
	retryDelay     time.Duration
}

func NewCycleService(
	tr tenant.Repository,
	mr member.Repository,
	pr pairing.Repository,
	n notify.Notifier,
	feedback *FeedbackService,
	matcher *pairing.Matcher,
	locks *TenantLocks,
	rec metrics.Recorder,
	log *logrus.Entry,
) *CycleService {
	return &CycleService{
		tenantRepo:     tr,
		memberRepo:     mr,
		pairingRepo:    pr,
		notifier:       n,
		feedback:       feedback,
		matcher:        matcher,
		locks:          locks,
		metrics:        rec,
		log:            log.WithField("component", "cycle"),
		now:            time.Now,
		commitAttempts: defaultCommitAttempts,
		retryDelay:     defaultRetryDelay,
	}
}

// RunCycle forms and commits the next cycle for a tenant.
//
// A manual trigger fails fast with ErrCycleInProgress when the tenant is busy;
// a scheduled run waits for the tenant lock.
func (s *CycleService) RunCycle(ctx context.Context, tenantID int64, trigger Trigger) (*CycleReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "run_id": runID, "trigger": trigger})

	var unlock func()
	if trigger == TriggerManual {
		u, ok := s.locks.TryLock(tenantID)
		if !ok {
			s.metrics.RecordCycle(string(trigger), "conflict", time.Since(start).Seconds())
			logCtx.Warn("Cycle already running, manual trigger rejected")
			return nil, ErrCycleInProgress
		}
		unlock = u
	} else {
		unlock = s.locks.Lock(tenantID)
	}
	defer unlock()

	report, err := s.runLocked(ctx, tenantID, runID, logCtx)
	result := "success"
	switch {
	case errors.Is(err, pairing.ErrCycleConflict):
		result = "conflict"
	case err != nil:
		result = "failure"
	}
	s.metrics.RecordCycle(string(trigger), result, time.Since(start).Seconds())
	if err != nil {
		logCtx.WithError(err).Error("Cycle run failed")
		return nil, err
	}
	return report, nil
}

func (s *CycleService) runLocked(ctx context.Context, tenantID int64, runID string, logCtx *logrus.Entry) (*CycleReport, error) {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	report := &CycleReport{RunID: runID, TenantID: tenantID}

	// Feedback is solicited for the cycle that is ending before it is replaced.
	if t.Cycle > 0 && s.feedback != nil {
		requested, err := s.feedback.RequestFeedback(ctx, tenantID, t.Cycle)
		if err != nil {
			logCtx.WithError(err).Error("Failed to request feedback, continuing with matching")
		}
		report.FeedbackRequested = requested
	}

	next := t.Cycle + 1
	eligible, err := s.memberRepo.ListEligible(ctx, tenantID, next)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible members: %w", err)
	}
	prefs, err := s.pairingRepo.ListPreferences(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	history, err := s.pairingRepo.ListHistory(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	pool := make([]int64, 0, len(eligible))
	for _, m := range eligible {
		pool = append(pool, m.UserID)
	}
	res := s.matcher.Match(pairing.MatchInput{Cycle: next, Pool: pool, Preferences: prefs, History: history})

	commit := pairing.CycleCommit{
		TenantID:            tenantID,
		PreviousCycle:       t.Cycle,
		Cycle:               next,
		Pairs:               res.Pairs,
		Unpaired:            res.Unpaired,
		ConsumedPreferences: res.ConsumedPreferenceIDs(),
		CreatedAt:           s.now(),
	}
	if _, err := s.commitWithRetry(ctx, commit, logCtx); err != nil {
		return nil, err
	}

	report.Cycle = next
	report.Pairs = res.Pairs
	report.Unpaired = res.Unpaired
	report.PreferencesUsed = len(res.ConsumedPreferences)

	s.metrics.AddPairsFormed(len(res.Pairs))
	s.metrics.SetUnpaired(len(res.Unpaired))
	logCtx.WithFields(logrus.Fields{
		"cycle":            next,
		"eligible":         len(pool),
		"pairs":            len(res.Pairs),
		"unpaired":         len(res.Unpaired),
		"preferences_used": report.PreferencesUsed,
	}).Info("Cycle committed")

	// Announce only what is persisted.
	all, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load member names for announcement")
	}
	text := pairsAnnouncement(next, res.Pairs, res.Unpaired, namesOf(all))
	if err := s.notifier.AnnounceToTenant(ctx, tenantID, text); err != nil {
		s.metrics.IncNotifierFailure("announce")
		logCtx.WithError(err).Warn("Failed to announce pairs")
	}
	return report, nil
}

// commitWithRetry applies the same commit up to commitAttempts times. A lost
// compare-and-set is returned at once and never retried.
func (s *CycleService) commitWithRetry(ctx context.Context, c pairing.CycleCommit, logCtx *logrus.Entry) ([]*pairing.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= s.commitAttempts; attempt++ {
		records, err := s.pairingRepo.CommitCycle(ctx, c)
		if err == nil {
			return records, nil
		}
		if errors.Is(err, pairing.ErrCycleConflict) || errors.Is(err, tenant.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		logCtx.WithError(err).WithField("attempt", attempt).Warn("Cycle commit failed")
		if attempt == s.commitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("failed to commit cycle %d after %d attempts: %w", c.Cycle, s.commitAttempts, lastErr)
}

// SendReminders nudges both members of every current pair. Returns the number
// of messages delivered.
func (s *CycleService) SendReminders(ctx context.Context, tenantID int64) (int, error) {
	pairs, err := s.pairingRepo.ListCurrentPairs(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to load current pairs: %w", err)
	}
	all, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to load members: %w", err)
	}
	n := namesOf(all)
	logCtx := s.log.WithField("tenant_id", tenantID)

	sent := 0
	for _, cp := range pairs {
		for _, side := range [][2]int64{{cp.UserA, cp.UserB}, {cp.UserB, cp.UserA}} {
			if err := s.notifier.DirectMessage(ctx, side[0], reminderText(n.of(side[1]))); err != nil {
				s.metrics.IncNotifierFailure("dm")
				logCtx.WithError(err).WithField("user_id", side[0]).Warn("Failed to send reminder")
				continue
			}
			sent++
		}
	}
	logCtx.WithField("sent", sent).Info("Reminders sent")
	return sent, nil
}

// State returns the stored state of a tenant without recomputing anything.
func (s *CycleService) State(ctx context.Context, tenantID int64) (*TenantState, error) {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	members, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	pairs, err := s.pairingRepo.ListCurrentPairs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current pairs: %w", err)
	}
	unpaired, err := s.pairingRepo.ListUnpaired(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unpaired pool: %w", err)
	}
	prefs, err := s.pairingRepo.ListPreferences(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &TenantState{Tenant: t, Members: members, CurrentPairs: pairs, Unpaired: unpaired, Preferences: prefs}, nil
}
