package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/notify"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FeedbackConfig bounds the feedback subsystem.
type FeedbackConfig struct {
	Timeout            time.Duration // how long a prompt accepts responses
	AttritionThreshold int           // consecutive missed reports that remove a member
	PromptConcurrency  int
}

// FeedbackService solicits meeting outcomes, records responses and applies
// the attrition rule.
type FeedbackService struct {
	memberRepo  member.Repository
	pairingRepo pairing.Repository
	notifier    notify.Notifier
	membership  *MembershipService
	metrics     metrics.Recorder
	cfg         FeedbackConfig
	log         *logrus.Entry
	now         func() time.Time
}

func NewFeedbackService(
	mr member.Repository,
	pr pairing.Repository,
	n notify.Notifier,
	membership *MembershipService,
	rec metrics.Recorder,
	cfg FeedbackConfig,
	log *logrus.Entry,
) *FeedbackService {
	if cfg.PromptConcurrency <= 0 {
		cfg.PromptConcurrency = 1
	}
	return &FeedbackService{
		memberRepo:  mr,
		pairingRepo: pr,
		notifier:    n,
		membership:  membership,
		metrics:     rec,
		cfg:         cfg,
		log:         log.WithField("component", "feedback"),
		now:         time.Now,
	}
}

// RequestFeedback opens one report per side for every pair of the given cycle
// and prompts the reporters concurrently. Reports that already exist are not
// prompted again. Returns the number of prompts attempted.
func (s *FeedbackService) RequestFeedback(ctx context.Context, tenantID, cycle int64) (int, error) {
	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "cycle": cycle})

	records, err := s.pairingRepo.ListRecordsForCycle(ctx, tenantID, cycle)
	if err != nil {
		return 0, fmt.Errorf("failed to list records for cycle %d: %w", cycle, err)
	}
	if len(records) == 0 {
		logCtx.Debug("No pairs to request feedback for")
		return 0, nil
	}

	now := s.now()
	reports := make([]*pairing.FeedbackReport, 0, len(records)*2)
	for _, r := range records {
		for _, side := range [][2]int64{{r.UserA, r.UserB}, {r.UserB, r.UserA}} {
			reports = append(reports, &pairing.FeedbackReport{
				RecordID:   r.ID,
				TenantID:   tenantID,
				Cycle:      cycle,
				ReporterID: side[0],
				SubjectID:  side[1],
				Outcome:    pairing.OutcomeUnset,
				Status:     pairing.ReportPending,
				PromptedAt: now,
				ExpiresAt:  now.Add(s.cfg.Timeout),
			})
		}
	}
	created, err := s.pairingRepo.CreateFeedbackReports(ctx, reports)
	if err != nil {
		return 0, fmt.Errorf("failed to create feedback reports: %w", err)
	}

	all, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to load member names for feedback prompts")
	}

	if err := s.sendPrompts(ctx, tenantID, cycle, created, namesOf(all)); err != nil {
		// Undelivered reports stay pending and expire like unanswered ones.
		logCtx.WithError(err).Warn("Failed to deliver feedback prompts")
	}

	logCtx.WithField("prompts", len(created)).Info("Feedback requested")
	return len(created), nil
}

// sendPrompts delivers every prompt and returns the first delivery error.
// A failed delivery does not stop the others.
func (s *FeedbackService) sendPrompts(ctx context.Context, tenantID, cycle int64, reports []*pairing.FeedbackReport, n names) error {
	var g errgroup.Group
	g.SetLimit(s.cfg.PromptConcurrency)
	for _, rep := range reports {
		g.Go(func() error {
			prompt := notify.FeedbackPrompt{
				ReportID:    rep.ID,
				TenantID:    tenantID,
				Cycle:       cycle,
				PartnerName: n.of(rep.SubjectID),
				Options:     pairing.ResponseOutcomes,
			}
			if err := s.notifier.PromptFeedback(ctx, rep.ReporterID, prompt); err != nil {
				s.metrics.IncNotifierFailure("prompt")
				return fmt.Errorf("failed to prompt user %d: %w", rep.ReporterID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RecordResponse stores one side's answer. Answers are accepted until the
// report expires and may be changed while it is open. A "missed" answer runs
// the attrition check on the member being reported about.
func (s *FeedbackService) RecordResponse(ctx context.Context, reportID, responderID int64, answer string) (*pairing.FeedbackReport, error) {
	outcome, ok := pairing.ParseOutcome(answer)
	if !ok {
		return nil, ErrInvalidOutcome
	}

	rep, err := s.pairingRepo.GetFeedbackReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback report %d: %w", reportID, err)
	}
	if rep.ReporterID != responderID {
		return nil, ErrNotReporter
	}
	now := s.now()
	if !rep.Open(now) {
		return nil, ErrFeedbackClosed
	}

	logCtx := s.log.WithFields(logrus.Fields{
		"tenant_id":  rep.TenantID,
		"cycle":      rep.Cycle,
		"report_id":  rep.ID,
		"user_id":    rep.ReporterID,
		"subject_id": rep.SubjectID,
		"outcome":    outcome,
	})

	rep.Outcome = outcome
	rep.Status = pairing.ReportAnswered
	rep.RespondedAt = sql.NullTime{Time: now, Valid: true}
	if err := s.pairingRepo.ResolveFeedbackReport(ctx, rep); err != nil {
		logCtx.WithError(err).Error("Failed to store feedback response")
		return nil, fmt.Errorf("failed to store feedback response: %w", err)
	}
	s.metrics.IncFeedbackResponse(string(outcome))
	logCtx.Info("Feedback recorded")

	other, err := s.pairingRepo.FindFeedbackReport(ctx, rep.RecordID, rep.SubjectID)
	switch {
	case err == nil:
		if other.Status == pairing.ReportAnswered && pairing.Contradicts(outcome, other.Outcome) {
			// Both reports are kept as given.
			s.metrics.IncFeedbackMismatch()
			logCtx.WithField("partner_outcome", other.Outcome).Warn("Partners disagree on whether the meeting happened")
		}
	case !errors.Is(err, pairing.ErrReportNotFound):
		logCtx.WithError(err).Warn("Failed to load partner's feedback report")
	}

	if outcome == pairing.OutcomeMissed {
		if err := s.checkAttrition(ctx, rep.TenantID, rep.SubjectID); err != nil {
			logCtx.WithError(err).Error("Attrition check failed")
		}
	}
	return rep, nil
}

// ConsecutiveMisses counts the leading run of "missed" in reports ordered
// newest first.
func ConsecutiveMisses(reports []*pairing.FeedbackReport) int {
	n := 0
	for _, r := range reports {
		if r.Outcome != pairing.OutcomeMissed {
			break
		}
		n++
	}
	return n
}

func (s *FeedbackService) checkAttrition(ctx context.Context, tenantID, userID int64) error {
	threshold := s.cfg.AttritionThreshold
	reports, err := s.pairingRepo.ListReportsAbout(ctx, tenantID, userID, threshold)
	if err != nil {
		return fmt.Errorf("failed to load reports about member: %w", err)
	}
	misses := ConsecutiveMisses(reports)
	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "misses": misses})
	if misses < threshold {
		logCtx.Debug("Below attrition threshold")
		return nil
	}

	err = s.membership.Remove(ctx, tenantID, userID, ReasonAttrition)
	if errors.Is(err, ErrNotMember) {
		logCtx.Info("Member already left, skipping attrition")
		return nil
	}
	if err != nil {
		return err
	}
	s.metrics.IncAttrition()
	logCtx.Warn("Member removed by attrition")

	if err := s.notifier.DirectMessage(ctx, userID, fmt.Sprintf(attritionText, misses)); err != nil {
		s.metrics.IncNotifierFailure("dm")
		logCtx.WithError(err).Warn("Failed to notify member about attrition")
	}
	return nil
}

// ExpireFeedback closes every pending report past its deadline with no outcome.
func (s *FeedbackService) ExpireFeedback(ctx context.Context) (int, error) {
	expired, err := s.pairingRepo.ExpireFeedbackReports(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire feedback reports: %w", err)
	}
	if len(expired) > 0 {
		s.metrics.AddFeedbackExpired(len(expired))
		s.log.WithField("expired", len(expired)).Info("Closed unanswered feedback prompts")
	}
	return len(expired), nil
}
