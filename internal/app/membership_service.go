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

	"github.com/sirupsen/logrus"
)

// RemovalReason says why a member moved to left.
type RemovalReason string

const (
	ReasonLeft      RemovalReason = "left"
	ReasonKicked    RemovalReason = "kicked"
	ReasonAttrition RemovalReason = "attrition"
)

// HistoryEntry is one past pairing as seen by a member.
type HistoryEntry struct {
	Cycle       int64
	PartnerID   int64
	PartnerName string
	Outcome     pairing.Outcome
}

// MembershipService runs the member lifecycle: join, rejoin, leave, kick,
// participation and cadence changes, preferences and on-demand rematching.
type MembershipService struct {
	memberRepo  member.Repository
	tenantRepo  tenant.Repository
	pairingRepo pairing.Repository
	notifier    notify.Notifier
	locks       *TenantLocks
	metrics     metrics.Recorder
	log         *logrus.Entry
	now         func() time.Time
}

func NewMembershipService(
	mr member.Repository,
	tr tenant.Repository,
	pr pairing.Repository,
	n notify.Notifier,
	locks *TenantLocks,
	rec metrics.Recorder,
	log *logrus.Entry,
) *MembershipService {
	return &MembershipService{
		memberRepo:  mr,
		tenantRepo:  tr,
		pairingRepo: pr,
		notifier:    n,
		locks:       locks,
		metrics:     rec,
		log:         log.WithField("component", "membership"),
		now:         time.Now,
	}
}

// Join adds a new member or reactivates one who left, then tries to find them
// a partner right away. Rejoining resets the cadence to the default.
func (s *MembershipService) Join(ctx context.Context, tenantID, userID int64, displayName string) (*member.Member, error) {
	if tenantID == 0 || userID == 0 {
		return nil, ErrInvalidIdentifier
	}
	if _, err := s.tenantRepo.Get(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}

	unlock := s.locks.Lock(tenantID)
	defer unlock()

	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID})

	m, err := s.memberRepo.Get(ctx, tenantID, userID)
	switch {
	case err == nil:
		if m.IsActive() {
			return m, ErrAlreadyMember
		}
		logCtx.Info("Member rejoining")
	case errors.Is(err, member.ErrNotFound):
		m = &member.Member{TenantID: tenantID, UserID: userID}
		logCtx.Info("New member joining")
	default:
		return nil, fmt.Errorf("failed to look up member: %w", err)
	}

	if displayName != "" {
		m.DisplayName = displayName
	}
	m.Status = member.StatusActive
	m.OptedIn = true
	m.Cadence = member.DefaultCadence
	if err := s.memberRepo.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save member: %w", err)
	}

	if _, err := s.rematchLocked(ctx, tenantID, userID); err != nil {
		// The member is in; they will be picked up by the next cycle.
		logCtx.WithError(err).Error("Rematch after join failed")
	}
	return m, nil
}

// Leave removes an active member at their own request.
func (s *MembershipService) Leave(ctx context.Context, tenantID, userID int64) error {
	return s.Remove(ctx, tenantID, userID, ReasonLeft)
}

// Kick removes an active member on an operator's request.
func (s *MembershipService) Kick(ctx context.Context, tenantID, userID int64) error {
	return s.Remove(ctx, tenantID, userID, ReasonKicked)
}

// Remove transitions a member to left. Their preferences and pool entry are
// dropped, a current pair is dissolved and the partner alone is rematched.
// History is kept.
func (s *MembershipService) Remove(ctx context.Context, tenantID, userID int64, reason RemovalReason) error {
	if tenantID == 0 || userID == 0 {
		return ErrInvalidIdentifier
	}
	unlock := s.locks.Lock(tenantID)
	defer unlock()
	return s.removeLocked(ctx, tenantID, userID, reason)
}

func (s *MembershipService) removeLocked(ctx context.Context, tenantID, userID int64, reason RemovalReason) error {
	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "reason": reason})

	m, err := s.activeMember(ctx, tenantID, userID)
	if err != nil {
		return err
	}

	dep, err := s.pairingRepo.RemoveMember(ctx, tenantID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to remove member")
		return fmt.Errorf("failed to remove member: %w", err)
	}
	logCtx.WithFields(logrus.Fields{
		"partner_id":          dep.PartnerID,
		"was_unpaired":        dep.WasUnpaired,
		"removed_preferences": dep.RemovedPreferences,
	}).Info("Member removed")

	s.announce(ctx, tenantID, departureText(displayName(m), reason))

	if dep.PartnerID != 0 {
		if _, err := s.rematchLocked(ctx, tenantID, dep.PartnerID); err != nil {
			logCtx.WithError(err).WithField("partner_id", dep.PartnerID).Error("Rematch of vacated partner failed")
		}
	}
	return nil
}

// SetOptIn toggles participation in upcoming cycles. No immediate pairing effect.
func (s *MembershipService) SetOptIn(ctx context.Context, tenantID, userID int64, optedIn bool) error {
	if _, err := s.activeMember(ctx, tenantID, userID); err != nil {
		return err
	}
	if err := s.memberRepo.SetOptIn(ctx, tenantID, userID, optedIn); err != nil {
		return fmt.Errorf("failed to update participation: %w", err)
	}
	s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "opted_in": optedIn}).Info("Participation updated")
	return nil
}

// SetCadence sets how many cycles pass between a member's matches.
func (s *MembershipService) SetCadence(ctx context.Context, tenantID, userID int64, cadence int) error {
	if cadence <= 0 {
		return ErrInvalidCadence
	}
	m, err := s.activeMember(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	m.Cadence = cadence
	if err := s.memberRepo.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to update cadence: %w", err)
	}
	s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "cadence": cadence}).Info("Cadence updated")
	return nil
}

// AddPreference records a one-shot wish of two active members to be paired.
func (s *MembershipService) AddPreference(ctx context.Context, tenantID, userID, partnerID int64) (*pairing.Preference, error) {
	if tenantID == 0 || userID == 0 || partnerID == 0 {
		return nil, ErrInvalidIdentifier
	}
	if userID == partnerID {
		return nil, ErrSelfPreference
	}
	if _, err := s.activeMember(ctx, tenantID, userID); err != nil {
		return nil, err
	}
	partner, err := s.memberRepo.Get(ctx, tenantID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferred partner: %w", err)
	}
	if !partner.IsActive() {
		return nil, ErrPartnerNotActive
	}

	unlock := s.locks.Lock(tenantID)
	defer unlock()

	if _, err := s.pairingRepo.FindPreference(ctx, tenantID, userID, partnerID); err == nil {
		return nil, pairing.ErrPreferenceExists
	} else if !errors.Is(err, pairing.ErrPreferenceNotFound) {
		return nil, fmt.Errorf("failed to look up preference: %w", err)
	}

	p := &pairing.Preference{TenantID: tenantID, UserA: userID, UserB: partnerID, CreatedAt: s.now()}
	if err := s.pairingRepo.AddPreference(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to add preference: %w", err)
	}
	s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "partner_id": partnerID}).Info("Preference added")
	return p, nil
}

// CurrentPartner returns the member the user is paired with right now.
func (s *MembershipService) CurrentPartner(ctx context.Context, tenantID, userID int64) (*member.Member, error) {
	cp, err := s.pairingRepo.GetCurrentPair(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current pair: %w", err)
	}
	partner, err := s.memberRepo.Get(ctx, tenantID, cp.Pair().Partner(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load partner: %w", err)
	}
	return partner, nil
}

// History lists the member's past pairings, newest first.
func (s *MembershipService) History(ctx context.Context, tenantID, userID int64) ([]HistoryEntry, error) {
	records, err := s.pairingRepo.ListHistoryForMember(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	all, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	n := namesOf(all)

	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		partnerID := r.Pair().Partner(userID)
		entries = append(entries, HistoryEntry{
			Cycle:       r.Cycle,
			PartnerID:   partnerID,
			PartnerName: n.of(partnerID),
			Outcome:     r.Outcome,
		})
	}
	return entries, nil
}

// OpenOptOutWindow opts every member back in and posts the opt-out prompt, so
// sitting out never carries over to a second cycle unconfirmed.
func (s *MembershipService) OpenOptOutWindow(ctx context.Context, tenantID int64) error {
	if err := s.memberRepo.OptInAll(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to opt members in: %w", err)
	}
	if err := s.notifier.PromptOptOut(ctx, tenantID, optOutPromptText); err != nil {
		s.metrics.IncNotifierFailure("prompt")
		s.log.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to post opt-out prompt")
	}
	s.log.WithField("tenant_id", tenantID).Info("Opt-out window opened")
	return nil
}

// rematchLocked finds a partner for one member outside a scheduled cycle:
// a preferred partner waiting in the pool, else the first pooled member, else
// the member waits in the pool. Callers hold the tenant lock.
func (s *MembershipService) rematchLocked(ctx context.Context, tenantID, userID int64) (*pairing.CurrentPair, error) {
	if cp, err := s.pairingRepo.GetCurrentPair(ctx, tenantID, userID); err == nil {
		return cp, nil
	} else if !errors.Is(err, pairing.ErrPairNotFound) {
		return nil, fmt.Errorf("failed to check current pair: %w", err)
	}

	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	pool, err := s.pairingRepo.ListUnpaired(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unpaired pool: %w", err)
	}
	prefs, err := s.pairingRepo.ListPreferences(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	commit := pairing.RematchCommit{TenantID: tenantID, Cycle: t.Cycle, UserID: userID, CreatedAt: s.now()}
	pooled := make(map[int64]bool, len(pool))
	for _, id := range pool {
		if id != userID {
			pooled[id] = true
		}
	}
	for _, p := range prefs {
		if partner := p.Pair().Partner(userID); partner != 0 && partner != userID && pooled[partner] {
			commit.PartnerID = partner
			commit.PreferenceID = p.ID
			break
		}
	}
	if commit.PartnerID == 0 {
		for _, id := range pool {
			if pooled[id] {
				commit.PartnerID = id
				break
			}
		}
	}

	cp, err := s.pairingRepo.CommitRematch(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("failed to commit rematch: %w", err)
	}

	all, err := s.memberRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		s.log.WithError(err).Warn("Failed to load names for rematch announcement")
	}
	n := namesOf(all)
	logCtx := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "cycle": t.Cycle})
	if cp == nil {
		s.metrics.IncRematch("pooled")
		logCtx.Info("No partner available, member placed in unpaired pool")
		s.announce(ctx, tenantID, unpairedText(n.of(userID)))
		return nil, nil
	}

	s.metrics.IncRematch("paired")
	logCtx.WithFields(logrus.Fields{"partner_id": commit.PartnerID, "preference_id": commit.PreferenceID}).Info("Rematched member")
	s.announce(ctx, tenantID, newPairText(n.of(userID), n.of(commit.PartnerID)))
	return cp, nil
}

func (s *MembershipService) activeMember(ctx context.Context, tenantID, userID int64) (*member.Member, error) {
	if tenantID == 0 || userID == 0 {
		return nil, ErrInvalidIdentifier
	}
	m, err := s.memberRepo.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("failed to look up member: %w", err)
	}
	if !m.IsActive() {
		return nil, ErrNotMember
	}
	return m, nil
}

func (s *MembershipService) announce(ctx context.Context, tenantID int64, text string) {
	if err := s.notifier.AnnounceToTenant(ctx, tenantID, text); err != nil {
		s.metrics.IncNotifierFailure("announce")
		s.log.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to announce to tenant")
	}
}

func displayName(m *member.Member) string {
	return names{m.UserID: m.DisplayName}.of(m.UserID)
}
