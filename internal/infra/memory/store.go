// Package memory provides an in-memory implementation of the persistence
// interfaces used for tests and ephemeral environments.
//
// A single Store holds all tables behind one mutex, so every composite
// operation is trivially atomic. The repository views returned by Members,
// Tenants and Pairing share that state.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"
)

// Compile-time contract assertions.
var (
	_ member.Repository  = (*MemberRepository)(nil)
	_ tenant.Repository  = (*TenantRepository)(nil)
	_ pairing.Repository = (*PairingRepository)(nil)
)

type memberKey struct{ tenantID, userID int64 }

// Store is the shared in-memory state.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	tenants     map[int64]*tenant.Tenant
	members     map[memberKey]*member.Member
	preferences []*pairing.Preference
	records     []*pairing.Record
	current     map[int64][]*pairing.CurrentPair
	unpaired    map[int64][]int64
	reports     []*pairing.FeedbackReport

	nextPreferenceID int64
	nextRecordID     int64
	nextReportID     int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		tenants:  make(map[int64]*tenant.Tenant),
		members:  make(map[memberKey]*member.Member),
		current:  make(map[int64][]*pairing.CurrentPair),
		unpaired: make(map[int64][]int64),
	}
}

// Members returns the member repository view.
func (s *Store) Members() *MemberRepository { return &MemberRepository{s: s} }

// Tenants returns the tenant repository view.
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }

// Pairing returns the pairing repository view.
func (s *Store) Pairing() *PairingRepository { return &PairingRepository{s: s} }

// MemberRepository implements member.Repository.
type MemberRepository struct{ s *Store }

func (r *MemberRepository) Get(_ context.Context, tenantID, userID int64) (*member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberKey{tenantID, userID}]
	if !ok {
		return nil, member.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemberRepository) Upsert(_ context.Context, m *member.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	key := memberKey{m.TenantID, m.UserID}
	if existing, ok := r.s.members[key]; ok {
		m.JoinedAt = existing.JoinedAt
	} else if m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	m.UpdatedAt = now
	cp := *m
	r.s.members[key] = &cp
	return nil
}

func (r *MemberRepository) ListByTenant(_ context.Context, tenantID int64) ([]*member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.filterMembers(tenantID, func(*member.Member) bool { return true }), nil
}

func (r *MemberRepository) ListEligible(_ context.Context, tenantID int64, next int64) ([]*member.Member, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.filterMembers(tenantID, func(m *member.Member) bool { return m.EligibleFor(next) }), nil
}

func (r *MemberRepository) SetOptIn(_ context.Context, tenantID, userID int64, optedIn bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[memberKey{tenantID, userID}]
	if !ok {
		return member.ErrNotFound
	}
	m.OptedIn = optedIn
	m.UpdatedAt = r.s.now()
	return nil
}

func (r *MemberRepository) OptInAll(_ context.Context, tenantID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, m := range r.s.members {
		if k.tenantID == tenantID {
			m.OptedIn = true
		}
	}
	return nil
}

func (s *Store) filterMembers(tenantID int64, keep func(*member.Member) bool) []*member.Member {
	out := make([]*member.Member, 0)
	for k, m := range s.members {
		if k.tenantID == tenantID && keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TenantRepository implements tenant.Repository.
type TenantRepository struct{ s *Store }

func (r *TenantRepository) Create(_ context.Context, t *tenant.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	r.s.tenants[t.ID] = &cp
	return nil
}

func (r *TenantRepository) Get(_ context.Context, id int64) (*tenant.Tenant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TenantRepository) Update(_ context.Context, t *tenant.Tenant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.tenants[t.ID]
	if !ok {
		return tenant.ErrNotFound
	}
	existing.Title = t.Title
	existing.CycleSpec = t.CycleSpec
	existing.ReminderSpec = t.ReminderSpec
	existing.OptOutSpec = t.OptOutSpec
	existing.Active = t.Active
	existing.UpdatedAt = r.s.now()
	t.Cycle = existing.Cycle
	t.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *TenantRepository) ListActive(_ context.Context) ([]*tenant.Tenant, error) {
	return r.list(func(t *tenant.Tenant) bool { return t.Active }), nil
}

func (r *TenantRepository) ListAll(_ context.Context) ([]*tenant.Tenant, error) {
	return r.list(func(*tenant.Tenant) bool { return true }), nil
}

func (r *TenantRepository) list(keep func(*tenant.Tenant) bool) []*tenant.Tenant {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*tenant.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PairingRepository implements pairing.Repository.
type PairingRepository struct{ s *Store }

func samePair(a1, b1, a2, b2 int64) bool {
	return (a1 == a2 && b1 == b2) || (a1 == b2 && b1 == a2)
}

func (r *PairingRepository) AddPreference(_ context.Context, p *pairing.Preference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.preferences {
		if existing.TenantID == p.TenantID && samePair(existing.UserA, existing.UserB, p.UserA, p.UserB) {
			return pairing.ErrPreferenceExists
		}
	}
	r.s.nextPreferenceID++
	p.ID = r.s.nextPreferenceID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.s.now()
	}
	cp := *p
	r.s.preferences = append(r.s.preferences, &cp)
	return nil
}

func (r *PairingRepository) FindPreference(_ context.Context, tenantID, a, b int64) (*pairing.Preference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.preferences {
		if p.TenantID == tenantID && samePair(p.UserA, p.UserB, a, b) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pairing.ErrPreferenceNotFound
}

func (r *PairingRepository) ListPreferences(_ context.Context, tenantID int64) ([]*pairing.Preference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*pairing.Preference, 0)
	for _, p := range r.s.preferences {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *PairingRepository) ListHistory(_ context.Context, tenantID int64) ([]*pairing.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.filterRecords(func(rec *pairing.Record) bool { return rec.TenantID == tenantID }), nil
}

func (r *PairingRepository) ListHistoryForMember(_ context.Context, tenantID, userID int64) ([]*pairing.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.s.filterRecords(func(rec *pairing.Record) bool {
		return rec.TenantID == tenantID && rec.Pair().Has(userID)
	})
	slices.Reverse(out)
	return out, nil
}

func (r *PairingRepository) GetRecord(_ context.Context, id int64) (*pairing.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.records {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, pairing.ErrRecordNotFound
}

func (r *PairingRepository) ListRecordsForCycle(_ context.Context, tenantID, cycle int64) ([]*pairing.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.filterRecords(func(rec *pairing.Record) bool {
		return rec.TenantID == tenantID && rec.Cycle == cycle
	}), nil
}

// filterRecords returns copies in (cycle, id) order.
func (s *Store) filterRecords(keep func(*pairing.Record) bool) []*pairing.Record {
	out := make([]*pairing.Record, 0)
	for _, rec := range s.records {
		if keep(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cycle != out[j].Cycle {
			return out[i].Cycle < out[j].Cycle
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *PairingRepository) ListCurrentPairs(_ context.Context, tenantID int64) ([]*pairing.CurrentPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*pairing.CurrentPair, 0, len(r.s.current[tenantID]))
	for _, cp := range r.s.current[tenantID] {
		c := *cp
		out = append(out, &c)
	}
	return out, nil
}

func (r *PairingRepository) GetCurrentPair(_ context.Context, tenantID, userID int64) (*pairing.CurrentPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cp := range r.s.current[tenantID] {
		if cp.Pair().Has(userID) {
			c := *cp
			return &c, nil
		}
	}
	return nil, pairing.ErrPairNotFound
}

func (r *PairingRepository) ListUnpaired(_ context.Context, tenantID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.unpaired[tenantID]), nil
}

func (r *PairingRepository) CommitCycle(_ context.Context, c pairing.CycleCommit) ([]*pairing.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tenants[c.TenantID]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	if t.Cycle != c.PreviousCycle {
		return nil, pairing.ErrCycleConflict
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.s.now()
	}

	t.Cycle = c.Cycle
	t.UpdatedAt = createdAt

	records := make([]*pairing.Record, 0, len(c.Pairs))
	current := make([]*pairing.CurrentPair, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		r.s.nextRecordID++
		rec := &pairing.Record{
			ID:        r.s.nextRecordID,
			TenantID:  c.TenantID,
			UserA:     p.A,
			UserB:     p.B,
			Cycle:     c.Cycle,
			Outcome:   pairing.OutcomeUnset,
			CreatedAt: createdAt,
		}
		r.s.records = append(r.s.records, rec)
		cp := *rec
		records = append(records, &cp)
		current = append(current, &pairing.CurrentPair{
			TenantID:  c.TenantID,
			UserA:     p.A,
			UserB:     p.B,
			Cycle:     c.Cycle,
			RecordID:  rec.ID,
			CreatedAt: createdAt,
		})
	}
	r.s.current[c.TenantID] = current
	r.s.unpaired[c.TenantID] = slices.Clone(c.Unpaired)
	r.s.preferences = slices.DeleteFunc(r.s.preferences, func(p *pairing.Preference) bool {
		return p.TenantID == c.TenantID && slices.Contains(c.ConsumedPreferences, p.ID)
	})
	return records, nil
}

func (r *PairingRepository) CommitRematch(_ context.Context, c pairing.RematchCommit) (*pairing.CurrentPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.s.now()
	}
	pool := r.s.unpaired[c.TenantID]
	if c.PartnerID == 0 {
		if !slices.Contains(pool, c.UserID) {
			r.s.unpaired[c.TenantID] = append(pool, c.UserID)
		}
		return nil, nil
	}

	r.s.unpaired[c.TenantID] = slices.DeleteFunc(slices.Clone(pool), func(id int64) bool {
		return id == c.UserID || id == c.PartnerID
	})
	if c.PreferenceID != 0 {
		r.s.preferences = slices.DeleteFunc(r.s.preferences, func(p *pairing.Preference) bool {
			return p.ID == c.PreferenceID
		})
	}
	cp := &pairing.CurrentPair{
		TenantID:  c.TenantID,
		UserA:     c.UserID,
		UserB:     c.PartnerID,
		Cycle:     c.Cycle,
		CreatedAt: createdAt,
	}
	r.s.current[c.TenantID] = append(r.s.current[c.TenantID], cp)
	out := *cp
	return &out, nil
}

func (r *PairingRepository) RemoveMember(_ context.Context, tenantID, userID int64) (*pairing.Departure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.members[memberKey{tenantID, userID}]
	if !ok {
		return nil, member.ErrNotFound
	}

	dep := &pairing.Departure{}
	before := len(r.s.preferences)
	r.s.preferences = slices.DeleteFunc(r.s.preferences, func(p *pairing.Preference) bool {
		return p.TenantID == tenantID && p.Pair().Has(userID)
	})
	dep.RemovedPreferences = before - len(r.s.preferences)

	pool := r.s.unpaired[tenantID]
	if slices.Contains(pool, userID) {
		dep.WasUnpaired = true
		r.s.unpaired[tenantID] = slices.DeleteFunc(slices.Clone(pool), func(id int64) bool { return id == userID })
	}

	r.s.current[tenantID] = slices.DeleteFunc(r.s.current[tenantID], func(cp *pairing.CurrentPair) bool {
		if cp.Pair().Has(userID) {
			dep.PartnerID = cp.Pair().Partner(userID)
			return true
		}
		return false
	})

	m.Status = member.StatusLeft
	m.UpdatedAt = r.s.now()
	return dep, nil
}

func (r *PairingRepository) CreateFeedbackReports(_ context.Context, reports []*pairing.FeedbackReport) ([]*pairing.FeedbackReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	created := make([]*pairing.FeedbackReport, 0, len(reports))
	for _, rep := range reports {
		if r.s.findReport(rep.RecordID, rep.ReporterID) != nil {
			continue
		}
		r.s.nextReportID++
		rep.ID = r.s.nextReportID
		cp := *rep
		r.s.reports = append(r.s.reports, &cp)
		created = append(created, rep)
	}
	return created, nil
}

func (s *Store) findReport(recordID, reporterID int64) *pairing.FeedbackReport {
	for _, rep := range s.reports {
		if rep.RecordID == recordID && rep.ReporterID == reporterID {
			return rep
		}
	}
	return nil
}

func (r *PairingRepository) GetFeedbackReport(_ context.Context, id int64) (*pairing.FeedbackReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rep := range r.s.reports {
		if rep.ID == id {
			cp := *rep
			return &cp, nil
		}
	}
	return nil, pairing.ErrReportNotFound
}

func (r *PairingRepository) FindFeedbackReport(_ context.Context, recordID, reporterID int64) (*pairing.FeedbackReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rep := r.s.findReport(recordID, reporterID)
	if rep == nil {
		return nil, pairing.ErrReportNotFound
	}
	cp := *rep
	return &cp, nil
}

func (r *PairingRepository) ResolveFeedbackReport(_ context.Context, rep *pairing.FeedbackReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stored *pairing.FeedbackReport
	for _, existing := range r.s.reports {
		if existing.ID == rep.ID {
			stored = existing
			break
		}
	}
	if stored == nil {
		return pairing.ErrReportNotFound
	}
	var rec *pairing.Record
	for _, existing := range r.s.records {
		if existing.ID == rep.RecordID {
			rec = existing
			break
		}
	}
	if rec == nil {
		return pairing.ErrRecordNotFound
	}
	stored.Outcome = rep.Outcome
	stored.Status = rep.Status
	stored.RespondedAt = rep.RespondedAt
	rec.Outcome = rep.Outcome
	return nil
}

func (r *PairingRepository) ListReportsAbout(_ context.Context, tenantID, userID int64, limit int) ([]*pairing.FeedbackReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*pairing.FeedbackReport, 0)
	for _, rep := range r.s.reports {
		if rep.TenantID == tenantID && rep.SubjectID == userID {
			cp := *rep
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cycle != out[j].Cycle {
			return out[i].Cycle > out[j].Cycle
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PairingRepository) ExpireFeedbackReports(_ context.Context, now time.Time) ([]*pairing.FeedbackReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	expired := make([]*pairing.FeedbackReport, 0)
	for _, rep := range r.s.reports {
		if rep.Status == pairing.ReportPending && !now.Before(rep.ExpiresAt) {
			rep.Status = pairing.ReportExpired
			rep.Outcome = pairing.OutcomeUnset
			cp := *rep
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (r *PairingRepository) ResetTenant(_ context.Context, tenantID int64, includeMembers bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[tenantID]
	if !ok {
		return tenant.ErrNotFound
	}
	t.Cycle = 0
	delete(r.s.current, tenantID)
	delete(r.s.unpaired, tenantID)
	r.s.preferences = slices.DeleteFunc(r.s.preferences, func(p *pairing.Preference) bool { return p.TenantID == tenantID })
	r.s.records = slices.DeleteFunc(r.s.records, func(rec *pairing.Record) bool { return rec.TenantID == tenantID })
	r.s.reports = slices.DeleteFunc(r.s.reports, func(rep *pairing.FeedbackReport) bool { return rep.TenantID == tenantID })
	for k, m := range r.s.members {
		if k.tenantID != tenantID {
			continue
		}
		if includeMembers {
			delete(r.s.members, k)
		} else {
			m.OptedIn = true
		}
	}
	return nil
}
