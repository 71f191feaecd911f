// Package memory provides in-memory implementations of the service storage
// interfaces. Used by tests; behavior mirrors the SQL repositories, including
// status guards, ordering and nil-on-absent conventions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// ── amendments ────────────────────────────────────────────────────────────────

// AmendmentStore is an in-memory amendment ledger.
type AmendmentStore struct {
	mu   sync.RWMutex
	byID map[string]*repository.Amendment
	// clock lets tests control created_at ordering; defaults to time.Now.
	clock func() time.Time
}

// NewAmendmentStore creates an empty ledger.
func NewAmendmentStore() *AmendmentStore {
	return &AmendmentStore{
		byID:  make(map[string]*repository.Amendment),
		clock: time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *AmendmentStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *AmendmentStore) Create(ctx context.Context, a *repository.Amendment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.clock()
	a.CreatedAt = now
	a.UpdatedAt = now

	cp := *a
	s.byID[a.ID] = &cp
	return nil
}

func (s *AmendmentStore) GetByID(ctx context.Context, id string) (*repository.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFound("amendment", id)
	}
	cp := *a
	return &cp, nil
}

func (s *AmendmentStore) EffectiveForKey(ctx context.Context, key repository.Key) ([]*repository.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.Amendment
	for _, a := range s.byID {
		if a.Key() == key && a.Status.Effective() {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *AmendmentStore) ListEffectiveByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.Amendment, error) {
	return s.list(weekRef, storeIDs, repository.EffectiveStatuses(), false)
}

func (s *AmendmentStore) ListByStatuses(ctx context.Context, weekRef string, storeIDs []string, statuses []repository.Status) ([]*repository.Amendment, error) {
	return s.list(weekRef, storeIDs, statuses, true)
}

func (s *AmendmentStore) list(weekRef string, storeIDs []string, statuses []repository.Status, ascending bool) ([]*repository.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[repository.Status]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var stores map[string]bool
	if len(storeIDs) > 0 {
		stores = make(map[string]bool, len(storeIDs))
		for _, id := range storeIDs {
			stores[id] = true
		}
	}

	out := make([]*repository.Amendment, 0)
	for _, a := range s.byID {
		if a.WeekReference != weekRef || !allowed[a.Status] {
			continue
		}
		if stores != nil && !stores[a.StoreID] {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}

	if ascending {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool {
			if out[i].StoreID != out[j].StoreID {
				return out[i].StoreID < out[j].StoreID
			}
			if out[i].StockCode != out[j].StockCode {
				return out[i].StockCode < out[j].StockCode
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out, nil
}

func (s *AmendmentStore) CountEffectiveByRole(ctx context.Context, storeID, weekRef string, role repository.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.byID {
		if a.StoreID == storeID && a.WeekReference == weekRef &&
			a.CreatedByRole == role && a.Status.Effective() {
			n++
		}
	}
	return n, nil
}

func (s *AmendmentStore) Transition(ctx context.Context, id string, from, to repository.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.UpdatedAt = s.clock()
	return true, nil
}

func (s *AmendmentStore) AdminResolve(ctx context.Context, id string, from, to repository.Status, approvedQty *int, notes *string, adminName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok || a.Status != from {
		return false, nil
	}

	now := s.clock().UTC()
	a.Status = to
	a.ApprovedQty = approvedQty
	a.AdminNotes = notes
	a.AdminApprovedBy = &adminName
	if to == repository.StatusAdminApproved {
		a.AdminApprovedAt = &now
	} else {
		a.AdminRejectedAt = &now
	}
	a.UpdatedAt = now
	return true, nil
}

func (s *AmendmentStore) Supersede(ctx context.Context, originalID string, from repository.Status, notes *string, adminName string, derivative *repository.Amendment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.byID[originalID]
	if !ok || original.Status != from {
		return errors.StateConflict("amendment " + originalID + " changed status during modify")
	}

	now := s.clock().UTC()
	original.Status = repository.StatusAdminModified
	original.AdminNotes = notes
	original.AdminRejectedAt = &now
	original.AdminApprovedBy = &adminName
	original.UpdatedAt = now

	if derivative.ID == "" {
		derivative.ID = uuid.NewString()
	}
	derivative.AdminApprovedAt = &now
	derivative.CreatedAt = now
	derivative.UpdatedAt = now
	cp := *derivative
	s.byID[derivative.ID] = &cp
	return nil
}

// ── plan source ───────────────────────────────────────────────────────────────

// PlanSource is an in-memory baseline plan with week selections.
type PlanSource struct {
	mu    sync.RWMutex
	weeks map[string]*repository.WeekSelection
	lines []*repository.PlanLine
}

// NewPlanSource creates an empty plan source.
func NewPlanSource() *PlanSource {
	return &PlanSource{weeks: make(map[string]*repository.WeekSelection)}
}

// AddWeek registers a week selection.
func (s *PlanSource) AddWeek(w *repository.WeekSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.weeks[w.WeekReference] = &cp
}

// AddLine registers a baseline plan line.
func (s *PlanSource) AddLine(l *repository.PlanLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	cp := *l
	s.lines = append(s.lines, &cp)
}

func (s *PlanSource) CurrentWeek(ctx context.Context) (*repository.WeekSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.weeks {
		if w.IsCurrent && w.IsActive {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *PlanSource) GetWeek(ctx context.Context, weekRef string) (*repository.WeekSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.weeks[weekRef]
	if !ok {
		return nil, errors.NotFound("week_selection", weekRef)
	}
	cp := *w
	return &cp, nil
}

func (s *PlanSource) LineForKey(ctx context.Context, key repository.Key) (*repository.PlanLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.lines {
		if l.WeekReference == key.WeekReference && l.StoreID == key.StoreID && l.StockCode == key.StockCode {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *PlanSource) LinesForWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.PlanLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stores map[string]bool
	if len(storeIDs) > 0 {
		stores = make(map[string]bool, len(storeIDs))
		for _, id := range storeIDs {
			stores[id] = true
		}
	}

	out := make([]*repository.PlanLine, 0)
	for _, l := range s.lines {
		if l.WeekReference != weekRef {
			continue
		}
		if stores != nil && !stores[l.StoreID] {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].StockCode < out[j].StockCode
	})
	return out, nil
}

// ── hierarchy ─────────────────────────────────────────────────────────────────

// HierarchyDirectory is an in-memory store hierarchy.
type HierarchyDirectory struct {
	mu     sync.RWMutex
	stores map[string]*repository.StoreNode
}

// NewHierarchyDirectory creates an empty directory.
func NewHierarchyDirectory() *HierarchyDirectory {
	return &HierarchyDirectory{stores: make(map[string]*repository.StoreNode)}
}

// AddStore registers a store node.
func (d *HierarchyDirectory) AddStore(n *repository.StoreNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *n
	d.stores[n.StoreID] = &cp
}

func (d *HierarchyDirectory) GetStore(ctx context.Context, storeID string) (*repository.StoreNode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.stores[storeID]
	if !ok {
		return nil, errors.NotFound("store", storeID)
	}
	cp := *n
	return &cp, nil
}

func (d *HierarchyDirectory) StoresForManager(ctx context.Context, userID string) ([]*repository.StoreNode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*repository.StoreNode, 0)
	for _, n := range d.stores {
		if n.ManagedBy(userID) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreCode < out[j].StoreCode })
	return out, nil
}

func (d *HierarchyDirectory) ListStores(ctx context.Context) ([]*repository.StoreNode, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*repository.StoreNode, 0, len(d.stores))
	for _, n := range d.stores {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreCode < out[j].StoreCode })
	return out, nil
}

// ── submissions ───────────────────────────────────────────────────────────────

type submissionKey struct {
	storeID string
	weekRef string
}

// SubmissionStore is an in-memory gate tracker.
type SubmissionStore struct {
	mu     sync.Mutex
	states map[submissionKey]*repository.SubmissionState
	clock  func() time.Time
}

// NewSubmissionStore creates an empty tracker.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		states: make(map[submissionKey]*repository.SubmissionState),
		clock:  time.Now,
	}
}

func (s *SubmissionStore) Get(ctx context.Context, storeID, weekRef string) (*repository.SubmissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[submissionKey{storeID, weekRef}]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *SubmissionStore) ListByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.SubmissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stores map[string]bool
	if len(storeIDs) > 0 {
		stores = make(map[string]bool, len(storeIDs))
		for _, id := range storeIDs {
			stores[id] = true
		}
	}

	out := make([]*repository.SubmissionState, 0)
	for k, st := range s.states {
		if k.weekRef != weekRef {
			continue
		}
		if stores != nil && !stores[k.storeID] {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out, nil
}

// Advance stamps one level submitted. A second advance for the same level
// leaves the slot's first timestamp and count untouched.
func (s *SubmissionStore) Advance(ctx context.Context, storeID, weekRef string, level repository.Level, actorID string, amendmentCount int) (*repository.SubmissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := submissionKey{storeID, weekRef}
	now := s.clock()

	st, ok := s.states[key]
	if !ok {
		st = &repository.SubmissionState{
			StoreID:       storeID,
			WeekReference: weekRef,
			Store:         repository.LevelState{Status: "not_submitted"},
			Area:          repository.LevelState{Status: "not_submitted"},
			Regional:      repository.LevelState{Status: "not_submitted"},
			Admin:         repository.LevelState{Status: "not_submitted"},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.states[key] = st
	}

	slot := s.slotFor(st, level)
	if !slot.Submitted() {
		actor := actorID
		*slot = repository.LevelState{
			Status:         "submitted",
			SubmittedAt:    &now,
			SubmittedBy:    &actor,
			AmendmentCount: amendmentCount,
		}
		st.UpdatedAt = now
	}

	cp := *st
	return &cp, nil
}

func (s *SubmissionStore) slotFor(st *repository.SubmissionState, level repository.Level) *repository.LevelState {
	switch level {
	case repository.LevelStore:
		return &st.Store
	case repository.LevelArea:
		return &st.Area
	case repository.LevelRegional:
		return &st.Regional
	default:
		return &st.Admin
	}
}

// ── audit ─────────────────────────────────────────────────────────────────────

// AuditLog is an in-memory audit trail.
type AuditLog struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
	clock   func() time.Time
}

// NewAuditLog creates an empty trail.
func NewAuditLog() *AuditLog {
	return &AuditLog{clock: time.Now}
}

func (l *AuditLog) Append(ctx context.Context, entry *repository.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.PerformedAt = l.clock()
	cp := *entry
	l.entries = append(l.entries, &cp)
	return nil
}

func (l *AuditLog) GetByAmendmentID(ctx context.Context, amendmentID string) ([]*repository.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*repository.AuditEntry, 0)
	for _, e := range l.entries {
		if e.AmendmentID == amendmentID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PerformedAt.Before(out[j].PerformedAt) })
	return out, nil
}
