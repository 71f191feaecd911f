package service

import (
	"context"
	"fmt"

	"github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/metrics"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// LedgerService owns the amendment ledger: proposal, submission, endorsement
// and admin resolution. All status changes are validated by the state machine
// in state_machine.go and recorded in the audit log.
type LedgerService struct {
	amendments AmendmentStore
	plans      PlanSource
	hierarchy  HierarchyDirectory
	audit      AuditLog
	events     EventPublisher
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewLedgerService creates a new LedgerService. events may be nil when
// notifications are disabled.
func NewLedgerService(
	amendments AmendmentStore,
	plans PlanSource,
	hierarchy HierarchyDirectory,
	audit AuditLog,
	events EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		amendments: amendments,
		plans:      plans,
		hierarchy:  hierarchy,
		audit:      audit,
		events:     events,
		metrics:    m,
		log:        log,
	}
}

// ProposeRequest carries a new amendment proposal.
type ProposeRequest struct {
	StoreID       string
	StockCode     string
	WeekReference string
	AmendedQty    int
	Justification string
	Category      string // used only when no plan line exists (new item)
	Actor         Actor
}

// ResolveRequest carries an admin decision on an amendment.
type ResolveRequest struct {
	AmendmentID string
	Action      repository.Action // approve | reject | modify
	NewQty      *int              // required for modify
	Notes       *string
	Actor       Actor
}

// ResolveResult is the outcome of Resolve. Derivative is set only for modify.
type ResolveResult struct {
	Amendment  *repository.Amendment
	Derivative *repository.Amendment
}

// ── Propose ───────────────────────────────────────────────────────────────────

// Propose records a new amendment in pending status. The week must be the
// current open one, the quantity non-negative, and the actor must manage the
// store. The plan line, when present, supplies the baseline quantity; a
// missing plan line yields a new_item amendment against a zero baseline.
func (s *LedgerService) Propose(ctx context.Context, req *ProposeRequest) (*repository.Amendment, error) {
	if req.AmendedQty < 0 {
		return nil, errors.Validation("amended_qty", fmt.Sprintf("must be non-negative, got %d", req.AmendedQty))
	}

	week, err := s.plans.CurrentWeek(ctx)
	if err != nil {
		return nil, err
	}
	if !week.Open() || week.WeekReference != req.WeekReference {
		return nil, errors.Validation("week_reference",
			fmt.Sprintf("%s is not the current open planning week", req.WeekReference))
	}

	node, err := s.hierarchy.GetStore(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}
	if req.Actor.Role != repository.RoleAdmin && !node.ManagedBy(req.Actor.ID) {
		s.log.Warn().
			Str("actor_id", req.Actor.ID).
			Str("actor_role", string(req.Actor.Role)).
			Str("store_id", req.StoreID).
			Msg("Propose denied: actor not in store manager chain")
		return nil, errors.Unauthorized(
			"actor " + req.Actor.ID + " is not authorized for store " + req.StoreID)
	}

	key := repository.Key{StoreID: req.StoreID, StockCode: req.StockCode, WeekReference: req.WeekReference}
	existing, err := s.amendments.EffectiveForKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Newf(errors.ErrCodeStateConflict,
			"an effective amendment already exists for store %s stock %s week %s (amendment %s)",
			key.StoreID, key.StockCode, key.WeekReference, existing[0].ID)
	}

	line, err := s.plans.LineForKey(ctx, key)
	if err != nil {
		return nil, err
	}

	a := &repository.Amendment{
		StoreID:       req.StoreID,
		StockCode:     req.StockCode,
		WeekReference: req.WeekReference,
		WeekStartDate: week.WeekStartDate,
		AmendedQty:    req.AmendedQty,
		Justification: req.Justification,
		Status:        repository.StatusPending,
		CreatedBy:     req.Actor.ID,
		CreatedByRole: req.Actor.Role,
		Category:      req.Category,
	}
	if line != nil {
		a.WeeklyPlanID = &line.ID
		a.Category = line.Category
		a.OriginalQty = line.AddOnsQty
		if line.AddOnsQty != 0 {
			a.AmendmentType = repository.TypeQuantityChange
		} else {
			a.AmendmentType = repository.TypeAddOn
		}
	} else {
		a.AmendmentType = repository.TypeNewItem
		a.OriginalQty = 0
	}

	if err := s.amendments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.metrics.IncProposed()
	s.appendAudit(ctx, a, repository.ActionPropose, req.Actor, nil, a.Status, map[string]interface{}{
		"amended_qty":    a.AmendedQty,
		"original_qty":   a.OriginalQty,
		"amendment_type": string(a.AmendmentType),
	})
	s.publish(ctx, "amendment_proposed", a, req.Actor)

	s.log.Info().
		Str("amendment_id", a.ID).
		Str("store_id", a.StoreID).
		Str("stock_code", a.StockCode).
		Str("week_reference", a.WeekReference).
		Int("amended_qty", a.AmendedQty).
		Str("created_by_role", string(a.CreatedByRole)).
		Msg("Amendment proposed")

	return a, nil
}

// ── Submit / Endorse ──────────────────────────────────────────────────────────

// Submit moves a pending amendment to submitted, making it visible to the
// next hierarchy level.
func (s *LedgerService) Submit(ctx context.Context, amendmentID string, actor Actor) (*repository.Amendment, error) {
	return s.transition(ctx, amendmentID, repository.ActionSubmit, actor, "amendment_submitted")
}

// Endorse records an intermediate approval by an area or regional manager.
// The actor must be in the amendment's store manager chain.
func (s *LedgerService) Endorse(ctx context.Context, amendmentID string, actor Actor) (*repository.Amendment, error) {
	return s.transition(ctx, amendmentID, repository.ActionEndorse, actor, "amendment_endorsed")
}

// transition runs a simple (non-admin) single-row transition with an
// optimistic status guard.
func (s *LedgerService) transition(ctx context.Context, amendmentID string, action repository.Action, actor Actor, event string) (*repository.Amendment, error) {
	a, err := s.amendments.GetByID(ctx, amendmentID)
	if err != nil {
		return nil, err
	}

	if action == repository.ActionEndorse {
		node, err := s.hierarchy.GetStore(ctx, a.StoreID)
		if err != nil {
			return nil, err
		}
		if !node.ManagedBy(actor.ID) {
			err := errors.Unauthorized(
				"actor " + actor.ID + " is not authorized for store " + a.StoreID)
			s.logDenied(action, a, actor, err)
			return nil, err
		}
	}

	next, err := NextStatus(a, action, actor)
	if err != nil {
		s.logDenied(action, a, actor, err)
		return nil, err
	}

	ok, err := s.amendments.Transition(ctx, a.ID, a.Status, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.concurrentConflict(ctx, a.ID)
	}

	before := a.Status
	a.Status = next

	s.appendAudit(ctx, a, action, actor, &before, next, nil)
	s.publish(ctx, event, a, actor)

	s.log.Info().
		Str("amendment_id", a.ID).
		Str("store_id", a.StoreID).
		Str("week_reference", a.WeekReference).
		Str("status_before", string(before)).
		Str("status_after", string(next)).
		Str("acted_by", actor.ID).
		Msg("Amendment transitioned")

	return a, nil
}

// ── Resolve ───────────────────────────────────────────────────────────────────

// Resolve applies an admin decision. approve sets approved_qty to the amended
// quantity; reject stamps the rejection; modify supersedes the original with
// an admin_edit derivative in one atomic operation. Resolve is not safe to
// blindly retry after a timeout; callers must re-query first.
func (s *LedgerService) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	a, err := s.amendments.GetByID(ctx, req.AmendmentID)
	if err != nil {
		return nil, err
	}

	next, err := NextStatus(a, req.Action, req.Actor)
	if err != nil {
		s.logDenied(req.Action, a, req.Actor, err)
		return nil, err
	}

	switch req.Action {
	case repository.ActionApprove, repository.ActionReject:
		return s.resolveDirect(ctx, a, next, req)
	default:
		return s.resolveModify(ctx, a, req)
	}
}

func (s *LedgerService) resolveDirect(ctx context.Context, a *repository.Amendment, next repository.Status, req *ResolveRequest) (*ResolveResult, error) {
	var approvedQty *int
	if next == repository.StatusAdminApproved {
		qty := a.AmendedQty
		approvedQty = &qty
	}

	ok, err := s.amendments.AdminResolve(ctx, a.ID, a.Status, next, approvedQty, req.Notes, req.Actor.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.concurrentConflict(ctx, a.ID)
	}

	before := a.Status
	updated, err := s.amendments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncResolved(string(req.Action))
	s.appendAudit(ctx, updated, req.Action, req.Actor, &before, updated.Status, map[string]interface{}{
		"notes": deref(req.Notes),
	})
	s.publish(ctx, "amendment_"+string(next), updated, req.Actor)

	s.log.Info().
		Str("amendment_id", updated.ID).
		Str("store_id", updated.StoreID).
		Str("week_reference", updated.WeekReference).
		Str("status_after", string(updated.Status)).
		Str("resolved_by", req.Actor.ID).
		Msg("Amendment resolved")

	return &ResolveResult{Amendment: updated}, nil
}

// resolveModify supersedes the original and inserts the derivative. The two
// writes happen in one transaction inside the store; a half-applied modify
// would leave the key with no effective amendment or two.
func (s *LedgerService) resolveModify(ctx context.Context, a *repository.Amendment, req *ResolveRequest) (*ResolveResult, error) {
	if req.NewQty == nil {
		return nil, errors.Validation("new_qty", "required for modify")
	}
	if *req.NewQty < 0 {
		return nil, errors.Validation("new_qty", fmt.Sprintf("must be non-negative, got %d", *req.NewQty))
	}

	qty := *req.NewQty
	notes := fmt.Sprintf("Modified by admin from %d to %d", a.AmendedQty, qty)
	if req.Notes != nil && *req.Notes != "" {
		notes = notes + ". " + *req.Notes
	}

	derivative := &repository.Amendment{
		WeeklyPlanID:        a.WeeklyPlanID,
		StoreID:             a.StoreID,
		StockCode:           a.StockCode,
		Category:            a.Category,
		WeekReference:       a.WeekReference,
		WeekStartDate:       a.WeekStartDate,
		AmendmentType:       repository.TypeAdminEdit,
		OriginalQty:         a.OriginalQty,
		AmendedQty:          qty,
		ApprovedQty:         &qty,
		Justification:       fmt.Sprintf("Admin modification of amendment %s. %s", a.ID, deref(req.Notes)),
		Status:              repository.StatusAdminApproved,
		CreatedBy:           req.Actor.ID,
		CreatedByRole:       repository.RoleAdmin,
		OriginalAmendmentID: &a.ID,
		AdminNotes:          &notes,
		AdminApprovedBy:     &req.Actor.Name,
	}

	if err := s.amendments.Supersede(ctx, a.ID, a.Status, &notes, req.Actor.Name, derivative); err != nil {
		if errors.Is(err, errors.ErrCodeStateConflict) {
			return nil, s.concurrentConflict(ctx, a.ID)
		}
		return nil, err
	}

	before := a.Status
	original, err := s.amendments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncResolved(string(repository.ActionModify))
	s.appendAudit(ctx, original, repository.ActionModify, req.Actor, &before, original.Status, map[string]interface{}{
		"derivative_id": derivative.ID,
		"new_qty":       qty,
		"notes":         deref(req.Notes),
	})
	s.publish(ctx, "amendment_modified", derivative, req.Actor)

	s.log.Info().
		Str("amendment_id", original.ID).
		Str("derivative_id", derivative.ID).
		Str("store_id", original.StoreID).
		Str("week_reference", original.WeekReference).
		Int("new_qty", qty).
		Str("resolved_by", req.Actor.ID).
		Msg("Amendment modified and superseded")

	return &ResolveResult{Amendment: original, Derivative: derivative}, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// EffectiveAmendmentFor returns the single effective amendment for a key, or
// nil when none exists. When the ledger holds more than one candidate (a data
// anomaly) the newest wins and the rest are flagged, never summed.
func (s *LedgerService) EffectiveAmendmentFor(ctx context.Context, storeID, stockCode, weekRef string) (*repository.Amendment, error) {
	candidates, err := s.amendments.EffectiveForKey(ctx, repository.Key{
		StoreID: storeID, StockCode: stockCode, WeekReference: weekRef,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) > 1 {
		s.metrics.IncConsistency(len(candidates) - 1)
		s.log.Warn().
			Str("store_id", storeID).
			Str("stock_code", stockCode).
			Str("week_reference", weekRef).
			Int("candidates", len(candidates)).
			Msg("Multiple effective amendments for one key; using newest")
	}
	return candidates[0], nil
}

// reviewStatuses returns the statuses visible to a reviewing role.
func reviewStatuses(role repository.Role) []repository.Status {
	switch role {
	case repository.RoleAreaManager:
		return []repository.Status{repository.StatusSubmitted}
	case repository.RoleRegionalManager:
		return []repository.Status{repository.StatusSubmitted, repository.StatusAreaManagerApproved}
	case repository.RoleAdmin:
		return []repository.Status{
			repository.StatusPending, repository.StatusSubmitted,
			repository.StatusAreaManagerApproved, repository.StatusRegionalDirect,
			repository.StatusAreaDirect,
		}
	default:
		return repository.EffectiveStatuses()
	}
}

// ListForReview returns the actor's review queue for a week: area managers
// see submitted amendments from their stores, regional managers additionally
// see area-endorsed ones, admins see the whole undecided working set.
func (s *LedgerService) ListForReview(ctx context.Context, weekRef string, actor Actor) ([]*repository.Amendment, error) {
	var storeIDs []string
	if actor.Role != repository.RoleAdmin {
		stores, err := s.hierarchy.StoresForManager(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if len(stores) == 0 {
			return []*repository.Amendment{}, nil
		}
		storeIDs = make([]string, len(stores))
		for i, n := range stores {
			storeIDs[i] = n.StoreID
		}
	}

	return s.amendments.ListByStatuses(ctx, weekRef, storeIDs, reviewStatuses(actor.Role))
}

// History returns the full audit trail for an amendment.
func (s *LedgerService) History(ctx context.Context, amendmentID string) ([]*repository.AuditEntry, error) {
	if _, err := s.amendments.GetByID(ctx, amendmentID); err != nil {
		return nil, err
	}
	return s.audit.GetByAmendmentID(ctx, amendmentID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// concurrentConflict re-reads an amendment after a lost optimistic update so
// the caller sees what actually happened.
func (s *LedgerService) concurrentConflict(ctx context.Context, id string) error {
	current, err := s.amendments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return errors.Newf(errors.ErrCodeStateConflict,
		"amendment %s was changed by a concurrent action and is now %s", id, current.Status)
}

func (s *LedgerService) appendAudit(ctx context.Context, a *repository.Amendment, action repository.Action, actor Actor, before *repository.Status, after repository.Status, metadata map[string]interface{}) {
	entry := &repository.AuditEntry{
		AmendmentID:     a.ID,
		StoreID:         a.StoreID,
		WeekReference:   a.WeekReference,
		Action:          action,
		PerformedBy:     actor.ID,
		PerformedByRole: actor.Role,
		StatusBefore:    before,
		StatusAfter:     &after,
		Metadata:        metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("amendment_id", a.ID).
			Str("action", string(action)).
			Msg("Failed to write audit entry")
	}
}

func (s *LedgerService) publish(ctx context.Context, event string, a *repository.Amendment, actor Actor) {
	if s.events != nil {
		s.events.PublishAmendmentEvent(ctx, event, a, actor.ID, string(actor.Role))
	}
}

func (s *LedgerService) logDenied(action repository.Action, a *repository.Amendment, actor Actor, err error) {
	if errors.Is(err, errors.ErrCodeUnauthorized) {
		s.log.Warn().
			Str("amendment_id", a.ID).
			Str("store_id", a.StoreID).
			Str("week_reference", a.WeekReference).
			Str("action", string(action)).
			Str("actor_id", actor.ID).
			Str("actor_role", string(actor.Role)).
			Msg("Amendment action denied")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
