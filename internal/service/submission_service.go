package service

import (
	"context"

	"github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/metrics"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// SubmissionService advances the per-(store, week) hierarchy gates. Advancing
// is a separate concern from amendment approval: it never touches amendment
// statuses.
type SubmissionService struct {
	submissions SubmissionStore
	amendments  AmendmentStore
	hierarchy   HierarchyDirectory
	plans       PlanSource
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions SubmissionStore,
	amendments AmendmentStore,
	hierarchy HierarchyDirectory,
	plans PlanSource,
	m *metrics.Metrics,
	log *logger.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		amendments:  amendments,
		hierarchy:   hierarchy,
		plans:       plans,
		metrics:     m,
		log:         log,
	}
}

// Advance stamps one gate level as submitted for a store/week. Idempotent: a
// repeat call for an already-submitted level returns the stored state
// unchanged (managers retry after network failures). Non-admin actors may
// only advance their own level, and only after the level below has been
// submitted; admins may force-advance any level in any order.
func (s *SubmissionService) Advance(ctx context.Context, storeID, weekRef string, level repository.Level, actor Actor) (*repository.SubmissionState, error) {
	if !level.Valid() {
		return nil, errors.Validation("level", "unknown level "+string(level))
	}

	isAdmin := actor.Role == repository.RoleAdmin
	if !isAdmin && level.RoleFor() != actor.Role {
		s.log.Warn().
			Str("actor_id", actor.ID).
			Str("actor_role", string(actor.Role)).
			Str("level", string(level)).
			Str("store_id", storeID).
			Msg("Submission advance denied: level does not match role")
		return nil, errors.Unauthorized(
			"role " + string(actor.Role) + " cannot advance the " + string(level) + " level")
	}

	if _, err := s.plans.GetWeek(ctx, weekRef); err != nil {
		return nil, err
	}

	node, err := s.hierarchy.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !node.ManagedBy(actor.ID) {
		return nil, errors.Unauthorized(
			"actor " + actor.ID + " is not authorized for store " + storeID)
	}

	state, err := s.submissions.Get(ctx, storeID, weekRef)
	if err != nil {
		return nil, err
	}

	// Idempotent no-op: the level is already submitted.
	if state != nil && state.LevelState(level).Submitted() {
		return state, nil
	}

	// Hierarchy ordering: only admins advance out of order.
	if !isAdmin {
		if below := level.Below(); below != "" {
			if state == nil || !state.LevelState(below).Submitted() {
				return nil, errors.Newf(errors.ErrCodeStateConflict,
					"cannot advance %s level for store %s week %s before the %s level is submitted",
					level, storeID, weekRef, below)
			}
		}
	}

	count, err := s.amendments.CountEffectiveByRole(ctx, storeID, weekRef, level.RoleFor())
	if err != nil {
		return nil, err
	}

	advanced, err := s.submissions.Advance(ctx, storeID, weekRef, level, actor.ID, count)
	if err != nil {
		return nil, err
	}

	s.metrics.IncAdvance(string(level))
	s.log.Info().
		Str("store_id", storeID).
		Str("week_reference", weekRef).
		Str("level", string(level)).
		Str("advanced_by", actor.ID).
		Bool("forced", isAdmin && level.RoleFor() != actor.Role).
		Int("amendment_count", count).
		Msg("Submission level advanced")

	return advanced, nil
}

// ListForWeek returns the tracked submission state of every store for a
// week, ordered by store. Stores that never advanced any level have no row.
func (s *SubmissionService) ListForWeek(ctx context.Context, weekRef string) ([]*repository.SubmissionState, error) {
	if _, err := s.plans.GetWeek(ctx, weekRef); err != nil {
		return nil, err
	}
	return s.submissions.ListByWeek(ctx, weekRef, nil)
}

// Get returns the submission state for one store/week. A never-advanced pair
// yields a zero-valued state rather than an error.
func (s *SubmissionService) Get(ctx context.Context, storeID, weekRef string) (*repository.SubmissionState, error) {
	state, err := s.submissions.Get(ctx, storeID, weekRef)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &repository.SubmissionState{
			StoreID:       storeID,
			WeekReference: weekRef,
			Store:         repository.LevelState{Status: "not_submitted"},
			Area:          repository.LevelState{Status: "not_submitted"},
			Regional:      repository.LevelState{Status: "not_submitted"},
			Admin:         repository.LevelState{Status: "not_submitted"},
		}
	}
	return state, nil
}
