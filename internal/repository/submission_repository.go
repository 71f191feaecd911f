package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/errors"
)

// SubmissionRepository persists the per-(store, week) hierarchy gates. Rows
// are created lazily on first advance; a level's slot is only ever moved from
// not_submitted to submitted, never back.
type SubmissionRepository struct {
	db *database.DB
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `
	store_id, week_reference,
	store_submission_status, store_submitted_at, store_submitted_by, store_amendment_count,
	area_submission_status, area_submitted_at, area_submitted_by, area_amendment_count,
	regional_submission_status, regional_submitted_at, regional_submitted_by, regional_amendment_count,
	admin_submission_status, admin_submitted_at, admin_submitted_by, admin_amendment_count,
	created_at, updated_at`

// columnPrefix maps a gate level to its column family. Levels are a closed
// enum so the names never come from caller input.
func columnPrefix(level Level) string {
	switch level {
	case LevelStore:
		return "store"
	case LevelArea:
		return "area"
	case LevelRegional:
		return "regional"
	default:
		return "admin"
	}
}

// Get returns the submission state for a store/week, or nil when no level has
// been advanced yet.
func (r *SubmissionRepository) Get(ctx context.Context, storeID, weekRef string) (*SubmissionState, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM weekly_plan_submissions
		WHERE store_id = $1 AND week_reference = $2
	`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, storeID, weekRef))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get submission state")
	}
	return s, nil
}

// ListByWeek returns every submission state for a week, optionally restricted
// to a set of stores.
func (r *SubmissionRepository) ListByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*SubmissionState, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM weekly_plan_submissions
		WHERE week_reference = $1
	`
	args := []any{weekRef}
	if len(storeIDs) > 0 {
		query += ` AND store_id = ANY($2)`
		args = append(args, storeIDs)
	}
	query += ` ORDER BY store_id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list submission states")
	}
	defer rows.Close()

	states := make([]*SubmissionState, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan submission state")
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// Advance stamps one gate level as submitted. Idempotent: when the level is
// already submitted the row is left untouched (timestamp and count keep their
// first values) and the stored state is returned.
func (r *SubmissionRepository) Advance(ctx context.Context, storeID, weekRef string, level Level, actorID string, amendmentCount int) (*SubmissionState, error) {
	p := columnPrefix(level)

	// The conditional DO UPDATE enforces monotonicity: a second advance for
	// the same level matches the conflict target but fails the WHERE, so
	// nothing is written.
	query := `
		INSERT INTO weekly_plan_submissions
		    (store_id, week_reference,
		     ` + p + `_submission_status, ` + p + `_submitted_at, ` + p + `_submitted_by, ` + p + `_amendment_count)
		VALUES ($1, $2, 'submitted', NOW(), $3, $4)
		ON CONFLICT (store_id, week_reference) DO UPDATE
		SET ` + p + `_submission_status = 'submitted',
		    ` + p + `_submitted_at     = NOW(),
		    ` + p + `_submitted_by     = $3,
		    ` + p + `_amendment_count  = $4,
		    updated_at                 = NOW()
		WHERE weekly_plan_submissions.` + p + `_submission_status IS DISTINCT FROM 'submitted'
	`

	if _, err := r.db.Exec(ctx, query, storeID, weekRef, actorID, amendmentCount); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to advance submission")
	}

	state, err := r.Get(ctx, storeID, weekRef)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.Newf(errors.ErrCodeInternal, "submission state missing after advance for store %s week %s", storeID, weekRef)
	}
	return state, nil
}

type submissionScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row submissionScanner) (*SubmissionState, error) {
	s := &SubmissionState{}
	err := row.Scan(
		&s.StoreID, &s.WeekReference,
		&s.Store.Status, &s.Store.SubmittedAt, &s.Store.SubmittedBy, &s.Store.AmendmentCount,
		&s.Area.Status, &s.Area.SubmittedAt, &s.Area.SubmittedBy, &s.Area.AmendmentCount,
		&s.Regional.Status, &s.Regional.SubmittedAt, &s.Regional.SubmittedBy, &s.Regional.AmendmentCount,
		&s.Admin.Status, &s.Admin.SubmittedAt, &s.Admin.SubmittedBy, &s.Admin.AmendmentCount,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
