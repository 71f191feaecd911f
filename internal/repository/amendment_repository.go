package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/errors"
)

const amendmentColumns = `
	id, weekly_plan_id, store_id, stock_code, category,
	week_reference, week_start_date, amendment_type,
	original_qty, amended_qty, approved_qty,
	justification, status,
	created_by, created_by_role, original_amendment_id,
	admin_notes, admin_approved_at, admin_rejected_at, admin_approved_by,
	created_at, updated_at`

// AmendmentRepository handles amendment ledger persistence. Rows are only
// ever inserted or status-transitioned, never deleted.
type AmendmentRepository struct {
	db *database.DB
}

// NewAmendmentRepository creates a new AmendmentRepository.
func NewAmendmentRepository(db *database.DB) *AmendmentRepository {
	return &AmendmentRepository{db: db}
}

// Create inserts a new amendment in its initial status.
func (r *AmendmentRepository) Create(ctx context.Context, a *Amendment) error {
	query := `
		INSERT INTO weekly_plan_amendments
		    (weekly_plan_id, store_id, stock_code, category,
		     week_reference, week_start_date, amendment_type,
		     original_qty, amended_qty, approved_qty,
		     justification, status, created_by, created_by_role,
		     original_amendment_id, admin_notes,
		     admin_approved_at, admin_rejected_at, admin_approved_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		a.WeeklyPlanID,
		a.StoreID,
		a.StockCode,
		a.Category,
		a.WeekReference,
		a.WeekStartDate,
		a.AmendmentType,
		a.OriginalQty,
		a.AmendedQty,
		a.ApprovedQty,
		a.Justification,
		a.Status,
		a.CreatedBy,
		a.CreatedByRole,
		a.OriginalAmendmentID,
		a.AdminNotes,
		a.AdminApprovedAt,
		a.AdminRejectedAt,
		a.AdminApprovedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create amendment")
	}
	return nil
}

// GetByID retrieves one amendment.
func (r *AmendmentRepository) GetByID(ctx context.Context, id string) (*Amendment, error) {
	query := `SELECT ` + amendmentColumns + ` FROM weekly_plan_amendments WHERE id = $1`

	a, err := scanAmendment(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("amendment", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get amendment")
	}
	return a, nil
}

// EffectiveForKey returns every effective-status amendment for one key,
// newest first. More than one row is a data anomaly the caller must flag.
func (r *AmendmentRepository) EffectiveForKey(ctx context.Context, key Key) ([]*Amendment, error) {
	query := `
		SELECT ` + amendmentColumns + `
		FROM weekly_plan_amendments
		WHERE store_id = $1 AND stock_code = $2 AND week_reference = $3
		  AND status = ANY($4)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, key.StoreID, key.StockCode, key.WeekReference, statusStrings(EffectiveStatuses()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to query effective amendments")
	}
	defer rows.Close()

	return scanAmendmentRows(rows)
}

// ListEffectiveByWeek returns all effective amendments for a week, optionally
// restricted to a set of stores. Newest first within each key.
func (r *AmendmentRepository) ListEffectiveByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*Amendment, error) {
	query := `
		SELECT ` + amendmentColumns + `
		FROM weekly_plan_amendments
		WHERE week_reference = $1
		  AND status = ANY($2)
	`
	args := []any{weekRef, statusStrings(EffectiveStatuses())}
	if len(storeIDs) > 0 {
		query += ` AND store_id = ANY($3)`
		args = append(args, storeIDs)
	}
	query += ` ORDER BY store_id, stock_code, created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list effective amendments")
	}
	defer rows.Close()

	return scanAmendmentRows(rows)
}

// ListByStatuses returns amendments for a week in any of the given statuses,
// optionally restricted to stores. Used for role-scoped review queues.
func (r *AmendmentRepository) ListByStatuses(ctx context.Context, weekRef string, storeIDs []string, statuses []Status) ([]*Amendment, error) {
	query := `
		SELECT ` + amendmentColumns + `
		FROM weekly_plan_amendments
		WHERE week_reference = $1
		  AND status = ANY($2)
	`
	args := []any{weekRef, statusStrings(statuses)}
	if len(storeIDs) > 0 {
		query += ` AND store_id = ANY($3)`
		args = append(args, storeIDs)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list amendments by status")
	}
	defer rows.Close()

	return scanAmendmentRows(rows)
}

// CountEffectiveByRole counts currently-effective amendments for a store/week
// that were originated by the given role. Used for submission gate snapshots.
func (r *AmendmentRepository) CountEffectiveByRole(ctx context.Context, storeID, weekRef string, role Role) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM weekly_plan_amendments
		WHERE store_id = $1 AND week_reference = $2
		  AND created_by_role = $3
		  AND status = ANY($4)
	`

	var n int
	err := r.db.QueryRow(ctx, query, storeID, weekRef, role, statusStrings(EffectiveStatuses())).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count effective amendments")
	}
	return n, nil
}

// Transition moves an amendment from one expected status to another. The
// WHERE guard makes concurrent updates lose cleanly: zero rows affected means
// the expected status no longer holds and the caller must re-read.
func (r *AmendmentRepository) Transition(ctx context.Context, id string, from, to Status) (bool, error) {
	query := `
		UPDATE weekly_plan_amendments
		SET status     = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to transition amendment")
	}
	return tag.RowsAffected() == 1, nil
}

// AdminResolve applies an admin approve or reject outcome. The status guard
// rejects concurrent admin actions; approvedQty and the timestamp columns are
// set according to the action.
func (r *AmendmentRepository) AdminResolve(ctx context.Context, id string, from, to Status, approvedQty *int, notes *string, adminName string) (bool, error) {
	var approvedAt, rejectedAt *time.Time
	now := time.Now().UTC()
	if to == StatusAdminApproved {
		approvedAt = &now
	} else {
		rejectedAt = &now
	}

	query := `
		UPDATE weekly_plan_amendments
		SET status            = $3,
		    approved_qty      = $4,
		    admin_notes       = $5,
		    admin_approved_at = $6,
		    admin_rejected_at = $7,
		    admin_approved_by = $8,
		    updated_at        = NOW()
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from, to, approvedQty, notes, approvedAt, rejectedAt, adminName)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve amendment")
	}
	return tag.RowsAffected() == 1, nil
}

// Supersede marks the original amendment admin_modified and inserts the
// admin_edit derivative in one transaction. Either both rows change or
// neither does; a half-applied modify would leave the key with no effective
// amendment or two.
func (r *AmendmentRepository) Supersede(ctx context.Context, originalID string, from Status, notes *string, adminName string, derivative *Amendment) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		supersedeQuery := `
			UPDATE weekly_plan_amendments
			SET status            = $3,
			    admin_notes       = $4,
			    admin_rejected_at = NOW(),
			    admin_approved_by = $5,
			    updated_at        = NOW()
			WHERE id = $1 AND status = $2
		`

		tag, err := tx.Exec(ctx, supersedeQuery, originalID, from, StatusAdminModified, notes, adminName)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to supersede amendment")
		}
		if tag.RowsAffected() != 1 {
			return errors.StateConflict("amendment " + originalID + " changed status during modify")
		}

		insertQuery := `
			INSERT INTO weekly_plan_amendments
			    (weekly_plan_id, store_id, stock_code, category,
			     week_reference, week_start_date, amendment_type,
			     original_qty, amended_qty, approved_qty,
			     justification, status, created_by, created_by_role,
			     original_amendment_id, admin_notes,
			     admin_approved_at, admin_approved_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			        $11, $12, $13, $14, $15, $16, NOW(), $17)
			RETURNING id, created_at, updated_at
		`

		err = tx.QueryRow(ctx, insertQuery,
			derivative.WeeklyPlanID,
			derivative.StoreID,
			derivative.StockCode,
			derivative.Category,
			derivative.WeekReference,
			derivative.WeekStartDate,
			derivative.AmendmentType,
			derivative.OriginalQty,
			derivative.AmendedQty,
			derivative.ApprovedQty,
			derivative.Justification,
			derivative.Status,
			derivative.CreatedBy,
			derivative.CreatedByRole,
			derivative.OriginalAmendmentID,
			derivative.AdminNotes,
			derivative.AdminApprovedBy,
		).Scan(&derivative.ID, &derivative.CreatedAt, &derivative.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert derivative amendment")
		}

		return nil
	})
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type amendmentScanner interface {
	Scan(dest ...any) error
}

func scanAmendment(row amendmentScanner) (*Amendment, error) {
	a := &Amendment{}
	err := row.Scan(
		&a.ID,
		&a.WeeklyPlanID,
		&a.StoreID,
		&a.StockCode,
		&a.Category,
		&a.WeekReference,
		&a.WeekStartDate,
		&a.AmendmentType,
		&a.OriginalQty,
		&a.AmendedQty,
		&a.ApprovedQty,
		&a.Justification,
		&a.Status,
		&a.CreatedBy,
		&a.CreatedByRole,
		&a.OriginalAmendmentID,
		&a.AdminNotes,
		&a.AdminApprovedAt,
		&a.AdminRejectedAt,
		&a.AdminApprovedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanAmendmentRows(rows pgx.Rows) ([]*Amendment, error) {
	amendments := make([]*Amendment, 0)
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan amendment")
		}
		amendments = append(amendments, a)
	}
	return amendments, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
