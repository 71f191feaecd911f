package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/errors"
)

// PlanRepository reads the baseline plan source and week selections. Both are
// published by external processes and read-only to this service.
type PlanRepository struct {
	db *database.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *database.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// CurrentWeek returns the single current+active week selection, or nil when
// no week is open.
func (r *PlanRepository) CurrentWeek(ctx context.Context) (*WeekSelection, error) {
	query := `
		SELECT week_reference, week_start_date, week_end_date,
		       is_current, is_active, week_status
		FROM week_selections
		WHERE is_current = TRUE AND is_active = TRUE
		LIMIT 1
	`

	w := &WeekSelection{}
	err := r.db.QueryRow(ctx, query).Scan(
		&w.WeekReference, &w.WeekStartDate, &w.WeekEndDate,
		&w.IsCurrent, &w.IsActive, &w.WeekStatus,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get current week")
	}
	return w, nil
}

// GetWeek returns a week selection by reference.
func (r *PlanRepository) GetWeek(ctx context.Context, weekRef string) (*WeekSelection, error) {
	query := `
		SELECT week_reference, week_start_date, week_end_date,
		       is_current, is_active, week_status
		FROM week_selections
		WHERE week_reference = $1
	`

	w := &WeekSelection{}
	err := r.db.QueryRow(ctx, query, weekRef).Scan(
		&w.WeekReference, &w.WeekStartDate, &w.WeekEndDate,
		&w.IsCurrent, &w.IsActive, &w.WeekStatus,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("week_selection", weekRef)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get week selection")
	}
	return w, nil
}

const planLineColumns = `
	id, week_reference, store_id, stock_code, product_name,
	category, sub_category, order_qty, add_ons_qty,
	qty_on_hand, qty_in_transit, qty_pending_orders, model_stock_qty`

// LineForKey returns the plan line for one (week, store, stock_code), or nil
// when the stock code was not planned for that store.
func (r *PlanRepository) LineForKey(ctx context.Context, key Key) (*PlanLine, error) {
	query := `
		SELECT ` + planLineColumns + `
		FROM weekly_plan
		WHERE week_reference = $1 AND store_id = $2 AND stock_code = $3
	`

	line, err := scanPlanLine(r.db.QueryRow(ctx, query, key.WeekReference, key.StoreID, key.StockCode))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get plan line")
	}
	return line, nil
}

// LinesForWeek returns the plan lines for a week, optionally restricted to a
// set of stores.
func (r *PlanRepository) LinesForWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*PlanLine, error) {
	query := `
		SELECT ` + planLineColumns + `
		FROM weekly_plan
		WHERE week_reference = $1
	`
	args := []any{weekRef}
	if len(storeIDs) > 0 {
		query += ` AND store_id = ANY($2)`
		args = append(args, storeIDs)
	}
	query += ` ORDER BY store_id, stock_code`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list plan lines")
	}
	defer rows.Close()

	lines := make([]*PlanLine, 0)
	for rows.Next() {
		line, err := scanPlanLine(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan plan line")
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type planLineScanner interface {
	Scan(dest ...any) error
}

func scanPlanLine(row planLineScanner) (*PlanLine, error) {
	l := &PlanLine{}
	err := row.Scan(
		&l.ID,
		&l.WeekReference,
		&l.StoreID,
		&l.StockCode,
		&l.ProductName,
		&l.Category,
		&l.SubCategory,
		&l.OrderQty,
		&l.AddOnsQty,
		&l.QtyOnHand,
		&l.QtyInTransit,
		&l.QtyPendingOrds,
		&l.ModelStockQty,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}
