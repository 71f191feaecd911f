package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/errors"
)

// AuditRepository appends and reads immutable amendment audit entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has a delete-prevention trigger
// so this is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO amendment_audit_log
		    (amendment_id, store_id, week_reference,
		     action, performed_by, performed_by_role,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.AmendmentID,
		entry.StoreID,
		entry.WeekReference,
		entry.Action,
		entry.PerformedBy,
		entry.PerformedByRole,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByAmendmentID returns the audit trail for one amendment, oldest first.
func (r *AuditRepository) GetByAmendmentID(ctx context.Context, amendmentID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, amendment_id, store_id, week_reference,
		       action, performed_by, performed_by_role, performed_at,
		       status_before, status_after, metadata
		FROM amendment_audit_log
		WHERE amendment_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, amendmentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

func scanAuditRows(rows pgx.Rows) ([]*AuditEntry, error) {
	entries := make([]*AuditEntry, 0)
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.AmendmentID,
			&entry.StoreID,
			&entry.WeekReference,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedByRole,
			&entry.PerformedAt,
			&entry.StatusBefore,
			&entry.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
