package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"beskarliquidator/internal/domain"
)

// AuditRepository appends to the audit log. Rows are never updated or
// deleted through this type.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes one audit entry, stamping CreatedAt if unset.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_log (loan_id, op, details, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query, e.LoanID, string(e.Op), details, e.CreatedAt).Scan(&e.ID)
}

// ListByLoan returns every audit entry for loanID in chronological order.
func (r *AuditRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, loan_id, op, details, created_at
		FROM audit_log
		WHERE loan_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var op string
		var details []byte

		if err := rows.Scan(&e.ID, &e.LoanID, &op, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Op = domain.AuditOp(op)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
