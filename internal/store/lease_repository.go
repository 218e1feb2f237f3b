package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"beskarliquidator/internal/domain"
)

// LeaseRepository hands out exclusive, renewable ownership of a loan's
// liquidation to one worker at a time. A crashed worker's lease simply
// expires, after which a process's startup recovery scan can hand the loan
// to another worker.
type LeaseRepository struct {
	db *sql.DB
}

func NewLeaseRepository(db *sql.DB) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// Acquire takes the lease for loanID if it is unheld or expired, owned by
// ownerID until now+ttl. Returns false if another owner currently holds an
// unexpired lease.
func (r *LeaseRepository) Acquire(ctx context.Context, loanID, ownerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO liquidation_leases (loan_id, owner_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (loan_id) DO UPDATE
			SET owner_id = $2, expires_at = $3
			WHERE liquidation_leases.expires_at < $4`,
		loanID, ownerID, expiresAt, now,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Renew extends an already-held lease. Returns domain.StateConflict if the
// caller no longer owns it (another worker took over after expiry).
func (r *LeaseRepository) Renew(ctx context.Context, loanID, ownerID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE liquidation_leases SET expires_at = $1
		WHERE loan_id = $2 AND owner_id = $3`,
		now.Add(ttl), loanID, ownerID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.StateConflict("lease lost")
	}
	return nil
}

// Release drops the lease, making the loan immediately eligible for
// another worker to pick up.
func (r *LeaseRepository) Release(ctx context.Context, loanID, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM liquidation_leases WHERE loan_id = $1 AND owner_id = $2`,
		loanID, ownerID,
	)
	return err
}

// ListExpiredOrUnleased returns loanIDs among those in statuses that either
// have no lease row or hold an expired one — the candidate set the startup
// recovery scan re-enqueues to pick up orphaned liquidation work.
func (r *LeaseRepository) ListExpiredOrUnleased(ctx context.Context, loanIDs []string) ([]string, error) {
	if len(loanIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.loan_id FROM unnest($1::text[]) AS l(loan_id)
		LEFT JOIN liquidation_leases lease ON lease.loan_id = l.loan_id
		WHERE lease.loan_id IS NULL OR lease.expires_at < $2`,
		pq.Array(loanIDs), now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
