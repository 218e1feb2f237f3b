package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"beskarliquidator/internal/domain"
)

// RequestRepository backs the idempotency guarantee on the two mutating
// endpoints: a given requestId is recorded exactly once, and every retry
// reads back the same outcome instead of re-running the operation.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Reserve attempts to claim requestID for processing. claimed is false if the
// request was already recorded, in which case existing holds that prior
// record and should be replayed verbatim to the caller.
func (r *RequestRepository) Reserve(ctx context.Context, requestID string) (existing *domain.ProcessedRequest, claimed bool, err error) {
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO processed_requests (request_id, outcome, created_at) VALUES ($1, $2, $3)`,
		requestID, "", time.Now().UTC(),
	)
	if err == nil {
		return nil, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	existing, err = r.Get(ctx, requestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Finalize records the terminal outcome for a previously reserved request.
func (r *RequestRepository) Finalize(ctx context.Context, pr *domain.ProcessedRequest) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE processed_requests SET outcome = $1, result_loan_id = $2, error_kind = $3, error_msg = $4
			WHERE request_id = $5`,
		string(pr.Outcome), pr.ResultLoanID, pr.ErrorKind.String(), pr.ErrorMsg, pr.RequestID,
	)
	return err
}

// Get returns the recorded outcome for requestID, or domain.NotFound if the
// request was never reserved (or is still mid-flight with an empty outcome).
func (r *RequestRepository) Get(ctx context.Context, requestID string) (*domain.ProcessedRequest, error) {
	var pr domain.ProcessedRequest
	var outcome, resultLoanID, errorKind, errorMsg sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT request_id, outcome, result_loan_id, error_kind, error_msg, created_at
			FROM processed_requests WHERE request_id = $1`,
		requestID,
	).Scan(&pr.RequestID, &outcome, &resultLoanID, &errorKind, &errorMsg, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("request not found")
		}
		return nil, err
	}

	pr.Outcome = domain.Outcome(outcome.String)
	pr.ResultLoanID = resultLoanID.String
	pr.ErrorMsg = errorMsg.String
	if pr.Outcome == "" {
		return nil, domain.NotFound("request not yet finalized")
	}
	return &pr, nil
}
