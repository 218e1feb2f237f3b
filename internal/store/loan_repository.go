package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
)

// LoanRepository persists domain.Loan rows and provides the row-level
// locking primitive every status mutation goes through.
type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanColumns = `loan_id, borrower_id, principal::text, collateral::text, status,
	created_at, updated_at, liquidation_attempts, collateral_sold::text, proceeds_gc::text,
	outstanding_balance::text, remaining_collateral::text`

func scanLoan(row interface{ Scan(dest ...interface{}) error }) (*domain.Loan, error) {
	var l domain.Loan
	var principal, collateral, collateralSold, proceedsGC, outstanding, remaining string

	err := row.Scan(
		&l.LoanID, &l.BorrowerID, &principal, &collateral, &l.Status,
		&l.CreatedAt, &l.UpdatedAt, &l.LiquidationAttempts, &collateralSold, &proceedsGC,
		&outstanding, &remaining,
	)
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&l.Principal, principal},
		{&l.Collateral, collateral},
		{&l.CollateralSold, collateralSold},
		{&l.ProceedsGC, proceedsGC},
		{&l.OutstandingBalance, outstanding},
		{&l.RemainingCollateral, remaining},
	} {
		v, err := decimal.NewFromString(pair.src)
		if err != nil {
			return nil, fmt.Errorf("parse decimal column: %w", err)
		}
		*pair.dst = v
	}

	return &l, nil
}

// Create inserts a brand new loan in the "new" status. Returns
// domain.AlreadyExists if loanID is already taken.
func (r *LoanRepository) Create(ctx context.Context, l *domain.Loan) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	query := `
		INSERT INTO loans (loan_id, borrower_id, principal, collateral, status,
			created_at, updated_at, liquidation_attempts, collateral_sold, proceeds_gc,
			outstanding_balance, remaining_collateral)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		l.LoanID, l.BorrowerID, l.Principal.String(), l.Collateral.String(), l.Status,
		l.CreatedAt, l.UpdatedAt, l.LiquidationAttempts, l.CollateralSold.String(), l.ProceedsGC.String(),
		l.OutstandingBalance.String(), l.RemainingCollateral.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.AlreadyExists("loan already exists")
		}
		return err
	}
	return nil
}

// Get returns a loan by ID, or domain.NotFound.
func (r *LoanRepository) Get(ctx context.Context, loanID string) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = $1`

	l, err := scanLoan(r.db.QueryRowContext(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("loan not found")
		}
		return nil, err
	}
	return l, nil
}

// List returns loans, optionally filtered to a single status, ordered by
// creation time. An empty status lists every loan.
func (r *LoanRepository) List(ctx context.Context, status domain.Status) ([]*domain.Loan, error) {
	var rows *sql.Rows
	var err error

	if status == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY created_at`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY created_at`, status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}

// WithLock runs fn with the loan row locked via SELECT ... FOR UPDATE for
// the duration of the transaction, then persists fn's returned loan and
// commits. Every write to an existing loan — top-ups, status transitions,
// liquidation lot bookkeeping — goes through this so two goroutines racing
// on the same loanId serialize instead of interleaving.
func (r *LoanRepository) WithLock(ctx context.Context, loanID string, fn func(l *domain.Loan) (*domain.Loan, error)) (*domain.Loan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + loanColumns + ` FROM loans WHERE loan_id = $1 FOR UPDATE`
	current, err := scanLoan(tx.QueryRowContext(ctx, query, loanID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("loan not found")
		}
		return nil, err
	}

	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()

	updateQuery := `
		UPDATE loans SET
			collateral = $1, status = $2, updated_at = $3, liquidation_attempts = $4,
			collateral_sold = $5, proceeds_gc = $6, outstanding_balance = $7, remaining_collateral = $8
		WHERE loan_id = $9`

	_, err = tx.ExecContext(ctx, updateQuery,
		updated.Collateral.String(), updated.Status, updated.UpdatedAt, updated.LiquidationAttempts,
		updated.CollateralSold.String(), updated.ProceedsGC.String(),
		updated.OutstandingBalance.String(), updated.RemainingCollateral.String(),
		loanID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return updated, nil
}
