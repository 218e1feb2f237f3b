package store

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
)

// Store is the Loan Store: the single point through which every mutation
// to a Loan passes, built on top of LoanRepository's row-level locking so
// that all operations on the same loanId serialize.
type Store struct {
	Loans    *LoanRepository
	Requests *RequestRepository
	Audit    *AuditRepository
	Leases   *LeaseRepository
}

// New wires a Store against a single database handle.
func New(db *sql.DB) *Store {
	return &Store{
		Loans:    NewLoanRepository(db),
		Requests: NewRequestRepository(db),
		Audit:    NewAuditRepository(db),
		Leases:   NewLeaseRepository(db),
	}
}

// CreateLoan inserts a brand new loan in the "new" status with zero
// collateral. Returns domain.AlreadyExists if loanId is already taken.
func (s *Store) CreateLoan(ctx context.Context, loanID, borrowerID string, principal decimal.Decimal) (*domain.Loan, error) {
	l := &domain.Loan{
		LoanID:              loanID,
		BorrowerID:          borrowerID,
		Principal:           principal,
		Collateral:          decimal.Zero,
		Status:              domain.StatusNew,
		CollateralSold:      decimal.Zero,
		ProceedsGC:          decimal.Zero,
		OutstandingBalance:  decimal.Zero,
		RemainingCollateral: decimal.Zero,
	}
	if err := s.Loans.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AddCollateral increases a loan's collateral by amount. Fails
// domain.NotFound if the loan does not exist, or domain.Terminal if the
// loan is no longer in {new, active}.
func (s *Store) AddCollateral(ctx context.Context, loanID string, amount decimal.Decimal) (*domain.Loan, error) {
	return s.Loans.WithLock(ctx, loanID, func(l *domain.Loan) (*domain.Loan, error) {
		if !l.CanAcceptTopUp() {
			return nil, domain.Terminal("loan is no longer accepting collateral top-ups")
		}
		l.Collateral = l.Collateral.Add(amount)
		return l, nil
	})
}

// Transition performs a compare-and-swap on status: the mutation only
// applies if the loan's current status equals from, with mutator given the
// chance to update other fields in the same atomic step. Fails
// domain.StateConflict if the current status does not match from, or if
// (from, to) is not one of the three legal edges.
func (s *Store) Transition(ctx context.Context, loanID string, from, to domain.Status, mutator func(l *domain.Loan) error) (*domain.Loan, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.StateConflict("illegal transition " + string(from) + " -> " + string(to))
	}
	return s.Loans.WithLock(ctx, loanID, func(l *domain.Loan) (*domain.Loan, error) {
		if l.Status != from {
			return nil, domain.StateConflict("loan status is " + string(l.Status) + ", expected " + string(from))
		}
		l.Status = to
		if mutator != nil {
			if err := mutator(l); err != nil {
				return nil, err
			}
		}
		return l, nil
	})
}

// RecordLotFill accumulates one executed liquidation lot onto a loan still
// in "liquidating": qty BSK sold at achievedPrice GC per unit. It does not
// itself transition status — the worker decides separately, once the
// accumulated proceeds close the gap, to finalize via Transition.
func (s *Store) RecordLotFill(ctx context.Context, loanID string, qty decimal.Decimal, achievedPrice decimal.Decimal) (*domain.Loan, error) {
	return s.Loans.WithLock(ctx, loanID, func(l *domain.Loan) (*domain.Loan, error) {
		if l.Status != domain.StatusLiquidating {
			return nil, domain.StateConflict("loan is no longer liquidating")
		}
		l.CollateralSold = l.CollateralSold.Add(qty)
		l.ProceedsGC = l.ProceedsGC.Add(qty.Mul(achievedPrice))
		l.LiquidationAttempts++
		return l, nil
	})
}

// GetLoan returns a loan by ID, or domain.NotFound.
func (s *Store) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return s.Loans.Get(ctx, loanID)
}

// ListLoans returns a snapshot of loans, optionally filtered by status.
func (s *Store) ListLoans(ctx context.Context, status domain.Status) ([]*domain.Loan, error) {
	return s.Loans.List(ctx, status)
}

// RecordRequest is the idempotency-claim primitive: it either reserves
// requestID for processing (claimed=true) or returns the previously
// recorded outcome (claimed=false) for the caller to replay verbatim.
func (s *Store) RecordRequest(ctx context.Context, requestID string) (existing *domain.ProcessedRequest, claimed bool, err error) {
	return s.Requests.Reserve(ctx, requestID)
}

// FinalizeRequest records the terminal outcome for a previously reserved
// request.
func (s *Store) FinalizeRequest(ctx context.Context, pr *domain.ProcessedRequest) error {
	return s.Requests.Finalize(ctx, pr)
}

// LookupRequest returns the recorded outcome for requestID.
func (s *Store) LookupRequest(ctx context.Context, requestID string) (*domain.ProcessedRequest, error) {
	return s.Requests.Get(ctx, requestID)
}

// AppendAudit writes one durable, append-only audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	return s.Audit.Append(ctx, entry)
}
