// Package lifecycle implements the Lifecycle Engine: validates inbound
// loan-application and collateral-top-up requests, mutates Loan state
// through the Store, and emits the domain events those mutations require.
package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/internal/store"
	"beskarliquidator/pkg/utils"
)

// EventPublisher is the narrow slice of the Event Publisher the engine
// depends on, mirroring how the teacher's service layer depends on a
// BotEngine interface rather than the full engine.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Recheck is invoked after a mutation that might move a loan across the
// activation threshold, letting the caller choose to re-evaluate LTV
// synchronously instead of waiting for the next price tick. A nil Recheck
// means activation happens only on the next tick, which the spec allows.
type Recheck func(ctx context.Context, loanID string)

// Engine is the Lifecycle Engine (C3).
type Engine struct {
	store     *store.Store
	publisher EventPublisher
	recheck   Recheck
	log       *utils.Logger
}

// New constructs an Engine. recheck may be nil.
func New(st *store.Store, publisher EventPublisher, recheck Recheck, log *utils.Logger) *Engine {
	return &Engine{store: st, publisher: publisher, recheck: recheck, log: log}
}

// ApplicationResult is what SubmitApplication returns to the HTTP layer,
// already reflecting any idempotent replay.
type ApplicationResult struct {
	RequestID string
	LoanID    string
	Accepted  bool
}

// SubmitApplication registers a new loan. Idempotent on requestID: a
// second submission with the same requestID returns the original outcome
// without re-running anything.
func (e *Engine) SubmitApplication(ctx context.Context, requestID, loanID, borrowerID, principalStr string) (*ApplicationResult, error) {
	existing, claimed, err := e.store.RecordRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return replayApplication(existing)
	}

	result, finalize := e.doSubmitApplication(ctx, requestID, loanID, borrowerID, principalStr)
	if ferr := e.store.FinalizeRequest(ctx, finalize); ferr != nil {
		e.log.Error("finalize application request", zap.String("requestId", requestID), zap.Error(ferr))
	}
	return result, finalizeErr(finalize)
}

func (e *Engine) doSubmitApplication(ctx context.Context, requestID, loanID, borrowerID, principalStr string) (*ApplicationResult, *domain.ProcessedRequest) {
	pr := &domain.ProcessedRequest{RequestID: requestID}

	if err := utils.ValidateOpaqueID("loanId", loanID); err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid loanId"))
	}
	if err := utils.ValidateOpaqueID("borrowerId", borrowerID); err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid borrowerId"))
	}
	principal, err := utils.ValidatePositiveDecimal("amount", principalStr)
	if err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid amount"))
	}

	loan, err := e.store.CreateLoan(ctx, loanID, borrowerID, principal)
	if err != nil {
		if domain.KindOf(err) == domain.KindAlreadyExists {
			current, getErr := e.store.GetLoan(ctx, loanID)
			if getErr == nil && current.BorrowerID == borrowerID && current.Principal.Equal(principal) {
				metrics.LoanApplications.WithLabelValues("accepted").Inc()
				return acceptRequest(pr, loanID), pr
			}
			return nil, rejectRequest(pr, domain.AlreadyExists("loanId already exists with different borrowerId or principal"))
		}
		return nil, rejectRequest(pr, err)
	}

	e.appendAudit(ctx, loanID, domain.AuditLoanApplication, map[string]string{
		"borrowerId": borrowerID,
		"principal":  principal.String(),
	})

	event := &domain.Event{
		EventType: domain.EventApplication,
		LoanID:    loan.LoanID,
		Status:    domain.StatusNew,
		Amount:    loan.Principal.String(),
	}
	e.publishEvent(ctx, event)

	metrics.LoanApplications.WithLabelValues("accepted").Inc()
	return acceptRequest(pr, loanID), pr
}

// TopUpResult is returned by SubmitTopUp.
type TopUpResult struct {
	RequestID  string
	LoanID     string
	Collateral string
	Accepted   bool
}

// SubmitTopUp adds collateral to an existing loan. Idempotent on
// requestID. No event is emitted for the top-up itself; an activation
// event may follow if the caller's recheck hook fires.
func (e *Engine) SubmitTopUp(ctx context.Context, requestID, loanID, borrowerID, amountStr string) (*TopUpResult, error) {
	existing, claimed, err := e.store.RecordRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return replayTopUp(existing)
	}

	result, finalize := e.doSubmitTopUp(ctx, requestID, loanID, borrowerID, amountStr)
	if ferr := e.store.FinalizeRequest(ctx, finalize); ferr != nil {
		e.log.Error("finalize top-up request", zap.String("requestId", requestID), zap.Error(ferr))
	}
	if result != nil && e.recheck != nil {
		e.recheck(ctx, loanID)
	}
	return result, finalizeErr(finalize)
}

func (e *Engine) doSubmitTopUp(ctx context.Context, requestID, loanID, borrowerID, amountStr string) (*TopUpResult, *domain.ProcessedRequest) {
	pr := &domain.ProcessedRequest{RequestID: requestID}

	if err := utils.ValidateOpaqueID("loanId", loanID); err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid loanId"))
	}
	if err := utils.ValidateOpaqueID("borrowerId", borrowerID); err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid borrowerId"))
	}
	amount, err := utils.ValidatePositiveDecimal("amount", amountStr)
	if err != nil {
		return nil, rejectRequest(pr, domain.Validationf(err, "invalid amount"))
	}

	current, err := e.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, rejectRequest(pr, err)
	}
	if current.BorrowerID != borrowerID {
		return nil, rejectRequest(pr, domain.BorrowerMismatch("borrower does not match loan"))
	}
	if !current.CanAcceptTopUp() {
		return nil, rejectRequest(pr, domain.Terminal("loan is no longer accepting collateral top-ups"))
	}

	loan, err := e.store.AddCollateral(ctx, loanID, amount)
	if err != nil {
		metrics.CollateralTopUps.WithLabelValues("rejected").Inc()
		return nil, rejectRequest(pr, err)
	}

	e.appendAudit(ctx, loanID, domain.AuditCollateralTopUp, map[string]string{
		"borrowerId": borrowerID,
		"amount":     amount.String(),
	})

	metrics.CollateralTopUps.WithLabelValues("accepted").Inc()
	return acceptTopUp(pr, loanID, loan.Collateral.String()), pr
}

// ListLoans returns a snapshot of every loan, or only those matching
// status if it is non-empty.
func (e *Engine) ListLoans(ctx context.Context, status domain.Status) ([]*domain.Loan, error) {
	return e.store.ListLoans(ctx, status)
}

func (e *Engine) appendAudit(ctx context.Context, loanID string, op domain.AuditOp, details map[string]string) {
	if err := e.store.AppendAudit(ctx, &domain.AuditEntry{LoanID: loanID, Op: op, Details: details}); err != nil {
		e.log.Error("append audit entry", zap.String("loanId", loanID), zap.String("op", string(op)), zap.Error(err))
	}
}

func (e *Engine) publishEvent(ctx context.Context, event *domain.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.Warn("publish event uncertain after retry exhaustion",
			zap.String("loanId", event.LoanID), zap.String("eventType", string(event.EventType)), zap.Error(err))
		e.appendAudit(ctx, event.LoanID, domain.AuditEventPublishUncertain, map[string]string{
			"eventType": string(event.EventType),
		})
	}
}
