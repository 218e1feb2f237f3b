package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/store"
	"beskarliquidator/pkg/utils"
)

const loanColumns = `loan_id, borrower_id, principal::text, collateral::text, status,
	created_at, updated_at, liquidation_attempts, collateral_sold::text, proceeds_gc::text,
	outstanding_balance::text, remaining_collateral::text`

func loanRow(loanID, borrowerID string, status domain.Status) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"loan_id", "borrower_id", "principal", "collateral", "status",
		"created_at", "updated_at", "liquidation_attempts", "collateral_sold", "proceeds_gc",
		"outstanding_balance", "remaining_collateral",
	}).AddRow(loanID, borrowerID, "1000", "40", status,
		time.Now(), time.Now(), 0, "0", "0", "0", "0")
}

type fakePublisher struct {
	published []*domain.Event
	fail      bool
}

func (f *fakePublisher) Publish(ctx context.Context, event *domain.Event) error {
	if f.fail {
		return domain.BusPublishFailure("bus unreachable", nil)
	}
	f.published = append(f.published, event)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *fakePublisher) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	pub := &fakePublisher{}
	log := utils.InitLogger(utils.LogConfig{Level: "fatal", Format: "json"})
	return New(st, pub, nil, log), mock, pub
}

func TestSubmitApplicationAcceptsAndPublishes(t *testing.T) {
	e, mock, pub := newTestEngine(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO loans`).
		WithArgs("loan-1", "borrower-1", "1000", "0", domain.StatusNew,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "0", "0", "0", "0").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs("loan-1", string(domain.AuditLoanApplication), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WithArgs("accepted", "loan-1", "unknown", "", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := e.SubmitApplication(context.Background(), "req-1", "loan-1", "borrower-1", "1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Accepted || result.LoanID != "loan-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(pub.published) != 1 || pub.published[0].EventType != domain.EventApplication {
		t.Fatalf("expected one application event, got %+v", pub.published)
	}
	if pub.published[0].Amount != "1000" {
		t.Errorf("event amount = %q, want 1000", pub.published[0].Amount)
	}
}

func TestSubmitApplicationRejectsInvalidAmount(t *testing.T) {
	e, mock, pub := newTestEngine(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-2", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WithArgs("rejected", "", "validation", sqlmock.AnyArg(), "req-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := e.SubmitApplication(context.Background(), "req-2", "loan-2", "borrower-1", "-5")
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if domain.KindOf(err) != domain.KindValidation {
		t.Errorf("KindOf(err) = %v, want validation", domain.KindOf(err))
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no event published for a rejected application")
	}
}

func TestSubmitApplicationReplaysDuplicate(t *testing.T) {
	e, mock, pub := newTestEngine(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-3", "", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery(`SELECT .+ FROM processed_requests WHERE request_id = \$1`).
		WithArgs("req-3").
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "outcome", "result_loan_id", "error_kind", "error_msg", "created_at"}).
			AddRow("req-3", "accepted", "loan-3", "", "", time.Now()))

	result, err := e.SubmitApplication(context.Background(), "req-3", "loan-3", "borrower-1", "1000")
	if domain.KindOf(err) != domain.KindDuplicate {
		t.Fatalf("expected a duplicate error, got %v", err)
	}
	if result == nil || result.LoanID != "loan-3" {
		t.Fatalf("expected replayed result pointing at loan-3, got %+v", result)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no event published on replay")
	}
}

func TestSubmitTopUpRejectsTerminalLoan(t *testing.T) {
	e, mock, pub := newTestEngine(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-4", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT ` + loanColumns + ` FROM loans WHERE loan_id = \$1`).
		WithArgs("loan-4").
		WillReturnRows(loanRow("loan-4", "borrower-1", domain.StatusLiquidated))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WithArgs("rejected", "", "terminal", sqlmock.AnyArg(), "req-4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := e.SubmitTopUp(context.Background(), "req-4", "loan-4", "borrower-1", "5")
	if domain.KindOf(err) != domain.KindTerminal {
		t.Fatalf("expected a terminal error, got %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no event published")
	}
}

func TestSubmitTopUpRejectsBorrowerMismatch(t *testing.T) {
	e, mock, _ := newTestEngine(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-5", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT ` + loanColumns + ` FROM loans WHERE loan_id = \$1`).
		WithArgs("loan-5").
		WillReturnRows(loanRow("loan-5", "someone-else", domain.StatusActive))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WithArgs("rejected", "", "borrower_mismatch", sqlmock.AnyArg(), "req-5").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := e.SubmitTopUp(context.Background(), "req-5", "loan-5", "borrower-1", "5")
	if domain.KindOf(err) != domain.KindBorrowerMismatch {
		t.Fatalf("expected a borrower-mismatch error, got %v", err)
	}
}
