package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/lifecycle"
	"beskarliquidator/internal/store"
	"beskarliquidator/pkg/utils"
)

type fakePublisher struct{ published []*domain.Event }

func (f *fakePublisher) Publish(ctx context.Context, event *domain.Event) error {
	f.published = append(f.published, event)
	return nil
}

func newTestHandler(t *testing.T) (*LoanHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	log := utils.InitLogger(utils.LogConfig{Level: "fatal", Format: "json"})
	engine := lifecycle.New(st, &fakePublisher{}, nil, log)
	return NewLoanHandler(engine, log), mock
}

func TestPostLoanApplicationAccepted(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO loans`).
		WithArgs("loan-1", "borrower-1", "1000", "0", domain.StatusNew,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "0", "0", "0", "0").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(applicationRequest{
		RequestID: "req-1", LoanID: "loan-1", BorrowerID: "borrower-1", Amount: "1000",
	})
	req := httptest.NewRequest(http.MethodPost, "/loan-applications", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.PostLoanApplication(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp applicationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted || resp.RequestID != "req-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestPostLoanApplicationValidationFailure(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec(`INSERT INTO processed_requests`).
		WithArgs("req-2", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE processed_requests SET`).
		WithArgs("rejected", "", "validation", sqlmock.AnyArg(), "req-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(applicationRequest{
		RequestID: "req-2", LoanID: "loan-2", BorrowerID: "borrower-1", Amount: "not-a-number",
	})
	req := httptest.NewRequest(http.MethodPost, "/loan-applications", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.PostLoanApplication(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetLoansReturnsSnapshots(t *testing.T) {
	h, mock := newTestHandler(t)

	now := time.Unix(0, 0).UTC()
	mock.ExpectQuery(`SELECT .+ FROM loans ORDER BY created_at`).
		WillReturnRows(sqlmock.NewRows([]string{
			"loan_id", "borrower_id", "principal", "collateral", "status",
			"created_at", "updated_at", "liquidation_attempts", "collateral_sold", "proceeds_gc",
			"outstanding_balance", "remaining_collateral",
		}).AddRow("loan-1", "borrower-1", "1000", "40", string(domain.StatusActive),
			now, now, 0, "0", "0", "0", "0"))

	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	rec := httptest.NewRecorder()

	h.GetLoans(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var loans []loanSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &loans); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(loans) != 1 || loans[0].LoanID != "loan-1" {
		t.Fatalf("unexpected loans: %+v", loans)
	}
}
