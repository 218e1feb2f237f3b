package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"beskarliquidator/internal/domain"
)

func TestAuditRepositoryAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs("loan-1", string(domain.AuditCollateralTopUp), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	repo := NewAuditRepository(db)
	entry := &domain.AuditEntry{
		LoanID:  "loan-1",
		Op:      domain.AuditCollateralTopUp,
		Details: map[string]string{"amount": "40"},
	}
	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != 7 {
		t.Errorf("expected id 7, got %d", entry.ID)
	}
}

func TestAuditRepositoryListByLoan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM audit_log WHERE loan_id = \$1`).
		WithArgs("loan-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "loan_id", "op", "details", "created_at"}).
			AddRow(1, "loan-1", string(domain.AuditLoanApplication), []byte(`{"principal":"1000"}`), now))

	repo := NewAuditRepository(db)
	entries, err := repo.ListByLoan(context.Background(), "loan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Details["principal"] != "1000" {
		t.Errorf("expected detail to round-trip, got %v", entries[0].Details)
	}
}
