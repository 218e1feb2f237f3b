package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLeaseRepositoryAcquireSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO liquidation_leases`).
		WithArgs("loan-1", "worker-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewLeaseRepository(db)
	ok, err := repo.Acquire(context.Background(), "loan-1", "worker-1", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected lease to be acquired")
	}
}

func TestLeaseRepositoryAcquireLostToOtherOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO liquidation_leases`).
		WithArgs("loan-1", "worker-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLeaseRepository(db)
	ok, err := repo.Acquire(context.Background(), "loan-1", "worker-2", 30*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected lease acquisition to fail")
	}
}

func TestLeaseRepositoryRenewLostLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE liquidation_leases SET expires_at`).
		WithArgs(sqlmock.AnyArg(), "loan-1", "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewLeaseRepository(db)
	err = repo.Renew(context.Background(), "loan-1", "worker-1", 30*time.Second)
	if err == nil {
		t.Fatal("expected state conflict error")
	}
}
