package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is one of the four forward-only states a Loan progresses through.
type Status string

const (
	StatusNew         Status = "new"
	StatusActive      Status = "active"
	StatusLiquidating Status = "liquidating"
	StatusLiquidated  Status = "liquidated"
)

// ValidTransitions enumerates the only legal (from, to) status pairs. There
// is no reverse edge: once liquidating, a loan never returns to active even
// if the price recovers.
var ValidTransitions = map[Status]Status{
	StatusNew:         StatusActive,
	StatusActive:      StatusLiquidating,
	StatusLiquidating: StatusLiquidated,
}

// CanTransition reports whether (from, to) is one of the three allowed edges.
func CanTransition(from, to Status) bool {
	next, ok := ValidTransitions[from]
	return ok && next == to
}

// Loan is the central entity of the service.
type Loan struct {
	LoanID     string
	BorrowerID string

	// Principal is immutable after creation, denominated in GC.
	Principal decimal.Decimal

	// Collateral is monotonically non-decreasing via top-ups until the loan
	// reaches Liquidating, denominated in BSK.
	Collateral decimal.Decimal

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time

	LiquidationAttempts int

	// CollateralSold and ProceedsGC accumulate across liquidation lots.
	CollateralSold decimal.Decimal
	ProceedsGC     decimal.Decimal

	// OutstandingBalance and RemainingCollateral are only meaningful once
	// Status == Liquidated; computed at finalization.
	OutstandingBalance  decimal.Decimal
	RemainingCollateral decimal.Decimal
}

// CanAcceptTopUp reports whether a collateral top-up is legal for this loan's
// current status — top-ups are rejected once liquidating or liquidated.
func (l *Loan) CanAcceptTopUp() bool {
	return l.Status == StatusNew || l.Status == StatusActive
}

// IsTerminal reports whether the loan may no longer be mutated (only
// audit-log appends remain legal).
func (l *Loan) IsTerminal() bool {
	return l.Status == StatusLiquidated
}

// LTV computes principal / (collateral * midPrice). Returns a zero Decimal
// and false if collateral is zero (LTV undefined — treated as "not yet
// evaluable" by the caller, matching the unknown-midPrice no-op rule).
func (l *Loan) LTV(midPrice decimal.Decimal) (decimal.Decimal, bool) {
	denominator := l.Collateral.Mul(midPrice)
	if denominator.IsZero() {
		return decimal.Zero, false
	}
	return l.Principal.Div(denominator), true
}

// Snapshot is a defensive copy of Loan for handing out to callers outside
// the Store's lock — Decimal values are themselves immutable, so a shallow
// copy is sufficient.
func (l *Loan) Snapshot() Loan {
	return *l
}
