package domain

import "time"

// AuditOp names the kind of event an AuditEntry records. The log is
// append-only — nothing here is ever mutated or deleted.
type AuditOp string

const (
	AuditLoanApplication       AuditOp = "loan_application"
	AuditCollateralTopUp       AuditOp = "collateral_top_up"
	AuditActivationDecision    AuditOp = "activation_decision"
	AuditLiquidationStart      AuditOp = "liquidation_start"
	AuditLiquidationEnd        AuditOp = "liquidation_end"
	AuditTradeAttempt          AuditOp = "trade_attempt"
	AuditTradeOutcome          AuditOp = "trade_outcome"
	AuditEventPublishUncertain AuditOp = "event_publish_uncertain"
)

// AuditEntry is one append-only row tied to a loan's history. Details is a
// small free-form bag of op-specific fields (e.g. lotQuantity, venue,
// clientOrderID) kept as strings so the log stays schema-stable as new
// detail fields are added.
type AuditEntry struct {
	ID        int64
	LoanID    string
	Op        AuditOp
	Details   map[string]string
	CreatedAt time.Time
}
