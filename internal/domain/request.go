package domain

import "time"

// Outcome is the terminal result recorded for a processed request, returned
// verbatim on a retried submission of the same RequestID.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// ProcessedRequest is the idempotency record keyed by the caller-supplied
// RequestID. A second submission with the same RequestID never re-runs the
// operation — it replays Outcome and ResultLoanID from this record instead.
type ProcessedRequest struct {
	RequestID    string
	Outcome      Outcome
	ResultLoanID string
	ErrorKind    Kind
	ErrorMsg     string
	CreatedAt    time.Time
}
