package domain

// EventType names one of the three lifecycle transitions the core publishes
// to the loan-events topic.
type EventType string

const (
	EventApplication EventType = "application"
	EventActivation  EventType = "activation"
	EventLiquidation EventType = "liquidation"
)

// Event is one outbound message on the loan-events topic. Fields unused by
// a given EventType are left zero; the publisher only serializes the ones
// the schema for EventType requires (see Payload).
type Event struct {
	EventID   string
	EventType EventType
	LoanID    string
	Status    Status

	// Amount carries the principal on an application event.
	Amount string

	// OutstandingBalance is carried on activation and liquidation events.
	OutstandingBalance string

	// CollateralSold, CollateralValue and RemainingCollateral are carried
	// only on liquidation events.
	CollateralSold      string
	CollateralValue     string
	RemainingCollateral string
}

// Payload renders e as the JSON-shaped field map the wire schema for its
// EventType requires, dropping fields the schema does not name.
func (e *Event) Payload() map[string]string {
	p := map[string]string{
		"eventId":   e.EventID,
		"eventType": string(e.EventType),
		"loanId":    e.LoanID,
		"status":    string(e.Status),
	}
	switch e.EventType {
	case EventApplication:
		p["amount"] = e.Amount
	case EventActivation:
		p["outstandingBalance"] = e.OutstandingBalance
	case EventLiquidation:
		p["collateralSold"] = e.CollateralSold
		p["collateralValue"] = e.CollateralValue
		p["remainingCollateral"] = e.RemainingCollateral
		p["outstandingBalance"] = e.OutstandingBalance
	}
	return p
}
