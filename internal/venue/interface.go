// Package venue implements the two trading-venue clients the Liquidation
// Worker sells collateral through: MOS_ESPA and BLACK_SPIRE. Each has its
// own wire shape but exposes the same trimmed interface.
package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
)

// Client places market sell orders for BSK collateral on one venue.
type Client interface {
	// PlaceSellOrder sells qty units of BSK using clientOrderID as the
	// idempotency token for this specific attempt. It returns the price
	// per unit the venue reports having achieved.
	//
	// Errors are always a *domain.Error: a "success:false"-shaped body, an
	// HTTP 4xx/5xx, or a timeout all surface as domain.VenueRejected or
	// domain.Transient — both retryable by the caller, per the spec's
	// decision to treat every venue-side negative as retryable.
	PlaceSellOrder(ctx context.Context, clientOrderID string, qty int) (achievedPrice decimal.Decimal, err error)

	// Name identifies the venue for logging and metrics.
	Name() string
}

// Registry resolves a domain.Venue to its Client.
type Registry map[domain.Venue]Client
