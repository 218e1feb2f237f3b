package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue identifies one of the two trading markets.
type Venue string

const (
	VenueMosEspa    Venue = "MOS_ESPA"
	VenueBlackSpire Venue = "BLACK_SPIRE"
)

// Tiers is the fixed, ordered set of quantities venues quote prices at.
var Tiers = [4]int{1, 10, 50, 100}

// TierPrice is one rung of a ladder: a buy and sell price in GC per BSK at
// a given quantity tier.
type TierPrice struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

// PriceTick is a single venue's normalized snapshot, unified from either
// venue's wire shape into one internal ladder keyed by tier quantity.
type PriceTick struct {
	Venue           Venue
	ReceivedAt      time.Time
	SourceTimestamp time.Time
	Tiers           map[int]TierPrice
}

// Complete reports whether the ladder carries all four required tiers — an
// incomplete ladder means the whole tick must be discarded.
func (t *PriceTick) Complete() bool {
	if t == nil || t.Tiers == nil {
		return false
	}
	for _, q := range Tiers {
		if _, ok := t.Tiers[q]; !ok {
			return false
		}
	}
	return true
}

// SellPriceForTier returns the sell price for the smallest tier whose
// quantity is >= qty, using the 100-tier as a worst-case approximation for
// qty > 100. Returns false if the tick has no usable tiers.
func (t *PriceTick) SellPriceForTier(qty int) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	for _, q := range Tiers {
		if qty <= q {
			tp, ok := t.Tiers[q]
			if !ok {
				continue
			}
			return tp.Sell, true
		}
	}
	tp, ok := t.Tiers[Tiers[len(Tiers)-1]]
	if !ok {
		return decimal.Zero, false
	}
	return tp.Sell, true
}

// Sell1 returns the tier-1 sell price, used by midPrice.
func (t *PriceTick) Sell1() (decimal.Decimal, bool) {
	tp, ok := t.Tiers[1]
	if !ok {
		return decimal.Zero, false
	}
	return tp.Sell, true
}

// Buy1 returns the tier-1 buy price, used by midPrice.
func (t *PriceTick) Buy1() (decimal.Decimal, bool) {
	tp, ok := t.Tiers[1]
	if !ok {
		return decimal.Zero, false
	}
	return tp.Buy, true
}
