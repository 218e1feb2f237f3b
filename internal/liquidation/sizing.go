package liquidation

import "github.com/shopspring/decimal"

// tierSet is the allowed lot-size set a single order can be quoted and
// executed at — the only sizes either venue has a ladder price for.
var tierSet = [...]int{1, 10, 50, 100}

// requiredQuantity computes q* = ceil(remainingPrincipal / midPrice), the
// BSK quantity still needed to close the remaining principal gap at the
// current mid price. Returns 0 if there is nothing left to cover.
func requiredQuantity(remainingPrincipal, midPrice decimal.Decimal) int {
	if midPrice.Sign() <= 0 || remainingPrincipal.Sign() <= 0 {
		return 0
	}
	qty := int(remainingPrincipal.Div(midPrice).Ceil().IntPart())
	if qty < 1 {
		qty = 1
	}
	return qty
}

// nextLotSize picks the single lot the worker should trade next toward
// covering qty: the largest tier that does not exceed qty, so the worker
// never sells more collateral than the gap currently requires. Repeated
// calls against the shrinking remainder decompose q* into a sequence of
// tier-sized lots — e.g. a remainder of 20 becomes two 10-lots rather than
// one 50-lot, since the 20-tier itself doesn't exist.
func nextLotSize(qty int) int {
	chosen := tierSet[0]
	for _, t := range tierSet {
		if t <= qty {
			chosen = t
		}
	}
	return chosen
}
