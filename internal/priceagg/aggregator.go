// Package priceagg normalizes raw price feeds from the two trading venues
// into a single internal shape and exposes the derived prices the rest of
// the system needs: per-venue staleness, a cross-venue mid price, and the
// effective sell price for a given sell quantity.
package priceagg

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/pkg/utils"
)

// Aggregator holds the latest tick seen from each venue and derives prices
// from whichever of them are still fresh.
type Aggregator struct {
	mu    sync.RWMutex
	ticks map[domain.Venue]*domain.PriceTick

	clock      utils.Clock
	maxTickAge time.Duration
}

// New constructs an Aggregator. maxTickAge is the MAX_TICK_AGE_SECONDS
// policy value: a tick older than this is treated as if the venue had
// never reported it.
func New(clock utils.Clock, maxTickAge time.Duration) *Aggregator {
	return &Aggregator{
		ticks:      make(map[domain.Venue]*domain.PriceTick),
		clock:      clock,
		maxTickAge: maxTickAge,
	}
}

// IngestVenueA parses and stores a raw tatooine-mos-espa-prices message.
func (a *Aggregator) IngestVenueA(raw []byte) error {
	tick, err := ParseVenueA(raw, a.clock.Now())
	if err != nil {
		metrics.PriceParseErrors.WithLabelValues(string(domain.VenueMosEspa)).Inc()
		return err
	}
	a.store(tick)
	return nil
}

// IngestVenueB parses and stores a raw
// batuu-black-spire-outpost-price-stream message. A message for an item
// other than BSK is dropped without being counted as a parse error.
func (a *Aggregator) IngestVenueB(raw []byte) error {
	tick, ok, err := ParseVenueB(raw, a.clock.Now())
	if err != nil {
		metrics.PriceParseErrors.WithLabelValues(string(domain.VenueBlackSpire)).Inc()
		return err
	}
	if !ok {
		return nil
	}
	a.store(tick)
	return nil
}

func (a *Aggregator) store(tick *domain.PriceTick) {
	a.mu.Lock()
	a.ticks[tick.Venue] = tick
	a.mu.Unlock()
	metrics.PriceTicksIngested.WithLabelValues(string(tick.Venue)).Inc()
}

// Latest returns the latest tick for venue if one exists and is still
// fresh under maxTickAge.
func (a *Aggregator) Latest(venue domain.Venue) (*domain.PriceTick, bool) {
	a.mu.RLock()
	tick, ok := a.ticks[venue]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if a.clock.Now().Sub(tick.ReceivedAt) > a.maxTickAge {
		return nil, false
	}
	return tick, true
}

// freshTicks returns the tick for every venue that currently has a fresh
// reading, in a stable order.
func (a *Aggregator) freshTicks() []*domain.PriceTick {
	venues := []domain.Venue{domain.VenueMosEspa, domain.VenueBlackSpire}
	fresh := make([]*domain.PriceTick, 0, len(venues))
	for _, v := range venues {
		if tick, ok := a.Latest(v); ok {
			fresh = append(fresh, tick)
		} else {
			metrics.PriceStaleVenue.WithLabelValues(string(v)).Set(1)
			continue
		}
		metrics.PriceStaleVenue.WithLabelValues(string(v)).Set(0)
	}
	return fresh
}

// MidPrice returns the mean of (sell1+buy1)/2 across every fresh venue.
// It reports false if no venue currently has a fresh tick.
func (a *Aggregator) MidPrice() (decimal.Decimal, bool) {
	fresh := a.freshTicks()
	if len(fresh) == 0 {
		return decimal.Zero, false
	}

	sum := decimal.Zero
	n := 0
	for _, tick := range fresh {
		sell1, ok := tick.Sell1()
		if !ok {
			continue
		}
		buy1, ok := tick.Buy1()
		if !ok {
			continue
		}
		mid := sell1.Add(buy1).Div(decimal.NewFromInt(2))
		sum = sum.Add(mid)
		n++
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true
}

// EffectiveSellPrice returns the best sell price across fresh venues for
// selling qty units of BSK, and the venue that offers it. Ties are broken
// in favor of MOS_ESPA.
func (a *Aggregator) EffectiveSellPrice(qty int) (price decimal.Decimal, venue domain.Venue, ok bool) {
	fresh := a.freshTicks()
	if len(fresh) == 0 {
		return decimal.Zero, "", false
	}

	// Evaluate MOS_ESPA first so an equal-value BLACK_SPIRE quote never
	// displaces it.
	ordered := make([]*domain.PriceTick, 0, len(fresh))
	for _, tick := range fresh {
		if tick.Venue == domain.VenueMosEspa {
			ordered = append(ordered, tick)
		}
	}
	for _, tick := range fresh {
		if tick.Venue != domain.VenueMosEspa {
			ordered = append(ordered, tick)
		}
	}

	for _, tick := range ordered {
		sell, tierOK := tick.SellPriceForTier(qty)
		if !tierOK {
			continue
		}
		if !ok || sell.GreaterThan(price) {
			price, venue, ok = sell, tick.Venue, true
		}
	}
	return price, venue, ok
}

// VenueFresh reports whether venue currently has a fresh tick. AllStale is
// built on it, and the liquidation worker consults AllStale.
func (a *Aggregator) VenueFresh(venue domain.Venue) bool {
	_, ok := a.Latest(venue)
	return ok
}

// AllStale reports whether neither venue currently has a fresh tick.
func (a *Aggregator) AllStale() bool {
	return !a.VenueFresh(domain.VenueMosEspa) && !a.VenueFresh(domain.VenueBlackSpire)
}

var errNoFreshPrice = fmt.Errorf("no fresh price available from either venue")

// RequireMidPrice is a convenience wrapper for callers (lifecycle, LTV
// evaluator) that treat an unavailable mid price as a hard error rather
// than a zero value.
func (a *Aggregator) RequireMidPrice() (decimal.Decimal, error) {
	mid, ok := a.MidPrice()
	if !ok {
		return decimal.Zero, errNoFreshPrice
	}
	return mid, nil
}
