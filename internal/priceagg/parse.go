package priceagg

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseVenueA normalizes a tatooine-mos-espa-prices message into a
// domain.PriceTick. Any malformed tier or unparsable decimal invalidates
// the whole tick, per the normalization rule that a parse error discards
// the entire message rather than just the bad tier.
func ParseVenueA(raw []byte, receivedAt time.Time) (*domain.PriceTick, error) {
	var msg wireVenueAMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("parse venue A message: %w", err)
	}

	sourceTimestamp, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse venue A timestamp %q: %w", msg.Timestamp, err)
	}

	tiers := make(map[int]domain.TierPrice, len(msg.Entries))
	for _, entry := range msg.Entries {
		buy, err := decimal.NewFromString(entry.Buy)
		if err != nil {
			return nil, fmt.Errorf("parse venue A buy price at tier %d: %w", entry.Quantity, err)
		}
		sell, err := decimal.NewFromString(entry.Sell)
		if err != nil {
			return nil, fmt.Errorf("parse venue A sell price at tier %d: %w", entry.Quantity, err)
		}
		tiers[entry.Quantity] = domain.TierPrice{Buy: buy, Sell: sell}
	}

	tick := &domain.PriceTick{
		Venue:           domain.VenueMosEspa,
		ReceivedAt:      receivedAt,
		SourceTimestamp: sourceTimestamp,
		Tiers:           tiers,
	}
	if !tick.Complete() {
		return nil, fmt.Errorf("venue A message missing one or more required tiers")
	}
	return tick, nil
}

// ParseVenueB normalizes a batuu-black-spire-outpost-price-stream message.
// Messages for items other than BSK are not an error — they are silently
// irrelevant — so the caller distinguishes "dropped, not BSK" from "parse
// failed" via the ok return.
func ParseVenueB(raw []byte, receivedAt time.Time) (tick *domain.PriceTick, ok bool, err error) {
	var msg wireVenueBMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false, fmt.Errorf("parse venue B message: %w", err)
	}

	if msg.Item != venueBBeskarItem {
		return nil, false, nil
	}

	buyByAmount := make(map[int]string, len(msg.Buy))
	for _, lvl := range msg.Buy {
		buyByAmount[lvl.Amount] = lvl.Price.String()
	}
	sellByAmount := make(map[int]string, len(msg.Sell))
	for _, lvl := range msg.Sell {
		sellByAmount[lvl.Amount] = lvl.Price.String()
	}

	tiers := make(map[int]domain.TierPrice, len(domain.Tiers))
	for _, q := range domain.Tiers {
		buyPrice, hasBuy := buyByAmount[q]
		sellPrice, hasSell := sellByAmount[q]
		if !hasBuy || !hasSell {
			continue
		}
		buy, err := decimal.NewFromString(buyPrice)
		if err != nil {
			return nil, false, fmt.Errorf("parse venue B buy price at tier %d: %w", q, err)
		}
		sell, err := decimal.NewFromString(sellPrice)
		if err != nil {
			return nil, false, fmt.Errorf("parse venue B sell price at tier %d: %w", q, err)
		}
		tiers[q] = domain.TierPrice{Buy: buy, Sell: sell}
	}

	tick = &domain.PriceTick{
		Venue:           domain.VenueBlackSpire,
		ReceivedAt:      receivedAt,
		SourceTimestamp: time.Unix(msg.Time, 0).UTC(),
		Tiers:           tiers,
	}
	if !tick.Complete() {
		return nil, false, fmt.Errorf("venue B message missing one or more required tiers")
	}
	return tick, true, nil
}
