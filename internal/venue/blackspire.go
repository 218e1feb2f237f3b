package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/pkg/ratelimit"
)

var blackSpireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const blackSpireItem = "STEEL:MANDALORIAN"

// blackSpireOrderRequest is the POST /market/orders body. Unlike
// MOS_ESPA, amount is a JSON number, matching the rest of this venue's
// numeric (not string) wire convention.
type blackSpireOrderRequest struct {
	RequestID string `json:"requestId"`
	Side      string `json:"side"`
	Item      string `json:"item"`
	Amount    int    `json:"amount"`
}

// Amount and TotalPrice are decoded as json.Number rather than float64 so
// the achieved price is built from the exact wire text, never a binary
// float approximation.
type blackSpireOrderResponse struct {
	RequestID  string      `json:"requestId"`
	ID         string      `json:"id"`
	Amount     json.Number `json:"amount"`
	TotalPrice json.Number `json:"totalPrice"`
	Error      string      `json:"error"`
}

// BlackSpireClient places sell orders against the BLACK_SPIRE venue.
type BlackSpireClient struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.RateLimiter
}

// NewBlackSpireClient constructs a client against baseURL.
func NewBlackSpireClient(baseURL string, totalTimeout time.Duration, limiter *ratelimit.RateLimiter) *BlackSpireClient {
	return &BlackSpireClient{
		baseURL: baseURL,
		http:    newHTTPClient(DefaultHTTPClientConfig(totalTimeout)),
		limiter: limiter,
	}
}

func (c *BlackSpireClient) Name() string { return string(domain.VenueBlackSpire) }

// PlaceSellOrder sells qty BSK, reported to BLACK_SPIRE under its own
// item code. The achieved per-unit price is derived from totalPrice/amount
// since the venue reports a lot total, not a unit price.
func (c *BlackSpireClient) PlaceSellOrder(ctx context.Context, clientOrderID string, qty int) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, domain.Transient("rate limiter wait", err)
	}

	start := time.Now()
	body, err := blackSpireJSON.Marshal(blackSpireOrderRequest{
		RequestID: clientOrderID,
		Side:      "SELL",
		Item:      blackSpireItem,
		Amount:    qty,
	})
	if err != nil {
		return decimal.Zero, domain.Fatal("marshal BLACK_SPIRE order request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/market/orders", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, domain.Transient("build BLACK_SPIRE request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient("BLACK_SPIRE request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient(fmt.Sprintf("BLACK_SPIRE returned HTTP %d", resp.StatusCode), nil)
	}

	var parsed blackSpireOrderResponse
	if err := blackSpireJSON.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient("decode BLACK_SPIRE response", err)
	}

	if resp.StatusCode >= 400 || parsed.Error != "" {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "rejected").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.VenueRejected(parsed.Error, nil)
	}
	amount, err := decimal.NewFromString(parsed.Amount.String())
	if err != nil {
		return decimal.Zero, domain.Transient("parse BLACK_SPIRE amount", err)
	}
	if amount.IsZero() {
		return decimal.Zero, domain.Transient("BLACK_SPIRE reported zero amount filled", nil)
	}

	totalPrice, err := decimal.NewFromString(parsed.TotalPrice.String())
	if err != nil {
		return decimal.Zero, domain.Transient("parse BLACK_SPIRE total price", err)
	}

	achieved := totalPrice.Div(amount)

	metrics.VenueRequestLatency.WithLabelValues(c.Name(), "success").Observe(float64(time.Since(start).Milliseconds()))
	return achieved, nil
}
