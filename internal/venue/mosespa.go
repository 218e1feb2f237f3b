package venue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/pkg/ratelimit"
)

var mosEspaJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// mosEspaOrderRequest is the POST /orders body. Every field, including
// quantity, is sent as a string.
type mosEspaOrderRequest struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
	Side      string `json:"side"`
	Asset     string `json:"asset"`
	Currency  string `json:"currency"`
	Quantity  string `json:"quantity"`
}

// mosEspaOrderResponse covers both the success and failure response
// shapes; only one set of fields is populated per response.
type mosEspaOrderResponse struct {
	RequestID string `json:"requestId"`
	OrderID   string `json:"orderId"`
	Success   bool   `json:"success"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	Reason    string `json:"reason"`
}

// MosEspaClient places sell orders against the MOS_ESPA venue.
type MosEspaClient struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.RateLimiter
}

// NewMosEspaClient constructs a client against baseURL.
func NewMosEspaClient(baseURL string, totalTimeout time.Duration, limiter *ratelimit.RateLimiter) *MosEspaClient {
	return &MosEspaClient{
		baseURL: baseURL,
		http:    newHTTPClient(DefaultHTTPClientConfig(totalTimeout)),
		limiter: limiter,
	}
}

func (c *MosEspaClient) Name() string { return string(domain.VenueMosEspa) }

// PlaceSellOrder sells qty BSK via a market sell order.
func (c *MosEspaClient) PlaceSellOrder(ctx context.Context, clientOrderID string, qty int) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, domain.Transient("rate limiter wait", err)
	}

	start := time.Now()
	body, err := mosEspaJSON.Marshal(mosEspaOrderRequest{
		RequestID: clientOrderID,
		Type:      "market",
		Side:      "sell",
		Asset:     "BESKAR",
		Currency:  "GC",
		Quantity:  strconv.Itoa(qty),
	})
	if err != nil {
		return decimal.Zero, domain.Fatal("marshal MOS_ESPA order request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, domain.Transient("build MOS_ESPA request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient("MOS_ESPA request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient(fmt.Sprintf("MOS_ESPA returned HTTP %d", resp.StatusCode), nil)
	}

	var parsed mosEspaOrderResponse
	if err := mosEspaJSON.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "transient").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.Transient("decode MOS_ESPA response", err)
	}

	if resp.StatusCode >= 400 || !parsed.Success {
		metrics.VenueRequestLatency.WithLabelValues(c.Name(), "rejected").Observe(float64(time.Since(start).Milliseconds()))
		return decimal.Zero, domain.VenueRejected(parsed.Reason, nil)
	}

	price, err := decimal.NewFromString(parsed.Price)
	if err != nil {
		return decimal.Zero, domain.Transient("parse MOS_ESPA achieved price", err)
	}

	metrics.VenueRequestLatency.WithLabelValues(c.Name(), "success").Observe(float64(time.Since(start).Milliseconds()))
	return price, nil
}
