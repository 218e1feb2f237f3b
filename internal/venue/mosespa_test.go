package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/pkg/ratelimit"
)

func newUnlimitedLimiter() *ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(1000, 1000)
}

func TestMosEspaClientPlaceSellOrderSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mosEspaOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Quantity != "10" || req.Asset != "BESKAR" || req.Currency != "GC" {
			t.Errorf("unexpected request body: %+v", req)
		}
		json.NewEncoder(w).Encode(mosEspaOrderResponse{
			RequestID: req.RequestID, OrderID: "order-1", Success: true, Quantity: "10", Price: "101.00",
		})
	}))
	defer server.Close()

	client := NewMosEspaClient(server.URL, 5*time.Second, newUnlimitedLimiter())
	price, err := client.PlaceSellOrder(context.Background(), "client-order-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("101.00")) {
		t.Errorf("price = %s, want 101.00", price)
	}
}

func TestMosEspaClientPlaceSellOrderLogicalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mosEspaOrderResponse{Success: false, Reason: "insufficient liquidity"})
	}))
	defer server.Close()

	client := NewMosEspaClient(server.URL, 5*time.Second, newUnlimitedLimiter())
	_, err := client.PlaceSellOrder(context.Background(), "client-order-2", 10)
	if domain.KindOf(err) != domain.KindVenueRejected {
		t.Fatalf("expected a venue-rejected error, got %v", err)
	}
}

func TestMosEspaClientPlaceSellOrderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewMosEspaClient(server.URL, 5*time.Second, newUnlimitedLimiter())
	_, err := client.PlaceSellOrder(context.Background(), "client-order-3", 10)
	if domain.KindOf(err) != domain.KindTransient {
		t.Fatalf("expected a transient error, got %v", err)
	}
}
