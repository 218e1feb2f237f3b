package venue

import (
	"context"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig mirrors the connect/read/write/total timeout split the
// exchange clients used, tuned to the venues' policy knobs
// (VENUE_HTTP_TIMEOUT_MS) instead of a fixed exchange-specific default.
type HTTPClientConfig struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// DefaultHTTPClientConfig builds a config from the venue HTTP timeout
// policy knob; connect timeout is fixed at 5s per the spec's
// "5s connect + 15s total" cancellation rule.
func DefaultHTTPClientConfig(totalTimeout time.Duration) HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		TotalTimeout:        totalTimeout,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// newHTTPClient builds a pooled *http.Client from cfg.
func newHTTPClient(cfg HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.TotalTimeout,
	}
}
