package engine

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client bundles a pooled HTTP client with a single outbound rate
// limiter; both are shared across all engine adapters and targets. Grounded on the pooled-transport
// construction in the teacher's datasource.Aggregator
// (NewPooledHTTPClient), generalized from a fixed request timeout to
// per-call context deadlines so probe (10s) and deploy (30s) can share
// one client.
type Client struct {
	HTTP    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a pooled HTTP client. ratePerSecond throttles outbound
// calls across all adapters sharing this client (spec.md §9 additive
// hardening; does not change probe/deploy pass-fail semantics).
func NewClient(ratePerSecond float64) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}

	return &Client{
		HTTP:    &http.Client{Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
	}
}

// Limiter returns the shared outbound rate limiter; adapters call
// Limiter().Wait(ctx) immediately before issuing an HTTP request.
func (c *Client) Limiter() *rate.Limiter {
	return c.limiter
}
