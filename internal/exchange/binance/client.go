// Package binance implements exchange.Adapter against the Binance USDT-M
// futures REST API (spec §6.1): HMAC-SHA256 signed requests over
// /fapi/v1 and /fapi/v2 endpoints, with the venue's numeric error codes
// normalized into the exchange package's error taxonomy.
package binance

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is the Binance USDT-M futures REST adapter.
type Client struct {
	key, secret, base string
	rest              *resty.Client
	recvWindowMs      int64
}

// New creates a Binance REST client with pooled HTTP transport, matching
// the connection-reuse tuning of the rest of the engine's exchange
// clients.
func New(key, secret, base string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetRetryCount(3)
	r.SetRetryWaitTime(500 * time.Millisecond)
	r.SetRetryMaxWaitTime(5 * time.Second)

	return &Client{
		key:          key,
		secret:       secret,
		base:         base,
		rest:         r,
		recvWindowMs: 5000,
	}
}
