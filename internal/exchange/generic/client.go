// Package generic implements exchange.Adapter against a bitunix-style
// futures REST API: api-key/nonce/timestamp header signing instead of a
// signed query string. It is the "Variants (per vendor SDK)" alternate
// backend of spec §4.1, grounded directly on
// internal/exchange/bitunix/rest.go and signer.go.
package generic

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a generic REST adapter for bitunix-style futures venues.
type Client struct {
	key, secret, base string
	rest              *resty.Client
}

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
		r.SetTimeout(5 * time.Second)
	}
	r.SetRetryCount(3)
	r.SetRetryWaitTime(1 * time.Second)
	r.SetRetryMaxWaitTime(5 * time.Second)

	return &Client{key: key, secret: secret, base: base, rest: r}
}

// sign reproduces the bitunix double-SHA256 scheme: sha256(nonce +
// timestamp + apiKey + secret), hashed twice.
func sign(secret, nonce, apiKey, ts string) string {
	first := sha256.Sum256([]byte(nonce + ts + apiKey + secret))
	firstHex := hex.EncodeToString(first[:])
	second := sha256.Sum256([]byte(firstHex + secret))
	return hex.EncodeToString(second[:])
}

func (c *Client) authHeaders(r *resty.Request) *resty.Request {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := ts
	return r.
		SetHeader("api-key", c.key).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign(c.secret, nonce, c.key, ts))
}
