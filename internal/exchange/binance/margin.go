// Grounded on internal/exchange/bitunix/leverage.go: ChangeLeverage and
// ChangeMarginMode both tolerate venue "nothing to change" responses
// instead of surfacing them as failures, since MarginModeEnforcer must be
// idempotent (spec §4.11).
package binance

import (
	"context"
	"net/url"
	"strconv"

	"marginloop/internal/exchange"
)

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	params := c.signedParams(q)

	r, err := c.rest.R().SetContext(ctx).SetFormDataFromValues(params).
		Post(c.base + "/fapi/v1/leverage")
	if err != nil {
		return &exchange.NetworkError{Op: "SetLeverage", Err: err}
	}
	if r.IsError() {
		code, _ := bodyError(r.Body())
		if tolerantMarginError(code) {
			return nil
		}
		return classify("SetLeverage", r.StatusCode(), r.Body())
	}
	return nil
}

func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("marginType", marginType)
	params := c.signedParams(q)

	r, err := c.rest.R().SetContext(ctx).SetFormDataFromValues(params).
		Post(c.base + "/fapi/v1/marginType")
	if err != nil {
		return &exchange.NetworkError{Op: "SetMarginType", Err: err}
	}
	if r.IsError() {
		code, _ := bodyError(r.Body())
		if tolerantMarginError(code) {
			return nil
		}
		return classify("SetMarginType", r.StatusCode(), r.Body())
	}
	return nil
}

func (c *Client) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	q := url.Values{}
	q.Set("dualSidePosition", strconv.FormatBool(hedgeMode))
	params := c.signedParams(q)

	r, err := c.rest.R().SetContext(ctx).SetFormDataFromValues(params).
		Post(c.base + "/fapi/v1/positionSide/dual")
	if err != nil {
		return &exchange.NetworkError{Op: "SetPositionMode", Err: err}
	}
	if r.IsError() {
		code, _ := bodyError(r.Body())
		if tolerantMarginError(code) {
			return nil
		}
		return classify("SetPositionMode", r.StatusCode(), r.Body())
	}
	return nil
}
