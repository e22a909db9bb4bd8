// Grounded on internal/exchange/bitunix/leverage.go's respHasError
// tolerance pattern.
package generic

import (
	"context"
	"strconv"
	"strings"

	"marginloop/internal/exchange"
)

func (c *Client) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	var raw []struct {
		Symbol         string `json:"symbol"`
		PositionSide   string `json:"positionSide"`
		PositionAmt    string `json:"positionAmt"`
		EntryPrice     string `json:"entryPrice"`
		UnrealizedPnL  string `json:"unrealizedPnl"`
		Leverage       int    `json:"leverage"`
		MarginType     string `json:"marginType"`
		IsolatedMargin string `json:"isolatedMargin"`
	}

	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}

	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).SetQueryParams(params).SetResult(&raw).
		Get(c.base + "/api/v1/futures/position/list")
	if err != nil {
		return nil, &exchange.NetworkError{Op: "GetPositions", Err: err}
	}
	if r.IsError() {
		return nil, classifyCode("GetPositions", r.StatusCode(), 0, r.String())
	}

	out := make([]exchange.Position, 0, len(raw))
	for _, p := range raw {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnrealizedPnL, 64)
		iso, _ := strconv.ParseFloat(p.IsolatedMargin, 64)
		out = append(out, exchange.Position{
			Symbol: p.Symbol, PositionSide: p.PositionSide, PositionAmt: amt,
			EntryPrice: entry, UnrealizedPnL: pnl, Leverage: p.Leverage,
			MarginType: p.MarginType, IsolatedMargin: iso,
		})
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, asset string) (exchange.AccountBalance, error) {
	var raw []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}

	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).SetResult(&raw).
		Get(c.base + "/api/v1/futures/account/balance")
	if err != nil {
		return exchange.AccountBalance{}, &exchange.NetworkError{Op: "GetBalance", Err: err}
	}
	if r.IsError() {
		return exchange.AccountBalance{}, classifyCode("GetBalance", r.StatusCode(), 0, r.String())
	}

	for _, b := range raw {
		if b.Asset != asset {
			continue
		}
		wallet, _ := strconv.ParseFloat(b.Balance, 64)
		avail, _ := strconv.ParseFloat(b.AvailableBalance, 64)
		return exchange.AccountBalance{Asset: asset, WalletBalance: wallet, AvailableBalance: avail}, nil
	}
	return exchange.AccountBalance{}, &exchange.ClientError{Op: "GetBalance", Msg: "asset not found: " + asset}
}

type marginResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// respHasError reports a hard failure, tolerating the "already set to this
// value" class of message a venue returns for a no-op leverage/margin
// change.
func respHasError(r *marginResp) bool {
	if r.Code == 0 {
		return false
	}
	msg := strings.ToLower(r.Msg)
	if strings.Contains(msg, "no need") || strings.Contains(msg, "not modified") {
		return false
	}
	return true
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	resp := &marginResp{}
	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).
		SetBody(map[string]string{"symbol": symbol, "leverage": strconv.Itoa(leverage)}).
		SetResult(resp).
		Post(c.base + "/api/v1/futures/account/change_leverage")
	if err != nil {
		return &exchange.NetworkError{Op: "SetLeverage", Err: err}
	}
	if respHasError(resp) {
		return classifyCode("SetLeverage", r.StatusCode(), resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	resp := &marginResp{}
	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).
		SetBody(map[string]string{"symbol": symbol, "marginMode": marginType}).
		SetResult(resp).
		Post(c.base + "/api/v1/futures/account/change_margin_mode")
	if err != nil {
		return &exchange.NetworkError{Op: "SetMarginType", Err: err}
	}
	if respHasError(resp) {
		return classifyCode("SetMarginType", r.StatusCode(), resp.Code, resp.Msg)
	}
	return nil
}

func (c *Client) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	resp := &marginResp{}
	mode := "ONE_WAY"
	if hedgeMode {
		mode = "HEDGE"
	}
	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).
		SetBody(map[string]string{"positionMode": mode}).
		SetResult(resp).
		Post(c.base + "/api/v1/futures/account/change_position_mode")
	if err != nil {
		return &exchange.NetworkError{Op: "SetPositionMode", Err: err}
	}
	if respHasError(resp) {
		return classifyCode("SetPositionMode", r.StatusCode(), resp.Code, resp.Msg)
	}
	return nil
}
