package binance

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"marginloop/internal/exchange"
)

type positionRiskResp struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	MarginType       string `json:"marginType"`
	IsolatedMargin   string `json:"isolatedMargin"`
	PositionSide     string `json:"positionSide"`
}

func (c *Client) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	params := c.signedParams(q)

	var raw []positionRiskResp
	r, err := c.rest.R().SetContext(ctx).SetQueryParamsFromValues(params).SetResult(&raw).
		Get(c.base + "/fapi/v2/positionRisk")
	if err != nil {
		return nil, &exchange.NetworkError{Op: "GetPositions", Err: err}
	}
	if r.IsError() {
		return nil, classify("GetPositions", r.StatusCode(), r.Body())
	}

	out := make([]exchange.Position, 0, len(raw))
	for _, p := range raw {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)
		iso, _ := strconv.ParseFloat(p.IsolatedMargin, 64)
		out = append(out, exchange.Position{
			Symbol:         p.Symbol,
			PositionSide:   p.PositionSide,
			PositionAmt:    amt,
			EntryPrice:     entry,
			UnrealizedPnL:  pnl,
			Leverage:       lev,
			MarginType:     p.MarginType,
			IsolatedMargin: iso,
		})
	}
	return out, nil
}

type balanceResp struct {
	Asset              string `json:"asset"`
	Balance            string `json:"balance"`
	AvailableBalance   string `json:"availableBalance"`
}

func (c *Client) GetBalance(ctx context.Context, asset string) (exchange.AccountBalance, error) {
	params := c.signedParams(nil)

	var raw []balanceResp
	r, err := c.rest.R().SetContext(ctx).SetQueryParamsFromValues(params).SetResult(&raw).
		Get(c.base + "/fapi/v2/balance")
	if err != nil {
		return exchange.AccountBalance{}, &exchange.NetworkError{Op: "GetBalance", Err: err}
	}
	if r.IsError() {
		return exchange.AccountBalance{}, classify("GetBalance", r.StatusCode(), r.Body())
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

func bodyError(body []byte) (code int, msg string) {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	return ae.Code, ae.Msg
}
