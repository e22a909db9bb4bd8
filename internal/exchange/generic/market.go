package generic

import (
	"context"
	"strconv"
	"time"

	"marginloop/internal/exchange"
)

func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return c.getKlines(ctx, symbol, interval, 0, 0, limit)
}

func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]exchange.Kline, error) {
	return c.getKlines(ctx, symbol, interval, start.UnixMilli(), end.UnixMilli(), 1000)
}

func (c *Client) getKlines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]exchange.Kline, error) {
	params := map[string]string{
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}
	if startMs > 0 {
		params["startTime"] = strconv.FormatInt(startMs, 10)
	}
	if endMs > 0 {
		params["endTime"] = strconv.FormatInt(endMs, 10)
	}

	var raw []struct {
		OpenTime  int64  `json:"openTime"`
		Open      string `json:"open"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Close     string `json:"close"`
		Volume    string `json:"volume"`
		CloseTime int64  `json:"closeTime"`
	}

	r, err := c.rest.R().SetContext(ctx).SetQueryParams(params).SetResult(&raw).
		Get(c.base + "/api/v1/market/klines")
	if err != nil {
		return nil, &exchange.NetworkError{Op: "GetKlines", Err: err}
	}
	if r.IsError() {
		return nil, classifyCode("GetKlines", r.StatusCode(), 0, r.String())
	}

	out := make([]exchange.Kline, 0, len(raw))
	for _, k := range raw {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		out = append(out, exchange.Kline{
			OpenTime: k.OpenTime, Open: open, High: high, Low: low,
			Close: closeP, Volume: vol, CloseTime: k.CloseTime,
		})
	}
	return out, nil
}

func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	var info struct {
		TickSize    string `json:"tickSize"`
		StepSize    string `json:"stepSize"`
		MinQty      string `json:"minQty"`
		MinNotional string `json:"minNotional"`
		MaxLeverage int    `json:"maxLeverage"`
	}
	r, err := c.rest.R().SetContext(ctx).SetQueryParams(map[string]string{"symbol": symbol}).SetResult(&info).
		Get(c.base + "/api/v1/futures/market/symbol")
	if err != nil {
		return exchange.SymbolFilters{}, &exchange.NetworkError{Op: "GetSymbolFilters", Err: err}
	}
	if r.IsError() {
		return exchange.SymbolFilters{}, classifyCode("GetSymbolFilters", r.StatusCode(), 0, r.String())
	}

	tick, _ := strconv.ParseFloat(info.TickSize, 64)
	step, _ := strconv.ParseFloat(info.StepSize, 64)
	minQty, _ := strconv.ParseFloat(info.MinQty, 64)
	minNotional, _ := strconv.ParseFloat(info.MinNotional, 64)

	maxLev := info.MaxLeverage
	if maxLev == 0 {
		maxLev = 100
	}

	return exchange.SymbolFilters{
		Symbol: symbol, TickSize: tick, StepSize: step,
		MinQty: minQty, MinNotional: minNotional, MaxLeverage: maxLev,
	}, nil
}
