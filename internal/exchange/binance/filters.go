package binance

import (
	"context"
	"strconv"

	"marginloop/internal/exchange"
)

type exchangeInfoResp struct {
	Symbols []struct {
		Symbol            string `json:"symbol"`
		PricePrecision    int    `json:"pricePrecision"`
		QuantityPrecision int    `json:"quantityPrecision"`
		Filters           []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			Notional    string `json:"notional"`
		} `json:"filters"`
	} `json:"symbols"`
}

type leverageBracketResp []struct {
	Symbol   string `json:"symbol"`
	Brackets []struct {
		InitialLeverage int `json:"initialLeverage"`
	} `json:"brackets"`
}

// GetSymbolFilters fetches tick/step/minQty/minNotional and the venue's
// leverage ceiling for symbol, combining /fapi/v1/exchangeInfo and
// /fapi/v1/leverageBracket the way FilterRegistry requires (spec §4.4).
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	var info exchangeInfoResp
	resp, err := c.rest.R().SetContext(ctx).SetResult(&info).Get(c.base + "/fapi/v1/exchangeInfo")
	if err != nil {
		return exchange.SymbolFilters{}, &exchange.NetworkError{Op: "GetSymbolFilters", Err: err}
	}
	if resp.IsError() {
		return exchange.SymbolFilters{}, classify("GetSymbolFilters", resp.StatusCode(), resp.Body())
	}

	out := exchange.SymbolFilters{Symbol: symbol}
	found := false
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		found = true
		out.PricePrecision = s.PricePrecision
		out.QtyPrecision = s.QuantityPrecision
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				out.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
			case "LOT_SIZE":
				out.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
				out.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
			case "MIN_NOTIONAL":
				out.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
			}
		}
	}
	if !found {
		return exchange.SymbolFilters{}, &exchange.ClientError{Op: "GetSymbolFilters", Msg: "symbol not found: " + symbol}
	}

	var brackets leverageBracketResp
	q := c.signedParams(nil)
	q.Set("symbol", symbol)
	bResp, err := c.rest.R().SetContext(ctx).SetQueryParamsFromValues(q).SetResult(&brackets).
		Get(c.base + "/fapi/v1/leverageBracket")
	if err == nil && !bResp.IsError() {
		for _, b := range brackets {
			if b.Symbol == symbol && len(b.Brackets) > 0 {
				out.MaxLeverage = b.Brackets[0].InitialLeverage
			}
		}
	}
	if out.MaxLeverage == 0 {
		out.MaxLeverage = 125
	}

	return out, nil
}
