package generic

import (
	"context"
	"fmt"
	"strconv"

	"marginloop/internal/exchange"
)

type orderReq struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	TradeSide    string `json:"tradeSide"` // OPEN | CLOSE
	Qty          string `json:"qty"`
	OrderType    string `json:"orderType"`
	ReduceOnly   bool   `json:"reduceOnly,omitempty"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
}

type orderResp struct {
	Code          int    `json:"code"`
	Msg           string `json:"msg"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
}

func (c *Client) placeOrder(ctx context.Context, op string, req orderReq) (exchange.Fill, error) {
	resp := &orderResp{}
	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).
		SetBody(req).
		SetResult(resp).
		Post(c.base + "/api/v1/futures/trade/place_order")
	if err != nil {
		return exchange.Fill{}, &exchange.NetworkError{Op: op, Err: err}
	}
	if r.IsError() || resp.Code != 0 {
		return exchange.Fill{}, classifyCode(op, r.StatusCode(), resp.Code, resp.Msg)
	}

	avg, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)

	return exchange.Fill{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          exchange.OrderSide(req.Side),
		AvgPrice:      avg,
		ExecutedQty:   qty,
		Status:        resp.Status,
	}, nil
}

func (c *Client) PlaceFuturesMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Fill, error) {
	or := orderReq{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		TradeSide:     "OPEN",
		Qty:           strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		OrderType:     "MARKET",
		ReduceOnly:    req.ReduceOnly,
		ClientOrderID: req.ClientOrderID,
	}
	return c.placeOrder(ctx, "PlaceFuturesMarketOrder", or)
}

func (c *Client) CloseLegExact(ctx context.Context, symbol, positionSide string, quantity float64) (exchange.Fill, error) {
	side := "SELL"
	if positionSide == "SHORT" {
		side = "BUY"
	}
	or := orderReq{
		Symbol:     symbol,
		Side:       side,
		TradeSide:  "CLOSE",
		Qty:        strconv.FormatFloat(quantity, 'f', -1, 64),
		OrderType:  "MARKET",
		ReduceOnly: true,
	}
	return c.placeOrder(ctx, "CloseLegExact", or)
}

func (c *Client) SummarizeFills(ctx context.Context, symbol string, orderID int64) (exchange.Fill, error) {
	resp := &orderResp{}
	r, err := c.authHeaders(c.rest.R().SetContext(ctx)).
		SetQueryParams(map[string]string{"symbol": symbol, "orderId": strconv.FormatInt(orderID, 10)}).
		SetResult(resp).
		Get(c.base + "/api/v1/futures/trade/order")
	if err != nil {
		return exchange.Fill{}, &exchange.NetworkError{Op: "SummarizeFills", Err: err}
	}
	if r.IsError() || resp.Code != 0 {
		return exchange.Fill{}, classifyCode("SummarizeFills", r.StatusCode(), resp.Code, resp.Msg)
	}
	avg, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	return exchange.Fill{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		AvgPrice:      avg,
		ExecutedQty:   qty,
		Status:        resp.Status,
	}, nil
}

func classifyCode(op string, status, code int, msg string) error {
	switch {
	case status == 429 || status == 418:
		return &exchange.BanError{Op: op, Code: code, Msg: msg}
	case status >= 500:
		return &exchange.ServerError{Op: op, Code: code, Msg: msg}
	case code != 0 || status >= 400:
		return &exchange.ClientError{Op: op, Code: code, Msg: msg}
	default:
		return fmt.Errorf("generic: %s: unknown failure", op)
	}
}
