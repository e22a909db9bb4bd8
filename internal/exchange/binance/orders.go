package binance

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"marginloop/internal/common"
	"marginloop/internal/exchange"

	"github.com/rs/zerolog/log"
)

type orderResp struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cumQuote"`
}

func (c *Client) PlaceFuturesMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Fill, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", "MARKET")
	q.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.PositionSide != "" {
		q.Set("positionSide", req.PositionSide)
	}
	if req.ReduceOnly {
		q.Set("reduceOnly", "true")
	}
	if req.ClientOrderID != "" {
		q.Set("newClientOrderId", req.ClientOrderID)
	}

	return c.postOrder(ctx, "PlaceFuturesMarketOrder", q)
}

// CloseLegExact closes exactly quantity of symbol/positionSide with a
// reduce-only market order, falling back per spec §4.1/§6.1 when the
// venue rejects the straightforward close:
//   - -1106 (reduce-only rejected by the book): retry as an IOC limit
//     order priced at the crossed spread, which still fills immediately
//     but isn't subject to the reduce-only check that just failed.
//   - -2022 (reduceOnly order rejected): retry with closePosition=true,
//     which closes the whole position server-side regardless of the
//     qty/reduceOnly bookkeeping that tripped.
func (c *Client) CloseLegExact(ctx context.Context, symbol, positionSide string, quantity float64) (exchange.Fill, error) {
	side := string(exchange.SideSell)
	if positionSide == "SHORT" {
		side = string(exchange.SideBuy)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", side)
	q.Set("type", "MARKET")
	q.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	if positionSide != "" && positionSide != "BOTH" {
		q.Set("positionSide", positionSide)
	} else {
		q.Set("reduceOnly", "true")
	}

	fill, err := c.postOrder(ctx, "CloseLegExact", q)
	if err == nil {
		return fill, nil
	}

	var ce *exchange.ClientError
	if !errors.As(err, &ce) {
		return exchange.Fill{}, err
	}

	switch ce.Code {
	case common.BinanceErrInvalidTiming:
		log.Warn().Str("symbol", symbol).Msg("binance: reduce-only close rejected (-1106), falling back to IOC at crossed spread")
		return c.closeLegIOCAtSpread(ctx, symbol, side, positionSide, quantity)
	case common.BinanceErrReduceOnlyReject:
		log.Warn().Str("symbol", symbol).Msg("binance: reduceOnly order rejected (-2022), falling back to closePosition")
		return c.closeLegClosePosition(ctx, symbol, side, positionSide)
	default:
		return exchange.Fill{}, err
	}
}

func (c *Client) closeLegIOCAtSpread(ctx context.Context, symbol, side, positionSide string, quantity float64) (exchange.Fill, error) {
	bid, ask, err := c.bookTicker(ctx, symbol)
	if err != nil {
		return exchange.Fill{}, err
	}
	price := ask
	if side == string(exchange.SideSell) {
		price = bid
	}
	if price <= 0 {
		return exchange.Fill{}, &exchange.ClientError{Op: "CloseLegExact", Msg: "no book ticker price for IOC fallback on " + symbol}
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", side)
	q.Set("type", "LIMIT")
	q.Set("timeInForce", "IOC")
	q.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	q.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	if positionSide != "" && positionSide != "BOTH" {
		q.Set("positionSide", positionSide)
	} else {
		q.Set("reduceOnly", "true")
	}
	return c.postOrder(ctx, "CloseLegExact:iocFallback", q)
}

func (c *Client) closeLegClosePosition(ctx context.Context, symbol, side, positionSide string) (exchange.Fill, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", side)
	q.Set("type", "MARKET")
	q.Set("closePosition", "true")
	if positionSide != "" && positionSide != "BOTH" {
		q.Set("positionSide", positionSide)
	}
	return c.postOrder(ctx, "CloseLegExact:closePositionFallback", q)
}

func (c *Client) postOrder(ctx context.Context, op string, q url.Values) (exchange.Fill, error) {
	var resp orderResp
	params := c.signedParams(q)
	r, err := c.rest.R().SetContext(ctx).SetFormDataFromValues(params).SetResult(&resp).
		Post(c.base + "/fapi/v1/order")
	if err != nil {
		return exchange.Fill{}, &exchange.NetworkError{Op: op, Err: err}
	}
	if r.IsError() {
		return exchange.Fill{}, classify(op, r.StatusCode(), r.Body())
	}

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	executedQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	cumQuote, _ := strconv.ParseFloat(resp.CumQuote, 64)

	return exchange.Fill{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          exchange.OrderSide(resp.Side),
		AvgPrice:      avgPrice,
		ExecutedQty:   executedQty,
		CumQuote:      cumQuote,
		Status:        resp.Status,
	}, nil
}

type bookTickerResp struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// bookTicker fetches the best bid/ask for symbol, unsigned (public market
// data), used to price the IOC fallback at the crossed spread.
func (c *Client) bookTicker(ctx context.Context, symbol string) (bid, ask float64, err error) {
	var resp bookTickerResp
	r, reqErr := c.rest.R().SetContext(ctx).SetQueryParam("symbol", symbol).SetResult(&resp).
		Get(c.base + "/fapi/v1/ticker/bookTicker")
	if reqErr != nil {
		return 0, 0, &exchange.NetworkError{Op: "CloseLegExact:bookTicker", Err: reqErr}
	}
	if r.IsError() {
		return 0, 0, classify("CloseLegExact:bookTicker", r.StatusCode(), r.Body())
	}
	bid, _ = strconv.ParseFloat(resp.BidPrice, 64)
	ask, _ = strconv.ParseFloat(resp.AskPrice, 64)
	return bid, ask, nil
}

type userTrade struct {
	Symbol          string `json:"symbol"`
	OrderID         int64  `json:"orderId"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	RealizedPnl     string `json:"realizedPnl"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
}

// SummarizeFills aggregates every userTrade the order matched into one
// Fill: qty-weighted average price, summed realized P&L, and summed
// commission converted to USDT. A single empty response is retried once
// after 200ms — Binance's trade feed can briefly lag order acknowledgment.
func (c *Client) SummarizeFills(ctx context.Context, symbol string, orderID int64) (exchange.Fill, error) {
	trades, err := c.userTradesForOrder(ctx, symbol, orderID)
	if err != nil {
		return exchange.Fill{}, err
	}
	if len(trades) == 0 {
		time.Sleep(200 * time.Millisecond)
		trades, err = c.userTradesForOrder(ctx, symbol, orderID)
		if err != nil {
			return exchange.Fill{}, err
		}
	}
	if len(trades) == 0 {
		return exchange.Fill{}, &exchange.ClientError{Op: "SummarizeFills", Msg: "no userTrades reported for order " + strconv.FormatInt(orderID, 10)}
	}

	var qty, notional, realized, commissionUSDT float64
	var side exchange.OrderSide
	for _, t := range trades {
		price, _ := strconv.ParseFloat(t.Price, 64)
		q, _ := strconv.ParseFloat(t.Qty, 64)
		pnl, _ := strconv.ParseFloat(t.RealizedPnl, 64)
		commission, _ := strconv.ParseFloat(t.Commission, 64)

		qty += q
		notional += price * q
		realized += pnl
		commissionUSDT += c.commissionInUSDT(ctx, commission, t.CommissionAsset)
		side = exchange.OrderSide(t.Side)
	}

	var avgPrice float64
	if qty > 0 {
		avgPrice = notional / qty
	}

	return exchange.Fill{
		OrderID:        orderID,
		Symbol:         symbol,
		Side:           side,
		AvgPrice:       avgPrice,
		ExecutedQty:    qty,
		CumQuote:       notional,
		Status:         "FILLED",
		RealizedPnL:    realized,
		CommissionUSDT: commissionUSDT,
		NetRealized:    realized - commissionUSDT,
		TradeCount:     len(trades),
	}, nil
}

func (c *Client) userTradesForOrder(ctx context.Context, symbol string, orderID int64) ([]userTrade, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", strconv.FormatInt(orderID, 10))
	params := c.signedParams(q)

	var trades []userTrade
	r, err := c.rest.R().SetContext(ctx).SetQueryParamsFromValues(params).SetResult(&trades).
		Get(c.base + "/fapi/v1/userTrades")
	if err != nil {
		return nil, &exchange.NetworkError{Op: "SummarizeFills", Err: err}
	}
	if r.IsError() {
		return nil, classify("SummarizeFills", r.StatusCode(), r.Body())
	}
	return trades, nil
}

// commissionInUSDT converts a commission amount charged in asset into
// USDT via its spot ticker price. Commission already in USDT (the common
// case once a BNB fee-discount balance runs dry) needs no conversion.
func (c *Client) commissionInUSDT(ctx context.Context, amount float64, asset string) float64 {
	if amount == 0 {
		return 0
	}
	if asset == "" || asset == "USDT" {
		return amount
	}
	price, err := c.lastPrice(ctx, asset+"USDT")
	if err != nil || price <= 0 {
		log.Warn().Str("asset", asset).Msg("binance: commission asset has no USDT ticker, counting fee at par")
		return amount
	}
	return amount * price
}

func (c *Client) lastPrice(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	r, err := c.rest.R().SetContext(ctx).SetQueryParam("symbol", symbol).SetResult(&resp).
		Get(c.base + "/fapi/v1/ticker/price")
	if err != nil {
		return 0, &exchange.NetworkError{Op: "SummarizeFills:lastPrice", Err: err}
	}
	if r.IsError() {
		return 0, classify("SummarizeFills:lastPrice", r.StatusCode(), r.Body())
	}
	p, _ := strconv.ParseFloat(resp.Price, 64)
	return p, nil
}
