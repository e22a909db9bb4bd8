// Package exchange defines the venue-agnostic adapter interface the engine
// trades through, plus the error taxonomy every concrete implementation
// normalizes its failures into.
package exchange

import (
	"context"
	"time"
)

// Kline is one candlestick of a symbol/interval series.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// SymbolFilters holds exchange-reported trading rules for a symbol.
type SymbolFilters struct {
	Symbol        string
	TickSize      float64
	StepSize      float64
	MinQty        float64
	MinNotional   float64
	MaxLeverage   int
	PricePrecision int
	QtyPrecision   int
}

// Position mirrors one entry of the venue's position-risk response.
type Position struct {
	Symbol           string
	PositionSide     string // LONG | SHORT | BOTH
	PositionAmt      float64
	EntryPrice       float64
	UnrealizedPnL    float64
	Leverage         int
	MarginType       string
	IsolatedMargin   float64
}

// AccountBalance is a quote-asset balance snapshot.
type AccountBalance struct {
	Asset              string
	WalletBalance      float64
	AvailableBalance   float64
}

// OrderSide and OrderType enumerate the order shapes the engine places.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRequest is a market order to open or close a position leg.
type OrderRequest struct {
	Symbol       string
	Side         OrderSide
	PositionSide string // LONG | SHORT | BOTH, for hedge mode
	Quantity     float64
	ReduceOnly   bool
	ClientOrderID string
}

// Fill summarizes the execution result of a placed order. RealizedPnL,
// CommissionUSDT, NetRealized and TradeCount are populated by
// SummarizeFills, which aggregates every individual trade the order
// matched against rather than re-reading the order's own summary fields.
type Fill struct {
	OrderID        int64
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	AvgPrice       float64
	ExecutedQty    float64
	CumQuote       float64
	Status         string
	RealizedPnL    float64
	CommissionUSDT float64
	NetRealized    float64
	TradeCount     int
}

// Adapter is the venue-agnostic contract the rest of the engine trades
// through. Concrete implementations (internal/exchange/binance,
// internal/exchange/generic) normalize every transport/vendor error into
// the taxonomy below.
type Adapter interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]Kline, error)

	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	GetPositions(ctx context.Context, symbol string) ([]Position, error)
	GetBalance(ctx context.Context, asset string) (AccountBalance, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol, marginType string) error
	SetPositionMode(ctx context.Context, hedgeMode bool) error

	PlaceFuturesMarketOrder(ctx context.Context, req OrderRequest) (Fill, error)
	CloseLegExact(ctx context.Context, symbol, positionSide string, quantity float64) (Fill, error)
	SummarizeFills(ctx context.Context, symbol string, orderID int64) (Fill, error)
}
