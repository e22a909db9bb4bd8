// Package common holds shared constants used across the engine: env var
// names, config defaults, and validation bounds.
package common

// Environment variable keys
const (
	EnvAPIKey           = "EXCHANGE_API_KEY"
	EnvSecretKey        = "EXCHANGE_SECRET_KEY"
	EnvForceLiveTrading = "FORCE_LIVE_TRADING"
	EnvSymbols          = "SYMBOLS"
	EnvBaseURL          = "BASE_URL"
	EnvWsURL            = "WS_URL"
	EnvDataPath         = "DATA_PATH"
	EnvDryRun           = "DRY_RUN"
	EnvMetricsPort      = "METRICS_PORT"
	EnvLeverage         = "LEVERAGE"
	EnvMarginMode       = "MARGIN_MODE"
	EnvRESTTimeout      = "REST_TIMEOUT"
	EnvEventBusPort     = "EVENTBUS_PORT"
	EnvAccountType      = "ACCOUNT_TYPE"
	EnvConnectorBackend = "CONNECTOR_BACKEND"
)

// Configuration defaults
const (
	DefaultBaseURL             = "https://fapi.binance.com"
	DefaultWsURL               = "wss://fstream.binance.com/ws"
	DefaultMarginMode          = "ISOLATED"
	DefaultPositionMode        = "ONE_WAY"
	DefaultMetricsPort         = 8090
	DefaultEventBusPort        = 8091
	DefaultLeverage            = 10
	DefaultRESTTimeoutSeconds  = 10
	DefaultOrderRateIntervalMs = 1100
	DefaultMinOrderIntervalMs  = 250
	DefaultGuardWindowMinSec   = 8.0
	DefaultGuardWindowMaxSec   = 45.0
	DefaultGuardWindowFactor   = 1.5
	DefaultMarginTolerance           = 0.05
	DefaultMaxAutoBumpPercent        = 0.01
	DefaultAutoBumpPercentMultiplier = 1.5
)

// Common error messages
const (
	ErrMsgAPIKeyRequired   = "API key and secret are required"
	ErrMsgBaseURLRequired  = "baseURL is required"
	ErrMsgWsURLRequired    = "wsURL is required"
	ErrMsgSymbolRequired   = "at least one trading symbol is required"
	ErrMsgLiveTradingGuard = "live trading requires FORCE_LIVE_TRADING=true environment variable"
)

// Validation bounds
const (
	MinMetricsPort      = 1024
	MaxMetricsPort      = 65535
	MinLeverage         = 1
	MaxLeverage         = 125
	MinPositionPct      = 0.0001
	MaxPositionPct      = 1.0
	MinMarginTolerance  = 0.0
	MaxMarginTolerance  = 1.0
	MinConfirmBars      = 0
	MaxConfirmBars      = 100
	MinFlipCooldownSecs = 0
	MaxFlipCooldownSecs = 86400
)

// Binance futures error codes the adapter must tolerate or special-case.
const (
	BinanceErrTooManyRequests   = -1003
	BinanceErrInvalidTimestamp  = -1021
	BinanceErrInvalidTiming     = -1106
	BinanceErrReduceOnlyReject  = -2022
	BinanceErrNoNeedChangeMargin = -4046
	BinanceErrMarginNotModified = -4048
	BinanceErrNoNeedChangeLev   = -4099
)
