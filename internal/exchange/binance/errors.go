package binance

import (
	"encoding/json"

	"marginloop/internal/common"
	"marginloop/internal/exchange"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// classify maps a Binance futures error body + HTTP status to the
// exchange package's typed taxonomy (spec §6.1/§7).
func classify(op string, status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	switch {
	case status == 418 || status == 429 || ae.Code == common.BinanceErrTooManyRequests:
		return &exchange.BanError{Op: op, Code: ae.Code, Msg: ae.Msg}
	case status >= 500:
		return &exchange.ServerError{Op: op, Code: ae.Code, Msg: ae.Msg}
	case status >= 400:
		return &exchange.ClientError{Op: op, Code: ae.Code, Msg: ae.Msg}
	default:
		return nil
	}
}

// tolerantMarginError reports whether code is one of the "nothing to do"
// responses MarginModeEnforcer treats as success rather than failure.
func tolerantMarginError(code int) bool {
	switch code {
	case common.BinanceErrNoNeedChangeMargin, common.BinanceErrMarginNotModified, common.BinanceErrNoNeedChangeLev:
		return true
	default:
		return false
	}
}
