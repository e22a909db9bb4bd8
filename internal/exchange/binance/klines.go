package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marginloop/internal/exchange"
)

type rawKline []interface{}

func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return c.getKlines(ctx, symbol, interval, 0, 0, limit)
}

func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]exchange.Kline, error) {
	return c.getKlines(ctx, symbol, interval, start.UnixMilli(), end.UnixMilli(), 1500)
}

func (c *Client) getKlines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]exchange.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if startMs > 0 {
		q.Set("startTime", strconv.FormatInt(startMs, 10))
	}
	if endMs > 0 {
		q.Set("endTime", strconv.FormatInt(endMs, 10))
	}

	var raw []rawKline
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParamsFromValues(q).
		SetResult(&raw).
		Get(c.base + "/fapi/v1/klines")
	if err != nil {
		return nil, &exchange.NetworkError{Op: "GetKlines", Err: err}
	}
	if resp.IsError() {
		return nil, classify("GetKlines", resp.StatusCode(), resp.Body())
	}

	out := make([]exchange.Kline, 0, len(raw))
	for _, r := range raw {
		k, err := parseKline(r)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func parseKline(r rawKline) (exchange.Kline, error) {
	if len(r) < 7 {
		return exchange.Kline{}, fmt.Errorf("malformed kline row")
	}
	open, _ := toFloat(r[1])
	high, _ := toFloat(r[2])
	low, _ := toFloat(r[3])
	closeP, _ := toFloat(r[4])
	vol, _ := toFloat(r[5])
	openTime, _ := toInt(r[0])
	closeTime, _ := toInt(r[6])

	return exchange.Kline{
		OpenTime:  openTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    vol,
		CloseTime: closeTime,
	}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
