package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Kline is one candlestick.
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Ping checks connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "api.ping", nil, false, nil)
}

// ServerTime returns Binance's clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "api.time", nil, false, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ServerTime).UTC(), nil
}

// Klines returns up to limit candles for symbol (exchange form, e.g. "BTCUSDT"),
// oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "api.klines", q, false, &rows); err != nil {
		return nil, err
	}

	out := make([]Kline, 0, len(rows))
	for i, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d: %v", ErrMalformed, i, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// parseKline decodes [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func parseKline(row []json.RawMessage) (Kline, error) {
	if len(row) < 7 {
		return Kline{}, fmt.Errorf("short row: %d fields", len(row))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return Kline{}, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return Kline{}, fmt.Errorf("close time: %w", err)
	}

	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = f
	}

	return Kline{
		OpenTime:  time.UnixMilli(openMs).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		CloseTime: time.UnixMilli(closeMs).UTC(),
	}, nil
}

// LotStepSize returns the LOT_SIZE step for symbol (exchange form). Order
// quantities must be a multiple of it.
func (c *Client) LotStepSize(ctx context.Context, symbol string) (string, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var out struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "api.exchangeInfo", q, false, &out); err != nil {
		return "", err
	}
	for _, s := range out.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" && f.StepSize != "" {
				return f.StepSize, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no LOT_SIZE filter for %s", ErrMalformed, symbol)
}
