// Package binance is a small REST client for the Binance spot and USDⓈ-M
// futures APIs. It covers the endpoints the signal bot needs: klines,
// balances, market orders with protective legs, leverage and ping.
//
// Usage example:
//
//	c := binance.New(binance.Config{Market: binance.Spot, APIKey: key, APISecret: secret})
//	kl, err := c.Klines(ctx, "BTCUSDT", "15m", 100)
//	if err != nil { log.Fatal(err) }
//	fmt.Println("last close:", kl[len(kl)-1].Close)
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Market selects the API family.
type Market int

const (
	Spot Market = iota
	Futures
)

func (m Market) String() string {
	if m == Futures {
		return "futures"
	}
	return "spot"
}

const (
	spotRoot           = "https://api.binance.com"
	spotTestnetRoot    = "https://testnet.binance.vision"
	futuresRoot        = "https://fapi.binance.com"
	futuresTestnetRoot = "https://testnet.binancefuture.com"

	defaultTimeout    = 10 * time.Second
	defaultRecvWindow = 5 * time.Second
)

var routes = map[Market]map[string]string{
	Spot: {
		"api.ping":         "/api/v3/ping",
		"api.time":         "/api/v3/time",
		"api.klines":       "/api/v3/klines",
		"api.exchangeInfo": "/api/v3/exchangeInfo",
		"api.account":      "/api/v3/account",
		"api.order":        "/api/v3/order",
		"api.oco":          "/api/v3/order/oco",
	},
	Futures: {
		"api.ping":         "/fapi/v1/ping",
		"api.time":         "/fapi/v1/time",
		"api.klines":       "/fapi/v1/klines",
		"api.exchangeInfo": "/fapi/v1/exchangeInfo",
		"api.balance":      "/fapi/v2/balance",
		"api.order":        "/fapi/v1/order",
		"api.batch":        "/fapi/v1/batchOrders",
		"api.leverage":     "/fapi/v1/leverage",
	},
}

// Market returns the API family this client talks to.
func (c *Client) Market() Market { return c.market }

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string { return c.rootURL }

// ErrMalformed marks a 2xx answer that could not be decoded.
var ErrMalformed = errors.New("binance: malformed response")

// APIError is a non-2xx answer from Binance.
type APIError struct {
	HTTPStatus int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d code %d: %s", e.HTTPStatus, e.Code, e.Msg)
}

// IsAuth reports whether the error is an authentication or permission failure.
func (e *APIError) IsAuth() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden ||
		e.Code == -2014 || e.Code == -2015 || e.Code == -1022
}

// IsServer reports whether Binance failed on its side or throttled the request.
func (e *APIError) IsServer() bool {
	return e.HTTPStatus >= 500 || e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus == 418
}

// ---- Helpers ----

func (c *Client) buildURL(route string) (string, error) {
	uri, ok := routes[c.market][route]
	if !ok {
		return "", fmt.Errorf("binance: unknown %s route: %s", c.market, route)
	}
	return c.rootURL + uri, nil
}

// encode renders the query string. Signed requests get recvWindow and
// timestamp, and the HMAC-SHA256 signature of everything before it appended last.
func (c *Client) encode(q url.Values, signed bool) string {
	if !signed {
		return q.Encode()
	}
	q.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	payload := q.Encode()
	return payload + "&signature=" + Sign(c.apiSecret, payload)
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest sends params in the query string, signs when asked, and decodes a
// 2xx JSON body into out. Non-2xx answers become *APIError; transport
// failures are returned as-is.
func (c *Client) doRequest(ctx context.Context, method, route string, params url.Values, signed bool, out any) error {
	fullURL, err := c.buildURL(route)
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	if enc := c.encode(params, signed); enc != "" {
		fullURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read %s: %w", route, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if jerr := json.Unmarshal(raw, apiErr); jerr != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, route, err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
