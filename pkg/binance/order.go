package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Order types and sides used by the bot.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TypeMarket           = "MARKET"
	TypeStopMarket       = "STOP_MARKET"
	TypeTakeProfitMarket = "TAKE_PROFIT_MARKET"
)

// OrderParams describes one order. Zero fields are omitted from the request.
type OrderParams struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      float64
	Price         float64
	StopPrice     float64
	TimeInForce   string
	ClientOrderID string
	ClosePosition bool // futures only
	ReduceOnly    bool // futures only
	WorkingType   string
}

func (p OrderParams) values() map[string]string {
	v := map[string]string{
		"symbol": p.Symbol,
		"side":   p.Side,
		"type":   p.Type,
	}
	if p.Quantity > 0 {
		v["quantity"] = formatFloat(p.Quantity)
	}
	if p.Price > 0 {
		v["price"] = formatFloat(p.Price)
	}
	if p.StopPrice > 0 {
		v["stopPrice"] = formatFloat(p.StopPrice)
	}
	if p.TimeInForce != "" {
		v["timeInForce"] = p.TimeInForce
	}
	if p.ClientOrderID != "" {
		v["newClientOrderId"] = p.ClientOrderID
	}
	if p.ClosePosition {
		v["closePosition"] = "true"
	}
	if p.ReduceOnly {
		v["reduceOnly"] = "true"
	}
	if p.WorkingType != "" {
		v["workingType"] = p.WorkingType
	}
	return v
}

// OrderResponse is the acknowledgement of a placed order.
type OrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`

	// Fills is only populated for spot orders, which request the FULL response.
	Fills []OrderFill `json:"fills,omitempty"`
}

// OrderFill is one trade that filled (part of) a spot order.
type OrderFill struct {
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
}

// PlaceOrder submits a single order.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (*OrderResponse, error) {
	q := url.Values{}
	for k, v := range p.values() {
		q.Set(k, v)
	}
	if c.market == Spot {
		q.Set("newOrderRespType", "FULL")
	}
	var out OrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "api.order", q, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OCOParams describes a spot one-cancels-the-other pair: a limit leg at Price
// and a stop-limit leg triggered at StopPrice.
type OCOParams struct {
	Symbol            string
	Side              string
	Quantity          float64
	Price             float64 // take-profit limit
	StopPrice         float64 // stop-loss trigger
	StopLimitPrice    float64 // stop-loss limit, defaults to StopPrice
	ListClientOrderID string
}

// OCOResponse is the acknowledgement of an OCO order list.
type OCOResponse struct {
	OrderListID       int64  `json:"orderListId"`
	ListStatusType    string `json:"listStatusType"`
	ListOrderStatus   string `json:"listOrderStatus"`
	ListClientOrderID string `json:"listClientOrderId"`
	Orders            []struct {
		Symbol        string `json:"symbol"`
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
	} `json:"orders"`
}

// PlaceOCO submits a spot OCO order list.
func (c *Client) PlaceOCO(ctx context.Context, p OCOParams) (*OCOResponse, error) {
	if c.market != Spot {
		return nil, fmt.Errorf("binance: OCO is a spot-only order list")
	}
	stopLimit := p.StopLimitPrice
	if stopLimit == 0 {
		stopLimit = p.StopPrice
	}
	q := url.Values{}
	q.Set("symbol", p.Symbol)
	q.Set("side", p.Side)
	q.Set("quantity", formatFloat(p.Quantity))
	q.Set("price", formatFloat(p.Price))
	q.Set("stopPrice", formatFloat(p.StopPrice))
	q.Set("stopLimitPrice", formatFloat(stopLimit))
	q.Set("stopLimitTimeInForce", "GTC")
	if p.ListClientOrderID != "" {
		q.Set("listClientOrderId", p.ListClientOrderID)
	}
	var out OCOResponse
	if err := c.doRequest(ctx, http.MethodPost, "api.oco", q, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeLeverage sets the initial leverage for a futures symbol and returns
// the leverage Binance applied.
func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) (int, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	var out struct {
		Leverage int    `json:"leverage"`
		Symbol   string `json:"symbol"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "api.leverage", q, true, &out); err != nil {
		return 0, err
	}
	return out.Leverage, nil
}

// BatchResult is one entry of a batch answer: either Order or Err is set.
type BatchResult struct {
	Order *OrderResponse
	Err   *APIError
}

// PlaceBatchOrders submits up to five futures orders in one request. The
// request as a whole fails only on transport or envelope errors; individual
// legs may still be rejected.
func (c *Client) PlaceBatchOrders(ctx context.Context, orders []OrderParams) ([]BatchResult, error) {
	if len(orders) == 0 || len(orders) > 5 {
		return nil, fmt.Errorf("binance: batch needs 1-5 orders, got %d", len(orders))
	}
	list := make([]map[string]string, len(orders))
	for i, o := range orders {
		list[i] = o.values()
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("batchOrders", string(payload))

	var rows []json.RawMessage
	if err := c.doRequest(ctx, http.MethodPost, "api.batch", q, true, &rows); err != nil {
		return nil, err
	}

	out := make([]BatchResult, len(rows))
	for i, raw := range rows {
		var probe struct {
			Code *int   `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: batch entry %d: %v", ErrMalformed, i, err)
		}
		if probe.Code != nil && *probe.Code != 0 {
			out[i].Err = &APIError{HTTPStatus: http.StatusOK, Code: *probe.Code, Msg: probe.Msg}
			continue
		}
		var o OrderResponse
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%w: batch entry %d: %v", ErrMalformed, i, err)
		}
		out[i].Order = &o
	}
	return out, nil
}
