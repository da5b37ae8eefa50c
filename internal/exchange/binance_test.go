package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-signalbot/internal/model"
	"binance-signalbot/pkg/binance"
)

func newAdapter(t *testing.T, market binance.Market, mux *http.ServeMux) *Binance {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	venue := model.NewSpot(0.6)
	if market == binance.Futures {
		var err error
		venue, err = model.NewLeveraged(0.6, 2)
		require.NoError(t, err)
	}
	c := binance.New(binance.Config{Market: market, APIKey: "k", APISecret: "s", BaseURL: srv.URL, Timeout: 200 * time.Millisecond})
	a, err := NewBinance(c, venue, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func TestNewBinance_MarketMismatch(t *testing.T) {
	_, err := NewBinance(binance.New(binance.Config{Market: binance.Spot}), mustLeveraged(t), zerolog.Nop())
	assert.Error(t, err)
}

func mustLeveraged(t *testing.T) model.Venue {
	v, err := model.NewLeveraged(0.6, 2)
	require.NoError(t, err)
	return v
}

func TestMarketSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", MarketSymbol("BTC/USDT"))
	assert.Equal(t, "ETHUSDT", MarketSymbol("eth/usdt"))
}

func TestFetchOHLCV(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[[1700000000000,"1","2","0.5","1.5","10",1700000899999],[1700000900000,"1.5","2","1","1.8","11",1700001799999]]`))
	})
	a := newAdapter(t, binance.Spot, mux)

	series, err := a.FetchOHLCV(context.Background(), "BTC/USDT", "15m", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 1.8, series.Last().Close)
	assert.Equal(t, []float64{1.5, 1.8}, series.Closes())
}

func TestFetchOHLCV_ErrorMapping(t *testing.T) {
	cases := []struct {
		name        string
		handler     http.HandlerFunc
		unavailable bool
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }, true},
		{"timeout", func(w http.ResponseWriter, r *http.Request) { time.Sleep(500 * time.Millisecond) }, true},
		{"bad symbol", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}, false},
		{"malformed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"not":"an array"}`)) }, false},
		{"out of order", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[[1700000900000,"1","1","1","1","1",1],[1700000000000,"1","1","1","1","1",2]]`))
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/v3/klines", tc.handler)
			a := newAdapter(t, binance.Spot, mux)

			_, err := a.FetchOHLCV(context.Background(), "BTC/USDT", "15m", 100)
			require.ErrorIs(t, err, model.ErrDataUnavailable)
			assert.Equal(t, "data_unavailable", model.Kind(err))
			assert.Equal(t, tc.unavailable, errors.Is(err, model.ErrExchangeUnavailable))
		})
	}
}

func TestFetchBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v2/balance", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"asset":"USDT","balance":"100","availableBalance":"80"}]`))
	})
	a := newAdapter(t, binance.Futures, mux)

	bal, err := a.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AssetBalance{Free: 80, Locked: 20, Total: 100}, bal["USDT"])
}

func TestFetchBalance_AuthFailureIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	})
	a := newAdapter(t, binance.Spot, mux)

	_, err := a.FetchBalance(context.Background())
	assert.ErrorIs(t, err, model.ErrExchangeUnavailable)
}

func TestCreateOrder_SpotWithOCO(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "0.01", q.Get("quantity"))
		assert.Equal(t, "cid-1", q.Get("newClientOrderId"))
		w.Write([]byte(`{"orderId":99,"status":"FILLED","executedQty":"0.00999"}`))
	})
	mux.HandleFunc("/api/v3/order/oco", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "0.00999", q.Get("quantity"))
		assert.Equal(t, "30600", q.Get("price"))
		assert.Equal(t, "29700", q.Get("stopPrice"))
		w.Write([]byte(`{"orderListId":5}`))
	})
	a := newAdapter(t, binance.Spot, mux)

	conf, err := a.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC/USDT", Side: model.SideBuy, Type: "MARKET", Amount: 0.01,
		StopLossPrice: 29700, TakeProfitPrice: 30600, ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "99", conf.OrderID)
	assert.Equal(t, "FILLED", conf.Status)
	assert.True(t, conf.ProtectionAttached)
}

func TestCreateOrder_SpotOCONetOfBaseCommission(t *testing.T) {
	var ocoQty string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FULL", r.URL.Query().Get("newOrderRespType"))
		w.Write([]byte(`{"orderId":101,"status":"FILLED","executedQty":"0.01000000","fills":[
			{"price":"30000","qty":"0.006","commission":"0.0000060","commissionAsset":"BTC"},
			{"price":"30001","qty":"0.004","commission":"0.0000040","commissionAsset":"BTC"},
			{"price":"30001","qty":"0","commission":"0.02","commissionAsset":"BNB"}]}`))
	})
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[{"filterType":"LOT_SIZE","stepSize":"0.00010000"}]}]}`))
	})
	mux.HandleFunc("/api/v3/order/oco", func(w http.ResponseWriter, r *http.Request) {
		ocoQty = r.URL.Query().Get("quantity")
		w.Write([]byte(`{"orderListId":6}`))
	})
	a := newAdapter(t, binance.Spot, mux)

	conf, err := a.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 0.01,
		StopLossPrice: 29700, TakeProfitPrice: 30600, ClientOrderID: "cid-2",
	})
	require.NoError(t, err)
	assert.True(t, conf.ProtectionAttached)
	// 0.01 - 0.00001 BTC fee = 0.00999, floored to the 0.0001 step.
	assert.Equal(t, "0.0099", ocoQty)
}

func TestProtectedQty(t *testing.T) {
	entry := &binance.OrderResponse{
		ExecutedQty: "0.5",
		Fills: []binance.OrderFill{
			{Commission: "0.0005", CommissionAsset: "ETH"},
			{Commission: "1.2", CommissionAsset: "USDT"},
		},
	}
	step := decimal.RequireFromString("0.001")
	assert.Equal(t, "0.499", protectedQty(entry, 0.5, "ETH", step).String())
	// Unknown step floors to the sizer precision.
	assert.Equal(t, "0.4995", protectedQty(entry, 0.5, "ETH", decimal.Zero).String())
	// Quote-asset commission leaves the base quantity alone.
	assert.Equal(t, "0.5", protectedQty(entry, 0.5, "BTC", step).String())
	// Missing executedQty falls back to the requested amount.
	assert.Equal(t, "0.25", protectedQty(&binance.OrderResponse{}, 0.25, "ETH", step).String())
}

func TestCreateOrder_SpotOCOFailureKeepsEntry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderId":100,"status":"FILLED"}`))
	})
	mux.HandleFunc("/api/v3/order/oco", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1013,"msg":"Filter failure: PRICE_FILTER"}`))
	})
	a := newAdapter(t, binance.Spot, mux)

	conf, err := a.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 0.01, StopLossPrice: 1, TakeProfitPrice: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "100", conf.OrderID)
	assert.False(t, conf.ProtectionAttached)
}

func TestCreateOrder_SpotRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})
	a := newAdapter(t, binance.Spot, mux)

	_, err := a.CreateOrder(context.Background(), model.OrderRequest{Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 1})
	require.ErrorIs(t, err, model.ErrOrderRejected)
	assert.NotErrorIs(t, err, model.ErrExchangeUnavailable)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestCreateOrder_SpotTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})
	a := newAdapter(t, binance.Spot, mux)

	_, err := a.CreateOrder(context.Background(), model.OrderRequest{Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 1})
	assert.ErrorIs(t, err, model.ErrExchangeUnavailable)
}

func TestCreateOrder_Futures(t *testing.T) {
	var leverageSet bool
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/leverage", func(w http.ResponseWriter, r *http.Request) {
		leverageSet = true
		assert.Equal(t, "2", r.URL.Query().Get("leverage"))
		w.Write([]byte(`{"leverage":2,"symbol":"BTCUSDT"}`))
	})
	mux.HandleFunc("/fapi/v1/batchOrders", func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, leverageSet, "leverage must be set before the batch")
		w.Write([]byte(`[{"orderId":1,"status":"NEW"},{"orderId":2,"status":"NEW"},{"orderId":3,"status":"NEW"}]`))
	})
	a := newAdapter(t, binance.Futures, mux)

	conf, err := a.CreateOrder(context.Background(), model.OrderRequest{
		Symbol: "BTC/USDT", Side: model.SideSell, Amount: 0.5, StopLossPrice: 202, TakeProfitPrice: 196, Leverage: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", conf.OrderID)
	assert.True(t, conf.ProtectionAttached)
}

func TestCreateOrder_FuturesEntryRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/batchOrders", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"code":-2019,"msg":"Margin is insufficient."},{"orderId":2},{"orderId":3}]`))
	})
	a := newAdapter(t, binance.Futures, mux)

	_, err := a.CreateOrder(context.Background(), model.OrderRequest{Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 0.5})
	assert.ErrorIs(t, err, model.ErrOrderRejected)
}

func TestCreateOrder_FuturesLegRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/batchOrders", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"orderId":1,"status":"NEW"},{"code":-2021,"msg":"Order would immediately trigger."},{"orderId":3}]`))
	})
	a := newAdapter(t, binance.Futures, mux)

	conf, err := a.CreateOrder(context.Background(), model.OrderRequest{Symbol: "BTC/USDT", Side: model.SideBuy, Amount: 0.5})
	require.NoError(t, err)
	assert.False(t, conf.ProtectionAttached)
}

func TestCreateOrder_UnsupportedType(t *testing.T) {
	a := newAdapter(t, binance.Spot, http.NewServeMux())
	_, err := a.CreateOrder(context.Background(), model.OrderRequest{Type: "LIMIT"})
	assert.ErrorIs(t, err, model.ErrOrderRejected)
}
