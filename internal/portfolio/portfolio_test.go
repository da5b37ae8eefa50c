package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binance-signalbot/internal/model"
)

var t0 = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func long(id string, opened time.Time) model.Position {
	return model.Position{
		OrderID: id, Venue: "spot", Symbol: "BTC/USDT", Side: model.SideBuy,
		Qty: 2, Entry: 100, StopLoss: 99, TakeProfit: 102, OpenedAt: opened,
	}
}

func short(id string, opened time.Time) model.Position {
	return model.Position{
		OrderID: id, Venue: "futures", Symbol: "BTC/USDT", Side: model.SideSell,
		Qty: 1, Entry: 100, StopLoss: 101, TakeProfit: 98, OpenedAt: opened,
	}
}

func candle(at time.Time, low, high float64) model.Candle {
	return model.Candle{TS: at, Open: (low + high) / 2, High: high, Low: low, Close: (low + high) / 2}
}

func TestBook_TakeProfitAndStopLoss(t *testing.T) {
	b := New()
	b.Open(long("L1", t0))
	b.Open(short("S1", t0))

	// Inside both brackets.
	assert.Empty(t, b.Mark("BTC/USDT", candle(t0.Add(time.Minute), 99.5, 100.5)))

	// Long hits TP, short hits SL.
	exits := b.Mark("BTC/USDT", candle(t0.Add(2*time.Minute), 100, 102.5))
	require.Len(t, exits, 2)
	byID := map[string]Exit{exits[0].OrderID: exits[0], exits[1].OrderID: exits[1]}
	assert.Equal(t, ExitTakeProfit, byID["L1"].Reason)
	assert.InDelta(t, 4, byID["L1"].PnL, 1e-9)
	assert.Equal(t, ExitStopLoss, byID["S1"].Reason)
	assert.InDelta(t, -1, byID["S1"].PnL, 1e-9)
	assert.Empty(t, b.Positions())
}

func TestBook_StopLossWinsWhenCandleSpansBoth(t *testing.T) {
	b := New()
	b.Open(long("L1", t0))
	exits := b.Mark("BTC/USDT", candle(t0.Add(time.Minute), 98, 103))
	require.Len(t, exits, 1)
	assert.Equal(t, ExitStopLoss, exits[0].Reason)
	assert.Equal(t, 99.0, exits[0].Price)
}

func TestBook_IgnoresEntryCandleAndOtherSymbols(t *testing.T) {
	b := New()
	b.Open(long("L1", t0))
	assert.Empty(t, b.Mark("BTC/USDT", candle(t0, 90, 110)), "entry candle")
	assert.Empty(t, b.Mark("ETH/USDT", candle(t0.Add(time.Minute), 90, 110)))
	assert.Len(t, b.Positions(), 1)
}

func TestBook_CloseAllAndUnrealized(t *testing.T) {
	b := New()
	b.Open(long("L1", t0))
	b.Open(long("L2", t0.Add(time.Minute)))
	assert.InDelta(t, 4, b.Unrealized(map[string]float64{"BTC/USDT": 101}), 1e-9)

	exits := b.CloseAll("BTC/USDT", 100.5, t0.Add(time.Hour))
	require.Len(t, exits, 2)
	assert.Equal(t, "L1", exits[0].OrderID)
	assert.Equal(t, ExitEndOfData, exits[1].Reason)
	assert.Empty(t, b.Positions())
}

func TestPnLTracker_Summary(t *testing.T) {
	b := New()
	b.Open(long("L3", t0))
	p := NewPnLTracker()
	p.RecordExit(Exit{PnL: 4})
	p.RecordExit(Exit{PnL: -1})
	p.RecordExit(Exit{PnL: 0})

	s := p.Summary(b, map[string]float64{"BTC/USDT": 99.5})
	assert.InDelta(t, 3, s.RealizedPnL, 1e-9)
	assert.InDelta(t, -1, s.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 2, s.TotalPnL, 1e-9)
	assert.Equal(t, 3, s.ClosedTrades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 33.333, s.WinRatePct, 1e-3)
	assert.Equal(t, 1, s.OpenPositions)
	assert.Len(t, p.Exits(), 3)
}

func TestEquityCurve_Drawdown(t *testing.T) {
	c := NewEquityCurve(1000)
	c.RecordPnL(100) // peak 1100
	c.RecordPnL(-220)
	c.RecordPnL(50)

	s := c.Status()
	assert.InDelta(t, 930, s.Equity, 1e-9)
	assert.InDelta(t, 1100, s.Peak, 1e-9)
	assert.InDelta(t, 20, s.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, -7, s.ReturnPct, 1e-9)
}
