package binance

import (
	"context"
	"fmt"
	"net/http"
)

// Balance is one asset's funds.
type Balance struct {
	Asset  string
	Free   float64 // spendable now (spot "free", futures "availableBalance")
	Locked float64
	Total  float64
}

type spotAccount struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type futuresBalance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

// Balances returns the account balances keyed by asset.
func (c *Client) Balances(ctx context.Context) (map[string]Balance, error) {
	if c.market == Futures {
		return c.futuresBalances(ctx)
	}
	return c.spotBalances(ctx)
}

func (c *Client) spotBalances(ctx context.Context) (map[string]Balance, error) {
	var acct spotAccount
	if err := c.doRequest(ctx, http.MethodGet, "api.account", nil, true, &acct); err != nil {
		return nil, err
	}
	out := make(map[string]Balance, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := parseFloat(b.Free)
		if err != nil {
			return nil, fmt.Errorf("binance: %s free: %w", b.Asset, err)
		}
		locked, err := parseFloat(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("binance: %s locked: %w", b.Asset, err)
		}
		out[b.Asset] = Balance{Asset: b.Asset, Free: free, Locked: locked, Total: free + locked}
	}
	return out, nil
}

func (c *Client) futuresBalances(ctx context.Context) (map[string]Balance, error) {
	var rows []futuresBalance
	if err := c.doRequest(ctx, http.MethodGet, "api.balance", nil, true, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]Balance, len(rows))
	for _, b := range rows {
		total, err := parseFloat(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("binance: %s balance: %w", b.Asset, err)
		}
		avail, err := parseFloat(b.AvailableBalance)
		if err != nil {
			return nil, fmt.Errorf("binance: %s availableBalance: %w", b.Asset, err)
		}
		locked := total - avail
		if locked < 0 {
			locked = 0
		}
		out[b.Asset] = Balance{Asset: b.Asset, Free: avail, Locked: locked, Total: total}
	}
	return out, nil
}
