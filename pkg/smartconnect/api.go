package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
)

// PlaceOrder submits an order. A broker-side refusal comes back as a
// PlaceOrderResult with OK=false, not as an error; errors are reserved for
// transport and session failures.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (PlaceOrderResult, error) {
	env, err := c.post(ctx, "api.order.place", p)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if !env.Status {
		return PlaceOrderResult{OK: false, Reason: env.Message}, nil
	}
	var data struct {
		OrderID string `json:"orderid"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.OrderID == "" {
		return PlaceOrderResult{}, fmt.Errorf("smartconnect: place order: missing order id in %s", env.Data)
	}
	return PlaceOrderResult{OK: true, OrderID: data.OrderID}, nil
}

// CancelOrder cancels an open order by broker id.
func (c *Client) CancelOrder(ctx context.Context, orderID, variety string) error {
	env, err := c.post(ctx, "api.order.cancel", map[string]string{
		"variety": variety,
		"orderid": orderID,
	})
	if err != nil {
		return err
	}
	if !env.Status {
		return fmt.Errorf("smartconnect: cancel %s: %s", orderID, env.Message)
	}
	return nil
}

// OrderBook fetches every order for the day.
func (c *Client) OrderBook(ctx context.Context) ([]OrderRecord, error) {
	env, err := c.get(ctx, "api.order.book", nil)
	if err != nil {
		return nil, err
	}
	var out []OrderRecord
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return nil, fmt.Errorf("smartconnect: order book: %w", err)
		}
	}
	return out, nil
}

// Positions fetches net positions.
func (c *Client) Positions(ctx context.Context) ([]PositionRecord, error) {
	env, err := c.get(ctx, "api.position", nil)
	if err != nil {
		return nil, err
	}
	var out []PositionRecord
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &out); err != nil {
			return nil, fmt.Errorf("smartconnect: positions: %w", err)
		}
	}
	return out, nil
}

// LTP fetches the last traded price for one instrument.
func (c *Client) LTP(ctx context.Context, exchange, tradingSymbol, token string) (LTPQuote, error) {
	env, err := c.post(ctx, "api.ltp.data", map[string]string{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	})
	if err != nil {
		return LTPQuote{}, err
	}
	var q LTPQuote
	if err := json.Unmarshal(env.Data, &q); err != nil {
		return LTPQuote{}, fmt.Errorf("smartconnect: ltp: %w", err)
	}
	return q, nil
}

// Candles fetches historical bars for the window in p. An empty (but
// successful) response yields a nil slice, which callers treat as no data.
func (c *Client) Candles(ctx context.Context, p CandleParams) ([]CandleRow, error) {
	env, err := c.post(ctx, "api.candle.data", p.body())
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("smartconnect: candle data: %s", env.Message)
	}
	var rows []CandleRow
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return nil, fmt.Errorf("smartconnect: candle rows: %w", err)
		}
	}
	return rows, nil
}
