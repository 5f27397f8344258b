package model

import "time"

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Position represents one tracked position. At most one open Position per
// symbol exists at any time; the risk manager owns the set.
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Qty          int64     `json:"qty"` // always positive, direction in Side
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	EntryTime    time.Time `json:"entry_time"`
	OrderID      string    `json:"order_id,omitempty"`
}

// RiskAmount is the rupee distance to the stop for the full quantity.
func (p *Position) RiskAmount() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		d = -d
	}
	return d * float64(p.Qty)
}

// PnL computes the realized profit for exiting the full position at price.
func (p *Position) PnL(price float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - price) * float64(p.Qty)
	}
	return (price - p.EntryPrice) * float64(p.Qty)
}
