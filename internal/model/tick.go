package model

import "time"

// Tick represents a single market data tick from the Angel One WebSocket.
// LTP is int64 in paise (1 INR = 100 paise) exactly as the binary frame
// carries it; consumers divide by 100 for rupees.
type Tick struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	LTP      int64     `json:"last_traded_price"` // paise
	Qty      int64     `json:"last_traded_quantity"`
	TickTS   time.Time `json:"tick_ts"`
}

// Rupees converts the paise LTP to rupees.
func (t *Tick) Rupees() float64 {
	return float64(t.LTP) / 100
}
