package model

import "time"

// Candle represents one OHLC candle for a single instrument and interval.
// Prices are rupees as returned by the broker's candle API; TS is the bucket
// start in exchange-local time (IST).
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Valid reports whether the candle satisfies low <= open,close <= high
// with positive prices.
func (c *Candle) Valid() bool {
	if c.Low <= 0 || c.Volume < 0 {
		return false
	}
	if c.Open < c.Low || c.Close < c.Low {
		return false
	}
	if c.Open > c.High || c.Close > c.High {
		return false
	}
	return c.Low <= c.High
}

// Series is an ordered sequence of candles for one (symbol, interval) pair.
// Callers must keep it sorted ascending by TS with unique timestamps; the
// historical store's merge is the only sanctioned mutation path.
type Series []Candle

// Last returns the final candle, or nil for an empty series.
func (s Series) Last() *Candle {
	if len(s) == 0 {
		return nil
	}
	return &s[len(s)-1]
}

// After returns the candles strictly newer than ts, preserving order.
func (s Series) After(ts time.Time) Series {
	for i := range s {
		if s[i].TS.After(ts) {
			return s[i:]
		}
	}
	return nil
}

// Closes extracts the close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Close
	}
	return out
}
