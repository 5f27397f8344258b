package model

import "time"

// LevelKind distinguishes support from resistance.
type LevelKind string

const (
	Support    LevelKind = "support"
	Resistance LevelKind = "resistance"
)

// SwingLevel is a detected support or resistance level. Levels are derived
// values, recomputed wholesale each detection cycle.
type SwingLevel struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"` // timestamp of the swing candle
	Kind  LevelKind `json:"kind"`
}

// LevelSet holds the per-symbol survivors of a detection pass together with
// the buffered trigger prices derived from them.
type LevelSet struct {
	Symbol      string      `json:"symbol"`
	Resistance  *SwingLevel `json:"resistance,omitempty"`
	Support     *SwingLevel `json:"support,omitempty"`
	BuyTrigger  float64     `json:"buy_trigger,omitempty"`  // resistance * (1+buffer)
	SellTrigger float64     `json:"sell_trigger,omitempty"` // support * (1-buffer)
	ComputedAt  time.Time   `json:"computed_at"`
}
