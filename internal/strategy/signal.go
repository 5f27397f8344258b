package strategy

import "time"

// Action is the kind of trade a signal requests.
type Action string

const (
	ActionBuy       Action = "BUY"
	ActionSell      Action = "SELL"
	ActionExitLong  Action = "EXIT_LONG"
	ActionExitShort Action = "EXIT_SHORT"
	ActionHold      Action = "HOLD"
)

// Entry reports whether the action opens a position.
func (a Action) Entry() bool { return a == ActionBuy || a == ActionSell }

// Exit reports whether the action closes a position.
func (a Action) Exit() bool { return a == ActionExitLong || a == ActionExitShort }

// Signal is one trading decision emitted by the strategy loop and consumed
// by the execution engine.
type Signal struct {
	StrategyName string    `json:"strategy_name"`
	Action       Action    `json:"action"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`      // reference price (LTP at decision time)
	Confidence   float64   `json:"confidence"` // 0..1, engine refuses below threshold
	Reason       string    `json:"reason,omitempty"`
	TS           time.Time `json:"ts"`
}
