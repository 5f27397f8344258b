package model

import "time"

// OrderStatus is the lifecycle state of a tracked order.
type OrderStatus string

const (
	// OrderPending exists only before the broker assigns an order id.
	OrderPending     OrderStatus = "PENDING"
	OrderOpen        OrderStatus = "OPEN"
	OrderFilled      OrderStatus = "FILLED"
	OrderCancelled   OrderStatus = "CANCELLED"
	OrderRejected    OrderStatus = "REJECTED"
	OrderPartialFill OrderStatus = "PARTIAL_FILL"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// Order represents a broker order tracked by the execution engine.
// One Order per broker order id; orders for the same symbol are sequential,
// never concurrent, under the one-position-per-symbol rule.
type Order struct {
	OrderID         string      `json:"order_id"`
	Symbol          string      `json:"symbol"`
	Token           string      `json:"token"`
	Exchange        string      `json:"exchange"`
	TransactionType string      `json:"transaction_type"` // BUY, SELL
	OrderType       string      `json:"order_type"`       // MARKET, LIMIT, SL, SL-M
	ProductType     string      `json:"product_type"`     // INTRADAY, CARRYFORWARD
	Qty             int64       `json:"qty"`
	Price           float64     `json:"price"` // limit price, 0 for market
	Status          OrderStatus `json:"status"`
	FilledQty       int64       `json:"filled_qty"`
	AvgPrice        float64     `json:"avg_price"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
