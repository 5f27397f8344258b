package execution

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"swingbot/pkg/smartconnect"
)

// PaperBroker simulates the broker order surface without real API calls.
// Every placement fills immediately at the requested price plus configured
// slippage, which the monitor loop then picks up from OrderBook.
type PaperBroker struct {
	mu          sync.Mutex
	orders      map[string]smartconnect.OrderRecord
	slippageBps int64 // basis points, e.g. 5 = 0.05%
}

// NewPaperBroker creates a paper broker with the given simulated slippage.
func NewPaperBroker(slippageBps int64) *PaperBroker {
	return &PaperBroker{
		orders:      make(map[string]smartconnect.OrderRecord),
		slippageBps: slippageBps,
	}
}

func (p *PaperBroker) PlaceOrder(ctx context.Context, params smartconnect.OrderParams) (smartconnect.PlaceOrderResult, error) {
	qty, err := strconv.ParseInt(params.Quantity, 10, 64)
	if err != nil || qty <= 0 {
		return smartconnect.PlaceOrderResult{OK: false, Reason: "invalid quantity"}, nil
	}
	price, _ := strconv.ParseFloat(params.Price, 64)
	if price > 0 && p.slippageBps > 0 {
		slip := price * float64(p.slippageBps) / 10000
		if params.TransactionType == "BUY" {
			price += slip
		} else {
			price -= slip
		}
	}

	orderID := "PAPER-" + uuid.NewString()
	p.mu.Lock()
	p.orders[orderID] = smartconnect.OrderRecord{
		OrderID:         orderID,
		TradingSymbol:   params.TradingSymbol,
		SymbolToken:     params.SymbolToken,
		Exchange:        params.Exchange,
		TransactionType: params.TransactionType,
		Status:          "complete",
		Quantity:        smartconnect.FlexFloat(qty),
		FilledShares:    smartconnect.FlexFloat(qty),
		AveragePrice:    smartconnect.FlexFloat(price),
		Price:           smartconnect.FlexFloat(price),
		Variety:         params.Variety,
	}
	p.mu.Unlock()

	log.Printf("[paper] %s %s qty=%d price=%.2f order=%s",
		params.TransactionType, params.TradingSymbol, qty, price, orderID)
	return smartconnect.PlaceOrderResult{OK: true, OrderID: orderID}, nil
}

func (p *PaperBroker) CancelOrder(ctx context.Context, orderID, variety string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}
	if rec.Status == "complete" {
		return fmt.Errorf("paper: order %s already complete", orderID)
	}
	rec.Status = "cancelled"
	p.orders[orderID] = rec
	return nil
}

func (p *PaperBroker) OrderBook(ctx context.Context) ([]smartconnect.OrderRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]smartconnect.OrderRecord, 0, len(p.orders))
	for _, rec := range p.orders {
		out = append(out, rec)
	}
	return out, nil
}
