// Package execution turns strategy signals into broker orders and keeps the
// local order state reconciled with the broker order book.
//
// Every signal is validated and sized through the risk manager before any
// broker call. Position state is updated first and rolled back if the
// placement ultimately fails, so the risk books never show a position the
// broker does not hold.
package execution

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"swingbot/config"
	"swingbot/internal/metrics"
	"swingbot/internal/model"
	"swingbot/internal/risk"
	"swingbot/internal/strategy"
	"swingbot/pkg/smartconnect"
)

// Config carries the order handling knobs.
type Config struct {
	Mode          config.Mode
	ConfidenceMin float64
	ProductType   string // DELIVERY, CARRYFORWARD, INTRADAY
	OrderType     string // MARKET, LIMIT
	MaxRetries    int
	RetryWait     time.Duration
	PollInterval  time.Duration
	OrderTimeout  time.Duration
}

// pendingOrder is an order awaiting a terminal status from the broker.
type pendingOrder struct {
	order  *model.Order
	signal strategy.Signal
	entry  bool
}

// Engine consumes signals, sizes them, places orders and monitors fills.
type Engine struct {
	cfg         Config
	broker      Broker
	risk        *risk.Manager
	journal     *Journal
	instruments map[string]model.Instrument

	mu        sync.Mutex
	pending   map[string]*pendingOrder
	completed map[string]*model.Order
}

// New creates an engine. journal may be nil when audit persistence is
// disabled (tests).
func New(cfg Config, broker Broker, rm *risk.Manager, journal *Journal, instruments map[string]model.Instrument) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 60 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		broker:      broker,
		risk:        rm,
		journal:     journal,
		instruments: instruments,
		pending:     make(map[string]*pendingOrder),
		completed:   make(map[string]*model.Order),
	}
}

// Run consumes signals until ctx is cancelled or signalCh is closed.
func (e *Engine) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			e.ProcessSignal(ctx, sig)
		}
	}
}

// ProcessSignal validates, sizes and executes one signal. Returns true when
// the signal was accepted (including HOLD no-ops), false when refused.
func (e *Engine) ProcessSignal(ctx context.Context, sig strategy.Signal) bool {
	if sig.Action == strategy.ActionHold {
		return true
	}
	if sig.Symbol == "" || sig.Price <= 0 {
		log.Printf("[execution] refusing malformed signal: %+v", sig)
		metrics.SignalsRejected.Inc()
		return false
	}
	if sig.Confidence < e.cfg.ConfidenceMin {
		log.Printf("[execution] refusing %s %s: confidence %.2f below %.2f",
			sig.Action, sig.Symbol, sig.Confidence, e.cfg.ConfidenceMin)
		metrics.SignalsRejected.Inc()
		return false
	}
	inst, ok := e.instruments[sig.Symbol]
	if !ok {
		log.Printf("[execution] refusing %s: unknown instrument %q", sig.Action, sig.Symbol)
		metrics.SignalsRejected.Inc()
		return false
	}

	metrics.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()

	switch {
	case sig.Action.Entry():
		return e.enter(ctx, sig, inst)
	case sig.Action.Exit():
		return e.exit(ctx, sig, inst)
	}
	log.Printf("[execution] ignoring unknown action %q", sig.Action)
	return false
}

func (e *Engine) enter(ctx context.Context, sig strategy.Signal, inst model.Instrument) bool {
	side := model.Long
	txn := "BUY"
	if sig.Action == strategy.ActionSell {
		side = model.Short
		txn = "SELL"
	}

	stop := e.risk.DefaultStop(sig.Price, side)
	qty := e.risk.CalculatePositionSize(sig.Symbol, sig.Price, stop, side)
	if e.cfg.Mode == config.ModeTest {
		qty = 1
	}
	if qty <= 0 {
		log.Printf("[execution] refusing %s %s: risk sized to zero", sig.Action, sig.Symbol)
		metrics.SignalsRejected.Inc()
		return false
	}
	if !e.risk.OpenPosition(sig.Symbol, side, qty, sig.Price, stop) {
		log.Printf("[execution] refusing %s %s: risk manager declined", sig.Action, sig.Symbol)
		metrics.SignalsRejected.Inc()
		return false
	}

	if e.cfg.Mode == config.ModeTest {
		log.Printf("[execution] test mode: tracked %s %s qty=%d at %.2f without order",
			side, sig.Symbol, qty, sig.Price)
		return true
	}

	res, err := e.placeWithRetry(ctx, e.orderParams(sig, inst, txn, qty))
	if err != nil || !res.OK {
		reason := "transport error"
		if err == nil {
			reason = res.Reason
		}
		log.Printf("[execution] %s %s failed after retries (%s), rolling back", sig.Action, sig.Symbol, reason)
		e.risk.ClosePosition(sig.Symbol, sig.Price)
		metrics.OrdersRejected.Inc()
		return false
	}

	e.risk.AttachOrder(sig.Symbol, res.OrderID)
	e.track(res.OrderID, sig, inst, txn, qty, true)
	log.Printf("[execution] placed %s %s qty=%d order=%s", txn, sig.Symbol, qty, res.OrderID)
	return true
}

func (e *Engine) exit(ctx context.Context, sig strategy.Signal, inst model.Instrument) bool {
	pos, ok := e.risk.Position(sig.Symbol)
	if !ok {
		log.Printf("[execution] refusing %s %s: no open position", sig.Action, sig.Symbol)
		metrics.SignalsRejected.Inc()
		return false
	}
	wantSide := model.Long
	txn := "SELL"
	if sig.Action == strategy.ActionExitShort {
		wantSide = model.Short
		txn = "BUY"
	}
	if pos.Side != wantSide {
		log.Printf("[execution] refusing %s %s: position is %s", sig.Action, sig.Symbol, pos.Side)
		metrics.SignalsRejected.Inc()
		return false
	}

	if e.cfg.Mode != config.ModeTest {
		res, err := e.placeWithRetry(ctx, e.orderParams(sig, inst, txn, pos.Qty))
		if err != nil || !res.OK {
			reason := "transport error"
			if err == nil {
				reason = res.Reason
			}
			log.Printf("[execution] %s %s failed after retries (%s), position kept", sig.Action, sig.Symbol, reason)
			metrics.OrdersRejected.Inc()
			return false
		}
		e.track(res.OrderID, sig, inst, txn, pos.Qty, false)
		log.Printf("[execution] placed %s %s qty=%d order=%s", txn, sig.Symbol, pos.Qty, res.OrderID)
	}

	e.risk.ClosePosition(sig.Symbol, sig.Price)
	return true
}

func (e *Engine) orderParams(sig strategy.Signal, inst model.Instrument, txn string, qty int64) smartconnect.OrderParams {
	p := smartconnect.OrderParams{
		Variety:         "NORMAL",
		TradingSymbol:   inst.TradingSymbol,
		SymbolToken:     inst.Token,
		TransactionType: txn,
		Exchange:        inst.Exchange,
		OrderType:       e.cfg.OrderType,
		ProductType:     e.cfg.ProductType,
		Duration:        "DAY",
		Quantity:        strconv.FormatInt(qty, 10),
	}
	if e.cfg.OrderType == "LIMIT" {
		p.Price = fmt.Sprintf("%.2f", sig.Price)
	}
	return p
}

func (e *Engine) placeWithRetry(ctx context.Context, p smartconnect.OrderParams) (smartconnect.PlaceOrderResult, error) {
	var (
		res smartconnect.PlaceOrderResult
		err error
	)
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		res, err = e.broker.PlaceOrder(ctx, p)
		if err == nil && res.OK {
			metrics.OrdersPlaced.Inc()
			return res, nil
		}
		if attempt < e.cfg.MaxRetries {
			metrics.OrderRetries.Inc()
			log.Printf("[execution] place attempt %d/%d failed, retrying in %s",
				attempt, e.cfg.MaxRetries, e.cfg.RetryWait)
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(e.cfg.RetryWait):
			}
		}
	}
	return res, err
}

func (e *Engine) track(orderID string, sig strategy.Signal, inst model.Instrument, txn string, qty int64, entry bool) {
	now := time.Now()
	o := &model.Order{
		OrderID:         orderID,
		Symbol:          sig.Symbol,
		Token:           inst.Token,
		Exchange:        inst.Exchange,
		TransactionType: txn,
		OrderType:       e.cfg.OrderType,
		ProductType:     e.cfg.ProductType,
		Qty:             qty,
		Price:           sig.Price,
		Status:          model.OrderOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.mu.Lock()
	e.pending[orderID] = &pendingOrder{order: o, signal: sig, entry: entry}
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.RecordOrder(o, string(sig.Action), sig.Reason); err != nil {
			log.Printf("[execution] journal write failed for %s: %v", orderID, err)
		}
	}
}

// MonitorLoop polls the broker order book and resolves pending orders until
// ctx is cancelled.
func (e *Engine) MonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcile(ctx)
		}
	}
}

func (e *Engine) reconcile(ctx context.Context) {
	e.mu.Lock()
	n := len(e.pending)
	e.mu.Unlock()
	if n == 0 {
		return
	}

	book, err := e.broker.OrderBook(ctx)
	if err != nil {
		log.Printf("[execution] order book fetch failed: %v", err)
		return
	}
	byID := make(map[string]smartconnect.OrderRecord, len(book))
	for _, rec := range book {
		byID[rec.OrderID] = rec
	}

	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, po := range e.pending {
		rec, found := byID[id]
		if found {
			switch rec.Status {
			case "complete":
				po.order.Status = model.OrderFilled
				po.order.FilledQty = rec.Filled()
				po.order.AvgPrice = float64(rec.AveragePrice)
				po.order.UpdatedAt = now
				metrics.OrdersFilled.Inc()
				log.Printf("[execution] order %s filled qty=%d avg=%.2f",
					id, po.order.FilledQty, po.order.AvgPrice)
				e.recordFill(po)
				e.finish(id, po)
				continue
			case "rejected":
				po.order.Status = model.OrderRejected
				po.order.UpdatedAt = now
				metrics.OrdersRejected.Inc()
				log.Printf("[execution] order %s rejected: %s", id, rec.Text)
				e.rollback(po)
				e.finish(id, po)
				continue
			case "cancelled":
				po.order.Status = model.OrderCancelled
				po.order.UpdatedAt = now
				metrics.OrdersCancelled.Inc()
				e.rollback(po)
				e.finish(id, po)
				continue
			}
		}
		if now.Sub(po.order.CreatedAt) > e.cfg.OrderTimeout {
			log.Printf("[execution] order %s open past %s, cancelling", id, e.cfg.OrderTimeout)
			if err := e.broker.CancelOrder(ctx, id, "NORMAL"); err != nil {
				log.Printf("[execution] cancel %s failed: %v", id, err)
			}
			po.order.Status = model.OrderCancelled
			po.order.UpdatedAt = now
			metrics.OrdersCancelled.Inc()
			e.rollback(po)
			e.finish(id, po)
		}
	}
}

// rollback unwinds the risk position for an entry order that will never
// fill. Exit orders leave the books alone; the position was already closed.
func (e *Engine) rollback(po *pendingOrder) {
	if !po.entry {
		return
	}
	e.risk.ClosePosition(po.order.Symbol, po.order.Price)
}

// finish moves a pending order to completed and updates the journal row.
// Caller holds e.mu.
func (e *Engine) finish(id string, po *pendingOrder) {
	delete(e.pending, id)
	e.completed[id] = po.order
	if e.journal != nil {
		if err := e.journal.UpdateOrderStatus(po.order); err != nil {
			log.Printf("[execution] journal update failed for %s: %v", id, err)
		}
	}
}

func (e *Engine) recordFill(po *pendingOrder) {
	if e.journal == nil {
		return
	}
	fill := Fill{
		OrderID:  po.order.OrderID,
		Symbol:   po.order.Symbol,
		Action:   string(po.signal.Action),
		Qty:      po.order.FilledQty,
		Price:    po.order.AvgPrice,
		Reason:   po.signal.Reason,
		FilledAt: po.order.UpdatedAt,
	}
	if err := e.journal.RecordFill(fill); err != nil {
		log.Printf("[execution] journal fill failed for %s: %v", po.order.OrderID, err)
	}
}

// PendingOrders returns a snapshot of orders still awaiting a terminal
// status.
func (e *Engine) PendingOrders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.pending))
	for _, po := range e.pending {
		out = append(out, *po.order)
	}
	return out
}

// Order looks up a tracked order by broker id.
func (e *Engine) Order(orderID string) (model.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if po, ok := e.pending[orderID]; ok {
		return *po.order, true
	}
	if o, ok := e.completed[orderID]; ok {
		return *o, true
	}
	return model.Order{}, false
}

// Shutdown cancels every pending order. Used on graceful stop so no working
// order outlives the process.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.broker.CancelOrder(ctx, id, "NORMAL"); err != nil {
			log.Printf("[execution] shutdown cancel %s failed: %v", id, err)
			continue
		}
		e.mu.Lock()
		if po, ok := e.pending[id]; ok {
			po.order.Status = model.OrderCancelled
			po.order.UpdatedAt = time.Now()
			metrics.OrdersCancelled.Inc()
			e.rollback(po)
			e.finish(id, po)
		}
		e.mu.Unlock()
	}
}
