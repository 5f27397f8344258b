package execution

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"swingbot/config"
	"swingbot/internal/model"
	"swingbot/internal/risk"
	"swingbot/internal/strategy"
	"swingbot/pkg/smartconnect"
)

type scriptedBroker struct {
	mu        sync.Mutex
	result    smartconnect.PlaceOrderResult
	err       error
	book      []smartconnect.OrderRecord
	placed    []smartconnect.OrderParams
	cancelled []string
}

func (b *scriptedBroker) PlaceOrder(ctx context.Context, p smartconnect.OrderParams) (smartconnect.PlaceOrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed = append(b.placed, p)
	return b.result, b.err
}

func (b *scriptedBroker) CancelOrder(ctx context.Context, orderID, variety string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, orderID)
	return nil
}

func (b *scriptedBroker) OrderBook(ctx context.Context) ([]smartconnect.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.book, nil
}

func testInstruments() map[string]model.Instrument {
	return map[string]model.Instrument{
		"nifty": {Symbol: "nifty", Token: "99926000", Exchange: "NSE", TradingSymbol: "Nifty 50", LotSize: 75},
	}
}

func testRisk() *risk.Manager {
	return risk.New(risk.Limits{
		MaxPositions:        10,
		MaxDailyLoss:        50000,
		MaxPositionSize:     100000,
		PositionSizePercent: 0.02,
		StopLossPercent:     0.05,
		TargetProfitPercent: 0.10,
		LotSizes:            map[string]int64{"nifty": 75},
	}, 100000, "")
}

func testEngine(broker Broker, rm *risk.Manager) *Engine {
	return New(Config{
		Mode:          config.ModeLive,
		ConfidenceMin: 0.5,
		ProductType:   "CARRYFORWARD",
		OrderType:     "MARKET",
		MaxRetries:    3,
		RetryWait:     time.Millisecond,
		PollInterval:  time.Second,
		OrderTimeout:  time.Minute,
	}, broker, rm, nil, testInstruments())
}

func buySignal(confidence float64) strategy.Signal {
	return strategy.Signal{
		StrategyName: "swing_breakout",
		Action:       strategy.ActionBuy,
		Symbol:       "nifty",
		Price:        100,
		Confidence:   confidence,
		TS:           time.Now(),
	}
}

func TestProcessSignalValidation(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	e := testEngine(broker, testRisk())
	ctx := context.Background()

	if e.ProcessSignal(ctx, strategy.Signal{Action: strategy.ActionBuy, Price: 100, Confidence: 0.9}) {
		t.Error("empty symbol must be refused")
	}
	if e.ProcessSignal(ctx, buySignal(0.3)) {
		t.Error("confidence below threshold must be refused")
	}
	sig := buySignal(0.9)
	sig.Symbol = "unknown"
	if e.ProcessSignal(ctx, sig) {
		t.Error("unknown instrument must be refused")
	}
	if !e.ProcessSignal(ctx, strategy.Signal{Action: strategy.ActionHold, Symbol: "nifty", Price: 100, Confidence: 1}) {
		t.Error("HOLD is an accepted no-op")
	}
	if len(broker.placed) != 0 {
		t.Errorf("%d orders placed during refusals, want 0", len(broker.placed))
	}
}

func TestEntryPlacesOrderAndTracks(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	if !e.ProcessSignal(context.Background(), buySignal(0.9)) {
		t.Fatal("entry refused")
	}

	pos, ok := rm.Position("nifty")
	if !ok {
		t.Fatal("no position opened")
	}
	if pos.OrderID != "X1" {
		t.Errorf("position order id = %q, want X1", pos.OrderID)
	}
	// 2000 risk budget over a 5-point stop, lot-rounded to 375.
	if pos.Qty != 375 {
		t.Errorf("qty = %d, want 375", pos.Qty)
	}

	o, ok := e.Order("X1")
	if !ok {
		t.Fatal("order not tracked")
	}
	if o.Status != model.OrderOpen || o.TransactionType != "BUY" {
		t.Errorf("order = %+v", o)
	}
	if len(broker.placed) != 1 {
		t.Fatalf("%d orders placed, want 1", len(broker.placed))
	}
	if broker.placed[0].Quantity != "375" {
		t.Errorf("wire quantity = %q, want 375", broker.placed[0].Quantity)
	}
}

func TestEntryRollbackOnBrokerRefusal(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: false, Reason: "RMS limit"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	if e.ProcessSignal(context.Background(), buySignal(0.9)) {
		t.Fatal("refused placement must fail the signal")
	}
	if _, ok := rm.Position("nifty"); ok {
		t.Error("phantom position left after rollback")
	}
	if pv := rm.PortfolioValue(); pv != 100000 {
		t.Errorf("portfolio = %.2f, want the pre-open 100000", pv)
	}
	// All attempts were spent.
	if len(broker.placed) != 3 {
		t.Errorf("%d attempts, want 3", len(broker.placed))
	}
}

func TestEntryRollbackOnTransportError(t *testing.T) {
	broker := &scriptedBroker{err: errors.New("connection reset")}
	rm := testRisk()
	e := testEngine(broker, rm)

	if e.ProcessSignal(context.Background(), buySignal(0.9)) {
		t.Fatal("transport failure must fail the signal")
	}
	if _, ok := rm.Position("nifty"); ok {
		t.Error("phantom position left after rollback")
	}
}

func TestExitRequiresMatchingSide(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	rm.OpenPosition("nifty", model.Long, 75, 100, 95)

	exitShort := strategy.Signal{Action: strategy.ActionExitShort, Symbol: "nifty", Price: 101, Confidence: 0.9, TS: time.Now()}
	if e.ProcessSignal(context.Background(), exitShort) {
		t.Error("EXIT_SHORT against a long position must be refused")
	}
	if _, ok := rm.Position("nifty"); !ok {
		t.Error("mismatched exit must not touch the position")
	}

	exitLong := strategy.Signal{Action: strategy.ActionExitLong, Symbol: "nifty", Price: 101, Confidence: 0.9, TS: time.Now()}
	if !e.ProcessSignal(context.Background(), exitLong) {
		t.Fatal("matching exit refused")
	}
	if _, ok := rm.Position("nifty"); ok {
		t.Error("position still open after exit")
	}
	if broker.placed[0].TransactionType != "SELL" {
		t.Errorf("exit placed %s, want SELL", broker.placed[0].TransactionType)
	}
}

func TestExitWithoutPositionRefused(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	e := testEngine(broker, testRisk())

	sig := strategy.Signal{Action: strategy.ActionExitLong, Symbol: "nifty", Price: 101, Confidence: 0.9, TS: time.Now()}
	if e.ProcessSignal(context.Background(), sig) {
		t.Error("exit with no position must be refused")
	}
}

func TestReconcileFill(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	e.ProcessSignal(context.Background(), buySignal(0.9))

	broker.mu.Lock()
	broker.book = []smartconnect.OrderRecord{{
		OrderID:      "X1",
		Status:       "complete",
		FilledShares: 375,
		AveragePrice: 100.05,
	}}
	broker.mu.Unlock()

	e.reconcile(context.Background())

	o, ok := e.Order("X1")
	if !ok {
		t.Fatal("order lost")
	}
	if o.Status != model.OrderFilled {
		t.Errorf("status = %s, want FILLED", o.Status)
	}
	if o.FilledQty != 375 || o.AvgPrice != 100.05 {
		t.Errorf("fill = qty %d avg %.2f", o.FilledQty, o.AvgPrice)
	}
	if n := len(e.PendingOrders()); n != 0 {
		t.Errorf("%d orders still pending, want 0", n)
	}
	// The fill confirms the entry; the position stays.
	if _, ok := rm.Position("nifty"); !ok {
		t.Error("position gone after a confirmed fill")
	}
}

func TestReconcileRejectionRollsBack(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	e.ProcessSignal(context.Background(), buySignal(0.9))

	broker.mu.Lock()
	broker.book = []smartconnect.OrderRecord{{OrderID: "X1", Status: "rejected", Text: "margin shortfall"}}
	broker.mu.Unlock()

	e.reconcile(context.Background())

	o, _ := e.Order("X1")
	if o.Status != model.OrderRejected {
		t.Errorf("status = %s, want REJECTED", o.Status)
	}
	if _, ok := rm.Position("nifty"); ok {
		t.Error("position must be rolled back after broker rejection")
	}
}

func TestReconcileTimeoutCancels(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)
	e.cfg.OrderTimeout = time.Millisecond

	e.ProcessSignal(context.Background(), buySignal(0.9))
	time.Sleep(5 * time.Millisecond)

	e.reconcile(context.Background())

	if len(broker.cancelled) != 1 || broker.cancelled[0] != "X1" {
		t.Fatalf("cancelled = %v, want [X1]", broker.cancelled)
	}
	o, _ := e.Order("X1")
	if o.Status != model.OrderCancelled {
		t.Errorf("status = %s, want CANCELLED", o.Status)
	}
	if _, ok := rm.Position("nifty"); ok {
		t.Error("position must be rolled back after timeout cancel")
	}
}

func TestShutdownCancelsPending(t *testing.T) {
	broker := &scriptedBroker{result: smartconnect.PlaceOrderResult{OK: true, OrderID: "X1"}}
	rm := testRisk()
	e := testEngine(broker, rm)

	e.ProcessSignal(context.Background(), buySignal(0.9))
	e.Shutdown(context.Background())

	if len(broker.cancelled) != 1 {
		t.Fatalf("cancelled = %v, want one order", broker.cancelled)
	}
	if n := len(e.PendingOrders()); n != 0 {
		t.Errorf("%d orders still pending after shutdown", n)
	}
}

func TestPaperBrokerFillsImmediately(t *testing.T) {
	p := NewPaperBroker(0)

	res, err := p.PlaceOrder(context.Background(), smartconnect.OrderParams{
		TradingSymbol:   "Nifty 50",
		TransactionType: "BUY",
		Quantity:        "75",
		Price:           "100",
	})
	if err != nil || !res.OK {
		t.Fatalf("place = %+v, %v", res, err)
	}

	book, err := p.OrderBook(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(book) != 1 {
		t.Fatalf("book has %d orders, want 1", len(book))
	}
	if book[0].Status != "complete" || book[0].Filled() != 75 {
		t.Errorf("record = %+v", book[0])
	}
}

func TestPaperBrokerSlippage(t *testing.T) {
	p := NewPaperBroker(10) // 0.1%

	if _, err := p.PlaceOrder(context.Background(), smartconnect.OrderParams{
		TransactionType: "BUY",
		Quantity:        "1",
		Price:           "100",
	}); err != nil {
		t.Fatal(err)
	}
	book, _ := p.OrderBook(context.Background())
	if len(book) != 1 {
		t.Fatal("missing order")
	}
	if got := float64(book[0].AveragePrice); math.Abs(got-100.1) > 1e-9 {
		t.Errorf("buy filled at %.4f, want 100.10 (slippage against the taker)", got)
	}
}
