// Package risk owns the position set and the portfolio-level safety rails:
// sizing, stop-loss and take-profit supervision, and the daily-loss and
// drawdown circuit breakers.
package risk

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"swingbot/internal/metrics"
	"swingbot/internal/model"
	"swingbot/internal/notification"
)

// Limits are the configurable risk thresholds.
type Limits struct {
	MaxPositions        int
	MaxDailyLoss        float64
	MaxPositionSize     float64
	PositionSizePercent float64
	StopLossPercent     float64
	TargetProfitPercent float64
	MaxDrawdownPct      float64 // fraction, 0.20 = 20%
	LotSizes            map[string]int64
}

// Trade is one archived round trip.
type Trade struct {
	Symbol    string     `json:"symbol"`
	Side      model.Side `json:"side"`
	Qty       int64      `json:"qty"`
	Entry     float64    `json:"entry"`
	Exit      float64    `json:"exit"`
	PnL       float64    `json:"pnl"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Metrics is a derived snapshot of portfolio risk, recomputed on demand.
type Metrics struct {
	TotalPortfolioValue float64 `json:"total_portfolio_value"`
	TotalRiskAmount     float64 `json:"total_risk_amount"`
	MaxDrawdown         float64 `json:"max_drawdown"`
	DailyPnL            float64 `json:"daily_pnl"`
	DailyPnLPercent     float64 `json:"daily_pnl_percent"`
	TotalTrades         int     `json:"total_trades"`
	WinningTrades       int     `json:"winning_trades"`
}

// Manager is the only writer of the position set. Every public method takes
// the manager lock, so the strategy loop and the order monitor can call in
// concurrently.
type Manager struct {
	mu     sync.Mutex
	limits Limits

	positions map[string]*model.Position
	trades    []Trade

	portfolioValue  float64
	dailyStartValue float64
	peakValue       float64
	maxDrawdown     float64
	dailyPnL        float64

	dailyLossHit  bool
	portfolioStop bool

	snapshotPath string
	notifier     notification.Notifier
}

// New creates a manager with the full starting portfolio value. When a
// snapshot exists at snapshotPath it is loaded over the defaults so a
// restart resumes mid-session state.
func New(limits Limits, initialValue float64, snapshotPath string) *Manager {
	if limits.MaxDrawdownPct == 0 {
		limits.MaxDrawdownPct = 0.20
	}
	m := &Manager{
		limits:          limits,
		positions:       make(map[string]*model.Position),
		portfolioValue:  initialValue,
		dailyStartValue: initialValue,
		peakValue:       initialValue,
		snapshotPath:    snapshotPath,
	}
	if snapshotPath != "" {
		if err := m.loadSnapshot(); err != nil {
			log.Printf("[risk] snapshot not restored: %v", err)
		}
	}
	m.publishGauges()
	return m
}

// SetNotifier routes breaker and forced-close alerts to a notifier.
func (m *Manager) SetNotifier(n notification.Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// CalculatePositionSize sizes a trade so that hitting the stop loses
// PositionSizePercent of the portfolio. Zero is a refusal, not an error:
// position budget exhausted, daily-loss breaker tripped, or a stop on the
// wrong side of the entry.
func (m *Manager) CalculatePositionSize(symbol string, entry, stop float64, side model.Side) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.positions) >= m.limits.MaxPositions {
		log.Printf("[risk] %s: max positions (%d) reached", symbol, m.limits.MaxPositions)
		return 0
	}
	if m.dailyLossHit {
		log.Printf("[risk] %s: daily loss limit hit, no new positions", symbol)
		return 0
	}

	riskPerUnit := entry - stop
	if side == model.Short {
		riskPerUnit = stop - entry
	}
	if riskPerUnit <= 0 {
		log.Printf("[risk] %s: invalid stop: entry=%.2f stop=%.2f", symbol, entry, stop)
		return 0
	}

	riskPerTrade := m.portfolioValue * m.limits.PositionSizePercent
	qty := int64(riskPerTrade / riskPerUnit)

	if maxByValue := int64(m.limits.MaxPositionSize / entry); qty > maxByValue {
		qty = maxByValue
	}
	if lot, ok := m.limits.LotSizes[symbol]; ok && lot > 0 {
		qty = qty / lot * lot
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}

// DefaultStop derives the stop from the configured stop-loss fraction.
func (m *Manager) DefaultStop(entry float64, side model.Side) float64 {
	if side == model.Short {
		return entry * (1 + m.limits.StopLossPercent)
	}
	return entry * (1 - m.limits.StopLossPercent)
}

// OpenPosition tracks a new position and reserves its margin. An existing
// position for the symbol is explicitly closed first, never silently
// overwritten. Pass stop <= 0 to derive it from StopLossPercent.
func (m *Manager) OpenPosition(symbol string, side model.Side, qty int64, entry, stop float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qty <= 0 {
		log.Printf("[risk] %s: refusing open with qty %d", symbol, qty)
		return false
	}
	if _, exists := m.positions[symbol]; exists {
		log.Printf("[risk] %s: position exists, closing before replace", symbol)
		m.closeLocked(symbol, 0, "replace")
	}

	if stop <= 0 {
		if side == model.Long {
			stop = entry * (1 - m.limits.StopLossPercent)
		} else {
			stop = entry * (1 + m.limits.StopLossPercent)
		}
	}

	// Reward:risk from the configured target and stop fractions, applied
	// to the realized stop distance.
	riskAmount := math.Abs(entry - stop)
	reward := riskAmount * m.limits.TargetProfitPercent / m.limits.StopLossPercent
	takeProfit := entry + reward
	if side == model.Short {
		takeProfit = entry - reward
	}

	m.positions[symbol] = &model.Position{
		Symbol:       symbol,
		Side:         side,
		Qty:          qty,
		EntryPrice:   entry,
		CurrentPrice: entry,
		StopLoss:     stop,
		TakeProfit:   takeProfit,
		EntryTime:    time.Now(),
	}
	m.portfolioValue -= float64(qty) * entry // margin reservation

	log.Printf("[risk] opened %s %s x%d @ %.2f SL %.2f TP %.2f",
		side, symbol, qty, entry, stop, takeProfit)
	m.persistLocked()
	m.publishGauges()
	return true
}

// AttachOrder records the broker order id on an open position.
func (m *Manager) AttachOrder(symbol, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		p.OrderID = orderID
		m.persistLocked()
	}
}

// ClosePosition closes a position at exitPrice (<= 0 uses the last seen
// price). Closing a symbol with no position is a no-op success.
func (m *Manager) ClosePosition(symbol string, exitPrice float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked(symbol, exitPrice, "")
}

// closeLocked realizes P&L and releases the margin exactly symmetrically to
// the open-side debit: credit = qty*entry + pnl, so a close at entry price
// restores the pre-open portfolio value to the rupee.
func (m *Manager) closeLocked(symbol string, exitPrice float64, reason string) bool {
	p, ok := m.positions[symbol]
	if !ok {
		log.Printf("[risk] %s: no position to close", symbol)
		return true
	}
	if exitPrice <= 0 {
		exitPrice = p.CurrentPrice
	}

	pnl := p.PnL(exitPrice)
	m.portfolioValue += float64(p.Qty)*p.EntryPrice + pnl
	m.dailyPnL += pnl

	m.trades = append(m.trades, Trade{
		Symbol: symbol, Side: p.Side, Qty: p.Qty,
		Entry: p.EntryPrice, Exit: exitPrice, PnL: pnl,
		Reason: reason, Timestamp: time.Now(),
	})
	delete(m.positions, symbol)

	log.Printf("[risk] closed %s %s x%d entry %.2f exit %.2f pnl %.2f %s",
		p.Side, symbol, p.Qty, p.EntryPrice, exitPrice, pnl, reason)
	m.persistLocked()
	m.publishGauges()
	return true
}

// UpdatePositions applies fresh prices, supervises exits and evaluates the
// breakers. Per symbol and cycle the stop-loss check runs first and
// short-circuits the take-profit check, so a position closes at most once.
func (m *Manager) UpdatePositions(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, price := range prices {
		p, ok := m.positions[symbol]
		if !ok {
			continue
		}
		p.CurrentPrice = price

		if m.stopHitLocked(p) {
			continue
		}
		m.takeProfitHitLocked(p)
	}

	m.updateDrawdownLocked()
	m.checkBreakersLocked()
	m.publishGauges()
}

func (m *Manager) stopHitLocked(p *model.Position) bool {
	if p.StopLoss <= 0 {
		return false
	}
	hit := (p.Side == model.Long && p.CurrentPrice <= p.StopLoss) ||
		(p.Side == model.Short && p.CurrentPrice >= p.StopLoss)
	if !hit {
		return false
	}
	log.Printf("[risk] stop loss hit for %s at %.2f", p.Symbol, p.CurrentPrice)
	m.closeLocked(p.Symbol, p.StopLoss, "stop_loss")
	return true
}

func (m *Manager) takeProfitHitLocked(p *model.Position) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	hit := (p.Side == model.Long && p.CurrentPrice >= p.TakeProfit) ||
		(p.Side == model.Short && p.CurrentPrice <= p.TakeProfit)
	if !hit {
		return false
	}
	log.Printf("[risk] take profit hit for %s at %.2f", p.Symbol, p.CurrentPrice)
	m.closeLocked(p.Symbol, p.TakeProfit, "take_profit")
	return true
}

// markedValue is free margin plus open positions at current prices.
func (m *Manager) markedValueLocked() float64 {
	v := m.portfolioValue
	for _, p := range m.positions {
		v += float64(p.Qty) * p.CurrentPrice
	}
	return v
}

func (m *Manager) updateDrawdownLocked() {
	v := m.markedValueLocked()
	if v > m.peakValue {
		m.peakValue = v
		return
	}
	if m.peakValue > 0 {
		dd := (m.peakValue - v) / m.peakValue
		if dd > m.maxDrawdown {
			m.maxDrawdown = dd
		}
	}
}

// checkBreakersLocked evaluates both one-way latches. Once tripped they
// stay tripped until ResetDailyStats. A trip persists the snapshot even
// when there is nothing left to flatten, so a restart restores the latch.
func (m *Manager) checkBreakersLocked() {
	if !m.dailyLossHit && m.dailyPnL <= -m.limits.MaxDailyLoss {
		m.dailyLossHit = true
		log.Printf("[risk] daily loss limit hit: %.2f (limit %.2f)", m.dailyPnL, m.limits.MaxDailyLoss)
		m.alertLocked("daily loss breaker tripped, flattening all positions")
		m.closeAllLocked("daily_loss_limit")
		m.persistLocked()
	}
	if !m.portfolioStop && m.maxDrawdown >= m.limits.MaxDrawdownPct {
		m.portfolioStop = true
		log.Printf("[risk] portfolio stop: drawdown %.1f%%", m.maxDrawdown*100)
		m.alertLocked("drawdown breaker tripped, flattening all positions")
		m.closeAllLocked("portfolio_stop")
		m.persistLocked()
	}
}

func (m *Manager) closeAllLocked(reason string) {
	for symbol := range m.positions {
		m.closeLocked(symbol, 0, reason)
	}
}

// alertLocked fires the notification without holding up the update cycle;
// delivery failures are the notifier's problem to log.
func (m *Manager) alertLocked(msg string) {
	if m.notifier == nil {
		return
	}
	n := m.notifier
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = n.Send(ctx, notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Risk breaker",
			Message: msg,
		})
	}()
}

// DailyLossTripped reports the daily-loss latch.
func (m *Manager) DailyLossTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyLossHit
}

// PortfolioStopActive reports the drawdown latch.
func (m *Manager) PortfolioStopActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolioStop
}

// Position returns a copy of the open position for symbol, if any.
func (m *Manager) Position(symbol string) (model.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok {
		return *p, true
	}
	return model.Position{}, false
}

// Positions returns copies of every open position.
func (m *Manager) Positions() map[string]model.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Position, len(m.positions))
	for s, p := range m.positions {
		out[s] = *p
	}
	return out
}

// TradeHistory returns the archived trades in order.
func (m *Manager) TradeHistory() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// PortfolioValue is the free value after margin reservations.
func (m *Manager) PortfolioValue() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolioValue
}

// RiskMetrics computes the derived portfolio snapshot.
func (m *Manager) RiskMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	wins := 0
	for _, t := range m.trades {
		if t.PnL > 0 {
			wins++
		}
	}
	totalRisk := 0.0
	for _, p := range m.positions {
		totalRisk += p.RiskAmount()
	}
	pnlPct := 0.0
	if m.dailyStartValue > 0 {
		pnlPct = m.dailyPnL / m.dailyStartValue * 100
	}
	return Metrics{
		TotalPortfolioValue: m.markedValueLocked(),
		TotalRiskAmount:     totalRisk,
		MaxDrawdown:         m.maxDrawdown,
		DailyPnL:            m.dailyPnL,
		DailyPnLPercent:     pnlPct,
		TotalTrades:         len(m.trades),
		WinningTrades:       wins,
	}
}

// ResetDailyStats re-arms both breakers at the day boundary and rebases
// the drawdown peak to the current marked value, so yesterday's excursion
// does not trip today's session instantly. Called by the strategy loop
// when the IST date rolls, and on load of a previous-day snapshot.
func (m *Manager) ResetDailyStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyLocked()
}

func (m *Manager) resetDailyLocked() {
	m.dailyPnL = 0
	m.dailyLossHit = false
	m.portfolioStop = false
	m.dailyStartValue = m.portfolioValue
	m.peakValue = m.markedValueLocked()
	m.maxDrawdown = 0

	log.Printf("[risk] daily statistics reset")
	m.persistLocked()
	m.publishGauges()
}

func (m *Manager) publishGauges() {
	metrics.OpenPositions.Set(float64(len(m.positions)))
	metrics.PortfolioValue.Set(m.portfolioValue)
	metrics.DailyPnL.Set(m.dailyPnL)
	metrics.BreakerTripped.WithLabelValues("daily_loss").Set(boolGauge(m.dailyLossHit))
	metrics.BreakerTripped.WithLabelValues("drawdown").Set(boolGauge(m.portfolioStop))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
