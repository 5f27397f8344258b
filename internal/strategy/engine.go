// Package strategy runs the swing breakout loop: it keeps historical data
// current, recomputes support/resistance levels on a fixed cadence, watches
// live prices from the feed snapshot, and emits signals for the execution
// engine.
package strategy

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"swingbot/internal/histdata"
	"swingbot/internal/livefeed"
	"swingbot/internal/markethours"
	"swingbot/internal/metrics"
	"swingbot/internal/model"
	"swingbot/internal/resample"
	"swingbot/internal/risk"
	"swingbot/internal/swing"
	redisstore "swingbot/internal/store/redis"
)

// signalCooldown limits how often the same action can repeat for a symbol
// while its entry is being refused downstream.
const signalCooldown = time.Minute

// Config carries the strategy knobs.
type Config struct {
	Name           string         // strategy name stamped on signals
	DetectInterval model.Interval // timeframe levels are computed on
	LevelRefresh   time.Duration  // level recompute cadence
	PollInterval   time.Duration  // price check cadence
	Confidence     float64        // confidence stamped on signals
	MinDiff        float64
	EntryBuffer    float64
}

// Engine is the per-process strategy loop over a set of instruments.
type Engine struct {
	cfg         Config
	store       *histdata.Store
	detector    swing.Detector
	feed        *livefeed.Reader
	risk        *risk.Manager
	mirror      *redisstore.Mirror // nil when disabled
	instruments map[string]model.Instrument

	signalCh chan Signal

	mu          sync.Mutex
	levels      map[string]model.LevelSet
	lastRefresh map[string]time.Time
	lastSignal  map[string]signalMark
	staleWarned bool
	tradingDay  string // IST date of the last cycle, for the daily risk reset
}

type signalMark struct {
	action Action
	at     time.Time
}

// New creates a strategy engine. mirror may be nil.
func New(cfg Config, store *histdata.Store, feed *livefeed.Reader, rm *risk.Manager, mirror *redisstore.Mirror, instruments map[string]model.Instrument) *Engine {
	if cfg.Name == "" {
		cfg.Name = "swing_breakout"
	}
	if cfg.DetectInterval == "" {
		cfg.DetectInterval = model.OneHour
	}
	if cfg.LevelRefresh <= 0 {
		cfg.LevelRefresh = time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.7
	}
	return &Engine{
		cfg:         cfg,
		store:       store,
		detector:    swing.Detector{MinDiff: cfg.MinDiff, EntryBuffer: cfg.EntryBuffer},
		feed:        feed,
		risk:        rm,
		mirror:      mirror,
		instruments: instruments,
		signalCh:    make(chan Signal, 64),
		levels:      make(map[string]model.LevelSet),
		lastRefresh: make(map[string]time.Time),
		lastSignal:  make(map[string]signalMark),
	}
}

// Signals returns the channel the execution engine consumes.
func (e *Engine) Signals() <-chan Signal { return e.signalCh }

// Levels returns the current level set for symbol, if one has been computed.
func (e *Engine) Levels(symbol string) (model.LevelSet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls, ok := e.levels[symbol]
	return ls, ok
}

// Bootstrap brings historical data current for every instrument and computes
// the first level sets. Called once before Run.
func (e *Engine) Bootstrap(ctx context.Context) error {
	for symbol, inst := range e.instruments {
		outcomes := e.store.InitializeInstrument(ctx, symbol, inst.Exchange, inst.Token, model.AllIntervals)
		for interval, err := range outcomes {
			if err != nil {
				log.Printf("[strategy] init %s %s: %v", symbol, interval, err)
			}
		}

		if needs, from, to := e.store.DetectLateStart(symbol); needs {
			log.Printf("[strategy] %s missed %s to %s, backfilling", symbol,
				from.Format("15:04"), to.Format("15:04"))
			series, err := e.store.Backfill(ctx, symbol, inst.Exchange, inst.Token, from, to)
			if err != nil {
				log.Printf("[strategy] backfill %s: %v", symbol, err)
			} else {
				for interval, rerr := range resample.RegenerateAll(e.store, symbol, series) {
					if rerr != nil {
						log.Printf("[strategy] regenerate %s %s: %v", symbol, interval, rerr)
					}
				}
			}
		}

		e.refreshLevels(ctx, symbol, inst, time.Now())
	}
	return ctx.Err()
}

// Run drives the strategy loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(e.signalCh)
			return
		case <-ticker.C:
			e.cycle(ctx)
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	now := time.Now()
	e.rollDay(now)
	if !markethours.IsMarketOpen(now) {
		metrics.MarketState.Set(0)
		return
	}
	metrics.MarketState.Set(1)

	for symbol, inst := range e.instruments {
		if e.refreshDue(symbol, now) {
			e.refreshLevels(ctx, symbol, inst, now)
		}
	}

	prices := e.readPrices()
	for symbol, price := range prices {
		inst := e.instruments[symbol]
		if e.mirror != nil {
			if err := e.mirror.SetLTP(ctx, inst.Exchange, inst.Token, price); err != nil {
				log.Printf("[strategy] redis mirror: %v", err)
			}
		}
		e.evaluate(symbol, price, now)
	}

	if len(prices) > 0 {
		e.risk.UpdatePositions(prices)
	}
}

// rollDay re-arms the risk breakers when the IST calendar date changes under
// a long-running process. The first call only records the date, so a restart
// mid-session keeps the restored state.
func (e *Engine) rollDay(now time.Time) {
	day := now.In(markethours.IST).Format("2006-01-02")
	if e.tradingDay == day {
		return
	}
	if e.tradingDay != "" {
		log.Printf("[strategy] new trading day %s", day)
		e.risk.ResetDailyStats()
	}
	e.tradingDay = day
}

// readPrices maps the feed snapshot to per-symbol rupee prices. A stale or
// unreadable snapshot yields nothing and warns once; a token missing from a
// fresh snapshot simply has not ticked yet and is skipped quietly.
func (e *Engine) readPrices() map[string]float64 {
	records, err := e.feed.Read()
	if err != nil {
		if !e.staleWarned {
			if errors.Is(err, livefeed.ErrStale) {
				log.Printf("[strategy] live feed stale, skipping price checks")
			} else {
				log.Printf("[strategy] live feed unreadable: %v", err)
			}
			e.staleWarned = true
		}
		return nil
	}
	e.staleWarned = false

	prices := make(map[string]float64, len(e.instruments))
	for symbol, inst := range e.instruments {
		if rec, ok := records[inst.Token]; ok {
			prices[symbol] = rec.Rupees()
		}
	}
	return prices
}

func (e *Engine) refreshDue(symbol string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastRefresh[symbol]
	return !ok || now.Sub(last) >= e.cfg.LevelRefresh
}

// refreshLevels pulls fresh 1-minute data, regenerates the higher
// timeframes and recomputes the level set for symbol. Failures keep the
// previous levels in place.
func (e *Engine) refreshLevels(ctx context.Context, symbol string, inst model.Instrument, now time.Time) {
	e.mu.Lock()
	e.lastRefresh[symbol] = now
	e.mu.Unlock()

	series1m, err := e.store.Update(ctx, symbol, inst.Exchange, inst.Token, model.OneMinute)
	if err != nil {
		log.Printf("[strategy] update %s 1m: %v", symbol, err)
		return
	}
	for interval, rerr := range resample.RegenerateAll(e.store, symbol, series1m) {
		if rerr != nil {
			log.Printf("[strategy] regenerate %s %s: %v", symbol, interval, rerr)
		}
	}

	series, err := e.store.Load(symbol, e.cfg.DetectInterval)
	if err != nil || len(series) == 0 {
		log.Printf("[strategy] no %s series for %s, keeping previous levels", e.cfg.DetectInterval, symbol)
		return
	}

	ls := e.detector.Detect(symbol, series, now)
	e.mu.Lock()
	e.levels[symbol] = ls
	e.mu.Unlock()

	if ls.Resistance != nil {
		log.Printf("[strategy] %s resistance %.2f (buy above %.2f)", symbol, ls.Resistance.Price, ls.BuyTrigger)
	}
	if ls.Support != nil {
		log.Printf("[strategy] %s support %.2f (sell below %.2f)", symbol, ls.Support.Price, ls.SellTrigger)
	}

	if e.mirror != nil {
		if err := e.mirror.SetLevels(ctx, ls); err != nil {
			log.Printf("[strategy] redis mirror: %v", err)
		}
	}
}

// evaluate applies the breakout rules for one symbol at the current price.
func (e *Engine) evaluate(symbol string, price float64, now time.Time) {
	e.mu.Lock()
	ls, ok := e.levels[symbol]
	e.mu.Unlock()
	if !ok {
		return
	}

	pos, held := e.risk.Position(symbol)
	switch {
	case !held:
		if ls.BuyTrigger > 0 && price > ls.BuyTrigger {
			e.emit(symbol, ActionBuy, price, "price above resistance trigger", now)
		} else if ls.SellTrigger > 0 && price < ls.SellTrigger {
			e.emit(symbol, ActionSell, price, "price below support trigger", now)
		}
	case pos.Side == model.Long:
		if ls.SellTrigger > 0 && price < ls.SellTrigger {
			e.emit(symbol, ActionExitLong, price, "price fell through support", now)
		}
	case pos.Side == model.Short:
		if ls.BuyTrigger > 0 && price > ls.BuyTrigger {
			e.emit(symbol, ActionExitShort, price, "price broke above resistance", now)
		}
	}
}

// emit sends a signal without blocking the loop. Repeat signals for the
// same action are suppressed inside the cooldown window.
func (e *Engine) emit(symbol string, action Action, price float64, reason string, now time.Time) {
	e.mu.Lock()
	if mark, ok := e.lastSignal[symbol]; ok && mark.action == action && now.Sub(mark.at) < signalCooldown {
		e.mu.Unlock()
		return
	}
	e.lastSignal[symbol] = signalMark{action: action, at: now}
	e.mu.Unlock()

	sig := Signal{
		StrategyName: e.cfg.Name,
		Action:       action,
		Symbol:       symbol,
		Price:        price,
		Confidence:   e.cfg.Confidence,
		Reason:       reason,
		TS:           now,
	}
	select {
	case e.signalCh <- sig:
		log.Printf("[strategy] signal %s %s at %.2f (%s)", action, symbol, price, reason)
	default:
		log.Printf("[strategy] signal channel full, dropping %s %s", action, symbol)
	}
}
