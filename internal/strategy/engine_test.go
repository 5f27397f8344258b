package strategy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swingbot/internal/livefeed"
	"swingbot/internal/model"
	"swingbot/internal/risk"
)

func testEngine(rm *risk.Manager) *Engine {
	instruments := map[string]model.Instrument{
		"nifty": {Symbol: "nifty", Token: "99926000", Exchange: "NSE"},
	}
	e := New(Config{EntryBuffer: 0.001}, nil, nil, rm, nil, instruments)
	e.levels["nifty"] = model.LevelSet{
		Symbol:      "nifty",
		Resistance:  &model.SwingLevel{Price: 110, Kind: model.Resistance},
		Support:     &model.SwingLevel{Price: 90, Kind: model.Support},
		BuyTrigger:  110.11,
		SellTrigger: 89.91,
		ComputedAt:  time.Now(),
	}
	return e
}

func testRisk() *risk.Manager {
	return risk.New(risk.Limits{
		MaxPositions:        10,
		MaxDailyLoss:        50000,
		MaxPositionSize:     100000,
		PositionSizePercent: 0.02,
		StopLossPercent:     0.05,
		TargetProfitPercent: 0.10,
	}, 100000, "")
}

func drain(e *Engine) []Signal {
	var out []Signal
	for {
		select {
		case sig := <-e.signalCh:
			out = append(out, sig)
		default:
			return out
		}
	}
}

func TestEvaluateBreakoutEntries(t *testing.T) {
	e := testEngine(testRisk())

	// Between the triggers: nothing.
	e.evaluate("nifty", 100, time.Now())
	if sigs := drain(e); len(sigs) != 0 {
		t.Fatalf("got %d signals inside the band, want 0", len(sigs))
	}

	e.evaluate("nifty", 110.5, time.Now())
	sigs := drain(e)
	if len(sigs) != 1 || sigs[0].Action != ActionBuy {
		t.Fatalf("got %+v, want one BUY", sigs)
	}
	if sigs[0].Price != 110.5 || sigs[0].Symbol != "nifty" {
		t.Errorf("signal = %+v", sigs[0])
	}
}

func TestEvaluateBreakdownEntry(t *testing.T) {
	e := testEngine(testRisk())

	e.evaluate("nifty", 89.5, time.Now())
	sigs := drain(e)
	if len(sigs) != 1 || sigs[0].Action != ActionSell {
		t.Fatalf("got %+v, want one SELL", sigs)
	}
}

func TestEvaluateExitsHeldPosition(t *testing.T) {
	rm := testRisk()
	e := testEngine(rm)
	rm.OpenPosition("nifty", model.Long, 10, 100, 95)

	// A long above the buy trigger must not re-enter.
	e.evaluate("nifty", 111, time.Now())
	if sigs := drain(e); len(sigs) != 0 {
		t.Fatalf("got %+v, want no signal for a held long above resistance", sigs)
	}

	e.evaluate("nifty", 89, time.Now())
	sigs := drain(e)
	if len(sigs) != 1 || sigs[0].Action != ActionExitLong {
		t.Fatalf("got %+v, want one EXIT_LONG", sigs)
	}
}

func TestEvaluateShortExit(t *testing.T) {
	rm := testRisk()
	e := testEngine(rm)
	rm.OpenPosition("nifty", model.Short, 10, 100, 105)

	e.evaluate("nifty", 111, time.Now())
	sigs := drain(e)
	if len(sigs) != 1 || sigs[0].Action != ActionExitShort {
		t.Fatalf("got %+v, want one EXIT_SHORT", sigs)
	}
}

func TestEmitCooldownSuppressesRepeats(t *testing.T) {
	e := testEngine(testRisk())
	now := time.Now()

	e.evaluate("nifty", 110.5, now)
	e.evaluate("nifty", 110.6, now.Add(time.Second))
	if sigs := drain(e); len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 inside the cooldown", len(sigs))
	}

	// Past the cooldown the action may fire again.
	e.evaluate("nifty", 110.7, now.Add(2*time.Minute))
	if sigs := drain(e); len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1 after the cooldown", len(sigs))
	}

	// A different action is not suppressed.
	e.evaluate("nifty", 89.0, now.Add(2*time.Minute))
	if sigs := drain(e); len(sigs) != 1 || sigs[0].Action != ActionSell {
		t.Fatalf("got %+v, want one SELL", sigs)
	}
}

func TestRollDayResetsRisk(t *testing.T) {
	rm := risk.New(risk.Limits{
		MaxPositions:        10,
		MaxDailyLoss:        40,
		MaxPositionSize:     100000,
		PositionSizePercent: 0.02,
		StopLossPercent:     0.05,
		TargetProfitPercent: 0.10,
	}, 100000, "")
	rm.OpenPosition("nifty", model.Long, 10, 100, 95)
	rm.UpdatePositions(map[string]float64{"nifty": 95}) // trips the breaker
	if !rm.DailyLossTripped() {
		t.Fatal("breaker should be tripped")
	}

	e := testEngine(rm)
	day1 := time.Date(2026, time.August, 26, 10, 0, 0, 0, time.FixedZone("IST", 19800))

	// First observation and later same-day cycles keep the latch.
	e.rollDay(day1)
	e.rollDay(day1.Add(2 * time.Hour))
	if !rm.DailyLossTripped() {
		t.Fatal("same-day cycles must not re-arm the breaker")
	}

	e.rollDay(day1.AddDate(0, 0, 1))
	if rm.DailyLossTripped() {
		t.Error("date roll should re-arm the breaker")
	}
}

func TestReadPricesDistinguishesMissingFromStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	records := map[string]livefeed.Record{
		"99926000": {Token: "99926000", Exchange: "NSE", LastTradedPrice: 1105000},
	}
	raw, err := json.Marshal(records)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	e := testEngine(testRisk())
	e.instruments["banknifty"] = model.Instrument{Symbol: "banknifty", Token: "99926009", Exchange: "NSE"}
	e.feed = livefeed.NewReader(path, time.Minute)

	// banknifty has not ticked yet: its absence is not a feed fault.
	prices := e.readPrices()
	if len(prices) != 1 || prices["nifty"] != 11050 {
		t.Fatalf("prices = %v, want nifty 11050 only", prices)
	}
	if e.staleWarned {
		t.Error("missing token must not flag the feed stale")
	}

	// Age the file past the staleness gate: now nothing is served.
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if prices := e.readPrices(); len(prices) != 0 {
		t.Errorf("stale feed served %v", prices)
	}
	if !e.staleWarned {
		t.Error("stale feed should be flagged")
	}
}

func TestEvaluateNoLevels(t *testing.T) {
	e := testEngine(testRisk())
	delete(e.levels, "nifty")

	e.evaluate("nifty", 110.5, time.Now())
	if sigs := drain(e); len(sigs) != 0 {
		t.Fatalf("got %d signals without levels, want 0", len(sigs))
	}
}
