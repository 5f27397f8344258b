package histdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swingbot/internal/markethours"
	"swingbot/internal/model"
)

func candleAt(ts time.Time, close float64) model.Candle {
	return model.Candle{TS: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

// 2026-08-26 is a Wednesday with no NSE holiday.
func istTime(day, hour, min int) time.Time {
	return time.Date(2026, time.August, day, hour, min, 0, 0, markethours.IST)
}

// fakeProvider serves a fixed series clipped to the requested window and
// records every request.
type fakeProvider struct {
	series model.Series
	err    error
	calls  []struct{ from, to time.Time }
}

func (f *fakeProvider) FetchCandles(ctx context.Context, exchange, token string, interval model.Interval, from, to time.Time) (model.Series, error) {
	f.calls = append(f.calls, struct{ from, to time.Time }{from, to})
	if f.err != nil {
		return nil, f.err
	}
	var out model.Series
	for _, c := range f.series {
		// Inclusive on both ends, like the broker API.
		if !c.TS.Before(from) && !c.TS.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestMergeKeepsNewestAndSorts(t *testing.T) {
	t0 := istTime(26, 9, 15)
	existing := model.Series{candleAt(t0, 100), candleAt(t0.Add(time.Minute), 101)}
	incoming := model.Series{candleAt(t0.Add(time.Minute), 999), candleAt(t0.Add(2*time.Minute), 102)}

	merged := Merge(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("got %d candles, want 3", len(merged))
	}
	if merged[1].Close != 999 {
		t.Errorf("duplicate timestamp kept close %.2f, want incoming 999", merged[1].Close)
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i-1].TS.Before(merged[i].TS) {
			t.Errorf("series not strictly ascending at %d", i)
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	t0 := istTime(26, 9, 15)
	a := model.Series{candleAt(t0, 100)}
	b := model.Series{candleAt(t0.Add(time.Minute), 101)}

	once := Merge(a, b)
	twice := Merge(once, b)
	if len(once) != len(twice) {
		t.Fatalf("lengths differ: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("candle %d differs after re-merge", i)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New(t.TempDir(), nil)
	t0 := istTime(26, 9, 15)
	series := model.Series{candleAt(t0, 100.25), candleAt(t0.Add(time.Minute), 101.5)}

	if err := store.Save(series, "nifty", model.OneMinute); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.Load("nifty", model.OneMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d candles, want 2", len(loaded))
	}
	if !loaded[0].TS.Equal(t0) || loaded[0].Close != 100.25 {
		t.Errorf("first candle = %+v", loaded[0])
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, nil)

	series, err := store.Load("nifty", model.OneMinute)
	if err != nil || series != nil {
		t.Errorf("missing file: got (%v, %v), want (nil, nil)", series, err)
	}

	// Corruption fails open so the caller re-fetches.
	path := filepath.Join(dir, "NIFTY_ONE_MINUTE", "NIFTY_ONE_MINUTE.csv")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("timestamp,open\ngarbage"), 0o644)
	series, err = store.Load("nifty", model.OneMinute)
	if err != nil || series != nil {
		t.Errorf("corrupt file: got (%v, %v), want (nil, nil)", series, err)
	}
}

func TestUpdateFiltersInclusiveBoundary(t *testing.T) {
	t0 := istTime(26, 10, 0)
	provider := &fakeProvider{series: model.Series{
		candleAt(t0, 100),
		candleAt(t0.Add(time.Minute), 101),
		candleAt(t0.Add(2*time.Minute), 102),
	}}
	store := New(t.TempDir(), provider)
	now := t0.Add(10 * time.Minute)
	store.SetClock(func() time.Time { return now })

	if err := store.Save(model.Series{candleAt(t0, 100)}, "nifty", model.OneMinute); err != nil {
		t.Fatal(err)
	}

	updated, err := store.Update(context.Background(), "nifty", "NSE", "99926000", model.OneMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 3 {
		t.Fatalf("got %d candles, want 3", len(updated))
	}
	// The boundary candle came back from the provider but must not
	// duplicate.
	if updated[0].Close != 100 || updated[1].Close != 101 || updated[2].Close != 102 {
		t.Errorf("series = %+v", updated)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.calls))
	}
	if !provider.calls[0].from.Equal(t0) {
		t.Errorf("fetch window starts %s, want the last timestamp", provider.calls[0].from)
	}
}

func TestUpdateSkipsWhenFresh(t *testing.T) {
	t0 := istTime(26, 10, 0)
	provider := &fakeProvider{}
	store := New(t.TempDir(), provider)
	store.SetClock(func() time.Time { return t0.Add(30 * time.Second) })

	store.Save(model.Series{candleAt(t0, 100)}, "nifty", model.OneMinute)

	updated, err := store.Update(context.Background(), "nifty", "NSE", "99926000", model.OneMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 1 {
		t.Errorf("got %d candles, want the unchanged 1", len(updated))
	}
	if len(provider.calls) != 0 {
		t.Errorf("provider called %d times, want 0 under the fresh window", len(provider.calls))
	}
}

func TestUpdateBootstrapsEmptySeries(t *testing.T) {
	now := istTime(26, 12, 0)
	provider := &fakeProvider{series: model.Series{
		candleAt(now.Add(-48*time.Hour), 100),
		candleAt(now.Add(-time.Hour), 101),
	}}
	store := New(t.TempDir(), provider)
	store.SetClock(func() time.Time { return now })

	updated, err := store.Update(context.Background(), "nifty", "NSE", "99926000", model.OneMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 2 {
		t.Fatalf("got %d candles, want 2", len(updated))
	}
	want := now.AddDate(0, 0, -30) // 1-minute lookback ceiling
	if !provider.calls[0].from.Equal(want) {
		t.Errorf("bootstrap from %s, want %s", provider.calls[0].from, want)
	}
}

func TestUpdateKeepsSeriesOnFetchError(t *testing.T) {
	t0 := istTime(26, 10, 0)
	provider := &fakeProvider{err: errors.New("gateway timeout")}
	store := New(t.TempDir(), provider)
	store.SetClock(func() time.Time { return t0.Add(time.Hour) })

	store.Save(model.Series{candleAt(t0, 100)}, "nifty", model.OneMinute)

	updated, err := store.Update(context.Background(), "nifty", "NSE", "99926000", model.OneMinute)
	if err == nil {
		t.Fatal("expected the fetch error to surface")
	}
	if len(updated) != 1 {
		t.Errorf("got %d candles, want the stale 1 returned alongside the error", len(updated))
	}
}

func TestDetectLateStart(t *testing.T) {
	store := New(t.TempDir(), nil)

	// Last candle on Tuesday the 25th, now Wednesday mid-morning.
	store.Save(model.Series{candleAt(istTime(25, 15, 29), 100)}, "nifty", model.OneMinute)

	now := istTime(26, 11, 40)
	store.SetClock(func() time.Time { return now })
	needs, from, to := store.DetectLateStart("nifty")
	if !needs {
		t.Fatal("expected a backfill window")
	}
	if from.Format("15:04") != "09:15" {
		t.Errorf("window start %s, want 09:15", from.Format("15:04"))
	}
	// Last fully elapsed hourly boundary before 11:40 is 11:15.
	if to.Format("15:04") != "11:15" {
		t.Errorf("window end %s, want 11:15", to.Format("15:04"))
	}

	// Past close the window runs to 15:30.
	store.SetClock(func() time.Time { return istTime(26, 17, 0) })
	needs, _, to = store.DetectLateStart("nifty")
	if !needs {
		t.Fatal("expected a backfill window after close")
	}
	if to.Format("15:04") != "15:30" {
		t.Errorf("window end %s, want 15:30", to.Format("15:04"))
	}
}

func TestDetectLateStartCurrentDay(t *testing.T) {
	store := New(t.TempDir(), nil)
	store.Save(model.Series{candleAt(istTime(26, 9, 30), 100)}, "nifty", model.OneMinute)
	store.SetClock(func() time.Time { return istTime(26, 12, 0) })

	if needs, _, _ := store.DetectLateStart("nifty"); needs {
		t.Error("same-day data must not trigger a backfill")
	}
}

func TestDetectLateStartBeforeFirstHour(t *testing.T) {
	store := New(t.TempDir(), nil)
	store.Save(model.Series{candleAt(istTime(25, 15, 29), 100)}, "nifty", model.OneMinute)

	// 09:40: not even the first hourly window has elapsed.
	store.SetClock(func() time.Time { return istTime(26, 9, 40) })
	if needs, _, _ := store.DetectLateStart("nifty"); needs {
		t.Error("no fully elapsed window yet, must not backfill")
	}
}

func TestBackfillMergesWindow(t *testing.T) {
	t0 := istTime(26, 9, 15)
	provider := &fakeProvider{series: model.Series{
		candleAt(t0, 100),
		candleAt(t0.Add(time.Minute), 101),
	}}
	store := New(t.TempDir(), provider)

	store.Save(model.Series{candleAt(t0.Add(5*time.Minute), 105)}, "nifty", model.OneMinute)

	merged, err := store.Backfill(context.Background(), "nifty", "NSE", "99926000", t0, t0.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 3 {
		t.Fatalf("got %d candles, want 3", len(merged))
	}
	if !merged[0].TS.Equal(t0) || merged[2].Close != 105 {
		t.Errorf("merged = %+v", merged)
	}
}
