package resample

import (
	"testing"
	"time"

	"swingbot/internal/markethours"
	"swingbot/internal/model"
)

func minuteSeries(day time.Time, start string, closes ...float64) model.Series {
	st, _ := time.ParseInLocation("15:04", start, markethours.IST)
	base := time.Date(day.Year(), day.Month(), day.Day(), st.Hour(), st.Minute(), 0, 0, markethours.IST)
	out := make(model.Series, len(closes))
	for i, c := range closes {
		out[i] = model.Candle{
			TS: base.Add(time.Duration(i) * time.Minute),
			Open: c, High: c + 2, Low: c - 2, Close: c, Volume: 10,
		}
	}
	return out
}

var testDay = time.Date(2026, time.August, 26, 0, 0, 0, 0, markethours.IST)

func TestResampleFiveMinute(t *testing.T) {
	series := minuteSeries(testDay, "09:15", 100, 101, 99, 102, 98)

	out := Resample(series, model.FiveMinute)
	if len(out) != 1 {
		t.Fatalf("got %d buckets, want 1", len(out))
	}
	b := out[0]
	if b.TS.Hour() != 9 || b.TS.Minute() != 15 {
		t.Errorf("bucket stamped %s, want 09:15", b.TS.Format("15:04"))
	}
	if b.Open != 100 {
		t.Errorf("open = %.2f, want 100 (first)", b.Open)
	}
	if b.High != 104 {
		t.Errorf("high = %.2f, want 104 (max)", b.High)
	}
	if b.Low != 96 {
		t.Errorf("low = %.2f, want 96 (min)", b.Low)
	}
	if b.Close != 98 {
		t.Errorf("close = %.2f, want 98 (last)", b.Close)
	}
	if b.Volume != 50 {
		t.Errorf("volume = %d, want 50 (sum)", b.Volume)
	}
}

func TestResampleFiveMinuteFlatCandles(t *testing.T) {
	// With high=low=close per row the bucket extremes come straight from
	// the closes: 100,101,99,102,98 folds to o=100 h=102 l=98 c=98.
	base := time.Date(2026, time.August, 26, 9, 15, 0, 0, markethours.IST)
	closes := []float64{100, 101, 99, 102, 98}
	series := make(model.Series, len(closes))
	for i, c := range closes {
		series[i] = model.Candle{
			TS: base.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, Volume: 10,
		}
	}

	out := Resample(series, model.FiveMinute)
	if len(out) != 1 {
		t.Fatalf("got %d buckets, want 1", len(out))
	}
	b := out[0]
	if b.Open != 100 || b.High != 102 || b.Low != 98 || b.Close != 98 {
		t.Errorf("bucket = o=%.0f h=%.0f l=%.0f c=%.0f, want o=100 h=102 l=98 c=98",
			b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume != 50 {
		t.Errorf("volume = %d, want 50", b.Volume)
	}
}

func TestResampleBucketsAnchorAtOpen(t *testing.T) {
	// 09:15 through 10:34, hourly buckets must land on 09:15 and 10:15,
	// not on the raw clock hour.
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100
	}
	series := minuteSeries(testDay, "09:15", closes...)

	out := Resample(series, model.OneHour)
	if len(out) != 2 {
		t.Fatalf("got %d buckets, want 2", len(out))
	}
	if got := out[0].TS.Format("15:04"); got != "09:15" {
		t.Errorf("first bucket at %s, want 09:15", got)
	}
	if got := out[1].TS.Format("15:04"); got != "10:15" {
		t.Errorf("second bucket at %s, want 10:15", got)
	}
}

func TestResampleExcludesPostClose(t *testing.T) {
	// Two rows at and after 15:30 must be dropped before bucketing.
	series := minuteSeries(testDay, "15:28", 100, 101, 102, 103)

	out := Resample(series, model.FiveMinute)
	if len(out) != 1 {
		t.Fatalf("got %d buckets, want 1", len(out))
	}
	if out[0].Close != 101 {
		t.Errorf("close = %.2f, want 101 (15:29 row)", out[0].Close)
	}
	if out[0].Volume != 20 {
		t.Errorf("volume = %d, want 20 (two rows)", out[0].Volume)
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := Resample(nil, model.FiveMinute); len(out) != 0 {
		t.Errorf("nil input produced %d buckets", len(out))
	}
	// Everything after close filters to nothing.
	series := minuteSeries(testDay, "15:30", 100, 101)
	if out := Resample(series, model.FiveMinute); len(out) != 0 {
		t.Errorf("post-close input produced %d buckets", len(out))
	}
}

func TestResampleDeterministic(t *testing.T) {
	series := minuteSeries(testDay, "09:15", 100, 101, 99, 102, 98, 97, 103)
	a := Resample(series, model.FiveMinute)
	b := Resample(series, model.FiveMinute)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("bucket %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRegenerateAllIndependence(t *testing.T) {
	// An empty result for every target is recorded as a failure per
	// timeframe, and no timeframe aborts the others.
	outcomes := RegenerateAll(nil, "nifty", nil)
	if len(outcomes) != len(model.ResampleTargets) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(model.ResampleTargets))
	}
	for interval, err := range outcomes {
		if err == nil {
			t.Errorf("%s: expected an error for empty input", interval)
		}
	}
}
