package markethours

import (
	"testing"
	"time"
)

// 2026-08-26 is a Wednesday with no NSE holiday.
func tradingDay(hour, min int) time.Time {
	return time.Date(2026, time.August, 26, hour, min, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", tradingDay(9, 14), false},
		{"at open", tradingDay(9, 15), true},
		{"midday", tradingDay(12, 0), true},
		{"last minute", tradingDay(15, 29), true},
		{"at close", tradingDay(15, 30), false},
		{"saturday", time.Date(2026, time.August, 29, 12, 0, 0, 0, IST), false},
		{"weekday holiday", time.Date(2026, time.November, 19, 12, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLastElapsedHourlyWindow(t *testing.T) {
	cases := []struct {
		name        string
		t           time.Time
		wantHour    int
		wantMin     int
		wantElapsed bool
	}{
		{"before first window", tradingDay(9, 45), 0, 0, false},
		{"exactly one hour in", tradingDay(10, 15), 0, 0, false},
		{"just past one hour", tradingDay(10, 16), 10, 15, true},
		{"mid afternoon", tradingDay(13, 50), 13, 15, true},
		{"after close caps at 15:15", tradingDay(17, 0), 15, 15, true},
	}
	for _, tc := range cases {
		boundary, elapsed := LastElapsedHourlyWindow(tc.t)
		if elapsed != tc.wantElapsed {
			t.Errorf("%s: elapsed = %v, want %v", tc.name, elapsed, tc.wantElapsed)
			continue
		}
		if !elapsed {
			continue
		}
		if boundary.Hour() != tc.wantHour || boundary.Minute() != tc.wantMin {
			t.Errorf("%s: boundary = %s, want %02d:%02d", tc.name, boundary.Format("15:04"), tc.wantHour, tc.wantMin)
		}
	}
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	// Friday evening rolls to Monday 09:15.
	friday := time.Date(2026, time.August, 28, 18, 0, 0, 0, IST)
	next := NextOpen(friday)
	if next.Weekday() != time.Monday {
		t.Fatalf("next open on %s, want Monday", next.Weekday())
	}
	if next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("next open at %s, want 09:15", next.Format("15:04"))
	}
}

func TestTodayOpenClose(t *testing.T) {
	now := tradingDay(11, 0)
	if open := TodayOpen(now); open.Hour() != 9 || open.Minute() != 15 {
		t.Errorf("TodayOpen = %s", open.Format("15:04"))
	}
	if cl := TodayClose(now); cl.Hour() != 15 || cl.Minute() != 30 {
		t.Errorf("TodayClose = %s", cl.Format("15:04"))
	}
}
