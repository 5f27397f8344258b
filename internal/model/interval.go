package model

import "time"

// Interval identifies a candle timeframe using the broker's wire names.
type Interval string

const (
	OneMinute     Interval = "ONE_MINUTE"
	ThreeMinute   Interval = "THREE_MINUTE"
	FiveMinute    Interval = "FIVE_MINUTE"
	TenMinute     Interval = "TEN_MINUTE"
	FifteenMinute Interval = "FIFTEEN_MINUTE"
	ThirtyMinute  Interval = "THIRTY_MINUTE"
	OneHour       Interval = "ONE_HOUR"
	OneDay        Interval = "ONE_DAY"
)

// AllIntervals lists every supported interval, finest first.
var AllIntervals = []Interval{
	OneMinute, ThreeMinute, FiveMinute, TenMinute,
	FifteenMinute, ThirtyMinute, OneHour, OneDay,
}

// ResampleTargets are the intervals derivable from the 1-minute series.
var ResampleTargets = []Interval{
	ThreeMinute, FiveMinute, TenMinute, FifteenMinute, ThirtyMinute, OneHour,
}

var intervalDurations = map[Interval]time.Duration{
	OneMinute:     time.Minute,
	ThreeMinute:   3 * time.Minute,
	FiveMinute:    5 * time.Minute,
	TenMinute:     10 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	OneDay:        24 * time.Hour,
}

// maxLookbackDays is the provider-imposed ceiling on a single historical
// request window, per interval. Used only on first fetch.
var maxLookbackDays = map[Interval]int{
	OneMinute:     30,
	ThreeMinute:   60,
	FiveMinute:    100,
	TenMinute:     100,
	FifteenMinute: 100,
	ThirtyMinute:  100,
	OneHour:       365,
	OneDay:        2000,
}

// Duration returns the bucket size, or 0 for an unknown interval.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

// MaxLookbackDays returns the widest first-fetch window the provider allows.
func (iv Interval) MaxLookbackDays() int {
	if d, ok := maxLookbackDays[iv]; ok {
		return d
	}
	return 30
}

// Valid reports whether iv is one of the supported intervals.
func (iv Interval) Valid() bool {
	_, ok := intervalDurations[iv]
	return ok
}
