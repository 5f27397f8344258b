// Package resample converts 1-minute candle series into coarser timeframes.
// Buckets are left-labeled and anchored at the 09:15 market open of each
// trading day, so a 5-minute bucket covering 09:15-09:20 is stamped 09:15
// and hourly buckets land on 09:15, 10:15 and so on.
package resample

import (
	"fmt"
	"log"

	"swingbot/internal/histdata"
	"swingbot/internal/markethours"
	"swingbot/internal/metrics"
	"swingbot/internal/model"
)

// Resample aggregates a 1-minute series into target-interval buckets:
// open = first, high = max, low = min, close = last, volume = sum.
// Rows stamped at or after the 15:30 close are excluded before bucketing so
// a trailing partial bucket never pollutes the aggregates. An empty input
// (after filtering) yields an empty series, not an error.
func Resample(series model.Series, interval model.Interval) model.Series {
	size := interval.Duration()
	if size <= 0 || len(series) == 0 {
		return nil
	}

	var out model.Series
	for i := range series {
		c := &series[i]
		ist := c.TS.In(markethours.IST)

		hm := ist.Hour()*60 + ist.Minute()
		if hm >= markethours.CloseHour*60+markethours.CloseMinute {
			continue
		}
		open := markethours.TodayOpen(ist)
		if ist.Before(open) {
			continue
		}

		bucket := open.Add(ist.Sub(open) / size * size)
		if n := len(out); n > 0 && out[n-1].TS.Equal(bucket) {
			agg := &out[n-1]
			if c.High > agg.High {
				agg.High = c.High
			}
			if c.Low < agg.Low {
				agg.Low = c.Low
			}
			agg.Close = c.Close
			agg.Volume += c.Volume
			continue
		}
		out = append(out, model.Candle{
			TS: bucket, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
		})
	}
	return out
}

// RegenerateAll rebuilds and persists every derived timeframe from the
// 1-minute series. Timeframes are independent: one failure is recorded and
// the rest still run. The outcome map has one entry per target interval.
func RegenerateAll(store *histdata.Store, symbol string, series1m model.Series) map[model.Interval]error {
	out := make(map[model.Interval]error, len(model.ResampleTargets))
	for _, interval := range model.ResampleTargets {
		resampled := Resample(series1m, interval)
		if len(resampled) == 0 {
			out[interval] = fmt.Errorf("resample: %s %s: empty result", symbol, interval)
			metrics.ResampleRuns.WithLabelValues(string(interval), "empty").Inc()
			continue
		}
		if err := store.Save(resampled, symbol, interval); err != nil {
			log.Printf("[resample] %s %s: save failed: %v", symbol, interval, err)
			out[interval] = err
			metrics.ResampleRuns.WithLabelValues(string(interval), "error").Inc()
			continue
		}
		out[interval] = nil
		metrics.ResampleRuns.WithLabelValues(string(interval), "ok").Inc()
	}
	return out
}
