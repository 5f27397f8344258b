// Package swing detects support and resistance levels from candle closes
// using a 3-bar swing pattern, then narrows them to the single actionable
// level on each side of the current price.
package swing

import (
	"time"

	"swingbot/internal/model"
)

// Detector holds detection configuration. The zero value is usable:
// MinDiff 0 accepts any strict extremum.
type Detector struct {
	// MinDiff is how far the candidate close must stand beyond both
	// neighbors for the swing to count.
	MinDiff float64
	// EntryBuffer widens the trigger past the level to avoid false
	// breakouts exactly at it.
	EntryBuffer float64
}

type candidate struct {
	price float64
	ts    time.Time
}

// Detect recomputes the level set for a series. The result carries at most
// one resistance (above the last close) and one support (below it), plus
// the buffered buy and sell triggers.
func (d Detector) Detect(symbol string, series model.Series, now time.Time) model.LevelSet {
	ls := model.LevelSet{Symbol: symbol, ComputedAt: now}

	if r := d.nearest(series, true); r != nil {
		ls.Resistance = &model.SwingLevel{Price: r.price, TS: r.ts, Kind: model.Resistance}
		ls.BuyTrigger = r.price * (1 + d.EntryBuffer)
	}
	if s := d.nearest(series, false); s != nil {
		ls.Support = &model.SwingLevel{Price: s.price, TS: s.ts, Kind: model.Support}
		ls.SellTrigger = s.price * (1 - d.EntryBuffer)
	}
	return ls
}

// nearest runs the full pipeline for one side: 3-bar candidates, virgin
// filter, closest-to-price winner.
func (d Detector) nearest(series model.Series, high bool) *candidate {
	cands := d.candidates(series, high)
	cands = virginFilter(cands, high)
	return closest(cands, high)
}

// candidates scans interior closes. A swing high needs the middle close
// strictly beyond both neighbors by more than MinDiff and beyond the last
// close in the series, so an already-broken level never qualifies. Swing
// lows are symmetric.
func (d Detector) candidates(series model.Series, high bool) []candidate {
	if len(series) < 3 {
		return nil
	}
	last := series[len(series)-1].Close

	var out []candidate
	for m := 1; m <= len(series)-2; m++ {
		mid := series[m].Close
		left := series[m-1].Close
		right := series[m+1].Close

		if high {
			if mid-right > d.MinDiff && mid-left > d.MinDiff && mid > last {
				out = append(out, candidate{price: mid, ts: series[m].TS})
			}
		} else {
			if right-mid > d.MinDiff && left-mid > d.MinDiff && mid < last {
				out = append(out, candidate{price: mid, ts: series[m].TS})
			}
		}
	}
	return out
}

// virginFilter drops levels the market has since overrun: a resistance is
// dead once any later candidate prints higher, a support once any later
// candidate prints lower. Candidates arrive in timestamp order.
func virginFilter(cands []candidate, high bool) []candidate {
	out := cands[:0]
	for i, c := range cands {
		broken := false
		for _, later := range cands[i+1:] {
			if high && c.price < later.price {
				broken = true
				break
			}
			if !high && c.price > later.price {
				broken = true
				break
			}
		}
		if !broken {
			out = append(out, c)
		}
	}
	return out
}

// closest picks the survivor nearest the current price: minimum resistance,
// maximum support. Equal prices tie-break to the most recent timestamp.
func closest(cands []candidate, high bool) *candidate {
	var best *candidate
	for i := range cands {
		c := &cands[i]
		switch {
		case best == nil:
			best = c
		case high && c.price < best.price:
			best = c
		case !high && c.price > best.price:
			best = c
		case c.price == best.price && c.ts.After(best.ts):
			best = c
		}
	}
	return best
}
