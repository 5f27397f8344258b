package histdata

import (
	"sort"

	"swingbot/internal/model"
)

// Merge is the single point of truth for series consistency: concatenate,
// drop duplicate timestamps keeping the newest value, sort ascending.
// Idempotent: Merge(Merge(a, b), b) == Merge(a, b).
func Merge(existing, incoming model.Series) model.Series {
	byTS := make(map[int64]model.Candle, len(existing)+len(incoming))
	for _, c := range existing {
		byTS[c.TS.Unix()] = c
	}
	for _, c := range incoming {
		byTS[c.TS.Unix()] = c // incoming wins on duplicate timestamps
	}

	out := make(model.Series, 0, len(byTS))
	for _, c := range byTS {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}
