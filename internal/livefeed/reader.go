package livefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"swingbot/internal/metrics"
)

// ErrStale is returned when the snapshot file exists but has not been
// rewritten within the freshness window. Callers must treat it as "no live
// data", never as a price of zero.
var ErrStale = errors.New("livefeed: snapshot is stale")

// Reader loads the snapshot the feed process writes and gates it on file
// age.
type Reader struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
}

// NewReader creates a reader for path. Snapshots older than staleAfter are
// rejected with ErrStale.
func NewReader(path string, staleAfter time.Duration) *Reader {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	return &Reader{path: path, staleAfter: staleAfter, now: time.Now}
}

// Read returns the full snapshot, or ErrStale when the file is too old.
// A missing file reads as an empty snapshot with ErrStale; the feed has not
// produced anything yet.
func (r *Reader) Read() (map[string]Record, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStale
		}
		return nil, err
	}
	age := r.now().Sub(info.ModTime())
	metrics.FeedStaleSeconds.Set(age.Seconds())
	if age > r.staleAfter {
		return nil, ErrStale
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	var records map[string]Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("livefeed: corrupt snapshot: %w", err)
	}
	return records, nil
}

// LTP returns the last traded price in rupees for token, or false when the
// snapshot is stale, missing, or does not carry the token.
func (r *Reader) LTP(token string) (float64, bool) {
	records, err := r.Read()
	if err != nil {
		return 0, false
	}
	rec, ok := records[token]
	if !ok || rec.LastTradedPrice <= 0 {
		return 0, false
	}
	return rec.Rupees(), true
}

// Fresh reports whether the snapshot is within the freshness window.
func (r *Reader) Fresh() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}
	return r.now().Sub(info.ModTime()) <= r.staleAfter
}
