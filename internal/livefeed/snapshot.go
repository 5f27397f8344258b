// Package livefeed carries last-traded prices from the websocket stream to
// the strategy process through a JSON snapshot file.
//
// The feed runs in its own process (cmd/feed) so a websocket stall or crash
// never takes the trading loop down with it. The feed side holds the latest
// tick per token in memory and rewrites the snapshot atomically on a short
// interval; the strategy side reads it back and treats a stale file as no
// data.
package livefeed

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"swingbot/internal/metrics"
	"swingbot/pkg/smartconnect"
)

// defaultWriteInterval is how often the snapshot file is rewritten. Ticks
// between rewrites only update memory.
const defaultWriteInterval = 2 * time.Second

// Record is the latest known state of one instrument in the snapshot.
// Prices stay in paise here, matching the wire format; readers convert.
type Record struct {
	Token             string    `json:"token"`
	Exchange          string    `json:"exchange"`
	LastTradedPrice   int64     `json:"last_traded_price"` // paise
	LastTradedQty     int64     `json:"last_traded_quantity"`
	VolumeToday       int64     `json:"volume_traded_today,omitempty"`
	ExchangeTimestamp time.Time `json:"exchange_timestamp"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Rupees converts the paise LTP to rupees.
func (r Record) Rupees() float64 { return float64(r.LastTradedPrice) / 100 }

// Writer accumulates ticks and periodically dumps them to the snapshot file.
type Writer struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	records map[string]Record
	dirty   bool
}

// NewWriter creates a snapshot writer for path.
func NewWriter(path string) *Writer {
	return &Writer{
		path:     path,
		interval: defaultWriteInterval,
		records:  make(map[string]Record),
	}
}

// Apply folds one tick frame into the in-memory state. Safe to call from
// the stream callback; it never blocks on IO.
func (w *Writer) Apply(f smartconnect.TickFrame) {
	exch := "NSE"
	if f.ExchangeType == smartconnect.ExchangeNSEFO {
		exch = "NFO"
	}
	rec := Record{
		Token:             f.Token,
		Exchange:          exch,
		LastTradedPrice:   f.LastTradedPrice,
		LastTradedQty:     f.LastTradedQty,
		VolumeToday:       f.VolumeToday,
		ExchangeTimestamp: time.UnixMilli(f.ExchangeTimestamp),
		ReceivedAt:        time.Now(),
	}
	w.mu.Lock()
	w.records[f.Token] = rec
	w.dirty = true
	w.mu.Unlock()
	metrics.FeedTicksTotal.Inc()
}

// Run rewrites the snapshot on the configured interval until ctx is
// cancelled. A final flush happens on the way out.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	cp := make(map[string]Record, len(w.records))
	for k, v := range w.records {
		cp[k] = v
	}
	w.dirty = false
	w.mu.Unlock()

	if err := writeSnapshotFile(w.path, cp); err != nil {
		log.Printf("[livefeed] snapshot write failed: %v", err)
		return
	}
	metrics.FeedSnapshotWrites.Inc()
}

func writeSnapshotFile(path string, records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".feed-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
