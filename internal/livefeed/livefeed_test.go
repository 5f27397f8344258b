package livefeed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"swingbot/pkg/smartconnect"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	w := NewWriter(path)

	w.Apply(smartconnect.TickFrame{
		ExchangeType:      smartconnect.ExchangeNSECM,
		Token:             "99926000",
		LastTradedPrice:   2465125, // paise
		LastTradedQty:     50,
		ExchangeTimestamp: time.Now().UnixMilli(),
	})
	w.flush()

	r := NewReader(path, 10*time.Second)
	records, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := records["99926000"]
	if !ok {
		t.Fatal("token missing from snapshot")
	}
	if rec.LastTradedPrice != 2465125 {
		t.Errorf("ltp = %d paise, want 2465125", rec.LastTradedPrice)
	}
	if rec.Rupees() != 24651.25 {
		t.Errorf("rupees = %.2f, want 24651.25", rec.Rupees())
	}

	ltp, ok := r.LTP("99926000")
	if !ok || ltp != 24651.25 {
		t.Errorf("LTP = (%.2f, %v), want (24651.25, true)", ltp, ok)
	}
}

func TestReaderStaleGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	w := NewWriter(path)
	w.Apply(smartconnect.TickFrame{Token: "42", LastTradedPrice: 100})
	w.flush()

	r := NewReader(path, 10*time.Second)
	// Pretend an hour passed since the file was written.
	r.now = func() time.Time { return time.Now().Add(time.Hour) }

	if _, err := r.Read(); err != ErrStale {
		t.Errorf("err = %v, want ErrStale", err)
	}
	if _, ok := r.LTP("42"); ok {
		t.Error("stale snapshot must not serve prices")
	}
	if r.Fresh() {
		t.Error("Fresh() must report false for a stale file")
	}
}

func TestReaderMissingFile(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "missing.json"), time.Second)
	if _, err := r.Read(); err != ErrStale {
		t.Errorf("err = %v, want ErrStale for a missing file", err)
	}
}

func TestReaderCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	os.WriteFile(path, []byte("{broken"), 0o644)

	r := NewReader(path, time.Minute)
	if _, err := r.Read(); err == nil {
		t.Error("corrupt snapshot must error")
	}
}

func TestWriterSkipsCleanFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	w := NewWriter(path)

	// Nothing applied yet: no file should appear.
	w.flush()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("flush without ticks must not write a file")
	}

	w.Apply(smartconnect.TickFrame{Token: "42", LastTradedPrice: 100})
	w.flush()
	before, _ := os.Stat(path)

	// No new ticks: mtime stays put, keeping the staleness signal honest.
	time.Sleep(10 * time.Millisecond)
	w.flush()
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("clean flush must not rewrite the snapshot")
	}
}
