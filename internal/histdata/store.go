// Package histdata maintains one deduplicated candle series per
// (symbol, interval) pair, persisted as CSV under a data directory and
// refreshed incrementally from the broker's historical API.
package histdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"swingbot/internal/markethours"
	"swingbot/internal/metrics"
	"swingbot/internal/model"
)

var (
	// ErrNoData means the provider returned zero rows for the window.
	ErrNoData = errors.New("histdata: no data for window")
)

// CandleProvider fetches historical bars from the market-data source.
type CandleProvider interface {
	FetchCandles(ctx context.Context, exchange, token string, interval model.Interval, from, to time.Time) (model.Series, error)
}

// Store owns the on-disk candle series. One process writes; concurrent
// readers are safe because saves go through write-then-rename.
type Store struct {
	baseDir  string
	provider CandleProvider

	mu  sync.Mutex // serializes per-store update/backfill cycles
	now func() time.Time
}

// freshWindow is how recent the last candle must be for Update to skip the
// provider round-trip entirely.
const freshWindow = 60 * time.Second

// New creates a store rooted at baseDir. The directory is created lazily on
// first save.
func New(baseDir string, provider CandleProvider) *Store {
	return &Store{
		baseDir:  baseDir,
		provider: provider,
		now:      func() time.Time { return time.Now().In(markethours.IST) },
	}
}

// SetClock overrides the store's notion of now. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) seriesName(symbol string, interval model.Interval) string {
	return strings.ToUpper(symbol) + "_" + string(interval)
}

func (s *Store) seriesPath(symbol string, interval model.Interval) string {
	name := s.seriesName(symbol, interval)
	return filepath.Join(s.baseDir, name, name+".csv")
}

// Load reads the persisted series. A missing or corrupted file yields
// (nil, nil): corruption fails open so the caller re-fetches.
func (s *Store) Load(symbol string, interval model.Interval) (model.Series, error) {
	series, err := readSeriesCSV(s.seriesPath(symbol, interval))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		log.Printf("[histdata] %s %s: unreadable series treated as missing: %v", symbol, interval, err)
		return nil, nil
	}
	return series, nil
}

// Save persists the series atomically: full rewrite into a temp file in the
// same directory, then rename over the old file.
func (s *Store) Save(series model.Series, symbol string, interval model.Interval) error {
	if err := writeSeriesCSV(s.seriesPath(symbol, interval), series); err != nil {
		return fmt.Errorf("histdata: save %s %s: %w", symbol, interval, err)
	}
	return nil
}

// LastTimestamp returns the newest persisted candle time for the pair.
func (s *Store) LastTimestamp(symbol string, interval model.Interval) (time.Time, bool) {
	series, _ := s.Load(symbol, interval)
	if last := series.Last(); last != nil {
		return last.TS, true
	}
	return time.Time{}, false
}

// Fetch pulls candles from the provider and validates the result. A window
// with zero rows is ErrNoData, not an empty series.
func (s *Store) Fetch(ctx context.Context, exchange, token string, interval model.Interval, from, to time.Time) (model.Series, error) {
	series, err := s.provider.FetchCandles(ctx, exchange, token, interval, from, to)
	if err != nil {
		metrics.HistFetchErrors.Inc()
		return nil, fmt.Errorf("histdata: fetch %s %s: %w", token, interval, err)
	}
	if len(series) == 0 {
		return nil, ErrNoData
	}
	metrics.HistCandlesFetched.Add(float64(len(series)))
	return series, nil
}

// Update incrementally refreshes the series: fetch only what is newer than
// the last persisted candle, drop inclusive-boundary duplicates, merge and
// persist. Returns the series unchanged when it is under a minute old.
// A pair with no history at all is bootstrapped with the full lookback.
func (s *Store) Update(ctx context.Context, symbol, exchange, token string, interval model.Interval) (model.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, symbol, exchange, token, interval)
}

func (s *Store) updateLocked(ctx context.Context, symbol, exchange, token string, interval model.Interval) (model.Series, error) {
	existing, _ := s.Load(symbol, interval)
	now := s.now()

	if len(existing) == 0 {
		return s.bootstrap(ctx, symbol, exchange, token, interval, now)
	}

	last := existing.Last().TS
	if now.Sub(last) < freshWindow {
		return existing, nil
	}

	fetched, err := s.Fetch(ctx, exchange, token, interval, last, now)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return existing, nil
		}
		return existing, err
	}

	// The provider's window is inclusive on both ends, so the boundary
	// candle comes back again. Keep strictly newer rows only.
	fresh := fetched.After(last)
	if len(fresh) == 0 {
		return existing, nil
	}

	merged := Merge(existing, fresh)
	if err := s.Save(merged, symbol, interval); err != nil {
		return existing, err
	}
	log.Printf("[histdata] %s %s: +%d candles (now %d)", symbol, interval, len(fresh), len(merged))
	return merged, nil
}

func (s *Store) bootstrap(ctx context.Context, symbol, exchange, token string, interval model.Interval, now time.Time) (model.Series, error) {
	from := now.AddDate(0, 0, -interval.MaxLookbackDays())
	series, err := s.Fetch(ctx, exchange, token, interval, from, now)
	if err != nil {
		return nil, err
	}
	sorted := Merge(nil, series)
	if err := s.Save(sorted, symbol, interval); err != nil {
		return nil, err
	}
	log.Printf("[histdata] %s %s: bootstrapped %d candles", symbol, interval, len(sorted))
	return sorted, nil
}

// InitializeInstrument makes sure every requested interval has a persisted
// series, fetching the interval-specific maximum lookback when absent.
// Outcomes are reported per interval; one failure does not stop the rest.
func (s *Store) InitializeInstrument(ctx context.Context, symbol, exchange, token string, intervals []model.Interval) map[model.Interval]error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.Interval]error, len(intervals))
	now := s.now()
	for _, interval := range intervals {
		if existing, _ := s.Load(symbol, interval); len(existing) > 0 {
			out[interval] = nil
			continue
		}
		_, err := s.bootstrap(ctx, symbol, exchange, token, interval, now)
		out[interval] = err
	}
	return out
}

// DetectLateStart reports whether the 1-minute series last ended on a prior
// trading day while the market has since traded, and if so the window that
// needs backfilling: today's open through either today's close (when now is
// past close) or the last fully elapsed hourly boundary. Never asks for a
// window that has not elapsed yet.
func (s *Store) DetectLateStart(symbol string) (bool, time.Time, time.Time) {
	last, ok := s.LastTimestamp(symbol, model.OneMinute)
	if !ok {
		return false, time.Time{}, time.Time{}
	}

	now := s.now()
	ist := now.In(markethours.IST)
	ly, lm, ld := last.In(markethours.IST).Date()
	cy, cm, cd := ist.Date()
	if ly == cy && lm == cm && ld == cd {
		return false, time.Time{}, time.Time{}
	}
	if !markethours.IsTradingDay(ist) {
		return false, time.Time{}, time.Time{}
	}

	open := markethours.TodayOpen(ist)
	if ist.Before(open) {
		return false, time.Time{}, time.Time{}
	}

	if ist.After(markethours.TodayClose(ist)) {
		return true, open, markethours.TodayClose(ist)
	}
	boundary, elapsed := markethours.LastElapsedHourlyWindow(ist)
	if !elapsed {
		return false, time.Time{}, time.Time{}
	}
	return true, open, boundary
}

// Backfill fetches 1-minute data for the window and merges it into the
// 1-minute series. Higher timeframes must be regenerated from the returned
// series afterwards so every interval reflects the corrected minutes.
func (s *Store) Backfill(ctx context.Context, symbol, exchange, token string, from, to time.Time) (model.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetched, err := s.Fetch(ctx, exchange, token, model.OneMinute, from, to)
	if err != nil {
		return nil, err
	}
	existing, _ := s.Load(symbol, model.OneMinute)
	merged := Merge(existing, fetched)
	if err := s.Save(merged, symbol, model.OneMinute); err != nil {
		return nil, err
	}
	metrics.HistBackfills.Inc()
	log.Printf("[histdata] %s: backfilled %s..%s (%d rows fetched)",
		symbol, from.Format("15:04"), to.Format("15:04"), len(fetched))
	return merged, nil
}

// Clear removes the persisted series for the pair. This is the only
// deletion path; updates never shrink a series.
func (s *Store) Clear(symbol string, interval model.Interval) error {
	err := os.Remove(s.seriesPath(symbol, interval))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("histdata: clear %s %s: %w", symbol, interval, err)
	}
	return nil
}
