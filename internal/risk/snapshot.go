package risk

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"swingbot/internal/markethours"
	"swingbot/internal/model"
)

// snapshotSchemaVersion guards the on-disk layout. Bump it when fields
// change shape; older files are rejected and the session starts clean.
const snapshotSchemaVersion = 1

type snapshot struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`

	PortfolioValue  float64 `json:"portfolio_value"`
	DailyStartValue float64 `json:"daily_start_value"`
	PeakValue       float64 `json:"peak_value"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	DailyPnL        float64 `json:"daily_pnl"`
	DailyLossHit    bool    `json:"daily_loss_hit"`
	PortfolioStop   bool    `json:"portfolio_stop"`

	Positions []model.Position `json:"positions"`
	Trades    []Trade          `json:"trades"`
}

// persistLocked writes the state atomically. Called with the manager lock
// held after every mutation. A failed save must not fail the trade path,
// so errors only go to stderr.
func (m *Manager) persistLocked() {
	if m.snapshotPath == "" {
		return
	}
	snap := snapshot{
		SchemaVersion:   snapshotSchemaVersion,
		SavedAt:         time.Now(),
		PortfolioValue:  m.portfolioValue,
		DailyStartValue: m.dailyStartValue,
		PeakValue:       m.peakValue,
		MaxDrawdown:     m.maxDrawdown,
		DailyPnL:        m.dailyPnL,
		DailyLossHit:    m.dailyLossHit,
		PortfolioStop:   m.portfolioStop,
		Positions:       make([]model.Position, 0, len(m.positions)),
		Trades:          m.trades,
	}
	for _, p := range m.positions {
		snap.Positions = append(snap.Positions, *p)
	}

	if err := writeSnapshot(m.snapshotPath, &snap); err != nil {
		fmt.Fprintf(os.Stderr, "[risk] snapshot save failed: %v\n", err)
	}
}

func writeSnapshot(path string, snap *snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".risk-*.json")
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

// loadSnapshot restores persisted state. A missing file is not an error; a
// corrupt or version-mismatched file is reported and ignored.
func (m *Manager) loadSnapshot() error {
	raw, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("risk: corrupt snapshot: %w", err)
	}
	if snap.SchemaVersion != snapshotSchemaVersion {
		return fmt.Errorf("risk: snapshot schema %d, want %d", snap.SchemaVersion, snapshotSchemaVersion)
	}

	m.portfolioValue = snap.PortfolioValue
	m.dailyStartValue = snap.DailyStartValue
	m.peakValue = snap.PeakValue
	m.maxDrawdown = snap.MaxDrawdown
	m.dailyPnL = snap.DailyPnL
	m.dailyLossHit = snap.DailyLossHit
	m.portfolioStop = snap.PortfolioStop
	m.trades = snap.Trades
	m.positions = make(map[string]*model.Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		m.positions[p.Symbol] = &p
	}

	// Daily stats and breaker latches do not carry across trading days.
	// Positions do (carryforward product), so only the day-scoped state
	// resets when the snapshot was written on an earlier IST date.
	if !sameISTDay(snap.SavedAt, time.Now()) {
		log.Printf("[risk] snapshot from %s, starting a fresh trading day",
			snap.SavedAt.In(markethours.IST).Format("2006-01-02"))
		m.resetDailyLocked()
	}
	return nil
}

func sameISTDay(a, b time.Time) bool {
	ai, bi := a.In(markethours.IST), b.In(markethours.IST)
	return ai.Year() == bi.Year() && ai.YearDay() == bi.YearDay()
}
