// Package api exposes a small read-only HTTP surface over the running bot:
// positions, trade history, risk state, computed levels and tracked orders.
// It exists for operator inspection (curl, dashboards), not for control;
// the bot takes no instructions over HTTP.
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"swingbot/internal/execution"
	"swingbot/internal/model"
	"swingbot/internal/risk"
)

// LevelSource yields the current level set per symbol.
type LevelSource interface {
	Levels(symbol string) (model.LevelSet, bool)
}

// Deps carries the state the API reads from.
type Deps struct {
	Risk    *risk.Manager
	Engine  *execution.Engine
	Levels  LevelSource
	Symbols []string
}

// NewRouter sets up the HTTP routes.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Risk.Positions())
	})

	mux.HandleFunc("/api/v1/trades", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Risk.TradeHistory())
	})

	mux.HandleFunc("/api/v1/risk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Risk.RiskMetrics())
	})

	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Engine.PendingOrders())
	})

	mux.HandleFunc("/api/v1/levels", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]model.LevelSet, len(d.Symbols))
		for _, symbol := range d.Symbols {
			if ls, ok := d.Levels.Levels(symbol); ok {
				out[symbol] = ls
			}
		}
		writeJSON(w, out)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode failed: %v", err)
	}
}
