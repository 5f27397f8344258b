// Package metrics defines the Prometheus collectors for the trading bot and
// serves them together with a health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Historical data pipeline.
var (
	HistCandlesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_hist_candles_fetched_total",
		Help: "Candles fetched from the broker historical API",
	})
	HistFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_hist_fetch_errors_total",
		Help: "Failed historical fetches",
	})
	HistBackfills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_hist_backfills_total",
		Help: "Late-start backfill windows fetched",
	})
	ResampleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swingbot_resample_runs_total",
		Help: "Resample passes by interval and outcome",
	}, []string{"interval", "outcome"})
)

// Live feed.
var (
	FeedTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_feed_ticks_total",
		Help: "Ticks received on the market data stream",
	})
	FeedSnapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_feed_snapshot_writes_total",
		Help: "Live feed snapshot file rewrites",
	})
	FeedStaleSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swingbot_feed_stale_seconds",
		Help: "Age of the live feed snapshot as seen by the strategy loop",
	})
	FeedRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_feed_restarts_total",
		Help: "Feed subprocess restarts after staleness or exit",
	})
)

// Signals and orders.
var (
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swingbot_signals_total",
		Help: "Signals processed by action",
	}, []string{"action"})
	SignalsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_signals_rejected_total",
		Help: "Signals refused by validation",
	})
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_orders_placed_total",
		Help: "Orders acknowledged by the broker",
	})
	OrderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_order_retries_total",
		Help: "Order placement attempts beyond the first",
	})
	OrdersFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_orders_filled_total",
		Help: "Orders reconciled as filled",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_orders_cancelled_total",
		Help: "Orders cancelled, including monitor timeouts",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swingbot_orders_rejected_total",
		Help: "Orders rejected by the broker",
	})
)

// Risk state.
var (
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swingbot_open_positions",
		Help: "Currently tracked open positions",
	})
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swingbot_portfolio_value",
		Help: "Portfolio value after margin reservations",
	})
	DailyPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swingbot_daily_pnl",
		Help: "Realized profit and loss for the session",
	})
	BreakerTripped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swingbot_breaker_tripped",
		Help: "Circuit breaker state by kind (0=armed, 1=tripped)",
	}, []string{"breaker"})
)

// Market session.
var MarketState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "swingbot_market_state",
	Help: "Market session state (0=closed, 1=open)",
})
