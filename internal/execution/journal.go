package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swingbot/internal/model"
)

// Journal persists orders and fills to SQLite for audit and analysis.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id    TEXT PRIMARY KEY,
		symbol      TEXT NOT NULL,
		action      TEXT NOT NULL,
		txn_type    TEXT NOT NULL,
		order_type  TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		status      TEXT NOT NULL,
		filled_qty  INTEGER DEFAULT 0,
		avg_price   REAL DEFAULT 0,
		reason      TEXT,
		placed_at   DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders(placed_at);

	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		action      TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		reason      TEXT,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Fill is one executed trade leg as confirmed by the broker.
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Action   string    `json:"action"`
	Qty      int64     `json:"qty"`
	Price    float64   `json:"price"`
	Reason   string    `json:"reason"`
	FilledAt time.Time `json:"filled_at"`
}

// RecordOrder inserts a newly placed order.
func (j *Journal) RecordOrder(o *model.Order, action, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO orders
		 (order_id, symbol, action, txn_type, order_type, qty, price, status, filled_qty, avg_price, reason, placed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.Symbol, action, o.TransactionType, o.OrderType,
		o.Qty, o.Price, string(o.Status), o.FilledQty, o.AvgPrice, reason,
		o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// UpdateOrderStatus writes the current status and fill figures for an order.
func (j *Journal) UpdateOrderStatus(o *model.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`UPDATE orders SET status = ?, filled_qty = ?, avg_price = ?, updated_at = ?
		 WHERE order_id = ?`,
		string(o.Status), o.FilledQty, o.AvgPrice,
		o.UpdatedAt.Format(time.RFC3339), o.OrderID,
	)
	return err
}

// RecordFill persists a confirmed fill.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, symbol, action, qty, price, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID, fill.Symbol, fill.Action, fill.Qty, fill.Price,
		fill.Reason, fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// RecentFills returns the last N fills, newest first.
func (j *Journal) RecentFills(limit int) ([]Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT order_id, symbol, action, qty, price, reason, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		var filledAt string
		if err := rows.Scan(&f.OrderID, &f.Symbol, &f.Action, &f.Qty, &f.Price, &f.Reason, &filledAt); err != nil {
			continue
		}
		f.FilledAt, _ = time.Parse(time.RFC3339, filledAt)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
