// Package ledger persists an append-only record of grid fills to SQLite,
// for post-hoc PnL audit independent of in-memory GridState. Grounded on
// the engine's WAL-mode, checksummed SQLite state store, adapted from a
// single overwritten blob to an append-only row-per-fill table.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded grid fill.
type Entry struct {
	ID         int64
	MarketID   string
	OrderID    string
	Side       string
	Price      decimal.Decimal
	Size       decimal.Decimal
	WasOpen    bool
	Profit     decimal.Decimal
	RecordedAt time.Time
}

// Ledger is a WAL-mode SQLite append-only store for grid fills.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at dbPath and ensures the
// fills table exists.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		market_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		size TEXT NOT NULL,
		was_open INTEGER NOT NULL,
		profit TEXT NOT NULL,
		checksum BLOB NOT NULL,
		recorded_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create fills table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// RecordEntry appends one fill row inside a serializable transaction, with
// a checksum over its canonical fields so a later audit can detect
// tampering or corruption at the row level.
func (l *Ledger) RecordEntry(ctx context.Context, e Entry) error {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	recordedAt := time.Now().UnixNano()
	canonical := fmt.Sprintf("%s|%s|%s|%s|%s|%v|%s|%d",
		e.MarketID, e.OrderID, e.Side, e.Price.String(), e.Size.String(), e.WasOpen, e.Profit.String(), recordedAt)
	checksum := sha256.Sum256([]byte(canonical))

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fills (market_id, order_id, side, price, size, was_open, profit, checksum, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MarketID, e.OrderID, e.Side, e.Price.String(), e.Size.String(), boolToInt(e.WasOpen), e.Profit.String(), checksum[:], recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}

	return tx.Commit()
}

// TotalProfit sums the profit column across every recorded fill for a market.
func (l *Ledger) TotalProfit(ctx context.Context, marketID string) (decimal.Decimal, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT profit FROM fills WHERE market_id = ?`, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var profitStr string
		if err := rows.Scan(&profitStr); err != nil {
			return decimal.Zero, err
		}
		profit, err := decimal.NewFromString(profitStr)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(profit)
	}
	return total, rows.Err()
}

// RecordFill is the FillRecorder-shaped convenience wrapper around
// RecordEntry, for callers that don't want to build an Entry by hand.
func (l *Ledger) RecordFill(ctx context.Context, marketID, orderID, side string, price, size decimal.Decimal, wasOpen bool, profit decimal.Decimal) error {
	return l.RecordEntry(ctx, Entry{
		MarketID: marketID,
		OrderID:  orderID,
		Side:     side,
		Price:    price,
		Size:     size,
		WasOpen:  wasOpen,
		Profit:   profit,
	})
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
