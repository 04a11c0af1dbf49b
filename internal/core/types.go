// Package core defines the shared value types the grid engine operates on.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the strategy's configured bias for the symbol.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// OpenIsAsk reports whether the open (inventory-adding) side is the ask side.
func (d Direction) OpenIsAsk() bool { return d == Short }

// CloseIsAsk reports whether the close (profit-taking) side is the ask side.
func (d Direction) CloseIsAsk() bool { return d == Long }

// Side is one leg of a resting order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderStatus is the closed enumeration of broker order states the core understands.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusClosed    OrderStatus = "closed"
	StatusCanceled  OrderStatus = "canceled"
	StatusExpired   OrderStatus = "expired"
	StatusRejected  OrderStatus = "rejected"
	StatusUnknown   OrderStatus = "unknown"
)

// Order is the normalized shape every Gateway implementation must translate into.
type Order struct {
	ID            string
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	Size          decimal.Decimal
	FilledSize    decimal.Decimal
	Status        OrderStatus
}

// Position is the normalized account position shape.
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	Sign          int
	EntryPrice    decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// AccountInfo is the normalized account snapshot shape.
type AccountInfo struct {
	TotalEquity decimal.Decimal
	Positions   map[string]Position
}

// Candle is one OHLCV bar.
type Candle struct {
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
	Time   time.Time
}

// Trade is a single executed fill as reported by the REST trade history.
type Trade struct {
	ID       string
	OrderRef string
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	Time     time.Time
}

// PlaceResult is the outcome of a single order placement.
type PlaceResult struct {
	OK      bool
	OrderID string
}

// ILogger is the structured-logging surface every component depends on.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
