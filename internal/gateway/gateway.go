// Package gateway defines the capability boundary the grid engine consumes
// to talk to a perpetual-futures exchange. Implementations (real wire
// integrations, or the in-process mock in gateway/mock) live outside the
// core; the engine only ever depends on this interface.
package gateway

import (
	"context"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
)

// Callbacks bundles the hot-stream handlers Subscribe wires up.
type Callbacks struct {
	OnPrice    func(price decimal.Decimal)
	OnOrder    func(update core.Order)
	OnPosition func(position core.Position)
}

// TradeSide filters GetTradesByREST: 0 = both sides, 1 = buy, 2 = sell.
type TradeSide int

const (
	TradeSideAll TradeSide = iota
	TradeSideBuy
	TradeSideSell
)

// Resolution is a candle timeframe understood by CandleStick.
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res1h  Resolution = "1h"
)

// Gateway is the external contract from spec §6. The core never assumes
// anything about wire format, signing, or reconnect behavior; it only
// consumes this shape.
type Gateway interface {
	Initialize(ctx context.Context) error
	Subscribe(ctx context.Context, cb Callbacks) error

	GetOrdersByREST(ctx context.Context) ([]core.Order, error)
	GetTradesByREST(ctx context.Context, side TradeSide, limit int) ([]core.Trade, error)
	GetAccountInfo(ctx context.Context) (core.AccountInfo, error)

	PlaceSingleOrder(ctx context.Context, isAsk bool, price, size decimal.Decimal, clientID string) (core.PlaceResult, error)
	PlaceSingleMarketOrder(ctx context.Context, isAsk bool, size decimal.Decimal) (core.PlaceResult, error)
	PlaceMultiOrders(ctx context.Context, orders []MultiOrderRequest) ([]core.PlaceResult, error)
	CancelGridOrders(ctx context.Context, orderIDs []string) error
	ModifyGridOrder(ctx context.Context, id string, price, size decimal.Decimal) error

	CandleStick(ctx context.Context, marketID string, resolution Resolution, countBack int) ([]core.Candle, error)
}

// MultiOrderRequest is one rung of a batch placement.
type MultiOrderRequest struct {
	IsAsk bool
	Price decimal.Decimal
	Size  decimal.Decimal
}
