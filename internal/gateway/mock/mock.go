// Package mock is a deterministic in-memory Gateway, for tests and for
// running the bot standalone without a real exchange connection. It mimics
// the idempotent client-order-id dedup and background price-stream
// goroutine pattern used against live exchanges, generalized to the plain
// core types.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market_maker/internal/core"
	"market_maker/internal/gateway"
	"market_maker/pkg/concurrency"
	"market_maker/pkg/logging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is an in-memory Gateway implementation.
type Gateway struct {
	mu sync.Mutex

	orders         map[string]*core.Order
	clientOrderMap map[string]string
	orderCounter   int64

	trades []core.Trade

	price       decimal.Decimal
	candles     []core.Candle
	position    core.Position
	equity      decimal.Decimal

	priceCallback func(decimal.Decimal)
	orderCallback func(core.Order)

	streaming atomic.Bool
	stopCh    chan struct{}

	placePool *concurrency.WorkerPool
}

// NewGateway builds a mock gateway seeded at the given starting price. Rung
// placement within a single PlaceMultiOrders call is fanned out across a
// small worker pool so a batch of placeholder or ladder orders doesn't
// serialize behind one another's round trip.
func NewGateway(startPrice decimal.Decimal) *Gateway {
	logger, err := logging.NewLoggerFromString("INFO", nil)
	if err != nil {
		logger = logging.NewLogger(logging.InfoLevel, nil)
	}
	return &Gateway{
		orders:         make(map[string]*core.Order),
		clientOrderMap: make(map[string]string),
		price:          startPrice,
		equity:         decimal.NewFromInt(10000),
		stopCh:         make(chan struct{}),
		placePool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:       "mock-gateway-place",
			MaxWorkers: 4,
		}, logger),
	}
}

var _ gateway.Gateway = (*Gateway)(nil)

// Initialize is a no-op for the in-memory gateway.
func (g *Gateway) Initialize(ctx context.Context) error { return nil }

// Subscribe starts a background goroutine that republishes the current
// mock price to cb.OnPrice every 100ms; the price only moves via SetPrice.
func (g *Gateway) Subscribe(ctx context.Context, cb gateway.Callbacks) error {
	g.mu.Lock()
	g.priceCallback = cb.OnPrice
	g.orderCallback = cb.OnOrder
	g.mu.Unlock()

	if g.streaming.CompareAndSwap(false, true) {
		go g.streamLoop(ctx)
	}
	return nil
}

func (g *Gateway) streamLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.mu.Lock()
			p := g.price
			cb := g.priceCallback
			g.mu.Unlock()
			if cb != nil {
				cb(p)
			}
		}
	}
}

// Stop halts the background stream loop.
func (g *Gateway) Stop() { close(g.stopCh) }

// SetPrice moves the mock market price, for test scenarios to drive fills.
func (g *Gateway) SetPrice(p decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.price = p
	g.matchOrdersLocked()
}

// SeedCandles injects a fixed candle history for CandleStick to serve.
func (g *Gateway) SeedCandles(candles []core.Candle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.candles = candles
}

func (g *Gateway) GetOrdersByREST(ctx context.Context) ([]core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]core.Order, 0, len(g.orders))
	for _, o := range g.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (g *Gateway) GetTradesByREST(ctx context.Context, side gateway.TradeSide, limit int) ([]core.Trade, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit <= 0 || limit > len(g.trades) {
		limit = len(g.trades)
	}
	out := make([]core.Trade, 0, limit)
	for i := len(g.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := g.trades[i]
		if side == gateway.TradeSideBuy && t.Side != core.Buy {
			continue
		}
		if side == gateway.TradeSideSell && t.Side != core.Sell {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (g *Gateway) GetAccountInfo(ctx context.Context) (core.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return core.AccountInfo{
		TotalEquity: g.equity,
		Positions:   map[string]core.Position{"default": g.position},
	}, nil
}

func (g *Gateway) PlaceSingleOrder(ctx context.Context, isAsk bool, price, size decimal.Decimal, clientID string) (core.PlaceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.clientOrderMap[clientID]; ok && clientID != "" {
		return core.PlaceResult{OK: true, OrderID: existing}, nil
	}

	id := g.nextOrderID()
	side := core.Buy
	if isAsk {
		side = core.Sell
	}
	g.orders[id] = &core.Order{ID: id, ClientOrderID: clientID, Side: side, Price: price, Size: size, Status: core.StatusOpen}
	if clientID != "" {
		g.clientOrderMap[clientID] = id
	}
	g.matchOrdersLocked()
	return core.PlaceResult{OK: true, OrderID: id}, nil
}

func (g *Gateway) PlaceSingleMarketOrder(ctx context.Context, isAsk bool, size decimal.Decimal) (core.PlaceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextOrderID()
	side := core.Buy
	if isAsk {
		side = core.Sell
	}
	g.trades = append(g.trades, core.Trade{ID: id, OrderRef: id, Side: side, Price: g.price, Size: size, Time: time.Now()})
	return core.PlaceResult{OK: true, OrderID: id}, nil
}

// PlaceMultiOrders fans the batch out across the gateway's worker pool so
// an N-rung ladder or placeholder plan doesn't pay N sequential round trips.
func (g *Gateway) PlaceMultiOrders(ctx context.Context, orders []gateway.MultiOrderRequest) ([]core.PlaceResult, error) {
	results := make([]core.PlaceResult, len(orders))

	var wg sync.WaitGroup
	wg.Add(len(orders))
	for i, o := range orders {
		i, o := i, o
		go func() {
			defer wg.Done()
			g.placePool.SubmitAndWait(func() {
				r, err := g.PlaceSingleOrder(ctx, o.IsAsk, o.Price, o.Size, "")
				if err != nil {
					results[i] = core.PlaceResult{OK: false}
					return
				}
				results[i] = r
			})
		}()
	}
	wg.Wait()

	return results, nil
}

func (g *Gateway) CancelGridOrders(ctx context.Context, orderIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range orderIDs {
		delete(g.orders, id)
	}
	return nil
}

func (g *Gateway) ModifyGridOrder(ctx context.Context, id string, price, size decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[id]
	if !ok {
		return fmt.Errorf("order not found: %s", id)
	}
	o.Price = price
	o.Size = size
	return nil
}

func (g *Gateway) CandleStick(ctx context.Context, marketID string, resolution gateway.Resolution, countBack int) ([]core.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if countBack <= 0 || countBack > len(g.candles) {
		countBack = len(g.candles)
	}
	return g.candles[len(g.candles)-countBack:], nil
}

func (g *Gateway) nextOrderID() string {
	g.orderCounter++
	return fmt.Sprintf("mock-%d-%s", g.orderCounter, uuid.NewString()[:8])
}

// matchOrdersLocked fills any resting order crossed by the current price,
// recording a trade and calling back into the order callback. Callers must
// already hold g.mu.
func (g *Gateway) matchOrdersLocked() {
	for id, o := range g.orders {
		crossed := (o.Side == core.Buy && g.price.LessThanOrEqual(o.Price)) ||
			(o.Side == core.Sell && g.price.GreaterThanOrEqual(o.Price))
		if !crossed {
			continue
		}
		o.Status = core.StatusFilled
		o.FilledSize = o.Size
		g.trades = append(g.trades, core.Trade{ID: id, OrderRef: id, Side: o.Side, Price: o.Price, Size: o.Size, Time: time.Now()})
		delete(g.orders, id)
		if g.orderCallback != nil {
			filled := *o
			go g.orderCallback(filled)
		}
	}
}
