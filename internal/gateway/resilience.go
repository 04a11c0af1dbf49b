package gateway

import (
	"context"
	"errors"
	"time"

	"market_maker/internal/core"
	apperrors "market_maker/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	cancelVerifyPolls    = 3
	cancelVerifyInterval = 250 * time.Millisecond

	// placementRatePerSecond caps outbound order placement/cancellation
	// calls, independent of the retry/breaker pipeline above: those react
	// to failures already in flight, this keeps the grid from ever
	// bursting past what a typical exchange's order-entry rate limit
	// allows in the first place.
	placementRatePerSecond = 10
	placementBurst         = 20
)

// Resilient wraps any Gateway with a retry + circuit-breaker pipeline and a
// client-side rate limiter, and adds a cancel-verification loop: after a
// cancel it polls the REST snapshot up to cancelVerifyPolls times and
// trusts the cancel once a snapshot no longer shows the orders.
type Resilient struct {
	inner   Gateway
	limiter *rate.Limiter
}

// NewResilient wraps inner with the standard retry/circuit-breaker pipeline
// and a token-bucket limiter over order placement/cancellation/modify calls.
func NewResilient(inner Gateway) *Resilient {
	return &Resilient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(placementRatePerSecond), placementBurst),
	}
}

func isTransient(err error) bool {
	return errors.Is(err, apperrors.ErrNetwork) ||
		errors.Is(err, apperrors.ErrTransientNetwork) ||
		errors.Is(err, apperrors.ErrRateLimitExceeded) ||
		errors.Is(err, apperrors.ErrSystemOverload)
}

func opensCircuit(err error) bool {
	return errors.Is(err, apperrors.ErrNetwork) ||
		errors.Is(err, apperrors.ErrSystemOverload) ||
		errors.Is(err, apperrors.ErrExchangeMaintenance)
}

func pipelineFor[R any]() failsafe.Executor[R] {
	retryPolicy := retrypolicy.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool { return isTransient(err) }).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[R]().
		HandleIf(func(_ R, err error) bool { return opensCircuit(err) }).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return failsafe.With[R](retryPolicy, breaker)
}

func run[R any](fn func() (R, error)) (R, error) {
	pipeline := pipelineFor[R]()
	return pipeline.GetWithExecution(func(exec failsafe.Execution[R]) (R, error) {
		return fn()
	})
}

func (r *Resilient) Initialize(ctx context.Context) error {
	_, err := run(func() (struct{}, error) {
		return struct{}{}, r.inner.Initialize(ctx)
	})
	return err
}

func (r *Resilient) Subscribe(ctx context.Context, cb Callbacks) error {
	return r.inner.Subscribe(ctx, cb)
}

func (r *Resilient) GetOrdersByREST(ctx context.Context) ([]core.Order, error) {
	return run(func() ([]core.Order, error) { return r.inner.GetOrdersByREST(ctx) })
}

func (r *Resilient) GetTradesByREST(ctx context.Context, side TradeSide, limit int) ([]core.Trade, error) {
	return run(func() ([]core.Trade, error) { return r.inner.GetTradesByREST(ctx, side, limit) })
}

func (r *Resilient) GetAccountInfo(ctx context.Context) (core.AccountInfo, error) {
	return run(func() (core.AccountInfo, error) { return r.inner.GetAccountInfo(ctx) })
}

func (r *Resilient) PlaceSingleOrder(ctx context.Context, isAsk bool, price, size decimal.Decimal, clientID string) (core.PlaceResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return core.PlaceResult{}, err
	}
	return run(func() (core.PlaceResult, error) {
		return r.inner.PlaceSingleOrder(ctx, isAsk, price, size, clientID)
	})
}

func (r *Resilient) PlaceSingleMarketOrder(ctx context.Context, isAsk bool, size decimal.Decimal) (core.PlaceResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return core.PlaceResult{}, err
	}
	return run(func() (core.PlaceResult, error) {
		return r.inner.PlaceSingleMarketOrder(ctx, isAsk, size)
	})
}

// PlaceMultiOrders places each rung and, if any rung fails, compensates by
// canceling every rung that did succeed rather than leaving a partial
// ladder resting. The whole batch draws a single token from the placement
// limiter: it is one logical burst of orders, not N independent calls.
func (r *Resilient) PlaceMultiOrders(ctx context.Context, orders []MultiOrderRequest) ([]core.PlaceResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	results, err := run(func() ([]core.PlaceResult, error) {
		return r.inner.PlaceMultiOrders(ctx, orders)
	})
	if err != nil {
		return results, err
	}

	var placed []string
	var anyFailed bool
	for _, res := range results {
		if res.OK {
			placed = append(placed, res.OrderID)
		} else {
			anyFailed = true
		}
	}

	if anyFailed && len(placed) > 0 {
		_ = r.CancelGridOrders(ctx, placed)
		return results, apperrors.ErrPartialPlacement
	}

	return results, nil
}

// CancelGridOrders cancels the given orders and polls the broker up to
// cancelVerifyPolls times, cancelVerifyInterval apart, until none of them
// appear in the open-orders snapshot. If they're still visible after all
// polls, it reports ErrCancelUnverified rather than assuming success.
func (r *Resilient) CancelGridOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := run(func() (struct{}, error) {
		return struct{}{}, r.inner.CancelGridOrders(ctx, orderIDs)
	})
	if err != nil {
		return err
	}

	pending := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		pending[id] = true
	}

	for i := 0; i < cancelVerifyPolls; i++ {
		open, err := r.inner.GetOrdersByREST(ctx)
		if err == nil {
			stillOpen := make(map[string]bool, len(open))
			for _, o := range open {
				stillOpen[o.ID] = true
			}
			for id := range pending {
				if !stillOpen[id] {
					delete(pending, id)
				}
			}
		}
		if len(pending) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cancelVerifyInterval):
		}
	}

	if len(pending) > 0 {
		return apperrors.ErrCancelUnverified
	}
	return nil
}

func (r *Resilient) ModifyGridOrder(ctx context.Context, id string, price, size decimal.Decimal) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := run(func() (struct{}, error) {
		return struct{}{}, r.inner.ModifyGridOrder(ctx, id, price, size)
	})
	return err
}

func (r *Resilient) CandleStick(ctx context.Context, marketID string, resolution Resolution, countBack int) ([]core.Candle, error) {
	return run(func() ([]core.Candle, error) {
		return r.inner.CandleStick(ctx, marketID, resolution, countBack)
	})
}

var _ Gateway = (*Resilient)(nil)
