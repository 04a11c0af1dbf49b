// Package controlloop drives the grid's periodic tick and full
// replenishment pass, and the one-time session startup sequence. It is the
// single place that acquires the replenish_grid_lock for an extended
// sequence of reads and writes; everything else in the engine only takes
// the lock for a single state mutation.
package controlloop

import (
	"context"
	"time"

	"market_maker/internal/alert"
	"market_maker/internal/core"
	"market_maker/internal/gateway"
	"market_maker/internal/grid/fillhandler"
	"market_maker/internal/grid/geometry"
	"market_maker/internal/grid/reconciler"
	"market_maker/internal/grid/state"
	"market_maker/internal/indicators"
	"market_maker/internal/risk/supervisor"

	"github.com/shopspring/decimal"
)

const (
	tickInterval       = 10 * time.Second
	stalenessThreshold = 5 * time.Second
	riskCheckEveryN    = 6
	startupGracePeriod = 2 * time.Minute
	startupPriceWait   = 10 * time.Second
	defaultGatewayTimeout = 8 * time.Second
	cancelJoinDeadline    = 5 * time.Second
	minClosePopulation    = 2
)

// Loop owns the engine and drives its tick.
type Loop struct {
	Engine     *state.Engine
	Gateway    gateway.Gateway
	Fill       *fillhandler.Handler
	Supervisor *supervisor.Supervisor
	Logger     core.ILogger
	Alerts     *alert.AlertManager

	tickCount int
	startedAt time.Time
}

// NewLoop wires a control loop around an already-constructed engine.
func NewLoop(engine *state.Engine, gw gateway.Gateway, fill *fillhandler.Handler, sv *supervisor.Supervisor, logger core.ILogger) *Loop {
	return &Loop{Engine: engine, Gateway: gw, Fill: fill, Supervisor: sv, Logger: logger}
}

// WithAlerts attaches the alert fan-out; pause/resume and reduce-mode
// transitions are reported through it.
func (l *Loop) WithAlerts(am *alert.AlertManager) *Loop {
	l.Alerts = am
	return l
}

// Run blocks, ticking every tickInterval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.startedAt = time.Now()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tickCount++
			if err := l.tick(ctx); err != nil && l.Logger != nil {
				l.Logger.Error("grid tick failed", "error", err.Error())
			}
		}
	}
}

// tick runs the 5-step periodic pass from the control loop design:
// reconcile, REST inventory refresh, 1-min candle refresh + active_step
// update, every-Nth-iteration risk check, and staleness-triggered full
// replenishment.
func (l *Loop) tick(ctx context.Context) error {
	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()

	orders, err := l.Gateway.GetOrdersByREST(gctx)
	if err != nil {
		return err
	}

	var cancelIDs []string
	l.Engine.WithLock(func(s *state.GridState) {
		pastGrace := time.Since(l.startedAt) > startupGracePeriod
		result := reconciler.Reconcile(s, orders, pastGrace)
		cancelIDs = result.CancelIDs
	})
	if len(cancelIDs) > 0 {
		cctx, ccancel := context.WithTimeout(ctx, cancelJoinDeadline)
		defer ccancel()
		if err := l.Gateway.CancelGridOrders(cctx, cancelIDs); err != nil && l.Logger != nil {
			l.Logger.Warn("cancel during reconcile failed", "error", err.Error())
		}
	}

	account, err := l.Gateway.GetAccountInfo(gctx)
	if err == nil {
		l.Engine.WithLock(func(s *state.GridState) {
			s.CurrentEquity = account.TotalEquity
			if l.Logger != nil {
				l.Logger.Info("run report",
					"filled_count", s.FilledCount,
					"total_profit", s.TotalProfit.String(),
					"position_abs", s.PositionAbs.String(),
					"equity", s.CurrentEquity.String(),
				)
			}
		})
	}

	candles, err := l.Gateway.CandleStick(gctx, l.Engine.State.Config.MarketID, gateway.Res1m, 120)
	var lastTick time.Time
	if err == nil && len(candles) > 0 {
		atr := indicators.ATR(candles, 14)
		l.Engine.WithLock(func(s *state.GridState) {
			s.ActiveStep = geometry.DynamicActiveStep(atr, s.BaseStep)
			lastTick = candles[len(candles)-1].Time
			if l.Logger != nil {
				l.Logger.Debug("indicator refresh", "active_step", s.ActiveStep.String())
			}
		})
	}

	if l.tickCount%riskCheckEveryN == 0 && len(candles) > 0 {
		l.runRiskCheck(ctx, candles)
	}

	if !lastTick.IsZero() && time.Since(lastTick) > stalenessThreshold {
		l.fullReplenishmentPass(ctx)
	}

	return nil
}

func (l *Loop) runRiskCheck(ctx context.Context, candles []core.Candle) {
	var decision struct {
		ShouldPause   bool
		ShouldResume  bool
		Reason        string
		NewActiveStep decimal.Decimal
		ReduceModeOn  bool
	}
	var wasPaused, wasReduceMode bool
	l.Engine.WithLock(func(s *state.GridState) {
		wasPaused = s.GridPaused
		wasReduceMode = s.DecreaseMode

		d := l.Supervisor.Evaluate(s, candles)
		decision.ShouldPause = d.ShouldPause
		decision.ShouldResume = d.ShouldResume
		decision.Reason = d.Reason
		decision.NewActiveStep = d.NewActiveStep
		decision.ReduceModeOn = d.ReduceModeOn
		s.ActiveStep = d.NewActiveStep
		s.DecreaseMode = d.ReduceModeOn

		if d.ShouldPause && !s.PlacingPlaceholder {
			s.GridPaused = true
			s.OpenSpreadAlert = true
		}
		if d.ShouldResume {
			s.GridPaused = false
			s.OpenSpreadAlert = false
		}
	})

	if decision.ShouldPause && !wasPaused {
		l.notify(ctx, alert.Warning, "grid paused", "risk supervisor tripped: "+decision.Reason)
	}
	if decision.ShouldResume && wasPaused {
		l.notify(ctx, alert.Info, "grid resumed", "price reverted within the mean-reversion band")
	}
	if decision.ReduceModeOn && !wasReduceMode {
		l.notify(ctx, alert.Warning, "reduce mode engaged", "accumulated profit now covers unwinding the open position")
		l.executeReduceMode(ctx)
	}

	if decision.ShouldPause {
		l.parkPlaceholders(ctx)
	}
}

// executeReduceMode runs the concrete inventory-reduction actions once the
// supervisor has decided the grid has enough accumulated profit to unwind
// part of its position: shrink the largest parked placeholder by
// grid_amount, then issue a market order on the close side for grid_amount,
// debiting active_profit and available_reduce_profit by the realized loss.
func (l *Loop) executeReduceMode(ctx context.Context) {
	var closeIsAsk bool
	var marketSize, realizedLoss decimal.Decimal
	var shrunkID string

	l.Engine.WithLock(func(s *state.GridState) {
		closeIsAsk = s.Config.Direction.CloseIsAsk()
		marketSize = s.Config.GridAmount
		realizedLoss = s.ActiveStep.Mul(marketSize)

		var largestID string
		var largestSize decimal.Decimal
		for id, p := range s.PlaceholderOrders {
			if largestID == "" || p.Size.GreaterThan(largestSize) {
				largestID, largestSize = id, p.Size
			}
		}
		if largestID == "" {
			return
		}

		shrinkBy := marketSize
		if shrinkBy.GreaterThan(largestSize) {
			shrinkBy = largestSize
		}
		shrunkID = largestID

		remaining := largestSize.Sub(shrinkBy)
		if remaining.IsZero() {
			delete(s.PlaceholderOrders, largestID)
		} else {
			s.PlaceholderOrders[largestID].Size = remaining
		}
		s.PlaceholderPositions = s.PlaceholderPositions.Sub(shrinkBy)
		if s.PlaceholderPositions.IsNegative() {
			s.PlaceholderPositions = decimal.Zero
		}
		s.PlaceholderExists = len(s.PlaceholderOrders) > 0
	})

	if shrunkID != "" && l.Logger != nil {
		l.Logger.Info("reduce mode: shrunk largest placeholder", "order_id", shrunkID, "by", marketSize.String())
	}

	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()
	result, err := l.Gateway.PlaceSingleMarketOrder(gctx, closeIsAsk, marketSize)
	if err != nil || !result.OK {
		if l.Logger != nil {
			msg := "order rejected"
			if err != nil {
				msg = err.Error()
			}
			l.Logger.Error("reduce mode market order failed", "error", msg)
		}
		return
	}

	l.Engine.WithLock(func(s *state.GridState) {
		s.PositionAbs = s.PositionAbs.Sub(marketSize)
		if s.PositionAbs.IsNegative() {
			s.PositionAbs = decimal.Zero
		}
		s.ActiveProfit = s.ActiveProfit.Sub(realizedLoss)
		if s.ActiveProfit.IsNegative() {
			s.ActiveProfit = decimal.Zero
		}
		s.AvailableReduceProfit = s.AvailableReduceProfit.Sub(realizedLoss)
		if s.AvailableReduceProfit.IsNegative() {
			s.AvailableReduceProfit = decimal.Zero
		}
	})
}

func (l *Loop) notify(ctx context.Context, level alert.AlertLevel, title, message string) {
	if l.Alerts == nil {
		return
	}
	marketID := l.Engine.State.Config.MarketID
	l.Alerts.Alert(ctx, title, message, level, map[string]string{"market_id": marketID})
}

// parkPlaceholders computes the placeholder layout for the current
// position and submits it, guarded by the placing_placeholder reentrancy
// flag so a concurrent tick can't double-park.
func (l *Loop) parkPlaceholders(ctx context.Context) {
	var plan []geometry.PlaceholderOrder
	var openIsAsk bool

	l.Engine.WithLock(func(s *state.GridState) {
		if s.PlacingPlaceholder || s.PositionAbs.IsZero() {
			return
		}
		s.PlacingPlaceholder = true
		openIsAsk = s.Config.Direction.OpenIsAsk()
		plan = geometry.PlanPlaceholders(
			s.PositionAbs, s.Config.GridAmount, s.BaseStep, s.ActiveStep,
			s.LastTradePrice, s.CurrentPrice, openIsAsk,
		)
	})
	if len(plan) == 0 {
		return
	}

	requests := make([]gateway.MultiOrderRequest, 0, len(plan))
	for _, p := range plan {
		requests = append(requests, gateway.MultiOrderRequest{IsAsk: openIsAsk, Price: p.Price, Size: p.Size})
	}

	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()
	results, err := l.Gateway.PlaceMultiOrders(gctx, requests)

	l.Engine.WithLock(func(s *state.GridState) {
		defer func() { s.PlacingPlaceholder = false }()
		if err != nil {
			if l.Logger != nil {
				l.Logger.Error("placeholder placement failed", "error", err.Error())
			}
			return
		}
		for i, r := range results {
			if !r.OK {
				continue
			}
			s.PlaceholderOrders[r.OrderID] = &state.PlaceholderOrder{
				ID: r.OrderID, Price: plan[i].Price, Size: plan[i].Size, IsAsk: openIsAsk,
			}
			s.PlaceholderPositions = s.PlaceholderPositions.Add(plan[i].Size)
			s.AvailablePosition = s.AvailablePosition.Sub(plan[i].Size)
			if s.AvailablePosition.IsNegative() {
				s.AvailablePosition = decimal.Zero
			}
		}
		s.PlaceholderExists = len(s.PlaceholderOrders) > 0
	})
}

// fullReplenishmentPass runs the ordering from the control loop design:
// last_fill_was_close_side branch (buy-back after a close fill, or a new
// open rung plus its paired close rung after an open fill), large-gap
// fill-in on both sides, then close-side minimum-population top-up.
func (l *Loop) fullReplenishmentPass(ctx context.Context) {
	var toPlace []gateway.MultiOrderRequest

	l.Engine.WithLock(func(s *state.GridState) {
		if s.GridPaused {
			return
		}

		openIsAsk := s.Config.Direction.OpenIsAsk()
		closeIsAsk := s.Config.Direction.CloseIsAsk()
		nearestOpen := nearestRung(s.OpenSideOrders(), s.CurrentPrice)

		if s.LastFillWasCloseSide {
			next := geometry.NextOpenRungAfterCloseFill(nearestOpen, s.ActiveStep, openIsAsk)
			toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: openIsAsk, Price: next, Size: s.Config.GridAmount})
		} else {
			next := geometry.NextOpenRungAfterOpenFill(toPriceMap(s.OpenSideOrders()), s.CurrentPrice, s.ActiveStep, openIsAsk)
			toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: openIsAsk, Price: next, Size: s.Config.GridAmount})

			paired := geometry.PairedCloseRungAfterOpenFill(s.LastTradePrice, s.BaseStep, s.ActiveStep, nearestOpen, closeIsAsk)
			toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: closeIsAsk, Price: paired, Size: s.Config.GridAmount})
		}

		nearestClose := nearestRung(s.CloseSideOrders(), s.CurrentPrice)
		gap := nearestClose.Sub(nearestOpen).Abs()
		openDistance := nearestOpen.Sub(s.CurrentPrice).Abs()
		closeDistance := nearestClose.Sub(s.CurrentPrice).Abs()

		if geometry.LargeGapTrigger(gap, s.ActiveStep) || geometry.NearestRungTooFar(openDistance, s.ActiveStep) {
			next := geometry.NextOpenRungAfterOpenFill(toPriceMap(s.OpenSideOrders()), s.CurrentPrice, s.ActiveStep, openIsAsk)
			toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: openIsAsk, Price: next, Size: s.Config.GridAmount})
		}

		if geometry.LargeGapTrigger(gap, s.ActiveStep) || geometry.NearestRungTooFar(closeDistance, s.ActiveStep) {
			if geometry.CloseSideCovered(s.AvailablePosition, s.Config.GridAmount, len(s.CloseSideOrders())) {
				furthest := furthestRung(s.CloseSideOrders(), closeIsAsk)
				next := geometry.NextCloseRungAfterCloseFill(furthest, s.ActiveStep, closeIsAsk)
				toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: closeIsAsk, Price: next, Size: s.Config.GridAmount})
			}
		}

		shortfall := geometry.MinCloseSideShortfall(len(s.CloseSideOrders()), minClosePopulation, s.AvailablePosition, s.Config.GridAmount)
		furthest := furthestRung(s.CloseSideOrders(), closeIsAsk)
		for i := 0; i < shortfall; i++ {
			next := geometry.NextCloseRungAfterCloseFill(furthest, s.ActiveStep, closeIsAsk)
			toPlace = append(toPlace, gateway.MultiOrderRequest{IsAsk: closeIsAsk, Price: next, Size: s.Config.GridAmount})
			furthest = next
		}

		s.LastReplenishTime = time.Now()
	})

	if len(toPlace) == 0 {
		return
	}

	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()
	results, err := l.Gateway.PlaceMultiOrders(gctx, toPlace)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Error("replenishment placement failed", "error", err.Error())
		}
		return
	}

	l.Engine.WithLock(func(s *state.GridState) {
		for i, r := range results {
			if !r.OK {
				continue
			}
			order := &state.ActiveOrder{ID: r.OrderID, Price: toPlace[i].Price, Size: toPlace[i].Size, IsAsk: toPlace[i].IsAsk, PlacedAt: time.Now()}
			if toPlace[i].IsAsk {
				s.SellOrders[r.OrderID] = order
			} else {
				s.BuyOrders[r.OrderID] = order
			}
		}
	})
}

// StartSession runs the five-step startup sequence: gateway init/auth/
// subscribe, account snapshot, bounded wait for a current price, reconcile
// or place the initial ladder, and a startup-mode risk check that adopts
// any placeholder already parked from a prior run.
func (l *Loop) StartSession(ctx context.Context) error {
	if err := l.Gateway.Initialize(ctx); err != nil {
		return err
	}

	priceCh := make(chan decimal.Decimal, 1)
	err := l.Gateway.Subscribe(ctx, gateway.Callbacks{
		OnPrice: func(p decimal.Decimal) {
			l.Engine.WithLock(func(s *state.GridState) { s.CurrentPrice = p })
			select {
			case priceCh <- p:
			default:
			}
		},
		OnOrder: func(o core.Order) {
			var attribution *fillhandler.Attribution
			l.Engine.WithLock(func(s *state.GridState) { attribution = l.Fill.OnOrderUpdate(s, o) })
			if attribution != nil {
				l.fullReplenishmentPass(ctx)
			}
		},
	})
	if err != nil {
		return err
	}

	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	account, err := l.Gateway.GetAccountInfo(gctx)
	cancel()
	if err == nil {
		l.Engine.WithLock(func(s *state.GridState) {
			s.StartEquity = account.TotalEquity
			s.CurrentEquity = account.TotalEquity
		})
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, startupPriceWait)
	defer waitCancel()
	select {
	case <-priceCh:
	case <-waitCtx.Done():
	}

	gctx, cancel = context.WithTimeout(ctx, defaultGatewayTimeout)
	brokerOrders, ordersErr := l.Gateway.GetOrdersByREST(gctx)
	cancel()

	var haveInitialLadder bool
	var cancelIDs []string
	l.Engine.WithLock(func(s *state.GridState) {
		if ordersErr == nil {
			cancelIDs = reconciler.Reconcile(s, brokerOrders, false).CancelIDs
		}
		haveInitialLadder = s.TotalOpenOrders() > 0
		s.StartTime = time.Now()
		if !s.CurrentPrice.IsZero() {
			s.BaseStep = geometry.BaseStep(s.CurrentPrice, s.Config.GridSpread)
			s.ActiveStep = s.BaseStep
		}
	})
	if len(cancelIDs) > 0 {
		cctx, ccancel := context.WithTimeout(ctx, cancelJoinDeadline)
		if err := l.Gateway.CancelGridOrders(cctx, cancelIDs); err != nil && l.Logger != nil {
			l.Logger.Warn("cancel during startup reconcile failed", "error", err.Error())
		}
		ccancel()
	}

	if !haveInitialLadder {
		l.placeInitialLadder(ctx)
	}

	l.startupRiskCheck(ctx)

	return nil
}

func (l *Loop) placeInitialLadder(ctx context.Context) {
	var requests []gateway.MultiOrderRequest
	l.Engine.WithLock(func(s *state.GridState) {
		if s.CurrentPrice.IsZero() {
			return
		}
		openIsAsk := s.Config.Direction.OpenIsAsk()
		prices := geometry.InitialLadder(s.CurrentPrice, s.BaseStep, s.Config.GridCount, openIsAsk)
		for _, p := range prices {
			requests = append(requests, gateway.MultiOrderRequest{IsAsk: openIsAsk, Price: p, Size: s.Config.GridAmount})
		}
	})
	if len(requests) == 0 {
		return
	}

	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()
	results, err := l.Gateway.PlaceMultiOrders(gctx, requests)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Error("initial ladder placement failed", "error", err.Error())
		}
		return
	}

	l.Engine.WithLock(func(s *state.GridState) {
		for i, r := range results {
			if !r.OK {
				continue
			}
			order := &state.ActiveOrder{ID: r.OrderID, Price: requests[i].Price, Size: requests[i].Size, IsAsk: requests[i].IsAsk, PlacedAt: time.Now()}
			if requests[i].IsAsk {
				s.SellOrders[r.OrderID] = order
			} else {
				s.BuyOrders[r.OrderID] = order
			}
		}
	})
}

func (l *Loop) startupRiskCheck(ctx context.Context) {
	gctx, cancel := context.WithTimeout(ctx, defaultGatewayTimeout)
	defer cancel()
	candles, err := l.Gateway.CandleStick(gctx, l.Engine.State.Config.MarketID, gateway.Res1m, 120)
	if err != nil || len(candles) == 0 {
		return
	}

	var alreadyPaused bool
	l.Engine.WithLock(func(s *state.GridState) { alreadyPaused = s.GridPaused })
	if alreadyPaused {
		// Adopt whatever placeholders survived a restart rather than
		// re-planning them from scratch.
		return
	}

	l.runRiskCheck(ctx, candles)
}

func nearestRung(side map[string]*state.ActiveOrder, currentPrice decimal.Decimal) decimal.Decimal {
	var best decimal.Decimal
	var found bool
	for _, o := range side {
		if !found || o.Price.Sub(currentPrice).Abs().LessThan(best.Sub(currentPrice).Abs()) {
			best = o.Price
			found = true
		}
	}
	if !found {
		return currentPrice
	}
	return best
}

func furthestRung(side map[string]*state.ActiveOrder, isAsk bool) decimal.Decimal {
	var best decimal.Decimal
	var found bool
	for _, o := range side {
		if !found {
			best = o.Price
			found = true
			continue
		}
		if isAsk && o.Price.GreaterThan(best) {
			best = o.Price
		}
		if !isAsk && o.Price.LessThan(best) {
			best = o.Price
		}
	}
	return best
}

func toPriceMap(side map[string]*state.ActiveOrder) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(side))
	for id, o := range side {
		out[id] = o.Price
	}
	return out
}
