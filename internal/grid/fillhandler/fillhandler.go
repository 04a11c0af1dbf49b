// Package fillhandler attributes exchange fills to grid state: the hot
// streamed order-update path, and the periodic REST trade-history
// reconciliation path that catches anything the stream missed.
package fillhandler

import (
	"context"
	"fmt"

	"market_maker/internal/core"
	"market_maker/internal/grid/geometry"
	"market_maker/internal/grid/state"

	"github.com/shopspring/decimal"
)

// FillRecorder persists a closed fill for audit, independent of in-memory
// GridState. Implemented by internal/ledger.Ledger; optional.
type FillRecorder interface {
	RecordFill(ctx context.Context, marketID, orderID, side string, price, size decimal.Decimal, wasOpen bool, profit decimal.Decimal) error
}

// Handler attributes fills into a GridState. It holds no state of its own
// beyond an optional audit recorder; all bookkeeping lives on the
// GridState it's given.
type Handler struct {
	Logger   core.ILogger
	Recorder FillRecorder
}

// NewHandler builds a Handler bound to the given logger.
func NewHandler(logger core.ILogger) *Handler {
	return &Handler{Logger: logger}
}

// WithRecorder attaches an audit recorder; fills are handed to it
// asynchronously so persistence latency never blocks the replenish lock.
func (h *Handler) WithRecorder(r FillRecorder) *Handler {
	h.Recorder = r
	return h
}

// OnOrderUpdate ingests a streamed order update. An order whose ID is a
// known placeholder is routed to the parking subsystem: a fill on it
// becomes a normal close per the placeholder lifecycle, releasing its
// parked inventory; any other status on it is ignored. Orders sized above
// grid_amount that aren't a known placeholder are skipped outright — they
// belong to some other subsystem (manual intervention) this handler
// doesn't understand. A newly-open ladder order is registered into the
// resting maps; a filled or closed one is attributed and triggers
// replenishment dispatch via the returned Attribution.
func (h *Handler) OnOrderUpdate(s *state.GridState, update core.Order) *Attribution {
	if ph, isPlaceholder := s.PlaceholderOrders[update.ID]; isPlaceholder {
		if update.Status == core.StatusFilled || update.Status == core.StatusClosed {
			return h.attributePlaceholderFill(s, ph, update)
		}
		return nil
	}
	if update.Size.GreaterThan(s.Config.GridAmount) {
		return nil
	}

	switch update.Status {
	case core.StatusOpen:
		h.registerOpen(s, update)
		return nil
	case core.StatusFilled, core.StatusClosed:
		return h.attribute(s, update.ID, update.Price, update.Size, update.Side)
	default:
		return nil
	}
}

// attributePlaceholderFill processes a parked placeholder order filling:
// per the grid's placeholder lifecycle it becomes a normal close, removed
// from PlaceholderOrders, releasing the parked inventory it was carved out
// of and realizing its profit at one base_step per unit closed.
func (h *Handler) attributePlaceholderFill(s *state.GridState, ph *state.PlaceholderOrder, update core.Order) *Attribution {
	if s.OrderAlreadyFilled(update.ID) {
		return nil
	}

	delete(s.PlaceholderOrders, update.ID)
	s.PlaceholderExists = len(s.PlaceholderOrders) > 0
	s.PlaceholderPositions = s.PlaceholderPositions.Sub(ph.Size)
	if s.PlaceholderPositions.IsNegative() {
		s.PlaceholderPositions = decimal.Zero
	}

	s.MarkOrderFilled(update.ID)
	s.LastTradePrice = ph.Price
	s.FilledCount++

	profit := s.BaseStep.Mul(ph.Size)
	s.PositionAbs = s.PositionAbs.Sub(ph.Size)
	if s.PositionAbs.IsNegative() {
		s.PositionAbs = decimal.Zero
	}
	s.TotalProfit = s.TotalProfit.Add(profit)
	s.ActiveProfit = s.ActiveProfit.Add(profit)
	s.AvailableReduceProfit = s.AvailableReduceProfit.Add(profit)
	s.LastFillWasCloseSide = true

	if h.Logger != nil {
		h.Logger.Info("placeholder fill attributed",
			"order_id", update.ID,
			"price", ph.Price.String(),
			"size", ph.Size.String(),
		)
	}

	if h.Recorder != nil {
		marketID, recorder := s.Config.MarketID, h.Recorder
		orderID, price, size, side := update.ID, ph.Price, ph.Size, string(update.Side)
		go func() {
			if err := recorder.RecordFill(context.Background(), marketID, orderID, side, price, size, false, profit); err != nil && h.Logger != nil {
				h.Logger.Warn("ledger record failed", "order_id", orderID, "error", err.Error())
			}
		}()
	}

	return &Attribution{WasOpenSide: false, TradePrice: ph.Price, Size: ph.Size}
}

func (h *Handler) registerOpen(s *state.GridState, o core.Order) {
	active := &state.ActiveOrder{ID: o.ID, Price: o.Price, Size: o.Size, IsAsk: o.Side == core.Sell}
	if o.Side == core.Sell {
		s.SellOrders[o.ID] = active
	} else {
		s.BuyOrders[o.ID] = active
	}
}

// Attribution describes which side of the grid just filled, for the
// control loop to dispatch a replenishment pass against.
type Attribution struct {
	WasOpenSide bool
	TradePrice  decimal.Decimal
	Size        decimal.Decimal
}

func (h *Handler) attribute(s *state.GridState, orderID string, fallbackPrice, size decimal.Decimal, side core.Side) *Attribution {
	if s.OrderAlreadyFilled(orderID) {
		return nil
	}

	isAsk := side == core.Sell
	wasOpenSide := isAsk == s.Config.Direction.OpenIsAsk()

	var tradePrice decimal.Decimal
	var found bool
	var sideMap map[string]*state.ActiveOrder
	if isAsk {
		sideMap = s.SellOrders
	} else {
		sideMap = s.BuyOrders
	}

	if order, ok := sideMap[orderID]; ok {
		tradePrice = order.Price
		found = true
		delete(sideMap, orderID)
	} else {
		tradePrice = h.matchByTolerance(sideMap, fallbackPrice, s.BaseStep)
		found = !tradePrice.IsZero()
	}
	if !found {
		tradePrice = fallbackPrice
	}

	s.MarkOrderFilled(orderID)
	s.LastTradePrice = tradePrice
	s.FilledCount++

	gridProfit := s.BaseStep.Mul(s.Config.GridAmount)

	if wasOpenSide {
		s.PositionAbs = s.PositionAbs.Add(size)
		s.AvailablePosition = s.AvailablePosition.Add(size)
	} else if found {
		// Profit and inventory accounting only applies once the fill is
		// actually matched back to a resting close-side order; an
		// unattributable close-side update must not fabricate profit.
		s.PositionAbs = s.PositionAbs.Sub(size)
		s.AvailablePosition = s.AvailablePosition.Sub(size)
		s.TotalProfit = s.TotalProfit.Add(gridProfit)
		s.ActiveProfit = s.ActiveProfit.Add(gridProfit)
		s.AvailableReduceProfit = s.AvailableReduceProfit.Add(gridProfit)
	} else if h.Logger != nil {
		h.Logger.Warn("close-side fill could not be attributed to a resting order; skipping profit accounting",
			"order_id", orderID, "price", fallbackPrice.String())
	}

	s.LastFillWasCloseSide = !wasOpenSide

	if h.Logger != nil {
		h.Logger.Info("grid fill attributed",
			"order_id", orderID,
			"open_side", wasOpenSide,
			"price", tradePrice.String(),
		)
	}

	if h.Recorder != nil && !wasOpenSide && found {
		marketID, recorder, recordedSide := s.Config.MarketID, h.Recorder, string(side)
		go func() {
			if err := recorder.RecordFill(context.Background(), marketID, orderID, recordedSide, tradePrice, size, wasOpenSide, gridProfit); err != nil && h.Logger != nil {
				h.Logger.Warn("ledger record failed", "order_id", orderID, "error", err.Error())
			}
		}()
	}

	return &Attribution{WasOpenSide: wasOpenSide, TradePrice: tradePrice, Size: size}
}

func (h *Handler) matchByTolerance(sideMap map[string]*state.ActiveOrder, fallbackPrice, baseStep decimal.Decimal) decimal.Decimal {
	tolerance := geometry.FillPriceTolerance(baseStep)
	var bestID string
	var bestDist decimal.Decimal
	for id, o := range sideMap {
		dist := o.Price.Sub(fallbackPrice).Abs()
		if dist.LessThanOrEqual(tolerance) && (bestID == "" || dist.LessThan(bestDist)) {
			bestID = id
			bestDist = dist
		}
	}
	if bestID == "" {
		return decimal.Zero
	}
	price := sideMap[bestID].Price
	delete(sideMap, bestID)
	return price
}

// TradeFingerprint builds the deduplication key for a REST-reported trade:
// orderRef:side:price(8dp):size(8dp):timestampMillis, per the resolved
// trade-fingerprint open question.
func TradeFingerprint(t core.Trade) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d",
		t.OrderRef, t.Side,
		t.Price.Round(8).String(),
		t.Size.Round(8).String(),
		t.Time.UnixMilli(),
	)
}

// ReconcileTrades walks a REST trade-history page and attributes anything
// the streamed path missed. Trades already seen (by fingerprint or by
// order ID) are skipped, as is anything sized above 1.5*grid_amount —
// those belong to a different subsystem (placeholder unwind, manual
// intervention) and must not be folded into ladder bookkeeping.
func (h *Handler) ReconcileTrades(s *state.GridState, trades []core.Trade) []*Attribution {
	skipAbove := decimal.NewFromFloat(1.5).Mul(s.Config.GridAmount)

	var attributions []*Attribution
	for _, t := range trades {
		if t.Size.GreaterThan(skipAbove) {
			continue
		}
		key := TradeFingerprint(t)
		if s.TradeAlreadyProcessed(key) {
			continue
		}
		s.MarkTradeProcessed(key)

		if s.OrderAlreadyFilled(t.OrderRef) {
			continue
		}

		if a := h.attribute(s, t.OrderRef, t.Price, t.Size, t.Side); a != nil {
			attributions = append(attributions, a)
		}
	}
	return attributions
}
