// Package reconciler prunes a grid's local order book against a broker
// snapshot and against the grid's own sizing rules. It rebuilds the local
// order maps from (local state, broker snapshot) and returns the
// cancellations to issue; it makes no gateway calls itself. Grounded on the
// same ghost-order detection pattern the engine used against live
// exchanges, generalized to the grid's five ordered pruning passes.
package reconciler

import (
	"sort"

	"market_maker/internal/core"
	"market_maker/internal/grid/state"

	"github.com/shopspring/decimal"
)

// Result is the outcome of one reconciliation pass: the order IDs to
// cancel, in the order the passes decided on them.
type Result struct {
	CancelIDs []string
}

// Reconcile rebuilds buy_orders, sell_orders, placeholder_orders, and
// placeholder_positions from scratch off the broker snapshot each tick —
// classifying every broker-reported order by size, so an order the broker
// knows about but the local state lost track of (a dropped stream update,
// a restart) is picked back up rather than staying invisible until the
// next ladder action happens to notice it. It then runs the five ordered
// pruning passes from the grid's replenishment design against the rebuilt
// book:
//  1. open-side overflow — trim resting open-side orders back to GridCount+1
//  2. close-side overflow — trim resting close-side orders back to MaxTotalOrders
//  3. inventory overflow — once past the startup grace period, cancel
//     furthest close-side orders once their combined notional outgrows
//     available_position
//  4. pause cleanup — while paused, cancel every non-placeholder order
//  5. duplicate-price cleanup — collapse same-price same-side duplicates,
//     keeping the lexicographically lower order ID deterministically
func Reconcile(s *state.GridState, brokerOrders []core.Order, pastStartupGrace bool) Result {
	freshBuy := make(map[string]*state.ActiveOrder, len(brokerOrders))
	freshSell := make(map[string]*state.ActiveOrder, len(brokerOrders))
	freshPlaceholders := make(map[string]*state.PlaceholderOrder, len(brokerOrders))
	freshPlaceholderPositions := decimal.Zero

	for _, o := range brokerOrders {
		if o.Size.GreaterThan(s.Config.GridAmount) {
			freshPlaceholders[o.ID] = &state.PlaceholderOrder{ID: o.ID, Price: o.Price, Size: o.Size, IsAsk: o.Side == core.Sell}
			freshPlaceholderPositions = freshPlaceholderPositions.Add(o.Size)
			continue
		}

		active := &state.ActiveOrder{ID: o.ID, Price: o.Price, Size: o.Size, IsAsk: o.Side == core.Sell}
		if existing, ok := s.BuyOrders[o.ID]; ok {
			active.PlacedAt = existing.PlacedAt
		} else if existing, ok := s.SellOrders[o.ID]; ok {
			active.PlacedAt = existing.PlacedAt
		}

		if o.Side == core.Sell {
			freshSell[o.ID] = active
		} else {
			freshBuy[o.ID] = active
		}
	}

	openIsAsk := s.Config.Direction.OpenIsAsk()
	var openSide, closeSide map[string]*state.ActiveOrder
	if openIsAsk {
		openSide, closeSide = freshSell, freshBuy
	} else {
		openSide, closeSide = freshBuy, freshSell
	}

	var cancels []string
	seen := make(map[string]bool)
	cancel := func(id string) {
		if !seen[id] {
			seen[id] = true
			cancels = append(cancels, id)
		}
	}

	// Pass 1: open-side overflow, capped one above GridCount.
	for _, id := range overflowIDs(openSide, s.Config.GridCount+1, openIsAsk) {
		cancel(id)
	}

	// Pass 2: close-side overflow, capped at MaxTotalOrders.
	for _, id := range overflowIDs(closeSide, s.Config.MaxTotalOrders, !openIsAsk) {
		cancel(id)
	}

	// Pass 3: inventory overflow, only once startup grace has elapsed —
	// the close side can't carry more resting notional than
	// available_position actually covers, so the furthest close-side rungs
	// go until the rest fit.
	closeCount := 0
	for id := range closeSide {
		if !seen[id] {
			closeCount++
		}
	}
	if pastStartupGrace {
		for _, id := range furthestFirst(closeSide, !openIsAsk) {
			closeNotional := decimal.NewFromInt(int64(closeCount)).Mul(s.Config.GridAmount)
			if !closeNotional.GreaterThan(s.AvailablePosition) {
				break
			}
			if !seen[id] {
				cancel(id)
				closeCount--
			}
		}
	}

	// Pass 4: pause cleanup — every non-placeholder order goes while paused.
	if s.GridPaused {
		for id := range freshBuy {
			cancel(id)
		}
		for id := range freshSell {
			cancel(id)
		}
	}

	// Pass 5: duplicate-price cleanup, deterministic lower-id tie-break.
	for _, id := range duplicatePriceIDs(freshBuy) {
		cancel(id)
	}
	for _, id := range duplicatePriceIDs(freshSell) {
		cancel(id)
	}

	for _, id := range cancels {
		delete(freshBuy, id)
		delete(freshSell, id)
	}

	s.BuyOrders = freshBuy
	s.SellOrders = freshSell
	s.PlaceholderOrders = freshPlaceholders
	s.PlaceholderPositions = freshPlaceholderPositions
	s.PlaceholderExists = len(freshPlaceholders) > 0

	return Result{CancelIDs: cancels}
}

func overflowIDs(side map[string]*state.ActiveOrder, limit int, isAsk bool) []string {
	if len(side) <= limit {
		return nil
	}
	ids := make([]string, 0, len(side))
	for id := range side {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := side[ids[i]].Price, side[ids[j]].Price
		if isAsk {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
	return ids[limit:]
}

func furthestFirst(side map[string]*state.ActiveOrder, isAsk bool) []string {
	ids := make([]string, 0, len(side))
	for id := range side {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := side[ids[i]].Price, side[ids[j]].Price
		if isAsk {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
	return ids
}

func duplicatePriceIDs(side map[string]*state.ActiveOrder) []string {
	byPrice := make(map[string][]string)
	for id, o := range side {
		key := priceKey(o.Price)
		byPrice[key] = append(byPrice[key], id)
	}

	var dupes []string
	for _, ids := range byPrice {
		if len(ids) <= 1 {
			continue
		}
		sort.Strings(ids)
		dupes = append(dupes, ids[1:]...)
	}
	return dupes
}

func priceKey(p decimal.Decimal) string {
	return p.StringFixed(8)
}
