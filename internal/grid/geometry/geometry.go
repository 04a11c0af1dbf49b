// Package geometry computes every grid price/size decision: the initial
// ladder, the next rung after a fill on either side, large-gap
// replenishment, minimum close-side population, and placeholder (parked
// order) geometry including the split rule. All functions are pure — they
// take a snapshot of the relevant GridState fields and return prices/sizes,
// never mutating anything themselves.
package geometry

import (
	"market_maker/internal/decimalops"

	"github.com/shopspring/decimal"
)

var (
	two        = decimal.NewFromInt(2)
	half       = decimal.NewFromFloat(0.5)
	pointSeven = decimal.NewFromFloat(0.7)
	pointSix   = decimal.NewFromFloat(0.6)
)

// BaseStep computes a grid's fixed price increment from the opening mark
// price and the configured fractional spread: markPrice * gridSpread.
func BaseStep(markPrice, gridSpread decimal.Decimal) decimal.Decimal {
	return markPrice.Mul(gridSpread)
}

// InitialLadder returns the GridCount opening-side prices anchored off the
// current price, walking away from spot by one base_step per rung.
func InitialLadder(currentPrice, baseStep decimal.Decimal, count int, openIsAsk bool) []decimal.Decimal {
	interval := baseStep
	if !openIsAsk {
		interval = baseStep.Neg()
	}
	return decimalops.PriceLevels(currentPrice, interval, count)
}

// NextOpenRungAfterOpenFill returns the next open-side rung to place after
// an open-side order fills: one active_step beyond the furthest existing
// open-side rung, walked back toward spot if it would cross current_price.
func NextOpenRungAfterOpenFill(openOrders map[string]decimal.Decimal, currentPrice, activeStep decimal.Decimal, openIsAsk bool) decimal.Decimal {
	furthest := currentPrice
	found := false
	for _, p := range openOrders {
		if !found {
			furthest = p
			found = true
			continue
		}
		if openIsAsk && p.GreaterThan(furthest) {
			furthest = p
		}
		if !openIsAsk && p.LessThan(furthest) {
			furthest = p
		}
	}

	var next decimal.Decimal
	if openIsAsk {
		next = furthest.Add(activeStep)
		if next.LessThanOrEqual(currentPrice) {
			next = currentPrice.Add(activeStep)
		}
	} else {
		next = furthest.Sub(activeStep)
		if next.GreaterThanOrEqual(currentPrice) {
			next = currentPrice.Sub(activeStep)
		}
	}
	return next
}

// PairedCloseRungAfterOpenFill returns the close-side rung paired with an
// open-side fill at tradePrice: one base_step toward profit. If that would
// leave the close side more than 2*base_step from the nearest existing
// open-side rung, it instead falls back to nearest_open + base_step +
// active_step, offset toward the close side. The result is not checked
// against tradePrice or current price, so the fallback can land on the
// losing side of the fill.
func PairedCloseRungAfterOpenFill(tradePrice, baseStep, activeStep, nearestOpenRung decimal.Decimal, closeIsAsk bool) decimal.Decimal {
	var paired decimal.Decimal
	if closeIsAsk {
		paired = tradePrice.Add(baseStep)
	} else {
		paired = tradePrice.Sub(baseStep)
	}

	maxDistance := baseStep.Mul(two)
	distance := paired.Sub(nearestOpenRung).Abs()
	if distance.GreaterThan(maxDistance) {
		offset := baseStep.Add(activeStep)
		if closeIsAsk {
			paired = nearestOpenRung.Add(offset)
		} else {
			paired = nearestOpenRung.Sub(offset)
		}
	}

	return paired
}

// NextOpenRungAfterCloseFill ("buy back") returns the open-side rung to
// replace a closed position: one active_step closer to spot than the
// nearest remaining open-side rung.
func NextOpenRungAfterCloseFill(nearestOpenRung, activeStep decimal.Decimal, openIsAsk bool) decimal.Decimal {
	if openIsAsk {
		return nearestOpenRung.Sub(activeStep)
	}
	return nearestOpenRung.Add(activeStep)
}

// NextCloseRungAfterCloseFill returns the next close-side rung, one
// active_step further from spot than the furthest existing close-side
// rung, gated by the caller on available_position covering it.
func NextCloseRungAfterCloseFill(furthestCloseRung, activeStep decimal.Decimal, closeIsAsk bool) decimal.Decimal {
	if closeIsAsk {
		return furthestCloseRung.Add(activeStep)
	}
	return furthestCloseRung.Sub(activeStep)
}

// CloseSideCovered reports whether available_position still covers one
// more close-side rung of gridAmount, beyond what is already resting.
func CloseSideCovered(availablePosition, gridAmount decimal.Decimal, closeCount int) bool {
	required := decimal.NewFromInt(int64(closeCount + 1)).Mul(gridAmount)
	return availablePosition.GreaterThan(required)
}

// LargeGapTrigger reports whether a gap between two adjacent rungs (or a
// rung and current_price) exceeds 2.5*active_step, large enough to warrant
// an infill rung. The nearest-rung distance check is NearestRungTooFar.
func LargeGapTrigger(gap, activeStep decimal.Decimal) bool {
	return gap.GreaterThan(decimal.NewFromFloat(2.5).Mul(activeStep))
}

// NearestRungTooFar reports whether the nearest rung on a side is more
// than 1.5*active_step away from current_price.
func NearestRungTooFar(distance, activeStep decimal.Decimal) bool {
	return distance.GreaterThan(decimal.NewFromFloat(1.5).Mul(activeStep))
}

// BreakevenPrice computes the breakeven price for parked placeholder
// inventory, per the original position-price-range formula: the price
// range implied by spreading the position evenly across grid_amount-sized
// rungs at the active step, centered on last_trade_price.
func BreakevenPrice(totalPosition, gridAmount, activeStep, lastTradePrice decimal.Decimal, openIsAsk bool) decimal.Decimal {
	if gridAmount.IsZero() {
		return lastTradePrice
	}
	positionPriceRange := totalPosition.DivRound(gridAmount, 16).Mul(activeStep)
	half := positionPriceRange.DivRound(two, 16)
	if openIsAsk {
		// Short book: parked inventory was sold as price rose, so its
		// breakeven sits below the last trade.
		return lastTradePrice.Sub(half)
	}
	return lastTradePrice.Add(half)
}

// SplitSizes applies the placeholder split rule to a total position:
//   - <= 3*grid_amount: a single order carrying the whole position
//   - <= 5*grid_amount: two equal halves
//   - otherwise: repeated 2*grid_amount chunks, with the remainder as the
//     final chunk
func SplitSizes(totalPosition, gridAmount decimal.Decimal) []decimal.Decimal {
	three := decimal.NewFromInt(3).Mul(gridAmount)
	five := decimal.NewFromInt(5).Mul(gridAmount)

	if totalPosition.LessThanOrEqual(three) {
		return []decimal.Decimal{totalPosition}
	}
	if totalPosition.LessThanOrEqual(five) {
		halfSize := totalPosition.DivRound(two, 16)
		return []decimal.Decimal{halfSize, totalPosition.Sub(halfSize)}
	}

	chunk := gridAmount.Mul(two)
	remaining := totalPosition
	sizes := make([]decimal.Decimal, 0, 4)
	for remaining.GreaterThan(chunk) {
		sizes = append(sizes, chunk)
		remaining = remaining.Sub(chunk)
	}
	if remaining.IsPositive() {
		sizes = append(sizes, remaining)
	}
	return sizes
}

// PlaceholderOrder is one planned parked order before safety-shift and ID assignment.
type PlaceholderOrder struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// PlanPlaceholders lays out the parked placeholder orders for a paused
// grid: computes the breakeven price, splits the position per the split
// rule, and assigns larger sizes to the outer (further from spot) rungs,
// one base_step apart starting at the breakeven price. Any rung that would
// cross currentPrice is shifted back by 0.5*active_step plus whatever
// margin is needed to clear it.
func PlanPlaceholders(totalPosition, gridAmount, baseStep, activeStep, lastTradePrice, currentPrice decimal.Decimal, openIsAsk bool) []PlaceholderOrder {
	be := BreakevenPrice(totalPosition, gridAmount, activeStep, lastTradePrice, openIsAsk)
	sizes := SplitSizes(totalPosition, gridAmount)

	// Larger amounts belong on the outer (further from current price) rungs:
	// sort ascending by size so the last, largest chunk lands furthest out.
	for i := 0; i < len(sizes); i++ {
		for j := i + 1; j < len(sizes); j++ {
			if sizes[j].LessThan(sizes[i]) {
				sizes[i], sizes[j] = sizes[j], sizes[i]
			}
		}
	}

	orders := make([]PlaceholderOrder, 0, len(sizes))
	for i, size := range sizes {
		offset := baseStep.Mul(decimal.NewFromInt(int64(i)))
		var price decimal.Decimal
		if openIsAsk {
			price = be.Add(offset)
		} else {
			price = be.Sub(offset)
		}
		orders = append(orders, PlaceholderOrder{Price: price, Size: size})
	}

	buffer := activeStep.Mul(half)
	for i := range orders {
		if openIsAsk && orders[i].Price.LessThanOrEqual(currentPrice) {
			orders[i].Price = currentPrice.Add(buffer)
		}
		if !openIsAsk && orders[i].Price.GreaterThanOrEqual(currentPrice) {
			orders[i].Price = currentPrice.Sub(buffer)
		}
	}

	return orders
}

// MinCloseSideShortfall returns how many additional close-side rungs are
// needed to reach the configured minimum population, given the current
// close-side count and what available_position can still cover.
func MinCloseSideShortfall(closeCount, minClosePopulation int, availablePosition, gridAmount decimal.Decimal) int {
	shortfall := minClosePopulation - closeCount
	if shortfall <= 0 {
		return 0
	}
	maxAffordable := 0
	remaining := availablePosition
	for remaining.GreaterThanOrEqual(gridAmount) {
		maxAffordable++
		remaining = remaining.Sub(gridAmount)
	}
	if shortfall > maxAffordable {
		return maxAffordable
	}
	return shortfall
}

// DynamicActiveStep applies the spec's clamp(0.7*ATR, base_step, 30*base_step)
// formula.
func DynamicActiveStep(atr, baseStep decimal.Decimal) decimal.Decimal {
	candidate := pointSeven.Mul(atr)
	floor := baseStep
	ceil := decimal.NewFromInt(30).Mul(baseStep)
	if candidate.LessThan(floor) {
		return floor
	}
	if candidate.GreaterThan(ceil) {
		return ceil
	}
	return candidate
}

// FillPriceTolerance is the matching tolerance used when attributing a
// streamed or REST trade to a resting order whose recorded price drifted
// (exchange-side rounding, partial fills at a slightly different level):
// max(base_step*0.6, 0.6).
func FillPriceTolerance(baseStep decimal.Decimal) decimal.Decimal {
	candidate := baseStep.Mul(pointSix)
	if candidate.LessThan(pointSix) {
		return pointSix
	}
	return candidate
}
