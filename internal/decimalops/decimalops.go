// Package decimalops provides tick/step quantization and safe numeric
// formatting over decimal.Decimal. Prices and sizes never pass through
// binary float in this engine, to avoid drift when subtracting step ladders.
package decimalops

import (
	"github.com/shopspring/decimal"
)

// DefaultTickCandidates is the retry ladder walked when a gateway rejects a
// price for a tick mismatch. The configured tick is tried first; on a
// successful placement the caller promotes the working tick back to it.
var DefaultTickCandidates = []decimal.Decimal{
	decimal.NewFromFloat(0.5),
	decimal.NewFromFloat(0.1),
	decimal.NewFromInt(1),
	decimal.NewFromFloat(0.05),
	decimal.NewFromFloat(0.01),
}

// Quantize rounds value to the nearest multiple of step, half-up.
func Quantize(value, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return value
	}
	multiples := value.DivRound(step, 16).Round(0)
	return multiples.Mul(step)
}

// RoundPrice rounds a price to the exchange's configured decimal width.
func RoundPrice(price decimal.Decimal, priceDecimals int) decimal.Decimal {
	return price.Round(int32(priceDecimals))
}

// RoundSize rounds a size to the exchange's configured decimal width.
func RoundSize(size decimal.Decimal, sizeDecimals int) decimal.Decimal {
	return size.Round(int32(sizeDecimals))
}

// TickLadder tracks the currently working tick for a symbol, starting at the
// configured tick and falling back through DefaultTickCandidates on
// consecutive TickMismatch rejections.
type TickLadder struct {
	configured decimal.Decimal
	candidates []decimal.Decimal
	working    decimal.Decimal
	cursor     int
}

// NewTickLadder builds a ladder anchored at the configured tick.
func NewTickLadder(configured decimal.Decimal) *TickLadder {
	return &TickLadder{
		configured: configured,
		candidates: append([]decimal.Decimal{configured}, DefaultTickCandidates...),
		working:    configured,
		cursor:     0,
	}
}

// Working returns the tick currently in use.
func (l *TickLadder) Working() decimal.Decimal {
	return l.working
}

// Advance walks to the next candidate tick after a rejection. It returns
// false once the ladder is exhausted.
func (l *TickLadder) Advance() bool {
	if l.cursor+1 >= len(l.candidates) {
		return false
	}
	l.cursor++
	l.working = l.candidates[l.cursor]
	return true
}

// Promote resets the ladder to the configured tick after a successful
// placement, per the §4.1 promotion rule.
func (l *TickLadder) Promote() {
	l.cursor = 0
	l.working = l.configured
}

// PriceLevels generates count evenly-spaced prices starting one interval
// away from anchor (interval may be negative to walk downward).
func PriceLevels(anchor, interval decimal.Decimal, count int) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, count)
	for i := 1; i <= count; i++ {
		prices = append(prices, anchor.Add(interval.Mul(decimal.NewFromInt(int64(i)))))
	}
	return prices
}

// NearestMultiple aligns value to the nearest multiple of interval above anchor.
func NearestMultiple(value, anchor, interval decimal.Decimal) decimal.Decimal {
	if interval.IsZero() {
		return value
	}
	offset := value.Sub(anchor)
	intervals := offset.DivRound(interval, 16).Round(0)
	return anchor.Add(intervals.Mul(interval))
}
