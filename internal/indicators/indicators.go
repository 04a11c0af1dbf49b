// Package indicators implements EMA, RSI, ATR and ADX over a candle series.
// Every function is pure and restartable from an arbitrary sub-slice of
// candles; none of them hold state across calls.
package indicators

import (
	"market_maker/internal/core"

	"github.com/shopspring/decimal"
)

// EMA computes the exponential moving average of candle closes with the
// standard smoothing factor alpha = 2/(period+1). Returns zero if there are
// no candles.
func EMA(candles []core.Candle, period int) decimal.Decimal {
	if len(candles) == 0 || period <= 0 {
		return decimal.Zero
	}
	alpha := decimal.NewFromInt(2).DivRound(decimal.NewFromInt(int64(period+1)), 16)
	ema := candles[0].Close
	for i := 1; i < len(candles); i++ {
		ema = candles[i].Close.Sub(ema).Mul(alpha).Add(ema)
	}
	return ema
}

// RSI computes Wilder's RSI over the last period closes.
func RSI(candles []core.Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.NewFromInt(50)
	}

	var gainSum, lossSum decimal.Decimal
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		delta := candles[i].Close.Sub(candles[i-1].Close)
		if delta.IsPositive() {
			gainSum = gainSum.Add(delta)
		} else {
			lossSum = lossSum.Add(delta.Neg())
		}
	}

	avgGain := gainSum.DivRound(decimal.NewFromInt(int64(period)), 16)
	avgLoss := lossSum.DivRound(decimal.NewFromInt(int64(period)), 16)

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}

	rs := avgGain.DivRound(avgLoss, 16)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.DivRound(decimal.NewFromInt(1).Add(rs), 16))
}

func trueRange(current, prev core.Candle) decimal.Decimal {
	tr1 := current.High.Sub(current.Low)
	tr2 := current.High.Sub(prev.Close).Abs()
	tr3 := current.Low.Sub(prev.Close).Abs()

	tr := tr1
	if tr2.GreaterThan(tr) {
		tr = tr2
	}
	if tr3.GreaterThan(tr) {
		tr = tr3
	}
	return tr
}

// ATR computes the rolling mean of true range over the last period candles.
func ATR(candles []core.Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.Zero
	}

	var trSum decimal.Decimal
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		trSum = trSum.Add(trueRange(candles[i], candles[i-1]))
	}
	return trSum.DivRound(decimal.NewFromInt(int64(period)), 16)
}

// ADXResult bundles the ADX value with its directional components.
type ADXResult struct {
	ADX    decimal.Decimal
	PlusDI decimal.Decimal
	MinusDI decimal.Decimal
}

// ADX computes +DI/-DI from directional movement and true range summed
// over the last period+1 candles, and reports the DX of that one window as
// ADX. No Wilder smoothing is applied and DX is not averaged across bars.
func ADX(candles []core.Candle, period int) ADXResult {
	if len(candles) < period+1 {
		return ADXResult{}
	}

	start := len(candles) - period
	var plusDMSum, minusDMSum, trSum decimal.Decimal

	for i := start; i < len(candles); i++ {
		prev := candles[i-1]
		cur := candles[i]

		upMove := cur.High.Sub(prev.High)
		downMove := prev.Low.Sub(cur.Low)

		var plusDM, minusDM decimal.Decimal
		if upMove.IsPositive() && upMove.GreaterThan(downMove) {
			plusDM = upMove
		}
		if downMove.IsPositive() && downMove.GreaterThan(upMove) {
			minusDM = downMove
		}

		plusDMSum = plusDMSum.Add(plusDM)
		minusDMSum = minusDMSum.Add(minusDM)
		trSum = trSum.Add(trueRange(cur, prev))
	}

	if trSum.IsZero() {
		return ADXResult{}
	}

	hundred := decimal.NewFromInt(100)
	plusDI := plusDMSum.DivRound(trSum, 16).Mul(hundred)
	minusDI := minusDMSum.DivRound(trSum, 16).Mul(hundred)

	diSum := plusDI.Add(minusDI)
	if diSum.IsZero() {
		return ADXResult{PlusDI: plusDI, MinusDI: minusDI}
	}

	dx := plusDI.Sub(minusDI).Abs().DivRound(diSum, 16).Mul(hundred)

	return ADXResult{ADX: dx, PlusDI: plusDI, MinusDI: minusDI}
}
