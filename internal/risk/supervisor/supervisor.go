// Package supervisor implements the grid's risk filters: adverse-trend
// detection, EMA mean-reversion gating, rapid-move pausing, and the
// optional inventory reduce mode. It is invoked periodically by the
// control loop, never on every tick, and decides only whether the grid
// should pause and park placeholders, or resume normal replenishment.
package supervisor

import (
	"market_maker/internal/core"
	"market_maker/internal/grid/geometry"
	"market_maker/internal/grid/state"
	"market_maker/internal/indicators"

	"github.com/shopspring/decimal"
)

const (
	adxTrendThreshold   = 25
	emaDeviationPercent = 0.02
	defaultRapidMoveATR = 15.0
	emaPeriod           = 60
)

// Decision is the outcome of one supervisor pass.
type Decision struct {
	ShouldPause    bool
	ShouldResume   bool
	Reason         string
	NewActiveStep  decimal.Decimal
	ReduceModeOn   bool
}

// Supervisor evaluates risk filters against a candle series and the
// current grid state.
type Supervisor struct {
	Logger core.ILogger

	RapidMoveATRThreshold decimal.Decimal
}

// NewSupervisor builds a Supervisor with the spec's default rapid-move
// threshold of 15.0, overridable via ATRThreshold in config.
func NewSupervisor(logger core.ILogger, atrThreshold decimal.Decimal) *Supervisor {
	threshold := atrThreshold
	if threshold.IsZero() {
		threshold = decimal.NewFromFloat(defaultRapidMoveATR)
	}
	return &Supervisor{Logger: logger, RapidMoveATRThreshold: threshold}
}

// Evaluate runs the full filter chain against the supplied candle history
// (oldest first) and current grid state, returning the decision for the
// control loop to act on.
func (sv *Supervisor) Evaluate(s *state.GridState, candles []core.Candle) Decision {
	if len(candles) < 2 {
		return Decision{NewActiveStep: s.ActiveStep}
	}

	atr := indicators.ATR(candles, 14)
	newStep := geometry.DynamicActiveStep(atr, s.BaseStep)

	if sv.rapidMove(candles) {
		return Decision{
			ShouldPause:   true,
			Reason:        "rapid_move",
			NewActiveStep: newStep,
		}
	}

	if sv.adverseTrend(s, candles) {
		return Decision{
			ShouldPause:   true,
			Reason:        "adverse_trend",
			NewActiveStep: newStep,
		}
	}

	if s.GridPaused && sv.safeToResume(s, candles) {
		return Decision{
			ShouldResume:  true,
			NewActiveStep: newStep,
		}
	}

	reduceOn := sv.shouldReduce(s)

	return Decision{NewActiveStep: newStep, ReduceModeOn: reduceOn}
}

// rapidMove flags the most recent 1-minute candle when the absolute size
// of its close-open move exceeds RapidMoveATRThreshold, a fixed price
// distance that is not scaled by ATR; moves in either direction count.
func (sv *Supervisor) rapidMove(candles []core.Candle) bool {
	last := candles[len(candles)-1]
	move := last.Close.Sub(last.Open).Abs()
	return move.GreaterThan(sv.RapidMoveATRThreshold)
}

// adverseTrend combines ADX trend strength with directional bias, EMA
// side, and RSI side — symmetric for LONG and SHORT grids. A LONG grid
// (which wants to buy low) is at risk when the market is trending down
// with strength; a SHORT grid is at risk trending up.
func (sv *Supervisor) adverseTrend(s *state.GridState, candles []core.Candle) bool {
	adx := indicators.ADX(candles, 14)
	if adx.ADX.LessThanOrEqual(decimal.NewFromInt(adxTrendThreshold)) {
		return false
	}

	ema := indicators.EMA(candles, emaPeriod)
	rsi := indicators.RSI(candles, 14)
	price := candles[len(candles)-1].Close

	belowEMA := price.LessThan(ema)
	lowRSI := rsi.LessThan(decimal.NewFromInt(50))
	bearishDI := adx.MinusDI.GreaterThan(adx.PlusDI)

	if s.Config.Direction == core.Long {
		return bearishDI && belowEMA && lowRSI
	}

	aboveEMA := price.GreaterThan(ema)
	highRSI := rsi.GreaterThan(decimal.NewFromInt(50))
	bullishDI := adx.PlusDI.GreaterThan(adx.MinusDI)
	return bullishDI && aboveEMA && highRSI
}

// safeToResume applies the EMA(60) mean-reversion filter: price must be
// back within +/-2% of the EMA before a paused grid is allowed to resume.
func (sv *Supervisor) safeToResume(s *state.GridState, candles []core.Candle) bool {
	ema := indicators.EMA(candles, emaPeriod)
	if ema.IsZero() {
		return false
	}
	price := candles[len(candles)-1].Close
	deviation := price.Sub(ema).Abs().DivRound(ema, 8)
	return deviation.LessThanOrEqual(decimal.NewFromFloat(emaDeviationPercent))
}

// shouldReduce gates the optional inventory reduce mode: it only engages
// once position_abs has reached the configured decrease_position
// threshold, and even then only when 0.7x the accumulated reduce-eligible
// profit covers the estimated worst-case loss of unwinding the full
// position at the current active_step.
func (sv *Supervisor) shouldReduce(s *state.GridState) bool {
	threshold := s.Config.DecreasePosition
	if threshold.IsZero() || s.PositionAbs.LessThan(threshold) {
		return false
	}
	estimatedWorstLoss := s.PositionAbs.Mul(s.ActiveStep)
	profitCushion := decimal.NewFromFloat(0.7).Mul(s.AvailableReduceProfit)
	return profitCushion.GreaterThanOrEqual(estimatedWorstLoss)
}
