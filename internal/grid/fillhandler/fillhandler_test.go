package fillhandler

import (
	"testing"
	"time"

	"market_maker/internal/core"
	"market_maker/internal/grid/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func longState() *state.GridState {
	s := state.NewGridState(state.GridConfig{
		MarketID:       "BTC-PERP",
		Direction:      core.Long,
		GridCount:      3,
		GridAmount:     decimal.NewFromFloat(0.01),
		GridSpread:     decimal.NewFromFloat(0.0005),
		MaxTotalOrders: 20,
		MaxPosition:    decimal.NewFromFloat(1),
	})
	s.BaseStep = decimal.NewFromFloat(1.5)
	s.ActiveStep = decimal.NewFromFloat(1.5)
	s.PositionAbs = decimal.NewFromFloat(0.01)
	s.AvailablePosition = decimal.NewFromFloat(0.01)
	return s
}

// TestScenarioCSellFillAddsExactProfit exercises the literal example: a
// resting sell (close side, LONG) fills at 3000.00 with base_step=1.50 and
// grid_amount=0.01, so total_profit increases by exactly 0.015.
func TestScenarioCSellFillAddsExactProfit(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.SellOrders["sell-1"] = &state.ActiveOrder{ID: "sell-1", Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01), IsAsk: true}

	a := h.OnOrderUpdate(s, core.Order{
		ID:     "sell-1",
		Side:   core.Sell,
		Price:  decimal.NewFromFloat(3000.00),
		Size:   decimal.NewFromFloat(0.01),
		Status: core.StatusFilled,
	})

	require.NotNil(t, a)
	require.False(t, a.WasOpenSide)
	require.True(t, decimal.NewFromFloat(0.015).Equal(s.TotalProfit), "total_profit got %s", s.TotalProfit)
	require.NotContains(t, s.SellOrders, "sell-1")
}

func TestOpenSideFillIncreasesPositionWithoutProfit(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	startingProfit := s.TotalProfit
	s.BuyOrders["buy-1"] = &state.ActiveOrder{ID: "buy-1", Price: decimal.NewFromFloat(2998.5), Size: decimal.NewFromFloat(0.01)}

	a := h.OnOrderUpdate(s, core.Order{
		ID:     "buy-1",
		Side:   core.Buy,
		Price:  decimal.NewFromFloat(2998.5),
		Size:   decimal.NewFromFloat(0.01),
		Status: core.StatusFilled,
	})

	require.NotNil(t, a)
	require.True(t, a.WasOpenSide)
	require.True(t, decimal.NewFromFloat(0.02).Equal(s.PositionAbs))
	require.True(t, startingProfit.Equal(s.TotalProfit))
}

func TestOversizedOrderUpdateIsSkipped(t *testing.T) {
	h := NewHandler(nil)
	s := longState()

	a := h.OnOrderUpdate(s, core.Order{
		ID:     "big",
		Side:   core.Sell,
		Size:   decimal.NewFromFloat(1),
		Status: core.StatusFilled,
	})

	require.Nil(t, a)
}

func TestDuplicateFillIsIgnored(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.SellOrders["sell-1"] = &state.ActiveOrder{ID: "sell-1", Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01)}

	first := h.OnOrderUpdate(s, core.Order{ID: "sell-1", Side: core.Sell, Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01), Status: core.StatusFilled})
	require.NotNil(t, first)

	second := h.OnOrderUpdate(s, core.Order{ID: "sell-1", Side: core.Sell, Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01), Status: core.StatusFilled})
	require.Nil(t, second)
}

// TestUnattributableCloseFillSkipsProfit exercises a close-side fill whose
// order ID isn't resting locally and whose price is outside tolerance of
// anything that is: it must not fabricate profit or move position_abs.
func TestUnattributableCloseFillSkipsProfit(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	startingProfit := s.TotalProfit
	startingPosition := s.PositionAbs
	s.SellOrders["sell-1"] = &state.ActiveOrder{ID: "sell-1", Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01)}

	a := h.OnOrderUpdate(s, core.Order{
		ID:     "ghost-fill",
		Side:   core.Sell,
		Price:  decimal.NewFromFloat(3500.00), // far outside tolerance of sell-1
		Size:   decimal.NewFromFloat(0.01),
		Status: core.StatusFilled,
	})

	require.NotNil(t, a)
	require.True(t, startingProfit.Equal(s.TotalProfit), "total_profit must not change, got %s", s.TotalProfit)
	require.True(t, startingPosition.Equal(s.PositionAbs), "position_abs must not change, got %s", s.PositionAbs)
	require.Contains(t, s.SellOrders, "sell-1", "the unrelated resting order must survive untouched")
}

func TestPlaceholderFillReleasesInventoryAndAccruesProfit(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.PositionAbs = decimal.NewFromFloat(0.05)
	s.PlaceholderPositions = decimal.NewFromFloat(0.05)
	s.PlaceholderOrders["ph-1"] = &state.PlaceholderOrder{ID: "ph-1", Price: decimal.NewFromFloat(3010.0), Size: decimal.NewFromFloat(0.05), IsAsk: true}
	s.PlaceholderExists = true

	a := h.OnOrderUpdate(s, core.Order{
		ID:     "ph-1",
		Side:   core.Sell,
		Price:  decimal.NewFromFloat(3010.0),
		Size:   decimal.NewFromFloat(0.05),
		Status: core.StatusFilled,
	})

	require.NotNil(t, a)
	require.False(t, a.WasOpenSide)
	require.NotContains(t, s.PlaceholderOrders, "ph-1")
	require.False(t, s.PlaceholderExists)
	require.True(t, s.PlaceholderPositions.IsZero(), "placeholder_positions got %s", s.PlaceholderPositions)
	require.True(t, decimal.Zero.Equal(s.PositionAbs), "position_abs got %s", s.PositionAbs)
	require.True(t, decimal.NewFromFloat(0.075).Equal(s.TotalProfit), "total_profit got %s", s.TotalProfit)
}

func TestNonFillPlaceholderUpdateIsANoOp(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.PlaceholderOrders["ph-1"] = &state.PlaceholderOrder{ID: "ph-1", Price: decimal.NewFromFloat(3010.0), Size: decimal.NewFromFloat(0.05), IsAsk: true}

	a := h.OnOrderUpdate(s, core.Order{ID: "ph-1", Side: core.Sell, Status: core.StatusOpen})

	require.Nil(t, a)
	require.Contains(t, s.PlaceholderOrders, "ph-1")
}

func TestToleranceFallbackMatchesNearestRestingOrder(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.SellOrders["sell-1"] = &state.ActiveOrder{ID: "sell-1", Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01)}

	// The broker reports a different order ID than what's resting locally,
	// but at a price within tolerance (max(base_step*0.6, 0.6) = 0.9 here).
	a := h.OnOrderUpdate(s, core.Order{
		ID:     "unknown-broker-id",
		Side:   core.Sell,
		Price:  decimal.NewFromFloat(3000.40),
		Size:   decimal.NewFromFloat(0.01),
		Status: core.StatusFilled,
	})

	require.NotNil(t, a)
	require.True(t, decimal.NewFromFloat(3000.00).Equal(a.TradePrice))
	require.Empty(t, s.SellOrders)
}

func TestReconcileTradesSkipsOversizedAndDeduplicates(t *testing.T) {
	h := NewHandler(nil)
	s := longState()
	s.SellOrders["sell-1"] = &state.ActiveOrder{ID: "sell-1", Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01)}

	now := time.Unix(1700000000, 0)
	trades := []core.Trade{
		{ID: "t1", OrderRef: "sell-1", Side: core.Sell, Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01), Time: now},
		{ID: "t2", OrderRef: "manual-intervention", Side: core.Sell, Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(1), Time: now},
	}

	attributions := h.ReconcileTrades(s, trades)
	require.Len(t, attributions, 1)

	// Replaying the exact same trade set must not double-attribute.
	again := h.ReconcileTrades(s, trades)
	require.Empty(t, again)
}

func TestTradeFingerprintIsStableForIdenticalTrades(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := core.Trade{OrderRef: "o1", Side: core.Sell, Price: decimal.NewFromFloat(3000.00), Size: decimal.NewFromFloat(0.01), Time: now}
	b := a
	require.Equal(t, TradeFingerprint(a), TradeFingerprint(b))

	b.Price = decimal.NewFromFloat(3000.01)
	require.NotEqual(t, TradeFingerprint(a), TradeFingerprint(b))
}
