package state

import (
	"testing"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func baseConfig() GridConfig {
	return GridConfig{
		MarketID:       "BTC-PERP",
		Direction:      core.Long,
		GridCount:      3,
		GridAmount:     decimal.NewFromFloat(0.01),
		GridSpread:     decimal.NewFromFloat(0.0005),
		MaxTotalOrders: 20,
		MaxPosition:    decimal.NewFromFloat(1),
	}
}

func TestNewGridStateSeedsLastFillWasCloseSideTrue(t *testing.T) {
	s := NewGridState(baseConfig())
	require.True(t, s.LastFillWasCloseSide)
}

func TestCheckInvariantsCatchesOrderOnBothSides(t *testing.T) {
	s := NewGridState(baseConfig())
	s.BaseStep = decimal.NewFromFloat(1.5)
	s.ActiveStep = decimal.NewFromFloat(1.5)
	s.BuyOrders["dup"] = &ActiveOrder{ID: "dup"}
	s.SellOrders["dup"] = &ActiveOrder{ID: "dup"}

	err := s.CheckInvariants()
	require.Error(t, err)
}

func TestCheckInvariantsPassesOnFreshState(t *testing.T) {
	s := NewGridState(baseConfig())
	s.BaseStep = decimal.NewFromFloat(1.5)
	s.ActiveStep = decimal.NewFromFloat(1.5)
	require.NoError(t, s.CheckInvariants())
}

func TestOpenAndCloseSideOrdersForLong(t *testing.T) {
	s := NewGridState(baseConfig())
	require.False(t, s.Config.Direction.OpenIsAsk())

	s.OpenSideOrders()["o1"] = &ActiveOrder{ID: "o1"}
	require.Contains(t, s.BuyOrders, "o1")

	s.CloseSideOrders()["c1"] = &ActiveOrder{ID: "c1"}
	require.Contains(t, s.SellOrders, "c1")
}

func TestTradeDedup(t *testing.T) {
	s := NewGridState(baseConfig())
	require.False(t, s.TradeAlreadyProcessed("k1"))
	s.MarkTradeProcessed("k1")
	require.True(t, s.TradeAlreadyProcessed("k1"))
}
