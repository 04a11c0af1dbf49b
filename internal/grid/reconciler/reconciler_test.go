package reconciler

import (
	"testing"

	"market_maker/internal/core"
	"market_maker/internal/grid/state"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newLongState() *state.GridState {
	s := state.NewGridState(state.GridConfig{
		MarketID:       "BTC-PERP",
		Direction:      core.Long,
		GridCount:      2,
		GridAmount:     decimal.NewFromFloat(0.01),
		GridSpread:     decimal.NewFromFloat(0.0005),
		MaxTotalOrders: 20,
		MaxPosition:    decimal.NewFromFloat(1),
	})
	s.BaseStep = decimal.NewFromFloat(1.5)
	s.ActiveStep = decimal.NewFromFloat(1.5)
	return s
}

// brokerSnapshotFor mirrors a GridState's resting orders back as the
// broker-reported snapshot Reconcile rebuilds from, since Reconcile no
// longer trusts the local maps for anything but PlacedAt continuity.
func brokerSnapshotFor(s *state.GridState) []core.Order {
	var out []core.Order
	for id, o := range s.BuyOrders {
		out = append(out, core.Order{ID: id, Side: core.Buy, Price: o.Price, Size: o.Size, Status: core.StatusOpen})
	}
	for id, o := range s.SellOrders {
		out = append(out, core.Order{ID: id, Side: core.Sell, Price: o.Price, Size: o.Size, Status: core.StatusOpen})
	}
	return out
}

func withSize(o core.Order, size decimal.Decimal) core.Order {
	o.Size = size
	return o
}

func TestReconcileOpenSideOverflowTrimsToGridCountPlusOne(t *testing.T) {
	s := newLongState() // GridCount 2 -> cap 3: only the nearest-to-spot excess goes
	s.BuyOrders["b1"] = &state.ActiveOrder{ID: "b1", Price: decimal.NewFromFloat(2998.5)}
	s.BuyOrders["b2"] = &state.ActiveOrder{ID: "b2", Price: decimal.NewFromFloat(2997.0)}
	s.BuyOrders["b3"] = &state.ActiveOrder{ID: "b3", Price: decimal.NewFromFloat(2995.5)}
	s.BuyOrders["b4"] = &state.ActiveOrder{ID: "b4", Price: decimal.NewFromFloat(2994.0)}

	result := Reconcile(s, brokerSnapshotFor(s), false)

	require.Len(t, result.CancelIDs, 1)
	require.Equal(t, "b1", result.CancelIDs[0])
	require.Len(t, s.BuyOrders, 3)
}

func TestReconcileCloseSideOverflowTrimsToMaxTotalOrders(t *testing.T) {
	s := newLongState()
	s.Config.GridCount = 5   // GridCount+1 would not trigger here
	s.Config.MaxTotalOrders = 2
	s.SellOrders["s1"] = &state.ActiveOrder{ID: "s1", Price: decimal.NewFromFloat(3001.5)}
	s.SellOrders["s2"] = &state.ActiveOrder{ID: "s2", Price: decimal.NewFromFloat(3003.0)}
	s.SellOrders["s3"] = &state.ActiveOrder{ID: "s3", Price: decimal.NewFromFloat(3004.5)}

	result := Reconcile(s, brokerSnapshotFor(s), false)

	require.Len(t, result.CancelIDs, 1)
	require.Equal(t, "s1", result.CancelIDs[0])
	require.Len(t, s.SellOrders, 2)
}

func TestReconcileInventoryOverflowCancelsFurthestCloseSideRung(t *testing.T) {
	s := newLongState()
	s.AvailablePosition = decimal.NewFromFloat(0.015) // covers one rung, not two
	s.SellOrders["s1"] = &state.ActiveOrder{ID: "s1", Price: decimal.NewFromFloat(3001.5)}
	s.SellOrders["s2"] = &state.ActiveOrder{ID: "s2", Price: decimal.NewFromFloat(3003.0)}

	beforeGrace := Reconcile(s, brokerSnapshotFor(s), false)
	require.Empty(t, beforeGrace.CancelIDs)

	s.SellOrders["s1"] = &state.ActiveOrder{ID: "s1", Price: decimal.NewFromFloat(3001.5)}
	s.SellOrders["s2"] = &state.ActiveOrder{ID: "s2", Price: decimal.NewFromFloat(3003.0)}
	afterGrace := Reconcile(s, brokerSnapshotFor(s), true)
	require.Len(t, afterGrace.CancelIDs, 1)
	require.Equal(t, "s2", afterGrace.CancelIDs[0])
}

func TestReconcilePauseCancelsEveryRestingOrder(t *testing.T) {
	s := newLongState()
	s.GridPaused = true
	s.BuyOrders["b1"] = &state.ActiveOrder{ID: "b1", Price: decimal.NewFromFloat(2998.5)}
	s.SellOrders["s1"] = &state.ActiveOrder{ID: "s1", Price: decimal.NewFromFloat(3001.5)}

	result := Reconcile(s, brokerSnapshotFor(s), false)

	require.ElementsMatch(t, []string{"b1", "s1"}, result.CancelIDs)
	require.Empty(t, s.BuyOrders)
	require.Empty(t, s.SellOrders)
}

func TestReconcileDuplicatePriceKeepsLowerID(t *testing.T) {
	s := newLongState()
	s.BuyOrders["zzz"] = &state.ActiveOrder{ID: "zzz", Price: decimal.NewFromFloat(2998.5)}
	s.BuyOrders["aaa"] = &state.ActiveOrder{ID: "aaa", Price: decimal.NewFromFloat(2998.5)}

	result := Reconcile(s, brokerSnapshotFor(s), false)

	require.Len(t, result.CancelIDs, 1)
	require.Equal(t, "zzz", result.CancelIDs[0])
	require.Contains(t, s.BuyOrders, "aaa")
}

func TestReconcilePrunesGhostOrdersNotInBrokerSnapshot(t *testing.T) {
	s := newLongState()
	s.BuyOrders["ghost"] = &state.ActiveOrder{ID: "ghost", Price: decimal.NewFromFloat(2998.5)}

	Reconcile(s, nil, false)

	require.NotContains(t, s.BuyOrders, "ghost")
}

func TestReconcileAddsBrokerOrderMissingLocally(t *testing.T) {
	s := newLongState()
	snapshot := []core.Order{
		{ID: "new-buy", Side: core.Buy, Price: decimal.NewFromFloat(2998.5), Size: decimal.NewFromFloat(0.01), Status: core.StatusOpen},
	}

	Reconcile(s, snapshot, false)

	require.Contains(t, s.BuyOrders, "new-buy")
	require.True(t, s.BuyOrders["new-buy"].Price.Equal(decimal.NewFromFloat(2998.5)))
}

func TestReconcileClassifiesOversizedOrderAsPlaceholder(t *testing.T) {
	s := newLongState()
	snapshot := []core.Order{
		withSize(core.Order{ID: "parked", Side: core.Sell, Price: decimal.NewFromFloat(3010), Status: core.StatusOpen}, decimal.NewFromFloat(0.05)),
	}

	Reconcile(s, snapshot, false)

	require.Contains(t, s.PlaceholderOrders, "parked")
	require.NotContains(t, s.SellOrders, "parked")
	require.True(t, s.PlaceholderPositions.Equal(decimal.NewFromFloat(0.05)))
	require.True(t, s.PlaceholderExists)
}
