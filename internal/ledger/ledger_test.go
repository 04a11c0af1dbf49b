package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fills.db")
	l, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordFillAndTotalProfit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, "BTC-PERP", "o1", "sell", decimal.NewFromFloat(3001.5), decimal.NewFromFloat(0.01), false, decimal.NewFromFloat(0.015)))
	require.NoError(t, l.RecordFill(ctx, "BTC-PERP", "o2", "sell", decimal.NewFromFloat(3004.5), decimal.NewFromFloat(0.01), false, decimal.NewFromFloat(0.03)))

	total, err := l.TotalProfit(ctx, "BTC-PERP")
	require.NoError(t, err)
	require.True(t, decimal.NewFromFloat(0.045).Equal(total))
}

func TestTotalProfitIsScopedPerMarket(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordFill(ctx, "BTC-PERP", "o1", "sell", decimal.NewFromFloat(3001.5), decimal.NewFromFloat(0.01), false, decimal.NewFromFloat(0.015)))
	require.NoError(t, l.RecordFill(ctx, "ETH-PERP", "o2", "sell", decimal.NewFromFloat(200), decimal.NewFromFloat(0.1), false, decimal.NewFromFloat(1.0)))

	btcTotal, err := l.TotalProfit(ctx, "BTC-PERP")
	require.NoError(t, err)
	require.True(t, decimal.NewFromFloat(0.015).Equal(btcTotal))

	ethTotal, err := l.TotalProfit(ctx, "ETH-PERP")
	require.NoError(t, err)
	require.True(t, decimal.NewFromFloat(1.0).Equal(ethTotal))
}

func TestTotalProfitOnEmptyLedgerIsZero(t *testing.T) {
	l := openTestLedger(t)

	total, err := l.TotalProfit(context.Background(), "BTC-PERP")
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(total))
}

func TestRecordEntryPersistsOpenSideFills(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordEntry(ctx, Entry{
		MarketID: "BTC-PERP",
		OrderID:  "o1",
		Side:     "buy",
		Price:    decimal.NewFromFloat(2998.5),
		Size:     decimal.NewFromFloat(0.01),
		WasOpen:  true,
		Profit:   decimal.Zero,
	}))

	total, err := l.TotalProfit(ctx, "BTC-PERP")
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(total))
}
