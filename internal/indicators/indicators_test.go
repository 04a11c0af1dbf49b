package indicators

import (
	"testing"

	"market_maker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func candle(high, low, close float64) core.Candle {
	return core.Candle{
		High:  decimal.NewFromFloat(high),
		Low:   decimal.NewFromFloat(low),
		Close: decimal.NewFromFloat(close),
	}
}

func TestEMASeedsFromFirstCloseWithOneCandle(t *testing.T) {
	candles := []core.Candle{candle(101, 99, 100)}
	ema := EMA(candles, 5)
	require.True(t, decimal.NewFromFloat(100).Equal(ema))
}

func TestEMAWithAlphaOneTracksLatestClose(t *testing.T) {
	candles := []core.Candle{candle(11, 9, 10), candle(21, 19, 20)}
	ema := EMA(candles, 1)
	require.True(t, decimal.NewFromFloat(20).Equal(ema))
}

func TestEMAOnEmptySeriesIsZero(t *testing.T) {
	require.True(t, decimal.Zero.Equal(EMA(nil, 10)))
}

func TestRSIReturnsNeutralFiftyWhenNotEnoughCandles(t *testing.T) {
	candles := []core.Candle{candle(101, 99, 100), candle(102, 100, 101)}
	rsi := RSI(candles, 5)
	require.True(t, decimal.NewFromInt(50).Equal(rsi))
}

func TestRSIIsOneHundredOnAllGainCandles(t *testing.T) {
	candles := []core.Candle{
		candle(101, 99, 100),
		candle(103, 101, 102),
		candle(105, 103, 104),
		candle(107, 105, 106),
	}
	rsi := RSI(candles, 3)
	require.True(t, decimal.NewFromInt(100).Equal(rsi))
}

func TestATRIsMaxTrueRangeOverSinglePeriod(t *testing.T) {
	candles := []core.Candle{
		candle(101, 99, 99),
		candle(103, 100, 102),
	}
	atr := ATR(candles, 1)
	require.True(t, decimal.NewFromInt(4).Equal(atr))
}

func TestATRReturnsZeroWhenNotEnoughCandles(t *testing.T) {
	candles := []core.Candle{candle(101, 99, 100)}
	require.True(t, decimal.Zero.Equal(ATR(candles, 5)))
}

func TestADXOnCleanUptrendIsMaximal(t *testing.T) {
	candles := []core.Candle{
		candle(100, 98, 99),
		candle(102, 100, 101),
		candle(104, 102, 103),
	}
	result := ADX(candles, 2)
	require.True(t, decimal.NewFromInt(100).Equal(result.ADX))
	require.True(t, result.PlusDI.IsPositive())
	require.True(t, result.MinusDI.IsZero())
}

func TestADXReturnsEmptyResultWhenNotEnoughCandles(t *testing.T) {
	candles := []core.Candle{candle(101, 99, 100)}
	result := ADX(candles, 5)
	require.True(t, result.ADX.IsZero())
	require.True(t, result.PlusDI.IsZero())
	require.True(t, result.MinusDI.IsZero())
}
