package indicator

import (
	"testing"

	"btcagent/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeChanges(t *testing.T) {
	snap, err := Compute([]market.Candle{
		{Close: 100, Volume: 10, High: 101, Low: 99},
		{Close: 110, Volume: 15, High: 112, Low: 101},
	}, Settings{})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, snap.PriceChangePct, 1e-9)
	assert.InDelta(t, 50.0, snap.VolumeChangePct, 1e-9)
	assert.InDelta(t, 10.0, snap.HighLowRangePct, 1e-9)
	assert.Zero(t, snap.RSI)
	assert.Empty(t, snap.EMATrend)
}

func TestComputeLongWindow(t *testing.T) {
	candles := make([]market.Candle, 80)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = market.Candle{Open: p - 0.5, Close: p, High: p + 1, Low: p - 1, Volume: 5}
	}
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)
	assert.Equal(t, "overbought", snap.RSIState)
	assert.Equal(t, "bullish", snap.EMATrend)
	assert.Greater(t, snap.ATR, 0.0)
}

func TestComputeTooShort(t *testing.T) {
	_, err := Compute([]market.Candle{{Close: 1}}, Settings{})
	assert.Error(t, err)
}

func TestComputeVolumeFlowDivergence(t *testing.T) {
	candles := make([]market.Candle, 10)
	for i := range candles {
		p := 100 + float64(i)
		// 价格上行但每根都收在低位，估算的买卖差为负
		candles[i] = market.Candle{Open: p + 0.8, Close: p, High: p + 1, Low: p - 1, Volume: 10}
	}
	snap, err := Compute(candles, Settings{})
	require.NoError(t, err)
	assert.Equal(t, "bearish", snap.CVDDivergence)
	assert.Equal(t, "none", snap.CVDPeakFlip)

	flow, ok := market.ComputeVolumeFlow(candles[:1])
	assert.False(t, ok)
	assert.True(t, flow.Value.IsZero())
}
