package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"btcagent/internal/market"
)

// Settings 指标参数，零值使用默认。
type Settings struct {
	RSIPeriod int
	EMAFast   int
	EMASlow   int
	ATRPeriod int
}

func (s Settings) withDefaults() Settings {
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = 14
	}
	if s.EMAFast <= 0 {
		s.EMAFast = 21
	}
	if s.EMASlow <= 0 {
		s.EMASlow = 50
	}
	if s.ATRPeriod <= 0 {
		s.ATRPeriod = 14
	}
	return s
}

// Snapshot 技术面 Analyzer 使用的指标快照。
// 最新一根相对前一根的变化：price_change / volume_change / high_low_range（百分比）。
type Snapshot struct {
	PriceChangePct  float64 `json:"price_change"`
	VolumeChangePct float64 `json:"volume_change"`
	HighLowRangePct float64 `json:"high_low_range"`
	RSI             float64 `json:"rsi,omitempty"`
	RSIState        string  `json:"rsi_state,omitempty"`
	EMAFast         float64 `json:"ema_fast,omitempty"`
	EMASlow         float64 `json:"ema_slow,omitempty"`
	EMATrend        string  `json:"ema_trend,omitempty"`
	MACDHist        float64 `json:"macd_hist,omitempty"`
	ATR             float64 `json:"atr,omitempty"`
	// CVD 由 K 线估算，见 market.ComputeVolumeFlow。
	CVDNormalized float64 `json:"cvd_normalized,omitempty"`
	CVDDivergence string  `json:"cvd_divergence,omitempty"`
	CVDPeakFlip   string  `json:"cvd_peak_flip,omitempty"`
}

// Compute needs at least two candles; talib-based fields stay zero until the
// window is long enough for their period.
func Compute(candles []market.Candle, cfg Settings) (Snapshot, error) {
	if len(candles) < 2 {
		return Snapshot{}, fmt.Errorf("need at least 2 candles, got %d", len(candles))
	}
	cfg = cfg.withDefaults()
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	latest, prev := candles[n-1], candles[n-2]
	snap := Snapshot{
		PriceChangePct:  pctChange(prev.Close, latest.Close),
		VolumeChangePct: pctChange(prev.Volume, latest.Volume),
	}
	if latest.Close != 0 {
		snap.HighLowRangePct = round4((latest.High - latest.Low) / latest.Close * 100)
	}

	if n > cfg.RSIPeriod {
		snap.RSI = lastValid(talib.Rsi(closes, cfg.RSIPeriod))
		switch {
		case snap.RSI >= 70:
			snap.RSIState = "overbought"
		case snap.RSI <= 30:
			snap.RSIState = "oversold"
		default:
			snap.RSIState = "neutral"
		}
	}
	if n >= cfg.EMAFast {
		snap.EMAFast = lastValid(talib.Ema(closes, cfg.EMAFast))
	}
	if n >= cfg.EMASlow {
		snap.EMASlow = lastValid(talib.Ema(closes, cfg.EMASlow))
	}
	if snap.EMAFast != 0 && snap.EMASlow != 0 {
		switch {
		case snap.EMAFast > snap.EMASlow:
			snap.EMATrend = "bullish"
		case snap.EMAFast < snap.EMASlow:
			snap.EMATrend = "bearish"
		default:
			snap.EMATrend = "flat"
		}
	}
	if n >= 35 {
		_, _, hist := talib.Macd(closes, 12, 26, 9)
		snap.MACDHist = lastValid(hist)
	}
	if n > cfg.ATRPeriod {
		snap.ATR = lastValid(talib.Atr(highs, lows, closes, cfg.ATRPeriod))
	}
	if flow, ok := market.ComputeVolumeFlow(candles); ok {
		snap.CVDNormalized = flow.Normalized.InexactFloat64()
		snap.CVDDivergence = flow.Divergence
		snap.CVDPeakFlip = flow.PeakFlip
	}
	return snap, nil
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return round4((to - from) / from * 100)
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return round4(series[i])
		}
	}
	return 0
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
