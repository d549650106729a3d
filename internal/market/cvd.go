package market

import "github.com/shopspring/decimal"

// VolumeFlow 由 K 线估算的累计成交量差（CVD）。
// 没有逐笔主动买卖量时，按实体占振幅的比例把成交量拆成买卖两侧。
type VolumeFlow struct {
	Value      decimal.Decimal
	Momentum   decimal.Decimal
	Normalized decimal.Decimal
	Divergence string
	PeakFlip   string
}

const flowLookback = 5

// barDelta 阳线为正、阴线为负；十字星或无振幅记 0。
func barDelta(c Candle) decimal.Decimal {
	rng := c.High - c.Low
	if rng <= 0 || c.Volume <= 0 {
		return decimal.Zero
	}
	ratio := (c.Close - c.Open) / rng
	return decimal.NewFromFloat(c.Volume).Mul(decimal.NewFromFloat(ratio))
}

// ComputeVolumeFlow needs at least two candles.
func ComputeVolumeFlow(candles []Candle) (VolumeFlow, bool) {
	if len(candles) < 2 {
		return VolumeFlow{}, false
	}
	cvd := make([]decimal.Decimal, 0, len(candles))
	cumulative := decimal.Zero
	for _, c := range candles {
		cumulative = cumulative.Add(barDelta(c))
		cvd = append(cvd, cumulative)
	}
	last := cvd[len(cvd)-1]

	minVal, maxVal := cvd[0], cvd[0]
	for _, v := range cvd[1:] {
		if v.LessThan(minVal) {
			minVal = v
		}
		if v.GreaterThan(maxVal) {
			maxVal = v
		}
	}
	norm := decimal.NewFromFloat(0.5)
	if maxVal.GreaterThan(minVal) {
		norm = last.Sub(minVal).Div(maxVal.Sub(minVal))
	}

	back := len(cvd) - 1 - flowLookback
	if back < 0 {
		back = 0
	}
	momentum := last.Sub(cvd[back])
	priceNow := candles[len(candles)-1].Close
	pricePrev := candles[back].Close

	divergence := "neutral"
	switch {
	case priceNow > pricePrev && momentum.IsNegative():
		divergence = "bearish"
	case priceNow < pricePrev && momentum.IsPositive():
		divergence = "bullish"
	}

	peakFlip := "none"
	if len(cvd) >= 3 {
		a, b, c := cvd[len(cvd)-1], cvd[len(cvd)-2], cvd[len(cvd)-3]
		if a.LessThan(b) && b.GreaterThan(c) {
			peakFlip = "top"
		} else if a.GreaterThan(b) && b.LessThan(c) {
			peakFlip = "bottom"
		}
	}

	return VolumeFlow{
		Value:      last.Round(4),
		Momentum:   momentum.Round(4),
		Normalized: norm.Round(4),
		Divergence: divergence,
		PeakFlip:   peakFlip,
	}, true
}
