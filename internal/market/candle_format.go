package market

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type Candles []Candle

func (c Candle) TimeString() string {
	if c.OpenTime <= 0 {
		return "-"
	}
	return time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04") + "Z"
}

// Tail returns the last n candles (all when n <= 0 or larger than the slice).
func (cs Candles) Tail(n int) Candles {
	if n <= 0 || n >= len(cs) {
		return cs
	}
	return cs[len(cs)-n:]
}

// Table renders candles as one line per bar for prompts.
func (cs Candles) Table() string {
	if len(cs) == 0 {
		return "(no candles)"
	}
	var sb strings.Builder
	sb.WriteString("time | open | high | low | close | volume\n")
	for _, c := range cs {
		sb.WriteString(fmt.Sprintf("%s | %.2f | %.2f | %.2f | %.2f | %.4f\n",
			c.TimeString(), c.Open, c.High, c.Low, c.Close, c.Volume))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Snapshot 一行概要：收盘价、窗口涨跌幅与高低区间。
func (cs Candles) Snapshot(interval string) string {
	if len(cs) == 0 {
		return ""
	}
	first := cs[0]
	last := cs[len(cs)-1]
	base := first.Close
	if base == 0 {
		base = first.Open
	}
	low, high := math.MaxFloat64, -math.MaxFloat64
	for _, bar := range cs {
		low = math.Min(low, bar.Low)
		high = math.Max(high, bar.High)
	}
	iv := strings.TrimSpace(interval)
	if iv == "" {
		iv = "window"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("close≈%.2f", last.Close))
	if base != 0 {
		sb.WriteString(fmt.Sprintf(" (%+.2f%%/%d×%s)", (last.Close-base)/base*100, len(cs), iv))
	}
	sb.WriteString(fmt.Sprintf(", 区间 %.2f–%.2f", low, high))
	return sb.String()
}
