package market

import (
	"sort"
	"time"
)

// Candle 单根 K 线，时间为毫秒时间戳。
type Candle struct {
	Source    string  `json:"source"`
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// SortByOpenTime sorts ascending; equal open times keep source order.
func SortByOpenTime(cs []Candle) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].OpenTime < cs[j].OpenTime })
}

const DefaultKlineGrace = 10 * time.Second

// DropUnclosed drops the last candle when it is still in progress at now.
func DropUnclosed(cs []Candle, interval time.Duration, now time.Time) []Candle {
	if len(cs) == 0 || interval <= 0 {
		return cs
	}
	last := cs[len(cs)-1]
	if last.OpenTime <= 0 {
		return cs
	}
	cutoff := last.OpenTime + interval.Milliseconds() + DefaultKlineGrace.Milliseconds()
	if now.UnixMilli() < cutoff {
		return cs[:len(cs)-1]
	}
	return cs
}
