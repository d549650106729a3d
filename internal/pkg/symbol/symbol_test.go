package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Symbol{
		"BTC/USDT":      {Base: "BTC", Quote: "USDT"},
		"btcusdt":       {Base: "BTC", Quote: "USDT"},
		"BTC-USDT":      {Base: "BTC", Quote: "USDT"},
		"BTC/USDT:USDT": {Base: "BTC", Quote: "USDT"},
		"":              {},
		"XYZ":           {},
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestFormats(t *testing.T) {
	s := Parse("BTC/USDT")
	assert.Equal(t, "BTCUSDT", s.Binance())
	assert.Equal(t, "BTC-USDT", s.OKX())
	assert.Equal(t, "BTC/USDT", Normalize("btcusdt"))
	assert.False(t, IsValid("???"))
}
