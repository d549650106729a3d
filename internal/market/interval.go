package market

import (
	"strconv"
	"strings"
	"time"
)

// ParseInterval parses "15m", "1h", "4h", "1d", "1w".
func ParseInterval(interval string) (time.Duration, bool) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(interval[:len(interval)-1]))
	if err != nil || n <= 0 {
		return 0, false
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// okxBar converts "1h" to OKX bar notation ("1H"); minutes stay lower case.
func okxBar(interval string) string {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return ""
	}
	unit := interval[len(interval)-1]
	switch unit {
	case 'h', 'd', 'w':
		return interval[:len(interval)-1] + strings.ToUpper(string(unit))
	}
	return interval
}
