package text

// Truncate 按字节上限截断并追加 "..."，不切断多字节字符。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return TruncateBytes(s, max) + "..."
}

// TruncateBytes cuts s to at most max bytes on a UTF-8 boundary.
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && (s[max]&0xC0) == 0x80 {
		max--
	}
	return s[:max]
}
