package jsonutil

import (
	"encoding/json"
	"strings"
)

// Pretty re-indents raw JSON; invalid input is returned unchanged.
func Pretty(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(buf)
}

// Compact marshals v for prompts and logs. Marshal failures yield "null".
func Compact(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(buf)
}
