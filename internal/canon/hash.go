package canon

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

const (
	hashLen = 64
	wordLen = 8
)

// ReverseHashWords reverses the order of the eight 4-byte words of a
// 64-character hex hash. Characters inside a word keep their order. Any other
// length is returned unchanged.
func ReverseHashWords(h string) string {
	if len(h) != hashLen {
		return h
	}
	var b strings.Builder
	b.Grow(hashLen)
	for i := hashLen - wordLen; i >= 0; i -= wordLen {
		b.WriteString(h[i : i+wordLen])
	}
	return b.String()
}

// Timestamp coerces a feed timestamp to seconds. Numbers pass through, strings
// of decimal digits are base 10, any other string is base 16. Falsy or
// unparseable input is 0.
func Timestamp(v any) float64 {
	if !truthy(v) {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case bool:
		return 1
	case string:
		if isDecimal(t) {
			f, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return 0
			}
			return f
		}
		return parseHex(t)
	}
	return 0
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseHex accepts an optional sign and 0x prefix around surrounding spaces.
// Arbitrary width is allowed; the result is rounded to the nearest float64.
func parseHex(s string) float64 {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg, s = true, s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0
	}
	if neg {
		n.Neg(n)
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
