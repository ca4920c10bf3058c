// Package payload turns loosely-typed broker message bodies into numeric readings.
//
// The backend publishes the same logical value as a bare numeric string
// ("1060.0"), as a JSON number, or wrapped in a small JSON envelope depending on
// its deployment version. Nothing in this package returns an error: a body that
// does not carry a number decodes to NaN.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToText normalises a message body to a string.
// nil yields "", strings and byte slices are returned as text, anything else is
// JSON-encoded, falling back to fmt.Sprint when encoding fails.
func ToText(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	case []byte:
		return string(b)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(encoded)
}

// ToNumber extracts a float64 from a message body, or NaN when there is none.
func ToNumber(body any) float64 {
	text := ToText(body)
	if text == "" {
		return math.NaN()
	}
	trimmed := strings.TrimSpace(text)

	if v, ok := parseLeadingFloat(trimmed); ok {
		return v
	}
	return fromJSON(trimmed)
}

// Decode is ToNumber with an explicit validity flag.
func Decode(body any) (float64, bool) {
	v := ToNumber(body)
	return v, !math.IsNaN(v)
}

// fromJSON picks the number out of a JSON value. Objects are looked up by
// "value", then "data", then "0"; arrays by their first element. The first
// candidate present wins and must itself be a number.
func fromJSON(text string) float64 {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return math.NaN()
	}

	var candidate any
	switch v := parsed.(type) {
	case float64:
		return v
	case map[string]any:
		for _, key := range []string{"value", "data", "0"} {
			if c, ok := v[key]; ok && c != nil {
				candidate = c
				break
			}
		}
	case []any:
		if len(v) > 0 {
			candidate = v[0]
		}
	}

	if n, ok := candidate.(float64); ok {
		return n
	}
	return math.NaN()
}

// parseLeadingFloat parses the longest prefix of s that reads as a decimal
// float: optional sign, digits with an optional fraction, optional exponent,
// or the literal "Infinity". Trailing text such as units is ignored.
func parseLeadingFloat(s string) (float64, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	end := i

	// An exponent only counts when at least one digit follows it.
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			expDigits++
		}
		if expDigits > 0 {
			end = j
		}
	}

	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		// Out of range parses to ±Inf or 0, matching a lenient float parse.
		if errors.Is(err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
