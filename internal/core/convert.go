package core

// convert.go normalizes cell values coming from heterogeneous sources.
//
// The same key can arrive as "7" from CSV, 7 from JSON, 7.0 after a float
// round trip, or " 7 " from hand-edited XML. These helpers give every such
// spelling one representation so joins match:
//   - integral numbers become int64
//   - other numbers stay float64
//   - numeric-looking strings are parsed like numbers
//   - blank strings and NaN become nil

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/schoolfacts/internal/table"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// ToNumber converts v to int64 or float64. ok is false for nil, NaN, blank
// strings and anything that does not look like a number.
func ToNumber(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		return parseNumeric(x.String())
	case string:
		return parseNumeric(CleanCell(x))
	case bool:
		return nil, false
	}
	return nil, false
}

// ToFloat converts v to float64 using the same rules as ToNumber.
func ToFloat(v any) (float64, bool) {
	n, ok := ToNumber(v)
	if !ok {
		return 0, false
	}
	switch x := n.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// ToKey normalizes a join key. Numeric-looking values follow ToNumber;
// other non-blank strings are trimmed and kept. ok is false when the value
// cannot identify a row.
func ToKey(v any) (any, bool) {
	if table.IsBlank(v) {
		return nil, false
	}
	if n, ok := ToNumber(v); ok {
		return n, true
	}
	switch x := v.(type) {
	case string:
		return CleanCell(x), CleanCell(x) != ""
	case bool:
		return nil, false
	}
	return nil, false
}

// RoundHalfAwayFromZero rounds f to the given number of decimal places.
// Decimal arithmetic keeps 2.25 from landing on 2.2 through binary error.
func RoundHalfAwayFromZero(f float64, places int32) float64 {
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}

func parseNumeric(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !numericRegex.MatchString(s) {
		return nil, false
	}
	if i, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return fromFloat(f)
}

func fromFloat(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}
