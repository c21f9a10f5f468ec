package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// NormalizeValue converts a decoded cell value into something database
// drivers accept natively: json.Number becomes int64 or float64, other
// scalars pass through, anything exotic is stringified.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// FormatValue renders a cell for text output. Nil renders empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
