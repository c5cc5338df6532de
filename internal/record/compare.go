package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToFloat converts numeric values (including json.Number and numeric strings
// from query parameters) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := ToFloat(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}

// Compare orders two field values: nil < bool < number < string < other.
// Numbers compare numerically, strings lexically, anything else by its
// formatted text. A numeric string compared with a number is treated as a number.
func Compare(a, b any) int {
	if s, ok := a.(string); ok {
		if _, isNum := ToFloat(b); isNum {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				a = f
			}
		}
	}
	if s, ok := b.(string); ok {
		if _, isNum := ToFloat(a); isNum {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				b = f
			}
		}
	}

	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 2:
		fa, _ := ToFloat(a)
		fb, _ := ToFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports whether two field values compare equal.
func Equal(a, b any) bool {
	return Compare(a, b) == 0
}
