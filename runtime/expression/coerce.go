package expression

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is bound to variables that are missing from the variable set.
// It is loosely equal to null and to itself only.
var Undefined any = undefinedValue{}

func isNullish(v any) bool {
	return v == nil || v == Undefined
}

// Truthy applies JavaScript truthiness: undefined, null, false, 0, NaN and the
// empty string are false; everything else, including empty arrays and
// objects, is true.
func Truthy(v any) bool {
	if isNullish(v) {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := asNumber(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// LooseEqual mirrors JavaScript's == operator for the value shapes found in
// decoded JSON and YAML documents.
func LooseEqual(a, b any) bool {
	if isNullish(a) || isNullish(b) {
		return isNullish(a) && isNullish(b)
	}

	if ab, ok := a.(bool); ok {
		return LooseEqual(boolToNumber(ab), b)
	}
	if bb, ok := b.(bool); ok {
		return LooseEqual(a, boolToNumber(bb))
	}

	an, aNum := asNumber(a)
	bn, bNum := asNumber(b)
	as, aStr := a.(string)
	bs, bStr := b.(string)

	switch {
	case aNum && bNum:
		return an == bn
	case aStr && bStr:
		return as == bs
	case aNum && bStr:
		return an == stringToNumber(bs)
	case aStr && bNum:
		return stringToNumber(as) == bn
	case aStr:
		return as == toPrimitiveString(b)
	case bStr:
		return toPrimitiveString(a) == bs
	case aNum:
		return an == stringToNumber(toPrimitiveString(b))
	case bNum:
		return stringToNumber(toPrimitiveString(a)) == bn
	}
	return sameReference(a, b)
}

// Compare implements the relational operators. Two strings are compared
// lexicographically, anything else numerically; NaN never compares.
func Compare(op string, a, b any) bool {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch op {
		case "<":
			return as < bs
		case ">":
			return as > bs
		case "<=":
			return as <= bs
		case ">=":
			return as >= bs
		}
		return false
	}

	an, bn := ToNumber(a), ToNumber(b)
	if math.IsNaN(an) || math.IsNaN(bn) {
		return false
	}
	switch op {
	case "<":
		return an < bn
	case ">":
		return an > bn
	case "<=":
		return an <= bn
	case ">=":
		return an >= bn
	}
	return false
}

// ToNumber converts a value using JavaScript's Number() rules.
func ToNumber(v any) float64 {
	if v == nil {
		return 0
	}
	if v == Undefined {
		return math.NaN()
	}
	switch t := v.(type) {
	case bool:
		return boolToNumber(t)
	case string:
		return stringToNumber(t)
	}
	if n, ok := asNumber(v); ok {
		return n
	}
	return stringToNumber(toPrimitiveString(v))
}

func boolToNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return math.NaN(), true
		}
		return n, true
	}
	return 0, false
}

// toPrimitiveString approximates JavaScript's ToPrimitive for objects:
// arrays join their elements with commas, objects become "[object Object]".
func toPrimitiveString(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			elem := rv.Index(i).Interface()
			if isNullish(elem) {
				continue
			}
			parts[i] = toPrimitiveString(elem)
		}
		return strings.Join(parts, ",")
	case reflect.Map, reflect.Struct:
		return "[object Object]"
	}
	if n, ok := asNumber(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func sameReference(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Map:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	}
	return false
}
