package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BDNK1/autoflow/runtime/expression"
)

var templateRef = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Interpolate replaces {{name}} references in value, recursing through maps
// and slices. A string that is exactly one reference yields the bound value
// with its type intact; references embedded in text are replaced with the
// value's textual form. Unresolved references are left as written.
func Interpolate(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Interpolate(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Interpolate(val, vars)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = interpolateString(val, vars)
		}
		return out
	default:
		return value
	}
}

// InterpolateString is Interpolate for text that must stay text.
func InterpolateString(s string, vars map[string]any) string {
	return Stringify(interpolateString(s, vars))
}

func interpolateString(s string, vars map[string]any) any {
	if !strings.Contains(s, "{{") {
		return s
	}

	if m := templateRef.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		if v, ok := expression.Lookup(vars, s[m[2]:m[3]]); ok {
			return v
		}
		return s
	}

	return templateRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := templateRef.FindStringSubmatch(ref)[1]
		if v, ok := expression.Lookup(vars, name); ok {
			return Stringify(v)
		}
		return ref
	})
}

// Stringify renders a variable for embedding in text. Objects and arrays
// are rendered as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
