package platform

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// BuildDynamicURL joins base and endpoint, substituting {param}
// placeholders in the path. Parameters not consumed by the path and not
// listed in required are appended as a sorted query string.
func BuildDynamicURL(base, endpoint string, params map[string]any, required []string) string {
	return buildURL(base, endpoint, params, required, nil)
}

func buildURL(base, endpoint string, params map[string]any, required []string, extra map[string]string) string {
	consumed := make(map[string]bool)
	path := placeholderPattern.ReplaceAllStringFunc(endpoint, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok {
			return m
		}
		consumed[name] = true
		return url.PathEscape(formatValue(v))
	})

	var target string
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		target = path
	case path == "":
		target = strings.TrimRight(base, "/")
	default:
		target = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}

	query := url.Values{}
	for k, v := range params {
		if consumed[k] || slices.Contains(required, k) || v == nil {
			continue
		}
		query.Set(k, formatValue(v))
	}
	for k, v := range extra {
		query.Set(k, v)
	}
	if len(query) == 0 {
		return target
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
