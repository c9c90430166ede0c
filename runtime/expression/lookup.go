package expression

import (
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// Lookup resolves a variable name against vars. An exact key wins; otherwise
// the name is treated as a dotted path into nested objects and arrays, so
// "user.email", "items.0.id" and "items[0].id" all resolve.
func Lookup(vars map[string]any, name string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if v, ok := vars[name]; ok {
		return v, true
	}

	path := indexPattern.ReplaceAllString(name, ".$1")
	path = strings.Trim(path, ".")
	if !strings.Contains(path, ".") {
		if v, ok := vars[path]; ok {
			return v, true
		}
		return nil, false
	}

	container := gabs.Wrap(vars)
	if !container.ExistsP(path) {
		return nil, false
	}
	return container.Path(path).Data(), true
}
