package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvVarSpec is a parsed config value: either a literal or a reference to
// an environment variable with an optional default.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string

	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} as the whole value.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value that may reference the environment.
//
// Supported formats:
//   - ${VAR}         - required environment variable
//   - ${VAR:default} - optional environment variable with default
//   - literal        - anything else
//
// Examples:
//
//	ParseEnvVar("${DATABASE_URL}") -> required env var "DATABASE_URL"
//	ParseEnvVar("${OTEL_ENDPOINT:localhost:4317}") -> env var with default
//	ParseEnvVar("localhost:4317") -> literal value
func ParseEnvVar(value string) (*EnvVarSpec, error) {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}, nil
	}

	varName, defaultPart := matches[1], matches[2]
	if !isValidEnvVarName(varName) {
		return nil, fmt.Errorf("invalid environment variable name: %s", varName)
	}
	return &EnvVarSpec{
		VarName:      varName,
		HasDefault:   defaultPart != "",
		DefaultValue: strings.TrimPrefix(defaultPart, ":"),
	}, nil
}

// isValidEnvVarName accepts [A-Z_][A-Z0-9_]*.
func isValidEnvVarName(name string) bool {
	if name == "" {
		return false
	}
	first := name[0]
	if !((first >= 'A' && first <= 'Z') || first == '_') {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// Resolve returns the value spec stands for, reading the environment
// through lookup. A required variable that is unset is an error.
func (spec *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if spec.IsLiteral {
		return spec.LiteralValue, nil
	}
	if v, ok := lookup(spec.VarName); ok {
		return v, nil
	}
	if spec.HasDefault {
		return spec.DefaultValue, nil
	}
	return "", fmt.Errorf("environment variable %s is required but not set", spec.VarName)
}

// ExpandEnv walks a decoded YAML document and replaces every string value
// written as ${VAR} or ${VAR:default}. Other values are returned unchanged.
func ExpandEnv(value any) (any, error) {
	return expand(value, os.LookupEnv, "")
}

func expand(value any, lookup func(string) (string, bool), path string) (any, error) {
	switch v := value.(type) {
	case string:
		spec, err := ParseEnvVar(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		resolved, err := spec.Resolve(lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			expanded, err := expand(item, lookup, joinPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := expand(item, lookup, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return value, nil
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
