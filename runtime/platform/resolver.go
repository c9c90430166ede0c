package platform

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrMissingCredential is returned when the credentials lack the secret
	// the platform's auth scheme needs.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUnknownMethod is returned for methods absent from a catalog entry.
	ErrUnknownMethod = errors.New("unknown method")
)

const (
	defaultHeaderFormat = "Bearer {token}"
	defaultKeyHeader    = "X-API-Key"
	defaultQueryParam   = "api_key"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// RequestConfig is the resolved addressing and authentication for one
// platform and one user's credentials.
type RequestConfig struct {
	Platform   string
	BaseURL    string
	Headers    map[string]string
	Query      map[string]string
	BodyFormat string

	methods   map[string]MethodConfig
	heuristic bool
}

// Method returns the configuration of a named method. Platforms resolved
// by heuristics have no method table; every method maps to POST {base}/{method}.
func (rc RequestConfig) Method(name string) (MethodConfig, error) {
	if m, ok := rc.methods[strings.ToLower(name)]; ok {
		return m, nil
	}
	if rc.heuristic {
		return MethodConfig{Endpoint: name, HTTPMethod: "POST"}, nil
	}
	return MethodConfig{}, fmt.Errorf("%w %q for platform %s", ErrUnknownMethod, name, rc.Platform)
}

// BuildURL builds the request URL for endpoint, adding any query
// parameters the auth scheme requires.
func (rc RequestConfig) BuildURL(endpoint string, params map[string]any, required []string) string {
	return buildURL(rc.BaseURL, endpoint, params, required, rc.Query)
}

// Resolve produces the RequestConfig for platform. Catalog entries win;
// unknown platforms fall back to name heuristics.
func Resolve(name string, catalog Catalog, creds map[string]string) (RequestConfig, error) {
	platform := strings.ToLower(strings.TrimSpace(name))
	if cfg, ok := catalog.Lookup(platform); ok {
		return fromCatalog(platform, cfg, creds)
	}
	return fromHeuristics(platform, creds), nil
}

func fromCatalog(platform string, cfg Config, creds map[string]string) (RequestConfig, error) {
	rc := RequestConfig{
		Platform:   platform,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		Headers:    make(map[string]string, len(cfg.Headers)+1),
		Query:      make(map[string]string),
		BodyFormat: cfg.BodyFormat,
		methods:    cfg.Methods,
	}
	if rc.BodyFormat == "" {
		rc.BodyFormat = BodyJSON
	}
	for k, v := range cfg.Headers {
		rc.Headers[k] = substitute(v, creds)
	}

	switch cfg.AuthType {
	case AuthNone:
	case AuthBearer, AuthToken, "":
		secret, ok := findSecret(creds)
		if !ok {
			return rc, missing(platform, cfg.AuthType, "token or api_key")
		}
		format := cfg.HeaderFormat
		if format == "" {
			format = defaultHeaderFormat
		}
		rc.Headers["Authorization"] = stripAuthorizationLabel(fillSecret(format, secret, creds))

	case AuthAPIKey:
		secret, ok := findSecret(creds)
		if !ok {
			return rc, missing(platform, cfg.AuthType, "api_key")
		}
		switch {
		case cfg.AuthPlacement == PlacementQuery:
			param := cfg.QueryParam
			if param == "" {
				param = defaultQueryParam
			}
			rc.Query[param] = secret
		case strings.Contains(strings.ToLower(cfg.HeaderFormat), "authorization"):
			rc.Headers["Authorization"] = stripAuthorizationLabel(fillSecret(cfg.HeaderFormat, secret, creds))
		default:
			header := cfg.KeyHeader
			if header == "" {
				header = defaultKeyHeader
			}
			value := secret
			if cfg.HeaderFormat != "" {
				value = fillSecret(cfg.HeaderFormat, secret, creds)
			}
			rc.Headers[header] = value
		}

	case AuthOAuth2:
		secret := first(creds, "access_token", "token")
		if secret == "" {
			return rc, missing(platform, cfg.AuthType, "access_token")
		}
		rc.Headers["Authorization"] = "Bearer " + secret

	case AuthBasic:
		user, pass := creds["username"], creds["password"]
		if user == "" {
			return rc, missing(platform, cfg.AuthType, "username")
		}
		rc.Headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))

	default:
		resolved := substitute(cfg.HeaderFormat, creds)
		if m := placeholderPattern.FindStringSubmatch(resolved); m != nil {
			return rc, missing(platform, cfg.AuthType, m[1])
		}
		for k, v := range parseHeaderLines(resolved) {
			rc.Headers[k] = v
		}
	}

	return rc, nil
}

func missing(platform string, auth AuthType, field string) error {
	return fmt.Errorf("%w: %s auth for %s requires %s", ErrMissingCredential, auth, platform, field)
}

// findSecret returns the first credential, in field-name order, whose name
// contains "token" or "api_key".
func findSecret(creds map[string]string) (string, bool) {
	fields := make([]string, 0, len(creds))
	for k := range creds {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, f := range fields {
		lower := strings.ToLower(f)
		if (strings.Contains(lower, "token") || strings.Contains(lower, "api_key")) && creds[f] != "" {
			return creds[f], true
		}
	}
	return "", false
}

func first(creds map[string]string, fields ...string) string {
	for _, f := range fields {
		if v := creds[f]; v != "" {
			return v
		}
	}
	return ""
}

// fillSecret substitutes credential fields first, then maps the generic
// {token}, {api_key} and {key} placeholders onto secret.
func fillSecret(format, secret string, creds map[string]string) string {
	out := substitute(format, creds)
	return placeholderPattern.ReplaceAllStringFunc(out, func(m string) string {
		switch strings.ToLower(m[1 : len(m)-1]) {
		case "token", "api_key", "key", "access_token":
			return secret
		}
		return m
	})
}

// substitute replaces {field} with the matching credential, leaving
// unknown placeholders in place.
func substitute(format string, creds map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(format, func(m string) string {
		if v, ok := creds[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

func stripAuthorizationLabel(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= len("authorization:") && strings.EqualFold(v[:len("authorization:")], "authorization:") {
		return strings.TrimSpace(v[len("authorization:"):])
	}
	return v
}

// parseHeaderLines reads "Name: value" pairs separated by newlines.
func parseHeaderLines(s string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers
}
