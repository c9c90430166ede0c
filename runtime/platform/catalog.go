// Package platform turns a platform name, a declarative catalog and a user's
// credentials into everything needed to address that platform's API.
package platform

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthToken  AuthType = "token"
	AuthAPIKey AuthType = "api_key"
	AuthOAuth2 AuthType = "oauth2"
	AuthBasic  AuthType = "basic"
	AuthCustom AuthType = "custom"
)

const (
	PlacementHeader = "header"
	PlacementQuery  = "query"

	BodyJSON = "json"
	BodyForm = "form"
)

// MethodConfig describes one callable operation of a platform.
type MethodConfig struct {
	Endpoint       string   `yaml:"endpoint" json:"endpoint" validate:"required"`
	HTTPMethod     string   `yaml:"http_method" json:"http_method"`
	RequiredParams []string `yaml:"required_params" json:"required_params"`
	OptionalParams []string `yaml:"optional_params" json:"optional_params"`
}

// Verb returns the upper-cased HTTP method, defaulting to POST.
func (m MethodConfig) Verb() string {
	if m.HTTPMethod == "" {
		return "POST"
	}
	return strings.ToUpper(m.HTTPMethod)
}

// Config is the declarative description of a platform.
type Config struct {
	Name          string                  `yaml:"name" json:"name"`
	BaseURL       string                  `yaml:"base_url" json:"base_url" validate:"required,url"`
	AuthType      AuthType                `yaml:"auth_type" json:"auth_type" validate:"omitempty,oneof=none bearer token api_key oauth2 basic custom"`
	AuthPlacement string                  `yaml:"auth_placement" json:"auth_placement" validate:"omitempty,oneof=header query"`
	HeaderFormat  string                  `yaml:"header_format" json:"header_format"`
	KeyHeader     string                  `yaml:"key_header" json:"key_header"`
	QueryParam    string                  `yaml:"query_param" json:"query_param"`
	Headers       map[string]string       `yaml:"headers" json:"headers"`
	BodyFormat    string                  `yaml:"body_format" json:"body_format" validate:"omitempty,oneof=json form"`
	Methods       map[string]MethodConfig `yaml:"methods" json:"methods" validate:"dive"`
}

// Catalog maps lower-cased platform names to their configuration.
type Catalog map[string]Config

// Lookup finds a platform case-insensitively.
func (c Catalog) Lookup(name string) (Config, bool) {
	if c == nil {
		return Config{}, false
	}
	cfg, ok := c[strings.ToLower(strings.TrimSpace(name))]
	return cfg, ok
}

// Names returns the catalog's platform names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}

// ParseCatalog decodes a YAML or JSON document whose top level maps platform
// names to Config entries. An optional "platforms" wrapper key is accepted.
func ParseCatalog(data []byte) (Catalog, error) {
	var wrapped struct {
		Platforms map[string]Config `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Platforms) > 0 {
		return normalize(wrapped.Platforms), nil
	}

	var raw map[string]Config
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling platform catalog: %w", err)
	}
	return normalize(raw), nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading platform catalog: %w", err)
	}
	return ParseCatalog(data)
}

func normalize(in map[string]Config) Catalog {
	out := make(Catalog, len(in))
	for name, cfg := range in {
		key := strings.ToLower(strings.TrimSpace(name))
		if cfg.Name == "" {
			cfg.Name = key
		}
		methods := make(map[string]MethodConfig, len(cfg.Methods))
		for m, mc := range cfg.Methods {
			methods[strings.ToLower(m)] = mc
		}
		cfg.Methods = methods
		out[key] = cfg
	}
	return out
}
