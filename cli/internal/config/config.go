package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BDNK1/autoflow/cli/internal/security"
	httptransport "github.com/BDNK1/autoflow/plugins/http"
	"github.com/BDNK1/autoflow/plugins/llm"
	"github.com/BDNK1/autoflow/plugins/mongostore"
	"github.com/BDNK1/autoflow/plugins/sqlstore"
	"github.com/BDNK1/autoflow/runtime"
	"github.com/BDNK1/autoflow/runtime/engine/blueprint"
	"github.com/BDNK1/autoflow/runtime/server"
	"github.com/BDNK1/autoflow/runtime/telemetry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	FileName             = "autoflow.yaml"
	EnvFileName          = ".env"
	DefaultBlueprintsDir = "blueprints"
)

const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreMongo  = "mongo"
)

// AppConfig is the autoflow.yaml document.
type AppConfig struct {
	Name      string               `yaml:"name"`
	Log       LogConfig            `yaml:"log"`
	Engine    blueprint.Config     `yaml:"engine"`
	HTTP      httptransport.Config `yaml:"http"`
	LLM       llm.Config           `yaml:"llm"`
	Store     StoreConfig          `yaml:"store"`
	Telemetry telemetry.Config     `yaml:"telemetry"`
	Server    server.Config        `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

// StoreConfig selects the backend for credentials, agents and run
// progress. Only the section matching Driver is validated.
type StoreConfig struct {
	Driver string            `yaml:"driver" default:"memory" validate:"oneof=memory sql mongo"`
	Seed   string            `yaml:"seed"`
	SQL    sqlstore.Config   `yaml:"sql" validate:"-"`
	Mongo  mongostore.Config `yaml:"mongo" validate:"-"`
}

// Load reads autoflow.yaml from projectDir. Variables from projectDir/.env
// are loaded first without overriding the process environment; a missing
// config file yields the defaults.
func Load(projectDir string) (*AppConfig, error) {
	envPath := filepath.Join(projectDir, EnvFileName)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	configPath := filepath.Join(projectDir, FileName)
	if err := security.ValidatePathWithinBoundary(projectDir, configPath); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	raw := map[string]any{}
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s from %q: %w", FileName, configPath, err)
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
		}
	}
	return Parse(projectDir, raw)
}

// Parse builds the config from an already decoded document.
func Parse(projectDir string, raw map[string]any) (*AppConfig, error) {
	expanded, err := ExpandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var cfg AppConfig
	values, _ := expanded.(map[string]any)
	if err := runtime.InitializeConfig(&cfg, values); err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	if err := cfg.resolvePaths(projectDir); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = directoryName(projectDir)
	}
	return &cfg, nil
}

func (c *AppConfig) validateStore() error {
	switch c.Store.Driver {
	case StoreSQL:
		if err := runtime.ValidateStruct(c.Store.SQL); err != nil {
			return fmt.Errorf("store.sql: %w", err)
		}
	case StoreMongo:
		if err := runtime.ValidateStruct(c.Store.Mongo); err != nil {
			return fmt.Errorf("store.mongo: %w", err)
		}
	}
	return nil
}

// resolvePaths makes file references relative to the project directory
// and rejects any that escape it.
func (c *AppConfig) resolvePaths(projectDir string) error {
	if c.Engine.BlueprintsDir == "" {
		if info, err := os.Stat(filepath.Join(projectDir, DefaultBlueprintsDir)); err == nil && info.IsDir() {
			c.Engine.BlueprintsDir = DefaultBlueprintsDir
		}
	}

	for _, p := range []*string{&c.Engine.BlueprintsDir, &c.Engine.CatalogPath, &c.Store.Seed} {
		if *p == "" {
			continue
		}
		resolved, err := security.Resolve(projectDir, *p)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		*p = resolved
	}
	return nil
}

func directoryName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "autoflow"
	}
	return filepath.Base(abs)
}
