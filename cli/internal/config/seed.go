package config

import (
	"fmt"
	"os"

	"github.com/BDNK1/autoflow/runtime"
	"gopkg.in/yaml.v3"
)

// Seed lists credentials and agents to load into the store at startup.
// String values may reference the environment like autoflow.yaml does.
type Seed struct {
	Credentials []SeedCredential `yaml:"credentials"`
	Agents      []SeedAgent      `yaml:"agents"`
}

type SeedCredential struct {
	UserID   string            `yaml:"user_id"`
	Platform string            `yaml:"platform"`
	Fields   map[string]string `yaml:"fields"`
	// Inactive defaults to false so seeded credentials are usable.
	Inactive bool `yaml:"inactive"`
}

type SeedAgent struct {
	ID          string `yaml:"id"`
	LLMProvider string `yaml:"llm_provider"`
	Model       string `yaml:"model"`
	APIKey      string `yaml:"api_key"`
	AgentRules  string `yaml:"agent_rules"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	expanded, err := ExpandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("seed file: %w", err)
	}

	// round-trip through YAML so the typed structs get their tags applied
	data, err = yaml.Marshal(expanded)
	if err != nil {
		return nil, err
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}
	return &seed, nil
}

func (c SeedCredential) Record() runtime.CredentialRecord {
	return runtime.CredentialRecord{
		UserID:   c.UserID,
		Platform: c.Platform,
		Fields:   c.Fields,
		IsActive: !c.Inactive,
	}
}

func (a SeedAgent) Agent() runtime.Agent {
	return runtime.Agent{
		ID:          a.ID,
		LLMProvider: a.LLMProvider,
		Model:       a.Model,
		APIKey:      a.APIKey,
		AgentRules:  a.AgentRules,
	}
}
