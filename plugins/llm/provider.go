// Package llm implements agent completions on top of langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/BDNK1/autoflow/runtime"
)

var _ runtime.AgentProvider = (*Provider)(nil)

var ErrUnsupportedProvider = errors.New("unsupported llm provider")

// Config holds provider endpoints and generation settings.
type Config struct {
	OpenAIBaseURL    string  `yaml:"openai_base_url" validate:"omitempty,url_format"`
	AnthropicBaseURL string  `yaml:"anthropic_base_url" validate:"omitempty,url_format"`
	OllamaURL        string  `yaml:"ollama_url" default:"http://localhost:11434" validate:"url_format"`
	MaxTokens        int     `yaml:"max_tokens" default:"1024" validate:"gte=1"`
	Temperature      float64 `yaml:"temperature" default:"0.7" validate:"gte=0,lte=2"`
}

// ModelFactory builds the langchaingo model for an agent.
type ModelFactory func(agent *runtime.Agent) (llms.Model, error)

type Option func(*Provider)

func WithModelFactory(f ModelFactory) Option {
	return func(p *Provider) {
		p.factory = f
	}
}

// Provider sends agent prompts to the agent's LLM. Models are built once per
// provider, model and key and reused across runs.
type Provider struct {
	cfg     Config
	l       *slog.Logger
	factory ModelFactory

	mu     sync.Mutex
	models map[string]llms.Model
}

func NewProvider(cfg Config, l *slog.Logger, opts ...Option) *Provider {
	if l == nil {
		l = slog.Default()
	}
	p := &Provider{
		cfg:    cfg,
		l:      l,
		models: make(map[string]llms.Model),
	}
	p.factory = p.newModel
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete runs prompt against the agent's model. The agent's rules are sent
// as the system message.
func (p *Provider) Complete(ctx context.Context, agent *runtime.Agent, prompt string) (string, error) {
	model, err := p.model(agent)
	if err != nil {
		return "", err
	}

	var messages []llms.MessageContent
	if rules := strings.TrimSpace(agent.AgentRules); rules != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, rules))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(p.cfg.MaxTokens),
		llms.WithTemperature(p.cfg.Temperature))
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", agent.LLMProvider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", agent.LLMProvider)
	}

	p.l.DebugContext(ctx, "Agent completion received",
		"agent_id", agent.ID,
		"model", agent.Model,
		"stop_reason", resp.Choices[0].StopReason)
	return resp.Choices[0].Content, nil
}

func (p *Provider) model(agent *runtime.Agent) (llms.Model, error) {
	key := strings.ToLower(agent.LLMProvider) + "|" + agent.Model + "|" + agent.APIKey

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.models[key]; ok {
		return m, nil
	}
	m, err := p.factory(agent)
	if err != nil {
		return nil, err
	}
	p.models[key] = m
	return m, nil
}

func (p *Provider) newModel(agent *runtime.Agent) (llms.Model, error) {
	switch strings.ToLower(agent.LLMProvider) {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(agent.APIKey),
			openai.WithModel(agent.Model),
		}
		if p.cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.cfg.OpenAIBaseURL))
		}
		return openai.New(opts...)
	case "anthropic", "claude":
		opts := []anthropic.Option{
			anthropic.WithToken(agent.APIKey),
			anthropic.WithModel(agent.Model),
		}
		if p.cfg.AnthropicBaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.cfg.AnthropicBaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		return ollama.New(
			ollama.WithModel(agent.Model),
			ollama.WithServerURL(p.cfg.OllamaURL),
		)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, agent.LLMProvider)
	}
}
