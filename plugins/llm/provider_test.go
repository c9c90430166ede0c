package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/BDNK1/autoflow/runtime"
)

type recordingModel struct {
	messages []llms.MessageContent
	reply    string
	err      error
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply, StopReason: "stop"}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() Config {
	return Config{OllamaURL: "http://localhost:11434", MaxTokens: 256, Temperature: 0.2}
}

func TestProvider_Complete(t *testing.T) {
	model := &recordingModel{reply: "Done."}
	p := NewProvider(testConfig(), quiet, WithModelFactory(func(agent *runtime.Agent) (llms.Model, error) {
		return model, nil
	}))

	agent := &runtime.Agent{ID: "writer", LLMProvider: "openai", Model: "gpt-4o-mini", AgentRules: "Be brief."}
	text, err := p.Complete(context.Background(), agent, "Summarize the week")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Done." {
		t.Errorf("text = %q", text)
	}

	if len(model.messages) != 2 {
		t.Fatalf("sent %d messages, want system + human", len(model.messages))
	}
	if model.messages[0].Role != llms.ChatMessageTypeSystem || model.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("roles = %s, %s", model.messages[0].Role, model.messages[1].Role)
	}
	if part, _ := model.messages[1].Parts[0].(llms.TextContent); part.Text != "Summarize the week" {
		t.Errorf("human part = %#v", model.messages[1].Parts[0])
	}
}

func TestProvider_NoRulesSendsOnlyPrompt(t *testing.T) {
	model := &recordingModel{reply: "ok"}
	p := NewProvider(testConfig(), quiet, WithModelFactory(func(agent *runtime.Agent) (llms.Model, error) {
		return model, nil
	}))

	if _, err := p.Complete(context.Background(), &runtime.Agent{ID: "a", LLMProvider: "ollama"}, "hi"); err != nil {
		t.Fatal(err)
	}
	if len(model.messages) != 1 {
		t.Errorf("sent %d messages, want 1", len(model.messages))
	}
}

func TestProvider_ReusesModels(t *testing.T) {
	built := 0
	p := NewProvider(testConfig(), quiet, WithModelFactory(func(agent *runtime.Agent) (llms.Model, error) {
		built++
		return fake.NewFakeLLM([]string{"reply"}), nil
	}))

	agents := []*runtime.Agent{
		{ID: "a", LLMProvider: "openai", Model: "gpt-4o-mini", APIKey: "k1"},
		{ID: "b", LLMProvider: "OpenAI", Model: "gpt-4o-mini", APIKey: "k1"},
		{ID: "c", LLMProvider: "openai", Model: "gpt-4o", APIKey: "k1"},
	}
	for _, a := range agents {
		text, err := p.Complete(context.Background(), a, "x")
		if err != nil || text != "reply" {
			t.Fatalf("Complete(%s) = %q, %v", a.ID, text, err)
		}
	}
	if built != 2 {
		t.Errorf("built %d models, want 2", built)
	}
}

func TestProvider_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	p := NewProvider(testConfig(), quiet, WithModelFactory(func(agent *runtime.Agent) (llms.Model, error) {
		return &recordingModel{err: boom}, nil
	}))
	if _, err := p.Complete(context.Background(), &runtime.Agent{LLMProvider: "openai"}, "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped model error", err)
	}

	defaults := NewProvider(testConfig(), quiet)
	if _, err := defaults.Complete(context.Background(), &runtime.Agent{LLMProvider: "palm"}, "x"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("err = %v, want ErrUnsupportedProvider", err)
	}
}

func TestProvider_BuildsKnownProviders(t *testing.T) {
	p := NewProvider(testConfig(), quiet)
	for _, provider := range []string{"openai", "anthropic", "Claude", "ollama"} {
		t.Run(provider, func(t *testing.T) {
			m, err := p.newModel(&runtime.Agent{LLMProvider: provider, Model: "m", APIKey: "sk-test"})
			if err != nil {
				t.Fatalf("newModel: %v", err)
			}
			if m == nil {
				t.Fatal("nil model")
			}
		})
	}
}
