package runtime

import (
	"testing"
	"time"
)

func TestMapToStruct_ActionConfig(t *testing.T) {
	input := map[string]any{
		"integration":     "slack",
		"method":          "chat.postMessage",
		"params":          map[string]any{"channel": "#ops", "text": "{{ message }}"},
		"output_variable": "posted",
	}

	var cfg ActionConfig
	if err := mapToStruct(input, &cfg); err != nil {
		t.Fatalf("mapToStruct failed: %v", err)
	}

	if cfg.Integration != "slack" || cfg.Method != "chat.postMessage" {
		t.Errorf("unexpected action config %+v", cfg)
	}
	if cfg.Params["channel"] != "#ops" {
		t.Errorf("Expected channel '#ops', got '%v'", cfg.Params["channel"])
	}
	if cfg.OutputVariable != "posted" {
		t.Errorf("Expected output_variable 'posted', got '%s'", cfg.OutputVariable)
	}
}

func TestMapToStruct_TypeCoercion(t *testing.T) {
	var cfg DelayConfig
	if err := mapToStruct(map[string]any{"seconds": "1.5"}, &cfg); err != nil {
		t.Fatalf("mapToStruct failed: %v", err)
	}
	if cfg.Seconds != 1.5 {
		t.Errorf("Expected seconds 1.5, got %v", cfg.Seconds)
	}
}

func TestMapToStruct_NestedSteps(t *testing.T) {
	input := map[string]any{
		"source": "{{ contacts }}",
		"body": []any{
			map[string]any{
				"id":       "notify",
				"type":     "action",
				"on_error": "continue",
				"config":   map[string]any{"integration": "gmail", "method": "send"},
			},
		},
	}

	var cfg LoopConfig
	if err := mapToStruct(input, &cfg); err != nil {
		t.Fatalf("mapToStruct failed: %v", err)
	}

	if cfg.Source != "{{ contacts }}" {
		t.Errorf("Expected source to be kept verbatim, got %v", cfg.Source)
	}
	if len(cfg.Body) != 1 {
		t.Fatalf("Expected 1 body step, got %d", len(cfg.Body))
	}
	step := cfg.Body[0]
	if step.ID != "notify" || step.Type != StepAction || step.Policy() != OnErrorContinue {
		t.Errorf("unexpected nested step %+v", step)
	}
	if step.Config["integration"] != "gmail" {
		t.Errorf("nested config not decoded: %v", step.Config)
	}
}

func TestMapToStructFromYAML_Duration(t *testing.T) {
	type settings struct {
		Timeout time.Duration `yaml:"timeout"`
		Window  time.Duration `yaml:"window"`
	}

	var result settings
	if err := mapToStructFromYAML(map[string]any{"timeout": "30s", "window": "5m"}, &result); err != nil {
		t.Fatalf("mapToStructFromYAML failed: %v", err)
	}
	if result.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", result.Timeout)
	}
	if result.Window != 5*time.Minute {
		t.Errorf("Expected window 5m, got %v", result.Window)
	}
}

func TestMapToStruct_InvalidInput(t *testing.T) {
	var cfg ActionConfig
	if err := mapToStruct(map[string]any{"params": "not-a-map"}, &cfg); err == nil {
		t.Error("Expected error decoding a string into a map, got nil")
	}
}

func TestToStringValueMap(t *testing.T) {
	got := ToStringValueMap(map[string]any{
		"token":   "xoxb",
		"team_id": 42,
		"ratio":   0.25,
		"enabled": true,
		"missing": nil,
		"scopes":  []any{"chat:write"},
	})

	want := map[string]string{
		"token":   "xoxb",
		"team_id": "42",
		"ratio":   "0.25",
		"enabled": "true",
		"missing": "",
		"scopes":  `["chat:write"]`,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %q: got %q, want %q", k, got[k], v)
		}
	}
}
