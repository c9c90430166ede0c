package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const welcomeYAML = `
id: welcome
name: Welcome new users
variables:
  channel: "#general"
  users: [ada, grace]
steps:
  - id: each_user
    type: loop
    config:
      source: "{{users}}"
      body:
        - id: post
          type: action
          on_error: retry
          config:
            integration: slack
            method: chat.postMessage
            params:
              channel: "{{channel}}"
              text: "Welcome {{loop_item}}"
  - id: pause
    type: delay
    config:
      seconds: 0.5
  - id: check
    type: condition
    config:
      expression: "{{channel}} == '#general'"
      if_true:
        - id: summarize
          type: agent_call
          config:
            agent_id: writer
            prompt: "Summarize {{users}}"
            output_variable: summary
`

func TestParseBlueprint_YAML(t *testing.T) {
	bp, err := ParseBlueprint([]byte(welcomeYAML), ".yaml")
	if err != nil {
		t.Fatalf("ParseBlueprint: %v", err)
	}
	if err := bp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if bp.ID != "welcome" || len(bp.Steps) != 3 {
		t.Fatalf("unexpected blueprint: %+v", bp)
	}
	if users, ok := bp.Variables["users"].([]any); !ok || len(users) != 2 {
		t.Errorf("variables.users = %#v", bp.Variables["users"])
	}

	loop, err := DecodeStepConfig[LoopConfig](bp.Steps[0])
	if err != nil {
		t.Fatalf("decode loop: %v", err)
	}
	if loop.Source != "{{users}}" || len(loop.Body) != 1 {
		t.Fatalf("loop config = %+v", loop)
	}
	if loop.Body[0].Policy() != OnErrorRetry {
		t.Errorf("body policy = %s, want retry", loop.Body[0].Policy())
	}

	delay, err := DecodeStepConfig[DelayConfig](bp.Steps[1])
	if err != nil {
		t.Fatalf("decode delay: %v", err)
	}
	if delay.Seconds != 0.5 {
		t.Errorf("delay = %v, want 0.5", delay.Seconds)
	}
	if bp.Steps[1].Policy() != OnErrorStop {
		t.Errorf("default policy = %s, want stop", bp.Steps[1].Policy())
	}
}

func TestParseBlueprint_JSON(t *testing.T) {
	doc := `{"id":"j","steps":[{"id":"wait","type":"delay","config":{"seconds":1}}]}`
	bp, err := ParseBlueprint([]byte(doc), ".JSON")
	if err != nil {
		t.Fatalf("ParseBlueprint: %v", err)
	}
	if err := bp.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBlueprint_Validate(t *testing.T) {
	step := func(id string, typ StepType, cfg map[string]any) Step {
		return Step{ID: id, Type: typ, Config: cfg}
	}
	act := map[string]any{"integration": "slack", "method": "chat.postMessage"}

	tests := []struct {
		name     string
		bp       *Blueprint
		wantCode FlowErrorCode
		wantStep string
	}{
		{
			name: "valid",
			bp:   &Blueprint{ID: "ok", Steps: []Step{step("a", StepAction, act)}},
		},
		{
			name:     "nil blueprint",
			bp:       nil,
			wantCode: ErrorCodeInvalidBlueprint,
		},
		{
			name:     "missing id",
			bp:       &Blueprint{Steps: []Step{step("a", StepAction, act)}},
			wantCode: ErrorCodeInvalidBlueprint,
		},
		{
			name:     "no steps",
			bp:       &Blueprint{ID: "empty"},
			wantCode: ErrorCodeInvalidBlueprint,
		},
		{
			name:     "bad policy",
			bp:       &Blueprint{ID: "p", Steps: []Step{{ID: "a", Type: StepAction, OnError: "ignore", Config: act}}},
			wantCode: ErrorCodeInvalidBlueprint,
		},
		{
			name:     "unknown type",
			bp:       &Blueprint{ID: "u", Steps: []Step{step("a", "webhook", nil)}},
			wantCode: ErrorCodeUnknownStepType,
			wantStep: "a",
		},
		{
			name:     "action without method",
			bp:       &Blueprint{ID: "m", Steps: []Step{step("a", StepAction, map[string]any{"integration": "slack"})}},
			wantCode: ErrorCodeInvalidStepConfig,
			wantStep: "a",
		},
		{
			name:     "negative delay",
			bp:       &Blueprint{ID: "d", Steps: []Step{step("wait", StepDelay, map[string]any{"seconds": -1})}},
			wantCode: ErrorCodeInvalidStepConfig,
			wantStep: "wait",
		},
		{
			name: "invalid nested step",
			bp: &Blueprint{ID: "n", Steps: []Step{step("gate", StepCondition, map[string]any{
				"expression": "true",
				"if_false": []any{
					map[string]any{"id": "inner", "type": "agent_call", "config": map[string]any{"agent_id": "a"}},
				},
			})}},
			wantCode: ErrorCodeInvalidStepConfig,
			wantStep: "inner",
		},
		{
			name: "duplicate nested ids",
			bp: &Blueprint{ID: "dup", Steps: []Step{step("each", StepLoop, map[string]any{
				"source": "items",
				"body": []any{
					map[string]any{"id": "x", "type": "delay", "config": map[string]any{"seconds": 0}},
					map[string]any{"id": "x", "type": "delay", "config": map[string]any{"seconds": 0}},
				},
			})}},
			wantCode: ErrorCodeInvalidStepConfig,
			wantStep: "each",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bp.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			fe, ok := AsFlowError(err)
			if !ok {
				t.Fatalf("error %v is not a FlowError", err)
			}
			if fe.Type != ErrorTypeValidation {
				t.Errorf("type = %s, want validation", fe.Type)
			}
			if fe.Code != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", fe.Code, tt.wantCode, err)
			}
			if fe.Step != tt.wantStep {
				t.Errorf("step = %q, want %q", fe.Step, tt.wantStep)
			}
		})
	}
}

func TestFileLoader_LoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("welcome.yaml", welcomeYAML)
	write("wait.json", `{"id":"wait","steps":[{"id":"w","type":"delay","config":{"seconds":1}}]}`)
	write("notes.txt", "ignored")

	loader := NewFileLoader()
	blueprints, err := loader.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(blueprints) != 2 {
		t.Fatalf("loaded %d blueprints, want 2", len(blueprints))
	}
	if _, ok := blueprints["welcome"]; !ok {
		t.Error("welcome blueprint missing")
	}

	write("again.yml", "id: wait\nsteps:\n  - id: w\n    type: delay\n")
	if _, err := loader.LoadDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}
