package runtime

import (
	"context"
	"testing"
)

func TestExecution_Value(t *testing.T) {
	ctx := context.WithValue(context.Background(), "region", "eu-west-1")
	bp := &Blueprint{ID: "digest", Variables: map[string]any{"region": "us-east-1"}}
	exec := NewExecution(ctx, bp, "run-1", "u1", nil, map[string]any{"channel": "C1"})

	tests := []struct {
		name string
		key  any
		want any
	}{
		{"plain string key reads the run context", "region", "eu-west-1"},
		{"variable key reads the bag", VariableKey("region"), "us-east-1"},
		{"variable key reads inputs", VariableKey("channel"), "C1"},
		{"unknown variable", VariableKey("missing"), nil},
		{"unknown context key", "missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exec.Value(tt.key); got != tt.want {
				t.Errorf("Value(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
