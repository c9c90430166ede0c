package expression

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestEvaluate(t *testing.T) {
	vars := map[string]any{
		"a":       "x",
		"b":       "z",
		"count":   10,
		"ratio":   0.5,
		"status":  "active",
		"flag":    true,
		"empty":   "",
		"zero":    0,
		"nothing": nil,
		"user": map[string]any{
			"name": "ada",
			"age":  float64(36),
		},
		"items": []any{"first", "second"},
	}

	tests := []struct {
		name     string
		expr     string
		expected bool
	}{
		{name: "numeric and equality", expr: "5 > 3 && 2 == 2", expected: true},
		{name: "or with one side true", expr: "a == 'x' || b == 'y'", expected: true},
		{name: "or with both sides false", expr: "a == 'y' || b == 'y'", expected: false},
		{name: "greater or equal", expr: "count >= 10", expected: true},
		{name: "less than", expr: "count < 10", expected: false},
		{name: "double quoted string", expr: `status == "active"`, expected: true},
		{name: "not equal", expr: "status != 'paused'", expected: true},
		{name: "bare true variable", expr: "flag", expected: true},
		{name: "bare missing variable", expr: "missing", expected: false},
		{name: "bare empty string", expr: "empty", expected: false},
		{name: "bare zero", expr: "zero", expected: false},
		{name: "negation of missing", expr: "!missing", expected: true},
		{name: "negation of comparison group", expr: "!(count > 3)", expected: false},
		{name: "parentheses change grouping", expr: "(a == 'y' || flag) && count == 10", expected: true},
		{name: "and binds tighter than or", expr: "flag || a == 'y' && b == 'y'", expected: true},
		{name: "loose string number equality", expr: "'10' == count", expected: true},
		{name: "loose boolean number equality", expr: "true == 1", expected: true},
		{name: "undefined equals null", expr: "missing == null", expected: true},
		{name: "null equals nil value", expr: "nothing == null", expected: true},
		{name: "null is not zero", expr: "null == 0", expected: false},
		{name: "undefined is not zero", expr: "missing == 0", expected: false},
		{name: "lexicographic strings", expr: "'abc' < 'abd'", expected: true},
		{name: "numeric when mixed", expr: "'10' < 9", expected: false},
		{name: "NaN never compares", expr: "'abc' > 1", expected: false},
		{name: "float comparison", expr: "ratio <= 0.5", expected: true},
		{name: "negative number", expr: "-1 < zero", expected: true},
		{name: "dotted path", expr: "user.age > 18", expected: true},
		{name: "dotted path string", expr: "user.name == 'ada'", expected: true},
		{name: "indexed path", expr: "items[1] == 'second'", expected: true},
		{name: "dotted index path", expr: "items.0 == 'first'", expected: true},
		{name: "template reference", expr: "{{ count }} > 5", expected: true},
		{name: "operator inside string literal", expr: "a != '>=&&'", expected: true},
		{name: "string literal truthy", expr: "'yes'", expected: true},
	}

	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Eval(tt.expr, vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, result, tt.expected)
			}
		})
	}
}

func TestEvaluate_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr error
	}{
		{name: "script tag", expr: "<script>", wantErr: ErrRejected},
		{name: "constructor access", expr: "a.constructor == 1", wantErr: ErrRejected},
		{name: "proto access", expr: "__proto__ == null", wantErr: ErrRejected},
		{name: "process global", expr: "process.env", wantErr: ErrRejected},
		{name: "case insensitive", expr: "EVAL == 1", wantErr: ErrRejected},
		{name: "call syntax characters", expr: "a == 1; b", wantErr: ErrRejected},
		{name: "arithmetic", expr: "a + 1 > 2", wantErr: ErrRejected},
		{name: "empty", expr: "   ", wantErr: ErrRejected},
		{name: "unterminated string", expr: "a == 'x", wantErr: ErrSyntax},
		{name: "missing paren", expr: "(a == 'x'", wantErr: ErrSyntax},
		{name: "dangling operator", expr: "a ==", wantErr: ErrSyntax},
		{name: "single ampersand", expr: "a & b", wantErr: ErrSyntax},
		{name: "chained comparison", expr: "1 < 2 < 3", wantErr: ErrSyntax},
		{name: "trailing token", expr: "a b", wantErr: ErrSyntax},
	}

	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Eval(tt.expr, map[string]any{"a": "x"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if result {
				t.Errorf("rejected expression evaluated to true")
			}
			if e.Evaluate(tt.expr, map[string]any{"a": "x"}) {
				t.Errorf("Evaluate(%q) = true, want false", tt.expr)
			}
		})
	}
}

func TestEvaluate_NilVariables(t *testing.T) {
	e := NewEvaluator(nil)
	if e.Evaluate("anything == null", nil) != true {
		t.Errorf("expected undefined variable to equal null with nil variable set")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"nil", nil, false},
		{"undefined", Undefined, false},
		{"false", false, false},
		{"zero int", 0, false},
		{"zero float", 0.0, false},
		{"empty string", "", false},
		{"string", "0", true},
		{"negative", -1, true},
		{"empty slice", []any{}, true},
		{"empty map", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truthy(tt.value); got != tt.expected {
				t.Errorf("Truthy(%v) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	vars := map[string]any{
		"user.name": "flat",
		"user":      map[string]any{"name": "nested", "tags": []any{"a", "b"}},
	}

	tests := []struct {
		name   string
		path   string
		want   any
		exists bool
	}{
		{"exact key wins", "user.name", "flat", true},
		{"nested array", "user.tags[1]", "b", true},
		{"missing leaf", "user.email", nil, false},
		{"missing root", "account", nil, false},
		{"index out of range", "user.tags.5", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(vars, tt.path)
			if ok != tt.exists {
				t.Fatalf("Lookup(%q) exists = %v, want %v", tt.path, ok, tt.exists)
			}
			if ok && got != tt.want {
				t.Errorf("Lookup(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func FuzzEvaluate(f *testing.F) {
	seeds := []string{
		"5 > 3 && 2 == 2",
		"a == 'x' || b == 'y'",
		"!(count > 3)",
		"(a == 'y' || flag) && count == 10",
		"'10' == count",
		"missing == null",
		"user.age > 18",
		"items[1] == 'second'",
		"items.0 == 'first'",
		"{{ count }} > 5",
		"a != '>=&&'",
		"-1 < zero",
		"<script>",
		"a.constructor == 1",
		"a == 'x",
		"(a == 'x'",
		"a ==",
		"a & b",
		"1 < 2 < 3",
		"a b",
		"",
		"((((",
		"!!!!flag",
		"items[",
		"'unterminated",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	vars := map[string]any{
		"a":     "x",
		"count": 10,
		"flag":  true,
		"zero":  0,
		"user":  map[string]any{"age": float64(36)},
		"items": []any{"first", "second"},
	}
	e := NewEvaluator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	f.Fuzz(func(t *testing.T, expr string) {
		result, err := e.Eval(expr, vars)
		if err != nil {
			if !errors.Is(err, ErrRejected) && !errors.Is(err, ErrSyntax) {
				t.Fatalf("Eval(%q) returned an unclassified error: %v", expr, err)
			}
			if result {
				t.Fatalf("Eval(%q) = true alongside error %v", expr, err)
			}
		}
		if got := e.Evaluate(expr, vars); got != result {
			t.Fatalf("Evaluate(%q) = %v, Eval = %v", expr, got, result)
		}

		// Eval recovers panics; run the pipeline unguarded so a panic fails
		// the test instead of surfacing as a syntax error.
		stripped := StripTemplates(expr)
		if Sanitize(stripped) != nil {
			return
		}
		tokens, err := tokenize(stripped)
		if err != nil {
			return
		}
		p := &parser{tokens: tokens, vars: vars}
		_, _ = p.parse()
	})
}
