package runtime

import "testing"

func TestInterpolate(t *testing.T) {
	vars := map[string]any{
		"name":  "Ada",
		"count": 3,
		"ratio": 0.25,
		"user":  map[string]any{"email": "ada@example.com", "tags": []any{"admin", "ops"}},
		"items": []any{"a", "b"},
		"empty": nil,
	}

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"plain text untouched", "hello", "hello"},
		{"exact reference keeps type", "{{count}}", 3},
		{"exact reference with spaces", "{{ count }}", 3},
		{"exact reference to array", "{{items}}", []any{"a", "b"}},
		{"embedded reference", "Hi {{name}}!", "Hi Ada!"},
		{"embedded number", "n={{count}} r={{ratio}}", "n=3 r=0.25"},
		{"nested path", "{{user.email}}", "ada@example.com"},
		{"array index", "{{user.tags[1]}}", "ops"},
		{"embedded object renders as JSON", "items: {{items}}", `items: ["a","b"]`},
		{"unresolved left verbatim", "Hi {{missing}}", "Hi {{missing}}"},
		{"unresolved exact left verbatim", "{{missing}}", "{{missing}}"},
		{"nil embeds as empty", "[{{empty}}]", "[]"},
		{"non-string untouched", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.input, vars)
			if Stringify(got) != Stringify(tt.want) {
				t.Errorf("Interpolate(%v) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInterpolate_Recurses(t *testing.T) {
	vars := map[string]any{"channel": "#ops", "id": 7}
	params := map[string]any{
		"channel": "{{channel}}",
		"blocks":  []any{map[string]any{"text": "ticket {{id}}"}},
		"meta":    map[string]string{"ref": "{{id}}"},
	}

	got, ok := Interpolate(params, vars).(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", got)
	}
	if got["channel"] != "#ops" {
		t.Errorf("channel = %v", got["channel"])
	}
	block := got["blocks"].([]any)[0].(map[string]any)
	if block["text"] != "ticket 7" {
		t.Errorf("blocks[0].text = %v", block["text"])
	}
	if meta := got["meta"].(map[string]any); meta["ref"] != 7 {
		t.Errorf("meta.ref = %#v, want 7", meta["ref"])
	}
	if params["channel"] != "{{channel}}" {
		t.Error("input must not be mutated")
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{1.5, "1.5"},
		{float64(100), "100"},
		{0.15, "0.15"},
		{int64(9), "9"},
		{map[string]any{"a": 1}, `{"a":1}`},
		{[]string{"x"}, `["x"]`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
