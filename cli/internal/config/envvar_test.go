package config

import (
	"strings"
	"testing"
)

func TestParseEnvVar(t *testing.T) {
	tests := []struct {
		input       string
		wantVar     string
		wantDefault string
		hasDefault  bool
	}{
		{"${DATABASE_URL}", "DATABASE_URL", "", false},
		{"${_PRIVATE}", "_PRIVATE", "", false},
		{"${LOG_LEVEL:}", "LOG_LEVEL", "", true},
		{"${DB_URL:postgres://localhost:5432/db}", "DB_URL", "postgres://localhost:5432/db", true},
		{"${OTEL_ENDPOINT:127.0.0.1:4317}", "OTEL_ENDPOINT", "127.0.0.1:4317", true},
		{"${GREETING:Hello, World!}", "GREETING", "Hello, World!", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ParseEnvVar(tt.input)
			if err != nil {
				t.Fatalf("ParseEnvVar failed: %v", err)
			}
			if spec.IsLiteral {
				t.Fatal("expected an env var reference")
			}
			if spec.VarName != tt.wantVar || spec.HasDefault != tt.hasDefault || spec.DefaultValue != tt.wantDefault {
				t.Errorf("spec = %+v", spec)
			}
		})
	}
}

func TestParseEnvVar_Literals(t *testing.T) {
	tests := []string{
		"",
		"localhost:4317",
		"${lowercase}",
		"${123VAR}",
		"${VAR-NAME}",
		"${VAR NAME}",
		"$VAR",
		"${VAR",
		"VAR}",
		"${}",
		"prefix ${VAR}",
	}

	for _, input := range tests {
		spec, err := ParseEnvVar(input)
		if err != nil {
			t.Errorf("ParseEnvVar(%q) should not error, got: %v", input, err)
			continue
		}
		if !spec.IsLiteral || spec.LiteralValue != input {
			t.Errorf("ParseEnvVar(%q) = %+v, want literal", input, spec)
		}
	}
}

func TestIsValidEnvVarName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"VALID_NAME", true},
		{"_PRIVATE", true},
		{"VAR123", true},
		{"lowercase", false},
		{"123VAR", false},
		{"VAR-NAME", false},
		{"VAR.NAME", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isValidEnvVarName(tt.name); got != tt.valid {
			t.Errorf("isValidEnvVarName(%q) = %v, want %v", tt.name, got, tt.valid)
		}
	}
}

func TestEnvVarSpec_Resolve(t *testing.T) {
	env := map[string]string{"SET": "from-env", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${SET}", "from-env", false},
		{"${SET:fallback}", "from-env", false},
		{"${EMPTY:fallback}", "", false},
		{"${UNSET:fallback}", "fallback", false},
		{"${UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ParseEnvVar(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			got, err := spec.Resolve(lookup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "DB_URL" {
			return "postgres://db/autoflow", true
		}
		return "", false
	}

	doc := map[string]any{
		"store": map[string]any{
			"driver": "sql",
			"sql":    map[string]any{"connection_string": "${DB_URL}", "max_open_conns": 10},
		},
		"hosts": []any{"${HOST:localhost}", true},
	}

	out, err := expand(doc, lookup, "")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	m := out.(map[string]any)
	sql := m["store"].(map[string]any)["sql"].(map[string]any)
	if sql["connection_string"] != "postgres://db/autoflow" || sql["max_open_conns"] != 10 {
		t.Errorf("sql = %v", sql)
	}
	hosts := m["hosts"].([]any)
	if hosts[0] != "localhost" || hosts[1] != true {
		t.Errorf("hosts = %v", hosts)
	}

	_, err = expand(map[string]any{"llm": map[string]any{"key": "${MISSING}"}}, lookup, "")
	if err == nil || !strings.Contains(err.Error(), "llm.key") {
		t.Errorf("err = %v, want error naming llm.key", err)
	}
}
