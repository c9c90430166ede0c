package expression

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrRejected is returned when an expression fails sanitization.
	ErrRejected = errors.New("expression rejected")
	// ErrSyntax is returned for expressions the parser cannot evaluate.
	ErrSyntax = errors.New("expression syntax error")
)

// deniedWords are identifiers associated with code execution or access to the
// host environment. They are matched case-insensitively as whole words.
var deniedWords = []string{
	"function", "eval", "constructor", "prototype", "__proto__", "__defineGetter__",
	"__defineSetter__", "require", "import", "export", "process", "global", "globalThis",
	"window", "document", "script", "setTimeout", "setInterval", "fetch", "XMLHttpRequest",
	"new", "this", "exec", "spawn", "child_process", "Reflect", "Proxy",
}

var (
	deniedPattern   = regexp.MustCompile(`(?i)\b(` + joinQuoted(deniedWords) + `)\b`)
	allowedPattern  = regexp.MustCompile(`^[A-Za-z0-9 .\[\]"'<>=!&|()_-]*$`)
	templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
)

func joinQuoted(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// StripTemplates reduces "{{ name }}" references to the bare variable name so
// conditions can be written with the same syntax as step parameters.
func StripTemplates(expression string) string {
	return templatePattern.ReplaceAllString(expression, "$1")
}

// Sanitize validates an expression before it is tokenized.
func Sanitize(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return fmt.Errorf("%w: empty expression", ErrRejected)
	}
	if m := deniedPattern.FindString(expression); m != "" {
		return fmt.Errorf("%w: denied identifier %q", ErrRejected, m)
	}
	if !allowedPattern.MatchString(expression) {
		return fmt.Errorf("%w: contains characters outside the allowed set", ErrRejected)
	}
	return nil
}
