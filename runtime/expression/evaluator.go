// Package expression implements the condition language used by blueprint
// condition steps. It is a closed comparison grammar over the run's
// variables and never executes code.
package expression

import (
	"fmt"
	"log/slog"
)

// Evaluator evaluates boolean conditions. It is stateless and safe for
// concurrent use.
type Evaluator struct {
	l *slog.Logger
}

func NewEvaluator(l *slog.Logger) *Evaluator {
	if l == nil {
		l = slog.Default()
	}
	return &Evaluator{l: l}
}

// Evaluate returns the truth value of expression. Rejected or malformed
// expressions evaluate to false and are logged as warnings.
func (e *Evaluator) Evaluate(expression string, vars map[string]any) bool {
	result, err := e.Eval(expression, vars)
	if err != nil {
		e.l.Warn("Expression evaluated to false",
			"expression", expression,
			"error", err)
		return false
	}
	return result
}

// Eval is Evaluate with the failure reason exposed.
func (e *Evaluator) Eval(expression string, vars map[string]any) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = false, fmt.Errorf("%w: %v", ErrSyntax, r)
		}
	}()

	expression = StripTemplates(expression)
	if err := Sanitize(expression); err != nil {
		return false, err
	}

	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}

	p := &parser{tokens: tokens, vars: vars}
	v, err := p.parse()
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}
