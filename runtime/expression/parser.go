package expression

import "fmt"

// parser evaluates a token stream by precedence: "||" binds loosest, then
// "&&", then a single comparison per conjunct. Parenthesised groups recurse.
type parser struct {
	tokens []token
	pos    int
	vars   map[string]any
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekOperator(ops ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || t.kind != tokenOperator {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parse() (any, error) {
	v, err := p.or()
	if err != nil {
		return nil, err
	}
	if t, ok := p.peek(); ok {
		return nil, fmt.Errorf("%w: unexpected %s %q", ErrSyntax, t.kind, t.text)
	}
	return v, nil
}

func (p *parser) or() (any, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	if _, ok := p.peekOperator("||"); !ok {
		return left, nil
	}
	result := Truthy(left)
	for {
		if _, ok := p.peekOperator("||"); !ok {
			return result, nil
		}
		p.pos++
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		result = result || Truthy(right)
	}
}

func (p *parser) and() (any, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	if _, ok := p.peekOperator("&&"); !ok {
		return left, nil
	}
	result := Truthy(left)
	for {
		if _, ok := p.peekOperator("&&"); !ok {
			return result, nil
		}
		p.pos++
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		result = result && Truthy(right)
	}
}

func (p *parser) comparison() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOperator("==", "!=", "<", ">", "<=", ">=")
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.unary()
	if err != nil {
		return nil, err
	}
	if next, chained := p.peekOperator("==", "!=", "<", ">", "<=", ">="); chained {
		return nil, fmt.Errorf("%w: chained comparison %q", ErrSyntax, next)
	}

	switch op {
	case "==":
		return LooseEqual(left, right), nil
	case "!=":
		return !LooseEqual(left, right), nil
	default:
		return Compare(op, left, right), nil
	}
}

func (p *parser) unary() (any, error) {
	if _, ok := p.peekOperator("!"); ok {
		p.pos++
		v, err := p.unary()
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	}
	return p.operand()
}

func (p *parser) operand() (any, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	p.pos++

	switch t.kind {
	case tokenString, tokenNumber, tokenBoolean:
		return t.value, nil
	case tokenNull:
		return nil, nil
	case tokenVariable:
		if v, found := Lookup(p.vars, t.text); found {
			return v, nil
		}
		return Undefined, nil
	}

	if t.text != "(" {
		return nil, fmt.Errorf("%w: unexpected operator %q", ErrSyntax, t.text)
	}
	v, err := p.or()
	if err != nil {
		return nil, err
	}
	if _, closed := p.peekOperator(")"); !closed {
		return nil, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
	}
	p.pos++
	return v, nil
}
