package expression

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenString tokenKind = iota
	tokenNumber
	tokenBoolean
	tokenNull
	tokenVariable
	tokenOperator
)

func (k tokenKind) String() string {
	switch k {
	case tokenString:
		return "string"
	case tokenNumber:
		return "number"
	case tokenBoolean:
		return "boolean"
	case tokenNull:
		return "null"
	case tokenVariable:
		return "variable"
	case tokenOperator:
		return "operator"
	default:
		return "unknown"
	}
}

type token struct {
	kind  tokenKind
	text  string
	value any
}

var twoCharOperators = []string{"==", "!=", "<=", ">=", "&&", "||"}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ':
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(input[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at %d", ErrSyntax, i)
			}
			text := input[i+1 : i+1+end]
			tokens = append(tokens, token{kind: tokenString, text: text, value: text})
			i += end + 2
		case isOperatorStart(c):
			op, ok := matchOperator(input[i:])
			if !ok {
				return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
			}
			tokens = append(tokens, token{kind: tokenOperator, text: op})
			i += len(op)
		case isDigit(c) || (c == '-' && i+1 < len(input) && (isDigit(input[i+1]) || input[i+1] == '.')):
			start := i
			i++
			for i < len(input) && (isDigit(input[i]) || input[i] == '.') {
				i++
			}
			text := input[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, value: n})
		case isIdentStart(c):
			start := i
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			tokens = append(tokens, wordToken(input[start:i]))
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, i)
		}
	}
	return tokens, nil
}

func wordToken(word string) token {
	switch word {
	case "true":
		return token{kind: tokenBoolean, text: word, value: true}
	case "false":
		return token{kind: tokenBoolean, text: word, value: false}
	case "null":
		return token{kind: tokenNull, text: word}
	}
	return token{kind: tokenVariable, text: word}
}

func matchOperator(s string) (string, bool) {
	for _, op := range twoCharOperators {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	switch s[0] {
	case '<', '>', '!', '(', ')':
		return s[:1], true
	}
	return "", false
}

func isOperatorStart(c byte) bool {
	return strings.IndexByte("=!<>&|()", c) >= 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.' || c == '[' || c == ']' || c == '-'
}
