package query

import (
	"fmt"
	"strings"
)

// ParseResult holds the outcome of parsing a search query.
//
// Parsing never fails hard: when the input is malformed the whole string is
// treated as a single literal term, IsLogicalQuery is false, and Err carries
// the diagnostic for upstream display.
type ParseResult struct {
	// AST is the parsed query tree. Never nil for non-empty input.
	AST *Node

	// IsLogicalQuery is true when the query used boolean operators or
	// grouping and parsed cleanly.
	IsLogicalQuery bool

	// Terms are the literal term values, depth-first left-to-right.
	Terms []string

	// Err is the parse error when the query degraded to a literal term.
	Err error

	// Raw is the original query string.
	Raw string
}

type tokenKind int

const (
	tokenTerm tokenKind = iota
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind  tokenKind
	value string // tokenTerm
	exact bool   // tokenTerm: quoted run
}

// Parse compiles a boolean query string into an AST.
//
// Grammar, highest to lowest precedence: parenthesized group, NOT (prefix),
// AND (left-associative infix), OR (left-associative infix). Terms are
// whitespace-delimited; a double-quoted run is one exact-match term. Operator
// keywords are case-insensitive; quoted operator-like text is a plain term.
func Parse(queryStr string) *ParseResult {
	result := &ParseResult{Raw: queryStr}

	trimmed := strings.TrimSpace(queryStr)
	if trimmed == "" {
		return result
	}

	tokens := tokenize(trimmed)

	// Without operators or grouping the whole string is one term, exact when
	// fully quote-wrapped.
	if !hasLogicalTokens(tokens) {
		value, exact := literalTerm(trimmed)
		result.AST = Term(value, exact)
		result.Terms = []string{value}
		return result
	}

	p := &parser{tokens: tokens}
	ast, err := p.parseExpression()
	if err == nil && p.pos < len(p.tokens) {
		err = fmt.Errorf("unexpected token %q after expression", p.describe(p.pos))
	}
	if err != nil {
		// Degrade to a literal search for the raw string, keeping the error
		// for diagnostics.
		value, exact := literalTerm(trimmed)
		result.AST = Term(value, exact)
		result.Terms = []string{value}
		result.Err = err
		return result
	}

	result.AST = ast
	result.IsLogicalQuery = true
	result.Terms = ExtractTerms(ast)
	return result
}

// tokenize splits the input into operator, parenthesis, and term tokens.
// Double quotes group whitespace-containing runs into a single exact term.
func tokenize(input string) []token {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenLParen})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenRParen})
			i++
		case r == '"':
			// Quoted exact term, closing quote optional at end of input
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			tokens = append(tokens, token{kind: tokenTerm, value: string(runes[i+1 : j]), exact: true})
			if j < len(runes) {
				j++ // consume closing quote
			}
			i = j
		default:
			j := i
			for j < len(runes) && !isBoundary(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{kind: tokenAnd})
			case "OR":
				tokens = append(tokens, token{kind: tokenOr})
			case "NOT":
				tokens = append(tokens, token{kind: tokenNot})
			default:
				tokens = append(tokens, token{kind: tokenTerm, value: word})
			}
			i = j
		}
	}
	return tokens
}

func isBoundary(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ')' || r == '"'
}

// hasLogicalTokens reports whether any operator keyword or grouping is present
func hasLogicalTokens(tokens []token) bool {
	for _, t := range tokens {
		if t.kind != tokenTerm {
			return true
		}
	}
	return false
}

// literalTerm strips a fully quote-wrapped string down to its contents,
// flagging it exact
func literalTerm(trimmed string) (string, bool) {
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		inner := trimmed[1 : len(trimmed)-1]
		if !strings.Contains(inner, `"`) {
			return inner, true
		}
	}
	return trimmed, false
}

// parser is a recursive-descent parser over the token stream
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) describe(pos int) string {
	if pos >= len(p.tokens) {
		return "end of query"
	}
	t := p.tokens[pos]
	switch t.kind {
	case tokenAnd:
		return "AND"
	case tokenOr:
		return "OR"
	case tokenNot:
		return "NOT"
	case tokenLParen:
		return "("
	case tokenRParen:
		return ")"
	default:
		return t.value
	}
}

// parseExpression parses an OR chain (lowest precedence, left-associative)
func (p *parser) parseExpression() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or(left, right)
	}
}

// parseAnd parses an AND chain (left-associative)
func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And(left, right)
	}
}

// parseNot parses a prefix NOT or falls through to a primary
func (p *parser) parseNot() (*Node, error) {
	t, ok := p.peek()
	if ok && t.kind == tokenNot {
		p.pos++
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	}
	return p.parsePrimary()
}

// parsePrimary parses a parenthesized group or a term leaf
func (p *parser) parsePrimary() (*Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of query, expected a term or group")
	}
	switch t.kind {
	case tokenLParen:
		p.pos++
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokenRParen {
			return nil, fmt.Errorf("unbalanced parentheses: missing )")
		}
		p.pos++
		return inner, nil
	case tokenTerm:
		p.pos++
		return Term(t.value, t.exact), nil
	case tokenRParen:
		return nil, fmt.Errorf("unbalanced parentheses: unexpected )")
	default:
		return nil, fmt.Errorf("dangling operator %s", p.describe(p.pos))
	}
}
