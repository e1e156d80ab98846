// Package rules parses and evaluates the harvest-rule condition/action
// mini-language. Conditions are boolean expressions over section state:
//
//	section && hasBlock("summary") || !hasBlock("efficacy")
//
// Actions name a single content pull:
//
//	pullBlock("CLINICAL_STUDY", "efficacy")
//
// The language is closed: no identifiers resolve to anything outside the
// section being evaluated, so rule definitions can never execute code.
package rules

import (
	"fmt"
	"strings"
	"unicode"
)

// Section is the state a condition is evaluated against.
type Section interface {
	Exists() bool
	HasBlock(name string) bool
}

// Condition is a parsed boolean expression ready for evaluation.
type Condition struct {
	root node
	src  string
}

// Action is a parsed pullBlock directive.
type Action struct {
	SourceType string
	BlockID    string
}

// String returns the original condition source.
func (c *Condition) String() string { return c.src }

// Eval evaluates the condition against the given section state.
func (c *Condition) Eval(s Section) bool {
	return c.root.eval(s)
}

type node interface {
	eval(Section) bool
}

type orNode struct{ left, right node }
type andNode struct{ left, right node }
type notNode struct{ inner node }
type sectionNode struct{}
type hasBlockNode struct{ name string }

func (n orNode) eval(s Section) bool    { return n.left.eval(s) || n.right.eval(s) }
func (n andNode) eval(s Section) bool   { return n.left.eval(s) && n.right.eval(s) }
func (n notNode) eval(s Section) bool   { return !n.inner.eval(s) }
func (sectionNode) eval(s Section) bool { return s.Exists() }
func (n hasBlockNode) eval(s Section) bool {
	return s.Exists() && s.HasBlock(n.name)
}

// ParseCondition parses a condition expression.
func ParseCondition(src string) (*Condition, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected %q at end of condition", p.peek().text)
	}
	return &Condition{root: root, src: src}, nil
}

// ParseAction parses a pullBlock(sourceType, blockId) directive.
func ParseAction(src string) (*Action, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if err := p.expect(tokIdent, "pullBlock"); err != nil {
		return nil, err
	}
	if err := p.expect(tokLParen, ""); err != nil {
		return nil, err
	}
	source, err := p.argument()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokComma, ""); err != nil {
		return nil, err
	}
	block, err := p.argument()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen, ""); err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected %q after action", p.peek().text)
	}
	return &Action{SourceType: source, BlockID: block}, nil
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokString
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokKind
	text string
}

func lex(src string) ([]token, error) {
	toks := make([]token, 0, 8)
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!"})
			i++
		case c == '&':
			if i+1 >= len(src) || src[i+1] != '&' {
				return nil, fmt.Errorf("invalid token %q at offset %d", string(c), i)
			}
			toks = append(toks, token{tokAnd, "&&"})
			i += 2
		case c == '|':
			if i+1 >= len(src) || src[i+1] != '|' {
				return nil, fmt.Errorf("invalid token %q at offset %d", string(c), i)
			}
			toks = append(toks, token{tokOr, "||"})
			i += 2
		case c == '"' || c == '\'':
			quote := c
			end := strings.IndexByte(src[i+1:], quote)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end]})
			i += end + 2
		case isIdentByte(c):
			start := i
			for i < len(src) && isIdentByte(src[i]) {
				i++
			}
			toks = append(toks, token{tokIdent, src[start:i]})
		default:
			return nil, fmt.Errorf("invalid character %q at offset %d", string(c), i)
		}
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool { return p.pos >= len(p.toks) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(kind tokKind, text string) error {
	if p.done() {
		return fmt.Errorf("unexpected end of input")
	}
	t := p.next()
	if t.kind != kind || (text != "" && t.text != text) {
		return fmt.Errorf("unexpected token %q", t.text)
	}
	return nil
}

// argument accepts either a quoted string or a bare identifier.
func (p *parser) argument() (string, error) {
	if p.done() {
		return "", fmt.Errorf("unexpected end of input")
	}
	t := p.next()
	if t.kind != tokString && t.kind != tokIdent {
		return "", fmt.Errorf("expected argument, got %q", t.text)
	}
	if t.text == "" {
		return "", fmt.Errorf("empty argument")
	}
	return t.text, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of condition")
	}
	t := p.next()
	switch t.kind {
	case tokNot:
		inner, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, ""); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		switch t.text {
		case "section":
			return sectionNode{}, nil
		case "hasBlock":
			if err := p.expect(tokLParen, ""); err != nil {
				return nil, err
			}
			name, err := p.argument()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen, ""); err != nil {
				return nil, err
			}
			return hasBlockNode{name: name}, nil
		default:
			return nil, fmt.Errorf("unknown predicate %q", t.text)
		}
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}
