package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/arloliu/yieldfit/errs"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case strings.HasPrefix(src[i:], "<="), strings.HasPrefix(src[i:], ">="),
			strings.HasPrefix(src[i:], "=="), strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{tokOp, src[i : i+2], i})
			i += 2
		case c == '<' || c == '>':
			toks = append(toks, token{tokOp, string(c), i})
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!", i})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(src[i+1:], src[i])
			if end < 0 {
				return nil, errs.Configuration("cut %q: unterminated string at %d", src, i)
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case unicode.IsDigit(c) || c == '.' || c == '-' || c == '+':
			j := i + 1
			for j < len(src) && (isNumberByte(src[j]) || ((src[j] == '-' || src[j] == '+') && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		default:
			return nil, errs.Configuration("cut %q: unexpected %q at %d", src, c, i)
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isNumberByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == 'e' || b == 'E'
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// predicate reports whether entry i passes.
type predicate func(i int) bool

// cutParser is a recursive-descent parser for:
//
//	expr   := and ( "||" and )*
//	and    := unary ( "&&" unary )*
//	unary  := "!" unary | "(" expr ")" | cmp
//	cmp    := operand op operand
//	operand:= ident | number | string
type cutParser struct {
	src  string
	toks []token
	pos  int
	data *Dataset
}

func compileCut(src string, data *Dataset) (predicate, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &cutParser{src: src, toks: toks, data: data}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}

	return pred, nil
}

func (p *cutParser) peek() token {
	return p.toks[p.pos]
}

func (p *cutParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}

	return t
}

func (p *cutParser) errorf(format string, args ...any) error {
	return errs.Configuration("cut %q at %d: %s", p.src, p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *cutParser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(i int) bool { return l(i) || right(i) }
	}

	return left, nil
}

func (p *cutParser) parseAnd() (predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l := left
		left = func(i int) bool { return l(i) && right(i) }
	}

	return left, nil
}

func (p *cutParser) parseUnary() (predicate, error) {
	switch p.peek().kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return func(i int) bool { return !inner(i) }, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected )")
		}
		p.next()

		return inner, nil
	default:
		return p.parseComparison()
	}
}

// operand is either a numeric accessor or a label accessor.
type operand struct {
	num   func(i int) float64
	label func(i int) string
}

func (p *cutParser) parseOperand() (operand, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber, tokString, tokIdent:
		p.next()
	default:
		return operand{}, p.errorf("expected operand, got %q", t.text)
	}

	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return operand{}, errs.Configuration("cut %q: bad number %q", p.src, t.text)
		}

		return operand{num: func(int) float64 { return v }}, nil
	case tokString:
		s := t.text
		return operand{label: func(int) string { return s }}, nil
	default:
		if values, ok := p.data.Column(t.text); ok {
			return operand{num: func(i int) float64 { return values[i] }}, nil
		}
		if labels, ok := p.data.Labels(t.text); ok {
			return operand{label: func(i int) string { return labels[i] }}, nil
		}

		return operand{}, errs.Configuration("cut %q: unknown variable %q", p.src, t.text)
	}
}

func (p *cutParser) parseComparison() (predicate, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOp {
		return nil, p.errorf("expected comparison operator")
	}
	opTok := p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	op := opTok.text
	if left.num != nil && right.num != nil {
		a, b := left.num, right.num
		switch op {
		case "<":
			return func(i int) bool { return a(i) < b(i) }, nil
		case "<=":
			return func(i int) bool { return a(i) <= b(i) }, nil
		case ">":
			return func(i int) bool { return a(i) > b(i) }, nil
		case ">=":
			return func(i int) bool { return a(i) >= b(i) }, nil
		case "==":
			return func(i int) bool { return a(i) == b(i) }, nil
		default:
			return func(i int) bool { return a(i) != b(i) }, nil
		}
	}

	if left.label != nil && right.label != nil {
		a, b := left.label, right.label
		switch op {
		case "==":
			return func(i int) bool { return a(i) == b(i) }, nil
		case "!=":
			return func(i int) bool { return a(i) != b(i) }, nil
		}

		return nil, errs.Configuration("cut %q: operator %s is not defined for labels", p.src, op)
	}

	return nil, errs.Configuration("cut %q: cannot compare a number with a label", p.src)
}
