package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a node of a parsed transform expression
type Expr interface {
	exprNode()
}

// Name is a bare identifier (only dataset roots are meaningful)
type Name struct {
	Name string
}

// Attr is attribute access: X.Name
type Attr struct {
	X    Expr
	Name string
}

// CallExpr is a method call: Fn(args...)
type CallExpr struct {
	Fn     Expr
	Args   []Expr
	Kwargs []Kwarg
}

// Kwarg is a keyword argument of a call
type Kwarg struct {
	Name  string
	Value Expr
}

// IndexExpr is subscription: X[a] or X[a, b]
type IndexExpr struct {
	X     Expr
	Index []Expr
}

// Literal holds a string, float64, bool or nil value
type Literal struct {
	Value any
}

// ListExpr is a list display [a, b]
type ListExpr struct {
	Elems []Expr
}

// DictExpr is a dict display {k: v}
type DictExpr struct {
	Keys   []Expr
	Values []Expr
}

// BinaryExpr is a comparison or an element-wise & / |
type BinaryExpr struct {
	Op   string
	X, Y Expr
}

// UnaryExpr is ~X or -X
type UnaryExpr struct {
	Op string
	X  Expr
}

func (*Name) exprNode()       {}
func (*Attr) exprNode()       {}
func (*CallExpr) exprNode()   {}
func (*IndexExpr) exprNode()  {}
func (*Literal) exprNode()    {}
func (*ListExpr) exprNode()   {}
func (*DictExpr) exprNode()   {}
func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits src into tokens
func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(rs) && (rs[i] == '_' || unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, string(rs[start:i]), start})

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.' || rs[i] == '_') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				i++
				if i < len(rs) && (rs[i] == '+' || rs[i] == '-') {
					i++
				}
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			toks = append(toks, token{tokNumber, strings.ReplaceAll(string(rs[start:i]), "_", ""), start})

		case r == '\'' || r == '"':
			start := i
			s, next, err := lexString(rs, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, s, start})
			i = next

		default:
			if i+1 < len(rs) {
				two := string(rs[i : i+2])
				switch two {
				case "==", "!=", "<=", ">=":
					toks = append(toks, token{tokOp, two, i})
					i += 2
					continue
				}
			}
			if strings.ContainsRune(".,()[]{}:=<>&|~-", r) {
				toks = append(toks, token{tokOp, string(r), i})
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrUnsupportedExpression, r, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(rs)})
	return toks, nil
}

func lexString(rs []rune, i int) (string, int, error) {
	quote := rs[i]
	var sb strings.Builder
	for j := i + 1; j < len(rs); j++ {
		switch rs[j] {
		case quote:
			return sb.String(), j + 1, nil
		case '\\':
			j++
			if j >= len(rs) {
				break
			}
			switch rs[j] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(rs[j])
			}
		default:
			sb.WriteRune(rs[j])
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string at %d", ErrUnsupportedExpression, i)
}

type parser struct {
	toks []token
	pos  int
}

// ParseExpr parses a one-line transform expression
func ParseExpr(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return expr, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokOp || t.text != text {
		return p.errorf(t, "expected %q, got %q", text, t.text)
	}
	return nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return fmt.Errorf("%w: %s at %d", ErrUnsupportedExpression, fmt.Sprintf(format, args...), t.pos)
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseCompare()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseCompare() (Expr, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && compareOps[t.text]; t = p.peek() {
		p.next()
		y, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: t.text, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		p.next()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: "|", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("&") {
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: "&", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isOp("~") || p.isOp("-") {
		op := p.next().text
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(*Literal); ok && op == "-" {
			if f, ok := lit.Value.(float64); ok {
				return &Literal{Value: -f}, nil
			}
		}
		return &UnaryExpr{Op: op, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.next()
			t := p.next()
			if t.kind != tokIdent {
				return nil, p.errorf(t, "expected attribute name")
			}
			x = &Attr{X: x, Name: t.text}

		case p.isOp("("):
			p.next()
			call := &CallExpr{Fn: x}
			if err := p.parseArgs(call); err != nil {
				return nil, err
			}
			x = call

		case p.isOp("["):
			p.next()
			idx := &IndexExpr{X: x}
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				idx.Index = append(idx.Index, e)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			x = idx

		default:
			return x, nil
		}
	}
}

func (p *parser) parseArgs(call *CallExpr) error {
	for !p.isOp(")") {
		t := p.peek()
		if t.kind == tokIdent && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "=" {
			p.pos += 2
			v, err := p.parseExpr()
			if err != nil {
				return err
			}
			call.Kwargs = append(call.Kwargs, Kwarg{Name: t.text, Value: v})
		} else {
			if len(call.Kwargs) > 0 {
				return p.errorf(t, "positional argument after keyword argument")
			}
			v, err := p.parseExpr()
			if err != nil {
				return err
			}
			call.Args = append(call.Args, v)
		}
		if !p.isOp(",") {
			break
		}
		p.next()
	}
	return p.expect(")")
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "True":
			return &Literal{Value: true}, nil
		case "False":
			return &Literal{Value: false}, nil
		case "None":
			return &Literal{Value: nil}, nil
		}
		return &Name{Name: t.text}, nil

	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "bad number %q", t.text)
		}
		return &Literal{Value: f}, nil

	case tokString:
		s := t.text
		// adjacent string literals concatenate
		for p.peek().kind == tokString {
			s += p.next().text
		}
		return &Literal{Value: s}, nil

	case tokOp:
		switch t.text {
		case "(":
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return e, nil

		case "[":
			list := &ListExpr{}
			for !p.isOp("]") {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				list.Elems = append(list.Elems, e)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return list, nil

		case "{":
			dict := &DictExpr{}
			for !p.isOp("}") {
				k, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expect(":"); err != nil {
					return nil, err
				}
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				dict.Keys = append(dict.Keys, k)
				dict.Values = append(dict.Values, v)
				if !p.isOp(",") {
					break
				}
				p.next()
			}
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			return dict, nil
		}
	}
	if t.kind == tokEOF {
		return nil, p.errorf(t, "unexpected end of expression")
	}
	return nil, p.errorf(t, "unexpected %q", t.text)
}
