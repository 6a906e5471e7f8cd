package consteval

import (
	"fmt"

	"cabi/internal/source"
)

// ParseExpr parses a complete constant expression. Names is consulted only
// to tell casts from parenthesised expressions and may be nil. Node spans
// are offsets into base, which may be the zero span.
func ParseExpr(src string, names Names, base source.Span) (Expr, error) {
	p, err := newParser(src, names, base)
	if err != nil {
		return nil, err
	}
	x, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return x, nil
}

// ParseTypeName parses an abstract type name such as "unsigned long",
// "struct node *" or "char [2][4]".
func ParseTypeName(src string, names Names, base source.Span) (*TypeName, error) {
	p, err := newParser(src, names, base)
	if err != nil {
		return nil, err
	}
	tn, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return tn, nil
}

type parser struct {
	toks    []token
	i       int
	lastEnd int
	names   Names
	base    source.Span
}

func newParser(src string, names Names, base source.Span) (*parser, error) {
	toks, err := scan(src)
	if err != nil {
		err.Span = spanAt(base, err.Pos, err.Pos+1)
		return nil, err
	}
	return &parser{toks: toks, names: names, base: base}, nil
}

func spanAt(base source.Span, start, end int) source.Span {
	return source.Span{File: base.File, Start: base.Start + uint32(start), End: base.Start + uint32(end)}
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
		p.lastEnd = t.pos + len(t.text)
	}
	return t
}

func (p *parser) is(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokKeyword) && t.text == text
}

func (p *parser) errorf(t token, format string, args ...any) *Error {
	err := syntaxError(t.pos, format, args...)
	err.Span = spanAt(p.base, t.pos, t.pos+max(len(t.text), 1))
	return err
}

func (p *parser) expect(text string) error {
	if !p.is(text) {
		return p.errorf(p.peek(), "expected %q, found %s", text, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) expectEOF() error {
	if t := p.peek(); t.kind != tokEOF {
		return p.errorf(t, "unexpected %s after expression", t)
	}
	return nil
}

func (p *parser) mk(start int) node {
	return node{pos: start, span: spanAt(p.base, start, p.lastEnd)}
}

func (p *parser) parseCond() (Expr, error) {
	start := p.peek().pos
	c, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.is("?") {
		return c, nil
	}
	p.next()
	then, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	return &Cond{node: p.mk(start), C: c, Then: then, Else: els}, nil
}

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (p *parser) parseBinary(minPrec int) (Expr, error) {
	start := p.peek().pos
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrec[t.text]
		if t.kind != tokPunct || !ok || prec < minPrec {
			return x, nil
		}
		p.next()
		y, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		x = &Binary{node: p.mk(start), Op: t.text, X: x, Y: y}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokPunct && (t.text == "+" || t.text == "-" || t.text == "~" || t.text == "!"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{node: p.mk(t.pos), Op: t.text, X: x}, nil
	case t.kind == tokPunct && (t.text == "&" || t.text == "*"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{node: p.mk(t.pos), Op: t.text, X: x}, nil
	case t.kind == tokKeyword && t.text == "sizeof":
		p.next()
		if p.is("(") && p.startsTypeName(p.peekAt(1)) {
			p.next()
			tn, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return &SizeofType{node: p.mk(t.pos), Of: tn}, nil
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &SizeofExpr{node: p.mk(t.pos), X: x}, nil
	case t.kind == tokPunct && t.text == "(" && p.startsTypeName(p.peekAt(1)):
		p.next()
		tn, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Cast{node: p.mk(t.pos), To: tn, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		return &IntLit{node: p.mk(t.pos), Text: t.text}, nil
	case tokFloat:
		return &FloatLit{node: p.mk(t.pos), Text: t.text}, nil
	case tokChar:
		return &CharLit{node: p.mk(t.pos), Text: t.text}, nil
	case tokString:
		// adjacent string literals concatenate
		text := t.text
		for p.peek().kind == tokString {
			s := p.next()
			text = text[:len(text)-1] + s.text[1:]
		}
		return &StringLit{node: p.mk(t.pos), Text: text}, nil
	case tokIdent:
		return &Ident{node: p.mk(t.pos), Name: t.text}, nil
	case tokPunct:
		if t.text == "(" {
			x, err := p.parseCond()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, p.errorf(t, "expected expression, found %s", t)
}

var typeKeywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"struct": true, "union": true, "enum": true, "const": true, "volatile": true,
}

func (p *parser) startsTypeName(t token) bool {
	switch t.kind {
	case tokKeyword:
		return typeKeywords[t.text]
	case tokIdent:
		if p.names == nil {
			return false
		}
		_, ok := p.names.Typedef(t.text)
		return ok
	}
	return false
}

func (p *parser) parseTypeName() (*TypeName, error) {
	start := p.peek()
	tn := &TypeName{}
	sawType := false
specs:
	for {
		t := p.peek()
		switch {
		case t.kind == tokKeyword && (t.text == "const" || t.text == "volatile"):
			p.next()
		case t.kind == tokKeyword && (t.text == "struct" || t.text == "union" || t.text == "enum"):
			if sawType {
				return nil, p.errorf(t, "unexpected %s in type name", t)
			}
			p.next()
			tag := p.next()
			if tag.kind != tokIdent {
				return nil, p.errorf(tag, "expected %s tag, found %s", t.text, tag)
			}
			tn.TagKind, tn.Tag = t.text, tag.text
			sawType = true
		case t.kind == tokKeyword && typeKeywords[t.text]:
			if tn.TagKind != "" || tn.Typedef != "" {
				return nil, p.errorf(t, "unexpected %s in type name", t)
			}
			p.next()
			tn.Specs = append(tn.Specs, t.text)
			sawType = true
		case t.kind == tokIdent && !sawType && p.startsTypeName(t):
			p.next()
			tn.Typedef = t.text
			sawType = true
		default:
			break specs
		}
	}
	if !sawType {
		return nil, p.errorf(start, "expected type name, found %s", start)
	}
	for p.is("*") || p.is("const") || p.is("volatile") {
		if p.next().text == "*" {
			tn.Pointers++
		}
	}
	for p.is("[") {
		p.next()
		if p.is("]") {
			p.next()
			tn.Dims = append(tn.Dims, nil)
			continue
		}
		n, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		tn.Dims = append(tn.Dims, n)
	}
	tn.node = p.mk(start.pos)
	return tn, nil
}

// String renders the type name in canonical spelling.
func (tn *TypeName) String() string {
	var s string
	switch {
	case tn.TagKind != "":
		s = tn.TagKind + " " + tn.Tag
	case tn.Typedef != "":
		s = tn.Typedef
	default:
		for i, spec := range tn.Specs {
			if i > 0 {
				s += " "
			}
			s += spec
		}
	}
	if tn.Pointers > 0 || len(tn.Dims) > 0 {
		s += " "
	}
	for range tn.Pointers {
		s += "*"
	}
	for _, d := range tn.Dims {
		if d == nil {
			s += "[]"
			continue
		}
		s += fmt.Sprintf("[%s]", exprString(d))
	}
	return s
}

func exprString(x Expr) string {
	switch x := x.(type) {
	case *IntLit:
		return x.Text
	case *FloatLit:
		return x.Text
	case *CharLit:
		return x.Text
	case *StringLit:
		return x.Text
	case *Ident:
		return x.Name
	case *Unary:
		return x.Op + exprString(x.X)
	case *Binary:
		return "(" + exprString(x.X) + " " + x.Op + " " + exprString(x.Y) + ")"
	case *Cond:
		return "(" + exprString(x.C) + " ? " + exprString(x.Then) + " : " + exprString(x.Else) + ")"
	case *Cast:
		return "(" + x.To.String() + ")" + exprString(x.X)
	case *SizeofType:
		return "sizeof(" + x.Of.String() + ")"
	case *SizeofExpr:
		return "sizeof " + exprString(x.X)
	}
	return "?"
}
