package consteval

import "cabi/internal/source"

// Node is a parsed constant expression or type name.
type Node interface {
	Pos() int
	Span() source.Span
}

// Expr is a constant expression node.
type Expr interface {
	Node
	expr()
}

type node struct {
	pos  int
	span source.Span
}

func (n node) Pos() int          { return n.pos }
func (n node) Span() source.Span { return n.span }

type (
	IntLit struct {
		node
		Text string
	}
	FloatLit struct {
		node
		Text string
	}
	CharLit struct {
		node
		Text string // including quotes
	}
	StringLit struct {
		node
		Text string // including quotes
	}
	Ident struct {
		node
		Name string
	}
	Unary struct {
		node
		Op string
		X  Expr
	}
	Binary struct {
		node
		Op   string
		X, Y Expr
	}
	Cond struct {
		node
		C, Then, Else Expr
	}
	Cast struct {
		node
		To *TypeName
		X  Expr
	}
	SizeofType struct {
		node
		Of *TypeName
	}
	SizeofExpr struct {
		node
		X Expr
	}
)

func (*IntLit) expr()     {}
func (*FloatLit) expr()   {}
func (*CharLit) expr()    {}
func (*StringLit) expr()  {}
func (*Ident) expr()      {}
func (*Unary) expr()      {}
func (*Binary) expr()     {}
func (*Cond) expr()       {}
func (*Cast) expr()       {}
func (*SizeofType) expr() {}
func (*SizeofExpr) expr() {}

// TypeName is an abstract declarator: specifiers, pointer levels and
// trailing array dimensions. A nil dimension means "[]".
type TypeName struct {
	node
	Specs    []string // basic type keywords in source order
	TagKind  string   // "struct", "union", "enum" or ""
	Tag      string
	Typedef  string
	Pointers int
	Dims     []Expr
}
