// Package ast declares the syntax tree shared by the high-level guest
// languages. Positions are byte offsets into the document.
package ast

// Span is a half-open byte range.
type Span struct {
	Start, End int
}

// Node is implemented by every tree node.
type Node interface {
	Pos() Span
}

// File is a parsed document.
type File struct {
	Funcs []*FuncDecl
	// Stmts are top-level statements, in source order.
	Stmts []Stmt
	Size  int
}

// TypeRef names a type in source.
type TypeRef struct {
	Name string
	Span Span
}

func (t *TypeRef) Pos() Span { return t.Span }

// Param is a function parameter.
type Param struct {
	Name *Ident
	Type *TypeRef
}

// FuncDecl is a function or sub declaration. Result is nil for void.
type FuncDecl struct {
	Name   *Ident
	Params []*Param
	Result *TypeRef
	Body   *Block
	Span   Span
}

func (f *FuncDecl) Pos() Span { return f.Span }

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

type (
	Block struct {
		Stmts []Stmt
		Span  Span
	}

	// VarDecl declares a local. Type or Init may be nil, not both.
	VarDecl struct {
		Name *Ident
		Type *TypeRef
		Init Expr
		Span Span
	}

	// Assign is `x = v`, `x += v` or `x -= v`.
	Assign struct {
		Target *Ident
		Op     AssignOp
		Value  Expr
		Span   Span
	}

	ExprStmt struct {
		X    Expr
		Span Span
	}

	// If has an Else that is nil, a *Block or an *If.
	If struct {
		Cond Expr
		Then *Block
		Else Stmt
		Span Span
	}

	While struct {
		Cond Expr
		Body *Block
		Span Span
	}

	Return struct {
		Value Expr
		Span  Span
	}

	// BadStmt stands in for a statement that failed to parse.
	BadStmt struct {
		Span Span
	}
)

func (s *Block) Pos() Span    { return s.Span }
func (s *VarDecl) Pos() Span  { return s.Span }
func (s *Assign) Pos() Span   { return s.Span }
func (s *ExprStmt) Pos() Span { return s.Span }
func (s *If) Pos() Span       { return s.Span }
func (s *While) Pos() Span    { return s.Span }
func (s *Return) Pos() Span   { return s.Span }
func (s *BadStmt) Pos() Span  { return s.Span }

func (*Block) stmt()    {}
func (*VarDecl) stmt()  {}
func (*Assign) stmt()   {}
func (*ExprStmt) stmt() {}
func (*If) stmt()       {}
func (*While) stmt()    {}
func (*Return) stmt()   {}
func (*BadStmt) stmt()  {}

type (
	Ident struct {
		Name string
		Span Span
	}

	IntLit struct {
		Value int64
		Span  Span
	}

	StringLit struct {
		Value string
		Span  Span
	}

	BoolLit struct {
		Value bool
		Span  Span
	}

	Paren struct {
		X    Expr
		Span Span
	}

	Unary struct {
		Op   UnaryOp
		X    Expr
		Span Span
	}

	Binary struct {
		Op   BinaryOp
		X, Y Expr
		// OpSpan covers the operator token.
		OpSpan Span
		Span   Span
	}

	// Selector is `ns.member`.
	Selector struct {
		X   *Ident
		Sel *Ident
	}

	// Call is a call of an *Ident or a *Selector.
	Call struct {
		Fun  Expr
		Args []Expr
		Span Span
	}

	// BadExpr stands in for an expression that failed to parse.
	BadExpr struct {
		Span Span
	}
)

func (e *Ident) Pos() Span     { return e.Span }
func (e *IntLit) Pos() Span    { return e.Span }
func (e *StringLit) Pos() Span { return e.Span }
func (e *BoolLit) Pos() Span   { return e.Span }
func (e *Paren) Pos() Span     { return e.Span }
func (e *Unary) Pos() Span     { return e.Span }
func (e *Binary) Pos() Span    { return e.Span }
func (e *Selector) Pos() Span  { return Span{Start: e.X.Span.Start, End: e.Sel.Span.End} }
func (e *Call) Pos() Span      { return e.Span }
func (e *BadExpr) Pos() Span   { return e.Span }

func (*Ident) expr()     {}
func (*IntLit) expr()    {}
func (*StringLit) expr() {}
func (*BoolLit) expr()   {}
func (*Paren) expr()     {}
func (*Unary) expr()     {}
func (*Binary) expr()    {}
func (*Selector) expr()  {}
func (*Call) expr()      {}
func (*BadExpr) expr()   {}

// AssignOp is an assignment operator.
type AssignOp int

const (
	AssignSet AssignOp = iota
	AssignAdd
	AssignSub
)

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Not
)

// BinaryOp is an infix operator.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

var binaryNames = [...]string{"+", "-", "*", "/", "%", "==", "!=", "<", "<=", ">", ">=", "&&", "||"}

func (op BinaryOp) String() string { return binaryNames[op] }

// IsComparison reports whether op yields a bool from two operands.
func (op BinaryOp) IsComparison() bool { return op >= Eq && op <= Ge }

// IsLogical reports whether op is && or ||.
func (op BinaryOp) IsLogical() bool { return op == And || op == Or }

// Inspect walks the tree rooted at n in depth-first order, calling f for
// each node. Children are skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *FuncDecl:
		Inspect(n.Name, f)
		for _, p := range n.Params {
			Inspect(p.Name, f)
		}
		if n.Body != nil {
			Inspect(n.Body, f)
		}
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *VarDecl:
		Inspect(n.Name, f)
		if n.Init != nil {
			Inspect(n.Init, f)
		}
	case *Assign:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *ExprStmt:
		Inspect(n.X, f)
	case *If:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *While:
		Inspect(n.Cond, f)
		Inspect(n.Body, f)
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, f)
		}
	case *Paren:
		Inspect(n.X, f)
	case *Unary:
		Inspect(n.X, f)
	case *Binary:
		Inspect(n.X, f)
		Inspect(n.Y, f)
	case *Selector:
		Inspect(n.X, f)
		Inspect(n.Sel, f)
	case *Call:
		Inspect(n.Fun, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	}
}
