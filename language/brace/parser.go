package brace

import (
	"github.com/caffeineduck/wasmlab/language/internal/ast"
)

type parser struct {
	toks  []token
	pos   int
	diags []ast.Diagnostic
}

// Parse parses a Brace document. It always returns a tree; syntax errors are
// reported as diagnostics and replaced by Bad nodes.
func Parse(src string) (*ast.File, []ast.Diagnostic) {
	toks, diags := lex(src)
	p := &parser{toks: toks, diags: diags}
	file := &ast.File{Size: len(src)}
	for p.tok().kind != tEOF {
		start := p.pos
		switch p.tok().kind {
		case tFunc:
			file.Funcs = append(file.Funcs, p.funcDecl())
		case tRBrace:
			p.errorf(ast.CodeEOFExpected, p.tok().span, "Type or namespace definition, or end-of-file expected")
			p.pos++
		default:
			file.Stmts = append(file.Stmts, p.stmt())
		}
		if p.pos == start {
			p.pos++
		}
	}
	return file, p.diags
}

func (p *parser) tok() token { return p.toks[p.pos] }

func (p *parser) peek(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

// prevEnd is the end offset of the last consumed token.
func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].span.End
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) got(k tokenKind) bool {
	if p.tok().kind == k {
		p.advance()
		return true
	}
	return false
}

func (p *parser) errorf(code int, span ast.Span, format string, args ...any) {
	// one diagnostic per location keeps cascades out
	for _, d := range p.diags {
		if d.Span.Start == span.Start && !d.Warning {
			return
		}
	}
	p.diags = append(p.diags, ast.Errorf(code, span, format, args...))
}

func (p *parser) expect(k tokenKind) bool {
	if p.got(k) {
		return true
	}
	if k == tSemi {
		end := p.prevEnd()
		p.errorf(ast.CodeSemicolon, ast.Span{Start: end, End: end}, "; expected")
		return false
	}
	p.errorf(ast.CodeExpected, p.tok().span, "Syntax error, '%s' expected", k)
	return false
}

func (p *parser) ident() *ast.Ident {
	t := p.tok()
	if t.kind == tIdent {
		p.advance()
		return &ast.Ident{Name: t.text, Span: t.span}
	}
	end := p.prevEnd()
	p.errorf(ast.CodeIdentExpected, t.span, "Identifier expected")
	return &ast.Ident{Span: ast.Span{Start: end, End: end}}
}

func (p *parser) typeRef() *ast.TypeRef {
	id := p.ident()
	return &ast.TypeRef{Name: id.Name, Span: id.Span}
}

func (p *parser) funcDecl() *ast.FuncDecl {
	start := p.advance().span.Start
	fn := &ast.FuncDecl{Name: p.ident()}
	if p.expect(tLParen) {
		for p.tok().kind != tRParen && p.tok().kind != tEOF && p.tok().kind != tLBrace {
			param := &ast.Param{Name: p.ident()}
			param.Type = p.typeRef()
			fn.Params = append(fn.Params, param)
			if !p.got(tComma) {
				break
			}
		}
		p.expect(tRParen)
	}
	if p.tok().kind == tIdent {
		fn.Result = p.typeRef()
	}
	fn.Body = p.block()
	fn.Span = ast.Span{Start: start, End: p.prevEnd()}
	return fn
}

func (p *parser) block() *ast.Block {
	start := p.tok().span.Start
	b := &ast.Block{}
	if !p.expect(tLBrace) {
		// parse a lone statement as the body
		if p.tok().kind != tEOF && p.tok().kind != tRBrace {
			b.Stmts = append(b.Stmts, p.stmt())
		}
		b.Span = ast.Span{Start: start, End: p.prevEnd()}
		return b
	}
	for p.tok().kind != tRBrace && p.tok().kind != tEOF {
		if p.tok().kind == tFunc {
			p.errorf(ast.CodeExpected, p.tok().span, "Syntax error, '}' expected")
			break
		}
		before := p.pos
		b.Stmts = append(b.Stmts, p.stmt())
		if p.pos == before {
			p.advance()
		}
	}
	p.expect(tRBrace)
	b.Span = ast.Span{Start: start, End: p.prevEnd()}
	return b
}

// sync skips to the end of the current statement.
func (p *parser) sync() {
	for {
		switch p.tok().kind {
		case tEOF, tRBrace, tLBrace, tVar, tIf, tWhile, tReturn, tFunc:
			return
		case tSemi:
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *parser) stmt() ast.Stmt {
	t := p.tok()
	switch t.kind {
	case tLBrace:
		return p.block()

	case tVar:
		p.advance()
		d := &ast.VarDecl{Name: p.ident()}
		if p.tok().kind == tIdent {
			d.Type = p.typeRef()
		}
		if p.got(tAssign) {
			d.Init = p.expr()
		} else if d.Type == nil {
			p.expect(tAssign)
			d.Init = &ast.BadExpr{Span: ast.Span{Start: p.prevEnd(), End: p.prevEnd()}}
		}
		p.expect(tSemi)
		d.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return d

	case tIf:
		p.advance()
		s := &ast.If{Cond: p.condition()}
		s.Then = p.block()
		if p.got(tElse) {
			if p.tok().kind == tIf {
				s.Else = p.stmt()
			} else {
				s.Else = p.block()
			}
		}
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s

	case tWhile:
		p.advance()
		s := &ast.While{Cond: p.condition()}
		s.Body = p.block()
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s

	case tReturn:
		p.advance()
		s := &ast.Return{}
		if p.tok().kind != tSemi && p.tok().kind != tRBrace && p.tok().kind != tEOF {
			s.Value = p.expr()
		}
		p.expect(tSemi)
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s

	case tElse:
		p.errorf(ast.CodeInvalidTerm, t.span, "Invalid expression term 'else'")
		p.advance()
		return &ast.BadStmt{Span: t.span}

	case tIdent:
		var op ast.AssignOp
		switch p.peek(1).kind {
		case tAssign:
			op = ast.AssignSet
		case tAddAssign:
			op = ast.AssignAdd
		case tSubAssign:
			op = ast.AssignSub
		default:
			return p.exprStmt()
		}
		target := p.ident()
		p.advance()
		s := &ast.Assign{Target: target, Op: op, Value: p.expr()}
		p.expect(tSemi)
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s
	}
	return p.exprStmt()
}

func (p *parser) exprStmt() ast.Stmt {
	start := p.tok().span.Start
	x := p.expr()
	if _, bad := x.(*ast.BadExpr); bad {
		p.sync()
		return &ast.BadStmt{Span: ast.Span{Start: start, End: p.prevEnd()}}
	}
	p.expect(tSemi)
	return &ast.ExprStmt{X: x, Span: ast.Span{Start: start, End: p.prevEnd()}}
}

func (p *parser) condition() ast.Expr {
	if !p.expect(tLParen) {
		return p.expr()
	}
	x := p.expr()
	p.expect(tRParen)
	return x
}

var precedence = map[tokenKind]int{
	tOrOr:   1,
	tAndAnd: 2,
	tEq:     3, tNe: 3,
	tLt: 4, tLe: 4, tGt: 4, tGe: 4,
	tPlus: 5, tMinus: 5,
	tStar: 6, tSlash: 6, tPercent: 6,
}

var binaryOps = map[tokenKind]ast.BinaryOp{
	tOrOr: ast.Or, tAndAnd: ast.And, tEq: ast.Eq, tNe: ast.Ne,
	tLt: ast.Lt, tLe: ast.Le, tGt: ast.Gt, tGe: ast.Ge,
	tPlus: ast.Add, tMinus: ast.Sub, tStar: ast.Mul, tSlash: ast.Div, tPercent: ast.Rem,
}

func (p *parser) expr() ast.Expr { return p.binary(1) }

func (p *parser) binary(minPrec int) ast.Expr {
	x := p.unary()
	for {
		op := p.tok()
		prec, ok := precedence[op.kind]
		if !ok || prec < minPrec {
			return x
		}
		p.advance()
		y := p.binary(prec + 1)
		x = &ast.Binary{
			Op:     binaryOps[op.kind],
			X:      x,
			Y:      y,
			OpSpan: op.span,
			Span:   ast.Span{Start: x.Pos().Start, End: y.Pos().End},
		}
	}
}

func (p *parser) unary() ast.Expr {
	t := p.tok()
	switch t.kind {
	case tMinus, tNot:
		p.advance()
		x := p.unary()
		op := ast.Neg
		if t.kind == tNot {
			op = ast.Not
		}
		return &ast.Unary{Op: op, X: x, Span: ast.Span{Start: t.span.Start, End: x.Pos().End}}
	}
	return p.postfix(p.primary())
}

func (p *parser) primary() ast.Expr {
	t := p.tok()
	switch t.kind {
	case tInt:
		p.advance()
		return &ast.IntLit{Value: t.val, Span: t.span}
	case tString:
		p.advance()
		return &ast.StringLit{Value: t.str, Span: t.span}
	case tTrue, tFalse:
		p.advance()
		return &ast.BoolLit{Value: t.kind == tTrue, Span: t.span}
	case tLParen:
		p.advance()
		x := p.expr()
		p.expect(tRParen)
		return &ast.Paren{X: x, Span: ast.Span{Start: t.span.Start, End: p.prevEnd()}}
	case tIdent:
		id := p.ident()
		if p.got(tDot) {
			return &ast.Selector{X: id, Sel: p.ident()}
		}
		return id
	}
	p.errorf(ast.CodeInvalidTerm, t.span, "Invalid expression term '%s'", t.kind)
	return &ast.BadExpr{Span: ast.Span{Start: t.span.Start, End: t.span.Start}}
}

func (p *parser) postfix(x ast.Expr) ast.Expr {
	for p.tok().kind == tLParen {
		p.advance()
		call := &ast.Call{Fun: x}
		for p.tok().kind != tRParen && p.tok().kind != tEOF && p.tok().kind != tSemi {
			call.Args = append(call.Args, p.expr())
			if !p.got(tComma) {
				break
			}
		}
		p.expect(tRParen)
		call.Span = ast.Span{Start: x.Pos().Start, End: p.prevEnd()}
		x = call
	}
	return x
}
