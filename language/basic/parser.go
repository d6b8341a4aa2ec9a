package basic

import (
	"github.com/caffeineduck/wasmlab/language/internal/ast"
)

type parser struct {
	toks  []token
	pos   int
	diags []ast.Diagnostic
}

// Parse parses a Basic document. Statements outside a Function or Sub are
// reported and dropped.
func Parse(src string) (*ast.File, []ast.Diagnostic) {
	toks, diags := lex(src)
	p := &parser{toks: toks, diags: diags}
	file := &ast.File{Size: len(src)}
	for {
		p.skipNewlines()
		t := p.tok()
		if t.kind == tEOF {
			break
		}
		start := p.pos
		switch t.kind {
		case tFunction, tSub:
			file.Funcs = append(file.Funcs, p.funcDecl())
		default:
			s := p.stmt()
			p.errorf(ast.CodeOutsideMethod, s.Pos(), "Statement is not valid in a namespace.")
			p.endOfStatement()
		}
		if p.pos == start {
			p.advance()
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

func (p *parser) skipNewlines() {
	for p.tok().kind == tNewline {
		p.advance()
	}
}

func (p *parser) errorf(code int, span ast.Span, format string, args ...any) {
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
	p.errorf(ast.CodeExpected, p.tok().span, "'%s' expected.", k)
	return false
}

// endOfStatement consumes the line break after a statement and reports any
// leftover tokens.
func (p *parser) endOfStatement() {
	switch p.tok().kind {
	case tNewline:
		p.advance()
		return
	case tEOF:
		return
	}
	p.errorf(ast.CodeUnexpectedInLine, p.tok().span, "End of statement expected.")
	for p.tok().kind != tNewline && p.tok().kind != tEOF {
		p.advance()
	}
	p.got(tNewline)
}

func (p *parser) ident() *ast.Ident {
	t := p.tok()
	if t.kind == tIdent {
		p.advance()
		return &ast.Ident{Name: t.text, Span: t.span}
	}
	end := p.prevEnd()
	p.errorf(ast.CodeIdentExpected, t.span, "Identifier expected.")
	return &ast.Ident{Span: ast.Span{Start: end, End: end}}
}

func (p *parser) asClause() *ast.TypeRef {
	if !p.got(tAs) {
		return nil
	}
	id := p.ident()
	return &ast.TypeRef{Name: id.Name, Span: id.Span}
}

func (p *parser) funcDecl() *ast.FuncDecl {
	kw := p.advance()
	fn := &ast.FuncDecl{Name: p.ident()}
	if p.got(tLParen) {
		for p.tok().kind != tRParen && p.tok().kind != tNewline && p.tok().kind != tEOF {
			param := &ast.Param{Name: p.ident()}
			if param.Type = p.asClause(); param.Type == nil {
				p.errorf(ast.CodeExpected, p.tok().span, "'As' expected.")
				param.Type = &ast.TypeRef{Span: ast.Span{Start: p.prevEnd(), End: p.prevEnd()}}
			}
			fn.Params = append(fn.Params, param)
			if !p.got(tComma) {
				break
			}
		}
		p.expect(tRParen)
	}
	if kw.kind == tFunction {
		if fn.Result = p.asClause(); fn.Result == nil {
			p.errorf(ast.CodeExpected, p.tok().span, "'As' expected.")
		}
	}
	header := ast.Span{Start: kw.span.Start, End: p.prevEnd()}
	p.endOfStatement()

	stmts, bodySpan := p.stmtsUntil(tEnd)
	fn.Body = &ast.Block{Stmts: stmts, Span: bodySpan}
	if p.tok().kind == tEnd && p.peek(1).kind == kw.kind {
		p.advance()
		p.advance()
		p.endOfStatement()
	} else {
		p.errorf(ast.CodeEndExpected, header, "'%s' must end with a matching 'End %s'.", headerText(kw.kind), kw.kind)
	}
	fn.Span = ast.Span{Start: kw.span.Start, End: p.prevEnd()}
	return fn
}

func headerText(k tokenKind) string {
	if k == tSub {
		return "Sub"
	}
	return "Function"
}

// stmtsUntil parses statements until a line starts with one of stop, End,
// or a new Function or Sub.
func (p *parser) stmtsUntil(stop ...tokenKind) ([]ast.Stmt, ast.Span) {
	start := p.tok().span.Start
	var stmts []ast.Stmt
	for {
		p.skipNewlines()
		k := p.tok().kind
		if k == tEOF || k == tEnd || k == tFunction || k == tSub {
			break
		}
		stopped := false
		for _, s := range stop {
			if k == s {
				stopped = true
			}
		}
		if stopped {
			break
		}
		before := p.pos
		stmts = append(stmts, p.stmt())
		p.endOfStatement()
		if p.pos == before {
			p.advance()
		}
	}
	return stmts, ast.Span{Start: start, End: p.prevEnd()}
}

func (p *parser) stmt() ast.Stmt {
	t := p.tok()
	switch t.kind {
	case tDim:
		p.advance()
		d := &ast.VarDecl{Name: p.ident()}
		d.Type = p.asClause()
		if p.got(tEq) {
			d.Init = p.expr()
		} else if d.Type == nil {
			p.errorf(ast.CodeExpected, p.tok().span, "'As' expected.")
			d.Init = &ast.BadExpr{Span: ast.Span{Start: p.prevEnd(), End: p.prevEnd()}}
		}
		d.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return d

	case tIf:
		return p.ifStmt()

	case tWhile:
		p.advance()
		s := &ast.While{Cond: p.expr()}
		p.endOfStatement()
		stmts, span := p.stmtsUntil()
		s.Body = &ast.Block{Stmts: stmts, Span: span}
		p.endBlock(tWhile, t.span)
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s

	case tReturn:
		p.advance()
		s := &ast.Return{}
		if k := p.tok().kind; k != tNewline && k != tEOF {
			s.Value = p.expr()
		}
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s

	case tElse, tElseIf, tThen:
		p.errorf(ast.CodeInvalidTerm, t.span, "'%s' must be preceded by a matching 'If'.", t.kind)
		p.advance()
		return &ast.BadStmt{Span: t.span}

	case tIdent:
		var op ast.AssignOp
		switch p.peek(1).kind {
		case tEq:
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
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s
	}
	return p.exprStmt()
}

func (p *parser) exprStmt() ast.Stmt {
	start := p.tok().span.Start
	x := p.expr()
	if _, bad := x.(*ast.BadExpr); bad {
		return &ast.BadStmt{Span: ast.Span{Start: start, End: p.prevEnd()}}
	}
	return &ast.ExprStmt{X: x, Span: ast.Span{Start: start, End: p.prevEnd()}}
}

// endBlock consumes `End kind`.
func (p *parser) endBlock(kind tokenKind, open ast.Span) {
	if p.tok().kind == tEnd && p.peek(1).kind == kind {
		p.advance()
		p.advance()
		return
	}
	p.errorf(ast.CodeEndExpected, open, "'%s' must end with a matching 'End %s'.", kind, kind)
}

func (p *parser) ifStmt() ast.Stmt {
	t := p.advance()
	s := &ast.If{Cond: p.expr()}
	p.expect(tThen)

	// single-line form: If c Then stmt
	if k := p.tok().kind; k != tNewline && k != tEOF {
		body := p.stmt()
		s.Then = &ast.Block{Stmts: []ast.Stmt{body}, Span: body.Pos()}
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s
	}
	p.endOfStatement()

	stmts, span := p.stmtsUntil(tElse, tElseIf)
	s.Then = &ast.Block{Stmts: stmts, Span: span}
	switch p.tok().kind {
	case tElseIf:
		s.Else = p.ifStmt()
		s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
		return s
	case tElse:
		p.advance()
		p.endOfStatement()
		stmts, span := p.stmtsUntil()
		s.Else = &ast.Block{Stmts: stmts, Span: span}
	}
	p.endBlock(tIf, t.span)
	s.Span = ast.Span{Start: t.span.Start, End: p.prevEnd()}
	return s
}

var precedence = map[tokenKind]int{
	tOr:  1,
	tAnd: 2,
	tEq:  3, tNe: 3, tLt: 3, tLe: 3, tGt: 3, tGe: 3,
	tPlus: 4, tMinus: 4,
	tMod:  5,
	tStar: 6, tSlash: 6, tBackslash: 6,
}

var binaryOps = map[tokenKind]ast.BinaryOp{
	tOr: ast.Or, tAnd: ast.And, tEq: ast.Eq, tNe: ast.Ne, tLt: ast.Lt, tLe: ast.Le, tGt: ast.Gt, tGe: ast.Ge,
	tPlus: ast.Add, tMinus: ast.Sub, tMod: ast.Rem, tStar: ast.Mul, tSlash: ast.Div, tBackslash: ast.Div,
}

func (p *parser) expr() ast.Expr { return p.binary(1) }

func (p *parser) binary(minPrec int) ast.Expr {
	var x ast.Expr
	if t := p.tok(); t.kind == tNot && minPrec <= 3 {
		// Not binds looser than comparison
		p.advance()
		operand := p.binary(3)
		x = &ast.Unary{Op: ast.Not, X: operand, Span: ast.Span{Start: t.span.Start, End: operand.Pos().End}}
	} else {
		x = p.unary()
	}
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
	case tMinus:
		p.advance()
		x := p.unary()
		return &ast.Unary{Op: ast.Neg, X: x, Span: ast.Span{Start: t.span.Start, End: x.Pos().End}}
	case tNot:
		p.advance()
		x := p.unary()
		return &ast.Unary{Op: ast.Not, X: x, Span: ast.Span{Start: t.span.Start, End: x.Pos().End}}
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
	p.errorf(ast.CodeInvalidTerm, t.span, "Expression expected.")
	return &ast.BadExpr{Span: ast.Span{Start: t.span.Start, End: t.span.Start}}
}

func (p *parser) postfix(x ast.Expr) ast.Expr {
	for p.tok().kind == tLParen {
		p.advance()
		call := &ast.Call{Fun: x}
		for p.tok().kind != tRParen && p.tok().kind != tNewline && p.tok().kind != tEOF {
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
