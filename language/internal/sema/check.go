package sema

import (
	"fmt"

	"github.com/caffeineduck/wasmlab/language/internal/ast"
)

const topLevelName = "<top-level>"

type checker struct {
	cfg   Config
	info  *Info
	funcs map[string]*Symbol
	fn    *FuncInfo
	scope *Scope
}

// Check type-checks file and returns the collected information. It never
// fails; problems are reported through Info.Diagnostics.
func Check(file *ast.File, cfg Config) *Info {
	c := &checker{
		cfg: cfg,
		info: &Info{
			Idents:     map[*ast.Ident]*Symbol{},
			Types:      map[ast.Expr]Type{},
			Calls:      map[*ast.Call]*Symbol{},
			Namespaces: cfg.Namespaces,
			fold:       cfg.FoldCase,
		},
		funcs: map[string]*Symbol{},
	}
	c.declareUniverse(file)
	c.checkEntry(file)
	for _, fn := range c.info.Funcs {
		c.checkFunc(fn)
	}
	return c.info
}

func (c *checker) key(name string) string { return normalize(name, c.cfg.FoldCase) }

func (c *checker) typeName(t Type) string {
	if c.cfg.TypeName != nil {
		return c.cfg.TypeName(t)
	}
	return fmt.Sprint(int(t))
}

func (c *checker) errorf(code int, span ast.Span, format string, args ...any) {
	c.info.Diagnostics = append(c.info.Diagnostics, ast.Errorf(code, span, format, args...))
}

func (c *checker) warnf(code int, span ast.Span, format string, args ...any) {
	c.info.Diagnostics = append(c.info.Diagnostics, ast.Warnf(code, span, format, args...))
}

func (c *checker) resolveType(ref *ast.TypeRef) Type {
	if ref == nil {
		return Void
	}
	if t, ok := c.cfg.LookupType(ref.Name); ok {
		return t
	}
	c.errorf(ast.CodeUnknownType, ref.Span, "The type or namespace name '%s' could not be found", ref.Name)
	return Invalid
}

func (c *checker) declareUniverse(file *ast.File) {
	for name, b := range c.cfg.Builtins {
		sym := &Symbol{Kind: SymBuiltin, Name: name, Type: Void, Builtin: b, Decl: ast.NoSpan}
		c.info.Universe = append(c.info.Universe, sym)
	}
	for _, ns := range c.cfg.Namespaces {
		c.info.Universe = append(c.info.Universe, &Symbol{Kind: SymNamespace, Name: ns.Name, Decl: ast.NoSpan, Doc: ns.Doc})
	}

	for _, decl := range file.Funcs {
		fn := &FuncInfo{Name: decl.Name.Name, Decl: decl, Span: decl.Span, Result: c.resolveType(decl.Result)}
		if decl.Body != nil {
			fn.Body = decl.Body.Stmts
		}
		sym := &Symbol{Kind: SymFunc, Name: decl.Name.Name, Type: fn.Result, Decl: decl.Name.Span, Func: fn}
		for _, p := range decl.Params {
			sym.Params = append(sym.Params, c.resolveType(p.Type))
			sym.ParamNames = append(sym.ParamNames, p.Name.Name)
		}
		fn.Sym = sym
		c.info.Idents[decl.Name] = sym

		if decl.Name.Name == "" {
			continue
		}
		k := c.key(decl.Name.Name)
		if _, dup := c.funcs[k]; dup {
			c.errorf(ast.CodeDupFunc, decl.Name.Span, "Type already defines a member called '%s' with the same parameter types", decl.Name.Name)
			continue
		}
		c.funcs[k] = sym
		c.info.Funcs = append(c.info.Funcs, fn)
		c.info.Universe = append(c.info.Universe, sym)
	}
}

func (c *checker) checkEntry(file *ast.File) {
	var userMain *Symbol
	if c.cfg.EntryName != "" {
		userMain = c.funcs[c.key(c.cfg.EntryName)]
	}

	if len(file.Stmts) > 0 {
		first := file.Stmts[0].Pos()
		if c.cfg.Features.TopLevel == 0 || c.cfg.Version < c.cfg.Features.TopLevel {
			c.featureError(first, "top-level statements", c.cfg.Features.TopLevel)
		}
		if !c.cfg.Console {
			c.errorf(ast.CodeTopLevelLibrary, first, "Program using top-level statements must be an executable.")
		}
		top := &FuncInfo{
			Name:        topLevelName,
			Body:        file.Stmts,
			Result:      Void,
			Synthesized: true,
			Span:        ast.Span{Start: first.Start, End: file.Size},
		}
		if hasValuedReturn(file.Stmts) {
			top.Result = Int
		}
		top.Sym = &Symbol{Kind: SymFunc, Name: topLevelName, Type: top.Result, Decl: ast.NoSpan, Func: top}
		c.info.Funcs = append(c.info.Funcs, top)
		c.info.TopLevel = top
		c.info.Entry = top
		if userMain != nil {
			c.warnf(ast.CodeEntryIgnored, userMain.Decl, "'%s' will not be used as an entry point because a synthesized entry point for top-level statements was found.", userMain.Name)
		}
		return
	}

	if userMain != nil {
		fn := userMain.Func
		if len(userMain.Params) == 0 && (fn.Result == Void || fn.Result == Int) {
			c.info.Entry = fn
			return
		}
		c.warnf(ast.CodeBadEntrySig, userMain.Decl, "'%s' has the wrong signature to be an entry point", userMain.Name)
	}
	if c.cfg.Console {
		c.errorf(ast.CodeNoEntry, ast.NoSpan, "Program does not contain a static '%s' method suitable for an entry point", c.cfg.EntryName)
	}
}

func (c *checker) featureError(span ast.Span, feature string, since int) {
	name := feature
	if c.cfg.FeatureName != nil {
		name = c.cfg.FeatureName(feature)
	}
	if since == 0 {
		c.errorf(ast.CodeFeature, span, "Feature '%s' is not available in this language.", name)
		return
	}
	c.errorf(ast.CodeFeature, span, "Feature '%s' is not available in language version %d. Please use language version %d or greater.", name, c.cfg.Version, since)
}

func hasValuedReturn(stmts []ast.Stmt) bool {
	found := false
	for _, s := range stmts {
		ast.Inspect(s, func(n ast.Node) bool {
			if r, ok := n.(*ast.Return); ok && r.Value != nil {
				found = true
			}
			return !found
		})
	}
	return found
}

func (c *checker) checkFunc(fn *FuncInfo) {
	c.fn = fn
	body := ast.Span{Start: fn.Span.Start, End: fn.Span.End}
	fn.Scope = &Scope{Span: body}
	c.scope = fn.Scope

	if fn.Decl != nil {
		for i, p := range fn.Decl.Params {
			t := Invalid
			if i < len(fn.Sym.Params) {
				t = fn.Sym.Params[i]
			}
			if prev := c.scope.lookup(p.Name.Name, c.cfg.FoldCase); prev != nil && p.Name.Name != "" {
				c.errorf(ast.CodeDupLocal, p.Name.Span, "The parameter name '%s' is a duplicate", p.Name.Name)
			}
			sym := c.declareLocal(SymParam, p.Name, t, p.Name.Span.Start)
			sym.read = true
		}
		fn.NumParams = len(fn.Locals)
	}

	c.stmts(fn.Body)

	if fn.Decl != nil && fn.Result != Void && fn.Result != Invalid && !terminates(fn.Body) {
		c.errorf(ast.CodeNotAllPaths, fn.Decl.Name.Span, "'%s': not all code paths return a value", fn.Name)
	}
	for _, l := range fn.Locals {
		if l.Kind == SymLocal && !l.read {
			c.warnf(ast.CodeUnused, l.Decl, "The variable '%s' is declared but never used", l.Name)
		}
	}
	c.fn, c.scope = nil, nil
}

func (c *checker) declareLocal(kind SymbolKind, id *ast.Ident, t Type, visible int) *Symbol {
	sym := &Symbol{
		Kind:    kind,
		Name:    id.Name,
		Type:    t,
		Decl:    id.Span,
		Visible: visible,
		Local:   len(c.fn.Locals),
		Func:    c.fn,
	}
	c.fn.Locals = append(c.fn.Locals, sym)
	c.scope.Symbols = append(c.scope.Symbols, sym)
	c.info.Idents[id] = sym
	return sym
}

// lookupLocal searches the enclosing scopes of the current function.
func (c *checker) lookupLocal(name string) *Symbol {
	for s := c.scope; s != nil; s = s.Parent {
		if sym := s.lookup(name, c.cfg.FoldCase); sym != nil {
			return sym
		}
	}
	return nil
}

func (c *checker) lookup(name string) *Symbol {
	if sym := c.lookupLocal(name); sym != nil {
		return sym
	}
	if sym, ok := c.funcs[c.key(name)]; ok {
		return sym
	}
	for _, sym := range c.info.Universe {
		if (sym.Kind == SymNamespace || sym.Kind == SymBuiltin) && c.key(sym.Name) == c.key(name) {
			return sym
		}
	}
	return nil
}

func (c *checker) namespace(name string) *Namespace {
	for _, ns := range c.cfg.Namespaces {
		if c.key(ns.Name) == c.key(name) {
			return ns
		}
	}
	return nil
}

func (c *checker) stmts(list []ast.Stmt) {
	for _, s := range list {
		c.stmt(s)
	}
}

func (c *checker) block(b *ast.Block) {
	if b == nil {
		return
	}
	outer := c.scope
	c.scope = outer.child(b.Span)
	c.stmts(b.Stmts)
	c.scope = outer
}

func (c *checker) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		c.block(s)

	case *ast.VarDecl:
		t := Invalid
		if s.Type != nil {
			t = c.resolveType(s.Type)
		}
		if s.Init != nil {
			it := c.expr(s.Init)
			switch {
			case it == Void:
				c.errorf(ast.CodeVoidVar, s.Init.Pos(), "Cannot assign void to an implicitly-typed variable")
			case s.Type == nil:
				t = it
			default:
				c.assignable(t, it, s.Init.Pos())
			}
		}
		if s.Name.Name == "" {
			return
		}
		if prev := c.lookupLocal(s.Name.Name); prev != nil {
			c.errorf(ast.CodeDupLocal, s.Name.Span, "A local variable or function named '%s' is already defined in this scope", s.Name.Name)
		}
		c.declareLocal(SymLocal, s.Name, t, s.Span.End)

	case *ast.Assign:
		vt := c.expr(s.Value)
		sym := c.lookup(s.Target.Name)
		if sym == nil {
			c.errorf(ast.CodeUndeclared, s.Target.Span, "The name '%s' does not exist in the current context", s.Target.Name)
			return
		}
		c.info.Idents[s.Target] = sym
		if sym.Kind != SymLocal && sym.Kind != SymParam {
			c.errorf(ast.CodeNotValue, s.Target.Span, "'%s' is a %s, which is not valid in the given context", s.Target.Name, kindName(sym.Kind))
			return
		}
		if s.Op != ast.AssignSet {
			if c.cfg.Features.CompoundAssign == 0 || c.cfg.Version < c.cfg.Features.CompoundAssign {
				c.featureError(s.Span, "compound assignment", c.cfg.Features.CompoundAssign)
			}
			sym.read = true
			if sym.Type != Int || vt != Int {
				if sym.Type != Invalid && vt != Invalid {
					op := "+="
					if s.Op == ast.AssignSub {
						op = "-="
					}
					c.errorf(ast.CodeOperator, s.Span, "Operator '%s' cannot be applied to operands of type '%s' and '%s'", op, c.typeName(sym.Type), c.typeName(vt))
				}
			}
			return
		}
		c.assignable(sym.Type, vt, s.Value.Pos())

	case *ast.ExprStmt:
		if _, ok := s.X.(*ast.Call); !ok {
			if _, bad := s.X.(*ast.BadExpr); !bad {
				c.errorf(ast.CodeBadStatement, s.X.Pos(), "Only assignment and call expressions can be used as a statement")
			}
		}
		c.expr(s.X)

	case *ast.If:
		c.condition(s.Cond)
		c.block(s.Then)
		if s.Else != nil {
			c.stmt(s.Else)
		}

	case *ast.While:
		c.condition(s.Cond)
		c.block(s.Body)

	case *ast.Return:
		want := c.fn.Result
		if s.Value == nil {
			if want != Void && want != Invalid {
				c.errorf(ast.CodeReturnExpected, s.Span, "An object of a type convertible to '%s' is required", c.typeName(want))
			}
			return
		}
		vt := c.expr(s.Value)
		if want == Void {
			c.errorf(ast.CodeReturnInVoid, s.Span, "Since '%s' returns void, a return keyword must not be followed by an object expression", c.fn.Name)
			return
		}
		c.assignable(want, vt, s.Value.Pos())

	case *ast.BadStmt:
	}
}

func (c *checker) condition(e ast.Expr) {
	t := c.expr(e)
	if t != Bool && t != Invalid {
		c.errorf(ast.CodeConvert, e.Pos(), "Cannot implicitly convert type '%s' to '%s'", c.typeName(t), c.typeName(Bool))
	}
}

func (c *checker) assignable(dst, src Type, span ast.Span) {
	if dst == Invalid || src == Invalid || dst == src {
		return
	}
	c.errorf(ast.CodeConvert, span, "Cannot implicitly convert type '%s' to '%s'", c.typeName(src), c.typeName(dst))
}

func kindName(k SymbolKind) string {
	switch k {
	case SymFunc, SymBuiltin, SymMember:
		return "method"
	case SymNamespace:
		return "namespace"
	}
	return "variable"
}

func (c *checker) expr(e ast.Expr) Type {
	t := c.exprType(e)
	c.info.Types[e] = t
	return t
}

func (c *checker) exprType(e ast.Expr) Type {
	switch e := e.(type) {
	case *ast.IntLit:
		return Int
	case *ast.StringLit:
		return String
	case *ast.BoolLit:
		return Bool
	case *ast.Paren:
		return c.expr(e.X)
	case *ast.BadExpr:
		return Invalid

	case *ast.Ident:
		if e.Name == "" {
			return Invalid
		}
		sym := c.lookup(e.Name)
		if sym == nil {
			c.errorf(ast.CodeUndeclared, e.Span, "The name '%s' does not exist in the current context", e.Name)
			return Invalid
		}
		c.info.Idents[e] = sym
		if sym.Kind != SymLocal && sym.Kind != SymParam {
			c.errorf(ast.CodeNotValue, e.Span, "'%s' is a %s, which is not valid in the given context", e.Name, kindName(sym.Kind))
			return Invalid
		}
		sym.read = true
		return sym.Type

	case *ast.Selector:
		c.member(e)
		c.errorf(ast.CodeNotValue, e.Pos(), "'%s.%s' is a method, which is not valid in the given context", e.X.Name, e.Sel.Name)
		return Invalid

	case *ast.Unary:
		t := c.expr(e.X)
		if t == Invalid {
			return Invalid
		}
		switch e.Op {
		case ast.Neg:
			if t == Int {
				return Int
			}
			c.errorf(ast.CodeOperatorUnary, e.Span, "Operator '-' cannot be applied to operand of type '%s'", c.typeName(t))
		case ast.Not:
			if t == Bool {
				return Bool
			}
			c.errorf(ast.CodeOperatorUnary, e.Span, "Operator '!' cannot be applied to operand of type '%s'", c.typeName(t))
		}
		return Invalid

	case *ast.Binary:
		x, y := c.expr(e.X), c.expr(e.Y)
		if x == Invalid || y == Invalid {
			return Invalid
		}
		switch {
		case e.Op.IsLogical():
			if x == Bool && y == Bool {
				return Bool
			}
		case e.Op == ast.Eq || e.Op == ast.Ne:
			if x == y && (x == Int || x == Bool) {
				return Bool
			}
		case e.Op.IsComparison():
			if x == Int && y == Int {
				return Bool
			}
		default:
			if x == Int && y == Int {
				return Int
			}
		}
		c.errorf(ast.CodeOperator, e.OpSpan, "Operator '%s' cannot be applied to operands of type '%s' and '%s'", e.Op, c.typeName(x), c.typeName(y))
		return Invalid

	case *ast.Call:
		return c.call(e)
	}
	return Invalid
}

// member resolves ns.member and records both identifiers.
func (c *checker) member(sel *ast.Selector) *Symbol {
	ns := c.namespace(sel.X.Name)
	if ns == nil {
		if sym := c.lookupLocal(sel.X.Name); sym != nil {
			c.info.Idents[sel.X] = sym
			sym.read = true
			c.errorf(ast.CodeUnknownTypeMem, sel.Sel.Span, "'%s' does not contain a definition for '%s'", c.typeName(sym.Type), sel.Sel.Name)
			return nil
		}
		c.errorf(ast.CodeUndeclared, sel.X.Span, "The name '%s' does not exist in the current context", sel.X.Name)
		return nil
	}
	for _, sym := range c.info.Universe {
		if sym.Kind == SymNamespace && sym.Name == ns.Name {
			c.info.Idents[sel.X] = sym
		}
	}
	if sel.Sel.Name == "" {
		return nil
	}
	m := ns.Member(sel.Sel.Name, c.cfg.FoldCase)
	if m == nil {
		c.errorf(ast.CodeNoMember, sel.Sel.Span, "'%s' does not contain a definition for '%s'", ns.Name, sel.Sel.Name)
		return nil
	}
	c.info.Idents[sel.Sel] = m
	return m
}

func (c *checker) call(e *ast.Call) Type {
	var callee *Symbol
	switch fun := e.Fun.(type) {
	case *ast.Ident:
		callee = c.lookup(fun.Name)
		if callee == nil {
			c.errorf(ast.CodeUndeclared, fun.Span, "The name '%s' does not exist in the current context", fun.Name)
		} else {
			c.info.Idents[fun] = callee
			if callee.Kind == SymLocal || callee.Kind == SymParam || callee.Kind == SymNamespace {
				c.errorf(ast.CodeNotInvocable, fun.Span, "Method name expected")
				callee = nil
			}
		}
	case *ast.Selector:
		callee = c.member(fun)
	default:
		c.errorf(ast.CodeNotInvocable, e.Fun.Pos(), "Method name expected")
	}

	args := make([]Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = c.expr(a)
	}
	if callee == nil {
		return Invalid
	}
	c.info.Calls[e] = callee

	if callee.Kind == SymBuiltin {
		return c.builtinCall(e, callee, args)
	}

	if len(args) != len(callee.Params) {
		c.errorf(ast.CodeArgCount, e.Fun.Pos(), "No overload for method '%s' takes %d arguments", callee.Name, len(args))
		return callee.Type
	}
	for i, at := range args {
		pt := callee.Params[i]
		if at == Invalid || pt == Invalid || at == pt {
			continue
		}
		c.errorf(ast.CodeArgType, e.Args[i].Pos(), "Argument %d: cannot convert from '%s' to '%s'", i+1, c.typeName(at), c.typeName(pt))
	}
	return callee.Type
}

func (c *checker) builtinCall(e *ast.Call, callee *Symbol, args []Type) Type {
	lo := 1
	if callee.Builtin == BuiltinPrintLine {
		lo = 0
	}
	if len(args) < lo || len(args) > 1 {
		c.errorf(ast.CodeArgCount, e.Fun.Pos(), "No overload for method '%s' takes %d arguments", callee.Name, len(args))
		return Void
	}
	if len(args) == 1 && args[0] == Void {
		c.errorf(ast.CodeArgType, e.Args[0].Pos(), "Argument 1: cannot convert from '%s' to 'object'", c.typeName(Void))
	}
	return Void
}

// terminates reports whether control cannot fall off the end of list.
func terminates(list []ast.Stmt) bool {
	for _, s := range list {
		if stmtTerminates(s) {
			return true
		}
	}
	return false
}

func stmtTerminates(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		return terminates(s.Stmts)
	case *ast.If:
		if s.Else == nil {
			return false
		}
		return s.Then != nil && terminates(s.Then.Stmts) && stmtTerminates(s.Else)
	case *ast.While:
		lit, ok := s.Cond.(*ast.BoolLit)
		return ok && lit.Value
	}
	return false
}
