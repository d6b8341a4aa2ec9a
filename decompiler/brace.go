package decompiler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/wasm"
)

var errUnsupported = errors.New("unsupported instruction sequence")

// Operator precedence, matching the Brace parser.
const (
	precOr = iota + 1
	precAnd
	precEq
	precRel
	precAdd
	precMul
	precUnary
	precPrimary
)

type expr struct {
	text  string
	prec  int
	op    string
	x, y  *expr
	local int
	konst *int64
}

func leaf(text string) *expr { return &expr{text: text, prec: precPrimary, local: -1} }

func (e *expr) String() string {
	switch {
	case e.op != "" && e.y != nil:
		x, y := e.x.String(), e.y.String()
		if e.x.prec < e.prec {
			x = "(" + x + ")"
		}
		if e.y.prec <= e.prec {
			y = "(" + y + ")"
		}
		return x + " " + e.op + " " + y
	case e.op != "":
		x := e.x.String()
		if e.x.prec < precUnary {
			x = "(" + x + ")"
		}
		return e.op + x
	}
	return e.text
}

func (e *expr) isConst(v int64) bool { return e.konst != nil && *e.konst == v }

// asBool renders the constants 0 and 1 as bool literals.
func asBool(e *expr) *expr {
	switch {
	case e.isConst(0):
		return leaf("false")
	case e.isConst(1):
		return leaf("true")
	}
	return e
}

type binOp struct {
	op   string
	prec int
}

var binaryOps = map[wasm.Opcode]binOp{
	wasm.OpI64Add:  {"+", precAdd},
	wasm.OpI64Sub:  {"-", precAdd},
	wasm.OpI64Mul:  {"*", precMul},
	wasm.OpI64DivS: {"/", precMul},
	wasm.OpI64RemS: {"%", precMul},
	wasm.OpI64Eq:   {"==", precEq},
	wasm.OpI64Ne:   {"!=", precEq},
	wasm.OpI64LtS:  {"<", precRel},
	wasm.OpI64LeS:  {"<=", precRel},
	wasm.OpI64GtS:  {">", precRel},
	wasm.OpI64GeS:  {">=", precRel},
}

type stmtKind int

const (
	simpleStmt stmtKind = iota
	ifStmt
	whileStmt
)

type stmt struct {
	kind stmtKind
	text string
	cond *expr
	then []stmt
	els  []stmt
}

func simple(format string, args ...any) stmt {
	return stmt{text: fmt.Sprintf(format, args...)}
}

type term int

const (
	termEOF term = iota
	termElse
	termEnd
	termLoop
)

type lifter struct {
	m       *wasm.Module
	version int
	body    []wasm.Instr
	pos     int
	stack   []*expr

	nparams  int
	names    []string
	types    []string
	result   string
	declared map[int]bool
	hoisted  map[int]bool
	depth    int
	// trailingTrap is set when the body ends with the unreachable the
	// compiler emits after a value-returning function.
	trailingTrap bool
}

func (l *lifter) push(e *expr) { l.stack = append(l.stack, e) }

func (l *lifter) pop() (*expr, error) {
	if len(l.stack) == 0 {
		return nil, fmt.Errorf("%w: stack underflow at %d", errUnsupported, l.pos)
	}
	e := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return e, nil
}

func (l *lifter) localName(idx int64) (string, error) {
	if idx < 0 || int(idx) >= len(l.names) {
		return "", fmt.Errorf("%w: local %d out of range", errUnsupported, idx)
	}
	return l.names[idx], nil
}

// seq lifts statements up to the next else or end of the current region.
func (l *lifter) seq() ([]stmt, term, error) {
	var out []stmt
	for l.pos < len(l.body) {
		in := l.body[l.pos]
		switch {
		case in.Op == wasm.OpElse:
			l.pos++
			return out, termElse, nil
		case in.Op == wasm.OpEnd:
			l.pos++
			return out, termEnd, nil
		case l.loopBack():
			l.pos += 3
			return out, termLoop, nil
		}
		l.pos++
		s, err := l.instr(in)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s...)
	}
	return out, termEOF, nil
}

// loopBack reports whether the next instructions close a while loop.
func (l *lifter) loopBack() bool {
	if l.pos+2 >= len(l.body) {
		return false
	}
	in := l.body[l.pos]
	return in.Op == wasm.OpBr && in.Imm == 0 &&
		l.body[l.pos+1].Op == wasm.OpEnd && l.body[l.pos+2].Op == wasm.OpEnd
}

func (l *lifter) instr(in wasm.Instr) ([]stmt, error) {
	if op, ok := binaryOps[in.Op]; ok {
		y, err := l.pop()
		if err != nil {
			return nil, err
		}
		x, err := l.pop()
		if err != nil {
			return nil, err
		}
		if op.op == "-" && x.isConst(0) {
			l.push(&expr{op: "-", x: y, prec: precUnary, local: -1})
			return nil, nil
		}
		l.push(&expr{op: op.op, x: x, y: y, prec: op.prec, local: -1})
		return nil, nil
	}

	switch in.Op {
	case wasm.OpNop:
	case wasm.OpI64Const:
		l.push(l.constant(in.Imm))

	case wasm.OpLocalGet:
		name, err := l.localName(in.Imm)
		if err != nil {
			return nil, err
		}
		if idx := int(in.Imm); idx >= l.nparams && !l.declared[idx] {
			l.declared[idx] = true
			l.hoisted[idx] = true
		}
		e := leaf(name)
		e.local = int(in.Imm)
		l.push(e)

	case wasm.OpLocalSet:
		v, err := l.pop()
		if err != nil {
			return nil, err
		}
		s, err := l.assign(int(in.Imm), v)
		if err != nil {
			return nil, err
		}
		return []stmt{s}, nil

	case wasm.OpI64Eqz:
		x, err := l.pop()
		if err != nil {
			return nil, err
		}
		l.push(&expr{op: "!", x: asBool(x), prec: precUnary, local: -1})

	case wasm.OpI64ExtendI32U, wasm.OpI32WrapI64:
		if len(l.stack) == 0 {
			return nil, fmt.Errorf("%w: conversion of empty stack", errUnsupported)
		}

	case wasm.OpDrop:
		x, err := l.pop()
		if err != nil {
			return nil, err
		}
		return []stmt{simple("%s;", x)}, nil

	case wasm.OpCall:
		return l.call(uint32(in.Imm))

	case wasm.OpReturn:
		if l.result != "" {
			v, err := l.pop()
			if err != nil {
				return nil, err
			}
			if l.result == "bool" {
				v = asBool(v)
			}
			l.stack = l.stack[:0]
			return []stmt{simple("return %s;", v)}, nil
		}
		return []stmt{simple("return;")}, nil

	case wasm.OpUnreachable:
		if l.pos == len(l.body) && l.result != "" {
			l.trailingTrap = true
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unreachable", errUnsupported)

	case wasm.OpIf:
		return l.ifInstr(in)

	case wasm.OpBlock:
		return l.while(in)

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupported, in.Op)
	}
	return nil, nil
}

func (l *lifter) constant(v int64) *expr {
	if s, ok := stringConst(l.m, v); ok {
		return leaf(strconv.Quote(s))
	}
	e := leaf(strconv.FormatInt(v, 10))
	if v < 0 {
		e.prec = precUnary
	}
	e.konst = &v
	return e
}

func (l *lifter) assign(idx int, v *expr) (stmt, error) {
	name, err := l.localName(int64(idx))
	if err != nil {
		return stmt{}, err
	}
	if l.types[idx] == "bool" {
		v = asBool(v)
	}
	if idx >= l.nparams && !l.declared[idx] {
		l.declared[idx] = true
		if l.depth == 0 {
			return simple("var %s = %s;", name, v), nil
		}
		l.hoisted[idx] = true
	}
	if l.version >= 2 && v.y != nil && (v.op == "+" || v.op == "-") && v.x.local == idx {
		return simple("%s %s= %s;", name, v.op, v.y), nil
	}
	return simple("%s = %s;", name, v), nil
}

func (l *lifter) call(callee uint32) ([]stmt, error) {
	t, ok := l.m.FuncType(callee)
	if !ok {
		return nil, fmt.Errorf("%w: call to unknown function %d", errUnsupported, callee)
	}
	args := make([]*expr, len(t.Params))
	for i := len(args) - 1; i >= 0; i-- {
		a, err := l.pop()
		if err != nil {
			return nil, err
		}
		args[i] = a
	}

	imp, imported := l.m.FuncImport(callee)
	if imported && imp.Module == guest.HostModule {
		name := "print"
		if l.nextCallsNewline() {
			l.pos++
			name = "println"
		}
		switch imp.Name {
		case guest.HostPrintBool:
			return []stmt{simple("%s(%s);", name, asBool(args[0]))}, nil
		case guest.HostPrintI64, guest.HostPrintStr:
			return []stmt{simple("%s(%s);", name, args[0])}, nil
		case guest.HostNewline:
			return []stmt{simple("println();")}, nil
		}
		return nil, fmt.Errorf("%w: host function %s", errUnsupported, imp.Name)
	}

	name := ident(l.m.FuncName(callee))
	if imported {
		name = ident(imp.Module) + "." + ident(imp.Name)
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	e := leaf(name + "(" + strings.Join(parts, ", ") + ")")
	if len(t.Results) == 0 {
		return []stmt{simple("%s;", e)}, nil
	}
	l.push(e)
	return nil, nil
}

func (l *lifter) nextCallsNewline() bool {
	if l.pos >= len(l.body) || l.body[l.pos].Op != wasm.OpCall {
		return false
	}
	imp, ok := l.m.FuncImport(uint32(l.body[l.pos].Imm))
	return ok && imp.Module == guest.HostModule && imp.Name == guest.HostNewline
}

func (l *lifter) ifInstr(in wasm.Instr) ([]stmt, error) {
	cond, err := l.pop()
	if err != nil {
		return nil, err
	}
	cond = asBool(cond)

	if in.Block == wasm.BlockI64 {
		return nil, l.logical(cond)
	}
	if in.Block != wasm.BlockEmpty {
		return nil, fmt.Errorf("%w: if with block type %d", errUnsupported, in.Block)
	}

	base := len(l.stack)
	l.depth++
	defer func() { l.depth-- }()
	s := stmt{kind: ifStmt, cond: cond}
	var t term
	if s.then, t, err = l.seq(); err != nil {
		return nil, err
	}
	if t == termElse {
		if s.els, t, err = l.seq(); err != nil {
			return nil, err
		}
	}
	if t != termEnd || len(l.stack) != base {
		return nil, fmt.Errorf("%w: malformed if", errUnsupported)
	}
	return []stmt{s}, nil
}

// logical recognizes the short-circuit lowering of && and ||.
func (l *lifter) logical(cond *expr) error {
	then, t, err := l.value()
	if err != nil || t != termElse {
		return fmt.Errorf("%w: malformed logical expression", errUnsupported)
	}
	els, t, err := l.value()
	if err != nil || t != termEnd {
		return fmt.Errorf("%w: malformed logical expression", errUnsupported)
	}
	switch {
	case els.isConst(0):
		l.push(&expr{op: "&&", x: cond, y: asBool(then), prec: precAnd, local: -1})
	case then.isConst(1):
		l.push(&expr{op: "||", x: cond, y: asBool(els), prec: precOr, local: -1})
	default:
		return fmt.Errorf("%w: value-typed if", errUnsupported)
	}
	return nil
}

// value lifts a region that must produce exactly one value and no statements.
func (l *lifter) value() (*expr, term, error) {
	base := len(l.stack)
	stmts, t, err := l.seq()
	if err != nil {
		return nil, 0, err
	}
	if len(stmts) > 0 || len(l.stack) != base+1 {
		return nil, 0, fmt.Errorf("%w: region is not an expression", errUnsupported)
	}
	v, err := l.pop()
	return v, t, err
}

// while recognizes block { loop { cond; i64.eqz; br_if 1; body; br 0 } }.
func (l *lifter) while(in wasm.Instr) ([]stmt, error) {
	if in.Block != wasm.BlockEmpty || l.pos >= len(l.body) ||
		l.body[l.pos].Op != wasm.OpLoop || l.body[l.pos].Block != wasm.BlockEmpty {
		return nil, fmt.Errorf("%w: block", errUnsupported)
	}
	l.pos++

	base := len(l.stack)
	for {
		if l.pos >= len(l.body) {
			return nil, fmt.Errorf("%w: unterminated loop", errUnsupported)
		}
		in := l.body[l.pos]
		if in.Op == wasm.OpBrIf && in.Imm == 1 {
			l.pos++
			break
		}
		l.pos++
		stmts, err := l.instr(in)
		if err != nil {
			return nil, err
		}
		if len(stmts) > 0 {
			return nil, fmt.Errorf("%w: statements in loop condition", errUnsupported)
		}
	}
	if len(l.stack) != base+1 {
		return nil, fmt.Errorf("%w: loop condition", errUnsupported)
	}
	exit, err := l.pop()
	if err != nil {
		return nil, err
	}
	if exit.op != "!" || exit.y != nil {
		return nil, fmt.Errorf("%w: loop exit is not negated", errUnsupported)
	}

	l.depth++
	defer func() { l.depth-- }()
	body, t, err := l.seq()
	if err != nil {
		return nil, err
	}
	if t != termLoop || len(l.stack) != base {
		return nil, fmt.Errorf("%w: malformed loop", errUnsupported)
	}
	return []stmt{{kind: whileStmt, cond: asBool(exit.x), then: body}}, nil
}

// braceType maps a symbol type name to Brace.
func braceType(name string) string {
	switch strings.ToLower(name) {
	case "", "int", "long", "integer", "i64":
		return "int"
	case "bool", "boolean":
		return "bool"
	case "string":
		return "string"
	}
	return "int"
}

var braceKeywords = map[string]bool{
	"func": true, "var": true, "if": true, "else": true, "while": true, "return": true,
	"true": true, "false": true, "int": true, "bool": true, "string": true,
	"print": true, "println": true,
}

// ident turns a wasm name into a Brace identifier.
func ident(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || braceKeywords[s] {
		s += "_"
	}
	return s
}

type braceWriter struct {
	m    *wasm.Module
	syms *guest.Symbols
	opts Options
	sb   strings.Builder
}

func renderBrace(m *wasm.Module, syms *guest.Symbols, opts Options) string {
	w := &braceWriter{m: m, syms: syms, opts: opts}
	w.header()
	base := uint32(m.ImportedFuncs())
	for i, f := range m.Funcs {
		if i > 0 || w.sb.Len() > 0 {
			w.sb.WriteByte('\n')
		}
		w.function(base+uint32(i), f)
	}
	return w.sb.String()
}

func (w *braceWriter) header() {
	if w.m.Names.Module != "" {
		fmt.Fprintf(&w.sb, "// module %s\n", w.m.Names.Module)
	}
	seen := map[string]bool{}
	var refs []string
	for _, imp := range w.m.Imports {
		if imp.Kind == wasm.ExternFunc && imp.Module != guest.HostModule && !seen[imp.Module] {
			seen[imp.Module] = true
			refs = append(refs, imp.Module)
		}
	}
	sort.Strings(refs)
	if len(refs) > 0 {
		fmt.Fprintf(&w.sb, "// references: %s\n", strings.Join(refs, ", "))
	}
}

func (w *braceWriter) function(idx uint32, f wasm.Function) {
	var t wasm.FuncType
	if int(f.TypeIndex) < len(w.m.Types) {
		t = w.m.Types[f.TypeIndex]
	}
	sym, hasSym := symbol(w.syms, idx)

	n := len(t.Params) + len(f.Locals)
	l := &lifter{
		m:        w.m,
		version:  w.opts.Version,
		body:     f.Body,
		nparams:  len(t.Params),
		names:    make([]string, n),
		types:    make([]string, n),
		declared: map[int]bool{},
		hoisted:  map[int]bool{},
	}
	used := map[string]bool{}
	for i := range n {
		name := w.m.LocalName(idx, uint32(i))
		switch {
		case name != "":
		case i < len(t.Params):
			name = fmt.Sprintf("p%d", i)
		default:
			name = fmt.Sprintf("l%d", i)
		}
		name = ident(name)
		// Block-scoped locals may share a name.
		if used[name] {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		used[name] = true
		l.names[i] = name
		l.types[i] = "int"
	}
	if len(t.Results) > 0 {
		l.result = "int"
	}
	if hasSym {
		for _, ls := range sym.Locals {
			if int(ls.Index) < n {
				l.types[ls.Index] = braceType(ls.Type)
			}
		}
		if sym.Result != "" && l.result != "" {
			l.result = braceType(sym.Result)
		}
	}

	if hasSym && w.opts.SourceLines {
		fmt.Fprintf(&w.sb, "// line %d\n", sym.Line+1)
	}

	topLevel := hasSym && sym.Synthesized && w.opts.Version >= 3
	indent := 1
	if topLevel {
		indent = 0
	} else {
		name := ident(w.m.FuncName(idx))
		if hasSym && sym.Synthesized {
			name = "main"
		}
		params := make([]string, len(t.Params))
		for i := range params {
			params[i] = l.names[i] + " " + l.types[i]
		}
		fmt.Fprintf(&w.sb, "func %s(%s)", name, strings.Join(params, ", "))
		if l.result != "" {
			fmt.Fprintf(&w.sb, " %s", l.result)
		}
		w.sb.WriteString(" {\n")
	}

	stmts, err := l.lift()
	if err != nil {
		w.fallback(idx, f, l.names, indent, err)
	} else {
		for i := l.nparams; i < n; i++ {
			if l.hoisted[i] {
				w.line(indent, "var %s %s;", l.names[i], l.types[i])
			}
		}
		w.stmts(indent, stmts)
	}
	if !topLevel {
		w.sb.WriteString("}\n")
	}
}

// lift converts the whole function body.
func (l *lifter) lift() ([]stmt, error) {
	stmts, t, err := l.seq()
	if err != nil {
		return nil, err
	}
	if t != termEOF {
		return nil, fmt.Errorf("%w: unbalanced end", errUnsupported)
	}
	switch {
	case len(l.stack) == 1 && l.result != "":
		v, _ := l.pop()
		if l.result == "bool" {
			v = asBool(v)
		}
		stmts = append(stmts, simple("return %s;", v))
	case len(l.stack) > 0:
		return nil, fmt.Errorf("%w: %d values left on the stack", errUnsupported, len(l.stack))
	case l.trailingTrap && !returns(stmts):
		return nil, fmt.Errorf("%w: unreachable", errUnsupported)
	}
	return stmts, nil
}

// returns reports whether every path through list ends in a return.
func returns(list []stmt) bool {
	if len(list) == 0 {
		return false
	}
	s := list[len(list)-1]
	switch s.kind {
	case simpleStmt:
		return strings.HasPrefix(s.text, "return")
	case ifStmt:
		return returns(s.then) && returns(s.els)
	}
	return false
}

func (w *braceWriter) line(indent int, format string, args ...any) {
	w.sb.WriteString(strings.Repeat("    ", indent))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *braceWriter) stmts(indent int, list []stmt) {
	for _, s := range list {
		w.stmt(indent, s, "")
	}
}

func (w *braceWriter) stmt(indent int, s stmt, prefix string) {
	switch s.kind {
	case simpleStmt:
		w.line(indent, "%s", s.text)
	case whileStmt:
		w.line(indent, "while (%s) {", s.cond)
		w.stmts(indent+1, s.then)
		w.line(indent, "}")
	case ifStmt:
		w.line(indent, "%sif (%s) {", prefix, s.cond)
		w.stmts(indent+1, s.then)
		switch {
		case len(s.els) == 1 && s.els[0].kind == ifStmt:
			w.sb.WriteString(strings.Repeat("    ", indent))
			w.sb.WriteString("} ")
			w.elseIf(indent, s.els[0])
			return
		case len(s.els) > 0:
			w.line(indent, "} else {")
			w.stmts(indent+1, s.els)
		}
		w.line(indent, "}")
	}
}

// elseIf continues an "} else if" chain on the current line.
func (w *braceWriter) elseIf(indent int, s stmt) {
	fmt.Fprintf(&w.sb, "else if (%s) {\n", s.cond)
	w.stmts(indent+1, s.then)
	switch {
	case len(s.els) == 1 && s.els[0].kind == ifStmt:
		w.sb.WriteString(strings.Repeat("    ", indent))
		w.sb.WriteString("} ")
		w.elseIf(indent, s.els[0])
		return
	case len(s.els) > 0:
		w.line(indent, "} else {")
		w.stmts(indent+1, s.els)
	}
	w.line(indent, "}")
}

// fallback renders the disassembled body as comments.
func (w *braceWriter) fallback(idx uint32, f wasm.Function, names []string, indent int, reason error) {
	w.line(indent, "// could not lift: %v", reason)
	ww := &watWriter{m: w.m}
	depth := 0
	for _, in := range f.Body {
		if in.Op == wasm.OpEnd || in.Op == wasm.OpElse {
			depth--
		}
		w.line(indent, "// %s%s", strings.Repeat("  ", max(depth, 0)), ww.instr(idx, names, in))
		switch in.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse:
			depth++
		}
	}
}
