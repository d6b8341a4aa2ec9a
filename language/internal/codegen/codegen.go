// Package codegen lowers a checked syntax tree to a WebAssembly module.
package codegen

import (
	"fmt"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
	"github.com/caffeineduck/wasmlab/wasm"
)

const pageSize = 65536

// Options control code generation.
type Options struct {
	Language guest.LanguageID
	Version  int
	Console  bool
	// Module is recorded in the name section.
	Module   string
	TypeName func(sema.Type) string
	// Line maps a byte offset to a zero-based line.
	Line     func(offset int) int
}

type hostFunc struct {
	name string
	typ  wasm.FuncType
}

var unary = wasm.FuncType{Params: []wasm.ValType{wasm.I64}}

var hostFuncs = []hostFunc{
	{guest.HostPrintI64, unary},
	{guest.HostPrintBool, unary},
	{guest.HostPrintStr, unary},
	{guest.HostNewline, wasm.FuncType{}},
}

type generator struct {
	opts Options
	info *sema.Info
	mod  *wasm.Module

	host    map[string]uint32
	members map[*sema.Symbol]uint32
	funcs   map[*sema.FuncInfo]uint32
	strings map[string]int64
	dataEnd uint32

	fn   *sema.FuncInfo
	body []wasm.Instr
}

// Generate produces the module and its symbols. info must be free of errors.
func Generate(file *ast.File, info *sema.Info, opts Options) (*wasm.Module, *guest.Symbols, error) {
	g := &generator{
		opts:    opts,
		info:    info,
		mod:     &wasm.Module{},
		host:    map[string]uint32{},
		members: map[*sema.Symbol]uint32{},
		funcs:   map[*sema.FuncInfo]uint32{},
		strings: map[string]int64{},
		dataEnd: guest.DataBase,
	}
	g.mod.Names = wasm.Names{
		Module:    opts.Module,
		Functions: map[uint32]string{},
		Locals:    map[uint32]map[uint32]string{},
	}
	g.declareImports()

	next := uint32(g.mod.ImportedFuncs())
	for _, fn := range info.Funcs {
		g.funcs[fn] = next
		next++
	}

	syms := &guest.Symbols{Language: opts.Language, Version: opts.Version}
	for _, fn := range info.Funcs {
		f, err := g.function(fn)
		if err != nil {
			return nil, nil, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		g.mod.Funcs = append(g.mod.Funcs, f)
		syms.Functions = append(syms.Functions, g.symbol(fn))
	}

	g.exports()
	pages := (g.dataEnd + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	g.mod.Memory = &wasm.Limits{Min: pages}
	g.mod.Exports = append(g.mod.Exports, wasm.Export{Name: guest.MemoryExport, Kind: wasm.ExternMemory})
	return g.mod, syms, nil
}

// declareImports imports the host functions and reference members that are
// actually called, host functions first.
func (g *generator) declareImports() {
	needed := map[string]bool{}
	var members []*sema.Symbol
	seen := map[*sema.Symbol]bool{}
	for _, fn := range g.info.Funcs {
		for _, s := range fn.Body {
			ast.Inspect(s, func(n ast.Node) bool {
				call, ok := n.(*ast.Call)
				if !ok {
					return true
				}
				callee := g.info.Calls[call]
				if callee == nil {
					return true
				}
				switch callee.Kind {
				case sema.SymBuiltin:
					if len(call.Args) == 1 {
						needed[printFunc(g.info.Types[call.Args[0]])] = true
					}
					if callee.Builtin == sema.BuiltinPrintLine {
						needed[guest.HostNewline] = true
					}
				case sema.SymMember:
					if !seen[callee] {
						seen[callee] = true
						members = append(members, callee)
					}
				}
				return true
			})
		}
	}

	for _, h := range hostFuncs {
		if !needed[h.name] {
			continue
		}
		g.host[h.name] = g.importFunc(guest.HostModule, h.name, h.typ)
	}
	for _, m := range members {
		t := wasm.FuncType{Params: make([]wasm.ValType, len(m.Params))}
		for i := range t.Params {
			t.Params[i] = wasm.I64
		}
		if m.Type != sema.Void {
			t.Results = []wasm.ValType{wasm.I64}
		}
		g.members[m] = g.importFunc(m.Namespace, m.Name, t)
	}
}

func (g *generator) importFunc(module, name string, t wasm.FuncType) uint32 {
	idx := uint32(g.mod.ImportedFuncs())
	g.mod.Imports = append(g.mod.Imports, wasm.Import{
		Module:    module,
		Name:      name,
		Kind:      wasm.ExternFunc,
		TypeIndex: g.mod.TypeIndex(t),
	})
	return idx
}

func printFunc(t sema.Type) string {
	switch t {
	case sema.Bool:
		return guest.HostPrintBool
	case sema.String:
		return guest.HostPrintStr
	}
	return guest.HostPrintI64
}

func (g *generator) exports() {
	for _, fn := range g.info.Funcs {
		idx := g.funcs[fn]
		if g.opts.Console {
			if fn == g.info.Entry {
				g.mod.Exports = append(g.mod.Exports, wasm.Export{Name: guest.EntryPoint, Kind: wasm.ExternFunc, Index: idx})
				continue
			}
			if fn.Synthesized || strings.EqualFold(fn.Name, guest.EntryPoint) {
				continue
			}
		}
		if fn.Synthesized {
			continue
		}
		g.mod.Exports = append(g.mod.Exports, wasm.Export{Name: fn.Name, Kind: wasm.ExternFunc, Index: idx})
	}
}

func (g *generator) symbol(fn *sema.FuncInfo) guest.FunctionSymbol {
	fs := guest.FunctionSymbol{
		Index:       g.funcs[fn],
		Name:        fn.Name,
		Synthesized: fn.Synthesized,
	}
	if g.opts.Line != nil {
		fs.Line = g.opts.Line(fn.Span.Start)
	}
	if fn.Result != sema.Void {
		fs.Result = g.typeName(fn.Result)
	}
	for _, l := range fn.Locals {
		fs.Locals = append(fs.Locals, guest.LocalSymbol{
			Index: uint32(l.Local),
			Name:  l.Name,
			Type:  g.typeName(l.Type),
			Param: l.Kind == sema.SymParam,
		})
	}
	return fs
}

func (g *generator) typeName(t sema.Type) string {
	if g.opts.TypeName != nil {
		return g.opts.TypeName(t)
	}
	return fmt.Sprint(int(t))
}

func (g *generator) function(fn *sema.FuncInfo) (wasm.Function, error) {
	g.fn, g.body = fn, nil

	t := wasm.FuncType{Params: make([]wasm.ValType, fn.NumParams)}
	for i := range t.Params {
		t.Params[i] = wasm.I64
	}
	if fn.Result != sema.Void {
		t.Results = []wasm.ValType{wasm.I64}
	}
	f := wasm.Function{TypeIndex: g.mod.TypeIndex(t)}
	for range fn.Locals[fn.NumParams:] {
		f.Locals = append(f.Locals, wasm.I64)
	}

	idx := g.funcs[fn]
	g.mod.Names.Functions[idx] = fn.Name
	names := map[uint32]string{}
	for _, l := range fn.Locals {
		names[uint32(l.Local)] = l.Name
	}
	g.mod.Names.Locals[idx] = names

	if err := g.stmts(fn.Body); err != nil {
		return wasm.Function{}, err
	}
	if fn.Result != sema.Void {
		if fn.Synthesized {
			g.emit(wasm.I(wasm.OpI64Const, 0))
		} else {
			g.emit(wasm.Op(wasm.OpUnreachable))
		}
	}
	f.Body = g.body
	return f, nil
}

func (g *generator) emit(in ...wasm.Instr) {
	g.body = append(g.body, in...)
}

func (g *generator) local(id *ast.Ident) (int64, error) {
	sym := g.info.Idents[id]
	if sym == nil || (sym.Kind != sema.SymLocal && sym.Kind != sema.SymParam) {
		return 0, fmt.Errorf("unresolved local %q", id.Name)
	}
	return int64(sym.Local), nil
}

func (g *generator) stmts(list []ast.Stmt) error {
	for _, s := range list {
		if err := g.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) stmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Block:
		return g.stmts(s.Stmts)

	case *ast.VarDecl:
		idx, err := g.local(s.Name)
		if err != nil {
			return err
		}
		if s.Init != nil {
			if err := g.expr(s.Init); err != nil {
				return err
			}
		} else {
			g.emit(wasm.I(wasm.OpI64Const, 0))
		}
		g.emit(wasm.I(wasm.OpLocalSet, idx))

	case *ast.Assign:
		idx, err := g.local(s.Target)
		if err != nil {
			return err
		}
		if s.Op != ast.AssignSet {
			g.emit(wasm.I(wasm.OpLocalGet, idx))
		}
		if err := g.expr(s.Value); err != nil {
			return err
		}
		switch s.Op {
		case ast.AssignAdd:
			g.emit(wasm.Op(wasm.OpI64Add))
		case ast.AssignSub:
			g.emit(wasm.Op(wasm.OpI64Sub))
		}
		g.emit(wasm.I(wasm.OpLocalSet, idx))

	case *ast.ExprStmt:
		if err := g.expr(s.X); err != nil {
			return err
		}
		if t := g.info.Types[s.X]; t != sema.Void {
			g.emit(wasm.Op(wasm.OpDrop))
		}

	case *ast.If:
		if err := g.expr(s.Cond); err != nil {
			return err
		}
		g.emit(wasm.Op(wasm.OpI32WrapI64), wasm.B(wasm.OpIf, wasm.BlockEmpty))
		if err := g.stmts(s.Then.Stmts); err != nil {
			return err
		}
		if s.Else != nil {
			g.emit(wasm.Op(wasm.OpElse))
			if err := g.stmt(s.Else); err != nil {
				return err
			}
		}
		g.emit(wasm.Op(wasm.OpEnd))

	case *ast.While:
		g.emit(wasm.B(wasm.OpBlock, wasm.BlockEmpty), wasm.B(wasm.OpLoop, wasm.BlockEmpty))
		if err := g.expr(s.Cond); err != nil {
			return err
		}
		g.emit(wasm.Op(wasm.OpI64Eqz), wasm.I(wasm.OpBrIf, 1))
		if err := g.stmts(s.Body.Stmts); err != nil {
			return err
		}
		g.emit(wasm.I(wasm.OpBr, 0), wasm.Op(wasm.OpEnd), wasm.Op(wasm.OpEnd))

	case *ast.Return:
		if s.Value != nil {
			if err := g.expr(s.Value); err != nil {
				return err
			}
		}
		g.emit(wasm.Op(wasm.OpReturn))

	default:
		return fmt.Errorf("unexpected statement %T", s)
	}
	return nil
}

var binaryOps = map[ast.BinaryOp]wasm.Opcode{
	ast.Add: wasm.OpI64Add,
	ast.Sub: wasm.OpI64Sub,
	ast.Mul: wasm.OpI64Mul,
	ast.Div: wasm.OpI64DivS,
	ast.Rem: wasm.OpI64RemS,
	ast.Eq:  wasm.OpI64Eq,
	ast.Ne:  wasm.OpI64Ne,
	ast.Lt:  wasm.OpI64LtS,
	ast.Le:  wasm.OpI64LeS,
	ast.Gt:  wasm.OpI64GtS,
	ast.Ge:  wasm.OpI64GeS,
}

func (g *generator) expr(e ast.Expr) error {
	switch e := e.(type) {
	case *ast.IntLit:
		g.emit(wasm.I(wasm.OpI64Const, e.Value))
	case *ast.BoolLit:
		var v int64
		if e.Value {
			v = 1
		}
		g.emit(wasm.I(wasm.OpI64Const, v))
	case *ast.StringLit:
		g.emit(wasm.I(wasm.OpI64Const, g.stringData(e.Value)))
	case *ast.Paren:
		return g.expr(e.X)
	case *ast.Ident:
		idx, err := g.local(e)
		if err != nil {
			return err
		}
		g.emit(wasm.I(wasm.OpLocalGet, idx))

	case *ast.Unary:
		switch e.Op {
		case ast.Neg:
			g.emit(wasm.I(wasm.OpI64Const, 0))
			if err := g.expr(e.X); err != nil {
				return err
			}
			g.emit(wasm.Op(wasm.OpI64Sub))
		case ast.Not:
			if err := g.expr(e.X); err != nil {
				return err
			}
			g.emit(wasm.Op(wasm.OpI64Eqz), wasm.Op(wasm.OpI64ExtendI32U))
		}

	case *ast.Binary:
		if e.Op.IsLogical() {
			return g.logical(e)
		}
		if err := g.expr(e.X); err != nil {
			return err
		}
		if err := g.expr(e.Y); err != nil {
			return err
		}
		g.emit(wasm.Op(binaryOps[e.Op]))
		if e.Op.IsComparison() {
			g.emit(wasm.Op(wasm.OpI64ExtendI32U))
		}

	case *ast.Call:
		return g.call(e)

	default:
		return fmt.Errorf("unexpected expression %T", e)
	}
	return nil
}

// logical lowers && and || with short-circuit evaluation.
func (g *generator) logical(e *ast.Binary) error {
	if err := g.expr(e.X); err != nil {
		return err
	}
	g.emit(wasm.Op(wasm.OpI32WrapI64), wasm.B(wasm.OpIf, wasm.BlockI64))
	if e.Op == ast.And {
		if err := g.expr(e.Y); err != nil {
			return err
		}
		g.emit(wasm.Op(wasm.OpElse), wasm.I(wasm.OpI64Const, 0))
	} else {
		g.emit(wasm.I(wasm.OpI64Const, 1), wasm.Op(wasm.OpElse))
		if err := g.expr(e.Y); err != nil {
			return err
		}
	}
	g.emit(wasm.Op(wasm.OpEnd))
	return nil
}

func (g *generator) call(e *ast.Call) error {
	callee := g.info.Calls[e]
	if callee == nil {
		return fmt.Errorf("unresolved call at %d", e.Span.Start)
	}
	for _, a := range e.Args {
		if err := g.expr(a); err != nil {
			return err
		}
	}
	switch callee.Kind {
	case sema.SymBuiltin:
		if len(e.Args) == 1 {
			g.emit(wasm.I(wasm.OpCall, int64(g.host[printFunc(g.info.Types[e.Args[0]])])))
		}
		if callee.Builtin == sema.BuiltinPrintLine {
			g.emit(wasm.I(wasm.OpCall, int64(g.host[guest.HostNewline])))
		}
	case sema.SymMember:
		g.emit(wasm.I(wasm.OpCall, int64(g.members[callee])))
	case sema.SymFunc:
		g.emit(wasm.I(wasm.OpCall, int64(g.funcs[callee.Func])))
	default:
		return fmt.Errorf("cannot call %s", callee.Name)
	}
	return nil
}

// stringData places s in linear memory and returns its packed reference.
func (g *generator) stringData(s string) int64 {
	if v, ok := g.strings[s]; ok {
		return v
	}
	off := g.dataEnd
	g.mod.Data = append(g.mod.Data, wasm.Data{Offset: off, Bytes: []byte(s)})
	g.dataEnd += uint32(len(s))
	v := guest.PackString(off, uint32(len(s)))
	g.strings[s] = v
	return v
}
