package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/wasm"
	"go.uber.org/multierr"
)

// Diagnostic codes, reported with the AS prefix.
const (
	CodeUnknownInstruction = 1
	CodeUnknownLabel       = 2
	CodeUnknownLocal       = 3
	CodeUnknownFunction    = 4
	CodeBadDirective       = 5
	CodeNoEntry            = 6
	CodeDuplicate          = 7
	CodeOutsideFunction    = 8
	CodeUnclosed           = 9
	CodeBadOperand         = 10
)

// strMnemonic pushes the packed reference of a .data label.
const strMnemonic = "str"

// AssembleOptions control assembly.
type AssembleOptions struct {
	// Name is the module name used when the source has no .module directive.
	Name string
	// Console requires an .entrypoint and exports it as main.
	Console bool
}

// Assemble translates src to a wasm image.
func Assemble(src string, opts AssembleOptions) ([]byte, error) {
	prog := assemble(src, opts)
	var err error
	lines := guest.NewLineIndex(src)
	for _, d := range prog.diags {
		if d.Warning {
			continue
		}
		pos := lines.Position(max(d.Span.Start, 0))
		err = multierr.Append(err, fmt.Errorf("%d:%d: %s", pos.Line+1, pos.Column+1, d.Message))
	}
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", opts.Name, err)
	}
	return wasm.Encode(prog.mod)
}

type field struct {
	text string
	span ast.Span
}

type instrLine struct {
	fields []field
	span   ast.Span
}

type funcDef struct {
	name    string
	span    ast.Span
	line    int
	params  []string
	result  bool
	locals  []string
	export  bool
	doc     string
	body    []instrLine
	ended   bool
	index   uint32
	byName  map[string]uint32
}

type importDef struct {
	module, name     string
	params, results int
}

type program struct {
	mod   *wasm.Module
	syms  *guest.Symbols
	diags []ast.Diagnostic
}

type assembler struct {
	opts    AssembleOptions
	name    string
	diags   []ast.Diagnostic
	imports []importDef
	funcs   []*funcDef
	cur     *funcDef
	entry   *funcDef
	data    []wasm.Data
	labels  map[string]int64
	dataEnd uint32
	docs    map[string]string
	index   map[string]uint32
}

func (a *assembler) errorf(code int, span ast.Span, format string, args ...any) {
	a.diags = append(a.diags, ast.Errorf(code, span, format, args...))
}

func assemble(src string, opts AssembleOptions) *program {
	a := &assembler{
		opts:    opts,
		name:    opts.Name,
		labels:  map[string]int64{},
		dataEnd: guest.DataBase,
		docs:    map[string]string{},
		index:   map[string]uint32{},
	}
	offset := 0
	for lineNo, line := range strings.Split(src, "\n") {
		a.line(line, offset, lineNo)
		offset += len(line) + 1
	}
	if a.cur != nil {
		a.errorf(CodeUnclosed, a.cur.span, "Function '%s' is missing .end", a.cur.name)
	}
	a.resolveIndices()

	mod := &wasm.Module{
		Memory: &wasm.Limits{Min: max((a.dataEnd+65535)/65536, 1)},
		Data:   a.data,
		Names: wasm.Names{
			Module:    a.name,
			Functions: map[uint32]string{},
			Locals:    map[uint32]map[uint32]string{},
		},
	}
	for _, imp := range a.imports {
		mod.Imports = append(mod.Imports, wasm.Import{
			Module:    imp.module,
			Name:      imp.name,
			Kind:      wasm.ExternFunc,
			TypeIndex: mod.TypeIndex(i64Sig(imp.params, imp.results)),
		})
	}

	syms := &guest.Symbols{Language: guest.Asm, Version: 1}
	for _, fn := range a.funcs {
		results := 0
		if fn.result {
			results = 1
		}
		f := wasm.Function{TypeIndex: mod.TypeIndex(i64Sig(len(fn.params), results))}
		for range fn.locals {
			f.Locals = append(f.Locals, wasm.I64)
		}
		f.Body = a.body(fn)
		mod.Funcs = append(mod.Funcs, f)

		mod.Names.Functions[fn.index] = fn.name
		names := map[uint32]string{}
		fs := guest.FunctionSymbol{Index: fn.index, Name: fn.name, Line: fn.line}
		if fn.result {
			fs.Result = "i64"
		}
		for i, n := range append(append([]string(nil), fn.params...), fn.locals...) {
			names[uint32(i)] = n
			fs.Locals = append(fs.Locals, guest.LocalSymbol{Index: uint32(i), Name: n, Type: "i64", Param: i < len(fn.params)})
		}
		mod.Names.Locals[fn.index] = names
		syms.Functions = append(syms.Functions, fs)
		if fn.doc != "" {
			a.docs[fn.name] = fn.doc
		}
	}

	a.exports(mod)
	if len(a.docs) > 0 {
		payload, err := guest.EncodeDocs(a.docs)
		if err == nil {
			mod.Customs = append(mod.Customs, wasm.Custom{Name: guest.DocsSection, Data: payload})
		}
	}
	return &program{mod: mod, syms: syms, diags: a.diags}
}

func i64Sig(params, results int) wasm.FuncType {
	t := wasm.FuncType{}
	for range params {
		t.Params = append(t.Params, wasm.I64)
	}
	for range results {
		t.Results = append(t.Results, wasm.I64)
	}
	return t
}

func (a *assembler) exports(mod *wasm.Module) {
	if a.opts.Console {
		if a.entry == nil {
			a.errorf(CodeNoEntry, ast.NoSpan, "Program has no entry point; mark a function with .entrypoint")
		} else {
			if len(a.entry.params) > 0 {
				a.errorf(CodeBadDirective, a.entry.span, "Entry point '%s' must not take parameters", a.entry.name)
			}
			mod.Exports = append(mod.Exports, wasm.Export{Name: guest.EntryPoint, Kind: wasm.ExternFunc, Index: a.entry.index})
		}
	}
	for _, fn := range a.funcs {
		if !fn.export || (a.opts.Console && (fn == a.entry || fn.name == guest.EntryPoint)) {
			continue
		}
		mod.Exports = append(mod.Exports, wasm.Export{Name: fn.name, Kind: wasm.ExternFunc, Index: fn.index})
	}
	mod.Exports = append(mod.Exports, wasm.Export{Name: guest.MemoryExport, Kind: wasm.ExternMemory})
}

// resolveIndices numbers imports first, then functions.
func (a *assembler) resolveIndices() {
	for i, imp := range a.imports {
		a.index[imp.module+"."+imp.name] = uint32(i)
	}
	for i, fn := range a.funcs {
		fn.index = uint32(len(a.imports) + i)
		a.index[fn.name] = fn.index
	}
}

// fields splits s on whitespace and commas, keeping quoted strings whole.
func fields(s string, base int) []field {
	var out []field
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',' || s[i] == '\r') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		if s[i] == '"' {
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			i = min(i+1, len(s))
		} else {
			for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != ',' && s[i] != '\r' {
				i++
			}
		}
		out = append(out, field{text: s[start:i], span: ast.Span{Start: base + start, End: base + i}})
	}
	return out
}

// stripComment removes a ; comment outside string literals.
func stripComment(line string) string {
	in := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if in {
				i++
			}
		case '"':
			in = !in
		case ';':
			if !in {
				return line[:i]
			}
		}
	}
	return line
}

func (a *assembler) line(raw string, offset, lineNo int) {
	fs := fields(stripComment(raw), offset)
	if len(fs) == 0 {
		return
	}
	head := fs[0]
	span := ast.Span{Start: head.span.Start, End: fs[len(fs)-1].span.End}
	if !strings.HasPrefix(head.text, ".") {
		if a.cur == nil {
			a.errorf(CodeOutsideFunction, span, "Instruction '%s' outside of a function", head.text)
			return
		}
		a.cur.body = append(a.cur.body, instrLine{fields: fs, span: span})
		return
	}

	args := fs[1:]
	switch head.text {
	case ".module":
		if len(args) != 1 {
			a.errorf(CodeBadDirective, span, "Expected: .module name")
			return
		}
		a.name = args[0].text

	case ".import":
		if len(args) != 4 {
			a.errorf(CodeBadDirective, span, "Expected: .import module name params results")
			return
		}
		params, err1 := strconv.Atoi(args[2].text)
		results, err2 := strconv.Atoi(args[3].text)
		if err1 != nil || err2 != nil || params < 0 || results < 0 || results > 1 {
			a.errorf(CodeBadDirective, span, "Import arity must be a parameter count and a result count of 0 or 1")
			return
		}
		a.imports = append(a.imports, importDef{module: args[0].text, name: args[1].text, params: params, results: results})

	case ".func":
		if a.cur != nil {
			a.errorf(CodeUnclosed, a.cur.span, "Function '%s' is missing .end", a.cur.name)
		}
		a.cur = nil
		fn, ok := a.funcHeader(strings.TrimSpace(stripComment(raw)[head.span.End-offset:]), span)
		if !ok {
			return
		}
		fn.line = lineNo
		for _, other := range a.funcs {
			if other.name == fn.name {
				a.errorf(CodeDuplicate, span, "Function '%s' is already defined", fn.name)
			}
		}
		a.funcs = append(a.funcs, fn)
		a.cur = fn

	case ".local":
		if a.cur == nil {
			a.errorf(CodeOutsideFunction, span, ".local outside of a function")
			return
		}
		for _, f := range args {
			a.declareLocal(f.text, f.span)
			a.cur.locals = append(a.cur.locals, f.text)
		}

	case ".export":
		if a.cur == nil {
			a.errorf(CodeOutsideFunction, span, ".export outside of a function")
			return
		}
		a.cur.export = true

	case ".entrypoint":
		switch {
		case a.cur == nil:
			a.errorf(CodeOutsideFunction, span, ".entrypoint outside of a function")
		case a.entry != nil && a.entry != a.cur:
			a.errorf(CodeDuplicate, span, "Entry point already defined by '%s'", a.entry.name)
		default:
			a.entry = a.cur
		}

	case ".doc":
		text, ok := a.quoted(args, span, ".doc \"text\"")
		if !ok {
			return
		}
		if a.cur == nil {
			a.docs[""] = text
		} else {
			a.cur.doc = text
		}

	case ".data":
		if len(args) < 1 {
			a.errorf(CodeBadDirective, span, "Expected: .data label \"text\"")
			return
		}
		label := args[0]
		text, ok := a.quoted(args[1:], span, ".data label \"text\"")
		if !ok {
			return
		}
		if _, dup := a.labels[label.text]; dup {
			a.errorf(CodeDuplicate, label.span, "Data label '%s' is already defined", label.text)
			return
		}
		off := a.dataEnd
		a.data = append(a.data, wasm.Data{Offset: off, Bytes: []byte(text)})
		a.dataEnd += uint32(len(text))
		a.labels[label.text] = guest.PackString(off, uint32(len(text)))

	case ".end":
		if a.cur == nil {
			a.errorf(CodeOutsideFunction, span, ".end without .func")
			return
		}
		a.cur.ended = true
		a.cur = nil

	default:
		a.errorf(CodeBadDirective, head.span, "Unknown directive '%s'", head.text)
	}
}

func (a *assembler) quoted(args []field, span ast.Span, usage string) (string, bool) {
	if len(args) != 1 || !strings.HasPrefix(args[0].text, `"`) {
		a.errorf(CodeBadDirective, span, "Expected: %s", usage)
		return "", false
	}
	text, err := strconv.Unquote(args[0].text)
	if err != nil {
		a.errorf(CodeBadOperand, args[0].span, "Malformed string literal")
		return "", false
	}
	return text, true
}

func (a *assembler) declareLocal(name string, span ast.Span) {
	if _, dup := a.cur.byName[name]; dup {
		a.errorf(CodeDuplicate, span, "Local '%s' is already defined", name)
		return
	}
	a.cur.byName[name] = uint32(len(a.cur.params) + len(a.cur.locals))
}

// funcHeader parses `name(a, b) -> int`.
func (a *assembler) funcHeader(s string, span ast.Span) (*funcDef, bool) {
	fn := &funcDef{span: span, byName: map[string]uint32{}}
	name, rest, hasParams := strings.Cut(s, "(")
	fn.name = strings.TrimSpace(name)
	if !hasParams {
		fn.name, rest, _ = strings.Cut(s, " ")
		fn.name = strings.TrimSpace(fn.name)
		rest = ")" + rest
	}
	if fn.name == "" || strings.ContainsAny(fn.name, " \t") {
		a.errorf(CodeBadDirective, span, "Expected: .func name(params) [-> int]")
		return nil, false
	}
	params, tail, ok := strings.Cut(rest, ")")
	if !ok {
		a.errorf(CodeBadDirective, span, "Missing ')' in function header")
		return nil, false
	}
	for _, p := range strings.Split(params, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if _, dup := fn.byName[p]; dup {
			a.errorf(CodeDuplicate, span, "Parameter '%s' is already defined", p)
			continue
		}
		fn.byName[p] = uint32(len(fn.params))
		fn.params = append(fn.params, p)
	}
	switch tail = strings.TrimSpace(tail); tail {
	case "":
	case "-> int", "-> i64", "->int", "->i64":
		fn.result = true
	default:
		a.errorf(CodeBadDirective, span, "Unexpected '%s' after parameters", tail)
	}
	return fn, true
}

type blockFrame struct {
	label string
}

// body resolves the instruction lines of fn.
func (a *assembler) body(fn *funcDef) []wasm.Instr {
	var out []wasm.Instr
	var blocks []blockFrame
	for _, il := range fn.body {
		mn := il.fields[0]
		args := il.fields[1:]
		if mn.text == strMnemonic {
			if len(args) != 1 {
				a.errorf(CodeBadOperand, il.span, "Expected: str label")
				continue
			}
			v, ok := a.labels[args[0].text]
			if !ok {
				a.errorf(CodeUnknownLabel, args[0].span, "Unknown data label '%s'", args[0].text)
				continue
			}
			out = append(out, wasm.I(wasm.OpI64Const, v))
			continue
		}
		op, ok := wasm.Lookup(mn.text)
		if !ok {
			a.errorf(CodeUnknownInstruction, mn.span, "Unknown instruction '%s'", mn.text)
			continue
		}
		in := wasm.Instr{Op: op}
		switch op.Immediate() {
		case wasm.ImmNone, wasm.ImmMemory, wasm.ImmMemoryCopy:
			a.noOperands(op, args)
		case wasm.ImmBlock:
			in.Block = wasm.BlockEmpty
			frame := blockFrame{}
			for _, f := range args {
				switch {
				case strings.HasPrefix(f.text, "$"):
					frame.label = f.text
				case f.text == "i32":
					in.Block = wasm.BlockI32
				case f.text == "i64":
					in.Block = wasm.BlockI64
				case f.text == "f32":
					in.Block = wasm.BlockF32
				case f.text == "f64":
					in.Block = wasm.BlockF64
				default:
					a.errorf(CodeBadOperand, f.span, "Invalid block type '%s'", f.text)
				}
			}
			blocks = append(blocks, frame)
		case wasm.ImmLabel:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(a.label(args[0], blocks))
			}
		case wasm.ImmLabelTable:
			if len(args) == 0 {
				a.errorf(CodeBadOperand, il.span, "br_table needs at least a default label")
				continue
			}
			for _, f := range args {
				in.Labels = append(in.Labels, a.label(f, blocks))
			}
		case wasm.ImmFunc:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(a.function(args[0]))
			}
		case wasm.ImmLocal:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(a.local(fn, args[0]))
			}
		case wasm.ImmGlobal:
			if a.arity(op, il, args, 1) {
				in.Imm = a.integer(args[0], 32)
			}
		case wasm.ImmCallIndirect:
			if a.arity(op, il, args, 2) {
				in.Imm = a.integer(args[0], 32)
				in.Table = uint32(a.integer(args[1], 32))
			}
		case wasm.ImmMemArg:
			in.Mem = a.memArg(args)
		case wasm.ImmI32:
			if a.arity(op, il, args, 1) {
				in.Imm = a.integer(args[0], 32)
			}
		case wasm.ImmI64:
			if a.arity(op, il, args, 1) {
				in.Imm = a.integer(args[0], 64)
			}
		case wasm.ImmF32:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(math.Float32bits(float32(a.float(args[0], 32))))
			}
		case wasm.ImmF64:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(math.Float64bits(a.float(args[0], 64)))
			}
		case wasm.ImmSelectTypes:
			for _, f := range args {
				in.Types = append(in.Types, a.valType(f))
			}
		case wasm.ImmRefType:
			if a.arity(op, il, args, 1) {
				in.Imm = int64(a.valType(args[0]))
			}
		}
		if op == wasm.OpEnd {
			if len(blocks) == 0 {
				a.errorf(CodeUnclosed, mn.span, "'end' without an open block")
				continue
			}
			blocks = blocks[:len(blocks)-1]
		}
		out = append(out, in)
	}
	if len(blocks) > 0 && fn.ended {
		a.errorf(CodeUnclosed, fn.span, "Function '%s' has %d unclosed block(s)", fn.name, len(blocks))
	}
	return out
}

func (a *assembler) noOperands(op wasm.Opcode, args []field) {
	if len(args) > 0 {
		a.errorf(CodeBadOperand, args[0].span, "'%s' takes no operands", op)
	}
}

func (a *assembler) arity(op wasm.Opcode, il instrLine, args []field, n int) bool {
	if len(args) != n {
		a.errorf(CodeBadOperand, il.span, "'%s' takes %d operand(s)", op, n)
		return false
	}
	return true
}

func (a *assembler) label(f field, blocks []blockFrame) uint32 {
	if !strings.HasPrefix(f.text, "$") {
		return uint32(a.integer(f, 32))
	}
	for depth := len(blocks) - 1; depth >= 0; depth-- {
		if blocks[depth].label == f.text {
			return uint32(len(blocks) - 1 - depth)
		}
	}
	a.errorf(CodeUnknownLabel, f.span, "Unknown label '%s'", f.text)
	return 0
}

func (a *assembler) function(f field) uint32 {
	if idx, ok := a.index[f.text]; ok {
		return idx
	}
	if n, err := strconv.ParseUint(f.text, 10, 32); err == nil {
		return uint32(n)
	}
	a.errorf(CodeUnknownFunction, f.span, "Unknown function '%s'", f.text)
	return 0
}

func (a *assembler) local(fn *funcDef, f field) uint32 {
	if idx, ok := fn.byName[f.text]; ok {
		return idx
	}
	if n, err := strconv.ParseUint(f.text, 10, 32); err == nil {
		return uint32(n)
	}
	a.errorf(CodeUnknownLocal, f.span, "Unknown local '%s' in function '%s'", f.text, fn.name)
	return 0
}

func (a *assembler) integer(f field, bits int) int64 {
	if v, err := strconv.ParseInt(f.text, 0, bits); err == nil {
		return v
	}
	// unsigned spellings such as 0xFFFFFFFF wrap to their signed value
	if v, err := strconv.ParseUint(f.text, 0, bits); err == nil {
		if bits == 32 {
			return int64(int32(uint32(v)))
		}
		return int64(v)
	}
	a.errorf(CodeBadOperand, f.span, "Invalid integer '%s'", f.text)
	return 0
}

func (a *assembler) float(f field, bits int) float64 {
	v, err := strconv.ParseFloat(f.text, bits)
	if err != nil {
		a.errorf(CodeBadOperand, f.span, "Invalid number '%s'", f.text)
	}
	return v
}

func (a *assembler) memArg(args []field) wasm.MemArg {
	var m wasm.MemArg
	for _, f := range args {
		key, val, ok := strings.Cut(f.text, "=")
		n, err := strconv.ParseUint(val, 0, 32)
		if !ok || err != nil {
			a.errorf(CodeBadOperand, f.span, "Expected offset=N or align=N")
			continue
		}
		switch key {
		case "offset":
			m.Offset = uint32(n)
		case "align":
			m.Align = uint32(n)
		default:
			a.errorf(CodeBadOperand, f.span, "Expected offset=N or align=N")
		}
	}
	return m
}

func (a *assembler) valType(f field) wasm.ValType {
	switch f.text {
	case "i32":
		return wasm.I32
	case "i64":
		return wasm.I64
	case "f32":
		return wasm.F32
	case "f64":
		return wasm.F64
	case "funcref":
		return wasm.FuncRef
	case "externref":
		return wasm.ExternRef
	}
	a.errorf(CodeBadOperand, f.span, "Unknown value type '%s'", f.text)
	return wasm.I64
}
