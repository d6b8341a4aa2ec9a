package decompiler

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/wasm"
)

type watWriter struct {
	m    *wasm.Module
	syms *guest.Symbols
	opts Options
	sb   strings.Builder
}

func renderWAT(m *wasm.Module, syms *guest.Symbols, opts Options) string {
	w := &watWriter{m: m, syms: syms, opts: opts}
	w.module()
	return w.sb.String()
}

func (w *watWriter) line(depth int, format string, args ...any) {
	w.sb.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&w.sb, format, args...)
	w.sb.WriteByte('\n')
}

func (w *watWriter) module() {
	if w.m.Names.Module != "" {
		w.line(0, "(module $%s", w.m.Names.Module)
	} else {
		w.line(0, "(module")
	}
	for i, t := range w.m.Types {
		w.line(1, "(type (;%d;) (func%s))", i, signature(t, nil))
	}

	var fi uint32
	for _, imp := range w.m.Imports {
		switch imp.Kind {
		case wasm.ExternFunc:
			w.line(1, "(import %q %q (func $%s (;%d;) (type %d)))", imp.Module, imp.Name, w.m.FuncName(fi), fi, imp.TypeIndex)
			fi++
		default:
			w.line(1, "(import %q %q (%s))", imp.Module, imp.Name, imp.Kind)
		}
	}
	if w.m.Memory != nil {
		if w.m.Memory.Max != nil {
			w.line(1, "(memory (;0;) %d %d)", w.m.Memory.Min, *w.m.Memory.Max)
		} else {
			w.line(1, "(memory (;0;) %d)", w.m.Memory.Min)
		}
	}

	base := uint32(w.m.ImportedFuncs())
	for i, f := range w.m.Funcs {
		w.function(base+uint32(i), f)
	}

	for _, e := range w.m.Exports {
		switch e.Kind {
		case wasm.ExternFunc:
			w.line(1, "(export %q (func $%s))", e.Name, w.m.FuncName(e.Index))
		default:
			w.line(1, "(export %q (%s %d))", e.Name, e.Kind, e.Index)
		}
	}
	for _, d := range w.m.Data {
		if d.Passive {
			w.line(1, "(data %s)", quoteData(d.Bytes))
			continue
		}
		w.line(1, "(data (i32.const %d) %s)", d.Offset, quoteData(d.Bytes))
	}
	w.line(0, ")")
}

func signature(t wasm.FuncType, names []string) string {
	var b strings.Builder
	for i, p := range t.Params {
		if i < len(names) && names[i] != "" {
			fmt.Fprintf(&b, " (param $%s %s)", names[i], p)
		} else {
			fmt.Fprintf(&b, " (param %s)", p)
		}
	}
	for _, r := range t.Results {
		fmt.Fprintf(&b, " (result %s)", r)
	}
	return b.String()
}

func (w *watWriter) localNames(idx uint32, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = w.m.LocalName(idx, uint32(i))
	}
	return names
}

func (w *watWriter) function(idx uint32, f wasm.Function) {
	var t wasm.FuncType
	if int(f.TypeIndex) < len(w.m.Types) {
		t = w.m.Types[f.TypeIndex]
	}
	names := w.localNames(idx, len(t.Params)+len(f.Locals))

	if sym, ok := symbol(w.syms, idx); ok && w.opts.SourceLines {
		w.line(1, ";; line %d", sym.Line+1)
	}
	w.line(1, "(func $%s (;%d;) (type %d)%s", w.m.FuncName(idx), idx, f.TypeIndex, signature(t, names))
	for i, l := range f.Locals {
		if n := names[len(t.Params)+i]; n != "" {
			w.line(2, "(local $%s %s)", n, l)
		} else {
			w.line(2, "(local %s)", l)
		}
	}
	depth := 2
	for _, in := range f.Body {
		if in.Op == wasm.OpEnd || in.Op == wasm.OpElse {
			depth--
		}
		w.line(max(depth, 2), "%s", w.instr(idx, names, in))
		switch in.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse:
			depth++
		}
	}
	w.line(1, ")")
}

// instr formats one instruction with its immediates.
func (w *watWriter) instr(fn uint32, locals []string, in wasm.Instr) string {
	name := in.Op.Name()
	switch in.Op.Immediate() {
	case wasm.ImmBlock:
		if t, ok := in.Block.Result(); ok {
			return fmt.Sprintf("%s (result %s)", name, t)
		}
		if in.Block >= 0 {
			return fmt.Sprintf("%s (type %d)", name, in.Block)
		}
		return name
	case wasm.ImmLabel:
		return fmt.Sprintf("%s %d", name, in.Imm)
	case wasm.ImmLabelTable:
		parts := make([]string, len(in.Labels))
		for i, l := range in.Labels {
			parts[i] = strconv.FormatUint(uint64(l), 10)
		}
		return name + " " + strings.Join(parts, " ")
	case wasm.ImmFunc:
		return fmt.Sprintf("%s $%s", name, w.m.FuncName(uint32(in.Imm)))
	case wasm.ImmCallIndirect:
		return fmt.Sprintf("%s %d (type %d)", name, in.Table, in.Imm)
	case wasm.ImmLocal:
		if in.Imm >= 0 && int(in.Imm) < len(locals) && locals[in.Imm] != "" {
			return fmt.Sprintf("%s $%s", name, locals[in.Imm])
		}
		return fmt.Sprintf("%s %d", name, in.Imm)
	case wasm.ImmGlobal, wasm.ImmI32, wasm.ImmI64:
		if in.Op == wasm.OpI64Const {
			if s, ok := stringConst(w.m, in.Imm); ok {
				return fmt.Sprintf("%s %d ;; %q", name, in.Imm, s)
			}
		}
		return fmt.Sprintf("%s %d", name, in.Imm)
	case wasm.ImmF32:
		return fmt.Sprintf("%s %s", name, strconv.FormatFloat(float64(math.Float32frombits(uint32(in.Imm))), 'g', -1, 32))
	case wasm.ImmF64:
		return fmt.Sprintf("%s %s", name, strconv.FormatFloat(math.Float64frombits(uint64(in.Imm)), 'g', -1, 64))
	case wasm.ImmMemArg:
		s := name
		if in.Mem.Offset != 0 {
			s += fmt.Sprintf(" offset=%d", in.Mem.Offset)
		}
		return s + fmt.Sprintf(" align=%d", uint32(1)<<in.Mem.Align)
	case wasm.ImmSelectTypes:
		var b strings.Builder
		b.WriteString(name)
		for _, t := range in.Types {
			fmt.Fprintf(&b, " (result %s)", t)
		}
		return b.String()
	case wasm.ImmRefType:
		return fmt.Sprintf("%s %s", name, wasm.ValType(in.Imm))
	}
	return name
}

// stringConst resolves a packed string constant against the data segments.
func stringConst(m *wasm.Module, v int64) (string, bool) {
	ptr, n := guest.UnpackString(uint64(v))
	if ptr < guest.DataBase {
		return "", false
	}
	b, ok := m.DataAt(ptr, n)
	if !ok {
		return "", false
	}
	return string(b), true
}

// quoteData renders bytes as a WAT string literal.
func quoteData(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "\\%02x", c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
