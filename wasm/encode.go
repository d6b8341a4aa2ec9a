package wasm

import (
	"encoding/binary"
	"fmt"
	"sort"

	"fortio.org/safecast"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
	secDataCnt  = 12
)

type encoder struct {
	err error
}

func (e *encoder) length(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("length %d: %w", n, err)
	}
	return v
}

func (e *encoder) vec(b []byte, n int) []byte {
	return appendU32(b, e.length(n))
}

func (e *encoder) name(b []byte, s string) []byte {
	b = e.vec(b, len(s))
	return append(b, s...)
}

func (e *encoder) section(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = e.vec(out, len(body))
	return append(out, body...)
}

func (e *encoder) custom(out []byte, name string, payload []byte) []byte {
	body := e.name(nil, name)
	body = append(body, payload...)
	return e.section(out, secCustom, body)
}

// Encode writes m in the WebAssembly binary format.
func Encode(m *Module) ([]byte, error) {
	e := &encoder{}
	out := append([]byte(nil), header...)

	if len(m.Types) > 0 {
		body := e.vec(nil, len(m.Types))
		for _, t := range m.Types {
			body = append(body, 0x60)
			body = e.vec(body, len(t.Params))
			for _, p := range t.Params {
				body = append(body, byte(p))
			}
			body = e.vec(body, len(t.Results))
			for _, r := range t.Results {
				body = append(body, byte(r))
			}
		}
		out = e.section(out, secType, body)
	}

	if len(m.Imports) > 0 {
		body := e.vec(nil, len(m.Imports))
		for _, imp := range m.Imports {
			if imp.Kind != ExternFunc {
				return nil, fmt.Errorf("encode import %s.%s: only function imports are supported", imp.Module, imp.Name)
			}
			body = e.name(body, imp.Module)
			body = e.name(body, imp.Name)
			body = append(body, byte(imp.Kind))
			body = appendU32(body, imp.TypeIndex)
		}
		out = e.section(out, secImport, body)
	}

	if len(m.Funcs) > 0 {
		body := e.vec(nil, len(m.Funcs))
		for _, f := range m.Funcs {
			body = appendU32(body, f.TypeIndex)
		}
		out = e.section(out, secFunction, body)
	}

	if m.Memory != nil {
		body := e.vec(nil, 1)
		body = appendLimits(body, *m.Memory)
		out = e.section(out, secMemory, body)
	}

	if len(m.Exports) > 0 {
		body := e.vec(nil, len(m.Exports))
		for _, exp := range m.Exports {
			body = e.name(body, exp.Name)
			body = append(body, byte(exp.Kind))
			body = appendU32(body, exp.Index)
		}
		out = e.section(out, secExport, body)
	}

	if m.Start != nil {
		out = e.section(out, secStart, appendU32(nil, *m.Start))
	}

	if len(m.Funcs) > 0 {
		body := e.vec(nil, len(m.Funcs))
		for i, f := range m.Funcs {
			code, err := e.function(f)
			if err != nil {
				return nil, fmt.Errorf("encode function %d: %w", i, err)
			}
			body = e.vec(body, len(code))
			body = append(body, code...)
		}
		out = e.section(out, secCode, body)
	}

	if len(m.Data) > 0 {
		body := e.vec(nil, len(m.Data))
		for _, d := range m.Data {
			if d.Passive {
				body = append(body, 0x01)
			} else {
				body = append(body, 0x00, byte(OpI32Const))
				body = appendS64(body, int64(int32(d.Offset)))
				body = append(body, byte(OpEnd))
			}
			body = e.vec(body, len(d.Bytes))
			body = append(body, d.Bytes...)
		}
		out = e.section(out, secData, body)
	}

	if names := e.names(m.Names); names != nil {
		out = e.custom(out, "name", names)
	}
	for _, c := range m.Customs {
		out = e.custom(out, c.Name, c.Data)
	}

	if e.err != nil {
		return nil, e.err
	}
	return out, nil
}

func appendLimits(b []byte, l Limits) []byte {
	if l.Max == nil {
		b = append(b, 0x00)
		return appendU32(b, l.Min)
	}
	b = append(b, 0x01)
	b = appendU32(b, l.Min)
	return appendU32(b, *l.Max)
}

func (e *encoder) function(f Function) ([]byte, error) {
	// Locals are written as runs of equal types.
	type run struct {
		n uint32
		t ValType
	}
	var runs []run
	for _, t := range f.Locals {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, t: t})
	}
	b := e.vec(nil, len(runs))
	for _, r := range runs {
		b = appendU32(b, r.n)
		b = append(b, byte(r.t))
	}
	for _, in := range f.Body {
		var err error
		b, err = e.instr(b, in)
		if err != nil {
			return nil, err
		}
	}
	return append(b, byte(OpEnd)), nil
}

func (e *encoder) instr(b []byte, in Instr) ([]byte, error) {
	if !in.Op.Known() {
		return nil, fmt.Errorf("unknown opcode 0x%x", uint16(in.Op))
	}
	if in.Op > 0xFF {
		b = append(b, byte(in.Op>>8))
		b = appendU32(b, uint32(in.Op&0xFF))
	} else {
		b = append(b, byte(in.Op))
	}
	switch in.Op.Immediate() {
	case ImmNone:
	case ImmBlock:
		b = appendS64(b, int64(in.Block))
	case ImmLabel, ImmFunc, ImmLocal, ImmGlobal:
		idx, err := safecast.Conv[uint32](in.Imm)
		if err != nil {
			return nil, fmt.Errorf("%s immediate %d: %w", in.Op, in.Imm, err)
		}
		b = appendU32(b, idx)
	case ImmLabelTable:
		if len(in.Labels) == 0 {
			return nil, fmt.Errorf("br_table without default label")
		}
		b = e.vec(b, len(in.Labels)-1)
		for _, l := range in.Labels {
			b = appendU32(b, l)
		}
	case ImmCallIndirect:
		idx, err := safecast.Conv[uint32](in.Imm)
		if err != nil {
			return nil, fmt.Errorf("call_indirect type %d: %w", in.Imm, err)
		}
		b = appendU32(b, idx)
		b = appendU32(b, in.Table)
	case ImmMemArg:
		b = appendU32(b, in.Mem.Align)
		b = appendU32(b, in.Mem.Offset)
	case ImmMemory:
		b = append(b, 0x00)
	case ImmMemoryCopy:
		b = append(b, 0x00, 0x00)
	case ImmI32:
		b = appendS64(b, int64(int32(in.Imm)))
	case ImmI64:
		b = appendS64(b, in.Imm)
	case ImmF32:
		b = binary.LittleEndian.AppendUint32(b, uint32(in.Imm))
	case ImmF64:
		b = binary.LittleEndian.AppendUint64(b, uint64(in.Imm))
	case ImmSelectTypes:
		b = e.vec(b, len(in.Types))
		for _, t := range in.Types {
			b = append(b, byte(t))
		}
	case ImmRefType:
		b = append(b, byte(in.Imm))
	}
	return b, nil
}

func (e *encoder) names(n Names) []byte {
	if n.Module == "" && len(n.Functions) == 0 && len(n.Locals) == 0 {
		return nil
	}
	var out []byte
	if n.Module != "" {
		out = e.subsection(out, 0, e.name(nil, n.Module))
	}
	if len(n.Functions) > 0 {
		out = e.subsection(out, 1, e.nameMap(nil, n.Functions))
	}
	if len(n.Locals) > 0 {
		funcs := sortedKeys(n.Locals)
		body := e.vec(nil, len(funcs))
		for _, fi := range funcs {
			body = appendU32(body, fi)
			body = e.nameMap(body, n.Locals[fi])
		}
		out = e.subsection(out, 2, body)
	}
	return out
}

func (e *encoder) subsection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = e.vec(out, len(body))
	return append(out, body...)
}

// nameMap writes a name map sorted by index, as the format requires.
func (e *encoder) nameMap(b []byte, m map[uint32]string) []byte {
	keys := sortedKeys(m)
	b = e.vec(b, len(keys))
	for _, k := range keys {
		b = appendU32(b, k)
		b = e.name(b, m[k])
	}
	return b
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
