package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWasm is returned when the input does not start with the wasm header.
var ErrNotWasm = errors.New("not a WebAssembly module")

// IsWasm reports whether b starts with the WebAssembly magic number.
func IsWasm(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], header[:4])
}

// Decode parses a WebAssembly binary module.
func Decode(bin []byte) (*Module, error) {
	if len(bin) < len(header) || !IsWasm(bin) {
		return nil, ErrNotWasm
	}
	if !bytes.Equal(bin[4:8], header[4:8]) {
		return nil, fmt.Errorf("unsupported wasm version %x", bin[4:8])
	}

	m := &Module{}
	r := &reader{buf: bin, pos: len(header)}
	var funcTypes []uint32

	for !r.eof() {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		payload, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		s := &reader{buf: payload}

		switch id {
		case secType:
			err = decodeTypes(s, m)
		case secImport:
			err = decodeImports(s, m)
		case secFunction:
			funcTypes, err = decodeFuncDecls(s)
		case secMemory:
			err = decodeMemory(s, m)
		case secExport:
			err = decodeExports(s, m)
		case secStart:
			var idx uint32
			idx, err = s.u32()
			m.Start = &idx
		case secCode:
			err = decodeCode(s, m, funcTypes)
		case secData:
			err = decodeData(s, m)
		case secCustom:
			err = decodeCustom(s, m)
		}
		if err != nil {
			return nil, fmt.Errorf("decode section %d: %w", id, err)
		}
	}

	if len(funcTypes) != len(m.Funcs) {
		return nil, fmt.Errorf("function and code section counts differ (%d != %d)", len(funcTypes), len(m.Funcs))
	}
	return m, nil
}

func decodeValTypes(s *reader) ([]ValType, error) {
	n, err := s.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ValType, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := s.byte()
		if err != nil {
			return nil, err
		}
		out = append(out, ValType(b))
	}
	return out, nil
}

func decodeTypes(s *reader, m *Module) error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := s.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("type %d: unexpected form 0x%02x", i, form)
		}
		params, err := decodeValTypes(s)
		if err != nil {
			return err
		}
		results, err := decodeValTypes(s)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func decodeLimits(s *reader) (Limits, error) {
	flag, err := s.byte()
	if err != nil {
		return Limits{}, err
	}
	min, err := s.u32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flag&0x01 != 0 {
		max, err := s.u32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func decodeImports(s *reader, m *Module) error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := s.name()
		if err != nil {
			return err
		}
		name, err := s.name()
		if err != nil {
			return err
		}
		kind, err := s.byte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Kind: ExternKind(kind)}
		switch imp.Kind {
		case ExternFunc:
			imp.TypeIndex, err = s.u32()
		case ExternTable:
			if _, err = s.byte(); err == nil {
				_, err = decodeLimits(s)
			}
		case ExternMemory:
			var l Limits
			if l, err = decodeLimits(s); err == nil && m.Memory == nil {
				m.Memory = &l
			}
		case ExternGlobal:
			_, err = s.bytes(2)
		default:
			err = fmt.Errorf("import %s.%s: unknown kind 0x%02x", mod, name, kind)
		}
		if err != nil {
			return err
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func decodeFuncDecls(s *reader) ([]uint32, error) {
	n, err := s.u32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		ti, err := s.u32()
		if err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, nil
}

func decodeMemory(s *reader, m *Module) error {
	n, err := s.u32()
	if err != nil || n == 0 {
		return err
	}
	l, err := decodeLimits(s)
	if err != nil {
		return err
	}
	if m.Memory == nil {
		m.Memory = &l
	}
	return nil
}

func decodeExports(s *reader, m *Module) error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := s.name()
		if err != nil {
			return err
		}
		kind, err := s.byte()
		if err != nil {
			return err
		}
		idx, err := s.u32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: ExternKind(kind), Index: idx})
	}
	return nil
}

func decodeCode(s *reader, m *Module, funcTypes []uint32) error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	if int(n) != len(funcTypes) {
		return fmt.Errorf("code count %d does not match function count %d", n, len(funcTypes))
	}
	for i := uint32(0); i < n; i++ {
		size, err := s.u32()
		if err != nil {
			return err
		}
		body, err := s.bytes(size)
		if err != nil {
			return err
		}
		f, err := decodeFunction(&reader{buf: body})
		if err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
		f.TypeIndex = funcTypes[i]
		m.Funcs = append(m.Funcs, f)
	}
	return nil
}

func decodeFunction(r *reader) (Function, error) {
	var f Function
	runs, err := r.u32()
	if err != nil {
		return f, err
	}
	for i := uint32(0); i < runs; i++ {
		count, err := r.u32()
		if err != nil {
			return f, err
		}
		t, err := r.byte()
		if err != nil {
			return f, err
		}
		if uint64(len(f.Locals))+uint64(count) > 50000 {
			return f, fmt.Errorf("too many locals")
		}
		for j := uint32(0); j < count; j++ {
			f.Locals = append(f.Locals, ValType(t))
		}
	}

	depth := 0
	for {
		in, err := decodeInstr(r)
		if err != nil {
			return f, err
		}
		switch in.Op {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpEnd:
			if depth == 0 {
				if !r.eof() {
					return f, fmt.Errorf("trailing bytes after function end")
				}
				return f, nil
			}
			depth--
		}
		f.Body = append(f.Body, in)
	}
}

func decodeInstr(r *reader) (Instr, error) {
	b, err := r.byte()
	if err != nil {
		return Instr{}, err
	}
	op := Opcode(b)
	if b == 0xFC {
		sub, err := r.u32()
		if err != nil {
			return Instr{}, err
		}
		op = Opcode(0xFC00 | (sub & 0xFF))
	}
	if !op.Known() {
		return Instr{}, fmt.Errorf("unsupported opcode 0x%x at offset %d", uint16(op), r.pos-1)
	}
	in := Instr{Op: op}
	switch op.Immediate() {
	case ImmNone:
	case ImmBlock:
		v, err := r.s64()
		if err != nil {
			return in, err
		}
		in.Block = BlockType(v)
	case ImmLabel, ImmFunc, ImmLocal, ImmGlobal:
		v, err := r.u32()
		if err != nil {
			return in, err
		}
		in.Imm = int64(v)
	case ImmLabelTable:
		n, err := r.u32()
		if err != nil {
			return in, err
		}
		for i := uint32(0); i <= n; i++ {
			l, err := r.u32()
			if err != nil {
				return in, err
			}
			in.Labels = append(in.Labels, l)
		}
	case ImmCallIndirect:
		ti, err := r.u32()
		if err != nil {
			return in, err
		}
		table, err := r.u32()
		if err != nil {
			return in, err
		}
		in.Imm, in.Table = int64(ti), table
	case ImmMemArg:
		align, err := r.u32()
		if err != nil {
			return in, err
		}
		off, err := r.u32()
		if err != nil {
			return in, err
		}
		in.Mem = MemArg{Align: align, Offset: off}
	case ImmMemory:
		_, err = r.byte()
	case ImmMemoryCopy:
		_, err = r.bytes(2)
	case ImmI32:
		var v int32
		v, err = r.s32()
		in.Imm = int64(v)
	case ImmI64:
		in.Imm, err = r.s64()
	case ImmF32:
		var raw []byte
		if raw, err = r.bytes(4); err == nil {
			in.Imm = int64(binary.LittleEndian.Uint32(raw))
		}
	case ImmF64:
		var raw []byte
		if raw, err = r.bytes(8); err == nil {
			in.Imm = int64(binary.LittleEndian.Uint64(raw))
		}
	case ImmSelectTypes:
		in.Types, err = decodeValTypes(r)
	case ImmRefType:
		var t byte
		t, err = r.byte()
		in.Imm = int64(t)
	}
	return in, err
}

func decodeData(s *reader, m *Module) error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flag, err := s.u32()
		if err != nil {
			return err
		}
		var d Data
		switch flag {
		case 0, 2:
			if flag == 2 {
				if _, err := s.u32(); err != nil {
					return err
				}
			}
			off, err := decodeConstExpr(s)
			if err != nil {
				return fmt.Errorf("data %d: %w", i, err)
			}
			d.Offset = off
		case 1:
			d.Passive = true
		default:
			return fmt.Errorf("data %d: unknown flag %d", i, flag)
		}
		size, err := s.u32()
		if err != nil {
			return err
		}
		raw, err := s.bytes(size)
		if err != nil {
			return err
		}
		d.Bytes = append([]byte(nil), raw...)
		m.Data = append(m.Data, d)
	}
	return nil
}

// decodeConstExpr reads an offset expression. Only i32.const yields a usable
// offset; other constant expressions decode to zero.
func decodeConstExpr(s *reader) (uint32, error) {
	var off uint32
	for {
		in, err := decodeInstr(s)
		if err != nil {
			return 0, err
		}
		if in.Op == OpEnd {
			return off, nil
		}
		if in.Op == OpI32Const {
			off = uint32(int32(in.Imm))
		}
	}
}

func decodeCustom(s *reader, m *Module) error {
	name, err := s.name()
	if err != nil {
		return err
	}
	payload := s.buf[s.pos:]
	if name == "name" {
		// A malformed name section is not fatal; names are advisory.
		if names, err := decodeNames(&reader{buf: payload}); err == nil {
			m.Names = names
		}
		return nil
	}
	m.Customs = append(m.Customs, Custom{Name: name, Data: append([]byte(nil), payload...)})
	return nil
}

func decodeNames(r *reader) (Names, error) {
	var n Names
	for !r.eof() {
		id, err := r.byte()
		if err != nil {
			return n, err
		}
		size, err := r.u32()
		if err != nil {
			return n, err
		}
		body, err := r.bytes(size)
		if err != nil {
			return n, err
		}
		s := &reader{buf: body}
		switch id {
		case 0:
			n.Module, err = s.name()
		case 1:
			n.Functions, err = decodeNameMap(s)
		case 2:
			var count uint32
			if count, err = s.u32(); err != nil {
				return n, err
			}
			n.Locals = make(map[uint32]map[uint32]string, count)
			for i := uint32(0); i < count; i++ {
				fi, err := s.u32()
				if err != nil {
					return n, err
				}
				locals, err := decodeNameMap(s)
				if err != nil {
					return n, err
				}
				n.Locals[fi] = locals
			}
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func decodeNameMap(s *reader) (map[uint32]string, error) {
	count, err := s.u32()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]string, count)
	for i := uint32(0); i < count; i++ {
		idx, err := s.u32()
		if err != nil {
			return nil, err
		}
		name, err := s.name()
		if err != nil {
			return nil, err
		}
		out[idx] = name
	}
	return out, nil
}
