package wasm

import (
	"fmt"
	"strings"
)

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32       ValType = 0x7F
	I64       ValType = 0x7E
	F32       ValType = 0x7D
	F64       ValType = 0x7C
	FuncRef   ValType = 0x70
	ExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRef:
		return "funcref"
	case ExternRef:
		return "externref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether t and o describe the same signature.
func (t FuncType) Equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

func (t FuncType) String() string {
	var b strings.Builder
	b.WriteString("(")
	for i, p := range t.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(")")
	if len(t.Results) > 0 {
		b.WriteString(" -> ")
		for i, r := range t.Results {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.String())
		}
	}
	return b.String()
}

// ExternKind identifies what an import or export refers to.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0x00
	ExternTable  ExternKind = 0x01
	ExternMemory ExternKind = 0x02
	ExternGlobal ExternKind = 0x03
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	default:
		return fmt.Sprintf("extern(0x%02x)", byte(k))
	}
}

// Import is a module import. Only function imports carry a TypeIndex.
type Import struct {
	Module    string
	Name      string
	Kind      ExternKind
	TypeIndex uint32
}

// Export is a module export.
type Export struct {
	Name  string
	Kind  ExternKind
	Index uint32
}

// Limits bound a memory in 64KiB pages.
type Limits struct {
	Min uint32
	Max *uint32
}

// Function is a function defined in the module. Body excludes the final end.
type Function struct {
	TypeIndex uint32
	Locals    []ValType
	Body      []Instr
}

// Data is a data segment. Passive segments have no offset.
type Data struct {
	Passive bool
	Offset  uint32
	Bytes   []byte
}

// Names holds the contents of the "name" custom section.
type Names struct {
	Module    string
	Functions map[uint32]string
	Locals    map[uint32]map[uint32]string
}

// Custom is an opaque custom section.
type Custom struct {
	Name string
	Data []byte
}

// Module is a decoded or to-be-encoded WebAssembly module.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Function
	Memory  *Limits
	Exports []Export
	Start   *uint32
	Data    []Data
	Names   Names
	Customs []Custom
}

// ImportedFuncs returns the number of imported functions, which is also the
// index of the first defined function.
func (m *Module) ImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternFunc {
			n++
		}
	}
	return n
}

// FuncImport returns the import backing function index idx, if any.
func (m *Module) FuncImport(idx uint32) (Import, bool) {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind != ExternFunc {
			continue
		}
		if n == idx {
			return imp, true
		}
		n++
	}
	return Import{}, false
}

// FuncType returns the signature of function idx in the function index space.
func (m *Module) FuncType(idx uint32) (FuncType, bool) {
	var ti uint32
	if imp, ok := m.FuncImport(idx); ok {
		ti = imp.TypeIndex
	} else {
		local := int(idx) - m.ImportedFuncs()
		if local < 0 || local >= len(m.Funcs) {
			return FuncType{}, false
		}
		ti = m.Funcs[local].TypeIndex
	}
	if int(ti) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[ti], true
}

// FuncName returns a display name for function idx. It prefers the name
// section, then an import name, then an export name.
func (m *Module) FuncName(idx uint32) string {
	if name, ok := m.Names.Functions[idx]; ok && name != "" {
		return name
	}
	if imp, ok := m.FuncImport(idx); ok {
		return imp.Module + "." + imp.Name
	}
	for _, exp := range m.Exports {
		if exp.Kind == ExternFunc && exp.Index == idx {
			return exp.Name
		}
	}
	return fmt.Sprintf("func%d", idx)
}

// LocalName returns the name of local li in function idx, or "" if unnamed.
func (m *Module) LocalName(idx, li uint32) string {
	if locals, ok := m.Names.Locals[idx]; ok {
		return locals[li]
	}
	return ""
}

// ExportedFunc looks up a function export by name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Kind == ExternFunc && exp.Name == name {
			return exp.Index, true
		}
	}
	return 0, false
}

// Custom returns the payload of the first custom section with the given name.
func (m *Module) Custom(name string) ([]byte, bool) {
	for _, c := range m.Customs {
		if c.Name == name {
			return c.Data, true
		}
	}
	return nil, false
}

// TypeIndex returns the index of t in the type section, appending it if it is
// not present yet.
func (m *Module) TypeIndex(t FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, t)
	return uint32(len(m.Types) - 1)
}

// DataAt returns the bytes of the segment that starts exactly at offset and
// has exactly n bytes.
func (m *Module) DataAt(offset, n uint32) ([]byte, bool) {
	for _, d := range m.Data {
		if !d.Passive && d.Offset == offset && uint32(len(d.Bytes)) == n {
			return d.Bytes, true
		}
	}
	return nil, false
}
