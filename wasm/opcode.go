package wasm

import "fmt"

// Opcode is an instruction opcode. Prefixed instructions carry the prefix in
// the high byte, e.g. 0xFC00|sub.
type Opcode uint16

// Immediate describes the immediate operands that follow an opcode.
type Immediate int

const (
	ImmNone Immediate = iota
	ImmBlock
	ImmLabel
	ImmLabelTable
	ImmFunc
	ImmCallIndirect
	ImmLocal
	ImmGlobal
	ImmMemArg
	ImmMemory
	ImmI32
	ImmI64
	ImmF32
	ImmF64
	ImmSelectTypes
	ImmRefType
	ImmMemoryCopy
)

const (
	OpUnreachable  Opcode = 0x00
	OpNop          Opcode = 0x01
	OpBlock        Opcode = 0x02
	OpLoop         Opcode = 0x03
	OpIf           Opcode = 0x04
	OpElse         Opcode = 0x05
	OpEnd          Opcode = 0x0B
	OpBr           Opcode = 0x0C
	OpBrIf         Opcode = 0x0D
	OpBrTable      Opcode = 0x0E
	OpReturn       Opcode = 0x0F
	OpCall         Opcode = 0x10
	OpCallIndirect Opcode = 0x11
	OpDrop         Opcode = 0x1A
	OpSelect       Opcode = 0x1B
	OpSelectTyped  Opcode = 0x1C
	OpLocalGet     Opcode = 0x20
	OpLocalSet     Opcode = 0x21
	OpLocalTee     Opcode = 0x22
	OpGlobalGet    Opcode = 0x23
	OpGlobalSet    Opcode = 0x24
	OpI32Const     Opcode = 0x41
	OpI64Const     Opcode = 0x42
	OpF32Const     Opcode = 0x43
	OpF64Const     Opcode = 0x44

	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32GtS Opcode = 0x4A
	OpI32LeS Opcode = 0x4C
	OpI32GeS Opcode = 0x4E

	OpI64Eqz Opcode = 0x50
	OpI64Eq  Opcode = 0x51
	OpI64Ne  Opcode = 0x52
	OpI64LtS Opcode = 0x53
	OpI64GtS Opcode = 0x55
	OpI64LeS Opcode = 0x57
	OpI64GeS Opcode = 0x59

	OpI32And Opcode = 0x71
	OpI32Or  Opcode = 0x72

	OpI64Add  Opcode = 0x7C
	OpI64Sub  Opcode = 0x7D
	OpI64Mul  Opcode = 0x7E
	OpI64DivS Opcode = 0x7F
	OpI64RemS Opcode = 0x81
	OpI64And  Opcode = 0x83
	OpI64Or   Opcode = 0x84
	OpI64Xor  Opcode = 0x85
	OpI64Shl  Opcode = 0x86
	OpI64ShrS Opcode = 0x88

	OpI32WrapI64    Opcode = 0xA7
	OpI64ExtendI32S Opcode = 0xAC
	OpI64ExtendI32U Opcode = 0xAD
)

type opInfo struct {
	name string
	imm  Immediate
}

var (
	opTable  = map[Opcode]opInfo{}
	opByName = map[string]Opcode{}
)

func def(op Opcode, name string, imm Immediate) {
	opTable[op] = opInfo{name: name, imm: imm}
	opByName[name] = op
}

// seq defines consecutive opcodes starting at first that share an immediate kind.
func seq(first Opcode, imm Immediate, names ...string) {
	for i, n := range names {
		def(first+Opcode(i), n, imm)
	}
}

func init() {
	def(OpUnreachable, "unreachable", ImmNone)
	def(OpNop, "nop", ImmNone)
	def(OpBlock, "block", ImmBlock)
	def(OpLoop, "loop", ImmBlock)
	def(OpIf, "if", ImmBlock)
	def(OpElse, "else", ImmNone)
	def(OpEnd, "end", ImmNone)
	def(OpBr, "br", ImmLabel)
	def(OpBrIf, "br_if", ImmLabel)
	def(OpBrTable, "br_table", ImmLabelTable)
	def(OpReturn, "return", ImmNone)
	def(OpCall, "call", ImmFunc)
	def(OpCallIndirect, "call_indirect", ImmCallIndirect)
	def(OpDrop, "drop", ImmNone)
	def(OpSelect, "select", ImmNone)
	def(OpSelectTyped, "select_t", ImmSelectTypes)
	seq(OpLocalGet, ImmLocal, "local.get", "local.set", "local.tee")
	seq(OpGlobalGet, ImmGlobal, "global.get", "global.set")

	seq(0x28, ImmMemArg,
		"i32.load", "i64.load", "f32.load", "f64.load",
		"i32.load8_s", "i32.load8_u", "i32.load16_s", "i32.load16_u",
		"i64.load8_s", "i64.load8_u", "i64.load16_s", "i64.load16_u", "i64.load32_s", "i64.load32_u",
		"i32.store", "i64.store", "f32.store", "f64.store",
		"i32.store8", "i32.store16", "i64.store8", "i64.store16", "i64.store32")
	seq(0x3F, ImmMemory, "memory.size", "memory.grow")

	def(OpI32Const, "i32.const", ImmI32)
	def(OpI64Const, "i64.const", ImmI64)
	def(OpF32Const, "f32.const", ImmF32)
	def(OpF64Const, "f64.const", ImmF64)

	seq(0x45, ImmNone,
		"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
		"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
		"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
		"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
		"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
		"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge",
		"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul",
		"i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or", "i32.xor",
		"i32.shl", "i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
		"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul",
		"i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or", "i64.xor",
		"i64.shl", "i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
		"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest", "f32.sqrt",
		"f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max", "f32.copysign",
		"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest", "f64.sqrt",
		"f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max", "f64.copysign",
		"i32.wrap_i64", "i32.trunc_f32_s", "i32.trunc_f32_u", "i32.trunc_f64_s", "i32.trunc_f64_u",
		"i64.extend_i32_s", "i64.extend_i32_u",
		"i64.trunc_f32_s", "i64.trunc_f32_u", "i64.trunc_f64_s", "i64.trunc_f64_u",
		"f32.convert_i32_s", "f32.convert_i32_u", "f32.convert_i64_s", "f32.convert_i64_u", "f32.demote_f64",
		"f64.convert_i32_s", "f64.convert_i32_u", "f64.convert_i64_s", "f64.convert_i64_u", "f64.promote_f32",
		"i32.reinterpret_f32", "i64.reinterpret_f64", "f32.reinterpret_i32", "f64.reinterpret_i64",
		"i32.extend8_s", "i32.extend16_s", "i64.extend8_s", "i64.extend16_s", "i64.extend32_s")

	def(0xD0, "ref.null", ImmRefType)
	def(0xD1, "ref.is_null", ImmNone)
	def(0xD2, "ref.func", ImmFunc)

	seq(0xFC00, ImmNone,
		"i32.trunc_sat_f32_s", "i32.trunc_sat_f32_u", "i32.trunc_sat_f64_s", "i32.trunc_sat_f64_u",
		"i64.trunc_sat_f32_s", "i64.trunc_sat_f32_u", "i64.trunc_sat_f64_s", "i64.trunc_sat_f64_u")
	def(0xFC0A, "memory.copy", ImmMemoryCopy)
	def(0xFC0B, "memory.fill", ImmMemory)
}

// Name returns the text-format mnemonic of op.
func (op Opcode) Name() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op(0x%x)", uint16(op))
}

func (op Opcode) String() string { return op.Name() }

// Immediate returns the immediate kind op expects.
func (op Opcode) Immediate() Immediate {
	return opTable[op].imm
}

// Known reports whether op is in the opcode table.
func (op Opcode) Known() bool {
	_, ok := opTable[op]
	return ok
}

// Lookup resolves a mnemonic such as "i64.add" to its opcode.
func Lookup(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Mnemonics returns every known mnemonic in no particular order.
func Mnemonics() []string {
	names := make([]string, 0, len(opByName))
	for n := range opByName {
		names = append(names, n)
	}
	return names
}

// BlockType is the signature of a block, loop or if. Negative values encode
// the single-byte forms; non-negative values are type indices.
type BlockType int64

const (
	BlockEmpty BlockType = -64
	BlockI32   BlockType = -1
	BlockI64   BlockType = -2
	BlockF32   BlockType = -3
	BlockF64   BlockType = -4
)

// Result returns the single result type of a value-typed block.
func (b BlockType) Result() (ValType, bool) {
	switch b {
	case BlockI32:
		return I32, true
	case BlockI64:
		return I64, true
	case BlockF32:
		return F32, true
	case BlockF64:
		return F64, true
	}
	return 0, false
}

// MemArg is the alignment and offset of a load or store.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Instr is a single instruction with its immediates.
type Instr struct {
	Op Opcode
	// Imm holds constants (float constants as raw bits), indices and depths.
	Imm    int64
	Block  BlockType
	Labels []uint32
	Table  uint32
	Mem    MemArg
	Types  []ValType
}

// I creates an instruction with a single integer immediate.
func I(op Opcode, imm int64) Instr {
	return Instr{Op: op, Imm: imm}
}

// Op creates an instruction without immediates.
func Op(op Opcode) Instr {
	return Instr{Op: op}
}

// B creates a block, loop or if instruction.
func B(op Opcode, bt BlockType) Instr {
	return Instr{Op: op, Block: bt}
}
