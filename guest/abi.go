package guest

// Host ABI shared by the front ends and the execution sandbox. All guest
// values are i64; strings are packed as ptr<<32 | len into linear memory.
const (
	HostModule    = "env"
	HostPrintI64  = "print_i64"
	HostPrintBool = "print_bool"
	HostPrintStr  = "print_str"
	HostNewline   = "newline"

	MemoryExport = "memory"
	EntryPoint   = "main"
	// WASIEntryPoint is used for images built by other toolchains.
	WASIEntryPoint = "_start"

	// DocsSection is the custom section holding member documentation.
	DocsSection = "lab.docs"

	// DataBase is the first linear memory address used for string data.
	DataBase = 1024
)

// PackString encodes a memory range as a single i64.
func PackString(ptr, n uint32) int64 {
	return int64(uint64(ptr)<<32 | uint64(n))
}

// UnpackString decodes a packed string.
func UnpackString(v uint64) (ptr, n uint32) {
	return uint32(v >> 32), uint32(v)
}
