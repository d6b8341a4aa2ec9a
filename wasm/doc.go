// Package wasm encodes and decodes WebAssembly binary modules.
//
// The model covers what the playground front ends emit and what the
// decompiler needs to read back: types, function imports, code, a single
// linear memory, exports, active data segments and the "name" custom
// section. Sections the model does not represent are skipped on decode.
//
//	m := &wasm.Module{...}
//	bin, err := wasm.Encode(m)
//	back, err := wasm.Decode(bin)
package wasm
