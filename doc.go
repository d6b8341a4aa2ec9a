// Package wasmlab is a compile-as-you-type playground for small languages
// that compile to WebAssembly.
//
// Code written in Brace, Basic or Asm is diagnosed, completed and described
// on every edit, then either run in an isolated wazero runtime or decompiled
// to WAT or Brace text.
//
// # Quick Start
//
//	c, _ := playground.NewCompiler(playground.WithCompilerReferences(refs))
//	defer c.Close()
//
//	res, _ := c.Process(ctx, `println("hello");`)
//	fmt.Println(res.Output) // [hello\n exit code 0]
//
// # Editor Features
//
//	diags, _ := c.Diagnostics(ctx, code)
//	for _, d := range diags {
//	    for _, a := range d.Actions {
//	        fixed, _ := c.ApplyAction(ctx, a)
//	    }
//	}
//
// See the [playground], [executor], [reference] and [decompiler] packages
// for details. The wasmlab command in cmd/wasmlab exposes the same features
// as a CLI, an HTTP API and a language server.
package wasmlab
