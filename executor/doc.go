// Package executor runs compiled wasm images in a sandbox.
//
// # Overview
//
// Every run gets a fresh wazero runtime, so no state leaks from one run to
// the next. Compiled code is shared between runs through a compilation
// cache held by the Executor. Output goes to a sink owned by the run, which
// makes concurrent runs safe.
//
// # Basic Usage
//
//	exec, err := executor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Run(ctx, bytes.NewReader(image), refs)
//	for _, line := range result.Lines() {
//	    fmt.Println(line)
//	}
//
// # Host Functions
//
// Images import their print functions from the "env" module (see
// [github.com/caffeineduck/wasmlab/hostfunc]). Images built by other
// toolchains may use WASI instead; their stdout is captured the same way
// and "_start" is used when there is no "main" export.
//
// # Limits
//
// A run is bounded by a timeout, an output byte limit and optionally a
// memory limit. Exceeding any of them faults the run; output printed up to
// that point is kept.
package executor
