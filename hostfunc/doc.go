// Package hostfunc implements the host side of the guest ABI.
//
// Guest images import their print functions from the "env" module. A
// [Console] implements them for one run and writes to a sink owned by that
// run, so concurrent runs never share output:
//
//	registry := hostfunc.NewRegistry()
//	console := hostfunc.NewConsole(&out, limit)
//	console.Register(registry)
//	registry.Instantiate(ctx, runtime, guest.HostModule)
//
// Strings are passed as a packed i64 (see [guest.PackString]) pointing into
// the guest's exported memory. Output past the console limit unwinds the
// guest with [ErrOutputLimit]; the bytes written up to the limit are kept.
package hostfunc
