// Package langtest holds helpers shared by the language tests.
package langtest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/hostfunc"
	"github.com/caffeineduck/wasmlab/wasm"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
)

// FrontEnd creates a front end for lang loaded with src.
func FrontEnd(t *testing.T, lang guest.Language, opts guest.Options, src string) guest.FrontEnd {
	t.Helper()
	fe, err := lang.NewFrontEnd(opts)
	require.NoError(t, err)
	require.NoError(t, fe.Update(context.Background(), guest.Snapshot{Text: src, Version: 1}))
	return fe
}

// Compile compiles src as a console program and returns the image.
func Compile(t *testing.T, lang guest.Language, src string, refs ...guest.Reference) []byte {
	t.Helper()
	fe := FrontEnd(t, lang, guest.Options{Console: true, References: refs}, src)
	res, diags, err := fe.Compile(context.Background())
	require.NoError(t, err)
	require.Empty(t, diags)
	require.NotNil(t, res)
	defer res.Close()

	image, err := io.ReadAll(res.Image)
	require.NoError(t, err)
	return image
}

// Run instantiates image with the console host module and refs, calls main
// and returns the printed output.
func Run(t *testing.T, image []byte, refs ...guest.Reference) string {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var out bytes.Buffer
	reg := hostfunc.NewRegistry()
	hostfunc.NewConsole(&out, 0).Register(reg)
	_, err := reg.Instantiate(ctx, rt, guest.HostModule)
	require.NoError(t, err)

	for _, ref := range refs {
		_, err := rt.InstantiateWithConfig(ctx, ref.Image, wazero.NewModuleConfig().WithName(ref.Name))
		require.NoError(t, err)
	}
	mod, err := rt.InstantiateWithConfig(ctx, image, wazero.NewModuleConfig().WithName("main").WithStartFunctions())
	require.NoError(t, err)

	main := mod.ExportedFunction(guest.EntryPoint)
	require.NotNil(t, main, "image exports no entry point")
	_, err = main.Call(ctx)
	require.NoError(t, err)
	return out.String()
}

// MathReference builds a reference image named "math" exporting
// max(a, b) and a documented neg(x).
func MathReference(t *testing.T) guest.Reference {
	t.Helper()
	m := &wasm.Module{}
	binary := m.TypeIndex(wasm.FuncType{Params: []wasm.ValType{wasm.I64, wasm.I64}, Results: []wasm.ValType{wasm.I64}})
	unary := m.TypeIndex(wasm.FuncType{Params: []wasm.ValType{wasm.I64}, Results: []wasm.ValType{wasm.I64}})
	m.Funcs = []wasm.Function{
		{TypeIndex: binary, Body: []wasm.Instr{
			wasm.I(wasm.OpLocalGet, 0),
			wasm.I(wasm.OpLocalGet, 1),
			wasm.Op(wasm.OpI64GtS),
			wasm.B(wasm.OpIf, wasm.BlockI64),
			wasm.I(wasm.OpLocalGet, 0),
			wasm.Op(wasm.OpElse),
			wasm.I(wasm.OpLocalGet, 1),
			wasm.Op(wasm.OpEnd),
		}},
		{TypeIndex: unary, Body: []wasm.Instr{
			wasm.I(wasm.OpI64Const, 0),
			wasm.I(wasm.OpLocalGet, 0),
			wasm.Op(wasm.OpI64Sub),
		}},
	}
	m.Exports = []wasm.Export{
		{Name: "max", Kind: wasm.ExternFunc, Index: 0},
		{Name: "neg", Kind: wasm.ExternFunc, Index: 1},
	}
	m.Names = wasm.Names{
		Module:    "math",
		Functions: map[uint32]string{0: "max", 1: "neg"},
		Locals:    map[uint32]map[uint32]string{0: {0: "a", 1: "b"}, 1: {0: "x"}},
	}
	docs, err := guest.EncodeDocs(map[string]string{"": "Integer helpers.", "neg": "Returns -x."})
	require.NoError(t, err)
	m.Customs = []wasm.Custom{{Name: guest.DocsSection, Data: docs}}

	image, err := wasm.Encode(m)
	require.NoError(t, err)
	return guest.Reference{Name: "math", Image: image}
}
