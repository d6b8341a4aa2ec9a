package asm

import (
	"context"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/langtest"
	"github.com/caffeineduck/wasmlab/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countdown = `.module demo
.import env print_i64 1 0
.import env print_str 1 0
.import env newline 0 0
.data sum "sum="

; add returns a+b
.func add(a, b) -> int
.export
    local.get a
    local.get b
    i64.add
.end

.func main
.entrypoint
.local i
    i64.const 3
    local.set i
    block $done
      loop $again
        local.get i
        i64.eqz
        br_if $done
        local.get i
        call env.print_i64
        local.get i
        i64.const 1
        i64.sub
        local.set i
        br $again
      end
    end
    call env.newline
    str sum            ; "sum="
    call env.print_str
    i64.const 2
    i64.const 0x28
    call add
    call env.print_i64
    call env.newline
.end
`

func TestRunProgram(t *testing.T) {
	image := langtest.Compile(t, New(), countdown)
	assert.Equal(t, "321\nsum=42\n", langtest.Run(t, image))
}

func TestImageLayout(t *testing.T) {
	image, err := Assemble(countdown, AssembleOptions{Name: "x", Console: true})
	require.NoError(t, err)
	m, err := wasm.Decode(image)
	require.NoError(t, err)

	assert.Equal(t, "demo", m.Names.Module)
	assert.Equal(t, 3, m.ImportedFuncs())
	idx, ok := m.ExportedFunc(guest.EntryPoint)
	require.True(t, ok)
	assert.Equal(t, "main", m.FuncName(idx))
	_, ok = m.ExportedFunc("add")
	assert.True(t, ok)
	assert.Equal(t, "i", m.LocalName(idx, 0))

	data, ok := m.DataAt(guest.DataBase, 4)
	require.True(t, ok)
	assert.Equal(t, "sum=", string(data))
}

func TestLibraryReference(t *testing.T) {
	lib, err := Assemble(`.module lib
.doc "Doubling helpers."
.func double(x) -> int
.export
.doc "Returns 2*x."
    local.get x
    i64.const 2
    i64.mul
.end
`, AssembleOptions{Name: "lib"})
	require.NoError(t, err)

	m, err := wasm.Decode(lib)
	require.NoError(t, err)
	raw, ok := m.Custom(guest.DocsSection)
	require.True(t, ok)
	docs, err := guest.DecodeDocs(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"": "Doubling helpers.", "double": "Returns 2*x."}, docs)

	image := langtest.Compile(t, New(), `.import lib double 1 1
.import env print_i64 1 0
.func main
.entrypoint
    i64.const 21
    call lib.double
    call env.print_i64
.end
`)
	assert.Equal(t, "42", langtest.Run(t, image, guest.Reference{Name: "lib", Image: lib}))
}

func TestAssembleError(t *testing.T) {
	_, err := Assemble(".func f\n  bogus\n  i64.const nope\n.end\n", AssembleOptions{Name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assemble bad")
	assert.Contains(t, err.Error(), "2:3: Unknown instruction 'bogus'")
	assert.Contains(t, err.Error(), "3:13: Invalid integer 'nope'")
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		console bool
		src     string
		want    []string
	}{
		{"clean library", false, ".func f\n  nop\n.end\n", nil},
		{"unknown instruction", true, ".func main\n.entrypoint\n  i64.ad\n.end\n", []string{"AS0001"}},
		{"unknown label", true, ".func main\n.entrypoint\n  br $nowhere\n.end\n", []string{"AS0002"}},
		{"unknown data label", true, ".func main\n.entrypoint\n  str nowhere\n.end\n", []string{"AS0002"}},
		{"unknown local", true, ".func main\n.entrypoint\n  local.get x\n.end\n", []string{"AS0003"}},
		{"unknown function", true, ".func main\n.entrypoint\n  call nope\n.end\n", []string{"AS0004"}},
		{"bad directive", false, ".bogus\n", []string{"AS0005"}},
		{"bad import", false, ".import env print_i64 x 0\n", []string{"AS0005"}},
		{"entry with params", true, ".func main(a)\n.entrypoint\n.end\n", []string{"AS0005"}},
		{"no entry point", true, ".func f\n.end\n", []string{"AS0006"}},
		{"duplicate function", false, ".func f\n.end\n.func f\n.end\n", []string{"AS0007"}},
		{"duplicate local", false, ".func f(a)\n.local a\n.end\n", []string{"AS0007"}},
		{"outside function", false, "nop\n", []string{"AS0008"}},
		{"missing end", true, ".func main\n.entrypoint\n", []string{"AS0009"}},
		{"unclosed block", true, ".func main\n.entrypoint\n  block\n.end\n", []string{"AS0009"}},
		{"stray end", true, ".func main\n.entrypoint\n  end\n.end\n", []string{"AS0009"}},
		{"bad operand", true, ".func main\n.entrypoint\n  i64.const abc\n.end\n", []string{"AS0010"}},
		{"operands on nop", true, ".func main\n.entrypoint\n  nop 1\n.end\n", []string{"AS0010"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := langtest.FrontEnd(t, New(), guest.Options{Console: tt.console}, tt.src)
			diags, err := fe.Diagnose(context.Background())
			require.NoError(t, err)
			var got []string
			for _, d := range diags {
				got = append(got, d.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileReturnsDiagnostics(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, ".func f\n.end\n")
	res, diags, err := fe.Compile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	require.Len(t, diags, 1)
	assert.Nil(t, diags[0].Span)
}

func TestSpellingFix(t *testing.T) {
	src := ".func main\n.entrypoint\n  i64.ad\n.end\n"
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, src)
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 1)

	providers := New().FixProviders()
	require.Len(t, providers, 1)
	fc := guest.NewFixContext(fe, diags[0])
	require.NoError(t, providers[0].RegisterFixes(context.Background(), fc))
	fixes := fc.Fixes()
	require.NotEmpty(t, fixes)
	assert.Equal(t, "Change 'i64.ad' to 'i64.add'", fixes[0].Title)

	snap, err := fe.ApplyEdits(context.Background(), fixes[0].Edits)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
	diags, err = fe.Diagnose(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestNoOptionalInterfaces(t *testing.T) {
	fe, err := New().NewFrontEnd(guest.Options{})
	require.NoError(t, err)
	_, ok := fe.(guest.Completer)
	assert.False(t, ok)
	_, ok = fe.(guest.InfoTipper)
	assert.False(t, ok)

	_, err = New().NewFrontEnd(guest.Options{Version: 2})
	assert.Error(t, err)
}
