package main

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepl(t *testing.T) (*repl, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	return &repl{c: testCompiler(t, testEnv(t)), out: &out, errOut: &errOut}, &out, &errOut
}

func TestReplRun(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	ctx := context.Background()

	assert.False(t, r.handle(ctx, `println("one");`))
	assert.False(t, r.handle(ctx, `println("two");`))
	assert.Equal(t, "println(\"one\");\nprintln(\"two\");\n", r.buffer())

	assert.False(t, r.handle(ctx, ":run"))
	assert.Equal(t, "one\ntwo\n", out.String())
	assert.Empty(t, errOut.String())

	out.Reset()
	r.handle(ctx, ":show")
	assert.Equal(t, r.buffer(), out.String())

	r.handle(ctx, ":clear")
	assert.Empty(t, r.buffer())
}

func TestReplDiagAndFix(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	ctx := context.Background()

	r.setBuffer(misspelled)
	r.handle(ctx, ":diag")
	assert.Contains(t, errOut.String(), "error BR0103")
	assert.Contains(t, errOut.String(), "] Change 'cout' to 'count'")
	require.NotEmpty(t, r.actions)

	n := 0
	for i, a := range r.actions {
		if a.Title == "Change 'cout' to 'count'" {
			n = i + 1
		}
	}
	require.NotZero(t, n)
	errOut.Reset()
	r.handle(ctx, ":fix "+strconv.Itoa(n))
	assert.Empty(t, errOut.String())
	assert.Contains(t, out.String(), "print(count);")
	assert.Contains(t, r.buffer(), "print(count);")
	assert.Nil(t, r.actions)

	r.handle(ctx, ":diag")
	assert.Contains(t, errOut.String(), "no diagnostics")

	errOut.Reset()
	r.handle(ctx, ":fix")
	assert.Contains(t, errOut.String(), "no quick fix 1")

	errOut.Reset()
	r.handle(ctx, ":fix two")
	assert.Contains(t, errOut.String(), `invalid fix number "two"`)
}

func TestReplSwitches(t *testing.T) {
	r, out, errOut := newTestRepl(t)
	ctx := context.Background()

	r.handle(ctx, "println(5);")
	r.handle(ctx, ":lang basic")
	assert.Equal(t, guest.Basic, r.c.Language())
	assert.Empty(t, r.buffer())
	assert.Contains(t, errOut.String(), "language basic")

	r.handle(ctx, ":output wat")
	assert.Equal(t, guest.OutputWAT, r.c.OutputKind())

	r.handle(ctx, "Sub Main()")
	r.handle(ctx, `    PrintLine("hi")`)
	r.handle(ctx, "End Sub")
	r.handle(ctx, ":run")
	assert.Contains(t, out.String(), "(module")

	errOut.Reset()
	r.handle(ctx, ":lang cobol")
	assert.Contains(t, errOut.String(), "Error:")
	assert.Equal(t, guest.Basic, r.c.Language())

	errOut.Reset()
	r.handle(ctx, ":bogus")
	assert.Contains(t, errOut.String(), "unknown command :bogus")
}

func TestReplExit(t *testing.T) {
	r, _, _ := newTestRepl(t)
	assert.True(t, r.handle(context.Background(), "exit"))
	assert.True(t, r.handle(context.Background(), "  quit  "))
	assert.False(t, r.handle(context.Background(), "exits"))
}
