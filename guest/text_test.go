package guest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineIndex(t *testing.T) {
	li := NewLineIndex("ab\ncde\n\nf")

	assert.Equal(t, Position{Offset: 0, Line: 0, Column: 0}, li.Position(0))
	assert.Equal(t, Position{Offset: 2, Line: 0, Column: 2}, li.Position(2))
	assert.Equal(t, Position{Offset: 4, Line: 1, Column: 1}, li.Position(4))
	assert.Equal(t, Position{Offset: 7, Line: 2, Column: 0}, li.Position(7))
	assert.Equal(t, Position{Offset: 9, Line: 3, Column: 1}, li.Position(100))

	assert.Equal(t, 4, li.Offset(1, 1))
	assert.Equal(t, 6, li.Offset(1, 50), "clamped to end of line")
	assert.Equal(t, 9, li.Offset(10, 0))
}

func TestApplyEdits(t *testing.T) {
	text := "var x = 1\nprint(y);"
	got := ApplyEdits(text, []TextEdit{
		{Span: TextSpan{Start: 9, End: 9}, NewText: ";"},
		{Span: TextSpan{Start: 16, End: 17}, NewText: "x"},
	})
	assert.Equal(t, "var x = 1;\nprint(x);", got)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		ID:       "BR0103",
		Severity: Error,
		Message:  "The name 'y' does not exist in the current context",
		Span:     NewLineIndex("x\n  y").Span(4, 5),
	}
	assert.Equal(t, "(2,3): error BR0103: The name 'y' does not exist in the current context", d.String())
}

func TestSymbolsEncoding(t *testing.T) {
	in := &Symbols{
		Language: Brace,
		Version:  3,
		Functions: []FunctionSymbol{{
			Index:  2,
			Name:   "add",
			Line:   4,
			Result: "int",
			Locals: []LocalSymbol{{Index: 0, Name: "a", Type: "int", Param: true}},
		}},
	}
	b, err := EncodeSymbols(in)
	require.NoError(t, err)

	out, err := DecodeSymbols(bytes.NewReader(b))
	require.NoError(t, err)
	fn, ok := out.Function(2)
	require.True(t, ok)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "a", fn.Locals[0].Name)
	_, ok = out.Function(7)
	assert.False(t, ok)
}

func TestParseLanguage(t *testing.T) {
	id, err := ParseLanguage("VB")
	require.NoError(t, err)
	assert.Equal(t, Basic, id)

	_, err = ParseLanguage("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)

	kind, err := ParseOutputKind("il")
	require.NoError(t, err)
	assert.Equal(t, OutputWAT, kind)
	assert.True(t, OutputRun.IsConsole())
	assert.False(t, OutputBrace.IsConsole())
}
