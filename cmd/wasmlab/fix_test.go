package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const misspelled = "func main() {\n    var count = 1;\n    print(cout);\n}"

func TestFixSource(t *testing.T) {
	c := testCompiler(t, testEnv(t))

	got, applied, err := fixSource(context.Background(), c, misspelled)
	require.NoError(t, err)
	assert.Equal(t, "func main() {\n    var count = 1;\n    print(count);\n}", got)
	assert.Equal(t, []string{"Change 'cout' to 'count'"}, applied)

	got, applied, err = fixSource(context.Background(), c, got)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Contains(t, got, "print(count);")
}

func TestFirstActionPrefersErrors(t *testing.T) {
	warn := &playground.Action{ID: "w"}
	fix := &playground.Action{ID: "e"}
	diags := []playground.Diagnostic{
		{Diagnostic: guest.Diagnostic{Severity: guest.Warning}, Actions: []*playground.Action{warn}},
		{Diagnostic: guest.Diagnostic{Severity: guest.Error}},
		{Diagnostic: guest.Diagnostic{Severity: guest.Error}, Actions: []*playground.Action{fix}},
	}
	assert.Same(t, fix, firstAction(diags))
	assert.Same(t, warn, firstAction(diags[:2]))
	assert.Nil(t, firstAction(nil))
}

func TestWriteDiff(t *testing.T) {
	var buf bytes.Buffer
	writeDiff(&buf, "main.br", misspelled, "func main() {\n    var count = 1;\n    print(count);\n}")

	want := "--- main.br\n+++ main.br\n" +
		" func main() {\n" +
		"     var count = 1;\n" +
		"-    print(cout);\n" +
		"+    print(count);\n" +
		" }\n"
	assert.Equal(t, want, buf.String())
}

func TestCLIFix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.br")
	require.NoError(t, os.WriteFile(path, []byte(misspelled), 0o644))

	output, err := executeCommand(rootCmd, "fix", "--no-cache", path)
	require.NoError(t, err)
	assert.Contains(t, output, "applied: Change 'cout' to 'count'")
	assert.Contains(t, output, "+    print(count);")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, misspelled, string(data))

	_, err = executeCommand(rootCmd, "fix", "--no-cache", "--write", path)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "print(count);")

	output, err = executeCommand(rootCmd, "fix", "--no-cache", path)
	require.NoError(t, err)
	assert.Contains(t, output, "nothing to fix")
}
