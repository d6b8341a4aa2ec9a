package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/internal/config"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/caffeineduck/wasmlab/reference"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func testEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.Default()
	cfg.Execution.DiskCache = false

	cache := reference.NewCache()
	require.NoError(t, cache.Init(context.Background(), reference.BundledSupplier{}, cfg.References.Names))
	exec, err := executor.New(cfg.ExecutorOptions()...)
	require.NoError(t, err)

	e := &env{cfg: cfg, logger: zap.NewNop().Sugar(), cache: cache, exec: exec}
	t.Cleanup(func() { e.Close() })
	return e
}

func testCompiler(t *testing.T, e *env, opts ...playground.CompilerOption) *playground.Compiler {
	t.Helper()
	c, err := e.newCompiler(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// resetFlags restores every flag of cmd and its children to its default,
// since the command tree is shared between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(bytes.NewReader(nil))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
