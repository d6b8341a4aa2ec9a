// Package bench measures the edit loop: how long a keystroke takes to
// diagnose, and how long a run or decompile takes after that.
//
// Report: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=20x ./bench/
package bench

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/caffeineduck/wasmlab/reference"
)

const program = `func fib(n int) int {
    if (n < 2) {
        return n;
    }
    return fib(n - 1) + fib(n - 2);
}

func main() {
    var total = 0;
    var i = 0;
    while (i < 20) {
        total = total + fib(i);
        i = i + 1;
    }
    println(math.max(total, 1));
}
`

func references(tb testing.TB) []guest.Reference {
	tb.Helper()
	c := reference.NewCache()
	if err := c.Init(context.Background(), reference.BundledSupplier{}, reference.DefaultNames); err != nil {
		tb.Fatalf("init references: %v", err)
	}
	return c.References()
}

func newCompiler(tb testing.TB, exec *executor.Executor, opts ...playground.CompilerOption) *playground.Compiler {
	tb.Helper()
	base := []playground.CompilerOption{
		playground.WithCompilerReferences(references(tb)),
		playground.WithExecutor(exec),
	}
	c, err := playground.NewCompiler(append(base, opts...)...)
	if err != nil {
		tb.Fatalf("new compiler: %v", err)
	}
	tb.Cleanup(func() { c.Close() })
	return c
}

func newExecutor(tb testing.TB) *executor.Executor {
	tb.Helper()
	exec, err := executor.New()
	if err != nil {
		tb.Fatalf("new executor: %v", err)
	}
	tb.Cleanup(func() { exec.Close() })
	return exec
}

// edit returns the program with a changed constant, so every call
// invalidates the cached analysis.
func edit(i int) string {
	return strings.Replace(program, "i < 20", fmt.Sprintf("i < %d", 10+i%10), 1)
}

// --- Editor loop ---

func BenchmarkDiagnostics(b *testing.B) {
	c := newCompiler(b, newExecutor(b))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Diagnostics(ctx, edit(i))
	}
}

func BenchmarkCompletions(b *testing.B) {
	c := newCompiler(b, newExecutor(b))
	ctx := context.Background()
	pos := strings.Index(program, "math.") + len("math.")
	trigger := guest.Trigger{Kind: guest.TriggerInsertion, Character: '.'}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Completions(ctx, edit(i), pos, trigger)
	}
}

// --- Process ---

func BenchmarkProcess_ColdExecutor(b *testing.B) {
	refs := references(b)
	for i := 0; i < b.N; i++ {
		exec, _ := executor.New()
		c, _ := playground.NewCompiler(playground.WithCompilerReferences(refs), playground.WithExecutor(exec))
		c.Process(context.Background(), program)
		c.Close()
		exec.Close()
	}
}

func BenchmarkProcess_Run(b *testing.B) {
	c := newCompiler(b, newExecutor(b))
	ctx := context.Background()
	c.Process(ctx, program) // warmup

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Process(ctx, edit(i))
	}
}

func BenchmarkProcess_WAT(b *testing.B) {
	c := newCompiler(b, newExecutor(b), playground.WithOutputKind(guest.OutputWAT))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Process(ctx, edit(i))
	}
}

func BenchmarkProcess_Brace(b *testing.B) {
	c := newCompiler(b, newExecutor(b), playground.WithOutputKind(guest.OutputBrace))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Process(ctx, edit(i))
	}
}

// =============================================================================
// LATENCY REPORT - Human readable output
// =============================================================================

func TestLatencyReport(t *testing.T) {
	if testing.Short() {
		t.Skip("latency report skipped in short mode")
	}
	exec := newExecutor(t)
	ctx := context.Background()

	measure := func(n int, fn func(i int)) time.Duration {
		start := time.Now()
		for i := 0; i < n; i++ {
			fn(i)
		}
		return time.Since(start) / time.Duration(n)
	}

	run := newCompiler(t, exec)
	res, err := run.Process(ctx, program)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Output) != 2 || res.Output[1] != "exit code 0" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	wat := newCompiler(t, exec, playground.WithOutputKind(guest.OutputWAT))

	rows := []struct {
		name string
		avg  time.Duration
	}{
		{"diagnostics", measure(20, func(i int) { run.Diagnostics(ctx, edit(i)) })},
		{"process (run)", measure(20, func(i int) { run.Process(ctx, edit(i)) })},
		{"process (wat)", measure(20, func(i int) { wat.Process(ctx, edit(i)) })},
	}

	fmt.Println()
	fmt.Println("┌────────────────────┬────────────┐")
	fmt.Println("│ operation          │ avg        │")
	fmt.Println("├────────────────────┼────────────┤")
	for _, r := range rows {
		fmt.Printf("│ %-18s │ %10s │\n", r.name, formatDuration(r.avg))
	}
	fmt.Println("└────────────────────┴────────────┘")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
