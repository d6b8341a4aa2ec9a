package executor_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/hostfunc"
	"github.com/caffeineduck/wasmlab/language/asm"
	"github.com/caffeineduck/wasmlab/reference"
	"github.com/uber-go/tally"
)

var sharedExec *executor.Executor

func TestMain(m *testing.M) {
	var err error
	sharedExec, err = executor.TestExecutor()
	if err != nil {
		panic("failed to create shared executor: " + err.Error())
	}
	code := m.Run()
	executor.CloseTestExecutor()
	os.Exit(code)
}

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	image, err := asm.Assemble(src, asm.AssembleOptions{Name: "test", Console: true})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return image
}

const hello = `.import env print_str 1 0
.import env newline 0 0
.data msg "hello"
.func main
.entrypoint
    str msg
    call env.print_str
    call env.newline
.end
`

func TestRunHello(t *testing.T) {
	result := sharedExec.Run(context.Background(), bytes.NewReader(assemble(t, hello)), nil)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Output != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", result.Output)
	}
	if !result.Ran || result.State != executor.Completed {
		t.Errorf("expected completed run, got ran=%v state=%s", result.Ran, result.State)
	}
	lines := result.Lines()
	if len(lines) != 2 || lines[0] != "hello\n" || lines[1] != "exit code 0" {
		t.Errorf("unexpected lines %q", lines)
	}
}

func TestRunExitCode(t *testing.T) {
	image := assemble(t, ".func main -> int\n.entrypoint\n    i64.const 7\n.end\n")
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil)
	if result.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", result.ExitCode)
	}
	if got := result.Lines()[1]; got != "exit code 7" {
		t.Errorf("expected 'exit code 7', got %q", got)
	}
}

func TestRunFaultKeepsOutput(t *testing.T) {
	image := assemble(t, `.import env print_str 1 0
.data msg "partial"
.func main
.entrypoint
    str msg
    call env.print_str
    unreachable
.end
`)
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil)
	if result.Error == nil {
		t.Fatal("expected error")
	}
	if result.Output != "partial" {
		t.Errorf("expected partial output, got %q", result.Output)
	}
	if result.State != executor.Faulted {
		t.Errorf("expected faulted, got %s", result.State)
	}
	lines := result.Lines()
	if len(lines) != 2 || !strings.Contains(lines[1], "unreachable") || strings.Contains(lines[1], "\n") {
		t.Errorf("unexpected lines %q", lines)
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "exit code") {
			t.Errorf("faulted run must not report an exit code: %q", lines)
		}
	}
}

func TestRunWithoutEntryPoint(t *testing.T) {
	image, err := asm.Assemble(".func helper\n.export\n.end\n", asm.AssembleOptions{Name: "lib"})
	if err != nil {
		t.Fatal(err)
	}
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil)
	if result.Error != nil || result.Ran {
		t.Fatalf("expected nothing to run, got ran=%v err=%v", result.Ran, result.Error)
	}
	if result.State != executor.Loaded {
		t.Errorf("expected loaded, got %s", result.State)
	}
	if lines := result.Lines(); lines != nil {
		t.Errorf("expected no lines, got %q", lines)
	}
}

func TestRunInvalidImage(t *testing.T) {
	result := sharedExec.Run(context.Background(), strings.NewReader("not wasm"), nil)
	if result.Error == nil || !strings.Contains(result.Error.Error(), "compile image") {
		t.Fatalf("expected compile error, got %v", result.Error)
	}
	if result.Ran {
		t.Error("invalid image must not run")
	}
}

func TestRunTimeout(t *testing.T) {
	image := assemble(t, ".func main\n.entrypoint\n    loop $forever\n      br $forever\n    end\n.end\n")
	start := time.Now()
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil, executor.WithTimeout(100*time.Millisecond))
	if result.Error == nil || !strings.Contains(result.Error.Error(), "timeout after") {
		t.Fatalf("expected timeout, got %v", result.Error)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := sharedExec.Run(ctx, bytes.NewReader(assemble(t, hello)), nil)
	if !errors.Is(result.Error, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", result.Error)
	}
	if result.Ran || result.Output != "" {
		t.Errorf("cancelled run must not start")
	}
}

func TestRunOutputLimit(t *testing.T) {
	image := assemble(t, `.import env print_str 1 0
.data x "abcd"
.func main
.entrypoint
    loop $again
      str x
      call env.print_str
      br $again
    end
.end
`)
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil, executor.WithOutputLimit(10))
	if !errors.Is(result.Error, hostfunc.ErrOutputLimit) {
		t.Fatalf("expected output limit error, got %v", result.Error)
	}
	if result.Output != "abcdabcdab" {
		t.Errorf("expected truncated output, got %q", result.Output)
	}
}

func TestRunLinksReferences(t *testing.T) {
	math, err := reference.BundledSupplier{}.Fetch(context.Background(), "math")
	if err != nil {
		t.Fatal(err)
	}
	image := assemble(t, `.import math max 2 1
.import env print_i64 1 0
.func main
.entrypoint
    i64.const 3
    i64.const 9
    call math.max
    call env.print_i64
.end
`)
	refs := []guest.Reference{{Name: "math", Image: math}}
	result := sharedExec.Run(context.Background(), bytes.NewReader(image), refs)
	if result.Error != nil {
		t.Fatalf("unexpected error: %v", result.Error)
	}
	if result.Output != "9" {
		t.Errorf("expected '9', got %q", result.Output)
	}
}

func TestRunConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := fmt.Sprintf(".import env print_i64 1 0\n.func main\n.entrypoint\n    i64.const %d\n    call env.print_i64\n.end\n", i)
			image, err := asm.Assemble(src, asm.AssembleOptions{Name: "c", Console: true})
			if err != nil {
				errs <- err
				return
			}
			result := sharedExec.Run(context.Background(), bytes.NewReader(image), nil)
			if result.Output != fmt.Sprint(i) {
				errs <- fmt.Errorf("run %d printed %q", i, result.Output)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestClosedExecutor(t *testing.T) {
	exec, err := executor.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.Close(); err != nil {
		t.Fatal(err)
	}
	if err := exec.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	result := exec.Run(context.Background(), bytes.NewReader(assemble(t, hello)), nil)
	if !errors.Is(result.Error, executor.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", result.Error)
	}
}

func TestRunMetrics(t *testing.T) {
	scope := tally.NewTestScope("testing", make(map[string]string, 0))
	exec, err := executor.New(executor.WithScope(scope))
	if err != nil {
		t.Fatal(err)
	}
	defer exec.Close()

	exec.Run(context.Background(), bytes.NewReader(assemble(t, hello)), nil)
	exec.Run(context.Background(), bytes.NewReader(assemble(t, ".func main\n.entrypoint\n    unreachable\n.end\n")), nil)

	counts := map[string]int64{}
	for _, c := range scope.Snapshot().Counters() {
		counts[c.Name()] = c.Value()
	}
	if counts["testing.executor.runs"] != 2 || counts["testing.executor.faults"] != 1 {
		t.Errorf("unexpected counters %v", counts)
	}
}

func TestStateString(t *testing.T) {
	if executor.Unloaded.String() != "unloaded" || executor.State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
