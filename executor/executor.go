package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"github.com/uber-go/tally"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrClosed is returned for runs on a closed Executor.
var ErrClosed = errors.New("executor closed")

// Result holds the output and metadata of one run.
type Result struct {
	// Output is everything the program printed, including partial output of
	// a faulted run.
	Output string
	// ExitCode is the value returned by the entry point, 0 when it returns
	// nothing.
	ExitCode int
	// Ran reports whether an entry point was invoked.
	Ran      bool
	Duration time.Duration
	Error    error
	// State is the last state reached before the run was unloaded.
	State State
}

// Lines returns the captured text followed by either the exit line or the
// failure message. A run that never started an entry point and did not fail
// has no lines.
func (r Result) Lines() []string {
	if !r.Ran && r.Error == nil {
		return nil
	}
	if r.Error != nil {
		return []string{r.Output, firstLine(r.Error.Error())}
	}
	return []string{r.Output, "exit code " + strconv.Itoa(r.ExitCode)}
}

// firstLine drops wazero's wasm stack trace from fault messages.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Executor runs wasm images. Every run gets its own runtime; compiled code
// is shared through a compilation cache.
type Executor struct {
	cfg    executorConfig
	cache  wazero.CompilationCache
	logger *zap.SugaredLogger
	stats  tally.Scope

	mu     sync.RWMutex
	closed bool
}

// New creates an Executor.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	return &Executor{
		cfg:    cfg,
		cache:  cache,
		logger: cfg.logger.With("component", "executor"),
		stats:  cfg.stats.SubScope("executor"),
	}, nil
}

// Run executes image with refs linked under their names. Cancellation of
// ctx is only observed before the run starts; the run itself is bounded by
// the timeout. Run never panics and never returns an error separately:
// failures are reported in the Result with the partial output preserved.
func (e *Executor) Run(ctx context.Context, image io.Reader, refs []guest.Reference, opts ...Option) Result {
	start := time.Now()
	cfg := runConfig{timeout: e.cfg.timeout, outputLimit: e.cfg.outputLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Result{Error: ErrClosed, Duration: time.Since(start)}
	}
	if err := ctx.Err(); err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	runCtx := context.WithoutCancel(ctx)
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, cfg.timeout)
		defer cancel()
	}

	r := &run{exec: e, cfg: cfg, logger: e.logger}
	result := r.execute(runCtx, image, refs)
	result.Duration = time.Since(start)

	e.stats.Counter("runs").Inc(1)
	e.stats.Timer("duration").Record(result.Duration)
	if result.State == Faulted {
		e.stats.Counter("faults").Inc(1)
	}
	if result.Error != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
	}
	return result
}

type run struct {
	exec   *Executor
	cfg    runConfig
	logger *zap.SugaredLogger
	state  State
	rt     wazero.Runtime
}

func (r *run) transition(to State) {
	r.logger.Debugw("state change", "from", r.state, "to", to)
	r.state = to
}

func (r *run) execute(ctx context.Context, image io.Reader, refs []guest.Reference) (result Result) {
	var out bytes.Buffer
	console := hostfunc.NewConsole(&out, r.cfg.outputLimit)

	r.state = Created
	defer func() {
		if p := recover(); p != nil {
			result.Error = fmt.Errorf("run panicked: %v", p)
			r.transition(Faulted)
		}
		result.Output = out.String()
		result.State = r.state
		if r.rt != nil {
			if err := r.rt.Close(context.Background()); err != nil {
				r.logger.Warnw("close runtime", "error", err)
			}
		}
		r.transition(Unloaded)
	}()

	entry, err := r.load(ctx, image, refs, console)
	if err != nil {
		result.Error = err
		r.transition(Faulted)
		return result
	}
	r.transition(Loaded)
	if entry == nil {
		r.logger.Debugw("image has no entry point")
		return result
	}

	r.transition(Invoked)
	result.Ran = true
	results, err := entry.Call(ctx)
	var exitErr *sys.ExitError
	switch {
	case errors.As(err, &exitErr) && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.ExitCode = int(exitErr.ExitCode())
	case err != nil:
		result.Error = err
		r.transition(Faulted)
		return result
	case len(results) > 0:
		result.ExitCode = int(int64(results[0]))
	}
	r.transition(Completed)
	return result
}

// load creates the runtime, links the host modules and refs and returns the
// entry point of image, or nil when it has none.
func (r *run) load(ctx context.Context, image io.Reader, refs []guest.Reference, console *hostfunc.Console) (api.Function, error) {
	bin, err := io.ReadAll(image)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(r.exec.cache)
	if r.exec.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(r.exec.cfg.memoryLimitPages)
	}
	r.rt = wazero.NewRuntimeWithConfig(ctx, rtConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.rt); err != nil {
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	registry := hostfunc.NewRegistry()
	console.Register(registry)
	if _, err := registry.Instantiate(ctx, r.rt, guest.HostModule); err != nil {
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	for _, ref := range refs {
		cfg := wazero.NewModuleConfig().WithName(ref.Name).WithStartFunctions()
		if _, err := r.rt.InstantiateWithConfig(ctx, ref.Image, cfg); err != nil {
			return nil, fmt.Errorf("link reference %s: %w", ref.Name, err)
		}
	}

	compiled, err := r.rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile image: %w", err)
	}
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(console).
		WithStderr(console).
		WithStartFunctions()
	mod, err := r.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate image: %w", err)
	}

	for _, name := range []string{guest.EntryPoint, guest.WASIEntryPoint} {
		if fn := mod.ExportedFunction(name); fn != nil {
			return fn, nil
		}
	}
	return nil, nil
}

// Close releases the compilation cache. Runs in flight finish first.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(context.Background()))
	}
	return err
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "wasmlab")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "wasmlab")
	}
	return filepath.Join(os.TempDir(), "wasmlab-cache")
}
