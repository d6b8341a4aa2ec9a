package executor

import (
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Option configures a single run.
type Option func(*runConfig)

type runConfig struct {
	timeout     time.Duration
	outputLimit int64
}

// WithTimeout sets the maximum execution time of the run.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithOutputLimit caps the bytes the run may print. Zero disables the cap.
func WithOutputLimit(n int64) Option {
	return func(c *runConfig) {
		c.outputLimit = n
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // 0 = wazero default (4GB)
	timeout          time.Duration
	outputLimit      int64
	logger           *zap.SugaredLogger
	stats            tally.Scope
}

// Defaults applied when no option overrides them.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultOutputLimit = 1 << 20
)

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		timeout:     DefaultTimeout,
		outputLimit: DefaultOutputLimit,
		logger:      zap.NewNop().Sugar(),
		stats:       tally.NoopScope,
	}
}

// WithDiskCache enables a persistent compilation cache for faster CLI
// startup. Optionally provide a custom directory; otherwise uses
// ~/.cache/wasmlab or XDG_CACHE_HOME/wasmlab.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to a run.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithDefaultTimeout sets the timeout of runs without WithTimeout.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.timeout = d
	}
}

// WithDefaultOutputLimit sets the output cap of runs without WithOutputLimit.
func WithDefaultOutputLimit(n int64) ExecutorOption {
	return func(c *executorConfig) {
		c.outputLimit = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = l
	}
}

// WithScope sets the metrics scope.
func WithScope(s tally.Scope) ExecutorOption {
	return func(c *executorConfig) {
		c.stats = s
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
