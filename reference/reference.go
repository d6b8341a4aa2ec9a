// Package reference fetches and caches the library images that guest
// programs compile against and link at run time.
package reference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/caffeineduck/wasmlab/guest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned by suppliers for unknown reference names.
var ErrNotFound = errors.New("reference not found")

// Supplier fetches one reference image by name.
type Supplier interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// SupplierFunc adapts a function to Supplier.
type SupplierFunc func(ctx context.Context, name string) ([]byte, error)

// Fetch calls f.
func (f SupplierFunc) Fetch(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// Option configures a Cache.
type Option func(*Cache)

// WithConcurrency bounds the number of parallel fetches. Values below one
// select runtime.GOMAXPROCS(0).
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		c.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Cache holds the reference images of the process. It is populated once.
type Cache struct {
	concurrency int
	logger      *zap.SugaredLogger

	mu   sync.RWMutex
	refs []guest.Reference
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = runtime.GOMAXPROCS(0)
	}
	c.logger = c.logger.With("component", "reference")
	return c
}

var shared = NewCache()

// Shared returns the process-wide cache.
func Shared() *Cache { return shared }

// Init fetches names from s, at most the configured number at a time. The
// references keep the order of names regardless of completion order. Init
// is a no-op once the cache is populated; a failed fetch fails Init and
// leaves the cache empty.
func (c *Cache) Init(ctx context.Context, s Supplier, names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.refs) > 0 || len(names) == 0 {
		return nil
	}

	refs := make([]guest.Reference, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(c.concurrency, len(names)))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			image, err := s.Fetch(gctx, name)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", name, err)
			}
			refs[i] = guest.Reference{Name: name, Image: image}
			c.logger.Debugw("fetched reference", "name", name, "bytes", len(image))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warnw("reference init failed", "error", err)
		return err
	}
	c.refs = refs
	c.logger.Infow("references ready", "count", len(refs))
	return nil
}

// References returns the cached references in initialization order.
func (c *Cache) References() []guest.Reference {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]guest.Reference(nil), c.refs...)
}

// Get returns the reference called name.
func (c *Cache) Get(name string) (guest.Reference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.refs {
		if r.Name == name {
			return r, true
		}
	}
	return guest.Reference{}, false
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.refs)
}
