package playground

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

type providerEntry struct {
	provider guest.FixProvider
	removed  bool
}

// FixRegistry maps diagnostic IDs to the fix providers of one language.
// Providers that fail with guest.ErrProviderInit are dropped for good.
type FixRegistry struct {
	lang    guest.LanguageID
	logger  *zap.SugaredLogger
	removed tally.Counter

	mu   sync.Mutex
	byID map[string][]*providerEntry
}

// FixRegistryOption configures a FixRegistry.
type FixRegistryOption func(*FixRegistry)

// WithFixLogger sets the logger for provider failures. Passed to Fixes, it
// applies to that call only.
func WithFixLogger(l *zap.SugaredLogger) FixRegistryOption {
	return func(r *FixRegistry) {
		r.logger = l
	}
}

// WithFixScope sets the metrics scope. Passed to Fixes, it applies to that
// call only.
func WithFixScope(s tally.Scope) FixRegistryOption {
	return func(r *FixRegistry) {
		r.removed = s.Counter("quickfix.provider_removed")
	}
}

// NewFixRegistry indexes the providers of lang.
func NewFixRegistry(lang guest.Language, opts ...FixRegistryOption) *FixRegistry {
	r := &FixRegistry{
		lang:    lang.ID(),
		logger:  zap.NewNop().Sugar(),
		removed: tally.NoopScope.Counter("quickfix.provider_removed"),
		byID:    map[string][]*providerEntry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "quickfix", "language", lang.ID())

	for _, p := range lang.FixProviders() {
		e := &providerEntry{provider: p}
		for _, id := range p.FixableIDs() {
			r.byID[id] = append(r.byID[id], e)
		}
	}
	return r
}

var (
	registriesMu sync.Mutex
	registries   = map[guest.LanguageID]*FixRegistry{}
)

// FixRegistryFor returns the process-wide registry of lang, creating it on
// first use. opts only apply to that first call; callers that report to
// their own logger or scope pass them to Fixes instead.
func FixRegistryFor(lang guest.Language, opts ...FixRegistryOption) *FixRegistry {
	registriesMu.Lock()
	defer registriesMu.Unlock()

	if r, ok := registries[lang.ID()]; ok {
		return r
	}
	r := NewFixRegistry(lang, opts...)
	registries[lang.ID()] = r
	return r
}

// Providers returns the live providers for id in registration order.
func (r *FixRegistry) Providers(id string) []guest.FixProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]guest.FixProvider, 0, len(r.byID[id]))
	for _, e := range r.byID[id] {
		out = append(out, e.provider)
	}
	return out
}

// fixReporter receives the provider failures of one Fixes call.
type fixReporter struct {
	logger  *zap.SugaredLogger
	removed tally.Counter
}

func (r *FixRegistry) reporter(opts []FixRegistryOption) fixReporter {
	if len(opts) == 0 {
		return fixReporter{logger: r.logger, removed: r.removed}
	}
	o := &FixRegistry{removed: r.removed}
	for _, opt := range opts {
		opt(o)
	}
	logger := r.logger
	if o.logger != nil {
		logger = o.logger.With("component", "quickfix", "language", r.lang)
	}
	return fixReporter{logger: logger, removed: o.removed}
}

// Fixes asks every provider registered for d.ID, last registered first, and
// collects their fixes. Only cancellation is returned as an error. opts
// redirect failure logs and the removal counter for this call.
func (r *FixRegistry) Fixes(ctx context.Context, doc guest.FrontEnd, d guest.Diagnostic, opts ...FixRegistryOption) ([]guest.Fix, error) {
	if d.ID == "" {
		return nil, nil
	}
	rep := r.reporter(opts)
	r.mu.Lock()
	entries := append([]*providerEntry(nil), r.byID[d.ID]...)
	r.mu.Unlock()

	fc := guest.NewFixContext(doc, d)
	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := entries[i]
		err := invokeProvider(ctx, e.provider, fc)
		switch {
		case err == nil:
		case isCancellation(err):
			return nil, err
		case errors.Is(err, guest.ErrProviderInit):
			if r.remove(e) {
				rep.removed.Inc(1)
			}
			rep.logger.Warnw("removing fix provider", "provider", e.provider.Name(), "diagnostic", d.ID, "error", err)
		default:
			rep.logger.Errorw("fix provider failed", "provider", e.provider.Name(), "diagnostic", d.ID, "error", err)
		}
	}
	return fc.Fixes(), nil
}

func invokeProvider(ctx context.Context, p guest.FixProvider, fc *guest.FixContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fix provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.RegisterFixes(ctx, fc)
}

// remove drops e from every ID and reports whether it was still live.
func (r *FixRegistry) remove(e *providerEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.removed {
		return false
	}
	e.removed = true
	for id, entries := range r.byID {
		kept := entries[:0:0]
		for _, other := range entries {
			if other != e {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(r.byID, id)
			continue
		}
		r.byID[id] = kept
	}
	return true
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
