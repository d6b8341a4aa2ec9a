//go:generate mockgen -source=frontend.go -destination=guestmock/guestmock.go -package=guestmock

package guest

import (
	"context"
	"errors"
)

var (
	// ErrProviderInit marks a fix provider that cannot work at all. The
	// quick-fix pipeline drops providers that fail with it.
	ErrProviderInit = errors.New("fix provider failed to initialize")

	// ErrUnknownLanguage is returned for unsupported language names.
	ErrUnknownLanguage = errors.New("unknown language")
)

// Language describes a guest language. Implementations are process-wide and
// safe for concurrent use.
type Language interface {
	ID() LanguageID
	// Versions lists the supported language versions in ascending order.
	Versions() []int
	LatestVersion() int
	NewFrontEnd(opts Options) (FrontEnd, error)
	// FixProviders returns the quick-fix providers in registration order.
	FixProviders() []FixProvider
}

// FrontEnd analyses and compiles one document. It is not safe for concurrent
// use; the owning session serializes calls.
type FrontEnd interface {
	// Update replaces the document with snap.
	Update(ctx context.Context, snap Snapshot) error
	// Text returns the current document text.
	Text() string
	// Version returns the version of the current document.
	Version() int
	Diagnose(ctx context.Context) ([]Diagnostic, error)
	// Compile emits an image, or returns the diagnostics that prevented it.
	// Exactly one of the two results is non-nil on success.
	Compile(ctx context.Context) (*CompilationResult, []Diagnostic, error)
	// ApplyEdits applies edits to the current document and returns the new
	// snapshot.
	ApplyEdits(ctx context.Context, edits []TextEdit) (Snapshot, error)
}

// Completer is implemented by front ends that offer completion.
type Completer interface {
	// ShouldTriggerCompletion decides whether an edit at pos should open
	// completion.
	ShouldTriggerCompletion(text string, pos int, trigger Trigger) bool
	Complete(ctx context.Context, pos int) ([]CompletionItem, error)
}

// InfoTipper is implemented by front ends that offer hover information.
type InfoTipper interface {
	InfoTip(ctx context.Context, pos int) (InfoTip, error)
}

// FixProvider proposes quick fixes for diagnostics with matching IDs.
type FixProvider interface {
	Name() string
	FixableIDs() []string
	// RegisterFixes adds zero or more fixes to fc. Return an error wrapping
	// ErrProviderInit when the provider can never succeed.
	RegisterFixes(ctx context.Context, fc *FixContext) error
}

// FixContext is handed to every provider consulted for one diagnostic. Fixes
// registered by earlier providers stay visible to later ones.
type FixContext struct {
	Document   FrontEnd
	Diagnostic Diagnostic
	fixes      []Fix
}

// NewFixContext creates a collector for diag reported against doc.
func NewFixContext(doc FrontEnd, diag Diagnostic) *FixContext {
	return &FixContext{Document: doc, Diagnostic: diag}
}

// Register appends a fix.
func (c *FixContext) Register(f Fix) {
	c.fixes = append(c.fixes, f)
}

// Fixes returns the fixes registered so far.
func (c *FixContext) Fixes() []Fix {
	return c.fixes
}
