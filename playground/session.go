package playground

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// InternalErrorID identifies the diagnostic that stands in for a front-end
// failure.
const InternalErrorID = "LAB0001"

var (
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrStaleAction is returned when an action is applied to a document
	// that changed after the action was proposed.
	ErrStaleAction = errors.New("action is stale")
)

// Diagnostic is a front-end diagnostic with the quick fixes proposed for it.
type Diagnostic struct {
	guest.Diagnostic
	Actions []*Action `json:"actions,omitempty"`
}

// Action is a quick fix bound to the document version it was proposed
// against.
type Action struct {
	ID    string           `json:"id"`
	Title string           `json:"title"`
	Edits []guest.TextEdit `json:"edits"`

	session *Session
	version int
}

// Outcome is the result of a compile: an image, or the diagnostics that
// prevented one.
type Outcome struct {
	Result      *guest.CompilationResult
	Diagnostics []Diagnostic
	// NeedsConsole is set when a library compile failed only because the
	// source needs an entry point.
	NeedsConsole bool
}

func internalError(err error) Diagnostic {
	return Diagnostic{Diagnostic: guest.Diagnostic{
		ID:       InternalErrorID,
		Severity: guest.Error,
		Message:  err.Error(),
	}}
}

func wrapDiagnostics(diags []guest.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = Diagnostic{Diagnostic: d}
	}
	return out
}

type sessionConfig struct {
	version  int
	console  bool
	refs     []guest.Reference
	fallback FallbackConfig
	fixes    *FixRegistry
	logger   *zap.SugaredLogger
	scope    tally.Scope
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

// WithVersion selects the language version. Zero selects the latest.
func WithVersion(v int) SessionOption {
	return func(c *sessionConfig) {
		c.version = v
	}
}

// WithConsole compiles the document as a console program.
func WithConsole(console bool) SessionOption {
	return func(c *sessionConfig) {
		c.console = console
	}
}

// WithReferences sets the library images the document compiles against.
func WithReferences(refs []guest.Reference) SessionOption {
	return func(c *sessionConfig) {
		c.refs = refs
	}
}

// WithFallback sets the console fallback gate.
func WithFallback(f FallbackConfig) SessionOption {
	return func(c *sessionConfig) {
		c.fallback = f
	}
}

// WithFixRegistry overrides the process-wide fix registry of the language.
func WithFixRegistry(r *FixRegistry) SessionOption {
	return func(c *sessionConfig) {
		c.fixes = r
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.SugaredLogger) SessionOption {
	return func(c *sessionConfig) {
		c.logger = l
	}
}

// WithSessionScope sets the metrics scope quick-fix failures are counted in.
func WithSessionScope(s tally.Scope) SessionOption {
	return func(c *sessionConfig) {
		c.scope = s
	}
}

// Session presents an always-current view of one document for one language
// and output mode. All methods are serialized by the session mutex.
type Session struct {
	lang    guest.Language
	cfg     sessionConfig
	logger  *zap.SugaredLogger
	fixOpts []FixRegistryOption
	sibling bool

	mu        sync.Mutex
	fe        guest.FrontEnd
	text      string
	version   int
	outOfDate bool
	actions   map[string]*Action
	console   *Session
	closed    bool
}

// NewSession creates a session with an empty document.
func NewSession(lang guest.Language, opts ...SessionOption) (*Session, error) {
	cfg := sessionConfig{fallback: DefaultFallbacks[lang.ID()]}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.version == 0 {
		cfg.version = lang.LatestVersion()
	}
	if cfg.fixes == nil {
		cfg.fixes = FixRegistryFor(lang)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop().Sugar()
	}

	fe, err := lang.NewFrontEnd(guest.Options{
		Version:    cfg.version,
		Console:    cfg.console,
		References: cfg.refs,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s front end: %w", lang.ID(), err)
	}
	fixOpts := []FixRegistryOption{WithFixLogger(cfg.logger)}
	if cfg.scope != nil {
		fixOpts = append(fixOpts, WithFixScope(cfg.scope))
	}
	return &Session{
		lang:      lang,
		cfg:       cfg,
		fixOpts:   fixOpts,
		logger:    cfg.logger.With("component", "session", "language", lang.ID(), "console", cfg.console),
		fe:        fe,
		outOfDate: true,
	}, nil
}

// Language returns the session language.
func (s *Session) Language() guest.LanguageID { return s.lang.ID() }

// LanguageVersion returns the effective language version.
func (s *Session) LanguageVersion() int { return s.cfg.version }

// Console reports whether the document compiles as a console program.
func (s *Session) Console() bool { return s.cfg.console }

// Text returns the current document text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// SetSourceText replaces the document. The front end sees the new text on
// the next read. Setting the current text again is a no-op.
func (s *Session) SetSourceText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == s.text {
		return
	}
	s.text = text
	s.outOfDate = true
}

// ensureUpToDate pushes the pending text into the front end. Callers hold mu.
func (s *Session) ensureUpToDate(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.outOfDate {
		return nil
	}
	snap := guest.Snapshot{Text: s.text, Version: s.version + 1}
	if err := guard(func() error { return s.fe.Update(ctx, snap) }); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	s.version = snap.Version
	s.outOfDate = false
	return nil
}

// EnsureUpToDate syncs the document into the front end if it changed.
func (s *Session) EnsureUpToDate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureUpToDate(ctx)
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("front end panic: %v", r)
		}
	}()
	return fn()
}

// analysisFailure reports err as a synthetic diagnostic unless it is a
// cancellation.
func (s *Session) analysisFailure(op string, err error) ([]Diagnostic, error) {
	if isCancellation(err) || errors.Is(err, ErrSessionClosed) {
		return nil, err
	}
	s.logger.Errorw("analysis failed", "op", op, "error", err)
	return []Diagnostic{internalError(err)}, nil
}

// Diagnose returns the document diagnostics with their quick fixes.
func (s *Session) Diagnose(ctx context.Context) ([]Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUpToDate(ctx); err != nil {
		return s.analysisFailure("diagnose", err)
	}
	var raw []guest.Diagnostic
	err := guard(func() error {
		var err error
		raw, err = s.fe.Diagnose(ctx)
		return err
	})
	if err != nil {
		return s.analysisFailure("diagnose", err)
	}

	actions := map[string]*Action{}
	out := make([]Diagnostic, 0, len(raw))
	for _, d := range raw {
		if s.fallsBack(d) {
			continue
		}
		fixes, err := s.cfg.fixes.Fixes(ctx, s.fe, d, s.fixOpts...)
		if err != nil {
			return nil, err
		}
		diag := Diagnostic{Diagnostic: d}
		for _, f := range fixes {
			a := &Action{
				ID:      uuid.Must(uuid.NewV4()).String(),
				Title:   f.Title,
				Edits:   f.Edits,
				session: s,
				version: s.version,
			}
			actions[a.ID] = a
			diag.Actions = append(diag.Actions, a)
		}
		out = append(out, diag)
	}
	s.actions = actions
	return out, nil
}

// fallsBack reports whether d is the library-mode diagnostic that the
// console fallback resolves.
func (s *Session) fallsBack(d guest.Diagnostic) bool {
	f := s.cfg.fallback
	return !s.cfg.console && f.Enabled() && d.ID == f.DiagnosticID && s.cfg.version >= f.MinVersion
}

// Action returns an action proposed by the last Diagnose.
func (s *Session) Action(id string) (*Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	return a, ok
}

// Complete returns completion items at pos, or nothing when the front end
// decides trigger should not open completion.
func (s *Session) Complete(ctx context.Context, pos int, trigger guest.Trigger) ([]guest.CompletionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUpToDate(ctx); err != nil {
		return s.quietFailure("complete", err)
	}
	c, ok := s.fe.(guest.Completer)
	if !ok || !c.ShouldTriggerCompletion(s.text, pos, trigger) {
		return nil, nil
	}
	var items []guest.CompletionItem
	err := guard(func() error {
		var err error
		items, err = c.Complete(ctx, pos)
		return err
	})
	if err != nil {
		return s.quietFailure("complete", err)
	}

	if prefix := typedPrefix(s.text, pos); prefix != "" {
		items = filterItems(items, prefix)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].SortText < items[j].SortText })
	return items, nil
}

func (s *Session) quietFailure(op string, err error) ([]guest.CompletionItem, error) {
	if isCancellation(err) || errors.Is(err, ErrSessionClosed) {
		return nil, err
	}
	s.logger.Errorw("analysis failed", "op", op, "error", err)
	return nil, nil
}

// InfoTip returns hover information at pos. The tip is empty when the front
// end has nothing to show.
func (s *Session) InfoTip(ctx context.Context, pos int) (guest.InfoTip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUpToDate(ctx); err != nil {
		_, err = s.quietFailure("infotip", err)
		return guest.InfoTip{}, err
	}
	t, ok := s.fe.(guest.InfoTipper)
	if !ok {
		return guest.InfoTip{}, nil
	}
	var tip guest.InfoTip
	err := guard(func() error {
		var err error
		tip, err = t.InfoTip(ctx, pos)
		return err
	})
	if err != nil {
		_, err = s.quietFailure("infotip", err)
		return guest.InfoTip{}, err
	}
	return tip, nil
}

// Compile emits an image for the document. A library compile that fails
// only because the document needs an entry point sets NeedsConsole.
func (s *Session) Compile(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compile(ctx)
}

func (s *Session) compile(ctx context.Context) (Outcome, error) {
	if err := s.ensureUpToDate(ctx); err != nil {
		diags, err := s.analysisFailure("compile", err)
		return Outcome{Diagnostics: diags}, err
	}
	var (
		res   *guest.CompilationResult
		diags []guest.Diagnostic
	)
	err := guard(func() error {
		var err error
		res, diags, err = s.fe.Compile(ctx)
		return err
	})
	if err != nil {
		failure, err := s.analysisFailure("compile", err)
		return Outcome{Diagnostics: failure}, err
	}
	if res != nil {
		return Outcome{Result: res}, nil
	}

	out := Outcome{Diagnostics: wrapDiagnostics(diags)}
	for _, d := range diags {
		if s.fallsBack(d) {
			out.NeedsConsole = true
			break
		}
	}
	return out, nil
}

// CompileConsole compiles the document with a console-mode sibling
// session. The sibling is created on first use and never has a sibling of
// its own.
func (s *Session) CompileConsole(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Outcome{}, ErrSessionClosed
	}
	if s.sibling || s.cfg.console {
		return Outcome{}, errors.New("console session has no console sibling")
	}
	if s.console == nil {
		cfg := s.cfg
		sib, err := NewSession(s.lang,
			WithVersion(cfg.version),
			WithConsole(true),
			WithReferences(cfg.refs),
			WithFallback(cfg.fallback),
			WithFixRegistry(cfg.fixes),
			WithSessionLogger(cfg.logger),
			WithSessionScope(cfg.scope),
		)
		if err != nil {
			diags, err := s.analysisFailure("compile", err)
			return Outcome{Diagnostics: diags}, err
		}
		sib.sibling = true
		s.console = sib
	}
	s.console.SetSourceText(s.text)
	return s.console.Compile(ctx)
}

// ApplyAction applies a quick fix and returns the new document text.
func (s *Session) ApplyAction(ctx context.Context, a *Action) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	if a == nil || a.session != s || s.outOfDate || a.version != s.version {
		return "", ErrStaleAction
	}
	var snap guest.Snapshot
	err := guard(func() error {
		var err error
		snap, err = s.fe.ApplyEdits(ctx, a.Edits)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("apply %q: %w", a.Title, err)
	}
	s.text = s.fe.Text()
	s.version = snap.Version
	s.actions = nil
	return s.text, nil
}

// Close releases the session and its console sibling.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.actions = nil
	if s.console != nil {
		return s.console.Close()
	}
	return nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// typedPrefix returns the identifier characters before pos.
func typedPrefix(text string, pos int) string {
	if pos > len(text) {
		pos = len(text)
	}
	if pos < 0 {
		return ""
	}
	start := pos
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}
	return text[start:pos]
}

// filterItems keeps items whose filter text starts with prefix, ignoring
// case. When none does, it falls back to a substring match.
func filterItems(items []guest.CompletionItem, prefix string) []guest.CompletionItem {
	p := strings.ToLower(prefix)
	match := func(contains bool) []guest.CompletionItem {
		var out []guest.CompletionItem
		for _, it := range items {
			f := it.FilterText
			if f == "" {
				f = it.DisplayText
			}
			f = strings.ToLower(f)
			if strings.HasPrefix(f, p) || (contains && strings.Contains(f, p)) {
				out = append(out, it)
			}
		}
		return out
	}
	if out := match(false); len(out) > 0 {
		return out
	}
	return match(true)
}
