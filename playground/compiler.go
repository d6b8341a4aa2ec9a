package playground

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/caffeineduck/wasmlab/decompiler"
	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/reference"
	"github.com/uber-go/tally"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by a closed Compiler.
	ErrClosed = errors.New("compiler closed")
	// ErrUnsupportedVersion is returned for a language version the current
	// language does not have.
	ErrUnsupportedVersion = errors.New("unsupported language version")
)

// ProcessResult is the outcome of Process. On a failed compile only
// Diagnostics is set. Text holds decompiled output and Output holds the
// lines of a run.
type ProcessResult struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Text        string       `json:"text,omitempty"`
	Output      []string     `json:"output,omitempty"`
}

// Settings is the selectable configuration of a Compiler.
type Settings struct {
	Language        guest.LanguageID `json:"language"`
	Output          guest.OutputKind `json:"output"`
	LanguageVersion int              `json:"languageVersion"`
	OutputVersion   int              `json:"outputVersion"`
}

type compilerConfig struct {
	language    guest.LanguageID
	output      guest.OutputKind
	versions    map[guest.LanguageID]int
	refs        []guest.Reference
	refsSet     bool
	fallbacks   map[guest.LanguageID]FallbackConfig
	exec        *executor.Executor
	runOpts     []executor.Option
	sourceLines bool
	logger      *zap.SugaredLogger
	scope       tally.Scope
}

// CompilerOption configures a Compiler.
type CompilerOption func(*compilerConfig)

// WithLanguage selects the initial language. The default is Brace.
func WithLanguage(id guest.LanguageID) CompilerOption {
	return func(c *compilerConfig) {
		c.language = id
	}
}

// WithOutputKind selects the initial output kind. The default is run.
func WithOutputKind(k guest.OutputKind) CompilerOption {
	return func(c *compilerConfig) {
		c.output = k
	}
}

// WithLanguageVersion sets the initial version of one language.
func WithLanguageVersion(id guest.LanguageID, v int) CompilerOption {
	return func(c *compilerConfig) {
		c.versions[id] = v
	}
}

// WithCompilerReferences sets the library images. The default is the
// contents of the shared reference cache.
func WithCompilerReferences(refs []guest.Reference) CompilerOption {
	return func(c *compilerConfig) {
		c.refs = refs
		c.refsSet = true
	}
}

// WithFallbackConfig overrides the console fallback gate of one language.
func WithFallbackConfig(id guest.LanguageID, f FallbackConfig) CompilerOption {
	return func(c *compilerConfig) {
		c.fallbacks[id] = f
	}
}

// WithExecutor runs programs on exec. The caller keeps ownership. Without
// it the Compiler creates and closes its own executor.
func WithExecutor(exec *executor.Executor) CompilerOption {
	return func(c *compilerConfig) {
		c.exec = exec
	}
}

// WithRunOptions passes per-run options to the executor.
func WithRunOptions(opts ...executor.Option) CompilerOption {
	return func(c *compilerConfig) {
		c.runOpts = append(c.runOpts, opts...)
	}
}

// WithSourceLines annotates decompiled output with source lines.
func WithSourceLines(enabled bool) CompilerOption {
	return func(c *compilerConfig) {
		c.sourceLines = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) CompilerOption {
	return func(c *compilerConfig) {
		c.logger = l
	}
}

// WithScope sets the metrics scope.
func WithScope(s tally.Scope) CompilerOption {
	return func(c *compilerConfig) {
		c.scope = s
	}
}

type compilerMetrics struct {
	compiles  tally.Counter
	failures  tally.Counter
	fallbacks tally.Counter
	process   tally.Timer
}

// Compiler owns the active session for the selected language and output
// kind, and dispatches compiled images to the decompiler or the executor.
// Its methods are serialized.
type Compiler struct {
	cfg     compilerConfig
	logger  *zap.SugaredLogger
	metrics compilerMetrics

	mu            sync.Mutex
	lang          guest.Language
	output        guest.OutputKind
	outputVersion int
	session       *Session
	exec          *executor.Executor
	ownsExec      bool
	closed        bool
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...CompilerOption) (*Compiler, error) {
	cfg := compilerConfig{
		language:  guest.Brace,
		output:    guest.OutputRun,
		versions:  map[guest.LanguageID]int{},
		fallbacks: map[guest.LanguageID]FallbackConfig{},
		logger:    zap.NewNop().Sugar(),
		scope:     tally.NoopScope,
	}
	for id, f := range DefaultFallbacks {
		cfg.fallbacks[id] = f
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.refsSet {
		cfg.refs = reference.Shared().References()
	}

	lang, err := Lookup(cfg.language)
	if err != nil {
		return nil, err
	}
	output, err := guest.ParseOutputKind(string(cfg.output))
	if err != nil {
		return nil, err
	}
	for id, v := range cfg.versions {
		l, err := Lookup(id)
		if err != nil {
			return nil, err
		}
		if err := checkVersion(l, v); err != nil {
			return nil, err
		}
	}

	return &Compiler{
		cfg:    cfg,
		logger: cfg.logger.With("component", "compiler"),
		metrics: compilerMetrics{
			compiles:  cfg.scope.Counter("compile.count"),
			failures:  cfg.scope.Counter("compile.failed"),
			fallbacks: cfg.scope.Counter("compile.fallback"),
			process:   cfg.scope.Timer("process.duration"),
		},
		lang:     lang,
		output:   output,
		exec:     cfg.exec,
		ownsExec: cfg.exec == nil,
	}, nil
}

func checkVersion(lang guest.Language, v int) error {
	if v == 0 || slices.Contains(lang.Versions(), v) {
		return nil
	}
	return fmt.Errorf("%w %d for %s", ErrUnsupportedVersion, v, lang.ID())
}

// Language returns the selected language.
func (c *Compiler) Language() guest.LanguageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang.ID()
}

// OutputKind returns the selected output kind.
func (c *Compiler) OutputKind() guest.OutputKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// LanguageVersion returns the version of the selected language. Zero means
// the latest.
func (c *Compiler) LanguageVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.versions[c.lang.ID()]
}

// OutputVersion returns the Brace version decompiled output is rendered for.
func (c *Compiler) OutputVersion() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputVersion
}

// Settings returns the current selection.
func (c *Compiler) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Settings{
		Language:        c.lang.ID(),
		Output:          c.output,
		LanguageVersion: c.cfg.versions[c.lang.ID()],
		OutputVersion:   c.outputVersion,
	}
}

// SettingsChange names the settings to change. Empty and nil fields keep
// the current selection; a zero version selects the latest.
type SettingsChange struct {
	Language        guest.LanguageID `json:"language,omitempty"`
	Output          guest.OutputKind `json:"output,omitempty"`
	LanguageVersion *int             `json:"languageVersion,omitempty"`
	OutputVersion   *int             `json:"outputVersion,omitempty"`
}

// Apply changes the settings named by ch.
func (c *Compiler) Apply(ch SettingsChange) error {
	if ch.Language != "" {
		if err := c.SetLanguage(ch.Language); err != nil {
			return err
		}
	}
	if ch.Output != "" {
		if err := c.SetOutputKind(ch.Output); err != nil {
			return err
		}
	}
	if ch.LanguageVersion != nil {
		if err := c.SetLanguageVersion(*ch.LanguageVersion); err != nil {
			return err
		}
	}
	if ch.OutputVersion != nil {
		c.SetOutputVersion(*ch.OutputVersion)
	}
	return nil
}

// SetLanguage switches the language. The new session starts empty.
func (c *Compiler) SetLanguage(id guest.LanguageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.lang.ID() == id {
		return nil
	}
	lang, err := Lookup(id)
	if err != nil {
		return err
	}
	c.lang = lang
	c.resetSession()
	return nil
}

// SetOutputKind switches the output kind. The session is recreated only
// when the console mode changes.
func (c *Compiler) SetOutputKind(k guest.OutputKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	k, err := guest.ParseOutputKind(string(k))
	if err != nil {
		return err
	}
	if k.IsConsole() != c.output.IsConsole() {
		c.resetSession()
	}
	c.output = k
	return nil
}

// SetLanguageVersion changes the version of the selected language and keeps
// the document text.
func (c *Compiler) SetLanguageVersion(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := checkVersion(c.lang, v); err != nil {
		return err
	}
	if c.cfg.versions[c.lang.ID()] == v {
		return nil
	}
	c.cfg.versions[c.lang.ID()] = v

	var text string
	if c.session != nil {
		text = c.session.Text()
	}
	c.resetSession()
	if text == "" {
		return nil
	}
	s, err := c.sessionLocked()
	if err != nil {
		return err
	}
	s.SetSourceText(text)
	return nil
}

// SetOutputVersion changes the version decompiled output is rendered for.
func (c *Compiler) SetOutputVersion(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputVersion = v
}

func (c *Compiler) resetSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Warnw("close session", "error", err)
	}
	c.session = nil
}

func (c *Compiler) sessionLocked() (*Session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.session != nil {
		return c.session, nil
	}
	id := c.lang.ID()
	s, err := NewSession(c.lang,
		WithVersion(c.cfg.versions[id]),
		WithConsole(c.output.IsConsole()),
		WithReferences(c.cfg.refs),
		WithFallback(c.cfg.fallbacks[id]),
		WithFixRegistry(FixRegistryFor(c.lang)),
		WithSessionLogger(c.cfg.logger),
		WithSessionScope(c.cfg.scope),
	)
	if err != nil {
		return nil, err
	}
	c.session = s
	return s, nil
}

// boundary converts a panic into a synthetic diagnostic.
func (c *Compiler) boundary(op string, diags *[]Diagnostic, err *error) {
	if r := recover(); r != nil {
		c.logger.Errorw("recovered panic", "op", op, "panic", r)
		*diags = []Diagnostic{internalError(fmt.Errorf("%s: %v", op, r))}
		*err = nil
	}
}

// failure reports err as a synthetic diagnostic unless it is a
// cancellation or the compiler is closed.
func (c *Compiler) failure(op string, err error) ([]Diagnostic, error) {
	if isCancellation(err) || errors.Is(err, ErrClosed) {
		return nil, err
	}
	c.logger.Errorw("operation failed", "op", op, "error", err)
	return []Diagnostic{internalError(err)}, nil
}

// Diagnostics sets the text to code and returns its diagnostics.
func (c *Compiler) Diagnostics(ctx context.Context, code string) (diags []Diagnostic, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.boundary("diagnostics", &diags, &err)

	s, err := c.sessionLocked()
	if err != nil {
		return c.failure("diagnostics", err)
	}
	s.SetSourceText(code)
	return s.Diagnose(ctx)
}

// Completions sets the text to code and returns completion items at pos.
func (c *Compiler) Completions(ctx context.Context, code string, pos int, trigger guest.Trigger) (items []guest.CompletionItem, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("recovered panic", "op", "completions", "panic", r)
			items, err = nil, nil
		}
	}()

	s, err := c.sessionLocked()
	if err != nil {
		_, err = c.failure("completions", err)
		return nil, err
	}
	s.SetSourceText(code)
	return s.Complete(ctx, pos, trigger)
}

// InfoTip sets the text to code and returns hover information at pos.
func (c *Compiler) InfoTip(ctx context.Context, code string, pos int) (tip guest.InfoTip, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("recovered panic", "op", "infotip", "panic", r)
			tip, err = guest.InfoTip{}, nil
		}
	}()

	s, err := c.sessionLocked()
	if err != nil {
		_, err = c.failure("infotip", err)
		return guest.InfoTip{}, err
	}
	s.SetSourceText(code)
	return s.InfoTip(ctx, pos)
}

// Compile sets the text to code and compiles it. A library compile that
// fails only for lack of an entry point is retried once as a console
// program. The caller owns a returned Result.
func (c *Compiler) Compile(ctx context.Context, code string) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compile(ctx, code)
}

func (c *Compiler) compile(ctx context.Context, code string) (out Outcome, err error) {
	defer c.boundary("compile", &out.Diagnostics, &err)

	s, err := c.sessionLocked()
	if err != nil {
		diags, err := c.failure("compile", err)
		return Outcome{Diagnostics: diags}, err
	}
	s.SetSourceText(code)
	c.metrics.compiles.Inc(1)

	out, err = s.Compile(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if out.NeedsConsole {
		c.metrics.fallbacks.Inc(1)
		c.logger.Debugw("retrying as console program", "language", s.Language())
		out, err = s.CompileConsole(ctx)
		if err != nil {
			diags, err := c.failure("compile", err)
			return Outcome{Diagnostics: diags}, err
		}
		out.NeedsConsole = false
	}
	if out.Result == nil {
		c.metrics.failures.Inc(1)
	}
	return out, nil
}

// Process compiles code and renders or runs the image, depending on the
// output kind.
func (c *Compiler) Process(ctx context.Context, code string) (res ProcessResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.boundary("process", &res.Diagnostics, &err)
	defer c.metrics.process.Start().Stop()

	out, err := c.compile(ctx, code)
	if err != nil {
		return ProcessResult{}, err
	}
	if out.Result == nil {
		return ProcessResult{Diagnostics: out.Diagnostics}, nil
	}
	res.Diagnostics = []Diagnostic{}

	if c.output.IsConsole() {
		exec, err := c.executorLocked()
		if err != nil {
			out.Result.Close()
			res.Diagnostics, err = c.failure("process", err)
			return res, err
		}
		r := Execute(ctx, exec, out.Result, c.cfg.refs, c.cfg.runOpts...)
		if isCancellation(r.Error) && ctx.Err() != nil {
			return ProcessResult{}, ctx.Err()
		}
		res.Output = r.Lines()
		return res, nil
	}

	text, err := c.render(out.Result)
	if err != nil {
		res.Diagnostics, err = c.failure("process", err)
		return res, err
	}
	res.Text = text
	return res, nil
}

func (c *Compiler) render(res *guest.CompilationResult) (string, error) {
	defer res.Close()
	syntax, err := decompiler.SyntaxFor(c.output)
	if err != nil {
		return "", err
	}
	return decompiler.Render(res.Image, res.SymbolReader(), decompiler.Options{
		Syntax:      syntax,
		Version:     c.outputVersion,
		SourceLines: c.cfg.sourceLines,
	})
}

func (c *Compiler) executorLocked() (*executor.Executor, error) {
	if c.exec != nil {
		return c.exec, nil
	}
	exec, err := executor.New(executor.WithLogger(c.cfg.logger), executor.WithScope(c.cfg.scope))
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	c.exec = exec
	return exec, nil
}

// Action returns an action proposed by the last Diagnostics call.
func (c *Compiler) Action(id string) (*Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, false
	}
	return c.session.Action(id)
}

// ApplyAction applies a quick fix to the active session and returns the
// new text.
func (c *Compiler) ApplyAction(ctx context.Context, a *Action) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if c.session == nil {
		return "", ErrStaleAction
	}
	return c.session.ApplyAction(ctx, a)
}

// Close releases the session and an executor the Compiler created.
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.session != nil {
		err = multierr.Append(err, c.session.Close())
		c.session = nil
	}
	if c.ownsExec && c.exec != nil {
		err = multierr.Append(err, c.exec.Close())
	}
	return err
}
