// Package frontend implements guest.FrontEnd for the high-level languages on
// top of a language Dialect.
package frontend

import (
	"context"
	"fmt"
	"sort"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/codegen"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
	"github.com/caffeineduck/wasmlab/wasm"
)

// Dialect describes the surface of one language.
type Dialect struct {
	Language guest.LanguageID
	// Prefix is prepended to diagnostic codes, e.g. "BR".
	Prefix   string
	FoldCase bool
	Parse    func(src string) (*ast.File, []ast.Diagnostic)
	// Keywords are offered by completion.
	Keywords    []string
	TypeName    func(sema.Type) string
	LookupType  func(name string) (sema.Type, bool)
	Builtins    map[string]sema.Builtin
	Features    sema.Features
	FeatureName func(feature string) string
	EntryName   string
	// Describe renders the signature of a symbol for info tips.
	Describe func(sym *sema.Symbol) []guest.TaggedText
	// VarKeyword starts a local declaration, e.g. "var".
	VarKeyword    string
	CommentPrefix string
	// StringEscapes enables backslash escapes in string literals.
	StringEscapes bool
}

// FrontEnd is the shared front end. The analysis of a snapshot is computed
// once and reused until the next Update.
type FrontEnd struct {
	d          *Dialect
	opts       guest.Options
	namespaces []*sema.Namespace
	snap       guest.Snapshot
	cur        *analysis
}

type analysis struct {
	file  *ast.File
	info  *sema.Info
	lines *guest.LineIndex
	diags []guest.Diagnostic
}

// New creates a front end for d with the given options.
func New(d *Dialect, opts guest.Options) (*FrontEnd, error) {
	ns, err := LoadNamespaces(opts.References)
	if err != nil {
		return nil, err
	}
	return &FrontEnd{d: d, opts: opts, namespaces: ns}, nil
}

func (f *FrontEnd) Update(ctx context.Context, snap guest.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.snap = snap
	f.cur = nil
	return nil
}

func (f *FrontEnd) Text() string { return f.snap.Text }

func (f *FrontEnd) Version() int { return f.snap.Version }

// Dialect returns the language surface of the front end.
func (f *FrontEnd) Dialect() *Dialect { return f.d }

func (f *FrontEnd) analyze(ctx context.Context) (*analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.cur != nil {
		return f.cur, nil
	}
	file, parseDiags := f.d.Parse(f.snap.Text)
	info := sema.Check(file, sema.Config{
		FoldCase:    f.d.FoldCase,
		TypeName:    f.d.TypeName,
		LookupType:  f.d.LookupType,
		Builtins:    f.d.Builtins,
		Namespaces:  f.namespaces,
		Features:    f.d.Features,
		Version:     f.opts.Version,
		Console:     f.opts.Console,
		EntryName:   f.d.EntryName,
		FeatureName: f.d.FeatureName,
	})

	a := &analysis{file: file, info: info, lines: guest.NewLineIndex(f.snap.Text)}
	for _, d := range append(parseDiags, info.Diagnostics...) {
		a.diags = append(a.diags, f.convert(a.lines, d))
	}
	sort.SliceStable(a.diags, func(i, j int) bool { return offset(a.diags[i]) < offset(a.diags[j]) })
	f.cur = a
	return a, nil
}

func offset(d guest.Diagnostic) int {
	if d.Span == nil {
		return -1
	}
	return d.Span.Start.Offset
}

func (f *FrontEnd) convert(lines *guest.LineIndex, d ast.Diagnostic) guest.Diagnostic {
	out := guest.Diagnostic{
		ID:       ast.ID(f.d.Prefix, d.Code),
		Severity: guest.Error,
		Message:  d.Message,
	}
	if d.Warning {
		out.Severity = guest.Warning
	}
	if d.Span != ast.NoSpan {
		out.Span = lines.Span(d.Span.Start, d.Span.End)
	}
	return out
}

func (f *FrontEnd) Diagnose(ctx context.Context) ([]guest.Diagnostic, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return nil, err
	}
	return append([]guest.Diagnostic(nil), a.diags...), nil
}

func (f *FrontEnd) Compile(ctx context.Context) (*guest.CompilationResult, []guest.Diagnostic, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return nil, nil, err
	}
	if guest.HasErrors(a.diags) {
		return nil, append([]guest.Diagnostic(nil), a.diags...), nil
	}

	mod, syms, err := codegen.Generate(a.file, a.info, codegen.Options{
		Language: f.d.Language,
		Version:  f.opts.Version,
		Console:  f.opts.Console,
		Module:   string(f.d.Language),
		TypeName: f.d.TypeName,
		Line:     func(off int) int { return a.lines.Position(off).Line },
	})
	if err != nil {
		return nil, nil, fmt.Errorf("generate: %w", err)
	}
	image, err := wasm.Encode(mod)
	if err != nil {
		return nil, nil, fmt.Errorf("encode image: %w", err)
	}
	symbols, err := guest.EncodeSymbols(syms)
	if err != nil {
		return nil, nil, err
	}
	return guest.NewCompilationResult(image, symbols), nil, nil
}

func (f *FrontEnd) ApplyEdits(ctx context.Context, edits []guest.TextEdit) (guest.Snapshot, error) {
	snap := guest.Snapshot{
		Text:    guest.ApplyEdits(f.snap.Text, edits),
		Version: f.snap.Version + 1,
	}
	if err := f.Update(ctx, snap); err != nil {
		return guest.Snapshot{}, err
	}
	return snap, nil
}

// VisibleNames lists the names that can be referenced at offset.
func (f *FrontEnd) VisibleNames(ctx context.Context, offset int) ([]string, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, sym := range a.info.Visible(offset) {
		names = append(names, sym.Name)
	}
	return names, nil
}

// VarKeyword returns the keyword that starts a local declaration.
func (f *FrontEnd) VarKeyword() string { return f.d.VarKeyword }

// AssignmentAt reports the start of the plain assignment whose target
// identifier begins at offset.
func (f *FrontEnd) AssignmentAt(ctx context.Context, offset int) (int, bool, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return 0, false, err
	}
	start, found := 0, false
	walk(a.file, func(n ast.Node) bool {
		if as, ok := n.(*ast.Assign); ok && as.Op == ast.AssignSet && as.Target.Span.Start == offset {
			start, found = as.Span.Start, true
		}
		return !found
	})
	return start, found, nil
}

// DeclarationAt returns the span of the side-effect free local declaration
// whose name begins at offset.
func (f *FrontEnd) DeclarationAt(ctx context.Context, offset int) (guest.TextSpan, bool, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return guest.TextSpan{}, false, err
	}
	var decl *ast.VarDecl
	walk(a.file, func(n ast.Node) bool {
		if v, ok := n.(*ast.VarDecl); ok && v.Name.Span.Start == offset {
			decl = v
		}
		return decl == nil
	})
	if decl == nil || (decl.Init != nil && hasCall(decl.Init)) {
		return guest.TextSpan{}, false, nil
	}
	return guest.TextSpan{Start: decl.Span.Start, End: decl.Span.End}, true, nil
}

func walk(file *ast.File, fn func(ast.Node) bool) {
	for _, d := range file.Funcs {
		ast.Inspect(d, fn)
	}
	for _, s := range file.Stmts {
		ast.Inspect(s, fn)
	}
}

func hasCall(e ast.Expr) bool {
	found := false
	ast.Inspect(e, func(n ast.Node) bool {
		if _, ok := n.(*ast.Call); ok {
			found = true
		}
		return !found
	})
	return found
}
