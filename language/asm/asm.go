// Package asm provides a line-oriented assembly language for wasm
// instructions. It doubles as the assembler for the bundled reference
// libraries.
//
// A program is a list of directives and instructions, one per line:
//
//	.module demo
//	.import math max 2 1
//	.data hello "hello\n"
//	.func main
//	.entrypoint
//	    str hello
//	    call env.print_str
//	.end
//
// Comments start with ';'.
package asm

import (
	"context"
	"fmt"
	"sort"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/fixes"
	"github.com/caffeineduck/wasmlab/wasm"
)

// Prefix is the diagnostic ID prefix.
const Prefix = "AS"

// Version1 is the only language version.
const Version1 = 1

// ID returns the diagnostic ID for code.
func ID(code int) string { return ast.ID(Prefix, code) }

// Asm implements guest.Language.
type Asm struct{}

// New returns the assembly language descriptor.
func New() *Asm {
	return &Asm{}
}

func (*Asm) ID() guest.LanguageID { return guest.Asm }

func (*Asm) Versions() []int { return []int{Version1} }

func (*Asm) LatestVersion() int { return Version1 }

// NewFrontEnd creates a front end. References are not loaded; imports are
// declared explicitly with .import.
func (*Asm) NewFrontEnd(opts guest.Options) (guest.FrontEnd, error) {
	if opts.Version == 0 {
		opts.Version = Version1
	}
	if opts.Version != Version1 {
		return nil, fmt.Errorf("asm: unsupported language version %d", opts.Version)
	}
	return &FrontEnd{opts: opts}, nil
}

// FixProviders returns the spelling provider for unknown instructions.
func (*Asm) FixProviders() []guest.FixProvider {
	return []guest.FixProvider{
		fixes.Spelling([]string{ID(CodeUnknownInstruction)}, false, mnemonics),
	}
}

func mnemonics(context.Context, guest.FrontEnd, int) ([]string, error) {
	return append(wasm.Mnemonics(), strMnemonic), nil
}

// FrontEnd assembles one document.
type FrontEnd struct {
	opts guest.Options
	snap guest.Snapshot
	cur  *analysis
}

type analysis struct {
	prog  *program
	diags []guest.Diagnostic
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

func (f *FrontEnd) analyze(ctx context.Context) (*analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.cur != nil {
		return f.cur, nil
	}
	prog := assemble(f.snap.Text, AssembleOptions{Name: string(guest.Asm), Console: f.opts.Console})
	lines := guest.NewLineIndex(f.snap.Text)
	a := &analysis{prog: prog}
	for _, d := range prog.diags {
		gd := guest.Diagnostic{ID: ID(d.Code), Severity: guest.Error, Message: d.Message}
		if d.Warning {
			gd.Severity = guest.Warning
		}
		if d.Span != ast.NoSpan {
			gd.Span = lines.Span(d.Span.Start, d.Span.End)
		}
		a.diags = append(a.diags, gd)
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
	image, err := wasm.Encode(a.prog.mod)
	if err != nil {
		return nil, nil, fmt.Errorf("encode image: %w", err)
	}
	symbols, err := guest.EncodeSymbols(a.prog.syms)
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
