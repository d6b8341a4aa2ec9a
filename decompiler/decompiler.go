// Package decompiler renders wasm images as text: a WAT-like disassembly or
// Brace source lifted from the instructions.
package decompiler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/wasm"
)

// Syntax selects the rendering.
type Syntax int

const (
	SyntaxWAT Syntax = iota
	SyntaxBrace
)

func (s Syntax) String() string {
	switch s {
	case SyntaxWAT:
		return "wat"
	case SyntaxBrace:
		return "brace"
	}
	return fmt.Sprintf("syntax(%d)", int(s))
}

// SyntaxFor maps a decompiling output kind to its syntax.
func SyntaxFor(kind guest.OutputKind) (Syntax, error) {
	switch kind {
	case guest.OutputWAT:
		return SyntaxWAT, nil
	case guest.OutputBrace:
		return SyntaxBrace, nil
	}
	return 0, fmt.Errorf("output kind %q is not rendered as text", kind)
}

// Options control rendering.
type Options struct {
	Syntax Syntax
	// Version is the Brace language version to render for. Zero selects
	// the latest.
	Version int
	// SourceLines annotates functions with their source line when symbols
	// are available.
	SourceLines bool
}

// Latest Brace version understood by the lifter.
const latestBraceVersion = 3

// Render decodes image and renders it. symbols may be nil or empty.
func Render(image io.Reader, symbols io.Reader, opts Options) (string, error) {
	bin, err := io.ReadAll(image)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	m, err := wasm.Decode(bin)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	syms, err := readSymbols(symbols)
	if err != nil {
		return "", err
	}
	if opts.Version == 0 {
		opts.Version = latestBraceVersion
	}

	switch opts.Syntax {
	case SyntaxWAT:
		return renderWAT(m, syms, opts), nil
	case SyntaxBrace:
		return renderBrace(m, syms, opts), nil
	}
	return "", fmt.Errorf("unknown syntax %s", opts.Syntax)
}

func readSymbols(r io.Reader) (*guest.Symbols, error) {
	if r == nil {
		return nil, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	syms, err := guest.DecodeSymbols(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	return syms, nil
}

// symbol returns the debug info of function idx.
func symbol(syms *guest.Symbols, idx uint32) (guest.FunctionSymbol, bool) {
	if syms == nil {
		return guest.FunctionSymbol{}, false
	}
	return syms.Function(idx)
}
