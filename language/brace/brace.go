// Package brace provides the Brace language: a small C-family language with
// functions, locals, if/else, while loops and, from version 3, top-level
// statements.
package brace

import (
	"fmt"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/fixes"
	"github.com/caffeineduck/wasmlab/language/internal/frontend"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
)

// Prefix is the diagnostic ID prefix.
const Prefix = "BR"

// Language versions.
const (
	Version1 = 1
	// Version2 adds compound assignment.
	Version2 = 2
	// Version3 adds top-level statements.
	Version3 = 3
)

// ID returns the diagnostic ID for code.
func ID(code int) string { return ast.ID(Prefix, code) }

var dialect = &frontend.Dialect{
	Language:   guest.Brace,
	Prefix:     Prefix,
	Parse:      Parse,
	Keywords:   []string{"func", "var", "if", "else", "while", "return", "true", "false", "int", "bool", "string"},
	TypeName:   typeName,
	LookupType: lookupType,
	Builtins: map[string]sema.Builtin{
		"print":   sema.BuiltinPrint,
		"println": sema.BuiltinPrintLine,
	},
	Features:      sema.Features{CompoundAssign: Version2, TopLevel: Version3},
	EntryName:     "main",
	Describe:      describe,
	VarKeyword:    "var",
	CommentPrefix: "//",
	StringEscapes: true,
}

func typeName(t sema.Type) string {
	switch t {
	case sema.Void:
		return "void"
	case sema.Int:
		return "int"
	case sema.Bool:
		return "bool"
	case sema.String:
		return "string"
	}
	return "?"
}

func lookupType(name string) (sema.Type, bool) {
	switch name {
	case "int":
		return sema.Int, true
	case "bool":
		return sema.Bool, true
	case "string":
		return sema.String, true
	}
	return sema.Invalid, false
}

func describe(sym *sema.Symbol) []guest.TaggedText {
	var p frontend.Parts
	switch sym.Kind {
	case sema.SymLocal, sema.SymParam:
		kind := "local variable"
		tag := guest.TagLocal
		if sym.Kind == sema.SymParam {
			kind, tag = "parameter", guest.TagParameter
		}
		p.Punct("(").Add(guest.TagText, kind).Punct(")").Space()
		p.Add(tag, sym.Name).Space().Keyword(typeName(sym.Type))
	case sema.SymNamespace:
		p.Keyword("namespace").Space().Add(guest.TagNamespace, sym.Name)
	case sema.SymBuiltin:
		p.Keyword("func").Space().Add(guest.TagMethod, sym.Name).Punct("(")
		if sym.Builtin == sema.BuiltinPrintLine {
			p.Punct("[").Add(guest.TagParameter, "value").Punct("]")
		} else {
			p.Add(guest.TagParameter, "value")
		}
		p.Punct(")")
	default:
		p.Keyword("func").Space()
		if sym.Namespace != "" {
			p.Add(guest.TagNamespace, sym.Namespace).Punct(".")
		}
		p.Add(guest.TagMethod, sym.Name).Punct("(")
		for i, t := range sym.Params {
			if i > 0 {
				p.Punct(",").Space()
			}
			p.Add(guest.TagParameter, sym.ParamNames[i]).Space().Keyword(typeName(t))
		}
		p.Punct(")")
		if sym.Type != sema.Void {
			p.Space().Keyword(typeName(sym.Type))
		}
	}
	return p
}

// Brace implements guest.Language.
type Brace struct{}

// New returns the Brace language descriptor.
func New() *Brace {
	return &Brace{}
}

// ID returns guest.Brace.
func (*Brace) ID() guest.LanguageID { return guest.Brace }

// Versions returns the supported language versions.
func (*Brace) Versions() []int { return []int{Version1, Version2, Version3} }

// LatestVersion returns Version3.
func (*Brace) LatestVersion() int { return Version3 }

// NewFrontEnd creates a front end. A zero version selects the latest.
func (b *Brace) NewFrontEnd(opts guest.Options) (guest.FrontEnd, error) {
	if opts.Version == 0 {
		opts.Version = b.LatestVersion()
	}
	if opts.Version < Version1 || opts.Version > Version3 {
		return nil, fmt.Errorf("brace: unsupported language version %d", opts.Version)
	}
	fe, err := frontend.New(dialect, opts)
	if err != nil {
		return nil, fmt.Errorf("brace: %w", err)
	}
	return fe, nil
}

// FixProviders returns the quick-fix providers in registration order.
func (*Brace) FixProviders() []guest.FixProvider {
	return []guest.FixProvider{
		fixes.Spelling([]string{ID(ast.CodeUndeclared)}, false, fixes.ScopeCandidates),
		fixes.DeclareVariable(ID(ast.CodeUndeclared)),
		fixes.InsertSemicolon(ID(ast.CodeSemicolon)),
		fixes.RemoveUnused(ID(ast.CodeUnused)),
	}
}
