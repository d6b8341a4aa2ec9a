// Package basic provides the Basic language: a line-oriented, case-insensitive
// language with Function and Sub blocks. A console program starts at Sub Main.
package basic

import (
	"fmt"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/ast"
	"github.com/caffeineduck/wasmlab/language/internal/fixes"
	"github.com/caffeineduck/wasmlab/language/internal/frontend"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
)

// Prefix is the diagnostic ID prefix.
const Prefix = "BC"

const (
	Version1 = 1
	// Version2 adds compound assignment.
	Version2 = 2
)

// ID returns the diagnostic ID for code.
func ID(code int) string { return ast.ID(Prefix, code) }

var dialect = &frontend.Dialect{
	Language: guest.Basic,
	Prefix:   Prefix,
	FoldCase: true,
	Parse:    Parse,
	Keywords: []string{
		"Function", "Sub", "End", "Dim", "As", "If", "Then", "ElseIf", "Else", "While",
		"Return", "And", "Or", "Not", "Mod", "True", "False", "Long", "Integer", "Boolean", "String",
	},
	TypeName:   typeName,
	LookupType: lookupType,
	Builtins: map[string]sema.Builtin{
		"Print":     sema.BuiltinPrint,
		"PrintLine": sema.BuiltinPrintLine,
	},
	Features:      sema.Features{CompoundAssign: Version2},
	FeatureName:   featureName,
	EntryName:     "Main",
	Describe:      describe,
	VarKeyword:    "Dim",
	CommentPrefix: "'",
}

func typeName(t sema.Type) string {
	switch t {
	case sema.Int:
		return "Long"
	case sema.Bool:
		return "Boolean"
	case sema.String:
		return "String"
	case sema.Void:
		return "Void"
	}
	return "?"
}

func lookupType(name string) (sema.Type, bool) {
	switch strings.ToLower(name) {
	case "long", "integer":
		return sema.Int, true
	case "boolean":
		return sema.Bool, true
	case "string":
		return sema.String, true
	}
	return sema.Invalid, false
}

func featureName(f string) string {
	switch f {
	case "compound assignment":
		return "compound assignment operators"
	}
	return f
}

func describe(sym *sema.Symbol) []guest.TaggedText {
	var p frontend.Parts
	switch sym.Kind {
	case sema.SymLocal:
		p.Keyword("Dim").Space().Add(guest.TagLocal, sym.Name).Space().Keyword("As").Space().Keyword(typeName(sym.Type))
	case sema.SymParam:
		p.Add(guest.TagParameter, sym.Name).Space().Keyword("As").Space().Keyword(typeName(sym.Type))
	case sema.SymNamespace:
		p.Keyword("Namespace").Space().Add(guest.TagNamespace, sym.Name)
	case sema.SymBuiltin:
		p.Keyword("Sub").Space().Add(guest.TagMethod, sym.Name).Punct("(")
		if sym.Builtin == sema.BuiltinPrintLine {
			p.Punct("[").Add(guest.TagParameter, "value").Punct("]")
		} else {
			p.Add(guest.TagParameter, "value")
		}
		p.Punct(")")
	default:
		kw := "Function"
		if sym.Type == sema.Void {
			kw = "Sub"
		}
		p.Keyword(kw).Space()
		if sym.Namespace != "" {
			p.Add(guest.TagNamespace, sym.Namespace).Punct(".")
		}
		p.Add(guest.TagMethod, sym.Name).Punct("(")
		for i, t := range sym.Params {
			if i > 0 {
				p.Punct(",").Space()
			}
			p.Add(guest.TagParameter, sym.ParamNames[i]).Space().Keyword("As").Space().Keyword(typeName(t))
		}
		p.Punct(")")
		if sym.Type != sema.Void {
			p.Space().Keyword("As").Space().Keyword(typeName(sym.Type))
		}
	}
	return p
}

// Basic implements guest.Language.
type Basic struct{}

// New returns the Basic language descriptor.
func New() *Basic {
	return &Basic{}
}

// ID returns guest.Basic.
func (*Basic) ID() guest.LanguageID { return guest.Basic }

// Versions returns the supported language versions.
func (*Basic) Versions() []int { return []int{Version1, Version2} }

// LatestVersion returns Version2.
func (*Basic) LatestVersion() int { return Version2 }

// NewFrontEnd creates a front end. A zero version selects the latest.
func (b *Basic) NewFrontEnd(opts guest.Options) (guest.FrontEnd, error) {
	if opts.Version == 0 {
		opts.Version = b.LatestVersion()
	}
	if opts.Version < Version1 || opts.Version > Version2 {
		return nil, fmt.Errorf("basic: unsupported language version %d", opts.Version)
	}
	fe, err := frontend.New(dialect, opts)
	if err != nil {
		return nil, fmt.Errorf("basic: %w", err)
	}
	return fe, nil
}

// FixProviders returns the quick-fix providers in registration order.
func (*Basic) FixProviders() []guest.FixProvider {
	return []guest.FixProvider{
		fixes.Spelling([]string{ID(ast.CodeUndeclared)}, true, fixes.ScopeCandidates),
		fixes.DeclareVariable(ID(ast.CodeUndeclared)),
		fixes.RemoveUnused(ID(ast.CodeUnused)),
	}
}
