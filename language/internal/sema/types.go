// Package sema type-checks the shared syntax tree and records the symbol
// information used by code generation, completion and info tips.
package sema

import (
	"strings"

	"github.com/caffeineduck/wasmlab/language/internal/ast"
)

// Type is a value type.
type Type int

const (
	Invalid Type = iota
	Void
	Int
	Bool
	String
)

// SymbolKind classifies a symbol.
type SymbolKind int

const (
	SymLocal SymbolKind = iota
	SymParam
	SymFunc
	SymBuiltin
	SymNamespace
	SymMember
)

// Builtin identifies an intrinsic function.
type Builtin int

const (
	BuiltinNone Builtin = iota
	BuiltinPrint
	BuiltinPrintLine
)

// Symbol is a named entity.
type Symbol struct {
	Kind SymbolKind
	Name string
	// Type is the value type of a local or the result type of a function.
	Type       Type
	Params     []Type
	ParamNames []string
	// Decl is the span of the declaring identifier; NoSpan for imported or
	// intrinsic symbols.
	Decl ast.Span
	// Visible is the offset from which a local may be referenced.
	Visible int
	// Local is the wasm local index of a local or parameter.
	Local int
	// Func is the declaring function of a local, or the function itself.
	Func      *FuncInfo
	Builtin   Builtin
	Namespace string
	Doc       string

	read bool
}

// Namespace is a reference library exposed as `name.member`.
type Namespace struct {
	Name    string
	Members []*Symbol
	Doc     string
}

// Member finds a member by normalized name.
func (n *Namespace) Member(name string, fold bool) *Symbol {
	for _, m := range n.Members {
		if normalize(m.Name, fold) == normalize(name, fold) {
			return m
		}
	}
	return nil
}

// Features maps language features to the first version supporting them.
// Zero means the feature is not available at any version.
type Features struct {
	CompoundAssign int
	TopLevel       int
}

// Config parameterizes a check.
type Config struct {
	FoldCase bool
	// TypeName renders a type the way the language spells it.
	TypeName func(Type) string
	// LookupType resolves a type name written in source.
	LookupType func(name string) (Type, bool)
	// Builtins maps normalized names to intrinsics.
	Builtins   map[string]Builtin
	Namespaces []*Namespace
	Features   Features
	Version    int
	Console    bool
	// EntryName is the name of the entry point function, e.g. "main".
	EntryName string
	// FeatureName renders a feature for the version diagnostic.
	FeatureName func(feature string) string
}

// Scope is a lexical scope.
type Scope struct {
	Parent   *Scope
	Span     ast.Span
	Symbols  []*Symbol
	Children []*Scope
}

func (s *Scope) lookup(name string, fold bool) *Symbol {
	for i := len(s.Symbols) - 1; i >= 0; i-- {
		if normalize(s.Symbols[i].Name, fold) == normalize(name, fold) {
			return s.Symbols[i]
		}
	}
	return nil
}

func (s *Scope) child(span ast.Span) *Scope {
	c := &Scope{Parent: s, Span: span}
	s.Children = append(s.Children, c)
	return c
}

// FuncInfo describes a function to generate.
type FuncInfo struct {
	Name string
	// Decl is nil for the function synthesized from top-level statements.
	Decl   *ast.FuncDecl
	Body   []ast.Stmt
	Sym    *Symbol
	Result Type
	// Locals lists parameters first, then locals, by wasm local index.
	Locals      []*Symbol
	NumParams   int
	Scope       *Scope
	Synthesized bool
	// Line is the zero-based line of the declaration.
	Span ast.Span
}

// Info is the result of a check.
type Info struct {
	Funcs []*FuncInfo
	Entry *FuncInfo
	// Idents maps declaring and referencing identifiers to their symbol.
	Idents map[*ast.Ident]*Symbol
	// Types records the type of every checked expression.
	Types map[ast.Expr]Type
	// Calls records the resolved callee of every call.
	Calls       map[*ast.Call]*Symbol
	Universe    []*Symbol
	Namespaces  []*Namespace
	TopLevel    *FuncInfo
	Diagnostics []ast.Diagnostic
	fold        bool
}

// ScopeAt returns the innermost scope containing pos, or nil outside any
// function or top-level code.
func (in *Info) ScopeAt(pos int) *Scope {
	for _, fn := range in.Funcs {
		if fn.Synthesized || fn.Scope == nil {
			continue
		}
		if pos >= fn.Span.Start && pos <= fn.Span.End {
			return innermost(fn.Scope, pos)
		}
	}
	if in.TopLevel != nil {
		return innermost(in.TopLevel.Scope, pos)
	}
	return nil
}

func innermost(s *Scope, pos int) *Scope {
	for _, c := range s.Children {
		if pos >= c.Span.Start && pos <= c.Span.End {
			return innermost(c, pos)
		}
	}
	return s
}

// Visible returns the symbols that can be referenced at pos: locals from the
// innermost scope outwards, then functions, namespaces and builtins.
func (in *Info) Visible(pos int) []*Symbol {
	var out []*Symbol
	seen := map[string]bool{}
	add := func(sym *Symbol) {
		key := normalize(sym.Name, in.fold)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, sym)
	}
	for s := in.ScopeAt(pos); s != nil; s = s.Parent {
		for i := len(s.Symbols) - 1; i >= 0; i-- {
			sym := s.Symbols[i]
			if sym.Kind == SymParam || sym.Visible <= pos {
				add(sym)
			}
		}
	}
	for _, sym := range in.Universe {
		add(sym)
	}
	return out
}

// SymbolAt returns the identifier at pos and its symbol. An identifier
// ending exactly at pos also matches.
func (in *Info) SymbolAt(pos int) (*ast.Ident, *Symbol) {
	var best *ast.Ident
	for id := range in.Idents {
		if pos < id.Span.Start || pos > id.Span.End {
			continue
		}
		if best == nil || id.Span.Start > best.Span.Start {
			best = id
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, in.Idents[best]
}

func normalize(name string, fold bool) string {
	if fold {
		return strings.ToLower(name)
	}
	return name
}
