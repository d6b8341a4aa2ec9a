// Package fixes holds the quick-fix providers shared by the guest languages.
package fixes

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
)

// NameSource is implemented by documents that know which names are in scope.
type NameSource interface {
	VisibleNames(ctx context.Context, offset int) ([]string, error)
}

// Declarer is implemented by documents that can locate plain assignments.
type Declarer interface {
	VarKeyword() string
	AssignmentAt(ctx context.Context, offset int) (int, bool, error)
}

// DeclarationFinder is implemented by documents that can locate local
// declarations.
type DeclarationFinder interface {
	DeclarationAt(ctx context.Context, offset int) (guest.TextSpan, bool, error)
}

// CandidateFunc lists replacement names for a misspelling at offset.
type CandidateFunc func(ctx context.Context, doc guest.FrontEnd, offset int) ([]string, error)

// ScopeCandidates offers the names visible at the misspelling.
func ScopeCandidates(ctx context.Context, doc guest.FrontEnd, offset int) ([]string, error) {
	src, ok := doc.(NameSource)
	if !ok {
		return nil, fmt.Errorf("%w: document does not expose scopes", guest.ErrProviderInit)
	}
	return src.VisibleNames(ctx, offset)
}

// diagSpan returns the byte range a diagnostic covers.
func diagSpan(d guest.Diagnostic) (guest.TextSpan, bool) {
	if d.Span == nil {
		return guest.TextSpan{}, false
	}
	return guest.TextSpan{Start: d.Span.Start.Offset, End: d.Span.End.Offset}, true
}

type spelling struct {
	ids        []string
	fold       bool
	candidates CandidateFunc
}

// Spelling suggests the closest known names for an unknown one.
func Spelling(ids []string, fold bool, candidates CandidateFunc) guest.FixProvider {
	return &spelling{ids: ids, fold: fold, candidates: candidates}
}

func (*spelling) Name() string { return "spelling" }

func (s *spelling) FixableIDs() []string { return s.ids }

const maxSuggestions = 3

func (s *spelling) RegisterFixes(ctx context.Context, fc *guest.FixContext) error {
	span, ok := diagSpan(fc.Diagnostic)
	if !ok || span.Len() <= 0 {
		return nil
	}
	text := fc.Document.Text()
	if span.End > len(text) {
		return nil
	}
	word := text[span.Start:span.End]

	names, err := s.candidates(ctx, fc.Document, span.Start)
	if err != nil {
		return err
	}

	type match struct {
		name string
		dist int
	}
	var matches []match
	seen := map[string]bool{}
	limit := len(word)/3 + 1
	for _, n := range names {
		if seen[n] || n == word || (s.fold && strings.EqualFold(n, word)) {
			continue
		}
		seen[n] = true
		a, b := word, n
		if s.fold {
			a, b = strings.ToLower(a), strings.ToLower(b)
		}
		if d := distance(a, b); d <= limit {
			matches = append(matches, match{n, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	for _, m := range matches {
		fc.Register(guest.Fix{
			Title: fmt.Sprintf("Change '%s' to '%s'", word, m.name),
			Edits: []guest.TextEdit{{Span: span, NewText: m.name}},
		})
	}
	return nil
}

// distance is the optimal string alignment distance between a and b.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(ra)][len(rb)]
}

type declareVariable struct{ ids []string }

// DeclareVariable turns an assignment to an undeclared name into a local
// declaration.
func DeclareVariable(ids ...string) guest.FixProvider {
	return &declareVariable{ids: ids}
}

func (*declareVariable) Name() string { return "declare-variable" }

func (p *declareVariable) FixableIDs() []string { return p.ids }

func (p *declareVariable) RegisterFixes(ctx context.Context, fc *guest.FixContext) error {
	doc, ok := fc.Document.(Declarer)
	if !ok {
		return fmt.Errorf("%w: document cannot locate assignments", guest.ErrProviderInit)
	}
	span, ok := diagSpan(fc.Diagnostic)
	if !ok {
		return nil
	}
	start, found, err := doc.AssignmentAt(ctx, span.Start)
	if err != nil || !found {
		return err
	}
	name := fc.Document.Text()[span.Start:span.End]
	fc.Register(guest.Fix{
		Title: fmt.Sprintf("Declare local variable '%s'", name),
		Edits: []guest.TextEdit{{Span: guest.TextSpan{Start: start, End: start}, NewText: doc.VarKeyword() + " "}},
	})
	return nil
}

type insertText struct {
	ids   []string
	title string
	text  string
}

// InsertSemicolon inserts a missing statement terminator.
func InsertSemicolon(ids ...string) guest.FixProvider {
	return &insertText{ids: ids, title: "Insert ';'", text: ";"}
}

func (*insertText) Name() string { return "insert-text" }

func (p *insertText) FixableIDs() []string { return p.ids }

func (p *insertText) RegisterFixes(_ context.Context, fc *guest.FixContext) error {
	span, ok := diagSpan(fc.Diagnostic)
	if !ok {
		return nil
	}
	fc.Register(guest.Fix{
		Title: p.title,
		Edits: []guest.TextEdit{{Span: guest.TextSpan{Start: span.Start, End: span.Start}, NewText: p.text}},
	})
	return nil
}

type removeUnused struct{ ids []string }

// RemoveUnused deletes the declaration of a variable that is never read.
func RemoveUnused(ids ...string) guest.FixProvider {
	return &removeUnused{ids: ids}
}

func (*removeUnused) Name() string { return "remove-unused" }

func (p *removeUnused) FixableIDs() []string { return p.ids }

func (p *removeUnused) RegisterFixes(ctx context.Context, fc *guest.FixContext) error {
	doc, ok := fc.Document.(DeclarationFinder)
	if !ok {
		return fmt.Errorf("%w: document cannot locate declarations", guest.ErrProviderInit)
	}
	span, ok := diagSpan(fc.Diagnostic)
	if !ok {
		return nil
	}
	decl, found, err := doc.DeclarationAt(ctx, span.Start)
	if err != nil || !found {
		return err
	}
	text := fc.Document.Text()
	name := text[span.Start:span.End]
	fc.Register(guest.Fix{
		Title: fmt.Sprintf("Remove unused variable '%s'", name),
		Edits: []guest.TextEdit{{Span: wholeLine(text, decl), NewText: ""}},
	})
	return nil
}

// wholeLine widens span to its full line, including the line break, when
// nothing else shares that line.
func wholeLine(text string, span guest.TextSpan) guest.TextSpan {
	start := strings.LastIndexByte(text[:span.Start], '\n') + 1
	end := span.End
	if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
		end += nl + 1
	} else {
		end = len(text)
	}
	if strings.TrimSpace(text[start:span.Start]) != "" || strings.TrimSpace(text[span.End:end]) != "" {
		return span
	}
	return guest.TextSpan{Start: start, End: end}
}
