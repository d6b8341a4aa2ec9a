package frontend

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/sema"
)

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// identStart returns the start of the identifier characters ending at pos.
func identStart(text string, pos int) int {
	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:pos])
		if !isIdentRune(r) {
			break
		}
		pos -= size
	}
	return pos
}

// inCommentOrString reports whether pos lies inside a line comment or a
// string literal.
func (f *FrontEnd) inCommentOrString(text string, pos int) bool {
	lineStart := strings.LastIndexByte(text[:pos], '\n') + 1
	inString := false
	for i := lineStart; i < pos; i++ {
		c := text[i]
		switch {
		case inString && c == '\\' && f.d.StringEscapes:
			i++
		case c == '"':
			inString = !inString
		case !inString && f.d.CommentPrefix != "" && strings.HasPrefix(text[i:], f.d.CommentPrefix):
			return true
		}
	}
	return inString
}

func clampPos(text string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(text) {
		return len(text)
	}
	return pos
}

// ShouldTriggerCompletion opens completion after a member dot and at the
// start of an identifier.
func (f *FrontEnd) ShouldTriggerCompletion(text string, pos int, trigger guest.Trigger) bool {
	pos = clampPos(text, pos)
	switch trigger.Kind {
	case guest.TriggerInvoke:
		return true
	case guest.TriggerDeletion:
		return false
	}
	if f.inCommentOrString(text, pos) {
		return false
	}
	if trigger.Character == '.' {
		return true
	}
	if !isIdentStart(trigger.Character) {
		return false
	}
	before := pos - utf8.RuneLen(trigger.Character)
	if before <= 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:before])
	return !isIdentRune(prev)
}

func (f *FrontEnd) namespace(name string) *sema.Namespace {
	for _, ns := range f.namespaces {
		if ns.Name == name || (f.d.FoldCase && strings.EqualFold(ns.Name, name)) {
			return ns
		}
	}
	return nil
}

func (f *FrontEnd) Complete(ctx context.Context, pos int) ([]guest.CompletionItem, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return nil, err
	}
	text := f.snap.Text
	pos = clampPos(text, pos)
	if f.inCommentOrString(text, pos) {
		return nil, nil
	}
	start := identStart(text, pos)
	span := guest.TextSpan{Start: start, End: pos}

	if start > 0 && text[start-1] == '.' {
		ns := f.namespace(text[identStart(text, start-1) : start-1])
		if ns == nil {
			return nil, nil
		}
		items := make([]guest.CompletionItem, 0, len(ns.Members))
		for _, m := range ns.Members {
			items = append(items, f.item(m, span))
		}
		return items, nil
	}

	var items []guest.CompletionItem
	for _, sym := range a.info.Visible(pos) {
		items = append(items, f.item(sym, span))
	}
	for _, kw := range f.d.Keywords {
		items = append(items, guest.CompletionItem{
			DisplayText: kw,
			FilterText:  kw,
			SortText:    strings.ToLower(kw),
			Tags:        []string{guest.TagKeyword},
			Span:        span,
		})
	}
	return items, nil
}

func (f *FrontEnd) item(sym *sema.Symbol, span guest.TextSpan) guest.CompletionItem {
	it := guest.CompletionItem{
		DisplayText: sym.Name,
		FilterText:  sym.Name,
		SortText:    strings.ToLower(sym.Name),
		Tags:        []string{tag(sym)},
		Span:        span,
	}
	if sym.Type != sema.Invalid && sym.Type != sema.Void && sym.Kind != sema.SymNamespace {
		it.InlineDescription = f.d.TypeName(sym.Type)
	}
	return it
}

func tag(sym *sema.Symbol) string {
	switch sym.Kind {
	case sema.SymLocal:
		return guest.TagLocal
	case sema.SymParam:
		return guest.TagParameter
	case sema.SymNamespace:
		return guest.TagNamespace
	}
	return guest.TagMethod
}

func (f *FrontEnd) InfoTip(ctx context.Context, pos int) (guest.InfoTip, error) {
	a, err := f.analyze(ctx)
	if err != nil {
		return guest.InfoTip{}, err
	}
	id, sym := a.info.SymbolAt(pos)
	if sym == nil {
		return guest.InfoTip{}, nil
	}
	tip := guest.InfoTip{
		Tags: []string{tag(sym)},
		Span: guest.TextSpan{Start: id.Span.Start, End: id.Span.End},
		Sections: []guest.InfoTipSection{
			{Kind: guest.SectionDescription, Parts: f.d.Describe(sym)},
		},
	}
	if sym.Doc != "" {
		tip.Sections = append(tip.Sections, guest.InfoTipSection{
			Kind:  guest.SectionDocumentation,
			Parts: []guest.TaggedText{{Tag: guest.TagText, Text: sym.Doc}},
		})
	}
	return tip, nil
}
