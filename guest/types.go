package guest

import (
	"fmt"
	"strings"
)

// LanguageID names a guest language.
type LanguageID string

const (
	Brace LanguageID = "brace"
	Basic LanguageID = "basic"
	Asm   LanguageID = "asm"
)

// Languages lists every guest language in display order.
var Languages = []LanguageID{Brace, Basic, Asm}

// ParseLanguage resolves a language name or common alias.
func ParseLanguage(s string) (LanguageID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "brace", "br", "b":
		return Brace, nil
	case "basic", "bas", "vb":
		return Basic, nil
	case "asm", "wat", "s":
		return Asm, nil
	}
	return "", fmt.Errorf("%w %q: use brace, basic or asm", ErrUnknownLanguage, s)
}

// OutputKind is the desired final output of a compile.
type OutputKind string

const (
	// OutputBrace decompiles the image back to Brace source.
	OutputBrace OutputKind = "brace"
	// OutputWAT disassembles the image.
	OutputWAT OutputKind = "wat"
	// OutputRun executes the image.
	OutputRun OutputKind = "run"
)

// IsConsole reports whether images for this kind need an entry point.
func (k OutputKind) IsConsole() bool { return k == OutputRun }

// ParseOutputKind resolves an output kind name.
func ParseOutputKind(s string) (OutputKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "brace", "decompile", "source":
		return OutputBrace, nil
	case "wat", "disasm", "il":
		return OutputWAT, nil
	case "run", "exec", "execute":
		return OutputRun, nil
	}
	return "", fmt.Errorf("unknown output kind %q: use brace, wat or run", s)
}

// Severity of a diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "error":
		*s = Error
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Position is a location in a document. Line and Column are zero-based;
// Column counts bytes.
type Position struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a range between two positions.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextSpan is a half-open byte range [Start, End).
type TextSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s TextSpan) Len() int { return s.End - s.Start }

// Contains reports whether pos falls inside the span, end inclusive.
func (s TextSpan) Contains(pos int) bool { return pos >= s.Start && pos <= s.End }

// Diagnostic is a message reported against a document.
type Diagnostic struct {
	ID       string   `json:"id,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Span     *Span    `json:"span,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Span != nil {
		fmt.Fprintf(&b, "(%d,%d): ", d.Span.Start.Line+1, d.Span.Start.Column+1)
	}
	b.WriteString(d.Severity.String())
	if d.ID != "" {
		b.WriteString(" ")
		b.WriteString(d.ID)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// HasErrors reports whether any diagnostic has Error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// TextEdit replaces Span with NewText.
type TextEdit struct {
	Span    TextSpan `json:"span"`
	NewText string   `json:"newText"`
}

// Fix is a quick fix proposed for a diagnostic.
type Fix struct {
	Title string     `json:"title"`
	Edits []TextEdit `json:"edits"`
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	DisplayText       string   `json:"displayText"`
	FilterText        string   `json:"filterText"`
	SortText          string   `json:"sortText"`
	InlineDescription string   `json:"inlineDescription,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Span              TextSpan `json:"span"`
}

// Common tags for completion items and tagged text.
const (
	TagKeyword     = "Keyword"
	TagMethod      = "Method"
	TagLocal       = "Local"
	TagParameter   = "Parameter"
	TagNamespace   = "Namespace"
	TagPunctuation = "Punctuation"
	TagSpace       = "Space"
	TagText        = "Text"
	TagString      = "StringLiteral"
	TagNumber      = "NumericLiteral"
)

// Info tip section kinds.
const (
	SectionDescription   = "Description"
	SectionDocumentation = "DocumentationComments"
)

// TaggedText is a run of text classified by Tag.
type TaggedText struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// InfoTipSection is one block of an info tip.
type InfoTipSection struct {
	Kind  string       `json:"kind"`
	Parts []TaggedText `json:"parts"`
}

// Text concatenates the section's parts.
func (s InfoTipSection) Text() string {
	var b strings.Builder
	for _, p := range s.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// InfoTip is the hover content for a position.
type InfoTip struct {
	Tags     []string         `json:"tags,omitempty"`
	Span     TextSpan         `json:"span"`
	Sections []InfoTipSection `json:"sections,omitempty"`
}

// IsEmpty reports whether the tip has nothing to show.
func (t InfoTip) IsEmpty() bool { return len(t.Sections) == 0 }

// TriggerKind classifies the edit that prompted a completion request.
type TriggerKind int

const (
	// TriggerInvoke is an explicit request, e.g. Ctrl+Space.
	TriggerInvoke TriggerKind = iota
	TriggerInsertion
	TriggerDeletion
)

// Trigger describes why completion was requested.
type Trigger struct {
	Kind      TriggerKind
	Character rune
}

// Snapshot is an immutable document version.
type Snapshot struct {
	Text    string
	Version int
}

// Reference is a named library image compiled against and linked at run time.
type Reference struct {
	Name  string
	Image []byte
}

// Options configure a front end at creation.
type Options struct {
	Version    int
	Console    bool
	References []Reference
}
