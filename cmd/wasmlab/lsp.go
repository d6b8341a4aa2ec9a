package main

import (
	"context"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "wasmlab-lsp"

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server on stdio",
	Long: `Run a Language Server Protocol server on stdin/stdout.

Documents are compiled as console programs. The language is taken from
the file extension (.br, .bas, .asm). The server publishes diagnostics and
answers completion, hover and quick fix code action requests.`,
	RunE: runLSP,
}

func init() {
	lspCmd.Flags().Int("verbosity", 0, "glsp protocol log verbosity")
	rootCmd.AddCommand(lspCmd)
}

type lspDocument struct {
	text     string
	compiler *playground.Compiler
	diags    []playground.Diagnostic
}

type lspServer struct {
	env     *env
	logger  *zap.SugaredLogger
	version string

	mu   sync.Mutex
	docs map[protocol.DocumentUri]*lspDocument

	handler protocol.Handler
}

func newLSPServer(e *env) *lspServer {
	s := &lspServer{
		env:     e,
		logger:  e.logger.With("component", "lsp"),
		version: "0.1.0",
		docs:    make(map[protocol.DocumentUri]*lspDocument),
	}
	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentCodeAction: s.textDocumentCodeAction,
	}
	return s
}

func (s *lspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "wasmlab LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}
	capabilities.HoverProvider = true
	capabilities.CodeActionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *lspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *lspServer) shutdown(ctx *glsp.Context) error {
	s.closeAll()
	return nil
}

func (s *lspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (s *lspServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, doc := range s.docs {
		doc.compiler.Close()
		delete(s.docs, uri)
	}
}

func (s *lspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	lang, err := languageFor("", string(uri))
	if err != nil {
		return err
	}
	c, err := s.env.newCompiler(playground.WithLanguage(lang), playground.WithOutputKind(guest.OutputRun))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.docs[uri]; ok {
		old.compiler.Close()
	}
	doc := &lspDocument{text: params.TextDocument.Text, compiler: c}
	s.docs[uri] = doc
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *lspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return nil
	}
	// With Full sync, the last change event contains the full text
	whole, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}

	doc, ok := s.document(uri)
	if !ok {
		return nil
	}
	s.mu.Lock()
	doc.text = whole.Text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, doc)
	return nil
}

func (s *lspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	if doc, ok := s.docs[uri]; ok {
		doc.compiler.Close()
		delete(s.docs, uri)
	}
	s.mu.Unlock()

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *lspServer) document(uri protocol.DocumentUri) (*lspDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *lspServer) snapshot(doc *lspDocument) (string, []playground.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return doc.text, doc.diags
}

func (s *lspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *lspDocument) {
	text, _ := s.snapshot(doc)
	diags, err := doc.compiler.Diagnostics(context.Background(), text)
	if err != nil {
		s.logger.Warnw("diagnostics failed", "uri", uri, "error", err)
		return
	}

	s.mu.Lock()
	doc.diags = diags
	s.mu.Unlock()

	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, toProtocolDiagnostic(text, d.Diagnostic))
	}
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: out,
	})
}

func (s *lspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	text, _ := s.snapshot(doc)
	pos := offsetAt(text, params.Position)

	trigger := guest.Trigger{Kind: guest.TriggerInvoke}
	if params.Context != nil && params.Context.TriggerKind == protocol.CompletionTriggerKindTriggerCharacter && params.Context.TriggerCharacter != nil {
		trigger.Kind = guest.TriggerInsertion
		trigger.Character, _ = utf8.DecodeRuneInString(*params.Context.TriggerCharacter)
	}

	items, err := doc.compiler.Completions(context.Background(), text, pos, trigger)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.CompletionItem, 0, len(items))
	for _, it := range items {
		kind := completionKind(it.Tags)
		item := protocol.CompletionItem{
			Label: it.DisplayText,
			Kind:  &kind,
		}
		if it.SortText != "" {
			item.SortText = strPtr(it.SortText)
		}
		if it.FilterText != "" {
			item.FilterText = strPtr(it.FilterText)
		}
		if it.InlineDescription != "" {
			item.Detail = strPtr(it.InlineDescription)
		}
		out = append(out, item)
	}
	return out, nil
}

func completionKind(tags []string) protocol.CompletionItemKind {
	for _, t := range tags {
		switch t {
		case guest.TagKeyword:
			return protocol.CompletionItemKindKeyword
		case guest.TagMethod:
			return protocol.CompletionItemKindFunction
		case guest.TagLocal, guest.TagParameter:
			return protocol.CompletionItemKindVariable
		case guest.TagNamespace:
			return protocol.CompletionItemKindModule
		}
	}
	return protocol.CompletionItemKindText
}

func (s *lspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	text, _ := s.snapshot(doc)
	tip, err := doc.compiler.InfoTip(context.Background(), text, offsetAt(text, params.Position))
	if err != nil || tip.IsEmpty() {
		return nil, err
	}

	var b strings.Builder
	for i, sec := range tip.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if sec.Kind == guest.SectionDescription {
			b.WriteString("```\n" + sec.Text() + "\n```")
		} else {
			b.WriteString(sec.Text())
		}
	}
	r := toRange(text, tip.Span.Start, tip.Span.End)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &r,
	}, nil
}

func (s *lspServer) textDocumentCodeAction(ctx *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	text, diags := s.snapshot(doc)

	kind := protocol.CodeActionKindQuickFix
	var out []protocol.CodeAction
	for _, d := range diags {
		pd := toProtocolDiagnostic(text, d.Diagnostic)
		if !overlaps(pd.Range, params.Range) {
			continue
		}
		for _, a := range d.Actions {
			edits := make([]protocol.TextEdit, len(a.Edits))
			for i, e := range a.Edits {
				edits[i] = protocol.TextEdit{Range: toRange(text, e.Span.Start, e.Span.End), NewText: e.NewText}
			}
			out = append(out, protocol.CodeAction{
				Title:       a.Title,
				Kind:        &kind,
				Diagnostics: []protocol.Diagnostic{pd},
				Edit: &protocol.WorkspaceEdit{
					Changes: map[protocol.DocumentUri][]protocol.TextEdit{uri: edits},
				},
			})
		}
	}
	return out, nil
}

func toProtocolDiagnostic(text string, d guest.Diagnostic) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	switch d.Severity {
	case guest.Warning:
		severity = protocol.DiagnosticSeverityWarning
	case guest.Info:
		severity = protocol.DiagnosticSeverityInformation
	}
	var r protocol.Range
	if d.Span != nil {
		r = toRange(text, d.Span.Start.Offset, d.Span.End.Offset)
	}
	source := lspName
	pd := protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  d.Message,
	}
	if d.ID != "" {
		pd.Code = &protocol.IntegerOrString{Value: d.ID}
	}
	return pd
}

func overlaps(a, b protocol.Range) bool {
	return !before(a.End, b.Start) && !before(b.End, a.Start)
}

func before(a, b protocol.Position) bool {
	return a.Line < b.Line || a.Line == b.Line && a.Character < b.Character
}

// offsetAt converts an LSP position, counted in UTF-16 code units, to a
// byte offset into text.
func offsetAt(text string, pos protocol.Position) int {
	offset := 0
	for line := protocol.UInteger(0); line < pos.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return len(text)
		}
		offset += i + 1
	}
	units := protocol.UInteger(0)
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' {
			break
		}
		units += protocol.UInteger(utf16.RuneLen(r))
		offset += size
	}
	return offset
}

// positionAt converts a byte offset to an LSP position.
func positionAt(text string, offset int) protocol.Position {
	offset = max(0, min(offset, len(text)))
	var pos protocol.Position
	for _, r := range text[:offset] {
		if r == '\n' {
			pos.Line++
			pos.Character = 0
			continue
		}
		pos.Character += protocol.UInteger(utf16.RuneLen(r))
	}
	return pos
}

func toRange(text string, start, end int) protocol.Range {
	return protocol.Range{Start: positionAt(text, start), End: positionAt(text, end)}
}

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

func runLSP(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetInt("verbosity")
	commonlog.Configure(verbosity, nil)

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	s := newLSPServer(e)
	defer s.closeAll()
	return glspserver.NewServer(&s.handler, lspName, false).RunStdio()
}
