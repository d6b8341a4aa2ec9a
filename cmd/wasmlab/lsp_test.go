package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const testURI = protocol.DocumentUri("file:///work/main.br")

type notification struct {
	method string
	params any
}

func newTestLSP(t *testing.T) (*lspServer, *glsp.Context, *[]notification) {
	t.Helper()
	s := newLSPServer(testEnv(t))
	t.Cleanup(s.closeAll)

	var sent []notification
	ctx := &glsp.Context{Notify: func(method string, params any) {
		sent = append(sent, notification{method, params})
	}}
	return s, ctx, &sent
}

func openDoc(t *testing.T, s *lspServer, ctx *glsp.Context, text string) {
	t.Helper()
	require.NoError(t, s.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: testURI, LanguageID: "brace", Version: 1, Text: text},
	}))
}

func published(t *testing.T, n notification) protocol.PublishDiagnosticsParams {
	t.Helper()
	require.Equal(t, protocol.ServerTextDocumentPublishDiagnostics, n.method)
	p, ok := n.params.(protocol.PublishDiagnosticsParams)
	require.True(t, ok)
	return p
}

func TestLSPInitialize(t *testing.T) {
	s, ctx, _ := newTestLSP(t)
	res, err := s.initialize(ctx, &protocol.InitializeParams{})
	require.NoError(t, err)

	result, ok := res.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, lspName, result.ServerInfo.Name)
	assert.Equal(t, true, result.Capabilities.HoverProvider)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.Equal(t, []string{"."}, result.Capabilities.CompletionProvider.TriggerCharacters)
}

func TestLSPDiagnosticsAndCodeActions(t *testing.T) {
	s, ctx, sent := newTestLSP(t)
	openDoc(t, s, ctx, misspelled)

	require.Len(t, *sent, 1)
	p := published(t, (*sent)[0])
	assert.Equal(t, testURI, p.URI)
	require.Len(t, p.Diagnostics, 2)

	undeclared := p.Diagnostics[1]
	assert.Equal(t, protocol.DiagnosticSeverityError, *undeclared.Severity)
	assert.Equal(t, "BR0103", undeclared.Code.Value)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 2, Character: 10},
		End:   protocol.Position{Line: 2, Character: 14},
	}, undeclared.Range)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *p.Diagnostics[0].Severity)

	res, err := s.textDocumentCodeAction(ctx, &protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Range:        protocol.Range{Start: protocol.Position{Line: 2, Character: 11}, End: protocol.Position{Line: 2, Character: 11}},
	})
	require.NoError(t, err)
	actions, ok := res.([]protocol.CodeAction)
	require.True(t, ok)
	require.NotEmpty(t, actions)
	assert.Equal(t, "Change 'cout' to 'count'", actions[0].Title)
	edits := actions[0].Edit.Changes[testURI]
	require.Len(t, edits, 1)
	assert.Equal(t, "count", edits[0].NewText)
	assert.Equal(t, undeclared.Range, edits[0].Range)

	res, err = s.textDocumentCodeAction(ctx, &protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Range:        protocol.Range{Start: protocol.Position{Line: 0, Character: 0}, End: protocol.Position{Line: 0, Character: 4}},
	})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLSPDidChangeAndClose(t *testing.T) {
	s, ctx, sent := newTestLSP(t)
	openDoc(t, s, ctx, misspelled)

	require.NoError(t, s.textDocumentDidChange(ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "func main() {\n    println(1);\n}\n"}},
	}))
	require.Len(t, *sent, 2)
	assert.Empty(t, published(t, (*sent)[1]).Diagnostics)

	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	require.Len(t, *sent, 3)
	assert.Empty(t, published(t, (*sent)[2]).Diagnostics)
	_, ok := s.document(testURI)
	assert.False(t, ok)
}

func TestLSPHoverAndCompletion(t *testing.T) {
	s, ctx, _ := newTestLSP(t)
	openDoc(t, s, ctx, "func main() {\n    var total = 1;\n    println(total);\n}\n")
	doc := protocol.TextDocumentIdentifier{URI: testURI}

	hover, err := s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: doc, Position: protocol.Position{Line: 2, Character: 14}},
	})
	require.NoError(t, err)
	require.NotNil(t, hover)
	content, ok := hover.Contents.(protocol.MarkupContent)
	require.True(t, ok)
	assert.Equal(t, "```\n(local variable) total int\n```", content.Value)

	hover, err = s.textDocumentHover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: doc, Position: protocol.Position{Line: 3, Character: 1}},
	})
	require.NoError(t, err)
	assert.Nil(t, hover)

	res, err := s.textDocumentCompletion(ctx, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: doc, Position: protocol.Position{Line: 2, Character: 14}},
	})
	require.NoError(t, err)
	items, ok := res.([]protocol.CompletionItem)
	require.True(t, ok)
	var labels []string
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	assert.Contains(t, labels, "total")
}

func TestLSPUnknownDocument(t *testing.T) {
	s, ctx, _ := newTestLSP(t)
	doc := protocol.TextDocumentIdentifier{URI: "file:///missing.br"}

	hover, err := s.textDocumentHover(ctx, &protocol.HoverParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{TextDocument: doc}})
	assert.NoError(t, err)
	assert.Nil(t, hover)

	res, err := s.textDocumentCodeAction(ctx, &protocol.CodeActionParams{TextDocument: doc})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestOffsetPositionUTF16(t *testing.T) {
	text := "a😀b\nçd\n"

	assert.Equal(t, 0, offsetAt(text, protocol.Position{Line: 0, Character: 0}))
	assert.Equal(t, 1, offsetAt(text, protocol.Position{Line: 0, Character: 1}))
	assert.Equal(t, 5, offsetAt(text, protocol.Position{Line: 0, Character: 3}))
	assert.Equal(t, 6, offsetAt(text, protocol.Position{Line: 0, Character: 99}))
	assert.Equal(t, 9, offsetAt(text, protocol.Position{Line: 1, Character: 1}))
	assert.Equal(t, len(text), offsetAt(text, protocol.Position{Line: 7}))

	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, positionAt(text, 5))
	assert.Equal(t, protocol.Position{Line: 1, Character: 1}, positionAt(text, 9))
	assert.Equal(t, protocol.Position{Line: 2, Character: 0}, positionAt(text, 100))
}

func TestCompletionKind(t *testing.T) {
	assert.Equal(t, protocol.CompletionItemKindKeyword, completionKind([]string{"Keyword"}))
	assert.Equal(t, protocol.CompletionItemKindText, completionKind(nil))
}
