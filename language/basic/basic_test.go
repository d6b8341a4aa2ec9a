package basic

import (
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/langtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squares = `' prints the first three squares
Function Square(x As Long) As Long
    Return x * x
End Function

Sub Main()
    Dim i As Integer = 1
    Dim text = "n="
    While i <= 3
        Print(text)
        PrintLine(square(i))
        i += 1
    End While
    If Not (i = 4) Then
        PrintLine("bad")
    ElseIf i Mod 2 = 0 And True Then
        PrintLine("even")
    Else
        PrintLine("odd")
    End If
End Sub
`

func diagnose(t *testing.T, opts guest.Options, src string) []string {
	t.Helper()
	fe := langtest.FrontEnd(t, New(), opts, src)
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, d := range diags {
		ids = append(ids, d.ID)
	}
	return ids
}

func TestRunProgram(t *testing.T) {
	image := langtest.Compile(t, New(), squares)
	assert.Equal(t, "n=1\nn=4\nn=9\neven\n", langtest.Run(t, image))
}

func TestRunReference(t *testing.T) {
	ref := langtest.MathReference(t)
	src := "Sub Main\n    PrintLine(Math.Max(2, 5))\nEnd Sub\n"
	image := langtest.Compile(t, New(), src, ref)
	assert.Equal(t, "5\n", langtest.Run(t, image, ref))
}

func TestCaseInsensitiveNames(t *testing.T) {
	src := "SUB main()\n    dim Count = 1\n    printline(COUNT)\nend sub"
	assert.Empty(t, diagnose(t, guest.Options{Console: true}, src))
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name    string
		version int
		src     string
		want    string
	}{
		{"outside method", 0, "Dim x = 1\nSub Main()\nEnd Sub", "BC30001"},
		{"missing end", 0, "Sub Main()\n    PrintLine(1)\n", "BC30026"},
		{"trailing tokens", 0, "Sub Main()\n    PrintLine(1) 2\nEnd Sub", "BC30205"},
		{"no main", 0, "Sub Helper()\nEnd Sub", "BC5001"},
		{"compound v1", Version1, "Sub Main()\n    Dim x = 1\n    x += 1\n    PrintLine(x)\nEnd Sub", "BC8400"},
		{"missing as", 0, "Function F()\n    Return 1\nEnd Function\nSub Main()\nEnd Sub", "BC1003"},
		{"undeclared", 0, "Sub Main()\n    PrintLine(y)\nEnd Sub", "BC0103"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, diagnose(t, guest.Options{Version: tt.version, Console: true}, tt.src), tt.want)
		})
	}
}

func TestCleanProgram(t *testing.T) {
	assert.Empty(t, diagnose(t, guest.Options{Console: true}, squares))
}

func firstFix(t *testing.T, fe guest.FrontEnd, diag guest.Diagnostic) guest.Fix {
	t.Helper()
	fc := guest.NewFixContext(fe, diag)
	for _, p := range New().FixProviders() {
		for _, id := range p.FixableIDs() {
			if id == diag.ID {
				require.NoError(t, p.RegisterFixes(context.Background(), fc))
			}
		}
	}
	require.NotEmpty(t, fc.Fixes())
	return fc.Fixes()[0]
}

func TestFixDeclareVariable(t *testing.T) {
	ctx := context.Background()
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "Sub Main()\n    x = 5\n    PrintLine(x)\nEnd Sub")
	diags, err := fe.Diagnose(ctx)
	require.NoError(t, err)
	require.Len(t, diags, 2)

	fix := firstFix(t, fe, diags[0])
	snap, err := fe.ApplyEdits(ctx, fix.Edits)
	require.NoError(t, err)
	assert.Equal(t, "Sub Main()\n    Dim x = 5\n    PrintLine(x)\nEnd Sub", snap.Text)

	diags, err = fe.Diagnose(ctx)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestFixSpellingIgnoresCase(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "Sub Main()\n    Dim total = 1\n    PrintLine(TOTL)\nEnd Sub")
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "BC0103", diags[1].ID)

	assert.Equal(t, "Change 'TOTL' to 'total'", firstFix(t, fe, diags[1]).Title)
}

func TestInfoTipAndCompletion(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, squares)

	tip, err := fe.(guest.InfoTipper).InfoTip(context.Background(), strings.Index(squares, "square(i)")+2)
	require.NoError(t, err)
	require.NotEmpty(t, tip.Sections)
	assert.Equal(t, "Function Square(x As Long) As Long", tip.Sections[0].Text())

	pos := strings.Index(squares, "Print(text)")
	items, err := fe.(guest.Completer).Complete(context.Background(), pos)
	require.NoError(t, err)
	got := map[string]string{}
	for _, it := range items {
		got[it.DisplayText] = it.Tags[0]
	}
	assert.Equal(t, guest.TagLocal, got["i"])
	assert.Equal(t, guest.TagLocal, got["text"])
	assert.Equal(t, guest.TagMethod, got["PrintLine"])
	assert.Equal(t, guest.TagKeyword, got["ElseIf"])

	c := fe.(guest.Completer)
	assert.False(t, c.ShouldTriggerCompletion("' a", 3, guest.Trigger{Kind: guest.TriggerInsertion, Character: 'a'}))
	assert.True(t, c.ShouldTriggerCompletion("Dim a", 5, guest.Trigger{Kind: guest.TriggerInsertion, Character: 'a'}))
}
