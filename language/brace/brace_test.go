package brace

import (
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/internal/langtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagnose(t *testing.T, opts guest.Options, src string) []guest.Diagnostic {
	t.Helper()
	fe := langtest.FrontEnd(t, New(), opts, src)
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	return diags
}

func ids(diags []guest.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.ID)
	}
	return out
}

const fibProgram = `func fib(n int) int {
    if (n < 2) { return n; }
    return fib(n - 1) + fib(n - 2);
}

func main() {
    var i = 0;
    while (i < 10) {
        print(fib(i));
        print(" ");
        i += 1;
    }
    println();
    println(true && !false);
}
`

func TestRunProgram(t *testing.T) {
	image := langtest.Compile(t, New(), fibProgram)
	assert.Equal(t, "0 1 1 2 3 5 8 13 21 34 \ntrue\n", langtest.Run(t, image))
}

func TestRunTopLevel(t *testing.T) {
	src := `var total = 0;
var n = 1;
while (n <= 4) {
    total = total + n * n;
    n += 1;
}
if (total == 30 || false) {
    println("ok");
} else {
    println("bad");
}
println(-total % 7);
`
	image := langtest.Compile(t, New(), src)
	assert.Equal(t, "ok\n-2\n", langtest.Run(t, image))
}

func TestRunReference(t *testing.T) {
	ref := langtest.MathReference(t)
	image := langtest.Compile(t, New(), "println(math.max(3, 9) + math.neg(1));", ref)
	assert.Equal(t, "8\n", langtest.Run(t, image, ref))
}

func TestCleanProgram(t *testing.T) {
	assert.Empty(t, diagnose(t, guest.Options{Console: true}, fibProgram))
}

func TestUndeclaredName(t *testing.T) {
	diags := diagnose(t, guest.Options{Console: true}, "func main() {\n    print(y);\n}")
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, "BR0103", d.ID)
	assert.Equal(t, guest.Error, d.Severity)
	assert.Contains(t, d.Message, "'y'")
	require.NotNil(t, d.Span)
	assert.Equal(t, 1, d.Span.Start.Line)
	assert.Equal(t, 10, d.Span.Start.Column)
}

func TestTopLevelStatements(t *testing.T) {
	tests := []struct {
		name    string
		version int
		console bool
		want    []string
	}{
		{"v2 console", Version2, true, []string{"BR8400"}},
		{"v3 console", Version3, true, nil},
		{"v3 library", Version3, false, []string{"BR8805"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := diagnose(t, guest.Options{Version: tt.version, Console: tt.console}, "print(1);")
			assert.Equal(t, tt.want, ids(diags))
		})
	}
}

func TestMainIgnoredWithTopLevel(t *testing.T) {
	diags := diagnose(t, guest.Options{Console: true}, "func main() {\n}\nprint(1);")
	require.Len(t, diags, 1)
	assert.Equal(t, "BR7022", diags[0].ID)
	assert.Equal(t, guest.Warning, diags[0].Severity)
}

func TestMissingEntryPoint(t *testing.T) {
	src := "func helper() int {\n    return 1;\n}"
	assert.Equal(t, []string{"BR5001"}, ids(diagnose(t, guest.Options{Console: true}, src)))
	assert.Empty(t, diagnose(t, guest.Options{Console: false}, src))
}

func TestCompoundAssignmentNeedsVersion2(t *testing.T) {
	src := "func main() {\n    var x = 1;\n    x += 2;\n    print(x);\n}"
	assert.Equal(t, []string{"BR8400"}, ids(diagnose(t, guest.Options{Version: Version1, Console: true}, src)))
	assert.Empty(t, diagnose(t, guest.Options{Version: Version2, Console: true}, src))
}

func TestTypeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"convert", `var x int = true;`, "BR0029"},
		{"operator", `print(1 + true);`, "BR0019"},
		{"unary", `print(!1);`, "BR0023"},
		{"arity", `print(f(1, 2));`, "BR1501"},
		{"argument", `print(f(false));`, "BR1503"},
		{"condition", `if (1) { }`, "BR0029"},
		{"statement", `1 + 2;`, "BR0201"},
		{"unknown type", `var x num = 1; print(x);`, "BR0246"},
		{"void variable", `var x = g(); print(x);`, "BR0815"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "func f(a int) int {\n    return a;\n}\nfunc g() {\n}\nfunc main() {\n    " + tt.body + "\n}"
			assert.Contains(t, ids(diagnose(t, guest.Options{Console: true}, src)), tt.want)
		})
	}
}

func TestReturnChecks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing path", "func f(a int) int {\n    if (a > 0) { return 1; }\n}", "BR0161"},
		{"value in void", "func f() {\n    return 1;\n}", "BR0127"},
		{"missing value", "func f() int {\n    return;\n}", "BR0126"},
		{"duplicate func", "func f() {\n}\nfunc f() {\n}", "BR0111"},
		{"duplicate local", "func f(a int) {\n    var a = 1;\n}", "BR0128"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, ids(diagnose(t, guest.Options{}, tt.src)), tt.want)
		})
	}
}

func TestWhileTrueTerminates(t *testing.T) {
	src := "func f() int {\n    while (true) {\n        return 1;\n    }\n}"
	assert.Empty(t, diagnose(t, guest.Options{}, src))
}

func TestUnusedVariableIsWarning(t *testing.T) {
	ctx := context.Background()
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    var x = 1;\n}")

	diags, err := fe.Diagnose(ctx)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "BR0168", diags[0].ID)
	assert.Equal(t, guest.Warning, diags[0].Severity)

	res, cdiags, err := fe.Compile(ctx)
	require.NoError(t, err)
	assert.Nil(t, cdiags)
	require.NotNil(t, res)
	assert.NoError(t, res.Close())
}

func TestSyntaxErrors(t *testing.T) {
	diags := diagnose(t, guest.Options{Console: true}, "func main() {\n    var x = 1\n    print(x);\n}")
	require.Len(t, diags, 1)
	assert.Equal(t, "BR1002", diags[0].ID)
	assert.Equal(t, 27, diags[0].Span.Start.Offset)

	assert.Contains(t, ids(diagnose(t, guest.Options{Console: true}, "func main() {\n    print(\"abc);\n}")), "BR1010")
	assert.Contains(t, ids(diagnose(t, guest.Options{Console: true}, "func main() {\n    print(1 # 2);\n}")), "BR1056")
	assert.Contains(t, ids(diagnose(t, guest.Options{Console: true}, "func main() {\n    print(99999999999999999999);\n}")), "BR1021")
	assert.Contains(t, ids(diagnose(t, guest.Options{Console: true}, "func main() {\n    print(*);\n}")), "BR1525")
}

func TestCompileReturnsDiagnosticsOnError(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    print(y);\n}")
	res, diags, err := fe.Compile(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []string{"BR0103"}, ids(diags))
}

func TestCancelledContext(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, fibProgram)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fe.Diagnose(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFrontEndVersion(t *testing.T) {
	_, err := New().NewFrontEnd(guest.Options{Version: 7})
	assert.Error(t, err)
	assert.Equal(t, 3, New().LatestVersion())
	assert.Equal(t, []int{1, 2, 3}, New().Versions())
}

func fix(t *testing.T, fe guest.FrontEnd, diag guest.Diagnostic) []guest.Fix {
	t.Helper()
	fc := guest.NewFixContext(fe, diag)
	for _, p := range New().FixProviders() {
		for _, id := range p.FixableIDs() {
			if id == diag.ID {
				require.NoError(t, p.RegisterFixes(context.Background(), fc))
			}
		}
	}
	return fc.Fixes()
}

func applyFirst(t *testing.T, fe guest.FrontEnd, fixes []guest.Fix) string {
	t.Helper()
	require.NotEmpty(t, fixes)
	snap, err := fe.ApplyEdits(context.Background(), fixes[0].Edits)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
	return snap.Text
}

func TestFixInsertSemicolon(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    var x = 1\n    print(x);\n}")
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 1)

	text := applyFirst(t, fe, fix(t, fe, diags[0]))
	assert.Equal(t, "func main() {\n    var x = 1;\n    print(x);\n}", text)
	diags, err = fe.Diagnose(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestFixDeclareVariable(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    x = 5;\n    print(x);\n}")
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 2)

	fixes := fix(t, fe, diags[0])
	require.Len(t, fixes, 1)
	assert.Equal(t, "Declare local variable 'x'", fixes[0].Title)
	assert.Equal(t, "func main() {\n    var x = 5;\n    print(x);\n}", applyFirst(t, fe, fixes))

	// the read of x offers no declaration
	assert.Empty(t, fix(t, fe, guest.Diagnostic{ID: "BR0103", Span: &guest.Span{
		Start: guest.Position{Offset: 39}, End: guest.Position{Offset: 40},
	}}))
}

func TestFixSpelling(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    var count = 1;\n    print(cout);\n}")
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BR0168", "BR0103"}, ids(diags))

	fixes := fix(t, fe, diags[1])
	require.Len(t, fixes, 1)
	assert.Equal(t, "Change 'cout' to 'count'", fixes[0].Title)
	assert.Contains(t, applyFirst(t, fe, fixes), "print(count);")
}

func TestFixRemoveUnused(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, "func main() {\n    var x = 1;\n    print(2);\n}")
	diags, err := fe.Diagnose(context.Background())
	require.NoError(t, err)
	require.Len(t, diags, 1)

	assert.Equal(t, "func main() {\n    print(2);\n}", applyFirst(t, fe, fix(t, fe, diags[0])))
}

const completionProgram = `func add(a int, b int) int {
    return a + b;
}
func main() {
    var total = add(1, 2);
    print(to);
}
`

func labels(items []guest.CompletionItem) map[string]string {
	out := map[string]string{}
	for _, it := range items {
		out[it.DisplayText] = it.Tags[0]
	}
	return out
}

func TestComplete(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, completionProgram)
	pos := strings.Index(completionProgram, "to)") + 2
	items, err := fe.(guest.Completer).Complete(context.Background(), pos)
	require.NoError(t, err)

	got := labels(items)
	assert.Equal(t, guest.TagLocal, got["total"])
	assert.Equal(t, guest.TagMethod, got["add"])
	assert.Equal(t, guest.TagMethod, got["println"])
	assert.Equal(t, guest.TagKeyword, got["while"])
	assert.NotContains(t, got, "a")
	for _, it := range items {
		assert.Equal(t, guest.TextSpan{Start: pos - 2, End: pos}, it.Span)
	}
}

func TestCompleteMembers(t *testing.T) {
	src := "func main() {\n    print(math.);\n}"
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true, References: []guest.Reference{langtest.MathReference(t)}}, src)
	items, err := fe.(guest.Completer).Complete(context.Background(), strings.Index(src, "math.")+5)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"max": guest.TagMethod, "neg": guest.TagMethod}, labels(items))
}

func TestShouldTriggerCompletion(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{}, "")
	c := fe.(guest.Completer)
	insert := func(r rune) guest.Trigger { return guest.Trigger{Kind: guest.TriggerInsertion, Character: r} }

	assert.True(t, c.ShouldTriggerCompletion("math.", 5, insert('.')))
	assert.True(t, c.ShouldTriggerCompletion("var a", 5, insert('a')))
	assert.False(t, c.ShouldTriggerCompletion("var ab", 6, insert('b')))
	assert.False(t, c.ShouldTriggerCompletion("// a", 4, insert('a')))
	assert.False(t, c.ShouldTriggerCompletion(`print("a`, 8, insert('a')))
	assert.False(t, c.ShouldTriggerCompletion("1", 1, insert('1')))
	assert.False(t, c.ShouldTriggerCompletion("ab", 1, guest.Trigger{Kind: guest.TriggerDeletion}))
	assert.True(t, c.ShouldTriggerCompletion("ab", 1, guest.Trigger{Kind: guest.TriggerInvoke}))
}

func TestInfoTip(t *testing.T) {
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true}, completionProgram)
	tipper := fe.(guest.InfoTipper)

	pos := strings.Index(completionProgram, "add(1") + 1
	tip, err := tipper.InfoTip(context.Background(), pos)
	require.NoError(t, err)
	require.Len(t, tip.Sections, 1)
	assert.Equal(t, guest.SectionDescription, tip.Sections[0].Kind)
	assert.Equal(t, "func add(a int, b int) int", tip.Sections[0].Text())
	assert.Equal(t, []string{guest.TagMethod}, tip.Tags)

	pos = strings.Index(completionProgram, "total")
	tip, err = tipper.InfoTip(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, "(local variable) total int", tip.Sections[0].Text())

	tip, err = tipper.InfoTip(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, tip.IsEmpty())
}

func TestInfoTipMemberDocs(t *testing.T) {
	src := "func main() {\n    print(math.neg(1));\n}"
	fe := langtest.FrontEnd(t, New(), guest.Options{Console: true, References: []guest.Reference{langtest.MathReference(t)}}, src)
	tip, err := fe.(guest.InfoTipper).InfoTip(context.Background(), strings.Index(src, "neg")+1)
	require.NoError(t, err)
	require.Len(t, tip.Sections, 2)
	assert.Equal(t, "func math.neg(x int) int", tip.Sections[0].Text())
	assert.Equal(t, guest.SectionDocumentation, tip.Sections[1].Kind)
	assert.Equal(t, "Returns -x.", tip.Sections[1].Text())
}
