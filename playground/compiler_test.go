package playground

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/guest/guestmock"
	"github.com/caffeineduck/wasmlab/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/mock/gomock"
)

func mathReference(t *testing.T) guest.Reference {
	t.Helper()
	img, err := reference.BundledSupplier{}.Fetch(context.Background(), "math")
	require.NoError(t, err)
	return guest.Reference{Name: "math", Image: img}
}

func newCompiler(t *testing.T, opts ...CompilerOption) *Compiler {
	t.Helper()
	opts = append([]CompilerOption{WithCompilerReferences([]guest.Reference{mathReference(t)})}, opts...)
	c, err := NewCompiler(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func counters(scope tally.TestScope) map[string]int64 {
	out := map[string]int64{}
	for _, c := range scope.Snapshot().Counters() {
		out[c.Name()] = c.Value()
	}
	return out
}

func TestProcessRun(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Process(context.Background(), "func main() {\n    println(\"hello\");\n}\n")
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, []string{"hello\n", "exit code 0"}, res.Output)
	assert.Empty(t, res.Text)
}

func TestProcessRunWithReference(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Process(context.Background(), "println(math.max(4, 11) - math.abs(-1));")
	require.NoError(t, err)
	assert.Equal(t, []string{"10\n", "exit code 0"}, res.Output)
}

func TestProcessRunFault(t *testing.T) {
	c := newCompiler(t)
	src := "func div(a int, b int) int {\n    return a / b;\n}\nprint(\"before\");\nprintln(div(1, 0));\n"
	res, err := c.Process(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Output, 2)
	assert.Equal(t, "before", res.Output[0])
	assert.Contains(t, res.Output[1], "divide by zero")
}

func TestProcessCompileFailure(t *testing.T) {
	c := newCompiler(t)
	res, err := c.Process(context.Background(), "println(undefinedThing);")
	require.NoError(t, err)
	require.NotEmpty(t, res.Diagnostics)
	assert.Contains(t, res.Diagnostics[0].Message, "undefinedThing")
	assert.Empty(t, res.Output)
	assert.Empty(t, res.Text)
}

func TestProcessDecompile(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputWAT))
	res, err := c.Process(context.Background(), "func twice(x int) int {\n    return x * 2;\n}\n")
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.Text, "(func $twice")
	assert.Contains(t, res.Text, "i64.mul")
	assert.Nil(t, res.Output)

	require.NoError(t, c.SetOutputKind(guest.OutputBrace))
	res, err = c.Process(context.Background(), "func twice(x int) int {\n    return x * 2;\n}\n")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "func twice(x int) int {\n    return x * 2;\n}")
}

func TestProcessOutputVersion(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputBrace))
	src := "func bump(x int) int {\n    x += 1;\n    return x;\n}\n"

	res, err := c.Process(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "x += 1;")

	c.SetOutputVersion(1)
	assert.Equal(t, 1, c.OutputVersion())
	res, err = c.Process(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "x = x + 1;")
}

func TestCompileFallback(t *testing.T) {
	scope := tally.NewTestScope("testing", map[string]string{})
	c := newCompiler(t, WithOutputKind(guest.OutputBrace), WithScope(scope))

	res, err := c.Process(context.Background(), "var x = 2;\nprintln(x * 21);\n")
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Contains(t, res.Text, "println(x * 21);")

	diags, err := c.Diagnostics(context.Background(), "var x = 2;\nprintln(x * 21);\n")
	require.NoError(t, err)
	assert.Empty(t, diags)

	got := counters(scope)
	assert.Equal(t, int64(1), got["testing.compile.fallback"])
	assert.Equal(t, int64(1), got["testing.compile.count"])
}

func TestCompileFallbackNeedsQualifyingVersion(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputWAT), WithLanguageVersion(guest.Brace, 2))
	out, err := c.Compile(context.Background(), "println(1);")
	require.NoError(t, err)
	assert.Nil(t, out.Result)

	var ids []string
	for _, d := range out.Diagnostics {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, "BR8805")
}

func TestCompileFallbackFromConfig(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputWAT), WithFallbackConfig(guest.Brace, FallbackConfig{}))
	out, err := c.Compile(context.Background(), "println(1);")
	require.NoError(t, err)
	assert.Nil(t, out.Result)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, "BR8805", out.Diagnostics[0].ID)
}

func TestSetLanguage(t *testing.T) {
	c := newCompiler(t)
	_, err := c.Diagnostics(context.Background(), "println(1);")
	require.NoError(t, err)
	first := c.session

	require.NoError(t, c.SetLanguage(guest.Brace))
	assert.Same(t, first, c.session)

	require.NoError(t, c.SetLanguage(guest.Basic))
	assert.Nil(t, c.session)
	assert.Equal(t, guest.Basic, c.Language())

	res, err := c.Process(context.Background(), "Sub Main()\n    PrintLine(\"hi\")\nEnd Sub\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi\n", "exit code 0"}, res.Output)
	_, err = first.Diagnose(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed, "replaced session is closed")

	err = c.SetLanguage("cobol")
	assert.ErrorIs(t, err, guest.ErrUnknownLanguage)
}

func TestSetOutputKindKeepsSession(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputWAT))
	_, err := c.Diagnostics(context.Background(), "func f() {}\n")
	require.NoError(t, err)
	first := c.session

	require.NoError(t, c.SetOutputKind(guest.OutputBrace))
	assert.Same(t, first, c.session, "both kinds are library kinds")

	require.NoError(t, c.SetOutputKind(guest.OutputRun))
	assert.Nil(t, c.session)
	assert.Equal(t, guest.OutputRun, c.OutputKind())

	assert.Error(t, c.SetOutputKind("pdf"))
}

func TestSetLanguageVersionKeepsText(t *testing.T) {
	c := newCompiler(t)
	src := "var x = 1;\nx += 1;\nprintln(x);\n"
	diags, err := c.Diagnostics(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.NoError(t, c.SetLanguageVersion(1))
	assert.Equal(t, 1, c.LanguageVersion())
	require.NotNil(t, c.session)
	assert.Equal(t, src, c.session.Text())

	diags, err = c.Diagnostics(context.Background(), src)
	require.NoError(t, err)
	assert.NotEmpty(t, diags)

	assert.ErrorIs(t, c.SetLanguageVersion(7), ErrUnsupportedVersion)
}

func TestSettings(t *testing.T) {
	c := newCompiler(t)
	assert.Equal(t, Settings{Language: guest.Brace, Output: guest.OutputRun}, c.Settings())

	one, two := 1, 2
	require.NoError(t, c.Apply(SettingsChange{Language: guest.Basic, Output: guest.OutputWAT, LanguageVersion: &one, OutputVersion: &two}))
	assert.Equal(t, Settings{Language: guest.Basic, Output: guest.OutputWAT, LanguageVersion: 1, OutputVersion: 2}, c.Settings())

	five := 5
	assert.Error(t, c.Apply(SettingsChange{Language: guest.Asm, LanguageVersion: &five}))
}

func TestApplyKeepsUnnamedSettings(t *testing.T) {
	c := newCompiler(t, WithOutputKind(guest.OutputWAT), WithLanguageVersion(guest.Brace, 2))
	src := "func main() {\n    var count = 1;\n    print(cout);\n}"
	_, err := c.Diagnostics(context.Background(), src)
	require.NoError(t, err)
	first := c.session
	require.NotNil(t, first)

	require.NoError(t, c.Apply(SettingsChange{Output: guest.OutputBrace}))
	assert.Same(t, first, c.session)
	assert.Equal(t, Settings{Language: guest.Brace, Output: guest.OutputBrace, LanguageVersion: 2}, c.Settings())

	zero := 0
	require.NoError(t, c.Apply(SettingsChange{LanguageVersion: &zero}))
	assert.NotSame(t, first, c.session)
	assert.Equal(t, 0, c.LanguageVersion())
}

func TestCompilerApplyAction(t *testing.T) {
	c := newCompiler(t)
	diags, err := c.Diagnostics(context.Background(), "func main() {\n    var count = 1;\n    print(cout);\n}")
	require.NoError(t, err)
	require.Len(t, diags, 2)
	require.NotEmpty(t, diags[1].Actions)

	a, ok := c.Action(diags[1].Actions[0].ID)
	require.True(t, ok)
	text, err := c.ApplyAction(context.Background(), a)
	require.NoError(t, err)
	assert.Contains(t, text, "print(count);")

	_, ok = c.Action("nope")
	assert.False(t, ok)
}

func TestCompilerCompletionsAndInfoTip(t *testing.T) {
	c := newCompiler(t)
	src := "func main() {\n    var total = 1;\n    print(to);\n}"
	pos := strings.Index(src, "to)") + 2

	items, err := c.Completions(context.Background(), src, pos, guest.Trigger{Kind: guest.TriggerInvoke})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "total", items[0].DisplayText)

	src = "func main() {\n    var total = 1;\n    print(total);\n}"
	tip, err := c.InfoTip(context.Background(), src, strings.Index(src, "total)")+1)
	require.NoError(t, err)
	require.NotEmpty(t, tip.Sections)
	assert.Equal(t, "(local variable) total int", tip.Sections[0].Text())
}

func TestErrorBoundary(t *testing.T) {
	ctrl := gomock.NewController(t)
	fe := guestmock.NewMockFrontEnd(ctrl)
	fe.EXPECT().Update(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	fe.EXPECT().Compile(gomock.Any()).DoAndReturn(func(context.Context) (*guest.CompilationResult, []guest.Diagnostic, error) {
		return nil, nil, errors.New("emitter failed")
	})
	lang := mockLang(ctrl, fe)

	c := newCompiler(t)
	c.lang = lang

	res, err := c.Process(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, InternalErrorID, res.Diagnostics[0].ID)
	assert.Equal(t, "emitter failed", res.Diagnostics[0].Message)
}

func TestCancellationPropagates(t *testing.T) {
	c := newCompiler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Diagnostics(ctx, "println(1);")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = c.Process(ctx, "println(1);")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSharedExecutor(t *testing.T) {
	exec, err := executor.New()
	require.NoError(t, err)
	defer exec.Close()

	c := newCompiler(t, WithExecutor(exec), WithRunOptions(executor.WithOutputLimit(3)))
	res, err := c.Process(context.Background(), "println(\"abcdef\");")
	require.NoError(t, err)
	require.Len(t, res.Output, 2)
	assert.Equal(t, "abc", res.Output[0])

	require.NoError(t, c.Close())
	res2 := exec.Run(context.Background(), strings.NewReader("not wasm"), nil)
	assert.NotErrorIs(t, res2.Error, executor.ErrClosed, "caller keeps ownership")
}

func TestClosedCompiler(t *testing.T) {
	c := newCompiler(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Diagnostics(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Process(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SetLanguage(guest.Asm), ErrClosed)
}

func TestExecuteClosesResult(t *testing.T) {
	exec, err := executor.New()
	require.NoError(t, err)
	defer exec.Close()

	s := braceSession(t, WithConsole(true))
	s.SetSourceText("println(7);")
	out, err := s.Compile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Result)

	r := Execute(context.Background(), exec, out.Result, nil)
	assert.Equal(t, []string{"7\n", "exit code 0"}, r.Lines())

	_, err = out.Result.Image.Read(make([]byte, 1))
	assert.ErrorIs(t, err, guest.ErrStreamClosed)
}
