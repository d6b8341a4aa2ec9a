package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errCompileFailed = errors.New("compilation failed")

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Compile and process code once",
	Long: `Compile a program and run it, or decompile it to Brace or WAT text.

Code can be provided via:
  - File argument: wasmlab run hello.br
  - Inline flag: wasmlab run -c 'println(1 + 1);'
  - Stdin: echo 'println(1 + 1);' | wasmlab run

The language is taken from --lang, then from the file extension
(.br, .bas, .asm), and defaults to brace.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to compile")
	addCompilerFlags(cmd)
	cmd.Flags().Duration("timeout", 0, "Execution timeout (default from config)")
	cmd.Flags().Bool("source-lines", false, "Annotate decompiled output with source lines")
}

func addCompilerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("lang", "l", "", "Language: brace, basic, asm (default: from file extension)")
	cmd.Flags().StringP("output", "o", "run", "Output: run, brace, wat")
	cmd.Flags().Int("version", 0, "Language version (default: latest)")
	cmd.Flags().Bool("library", false, "Report top-level code in library output instead of compiling it as a program")
}

// compilerFlags translates the flags added by addCompilerFlags.
func compilerFlags(cmd *cobra.Command, filename string) ([]playground.CompilerOption, error) {
	langFlag, _ := cmd.Flags().GetString("lang")
	output, _ := cmd.Flags().GetString("output")
	version, _ := cmd.Flags().GetInt("version")
	library, _ := cmd.Flags().GetBool("library")

	lang, err := languageFor(langFlag, filename)
	if err != nil {
		return nil, err
	}
	kind, err := guest.ParseOutputKind(output)
	if err != nil {
		return nil, err
	}

	opts := []playground.CompilerOption{
		playground.WithLanguage(lang),
		playground.WithOutputKind(kind),
		playground.WithLanguageVersion(lang, version),
	}
	if library {
		opts = append(opts, playground.WithFallbackConfig(lang, playground.FallbackConfig{}))
	}
	if cmd.Flags().Lookup("source-lines") != nil {
		lines, _ := cmd.Flags().GetBool("source-lines")
		opts = append(opts, playground.WithSourceLines(lines))
	}
	if cmd.Flags().Lookup("timeout") != nil {
		if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
			opts = append(opts, playground.WithRunOptions(executor.WithTimeout(timeout)))
		}
	}
	return opts, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, filename, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if source == "" {
		return cmd.Help()
	}
	opts, err := compilerFlags(cmd, filename)
	if err != nil {
		return err
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.newCompiler(opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Process(commandContext(cmd), source)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), filename, res)
}

// printResult writes program output and decompiled text to out, and
// diagnostics and the run status to errOut.
func printResult(out, errOut io.Writer, filename string, res playground.ProcessResult) error {
	printDiagnostics(errOut, filename, res.Diagnostics)
	if guest.HasErrors(unwrap(res.Diagnostics)) {
		return errCompileFailed
	}
	if res.Text != "" {
		fmt.Fprint(out, res.Text)
	}
	if len(res.Output) == 0 {
		return nil
	}

	fmt.Fprint(out, res.Output[0])
	if res.Output[0] != "" && !strings.HasSuffix(res.Output[0], "\n") {
		fmt.Fprintln(out)
	}
	status := res.Output[len(res.Output)-1]
	if status == "exit code 0" {
		return nil
	}
	if strings.HasPrefix(status, "exit code ") {
		color.New(color.FgYellow).Fprintln(errOut, status)
		return nil
	}
	return errors.New(status)
}

func unwrap(diags []playground.Diagnostic) []guest.Diagnostic {
	out := make([]guest.Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = d.Diagnostic
	}
	return out
}

var severityColors = map[guest.Severity]*color.Color{
	guest.Error:   color.New(color.FgRed, color.Bold),
	guest.Warning: color.New(color.FgYellow, color.Bold),
	guest.Info:    color.New(color.FgCyan),
}

func printDiagnostics(w io.Writer, filename string, diags []playground.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(w, formatDiagnostic(filename, d.Diagnostic))
		for _, a := range d.Actions {
			fmt.Fprintf(w, "    fix: %s\n", a.Title)
		}
	}
}

func formatDiagnostic(filename string, d guest.Diagnostic) string {
	var b strings.Builder
	if filename == "" {
		filename = "<input>"
	}
	b.WriteString(filename)
	if d.Span != nil {
		fmt.Fprintf(&b, ":%d:%d", d.Span.Start.Line+1, d.Span.Start.Column+1)
	}
	b.WriteString(": ")
	b.WriteString(severityColors[d.Severity].Sprint(d.Severity.String()))
	if d.ID != "" {
		b.WriteString(" ")
		b.WriteString(d.ID)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}
