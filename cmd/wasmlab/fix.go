package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

const maxFixPasses = 50

var fixCmd = &cobra.Command{
	Use:   "fix file",
	Short: "Apply quick fixes until none are left",
	Long: `Apply the first quick fix of each diagnostic, one at a time, until no
diagnostic offers a fix. The result is printed as a diff, or written back
to the file with --write.`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	addCompilerFlags(fixCmd)
	fixCmd.Flags().BoolP("write", "w", false, "Write the result to the file instead of printing a diff")
	rootCmd.AddCommand(fixCmd)
}

// fixSource applies quick fixes to text and returns the result and the
// titles of the applied fixes.
func fixSource(ctx context.Context, c *playground.Compiler, text string) (string, []string, error) {
	var applied []string
	for range maxFixPasses {
		diags, err := c.Diagnostics(ctx, text)
		if err != nil {
			return "", nil, err
		}
		action := firstAction(diags)
		if action == nil {
			break
		}
		next, err := c.ApplyAction(ctx, action)
		if err != nil {
			return "", nil, fmt.Errorf("apply %q: %w", action.Title, err)
		}
		applied = append(applied, action.Title)
		if next == text {
			break
		}
		text = next
	}
	return text, applied, nil
}

// firstAction picks the first fix of an error, or of a warning when no
// error has one.
func firstAction(diags []playground.Diagnostic) *playground.Action {
	var warning *playground.Action
	for _, d := range diags {
		if len(d.Actions) == 0 {
			continue
		}
		if d.Severity == guest.Error {
			return d.Actions[0]
		}
		if warning == nil {
			warning = d.Actions[0]
		}
	}
	return warning
}

// writeDiff prints a line diff of before and after.
func writeDiff(w io.Writer, name, before, after string) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	fmt.Fprintf(w, "--- %s\n+++ %s\n", name, name)
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				color.New(color.FgRed).Fprintf(w, "-%s\n", line)
			case diffmatchpatch.DiffInsert:
				color.New(color.FgGreen).Fprintf(w, "+%s\n", line)
			default:
				fmt.Fprintf(w, " %s\n", line)
			}
		}
	}
}

func runFix(cmd *cobra.Command, args []string) error {
	path := args[0]
	write, _ := cmd.Flags().GetBool("write")
	opts, err := compilerFlags(cmd, path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
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

	before := string(data)
	after, applied, err := fixSource(commandContext(cmd), c, before)
	if err != nil {
		return err
	}
	for _, title := range applied {
		fmt.Fprintf(cmd.ErrOrStderr(), "applied: %s\n", title)
	}
	if after == before {
		fmt.Fprintln(cmd.ErrOrStderr(), "nothing to fix")
		return nil
	}
	if write {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(after), info.Mode().Perm())
	}
	writeDiff(cmd.OutOrStdout(), path, before, after)
	return nil
}
