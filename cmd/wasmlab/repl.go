package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive editor buffer with diagnostics and quick fixes",
	Long: `Start an interactive session that collects lines into a buffer.

Commands:
  :run           Compile the buffer and run or decompile it
  :diag          Show diagnostics and numbered quick fixes
  :fix [n]       Apply quick fix n from the last :diag (default 1)
  :lang <name>   Switch language (brace, basic, asm); clears the buffer
  :output <kind> Switch output (run, brace, wat)
  :show          Print the buffer
  :clear         Empty the buffer

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	RunE: runRepl,
}

func init() {
	addCompilerFlags(replCmd)
	replCmd.Flags().String("history", "", "History file path (default: ~/.wasmlab_history)")
	rootCmd.AddCommand(replCmd)
}

type repl struct {
	c       *playground.Compiler
	lines   []string
	actions []*playground.Action
	out     io.Writer
	errOut  io.Writer
}

func (r *repl) buffer() string {
	if len(r.lines) == 0 {
		return ""
	}
	return strings.Join(r.lines, "\n") + "\n"
}

func (r *repl) setBuffer(text string) {
	r.lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if text == "" {
		r.lines = nil
	}
}

// handle processes one input line and reports whether the session ends.
func (r *repl) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "exit" || trimmed == "quit" {
		return true
	}
	if !strings.HasPrefix(trimmed, ":") {
		r.lines = append(r.lines, line)
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "run":
		err = r.run(ctx)
	case "diag":
		err = r.diagnose(ctx)
	case "fix":
		err = r.fix(ctx, arg)
	case "lang":
		var id guest.LanguageID
		if id, err = guest.ParseLanguage(arg); err == nil {
			if err = r.c.SetLanguage(id); err == nil {
				r.lines, r.actions = nil, nil
				fmt.Fprintf(r.errOut, "language %s\n", id)
			}
		}
	case "output":
		if err = r.c.SetOutputKind(guest.OutputKind(arg)); err == nil {
			fmt.Fprintf(r.errOut, "output %s\n", r.c.OutputKind())
		}
	case "show":
		fmt.Fprint(r.out, r.buffer())
	case "clear":
		r.lines, r.actions = nil, nil
	default:
		err = fmt.Errorf("unknown command :%s", cmd)
	}
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
	}
	return false
}

func (r *repl) run(ctx context.Context) error {
	res, err := r.c.Process(ctx, r.buffer())
	if err != nil {
		return err
	}
	err = printResult(r.out, r.errOut, "", res)
	if errors.Is(err, errCompileFailed) {
		return nil
	}
	return err
}

func (r *repl) diagnose(ctx context.Context) error {
	diags, err := r.c.Diagnostics(ctx, r.buffer())
	if err != nil {
		return err
	}
	r.actions = nil
	if len(diags) == 0 {
		fmt.Fprintln(r.errOut, color.GreenString("no diagnostics"))
		return nil
	}
	for _, d := range diags {
		fmt.Fprintln(r.errOut, formatDiagnostic("", d.Diagnostic))
		for _, a := range d.Actions {
			r.actions = append(r.actions, a)
			fmt.Fprintf(r.errOut, "    [%d] %s\n", len(r.actions), a.Title)
		}
	}
	return nil
}

func (r *repl) fix(ctx context.Context, arg string) error {
	n := 1
	if arg != "" {
		var err error
		if n, err = strconv.Atoi(arg); err != nil {
			return fmt.Errorf("invalid fix number %q", arg)
		}
	}
	if n < 1 || n > len(r.actions) {
		return fmt.Errorf("no quick fix %d; run :diag first", n)
	}
	text, err := r.c.ApplyAction(ctx, r.actions[n-1])
	if err != nil {
		return err
	}
	r.actions = nil
	r.setBuffer(text)
	fmt.Fprint(r.out, r.buffer())
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".wasmlab_history")
	}
	opts, err := compilerFlags(cmd, "")
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

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "wasmlab %s REPL (:run to compile, 'exit' to quit, Ctrl+D to exit)\n", c.Language())

	r := &repl{c: c, out: rl.Stdout(), errOut: rl.Stderr()}
	ctx := commandContext(cmd)
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		if r.handle(ctx, line) {
			return nil
		}
		if len(r.lines) > 0 {
			rl.SetPrompt("... ")
		} else {
			rl.SetPrompt(">>> ")
		}
	}
}
