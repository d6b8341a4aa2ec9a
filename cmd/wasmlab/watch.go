package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caffeineduck/wasmlab/playground"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchDebounce = 100 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch file",
	Short: "Re-diagnose and process a file on every save",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	addCompilerFlags(watchCmd)
	watchCmd.Flags().Bool("source-lines", false, "Annotate decompiled output with source lines")
	rootCmd.AddCommand(watchCmd)
}

// watchFile calls onChange after writes to path settle. The parent directory
// is watched so editors that save by renaming are seen too.
func watchFile(ctx context.Context, w *fsnotify.Watcher, path string, logger *zap.SugaredLogger, onChange func()) error {
	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watch error", "error", err)
		case <-pending:
			pending = nil
			onChange()
		}
	}
}

// reprocess diagnoses and processes the current content of path.
func reprocess(ctx context.Context, c *playground.Compiler, path string, out, errOut io.Writer) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(errOut, color.New(color.Faint).Sprintf("--- %s %s", filepath.Base(path), time.Now().Format(time.TimeOnly)))

	diags, err := c.Diagnostics(ctx, string(data))
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return
	}
	printDiagnostics(errOut, path, diags)

	res, err := c.Process(ctx, string(data))
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return
	}
	res.Diagnostics = nil
	if err := printResult(out, errOut, path, res); err != nil && !errors.Is(err, errCompileFailed) {
		fmt.Fprintf(errOut, "Error: %v\n", err)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	opts, err := compilerFlags(cmd, path)
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

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	ctx := commandContext(cmd)
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	reprocess(ctx, c, path, out, errOut)
	return watchFile(ctx, w, path, e.logger, func() {
		reprocess(ctx, c, path, out, errOut)
	})
}
