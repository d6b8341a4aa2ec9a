package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/internal/config"
	"github.com/caffeineduck/wasmlab/internal/logging"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/caffeineduck/wasmlab/reference"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "wasmlab [file]",
	Short: "Compile-as-you-type playground for WebAssembly guest languages",
	Long: `wasmlab - compile Brace, Basic and Asm programs to WebAssembly.

Programs are diagnosed, compiled and then either run in a disposable
sandbox or decompiled back to Brace or WAT text. Run a file, an inline
string or stdin, or start the REPL, the HTTP API or the language server.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./wasmlab.toml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the compilation disk cache")

	addRunFlags(rootCmd)
}

// env is the state shared by one command invocation.
type env struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	cache  *reference.Cache
	exec   *executor.Executor
}

func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")
	level, _ := flags.GetString("log-level")
	noCache, _ := flags.GetBool("no-cache")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if noCache {
		cfg.Execution.DiskCache = false
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	cache := reference.NewCache(append(cfg.CacheOptions(), reference.WithLogger(logger))...)
	if err := cache.Init(commandContext(cmd), cfg.Supplier(), cfg.References.Names); err != nil {
		logger.Warnw("references unavailable", "error", err)
	}

	exec, err := executor.New(append(cfg.ExecutorOptions(), executor.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, cache: cache, exec: exec}, nil
}

func (e *env) newCompiler(opts ...playground.CompilerOption) (*playground.Compiler, error) {
	base := []playground.CompilerOption{
		playground.WithCompilerReferences(e.cache.References()),
		playground.WithExecutor(e.exec),
		playground.WithLogger(e.logger),
	}
	base = append(base, e.cfg.CompilerOptions()...)
	return playground.NewCompiler(append(base, opts...)...)
}

func (e *env) Close() error {
	err := e.exec.Close()
	_ = e.logger.Sync()
	return err
}

func closeAll(closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func languageFor(langFlag, filename string) (guest.LanguageID, error) {
	if langFlag != "" {
		return guest.ParseLanguage(langFlag)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".br", ".brace":
		return guest.Brace, nil
	case ".bas", ".vb":
		return guest.Basic, nil
	case ".asm", ".wat":
		return guest.Asm, nil
	}
	return guest.Brace, nil
}

// readSource returns the code flag, the file named by args or stdin.
func readSource(cmd *cobra.Command, args []string) (source, filename string, err error) {
	code, _ := cmd.Flags().GetString("code")
	switch {
	case code != "":
		return code, "", nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(data), args[0], nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", "", err
	}
	return string(data), "", nil
}

// commandContext is the command context, or Background when the command
// was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
