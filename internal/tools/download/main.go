// Command download fetches reference images into a directory, for example
// to mirror them for a wasmlab server configured with references.base_url.
//
//	download <base-url|bundled> <dir> [name...]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caffeineduck/wasmlab/reference"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, log io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: download <base-url|bundled> <dir> [name...]")
	}
	source, dir, names := args[0], args[1], args[2:]
	if len(names) == 0 {
		names = reference.DefaultNames
	}

	var supplier reference.Supplier = reference.BundledSupplier{}
	if source != "bundled" {
		supplier = reference.NewHTTPSupplier(source)
	}

	cache := reference.NewCache()
	if err := cache.Init(ctx, supplier, names); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, ref := range cache.References() {
		output := filepath.Join(dir, ref.Name+".wasm")
		if _, err := os.Stat(output); err == nil {
			fmt.Fprintf(log, "%s exists, skipping\n", output)
			continue
		}
		if err := os.WriteFile(output, ref.Image, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(log, "wrote %s (%d bytes)\n", output, len(ref.Image))
	}
	return nil
}
