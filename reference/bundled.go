package reference

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/caffeineduck/wasmlab/language/asm"
)

//go:embed lib/*.asm
var libs embed.FS

// DefaultNames are the references every session compiles against.
var DefaultNames = []string{"math", "bits"}

// BundledSupplier assembles the libraries embedded in the binary.
type BundledSupplier struct{}

func (BundledSupplier) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := libs.ReadFile(path.Join("lib", name+".asm"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return asm.Assemble(string(src), asm.AssembleOptions{Name: name})
}

// Names lists the bundled libraries.
func (BundledSupplier) Names() []string {
	entries, _ := libs.ReadDir("lib")
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".asm"))
	}
	sort.Strings(names)
	return names
}
