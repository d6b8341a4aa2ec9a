package playground

import (
	"context"

	"github.com/caffeineduck/wasmlab/executor"
	"github.com/caffeineduck/wasmlab/guest"
)

// Execute runs the image of res with exec and closes res on every path.
func Execute(ctx context.Context, exec *executor.Executor, res *guest.CompilationResult, refs []guest.Reference, opts ...executor.Option) executor.Result {
	defer res.Close()
	return exec.Run(ctx, res.Image, refs, opts...)
}
