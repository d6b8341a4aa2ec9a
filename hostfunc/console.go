package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/tetratelabs/wazero/api"
)

// ErrOutputLimit is raised when a guest writes more than the console allows.
var ErrOutputLimit = errors.New("output limit exceeded")

// Console is the output sink of one run. It implements the print functions
// of the guest ABI and doubles as the WASI stdout writer.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	limit   int64
	written int64
}

// NewConsole writes to w. A limit of zero or less disables the byte limit.
func NewConsole(w io.Writer, limit int64) *Console {
	return &Console{w: w, limit: limit}
}

// Write copies p to the underlying writer. Output beyond the limit is
// dropped and reported as ErrOutputLimit.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && c.written+int64(len(p)) > c.limit {
		keep := c.limit - c.written
		if keep > 0 {
			n, _ := c.w.Write(p[:keep])
			c.written += int64(n)
		}
		return int(max(keep, 0)), ErrOutputLimit
	}
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}

// Written returns the number of bytes accepted so far.
func (c *Console) Written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

func (c *Console) emit(s string) {
	if _, err := io.WriteString(c, s); err != nil {
		// unwinds the guest; wazero returns the error from the call
		panic(err)
	}
}

func (c *Console) printI64(_ context.Context, v int64) {
	c.emit(strconv.FormatInt(v, 10))
}

func (c *Console) printBool(_ context.Context, v int64) {
	c.emit(strconv.FormatBool(v != 0))
}

func (c *Console) printStr(_ context.Context, m api.Module, v int64) {
	ptr, n := guest.UnpackString(uint64(v))
	mem := m.Memory()
	if mem == nil {
		panic(fmt.Errorf("%s: module has no memory", guest.HostPrintStr))
	}
	b, ok := mem.Read(ptr, n)
	if !ok {
		panic(fmt.Errorf("%s: range %d+%d out of bounds", guest.HostPrintStr, ptr, n))
	}
	c.emit(string(b))
}

func (c *Console) newline(_ context.Context) {
	c.emit("\n")
}

// Register adds the print functions to r.
func (c *Console) Register(r *Registry) {
	r.Register(guest.HostPrintI64, c.printI64)
	r.Register(guest.HostPrintBool, c.printBool)
	r.Register(guest.HostPrintStr, c.printStr)
	r.Register(guest.HostNewline, c.newline)
}
