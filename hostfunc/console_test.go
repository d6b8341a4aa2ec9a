package hostfunc

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/tetratelabs/wazero"
)

func TestConsoleWrite(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, 0)

	if _, err := c.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	c.printI64(context.Background(), -42)
	c.printBool(context.Background(), 1)
	c.newline(context.Background())

	if got := buf.String(); got != "hello -42true\n" {
		t.Errorf("expected %q, got %q", "hello -42true\n", got)
	}
	if c.Written() != int64(buf.Len()) {
		t.Errorf("Written() = %d, want %d", c.Written(), buf.Len())
	}
}

func TestConsoleLimit(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, 5)

	n, err := c.Write([]byte("abc"))
	if err != nil || n != 3 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, err = c.Write([]byte("defg"))
	if !errors.Is(err, ErrOutputLimit) {
		t.Fatalf("expected ErrOutputLimit, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes kept, got %d", n)
	}
	if buf.String() != "abcde" {
		t.Errorf("expected partial output abcde, got %q", buf.String())
	}

	n, err = c.Write([]byte("x"))
	if !errors.Is(err, ErrOutputLimit) || n != 0 {
		t.Errorf("Write past limit = %d, %v", n, err)
	}
}

func TestConsoleEmitPanicsPastLimit(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, 2)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrOutputLimit) {
			t.Errorf("expected ErrOutputLimit panic, got %v", r)
		}
	}()
	c.printI64(context.Background(), 12345)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	NewConsole(&bytes.Buffer{}, 0).Register(r)

	want := []string{guest.HostNewline, guest.HostPrintBool, guest.HostPrintI64, guest.HostPrintStr}
	sort.Strings(want)
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing function to be absent")
	}
}

func TestRegistryInstantiate(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	var buf bytes.Buffer
	r := NewRegistry()
	NewConsole(&buf, 0).Register(r)

	mod, err := r.Instantiate(ctx, rt, guest.HostModule)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, err := mod.ExportedFunction(guest.HostPrintI64).Call(ctx, 7); err != nil {
		t.Fatalf("print_i64 failed: %v", err)
	}
	if _, err := mod.ExportedFunction(guest.HostNewline).Call(ctx); err != nil {
		t.Fatalf("newline failed: %v", err)
	}
	if buf.String() != "7\n" {
		t.Errorf("expected 7\\n, got %q", buf.String())
	}

	// The host module has no memory of its own to read strings from.
	_, err = mod.ExportedFunction(guest.HostPrintStr).Call(ctx, uint64(guest.PackString(0, 1)))
	if err == nil || !strings.Contains(err.Error(), "has no memory") {
		t.Errorf("expected missing memory error, got %v", err)
	}
}
