package reference

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

var fakeImage = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func TestCacheKeepsNameOrder(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	var inflight, peak atomic.Int32
	s := SupplierFunc(func(ctx context.Context, name string) ([]byte, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		// later names finish first
		time.Sleep(time.Duration('f'-name[0]) * time.Millisecond)
		return append([]byte(name), fakeImage...), nil
	})

	c := NewCache(WithConcurrency(2))
	require.NoError(t, c.Init(context.Background(), s, names))

	refs := c.References()
	require.Len(t, refs, len(names))
	for i, r := range refs {
		assert.Equal(t, names[i], r.Name)
		assert.Equal(t, names[i], string(r.Image[:1]))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 5, c.Len())

	r, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", r.Name)
	_, ok = c.Get("zzz")
	assert.False(t, ok)
}

func TestCacheInitIsIdempotent(t *testing.T) {
	var calls atomic.Int32
	s := SupplierFunc(func(ctx context.Context, name string) ([]byte, error) {
		calls.Add(1)
		return fakeImage, nil
	})
	c := NewCache()
	require.NoError(t, c.Init(context.Background(), s, []string{"math"}))
	require.NoError(t, c.Init(context.Background(), s, []string{"math", "bits"}))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCacheFailureLeavesCacheEmpty(t *testing.T) {
	boom := errors.New("boom")
	s := SupplierFunc(func(ctx context.Context, name string) ([]byte, error) {
		if name == "bits" {
			return nil, boom
		}
		return fakeImage, nil
	})
	c := NewCache()
	err := c.Init(context.Background(), s, []string{"math", "bits"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fetch bits")
	assert.Zero(t, c.Len())

	// a later successful init still populates the cache
	require.NoError(t, c.Init(context.Background(), BundledSupplier{}, DefaultNames))
	assert.Equal(t, 2, c.Len())
}

func TestCacheCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCache()
	err := c.Init(ctx, BundledSupplier{}, DefaultNames)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Len())
}

func TestShared(t *testing.T) {
	assert.Same(t, Shared(), Shared())
}

func call(t *testing.T, image []byte, fn string, args ...int64) int64 {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	mod, err := rt.Instantiate(ctx, image)
	require.NoError(t, err)
	f := mod.ExportedFunction(fn)
	require.NotNil(t, f, fn)
	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeI64(a)
	}
	res, err := f.Call(ctx, params...)
	require.NoError(t, err)
	require.Len(t, res, 1)
	return int64(res[0])
}

func TestBundledMath(t *testing.T) {
	image, err := BundledSupplier{}.Fetch(context.Background(), "math")
	require.NoError(t, err)

	tests := []struct {
		fn   string
		args []int64
		want int64
	}{
		{"max", []int64{3, 5}, 5},
		{"max", []int64{-3, -5}, -3},
		{"min", []int64{3, 5}, 3},
		{"neg", []int64{7}, -7},
		{"abs", []int64{-9}, 9},
		{"abs", []int64{4}, 4},
		{"pow", []int64{2, 10}, 1024},
		{"pow", []int64{5, 0}, 1},
		{"pow", []int64{5, -1}, 0},
		{"gcd", []int64{12, 18}, 6},
		{"gcd", []int64{-4, 6}, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, call(t, image, tt.fn, tt.args...), "%s%v", tt.fn, tt.args)
	}

	m, err := wasm.Decode(image)
	require.NoError(t, err)
	raw, ok := m.Custom(guest.DocsSection)
	require.True(t, ok)
	docs, err := guest.DecodeDocs(raw)
	require.NoError(t, err)
	assert.Equal(t, "Integer arithmetic helpers.", docs[""])
	assert.Equal(t, "Returns -x.", docs["neg"])
}

func TestBundledBits(t *testing.T) {
	image, err := BundledSupplier{}.Fetch(context.Background(), "bits")
	require.NoError(t, err)

	assert.Equal(t, int64(0b1000), call(t, image, "band", 0b1100, 0b1010))
	assert.Equal(t, int64(0b1110), call(t, image, "bor", 0b1100, 0b1010))
	assert.Equal(t, int64(0b0110), call(t, image, "bxor", 0b1100, 0b1010))
	assert.Equal(t, int64(40), call(t, image, "shl", 5, 3))
	assert.Equal(t, int64(-4), call(t, image, "shr", -16, 2))
	assert.Equal(t, int64(3), call(t, image, "popcount", 0b10101))
	assert.Equal(t, int64(1), call(t, image, "bit", 0b100, 2))
	assert.Equal(t, int64(0), call(t, image, "bit", 0b100, 1))
}

func TestBundledUnknown(t *testing.T) {
	_, err := BundledSupplier{}.Fetch(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"bits", "math"}, BundledSupplier{}.Names())
}

func gzipped(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(b)
	zw.Close()
	return buf.Bytes()
}

func TestHTTPSupplier(t *testing.T) {
	image, err := BundledSupplier{}.Fetch(context.Background(), "math")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/refs/math.wasm":
			w.Write(image)
		case "/refs/packed.wasm":
			w.Write(gzipped(image))
		case "/refs/text.wasm":
			w.Write([]byte("not wasm"))
		case "/refs/broken.wasm":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewHTTPSupplier(srv.URL + "/refs/")
	s.Client = srv.Client()
	ctx := context.Background()

	got, err := s.Fetch(ctx, "math")
	require.NoError(t, err)
	assert.Equal(t, image, got)

	got, err = s.Fetch(ctx, "packed")
	require.NoError(t, err)
	assert.Equal(t, image, got)

	_, err = s.Fetch(ctx, "text")
	assert.ErrorIs(t, err, wasm.ErrNotWasm)

	_, err = s.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Fetch(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	s.MaxSize = 4
	_, err = s.Fetch(ctx, "math")
	assert.ErrorContains(t, err, "exceeds 4 bytes")
}

func TestHTTPSupplierFeedsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1 : len(r.URL.Path)-len(".wasm")]
		image, err := BundledSupplier{}.Fetch(r.Context(), name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Write(gzipped(image))
	}))
	defer srv.Close()

	s := NewHTTPSupplier(srv.URL)
	s.Client = srv.Client()
	c := NewCache(WithConcurrency(1))
	require.NoError(t, c.Init(context.Background(), s, DefaultNames))
	refs := c.References()
	require.Len(t, refs, 2)
	assert.Equal(t, "math", refs[0].Name)
	assert.Equal(t, "bits", refs[1].Name)
	assert.True(t, wasm.IsWasm(refs[1].Image))
}
