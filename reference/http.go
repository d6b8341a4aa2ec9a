package reference

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/caffeineduck/wasmlab/wasm"
)

// DefaultMaxImageSize bounds a downloaded image, before and after unwrapping.
const DefaultMaxImageSize = 16 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// HTTPSupplier downloads {BaseURL}/{name}.wasm. Responses may be gzip
// containers around the image.
type HTTPSupplier struct {
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// MaxSize defaults to DefaultMaxImageSize.
	MaxSize int64
}

// NewHTTPSupplier creates a supplier for baseURL.
func NewHTTPSupplier(baseURL string) *HTTPSupplier {
	return &HTTPSupplier{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPSupplier) Fetch(ctx context.Context, name string) ([]byte, error) {
	u := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(name) + ".wasm"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("request %s: %s", u, resp.Status)
	}

	limit := s.MaxSize
	if limit <= 0 {
		limit = DefaultMaxImageSize
	}
	body, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return unwrap(body, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return b, nil
}

// unwrap strips a gzip container and checks the wasm header.
func unwrap(b []byte, limit int64) ([]byte, error) {
	if bytes.HasPrefix(b, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("open gzip container: %w", err)
		}
		defer zr.Close()
		if b, err = readLimited(zr, limit); err != nil {
			return nil, fmt.Errorf("unwrap gzip container: %w", err)
		}
	}
	if !wasm.IsWasm(b) {
		return nil, wasm.ErrNotWasm
	}
	return b, nil
}
