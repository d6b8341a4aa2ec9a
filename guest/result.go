package guest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// ErrStreamClosed is returned when reading a released stream.
var ErrStreamClosed = errors.New("stream is closed")

// Stream is an in-memory read-once stream with explicit release.
type Stream struct {
	mu     sync.Mutex
	r      *bytes.Reader
	size   int
	closed bool
}

// NewStream wraps b. The stream does not copy b.
func NewStream(b []byte) *Stream {
	return &Stream{r: bytes.NewReader(b), size: len(b)}
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	return s.r.Read(p)
}

// Size returns the total length of the stream.
func (s *Stream) Size() int { return s.size }

// Close releases the stream. Closing twice is a no-op.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.r = nil
	return nil
}

// CompilationResult is an emitted image and its optional symbol stream. The
// receiver owns it and must Close it.
type CompilationResult struct {
	Image   *Stream
	Symbols *Stream

	once sync.Once
	err  error
}

// NewCompilationResult wraps an image and optional symbols.
func NewCompilationResult(image, symbols []byte) *CompilationResult {
	r := &CompilationResult{Image: NewStream(image)}
	if symbols != nil {
		r.Symbols = NewStream(symbols)
	}
	return r
}

// SymbolReader returns the symbol stream, or nil when there is none.
func (r *CompilationResult) SymbolReader() io.Reader {
	if r.Symbols == nil {
		return nil
	}
	return r.Symbols
}

// Close releases both streams. Only the first call does any work.
func (r *CompilationResult) Close() error {
	r.once.Do(func() {
		r.err = r.Image.Close()
		if r.Symbols != nil {
			r.err = multierr.Append(r.err, r.Symbols.Close())
		}
	})
	return r.err
}
