package guest

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Symbols is the debug information emitted next to an image.
type Symbols struct {
	Language  LanguageID       `msgpack:"lang"`
	Version   int              `msgpack:"version"`
	Functions []FunctionSymbol `msgpack:"funcs"`
}

// FunctionSymbol describes one function by its index in the image.
type FunctionSymbol struct {
	Index  uint32        `msgpack:"index"`
	Name   string        `msgpack:"name"`
	Line   int           `msgpack:"line"`
	Result string        `msgpack:"result,omitempty"`
	Locals []LocalSymbol `msgpack:"locals,omitempty"`
	// Synthesized is set for the entry point generated from top-level code.
	Synthesized bool `msgpack:"synth,omitempty"`
}

// LocalSymbol describes a parameter or local by its wasm local index.
type LocalSymbol struct {
	Index uint32 `msgpack:"index"`
	Name  string `msgpack:"name"`
	Type  string `msgpack:"type"`
	Param bool   `msgpack:"param,omitempty"`
}

// Function returns the symbol for function idx.
func (s *Symbols) Function(idx uint32) (FunctionSymbol, bool) {
	for _, f := range s.Functions {
		if f.Index == idx {
			return f, true
		}
	}
	return FunctionSymbol{}, false
}

// EncodeSymbols serializes s.
func EncodeSymbols(s *Symbols) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode symbols: %w", err)
	}
	return b, nil
}

// DecodeSymbols reads symbols from r.
func DecodeSymbols(r io.Reader) (*Symbols, error) {
	var s Symbols
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}
	return &s, nil
}

// EncodeDocs serializes member documentation for the DocsSection.
func EncodeDocs(docs map[string]string) ([]byte, error) {
	b, err := msgpack.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode docs: %w", err)
	}
	return b, nil
}

// DecodeDocs parses a DocsSection payload.
func DecodeDocs(b []byte) (map[string]string, error) {
	var docs map[string]string
	if err := msgpack.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("decode docs: %w", err)
	}
	return docs, nil
}
