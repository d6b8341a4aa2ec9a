package playground

import (
	"fmt"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/language/asm"
	"github.com/caffeineduck/wasmlab/language/basic"
	"github.com/caffeineduck/wasmlab/language/brace"
)

var builtin = map[guest.LanguageID]guest.Language{
	guest.Brace: brace.New(),
	guest.Basic: basic.New(),
	guest.Asm:   asm.New(),
}

// Lookup returns the built-in language id.
func Lookup(id guest.LanguageID) (guest.Language, error) {
	lang, ok := builtin[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", guest.ErrUnknownLanguage, id)
	}
	return lang, nil
}

// FallbackConfig gates the console retry of a library compile. A compile
// qualifies when the language version is at least MinVersion and the front
// end reports DiagnosticID.
type FallbackConfig struct {
	DiagnosticID string
	MinVersion   int
}

// Enabled reports whether c names a diagnostic.
func (c FallbackConfig) Enabled() bool { return c.DiagnosticID != "" }

// DefaultFallbacks holds the fallback gate of each built-in language. Brace
// only accepts top-level statements in console programs.
var DefaultFallbacks = map[guest.LanguageID]FallbackConfig{
	guest.Brace: {DiagnosticID: "BR8805", MinVersion: brace.Version3},
}
