package frontend

import "github.com/caffeineduck/wasmlab/guest"

// Parts accumulates tagged text.
type Parts []guest.TaggedText

// Add appends text with tag.
func (p *Parts) Add(tag, text string) *Parts {
	*p = append(*p, guest.TaggedText{Tag: tag, Text: text})
	return p
}

// Space appends a single space.
func (p *Parts) Space() *Parts { return p.Add(guest.TagSpace, " ") }

// Punct appends punctuation.
func (p *Parts) Punct(s string) *Parts { return p.Add(guest.TagPunctuation, s) }

// Keyword appends a keyword.
func (p *Parts) Keyword(s string) *Parts { return p.Add(guest.TagKeyword, s) }
