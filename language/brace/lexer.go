package brace

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/caffeineduck/wasmlab/language/internal/ast"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tIdent
	tInt
	tString

	// keywords
	tFunc
	tVar
	tIf
	tElse
	tWhile
	tReturn
	tTrue
	tFalse

	// punctuation
	tLParen
	tRParen
	tLBrace
	tRBrace
	tComma
	tSemi
	tDot
	tAssign
	tAddAssign
	tSubAssign
	tPlus
	tMinus
	tStar
	tSlash
	tPercent
	tEq
	tNe
	tLt
	tLe
	tGt
	tGe
	tAndAnd
	tOrOr
	tNot
)

var keywords = map[string]tokenKind{
	"func":   tFunc,
	"var":    tVar,
	"if":     tIf,
	"else":   tElse,
	"while":  tWhile,
	"return": tReturn,
	"true":   tTrue,
	"false":  tFalse,
}

var tokenText = map[tokenKind]string{
	tEOF: "end of file", tLParen: "(", tRParen: ")", tLBrace: "{", tRBrace: "}",
	tComma: ",", tSemi: ";", tDot: ".", tAssign: "=", tAddAssign: "+=", tSubAssign: "-=",
	tPlus: "+", tMinus: "-", tStar: "*", tSlash: "/", tPercent: "%", tEq: "==", tNe: "!=",
	tLt: "<", tLe: "<=", tGt: ">", tGe: ">=", tAndAnd: "&&", tOrOr: "||", tNot: "!",
}

func (k tokenKind) String() string {
	if s, ok := tokenText[k]; ok {
		return s
	}
	for kw, kind := range keywords {
		if kind == k {
			return kw
		}
	}
	return "identifier"
}

type token struct {
	kind tokenKind
	text string
	span ast.Span
	val  int64
	str  string
}

type lexer struct {
	src   string
	pos   int
	diags []ast.Diagnostic
}

func lex(src string) ([]token, []ast.Diagnostic) {
	l := &lexer{src: src}
	var toks []token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.kind == tEOF {
			return toks, l.diags
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 4
			}
		default:
			return
		}
	}
}

func isLetter(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func (l *lexer) next() token {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tEOF, span: ast.Span{Start: start, End: start}}
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])

	switch {
	case isLetter(r):
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.pos += size
		}
		text := l.src[start:l.pos]
		kind := tIdent
		if kw, ok := keywords[text]; ok {
			kind = kw
		}
		return token{kind: kind, text: text, span: ast.Span{Start: start, End: l.pos}}

	case r >= '0' && r <= '9':
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		t := token{kind: tInt, text: l.src[start:l.pos], span: ast.Span{Start: start, End: l.pos}}
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			l.diags = append(l.diags, ast.Errorf(ast.CodeIntTooLarge, t.span, "Integral constant is too large"))
		}
		t.val = v
		return t

	case r == '"':
		return l.string()
	}

	l.pos += size
	two := ""
	if l.pos < len(l.src) {
		two = l.src[start : l.pos+1]
	}
	if k, ok := twoChar[two]; ok {
		l.pos++
		return token{kind: k, text: two, span: ast.Span{Start: start, End: l.pos}}
	}
	if k, ok := oneChar[r]; ok {
		return token{kind: k, text: string(r), span: ast.Span{Start: start, End: l.pos}}
	}
	l.diags = append(l.diags, ast.Errorf(ast.CodeUnexpectedChar, ast.Span{Start: start, End: l.pos}, "Unexpected character '%c'", r))
	return l.next()
}

var twoChar = map[string]tokenKind{
	"==": tEq, "!=": tNe, "<=": tLe, ">=": tGe, "&&": tAndAnd, "||": tOrOr, "+=": tAddAssign, "-=": tSubAssign,
}

var oneChar = map[rune]tokenKind{
	'(': tLParen, ')': tRParen, '{': tLBrace, '}': tRBrace, ',': tComma, ';': tSemi, '.': tDot,
	'=': tAssign, '+': tPlus, '-': tMinus, '*': tStar, '/': tSlash, '%': tPercent, '<': tLt, '>': tGt, '!': tNot,
}

func (l *lexer) string() token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			span := ast.Span{Start: start, End: l.pos}
			l.diags = append(l.diags, ast.Errorf(ast.CodeNewlineInString, span, "Newline in constant"))
			return token{kind: tString, text: l.src[start:l.pos], span: span, str: b.String()}
		}
		c := l.src[l.pos]
		switch c {
		case '"':
			l.pos++
			return token{kind: tString, text: l.src[start:l.pos], span: ast.Span{Start: start, End: l.pos}, str: b.String()}
		case '\\':
			if l.pos+1 >= len(l.src) {
				l.pos++
				continue
			}
			esc := l.src[l.pos+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '0':
				b.WriteByte(0)
			case '\\', '"':
				b.WriteByte(esc)
			default:
				l.diags = append(l.diags, ast.Errorf(ast.CodeBadEscape, ast.Span{Start: l.pos, End: l.pos + 2}, "Unrecognized escape sequence"))
			}
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
}
