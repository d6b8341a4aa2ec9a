package basic

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
	tNewline
	tIdent
	tInt
	tString

	tFunction
	tSub
	tEnd
	tDim
	tAs
	tIf
	tThen
	tElseIf
	tElse
	tWhile
	tReturn
	tAnd
	tOr
	tNot
	tMod
	tTrue
	tFalse

	tLParen
	tRParen
	tComma
	tDot
	tEq
	tNe
	tLt
	tLe
	tGt
	tGe
	tPlus
	tMinus
	tStar
	tSlash
	tBackslash
	tAddAssign
	tSubAssign
)

var keywords = map[string]tokenKind{
	"function": tFunction,
	"sub":      tSub,
	"end":      tEnd,
	"dim":      tDim,
	"as":       tAs,
	"if":       tIf,
	"then":     tThen,
	"elseif":   tElseIf,
	"else":     tElse,
	"while":    tWhile,
	"return":   tReturn,
	"and":      tAnd,
	"andalso":  tAnd,
	"or":       tOr,
	"orelse":   tOr,
	"not":      tNot,
	"mod":      tMod,
	"true":     tTrue,
	"false":    tFalse,
}

var punct = map[tokenKind]string{
	tEOF: "end of file", tNewline: "end of line", tLParen: "(", tRParen: ")", tComma: ",", tDot: ".",
	tEq: "=", tNe: "<>", tLt: "<", tLe: "<=", tGt: ">", tGe: ">=", tPlus: "+", tMinus: "-",
	tStar: "*", tSlash: "/", tBackslash: "\\", tAddAssign: "+=", tSubAssign: "-=",
}

var display = map[tokenKind]string{
	tFunction: "Function", tSub: "Sub", tEnd: "End", tDim: "Dim", tAs: "As", tIf: "If",
	tThen: "Then", tElseIf: "ElseIf", tElse: "Else", tWhile: "While", tReturn: "Return",
	tAnd: "And", tOr: "Or", tNot: "Not", tMod: "Mod", tTrue: "True", tFalse: "False",
}

func (k tokenKind) String() string {
	if s, ok := punct[k]; ok {
		return s
	}
	if s, ok := display[k]; ok {
		return s
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
		// collapse blank lines
		if t.kind == tNewline && len(toks) > 0 && toks[len(toks)-1].kind == tNewline {
			continue
		}
		toks = append(toks, t)
		if t.kind == tEOF {
			return toks, l.diags
		}
	}
}

func isLetter(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch c := l.src[l.pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\'':
			l.skipComment()
		case len(l.src)-l.pos >= 3 && strings.EqualFold(l.src[l.pos:l.pos+3], "rem") &&
			(l.pos+3 == len(l.src) || l.src[l.pos+3] == ' ' || l.src[l.pos+3] == '\n'):
			l.skipComment()
		default:
			return
		}
	}
}

func (l *lexer) skipComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *lexer) next() token {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tEOF, span: ast.Span{Start: start, End: start}}
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	switch {
	case r == '\n':
		l.pos++
		return token{kind: tNewline, span: ast.Span{Start: start, End: l.pos}}

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
		if kw, ok := keywords[strings.ToLower(text)]; ok {
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
			l.diags = append(l.diags, ast.Errorf(ast.CodeIntTooLarge, t.span, "Overflow."))
		}
		t.val = v
		return t

	case r == '"':
		return l.string()
	}

	l.pos += size
	if l.pos < len(l.src) {
		if k, ok := twoChar[l.src[start:l.pos+1]]; ok {
			l.pos++
			return token{kind: k, text: l.src[start:l.pos], span: ast.Span{Start: start, End: l.pos}}
		}
	}
	if k, ok := oneChar[r]; ok {
		return token{kind: k, text: string(r), span: ast.Span{Start: start, End: l.pos}}
	}
	l.diags = append(l.diags, ast.Errorf(ast.CodeUnexpectedChar, ast.Span{Start: start, End: l.pos}, "Character is not valid: '%c'", r))
	return l.next()
}

var twoChar = map[string]tokenKind{
	"<>": tNe, "<=": tLe, ">=": tGe, "+=": tAddAssign, "-=": tSubAssign,
}

var oneChar = map[rune]tokenKind{
	'(': tLParen, ')': tRParen, ',': tComma, '.': tDot, '=': tEq, '<': tLt, '>': tGt,
	'+': tPlus, '-': tMinus, '*': tStar, '/': tSlash, '\\': tBackslash,
}

// string scans a literal; a doubled quote stands for one quote.
func (l *lexer) string() token {
	start := l.pos
	l.pos++
	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			span := ast.Span{Start: start, End: l.pos}
			l.diags = append(l.diags, ast.Errorf(ast.CodeNewlineInString, span, "String constants must end with a double quote."))
			return token{kind: tString, text: l.src[start:l.pos], span: span, str: b.String()}
		}
		c := l.src[l.pos]
		if c == '"' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '"' {
				b.WriteByte('"')
				l.pos += 2
				continue
			}
			l.pos++
			return token{kind: tString, text: l.src[start:l.pos], span: ast.Span{Start: start, End: l.pos}, str: b.String()}
		}
		b.WriteByte(c)
		l.pos++
	}
}
