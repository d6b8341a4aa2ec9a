package ast

import "fmt"

// Diagnostic codes shared by the high-level languages. The front end adds
// the language prefix, e.g. BR0103.
const (
	CodeOperatorUnary    = 23
	CodeBadEntrySig      = 28
	CodeConvert          = 29
	CodeOperator         = 19
	CodeUndeclared       = 103
	CodeDupFunc          = 111
	CodeNoMember         = 117
	CodeNotValue         = 119
	CodeDupLocal         = 128
	CodeNotInvocable     = 149
	CodeNotAllPaths      = 161
	CodeUnused           = 168
	CodeReturnExpected   = 126
	CodeReturnInVoid     = 127
	CodeBadStatement     = 201
	CodeUnknownType      = 246
	CodeVoidVar          = 815
	CodeUnknownTypeMem   = 1061
	CodeIdentExpected    = 1001
	CodeBadEscape        = 1009
	CodeEOFExpected      = 1022
	CodeSemicolon        = 1002
	CodeExpected         = 1003
	CodeNewlineInString  = 1010
	CodeIntTooLarge      = 1021
	CodeUnexpectedChar   = 1056
	CodeArgCount         = 1501
	CodeArgType          = 1503
	CodeInvalidTerm      = 1525
	CodeNoEntry          = 5001
	CodeEntryIgnored     = 7022
	CodeFeature          = 8400
	CodeTopLevelLibrary  = 8805
	CodeOutsideMethod    = 30001
	CodeEndExpected      = 30026
	CodeUnexpectedInLine = 30205
)

// NoSpan marks a diagnostic without a location.
var NoSpan = Span{Start: -1, End: -1}

// Diagnostic is a language-neutral diagnostic.
type Diagnostic struct {
	Code    int
	Warning bool
	Message string
	Span    Span
}

// Errorf creates an error diagnostic.
func Errorf(code int, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// Warnf creates a warning diagnostic.
func Warnf(code int, span Span, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Warning: true, Message: fmt.Sprintf(format, args...), Span: span}
}

// ID formats a diagnostic code with a language prefix.
func ID(prefix string, code int) string {
	return fmt.Sprintf("%s%04d", prefix, code)
}
