package parser

import (
	"fmt"

	"gitlab.com/tozd/go/errors"
)

// ErrorKind classifies the ways a parse can fail.
type ErrorKind int

const (
	// ErrUnexpectedEOF is returned when the input ends inside an open
	// construct.
	ErrUnexpectedEOF ErrorKind = iota
	// ErrUnexpectedToken is returned for a token the grammar cannot accept
	// at the current position, including lexer error tokens.
	ErrUnexpectedToken
	// ErrUndefinedFunction is returned for an identifier not present in the
	// configured function set.
	ErrUndefinedFunction
	// ErrUndefinedVariable is returned for a variable reference with no
	// visible declaration (the reserved variable $ always resolves).
	ErrUndefinedVariable
	// ErrDuplicateDefinition is returned when a template name is defined a
	// second time with a non-empty body already registered.
	ErrDuplicateDefinition
	// ErrBadLiteral is returned when a string, character, or number literal
	// fails to decode.
	ErrBadLiteral
	// ErrTooManyDeclarations is returned when a pipeline declares more
	// variables than its context allows.
	ErrTooManyDeclarations
	// ErrNonExecutableCommand is returned when a pipeline stage after the
	// first starts with a bare literal, dot, or nil.
	ErrNonExecutableCommand
	// ErrMissingValue is returned for a pipeline or command with no
	// operands.
	ErrMissingValue
	// ErrUnclosedParen is returned when a parenthesized pipeline is not
	// closed.
	ErrUnclosedParen
	// ErrDynamicTemplate is returned when a parenthesized template name is
	// used without dynamic template names enabled. It is a configuration
	// error, not a grammar error.
	ErrDynamicTemplate
	// ErrNoTree reports an internal invariant violation: a grammar routine
	// ran with no active tree. It indicates a caller-sequencing bug.
	ErrNoTree
)

var kindNames = map[ErrorKind]string{
	ErrUnexpectedEOF:        "unexpected EOF",
	ErrUnexpectedToken:      "unexpected token",
	ErrUndefinedFunction:    "undefined function",
	ErrUndefinedVariable:    "undefined variable",
	ErrDuplicateDefinition:  "duplicate template definition",
	ErrBadLiteral:           "malformed literal",
	ErrTooManyDeclarations:  "too many declarations",
	ErrNonExecutableCommand: "non executable command",
	ErrMissingValue:         "missing value",
	ErrUnclosedParen:        "unclosed parenthesis",
	ErrDynamicTemplate:      "dynamic template names disabled",
	ErrNoTree:               "no active tree",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError is the error type produced by the parser. Every parse failure
// carries the name of the innermost tree being parsed and the 1-based line
// of the token that triggered it.
type ParseError struct {
	Kind     ErrorKind
	TreeName string
	Line     int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("template: %s:%d:%s", e.TreeName, e.Line, e.Message)
}

// KindOf extracts the ErrorKind from err. It reports ok=false if err does
// not wrap a ParseError.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
