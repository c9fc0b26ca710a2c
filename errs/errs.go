// Package errs implements EARL's error taxonomy.
//
// Every error the evaluation engine raises carries a Kind, the token that
// caused it (for line/column attribution), and a short message. There is no
// exception-handling construct exposed to EARL programs: every error is
// terminal and propagates to the top level, where the interpreter reports
// it and exits with status 1.
//
package errs

import (
	"fmt"

	"github.com/malloc-nbytes/earl/token"
)

// Kind classifies an Error.
type Kind string

const (
	// Syntax marks errors recovered lexically or during parsing.
	Syntax Kind = "Syntax"
	// Runtime marks bounded-indexing, division-by-zero, and failed-assert
	// errors.
	Runtime Kind = "Runtime"
	// Types marks operator/operand mismatches and incompatible mutation.
	Types Kind = "Types"
	// Redeclared marks a duplicate name in a scope.
	Redeclared Kind = "Redeclared"
	// Undeclared marks an identifier lookup miss.
	Undeclared Kind = "Undeclared"
	// Fatal marks an invariant violation: a bug in the interpreter itself.
	Fatal Kind = "Fatal"
	// Internal marks an assertion caught inside the evaluator before it
	// would otherwise panic (slice bounds, nil map access). Distinct from
	// Fatal so a genuine interpreter bug is never mistaken for a
	// user-facing invariant violation.
	Internal Kind = "Internal"
	// Todo marks an intentionally unimplemented stub.
	Todo Kind = "Todo"
)

// Error is the error type every evaluation-engine failure is reported as.
type Error struct {
	Kind    Kind
	Tok     token.Token
	Message string
}

// Error implements the error interface, formatting as
// "<Kind>:<line>:<col>: <message>".
func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Kind, e.Tok.Line, e.Tok.Column, e.Message)
}

// New builds an Error of the given kind, attributed to tok, with a
// printf-style message.
func New(kind Kind, tok token.Token, format string, args ...any) *Error {
	return &Error{Kind: kind, Tok: tok, Message: fmt.Sprintf(format, args...)}
}

// ExitCode reports the interpreter's process exit status for any Error:
// always 1, regardless of kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
