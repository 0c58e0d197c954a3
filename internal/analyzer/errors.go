package analyzer

import (
	"errors"
	"fmt"

	"github.com/ludo-technologies/pyjit/internal/parser"
	"github.com/ludo-technologies/pyjit/internal/scope"
)

// Pos is a source position.
type Pos struct {
	File string
	Line int
	Col  int
}

func posOf(loc parser.Location) Pos {
	return Pos{File: loc.File, Line: loc.StartLine, Col: loc.StartCol}
}

func (p Pos) String() string {
	file := p.File
	if file == "" {
		file = "<source>"
	}
	return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Col)
}

// CompileError is a user-visible error in the compiled source: control flow
// that is invalid in its lexical context or a construct the compiler rejects.
type CompileError struct {
	Pos      Pos
	Function string
	Msg      string
}

func (e *CompileError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Pos, e.Msg, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// InternalError reports a broken compiler invariant. It aborts compilation of
// one function and always indicates a bug in the compiler itself.
type InternalError struct {
	Function string
	Msg      string
}

func (e *InternalError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("internal compiler error in %s: %s", e.Function, e.Msg)
	}
	return "internal compiler error: " + e.Msg
}

func internalErrorf(fn, format string, args ...interface{}) *InternalError {
	return &InternalError{Function: fn, Msg: fmt.Sprintf(format, args...)}
}

// IsCompileError reports whether err carries a source-level error.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// IsInternalError reports whether err carries a compiler invariant violation.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// fromScopeError turns a scoping error into a CompileError.
func fromScopeError(err error) error {
	var se *scope.Error
	if errors.As(err, &se) {
		return &CompileError{Pos: posOf(se.Pos), Function: se.Function, Msg: se.Msg}
	}
	return err
}
