// Package errorchannel defines the compiler's single structured error type.
//
// Every user-facing failure produced by the frontend or backend packages
// is an *Error carrying enough source context to reproduce the offending
// line and variable names in a diagnostic. Internal invariant violations
// use Kind Internal; everything else is a user error.
package errorchannel

import (
	"fmt"
	"strings"
)

// Kind enumerates the closed set of compiler error categories.
type Kind uint8

const (
	// UnresolvedName is use of a name that is not a parameter, a prior
	// local, the stdlib namespace, a type name, or a constant literal.
	UnresolvedName Kind = iota
	// BadCall is a call to a non-callable or a nonexistent stdlib entry.
	BadCall
	// TypeMismatch is an implicit int/float mix or incompatible operand
	// types for an operator.
	TypeMismatch
	// UnsupportedTupleUse is a tuple literal or destructuring target
	// outside the recognized pack/unpack window.
	UnsupportedTupleUse
	// BindingConflict is two resources sharing a (set,binding) pair.
	BindingConflict
	// UnsupportedFeature is a language construct outside the subset
	// (recursion, closures, dynamic attribute access, ...).
	UnsupportedFeature
	// Internal marks an invariant violated during backend emission —
	// a compiler bug, not a user error.
	Internal
)

func (k Kind) String() string {
	switch k {
	case UnresolvedName:
		return "UnresolvedName"
	case BadCall:
		return "BadCall"
	case TypeMismatch:
		return "TypeMismatch"
	case UnsupportedTupleUse:
		return "UnsupportedTupleUse"
	case BindingConflict:
		return "BindingConflict"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the compiler's structured diagnostic. Its Error() rendering
// is part of the user-visible contract: "<kind> at <file>:<line>: <source
// line>\nvariables: <names>".
type Error struct {
	Kind       Kind
	File       string
	Line       int
	SourceLine string
	Variables  []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %s:%d: %s", e.Kind, e.File, e.Line, e.SourceLine)
	if len(e.Variables) > 0 {
		sb.WriteString("\nvariables: ")
		sb.WriteString(strings.Join(e.Variables, ", "))
	} else {
		sb.WriteString("\nvariables: ")
	}
	return sb.String()
}

// New builds an Error with the given kind and source attribution.
func New(kind Kind, file string, line int, sourceLine string, variables ...string) *Error {
	return &Error{
		Kind:       kind,
		File:       file,
		Line:       line,
		SourceLine: sourceLine,
		Variables:  variables,
	}
}

// Newf builds an Error whose SourceLine is produced by Sprintf, for
// callers that only have the line text available as a formatted string.
func Newf(kind Kind, file string, line int, variables []string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       kind,
		File:       file,
		Line:       line,
		SourceLine: fmt.Sprintf(format, args...),
		Variables:  variables,
	}
}
