package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the instance lifecycle the error occurred
type Phase string

const (
	PhaseInstantiate Phase = "instantiate" // allocation and layout of a new instance
	PhaseInitialize  Phase = "initialize"  // applying table/memory initializers
	PhaseLink        Phase = "link"        // resolving imports against other instances
	PhaseRuntime     Phase = "runtime"     // operations on a live instance
)

// Kind categorizes the error
type Kind string

const (
	KindResource     Kind = "resource"      // allocation or backend failure
	KindLink         Kind = "link"          // bad import or out-of-range static initializer
	KindOutOfBounds  Kind = "out_of_bounds" // index or range outside an entity
	KindNotFound     Kind = "not_found"     // missing export or segment
	KindInvalidInput Kind = "invalid_input" // caller-supplied data rejected up front
	KindTypeMismatch Kind = "type_mismatch" // entity kind or value type conflict
)

// Error is the structured error type used for construction-time
// failures. Traps raised during execution are a separate type; see the
// trap package.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Entity string // "memory", "table", "global", "function", ""
	Index  uint32
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Entity != "" {
		fmt.Fprintf(&b, " at %s %d", e.Entity, e.Index)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Convenience constructors for common error patterns

// Resource creates an allocation/backend failure error
func Resource(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindResource,
		Detail: detail,
		Cause:  cause,
	}
}

// Link creates an import-resolution or static-initializer error
func Link(entity string, index uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindLink,
		Entity: entity,
		Index:  index,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, entity string, index uint32, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Entity: entity,
		Index:  index,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// TypeMismatch creates an entity or value type conflict error
func TypeMismatch(phase Phase, entity string, index uint32, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Entity: entity,
		Index:  index,
		Detail: detail,
	}
}

// Instantiation wraps a failure during instance construction
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindResource,
		Detail: "instantiate module",
		Cause:  cause,
	}
}
