package trap

import (
	"fmt"
	"runtime"
)

// Code identifies why module execution trapped.
type Code uint8

const (
	StackOverflow Code = iota
	MemoryOutOfBounds
	TableOutOfBounds
	IndirectCallToNull
	BadSignature
	IntegerOverflow
	IntegerDivisionByZero
	BadConversionToInteger
	UnreachableCodeReached
	Interrupt
)

func (c Code) String() string {
	switch c {
	case StackOverflow:
		return "call stack exhausted"
	case MemoryOutOfBounds:
		return "out of bounds memory access"
	case TableOutOfBounds:
		return "undefined element: out of bounds table access"
	case IndirectCallToNull:
		return "uninitialized element"
	case BadSignature:
		return "indirect call type mismatch"
	case IntegerOverflow:
		return "integer overflow"
	case IntegerDivisionByZero:
		return "integer divide by zero"
	case BadConversionToInteger:
		return "invalid conversion to integer"
	case UnreachableCodeReached:
		return "unreachable"
	case Interrupt:
		return "interrupt"
	}
	return "unknown trap"
}

// SourceLoc is a module bytecode offset. Zero means unknown.
type SourceLoc uint32

// Description pairs a trap code with where in the module it happened.
type Description struct {
	Code Code
	Loc  SourceLoc
}

func (d Description) String() string {
	if d.Loc == 0 {
		return fmt.Sprintf("wasm trap: %s", d.Code)
	}
	return fmt.Sprintf("wasm trap: %s, at offset 0x%x", d.Code, uint32(d.Loc))
}

// Trap is the reason module execution stopped abnormally: either a
// guest-origin wasm trap carrying a description and a native stack
// trace, or a host-origin error raised by a host function.
type Trap struct {
	user  error
	desc  Description
	stack []uintptr
}

// User wraps a host-raised error as a trap.
func User(err error) *Trap {
	return &Trap{user: err}
}

// Wasm constructs a guest-origin trap. The native stack trace is
// captured here, at construction, because the faulting frames cannot
// be reconstructed once the fault-handling window has closed.
func Wasm(d Description) *Trap {
	stack := make([]uintptr, 64)
	n := runtime.Callers(2, stack)
	return &Trap{desc: d, stack: stack[:n]}
}

// wasmWithStack builds a guest-origin trap from a stack already
// captured at the fault site.
func wasmWithStack(d Description, stack []uintptr) *Trap {
	return &Trap{desc: d, stack: stack}
}

// Error implements the error interface.
func (t *Trap) Error() string {
	if t.user != nil {
		return t.user.Error()
	}
	return t.desc.String()
}

// Unwrap returns the host error for user traps.
func (t *Trap) Unwrap() error { return t.user }

// IsUser reports whether the trap is host-origin.
func (t *Trap) IsUser() bool { return t.user != nil }

// UserError returns the host error, or nil for guest-origin traps.
func (t *Trap) UserError() error { return t.user }

// Description returns the trap description for guest-origin traps.
func (t *Trap) Description() (Description, bool) {
	if t.user != nil {
		return Description{}, false
	}
	return t.desc, true
}

// Code returns the trap code for guest-origin traps.
func (t *Trap) Code() (Code, bool) {
	if t.user != nil {
		return 0, false
	}
	return t.desc.Code, true
}

// Backtrace returns the raw program counters captured when the trap
// was constructed. Empty for user traps.
func (t *Trap) Backtrace() []uintptr { return t.stack }

// Frames resolves the backtrace for display. Returns nil for user
// traps.
func (t *Trap) Frames() *runtime.Frames {
	if len(t.stack) == 0 {
		return nil
	}
	return runtime.CallersFrames(t.stack)
}
