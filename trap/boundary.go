package trap

import (
	"runtime"
	"strings"

	"github.com/wippyai/wasm-substrate/metrics"
)

// Context names what a protected call is entering: the owning
// instance's arena key, its pc-to-description registry, and its
// optional custom fault handler.
type Context struct {
	Owner    uint64
	Registry *Registry
	Handler  FaultHandler
}

// raisedTrap is the panic payload of RaiseTrap/RaiseUserTrap, which the
// boundary distinguishes from genuine faults and host panics.
type raisedTrap struct {
	t *Trap
}

// Run is the single sanctioned entry point for executing module code
// under fault protection. It pushes a CallThreadState, invokes fn, and
// converts any non-local unwind into a result:
//
//   - normal return        -> nil
//   - RaiseUserTrap/RaiseTrap -> that *Trap
//   - intercepted fault    -> *Trap with code, location and stack
//   - claimed fault        -> nil (a custom handler took it)
//   - anything else        -> re-panicked on the host side
//
// Faults are converted only while the interceptor is installed; see
// Install.
func Run(ctx Context, fn func()) (err error) {
	s := &CallThreadState{owner: ctx.Owner, registry: ctx.Registry, handler: ctx.Handler}
	slot := pushState(s)
	defer popState(slot, s)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = s.unwound(slot, r)
	}()
	s.entered = true
	fn()
	return nil
}

// RaiseUserTrap aborts the innermost protected call with a host-origin
// trap. Only valid during protected execution; intervening frames are
// unwound without conversion.
func RaiseUserTrap(err error) {
	panic(&raisedTrap{t: User(err)})
}

// RaiseTrap aborts the innermost protected call with t. Library code
// (builtins) uses this for traps it detects itself, such as
// bounds-checked bulk operations.
func RaiseTrap(t *Trap) {
	panic(&raisedTrap{t: t})
}

// unwound converts the recovered panic value into the protected call's
// result. It runs inside Run's deferred recover, while the faulting
// frames are still on the goroutine stack.
func (s *CallThreadState) unwound(slot *tlsSlot, r any) error {
	if raised, ok := r.(*raisedTrap); ok {
		return raised.t
	}

	rerr, ok := r.(runtime.Error)
	if !ok {
		// A foreign host panic crossing module code: unwind our state
		// and resume it on the host side unconverted.
		panic(r)
	}
	if !Installed() {
		panic(r)
	}
	if !s.entered {
		// Module code never started on this goroutine; treat the
		// fault as a native stack problem and leave it alone.
		panic(r)
	}
	if slot.handling > 0 {
		// Fault while handling a previous fault. Decline, let the
		// process crash rather than recurse.
		panic(r)
	}
	slot.handling++

	stack := make([]uintptr, 128)
	n := runtime.Callers(3, stack)
	stack = stack[:n]
	fault := &Fault{Err: rerr, PC: faultPC(stack), Stack: stack}
	s.pending = fault

	if s.searchHandlers(fault) {
		debugf("fault claimed by instance handler: %v", rerr)
		slot.handling--
		return nil
	}

	desc, found := Description{}, false
	if s.registry != nil {
		desc, found = s.registry.Lookup(fault.PC)
	}
	if !found {
		if code, ok := classify(rerr); ok {
			desc = Description{Code: code}
		} else {
			desc = Description{Code: StackOverflow}
		}
	}
	metrics.Traps.WithLabelValues(desc.Code.String()).Inc()
	debugf("fault converted to trap: %s", desc)
	slot.handling--
	return wasmWithStack(desc, fault.Stack)
}

// faultPC picks the faulting program counter out of a captured stack:
// the first frame that belongs to neither the Go runtime nor this
// package.
func faultPC(stack []uintptr) uintptr {
	frames := runtime.CallersFrames(stack)
	for {
		fr, more := frames.Next()
		if fr.Function != "" &&
			!strings.HasPrefix(fr.Function, "runtime.") &&
			!strings.Contains(fr.Function, "wasm-substrate/trap.") {
			return fr.PC
		}
		if !more {
			break
		}
	}
	if len(stack) > 0 {
		return stack[0]
	}
	return 0
}

// classify maps a Go runtime error to the trap code its hardware
// equivalent would have produced.
func classify(err runtime.Error) (Code, bool) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "integer divide by zero"):
		return IntegerDivisionByZero, true
	case strings.Contains(msg, "index out of range"),
		strings.Contains(msg, "slice bounds out of range"):
		return MemoryOutOfBounds, true
	case strings.Contains(msg, "nil pointer dereference"),
		strings.Contains(msg, "invalid memory address"):
		return MemoryOutOfBounds, true
	case strings.Contains(msg, "misaligned"):
		return MemoryOutOfBounds, true
	}
	return 0, false
}
