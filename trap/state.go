package trap

// Fault describes one intercepted hardware-level fault before
// conversion: the faulting program counter, the captured (unresolved)
// stack, and the underlying runtime error.
type Fault struct {
	Err   error
	PC    uintptr
	Stack []uintptr
}

// FaultHandler is an instance-supplied hook consulted before a fault is
// converted to a trap. Returning true claims the fault: no trap is
// produced and the protected call returns successfully. (The original
// design resumed execution at the faulting instruction; Go cannot
// resume a panicked frame, so claiming a fault ends the call instead.)
type FaultHandler interface {
	HandleFault(*Fault) bool
}

// CallThreadState is the per-call record pushed for every entry into
// module code on a goroutine. States link to the enclosing call,
// forming the chain searched for custom fault handlers and unwound by
// the protected entry point.
type CallThreadState struct {
	prev     *CallThreadState
	owner    uint64
	registry *Registry
	handler  FaultHandler
	// entered flips once module code actually starts; a fault on this
	// goroutine before that is a native problem, not a wasm trap.
	entered bool
	// pending records the fault awaiting conversion at the boundary.
	pending *Fault
}

// Owner returns the arena key of the context region being executed.
func (s *CallThreadState) Owner() uint64 { return s.owner }

// searchHandlers walks the call chain innermost-first, offering the
// fault to each instance's custom handler.
func (s *CallThreadState) searchHandlers(f *Fault) bool {
	for cur := s; cur != nil; cur = cur.prev {
		if cur.handler != nil && cur.handler.HandleFault(f) {
			return true
		}
	}
	return false
}

// Active reports whether a protected call is in progress on the
// calling goroutine.
func Active() bool {
	slot := currentSlot()
	return slot != nil && slot.head != nil
}
