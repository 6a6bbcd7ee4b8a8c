// Package trap converts faults during module execution into structured
// trap values instead of process crashes.
//
// # The trap boundary
//
// Run is the single place a non-local unwind may cross. Every entry
// into module code goes through it:
//
//	err := trap.Run(trap.Context{Owner: key, Registry: reg}, func() {
//	    // module code
//	})
//
// Inside the protected call, a Go runtime fault (out-of-bounds access,
// nil dereference, integer division by zero) unwinds to the boundary
// and comes back as a *Trap carrying a code, a best-effort source
// location and the native stack captured at the fault. Host functions
// abort explicitly with RaiseUserTrap; library code raises prebuilt
// traps with RaiseTrap. Any other panic is re-raised past the boundary
// unconverted, so host bugs surface as host panics.
//
// # Call-state chain
//
// Each protected call pushes a CallThreadState linked to the enclosing
// one on the same goroutine, enabling recursive re-entry into module
// code and innermost-first search for instance fault handlers. A fault
// is converted only when a state is active and not already
// mid-handling; everything else re-raises.
//
// # Interceptor
//
// Fault conversion is gated by the process-wide interceptor (Install /
// Uninstall). While uninstalled, faults keep their native disposition
// even inside protected calls.
package trap
