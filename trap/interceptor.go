package trap

import (
	"runtime"
	"sync"
)

// The interceptor is process-global because fault interception is: a
// goroutine's faults all funnel through the same runtime machinery.
// Ordering relative to other recovery code is inherent in the
// recover-based model — the innermost protected call observes the
// fault first — so unlike a signal handler there is nothing to
// sequence at install time beyond flipping the switch.
var interceptor struct {
	mu        sync.Mutex
	installed bool
}

// Install enables fault-to-trap conversion process-wide. It is
// idempotent and cheap; embedders call it once before the first
// protected call. While uninstalled, faults inside protected calls
// re-raise untouched so genuine host bugs keep their native crash
// report.
func Install() {
	interceptor.mu.Lock()
	defer interceptor.mu.Unlock()
	if interceptor.installed {
		return
	}
	// Prime the frame-resolution path once outside any fault window,
	// mirroring the eager warm-up the original signal handler needed
	// before it could safely symbolize on a tiny signal stack.
	var pcs [8]uintptr
	n := runtime.Callers(0, pcs[:])
	runtime.CallersFrames(pcs[:n]).Next()
	interceptor.installed = true
	debugf("fault interceptor installed")
}

// Uninstall disables fault-to-trap conversion. Protected calls still
// convert explicitly raised traps; only hardware-level fault
// conversion stops.
func Uninstall() {
	interceptor.mu.Lock()
	defer interceptor.mu.Unlock()
	interceptor.installed = false
}

// Installed reports whether the interceptor is active.
func Installed() bool {
	interceptor.mu.Lock()
	defer interceptor.mu.Unlock()
	return interceptor.installed
}
