// Package errors provides structured error types for instance
// construction and initialization.
//
// Every error carries a Phase (where in the lifecycle it happened) and
// a Kind (what went wrong), so embedders can match with errors.Is
// without string comparison:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseLink, Kind: errors.KindLink}) {
//	    // bad import
//	}
//
// Construction errors return directly without engaging the unwind
// machinery. Failures inside fault-protected execution are represented
// by trap.Trap instead; see the trap package.
package errors
