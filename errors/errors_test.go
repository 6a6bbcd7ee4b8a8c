package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := OutOfBounds(PhaseRuntime, "table", 2, "range exceeds size")
	msg := err.Error()
	for _, want := range []string{"runtime", "out_of_bounds", "table", "range exceeds size"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := Link("memory", 0, "owner instance not found")

	if !stderrors.Is(err, &Error{Phase: PhaseLink, Kind: KindLink}) {
		t.Error("link error does not match its own phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindLink}) {
		t.Error("link error matched a different phase")
	}
	if stderrors.Is(err, &Error{Phase: PhaseLink, Kind: KindOutOfBounds}) {
		t.Error("link error matched a different kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("mmap failed")
	err := Resource(PhaseInstantiate, "memory allocation", cause)

	if !stderrors.Is(err, cause) {
		t.Error("resource error does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "mmap failed") {
		t.Errorf("message %q does not mention the cause", err.Error())
	}
}

func TestInstantiationWraps(t *testing.T) {
	inner := Resource(PhaseInstantiate, "out of pages", nil)
	err := Instantiation(inner)

	if !stderrors.Is(err, &Error{Phase: PhaseInstantiate, Kind: KindResource}) {
		t.Error("instantiation error has wrong phase/kind")
	}
	if !stderrors.Is(err, inner) {
		t.Error("instantiation error does not unwrap to the inner error")
	}
}
