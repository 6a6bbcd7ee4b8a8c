package memory

import (
	"testing"

	substrate "github.com/wippyai/wasm-substrate"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		min, max uint64
		hasMax   bool
		wantErr  bool
	}{
		{name: "zero pages", min: 0, max: 0, hasMax: false},
		{name: "one page", min: 1, max: 0, hasMax: false},
		{name: "min equals max", min: 2, max: 2, hasMax: true},
		{name: "min exceeds max", min: 3, max: 2, hasMax: true, wantErr: true},
		{name: "min exceeds address space", min: substrate.MaxPages + 1, hasMax: false, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.min, tt.max, tt.hasMax)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%d, %d, %v) should have failed", tt.min, tt.max, tt.hasMax)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%d, %d, %v): %v", tt.min, tt.max, tt.hasMax, err)
			}
			if got := m.Pages(); got != tt.min {
				t.Errorf("Pages() = %d, want %d", got, tt.min)
			}
			if got := m.ByteSize(); got != tt.min*substrate.PageSize {
				t.Errorf("ByteSize() = %d, want %d", got, tt.min*substrate.PageSize)
			}
		})
	}
}

func TestGrow(t *testing.T) {
	m, err := New(1, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	old, ok := m.Grow(1)
	if !ok {
		t.Fatal("Grow(1) failed")
	}
	if old != 1 {
		t.Errorf("Grow(1) returned old=%d, want 1", old)
	}
	if got := m.ByteSize(); got != 2*substrate.PageSize {
		t.Errorf("ByteSize() after grow = %d, want %d", got, 2*substrate.PageSize)
	}

	if _, ok := m.Grow(1_000_000); ok {
		t.Error("Grow(1000000) should have failed")
	}
	if got := m.Pages(); got != 2 {
		t.Errorf("failed grow mutated size: Pages() = %d, want 2", got)
	}
}

func TestGrowRespectsDeclaredMaximum(t *testing.T) {
	m, err := New(1, 2, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := m.Grow(1); !ok {
		t.Fatal("grow to declared maximum failed")
	}
	if _, ok := m.Grow(1); ok {
		t.Error("grow past declared maximum should fail")
	}
}

func TestGrowZeroDelta(t *testing.T) {
	m, err := New(3, 3, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	old, ok := m.Grow(0)
	if !ok || old != 3 {
		t.Errorf("Grow(0) = (%d, %v), want (3, true)", old, ok)
	}
}

func TestGrowPreservesContents(t *testing.T) {
	m, err := New(1, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Bytes()[100] = 0xAB

	if _, ok := m.Grow(1); !ok {
		t.Fatal("Grow(1) failed")
	}
	if got := m.Bytes()[100]; got != 0xAB {
		t.Errorf("byte 100 after grow = 0x%x, want 0xAB", got)
	}
	if got := m.Bytes()[substrate.PageSize]; got != 0 {
		t.Errorf("new pages not zeroed: got 0x%x", got)
	}
}

func TestDefinitionTracksGrow(t *testing.T) {
	m, err := New(1, 0, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, length := m.Definition()
	if length != substrate.PageSize {
		t.Fatalf("Definition length = %d, want %d", length, substrate.PageSize)
	}

	if _, ok := m.Grow(1); !ok {
		t.Fatal("Grow(1) failed")
	}
	base, length := m.Definition()
	if length != 2*substrate.PageSize {
		t.Errorf("Definition length after grow = %d, want %d", length, 2*substrate.PageSize)
	}
	if base == 0 {
		t.Error("Definition base is zero for non-empty memory")
	}
}
