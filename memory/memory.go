package memory

import (
	"unsafe"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/errors"
)

// Memory is the default linear memory: a page-granular byte buffer
// that can only grow. Growing reallocates, so the base address exposed
// through Definition changes; callers must re-mirror base and length
// together after every successful grow.
type Memory struct {
	buf      []byte
	maxPages uint64
}

var _ substrate.LinearMemory = (*Memory)(nil)

// New allocates a linear memory of minPages, growable up to maxPages
// when hasMax, otherwise up to the 32-bit address space limit.
func New(minPages, maxPages uint64, hasMax bool) (*Memory, error) {
	limit := uint64(substrate.MaxPages)
	if hasMax && maxPages < limit {
		limit = maxPages
	}
	if minPages > limit {
		return nil, errors.Resource(errors.PhaseInstantiate, "memory minimum exceeds maximum", nil)
	}
	return &Memory{
		buf:      make([]byte, minPages*substrate.PageSize),
		maxPages: limit,
	}, nil
}

// Pages returns the current size in pages.
func (m *Memory) Pages() uint64 {
	return uint64(len(m.buf)) / substrate.PageSize
}

// ByteSize returns the number of currently accessible bytes.
func (m *Memory) ByteSize() uint64 {
	return uint64(len(m.buf))
}

// Grow extends the memory by deltaPages, returning the page count
// before growing. On failure nothing is mutated and ok is false.
func (m *Memory) Grow(deltaPages uint64) (oldPages uint64, ok bool) {
	old := m.Pages()
	if deltaPages > m.maxPages-old {
		return 0, false
	}
	grown := make([]byte, (old+deltaPages)*substrate.PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return old, true
}

// Bytes returns the accessible bytes. The slice is invalidated by Grow.
func (m *Memory) Bytes() []byte { return m.buf }

// Definition returns the base address and byte length pair mirrored
// into the context region.
func (m *Memory) Definition() (base uintptr, length uint64) {
	if len(m.buf) == 0 {
		return 0, 0
	}
	return uintptr(unsafe.Pointer(&m.buf[0])), uint64(len(m.buf))
}

// DefaultCreator allocates Memory values sized by the module's memory
// plan. It is stateless and safe for concurrent use.
type DefaultCreator struct{}

var _ substrate.MemoryCreator = DefaultCreator{}

// NewMemory implements substrate.MemoryCreator.
func (DefaultCreator) NewMemory(minPages, maxPages uint64, hasMax bool) (substrate.LinearMemory, error) {
	return New(minPages, maxPages, hasMax)
}

// FromPlan allocates a memory for plan using creator, defaulting to
// DefaultCreator when creator is nil.
func FromPlan(creator substrate.MemoryCreator, plan descriptor.MemoryPlan) (substrate.LinearMemory, error) {
	if creator == nil {
		creator = DefaultCreator{}
	}
	return creator.NewMemory(plan.Minimum, plan.Maximum, plan.HasMaximum)
}
