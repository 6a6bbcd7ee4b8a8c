package instance

import "sync"

// Arena owns every live instance and hands out opaque keys for them.
// Keys start at 1 so a zero owner slot in a context region is an
// unambiguous "no instance". Cross-instance access (imported memories,
// tables and globals) resolves the owner key stored in the foreign
// import record back through the arena instead of chasing raw
// pointers.
type Arena struct {
	mu        sync.RWMutex
	next      uint64
	instances map[uint64]*Instance
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		next:      1,
		instances: make(map[uint64]*Instance),
	}
}

func (a *Arena) allocate(inst *Instance) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := a.next
	a.next++
	a.instances[key] = inst
	return key
}

func (a *Arena) get(key uint64) (*Instance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	inst, ok := a.instances[key]
	return inst, ok
}

func (a *Arena) release(key uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.instances[key]; !ok {
		return false
	}
	delete(a.instances, key)
	return true
}

// Len reports how many instances are currently live.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.instances)
}
