package trap

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Goroutines are the Go analog of the original design's threads: a
// protected call never migrates goroutines (nothing in it suspends),
// so a goroutine-keyed slot gives the same
// "innermost call state on the faulting thread" semantics a
// thread-local would.
type tlsSlot struct {
	head *CallThreadState
	// handling counts fault classifications in flight on this
	// goroutine. Non-zero at fault time means a previous fault's
	// handling itself faulted; decline and let the process crash.
	handling int
}

var slots sync.Map // goroutine id -> *tlsSlot

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func currentSlot() *tlsSlot {
	if v, ok := slots.Load(goroutineID()); ok {
		return v.(*tlsSlot)
	}
	return nil
}

func pushState(s *CallThreadState) *tlsSlot {
	gid := goroutineID()
	var slot *tlsSlot
	if v, ok := slots.Load(gid); ok {
		slot = v.(*tlsSlot)
	} else {
		slot = &tlsSlot{}
		slots.Store(gid, slot)
	}
	s.prev = slot.head
	slot.head = s
	return slot
}

func popState(slot *tlsSlot, s *CallThreadState) {
	slot.head = s.prev
	if slot.head == nil && slot.handling == 0 {
		slots.Delete(goroutineID())
	}
}
