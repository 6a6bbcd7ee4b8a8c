package trap

import (
	"sync"
)

// Registry maps native program counters to trap descriptions. The
// compiler front end registers one entry (or one covering range) per
// potentially-trapping site in the finished code; the protected entry
// point resolves captured fault pcs against it.
type Registry struct {
	mu    sync.RWMutex
	sites map[uintptr]Description
	spans []span
}

type span struct {
	start, end uintptr
	desc       Description
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sites: make(map[uintptr]Description)}
}

// Register records a trap description for an exact pc.
func (r *Registry) Register(pc uintptr, d Description) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[pc] = d
}

// RegisterRange records a trap description for all pcs in [start, end).
// Exact-site entries take precedence over ranges.
func (r *Registry) RegisterRange(start, end uintptr, d Description) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span{start: start, end: end, desc: d})
}

// Lookup resolves pc to a trap description.
func (r *Registry) Lookup(pc uintptr) (Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.sites[pc]; ok {
		return d, true
	}
	for _, s := range r.spans {
		if pc >= s.start && pc < s.end {
			return s.desc, true
		}
	}
	return Description{}, false
}
