// Package metrics exposes Prometheus counters for runtime activity:
// instantiations, memory and table growth, and trap conversions.
//
// Collection is passive; nothing is registered until the embedder
// calls Register with its registry. Counters are incremented
// unconditionally (Prometheus counters are cheap when unregistered).
package metrics
