package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wasm_substrate"

var (
	// Instantiations counts instances created since process start.
	Instantiations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "instantiations_total",
		Help:      "Number of module instances created.",
	})

	// MemoryGrows counts memory.grow attempts by outcome.
	MemoryGrows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_grow_total",
		Help:      "Number of linear memory grow attempts.",
	}, []string{"result"})

	// TableGrows counts table.grow attempts by outcome.
	TableGrows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "table_grow_total",
		Help:      "Number of table grow attempts.",
	}, []string{"result"})

	// Traps counts faults converted to wasm traps, by trap code.
	Traps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traps_total",
		Help:      "Number of faults converted to wasm traps.",
	}, []string{"code"})
)

// Outcome label values for the grow counters.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Register registers all substrate collectors with r. Call at most
// once per registry.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Instantiations, MemoryGrows, TableGrows, Traps} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
