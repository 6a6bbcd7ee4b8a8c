// Package substrate provides the runtime substrate for executing
// compiled WebAssembly modules: live instances holding linear memories,
// tables, globals and function tables, plus fault-protected execution
// that converts hardware-level faults into structured traps.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	substrate/           Root package with shared ABI types (function
//	                     bodies, trampolines, funcref packing)
//	├── descriptor/      Static module shape: index spaces, plans,
//	                     exports, passive segments
//	├── layout/          Byte offsets of every field in the context
//	                     region (the compiled-code ABI contract)
//	├── memory/          Growable linear memories and the creator
//	                     capability
//	├── table/           Growable tables of typed references
//	├── instance/        Instance state, the context region, the
//	                     instance arena and handles
//	├── trap/            Trap values, the fault interceptor, the
//	                     call-state stack and the protected entry point
//	├── errors/          Structured construction-time errors
//	└── metrics/         Prometheus counters for runtime activity
//
// # Quick Start
//
// Instantiate a module shape and run code under fault protection:
//
//	arena := instance.NewArena()
//	h, err := instance.New(arena, instance.Config{
//	    Module:  mod,
//	    Imports: instance.Imports{},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Release()
//
//	err = h.Run(func() {
//	    // call into compiled module code here
//	})
//	var t *trap.Trap
//	if errors.As(err, &t) {
//	    fmt.Println("module trapped:", t)
//	}
//
// # What this library is not
//
// The compiler front end (translation, instruction selection, code
// emission), bytecode interpretation and syscall emulation live in
// external collaborators. This substrate consumes their outputs: a
// module descriptor, finished function bodies, per-signature
// trampolines and a pc-to-source trap registry.
//
// # Thread Safety
//
// Exactly one goroutine may execute inside a given instance's code at
// any instant, though that goroutine may re-enter the same instance
// recursively. Independent instances may run concurrently. The arena
// is safe for concurrent use; a single instance's mutable state is not.
package substrate
