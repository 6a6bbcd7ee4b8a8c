package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/instance"
	"github.com/wippyai/wasm-substrate/layout"
	"github.com/wippyai/wasm-substrate/trap"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to core wasm module")
		funcName    = flag.String("func", "", "Exported function to call")
		argsStr     = flag.String("args", "", "Call arguments (comma-separated u64 bit patterns)")
		list        = flag.Bool("list", false, "List exports with their context-region offsets and exit")
		relaxed     = flag.Bool("relaxed", false, "Relaxed bulk-memory initialization")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	trap.Install()
	defer trap.Uninstall()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2,3]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		instance.SetLogger(l)
		trap.SetLogger(l)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile, *relaxed); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *argsStr, *list, *relaxed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loaded bundles everything needed to inspect and call one module: the
// decoded descriptor, its context layout, the live substrate instance,
// and the wazero runtime that executes the function bodies behind it.
type loaded struct {
	data    []byte
	module  *descriptor.Module
	offsets *layout.Offsets
	arena   *instance.Arena
	handle  instance.Handle
	wazero  wazero.Runtime
}

func (l *loaded) close(ctx context.Context) {
	l.handle.Release()
	l.wazero.Close(ctx)
}

// load decodes file, compiles it with wazero for execution, and builds
// the substrate instance whose context region mirrors it. Imported
// entities would need a linking story this tool does not have, so
// modules with imports are rejected up front.
func load(ctx context.Context, file string, relaxed bool) (*loaded, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	m, inits, err := descriptor.FromWasm(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if m.NumImportedFunctions+m.NumImportedTables+m.NumImportedMemories+m.NumImportedGlobals > 0 {
		return nil, fmt.Errorf("module has imports; this tool runs self-contained modules only")
	}

	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, data)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate engine module: %w", err)
	}

	// Bodies for exported functions dispatch into wazero; functions the
	// module keeps private cannot be entered from here.
	bodies := make([]substrate.FunctionBody, m.NumDefinedFunctions())
	for i := range bodies {
		bodies[i] = func([]uint64) []uint64 {
			trap.RaiseUserTrap(fmt.Errorf("function is not exported"))
			return nil
		}
	}
	for _, name := range m.ExportNames {
		e := m.Exports[name]
		if e.Kind != descriptor.EntityFunc {
			continue
		}
		if fn := mod.ExportedFunction(name); fn != nil {
			bodies[e.Index] = engineBody(ctx, fn)
		}
	}

	offsets := layout.New(m)
	arena := instance.NewArena()
	h, err := instance.New(arena, instance.Config{
		Module:            m,
		Offsets:           offsets,
		Functions:         bodies,
		RelaxedBulkMemory: relaxed,
	})
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	if err := h.Initialize(inits); err != nil {
		h.Release()
		rt.Close(ctx)
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return &loaded{data: data, module: m, offsets: offsets, arena: arena, handle: h, wazero: rt}, nil
}

func engineBody(ctx context.Context, fn api.Function) substrate.FunctionBody {
	return func(args []uint64) []uint64 {
		results, err := fn.Call(ctx, args...)
		if err != nil {
			trap.RaiseUserTrap(err)
		}
		return results
	}
}

func run(file, funcName, argsStr string, listOnly, relaxed bool) error {
	ctx := context.Background()

	l, err := load(ctx, file, relaxed)
	if err != nil {
		return err
	}
	defer l.close(ctx)

	m := l.module
	fmt.Printf("Module: %s\n", file)
	fmt.Printf("Functions: %d  Tables: %d  Memories: %d  Globals: %d\n",
		len(m.Functions), len(m.TablePlans), len(m.MemoryPlans), len(m.Globals))
	fmt.Printf("Passive segments: %d elem, %d data\n", len(m.PassiveElements), len(m.PassiveData))
	fmt.Printf("Context region: %d bytes (anyfuncs at 0x%x)\n",
		l.offsets.ContextSize(), l.offsets.AnyfuncsBegin())

	fmt.Printf("\nExports:\n")
	for _, name := range m.ExportNames {
		fmt.Printf("  %s\n", formatExport(l, name))
	}

	if listOnly {
		return nil
	}
	if funcName == "" {
		return nil
	}

	args, err := parseArgs(argsStr)
	if err != nil {
		return err
	}
	fmt.Printf("\nCalling %s(%s)...\n", funcName, argsStr)
	results, err := l.handle.Invoke(funcName, args)
	if err != nil {
		if t, ok := err.(*trap.Trap); ok {
			return fmt.Errorf("trapped: %w", t)
		}
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Results: %v\n", results)
	return nil
}

func formatExport(l *loaded, name string) string {
	e := l.module.Exports[name]
	switch exp := l.handle.LookupByDeclaration(e).(type) {
	case instance.ExportFunction:
		return fmt.Sprintf("func   %s  anyfunc@0x%x", name, exp.Anyfunc)
	case instance.ExportTable:
		return fmt.Sprintf("table  %s  definition@0x%x", name, exp.Definition)
	case instance.ExportMemory:
		return fmt.Sprintf("memory %s  definition@0x%x", name, exp.Definition)
	case instance.ExportGlobal:
		return fmt.Sprintf("global %s  definition@0x%x", name, exp.Definition)
	default:
		return name
	}
}

func parseArgs(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	args := make([]uint64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %w", p, err)
		}
		args = append(args, v)
	}
	return args, nil
}
