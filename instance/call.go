package instance

import (
	"fmt"

	substrate "github.com/wippyai/wasm-substrate"
	"github.com/wippyai/wasm-substrate/descriptor"
	"github.com/wippyai/wasm-substrate/errors"
	"github.com/wippyai/wasm-substrate/trap"
)

// CallIndirect invokes the function named by ref, checking its type id
// against expected signature expect. It must run inside a fault
// boundary: a null reference or signature mismatch is raised as a
// trap, not returned.
func (i *Instance) CallIndirect(ref substrate.FuncRef, expect descriptor.SignatureIndex, args []uint64) []uint64 {
	if ref.IsNull() {
		trap.RaiseTrap(trap.Wasm(trap.Description{Code: trap.IndirectCallToNull}))
	}
	holder, ok := i.arena.get(ref.Owner())
	if !ok {
		panic(fmt.Sprintf("instance: funcref into released instance %d", ref.Owner()))
	}
	code, typeID, codeOwner := holder.vmctx.Anyfunc(descriptor.FuncIndex(ref.Anyfunc()))
	// An absent signature id means unchecked, same as a zero one.
	var want uint64
	if int(expect) < len(i.module.SignatureIDs) {
		want = i.module.SignatureIDs[expect]
	}
	if want != 0 && typeID != want {
		trap.RaiseTrap(trap.Wasm(trap.Description{Code: trap.BadSignature}))
	}
	target, ok := i.arena.get(codeOwner)
	if !ok {
		panic(fmt.Sprintf("instance: anyfunc code owned by released instance %d", codeOwner))
	}
	body := target.functions[code]
	if tr := i.trampolines[expect]; tr != nil {
		return tr(body, args)
	}
	return body(args)
}

// Invoke looks up an exported function by name and calls it inside the
// fault boundary. It is the one supported entry into guest code: any
// fault or raised trap during the call comes back as a *trap.Trap
// error with the process intact.
func (h Handle) Invoke(name string, args []uint64) (results []uint64, err error) {
	inst := h.inst()
	e, ok := inst.module.Exports[name]
	if !ok || e.Kind != descriptor.EntityFunc {
		return nil, errors.NotFound(errors.PhaseRuntime, "function export", name)
	}
	f := descriptor.FuncIndex(e.Index)
	sig := inst.module.Functions[f]
	ref := inst.FuncRef(f)
	err = h.Run(func() {
		results = inst.CallIndirect(ref, sig, args)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
