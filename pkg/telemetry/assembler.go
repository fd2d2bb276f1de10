package telemetry

import (
	"errors"
	"fmt"
)

// ErrModuleRange indicates a record for a module beyond the configured count.
var ErrModuleRange = errors.New("module index out of range")

// Assembler reassembles records of several modules. It is not safe for
// concurrent use; one goroutine must own it.
type Assembler struct {
	modules []ModuleSnapshot
}

// NewAssembler creates an Assembler for n modules.
func NewAssembler(n int) *Assembler {
	return &Assembler{modules: make([]ModuleSnapshot, n)}
}

// Modules returns the number of modules.
func (a *Assembler) Modules() int {
	return len(a.modules)
}

// Apply applies one record and reports the module it belongs to and
// whether that module's snapshot became complete.
func (a *Assembler) Apply(id uint32, payload []byte) (module int, complete bool, err error) {
	if !IsTelemetry(id) {
		return -1, false, fmt.Errorf("not a telemetry id: %08x", id)
	}
	module, _, _ = ParseAddress(id)
	if module >= len(a.modules) {
		return module, false, fmt.Errorf("%w: %d", ErrModuleRange, module)
	}
	s := &a.modules[module]
	if err = s.SetRawData(id, payload); err != nil {
		return module, false, err
	}
	return module, s.IsComplete(), nil
}

// Snapshot returns a copy of a module's snapshot.
func (a *Assembler) Snapshot(module int) ModuleSnapshot {
	return a.modules[module]
}
