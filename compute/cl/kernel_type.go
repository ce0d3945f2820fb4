package cl

import "fmt"

type kernelType uint8

// The kernels defined in CL/main.cl, in the order the grid-build pipeline
// and the render pass dispatch them.
const (
	resetCounters kernelType = iota
	resetGroupMarks
	resetGlobals
	countLarge
	compactLarge
	referenceLargeAndCountSmall
	emitSmall
	renderAtoms
	//
	numKernels
)

// String maps a kernel type to the kernel name as defined in CL/main.cl.
func (kt kernelType) String() string {
	switch kt {
	case resetCounters:
		return "reset_counters"
	case resetGroupMarks:
		return "reset_group_marks"
	case resetGlobals:
		return "reset_globals"
	case countLarge:
		return "count_large"
	case compactLarge:
		return "compact_large"
	case referenceLargeAndCountSmall:
		return "reference_large_and_count_small"
	case emitSmall:
		return "emit_small"
	case renderAtoms:
		return "render_atoms"
	default:
		panic(fmt.Sprintf("compute/cl: unsupported kernel type: %d", kt))
	}
}
