package driver

import (
	"fmt"

	"github.com/achilleasa/go-atomtrace/traverse"
)

// Kind identifies which of the five failure categories a frame's
// DriverError belongs to.
type Kind int

const (
	CapacityExceeded Kind = iota
	EmptyWorld
	BVHIncomplete
	TraversalFault
	BackendError
)

func (k Kind) String() string {
	switch k {
	case CapacityExceeded:
		return "capacity_exceeded"
	case EmptyWorld:
		return "empty_world"
	case BVHIncomplete:
		return "bvh_incomplete"
	case TraversalFault:
		return "traversal_fault"
	case BackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// Resource names which cap a CapacityExceeded error tripped; meaningless
// for any other Kind.
type Resource int

const (
	ResourceAtoms Resource = iota
	ResourceReferences
)

func (r Resource) String() string {
	if r == ResourceReferences {
		return "references"
	}
	return "atoms"
}

// DriverError is the typed failure surfaced out of a frame's
// Preprocess -> Build -> Shade pipeline. It names the stage-independent
// kind of fault (per the recovery-policy table) plus enough detail to act
// on it, and wraps the underlying stage error as Cause.
type DriverError struct {
	Kind     Kind
	Resource Resource        // set only when Kind == CapacityExceeded
	Code     traverse.FaultCode // set only when Kind == TraversalFault
	Cause    error
}

func (e *DriverError) Error() string {
	switch e.Kind {
	case CapacityExceeded:
		return fmt.Sprintf("driver: capacity exceeded (%s): %v", e.Resource, e.Cause)
	case EmptyWorld:
		return fmt.Sprintf("driver: empty world: %v", e.Cause)
	case BVHIncomplete:
		return fmt.Sprintf("driver: bvh build incomplete: %v", e.Cause)
	case TraversalFault:
		return fmt.Sprintf("driver: traversal fault (%s): %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("driver: backend error: %v", e.Cause)
	}
}

func (e *DriverError) Unwrap() error { return e.Cause }

// Fatal reports whether this error drops the frame. Every DriverError
// returned by RenderFrame is frame-fatal by construction; per-pixel
// traversal faults never reach this type, since shade.Shade absorbs them
// into a marker color instead of failing the frame.
func (e *DriverError) Fatal() bool { return true }

// Advice returns a short, user-facing remediation hint, or "" when none
// applies. CapacityExceeded is the one kind the recovery policy requires
// the driver to surface back to the operator rather than just log.
func (e *DriverError) Advice() string {
	if e.Kind == CapacityExceeded {
		return fmt.Sprintf("reduce the atom count or raise max_%s in the configuration and retry", e.Resource)
	}
	return ""
}
