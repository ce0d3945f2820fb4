// Package compute defines the shared contract between the host reference
// grid builder and any device-backed implementation of the same five-stage
// build pipeline, so driver.Driver can select either one without the
// downstream traverse/shade pipeline caring which produced the grid.
package compute

import (
	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/scene"
)

// GridBuilder builds one frame's two-level grid from a converted atom set
// and the frame's (already snapped and clamped) world bounds. bvh.Builder
// implements it directly as the CPU reference path; compute/cl.Backend
// implements it by dispatching the same build over an opencl device and
// reading the result back into the same *bvh.Grid layout.
type GridBuilder interface {
	Build(atoms []scene.ConvertedAtom, bounds scene.WorldBounds) (*bvh.Grid, error)

	// State reports the stage the most recent (or in-flight) Build call
	// reached, letting a caller confirm the pipeline actually reached
	// bvh.Ready rather than stopping partway through.
	State() bvh.State
}
