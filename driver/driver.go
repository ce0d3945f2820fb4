// Package driver owns the per-frame control flow (component orchestration):
// Preprocess -> Build -> Shade, the triple-buffered atom input staging, the
// double-buffered output textures, the frame counter, and the frame-report
// ring buffer described by the core's global mutable state.
package driver

import (
	"errors"
	"math/rand"
	"time"

	"github.com/gammazero/deque"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/compute"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/log"
	"github.com/achilleasa/go-atomtrace/preprocess"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/shade"
	"github.com/achilleasa/go-atomtrace/traverse"
)

// frameReportCapacity bounds the frame-report ring buffer; older reports
// are evicted as new ones arrive.
const frameReportCapacity = 64

// atomInputLanes is the triple-buffering depth for staged atom input: the
// host can write frame N+2's lane while frame N's lane is still being
// consumed downstream.
const atomInputLanes = 3

// StageDurations breaks one frame's wall-clock time down by pipeline stage.
type StageDurations struct {
	Preprocess time.Duration
	Build      time.Duration
	Shade      time.Duration
}

// FrameReport records the outcome of one RenderFrame call. The driver
// retains the last frameReportCapacity of these in its ring buffer.
type FrameReport struct {
	FrameID uint64
	Stages  StageDurations
	Dropped bool
	Err     error
}

// Driver runs the reference host pipeline (preprocess, grid build, shade)
// for a sequence of frames, owning everything spec.md marks as the core's
// global mutable state: the frame counter and the frame-report ring buffer.
//
// BVH tables are rebuilt from scratch every frame by the embedded Builder
// and are never retained across RenderFrame calls; only the atom input
// lanes and the output texture pair persist.
type Driver struct {
	logger log.Logger
	cfg    config.Config
	colors shade.ElementColors
	rng    *rand.Rand

	preprocessor *preprocess.Preprocessor
	builder      compute.GridBuilder

	frameCounter uint64
	reports      deque.Deque[FrameReport]

	atomLanes [atomInputLanes][]scene.Atom
	outputs   [2]*shade.Output
	parity    int

	// prevCameraAbs is the previous frame's camera in the caller's
	// absolute coordinate frame. Each frame's grid build snaps a fresh
	// bounds.Min, so it is re-expressed in the current frame's
	// grid-local frame (see the shift in RenderFrame) before being
	// handed to shade.Shade for reprojection.
	prevCameraAbs *scene.Camera
}

// Option customizes a Driver at construction time.
type Option func(*Driver)

// WithGridBuilder overrides the default host bvh.Builder with an alternate
// compute.GridBuilder, letting a caller dispatch grid construction to an
// opencl device (see compute/cl.Backend) instead of the CPU reference path.
// Everything downstream of Build (traverse, shade) runs unchanged either way.
func WithGridBuilder(b compute.GridBuilder) Option {
	return func(d *Driver) { d.builder = b }
}

// New constructs a Driver over the given configuration, element radius
// table and color table. seed seeds the per-frame sample RNG the same way
// the teacher seeds its trace kernels from a package-level rand.Rand. By
// default grid building runs on the host via bvh.Builder; pass
// WithGridBuilder to select a device backend instead.
func New(cfg config.Config, radii scene.ElementRadii, colors shade.ElementColors, seed int64, opts ...Option) *Driver {
	d := &Driver{
		logger:       log.New("driver"),
		cfg:          cfg,
		colors:       colors,
		rng:          rand.New(rand.NewSource(seed)),
		preprocessor: preprocess.New(cfg, radii),
		builder:      bvh.New(cfg),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FrameCounter returns the number of frames submitted to RenderFrame so far.
func (d *Driver) FrameCounter() uint64 { return d.frameCounter }

// Reports returns a snapshot of the frame-report ring buffer, oldest first.
func (d *Driver) Reports() []FrameReport {
	n := d.reports.Len()
	out := make([]FrameReport, n)
	for i := 0; i < n; i++ {
		out[i] = d.reports.At(i)
	}
	return out
}

// RenderFrame drives one frame through preprocess, grid build and shade.
//
// On success it returns the freshly shaded output and advances the
// double-buffered output pair and the previous-camera reference used for
// the next frame's motion vectors. On a fatal stage error it drops the
// frame per the recovery policy: logs, records the report, and returns the
// previously presented output (the caller keeps showing it) alongside the
// *DriverError describing what failed. Per-pixel traversal faults never
// reach this return path; shade.Shade absorbs them into a marker color.
func (d *Driver) RenderFrame(atoms []scene.Atom, camera scene.Camera) (*shade.Output, error) {
	frameID := d.frameCounter
	d.frameCounter++

	staged := d.stageAtoms(frameID, atoms)

	var stages StageDurations

	t0 := time.Now()
	result, err := d.preprocessor.Run(staged)
	stages.Preprocess = time.Since(t0)
	if err != nil {
		return d.dropFrame(frameID, stages, wrapPreprocessError(err))
	}

	t0 = time.Now()
	grid, err := d.builder.Build(result.Converted, result.Bounds)
	stages.Build = time.Since(t0)
	if err != nil {
		return d.dropFrame(frameID, stages, &DriverError{Kind: BVHIncomplete, Cause: err})
	}
	if d.builder.State() != bvh.Ready {
		return d.dropFrame(frameID, stages, &DriverError{Kind: BVHIncomplete, Cause: errBuildNotReady(d.builder.State())})
	}

	// Converted atoms live in the grid-local frame (translated so
	// bounds.Min sits at the origin); shift the camera the same way so
	// ray generation operates in that frame too.
	localCamera := camera
	localCamera.Position = camera.Position.Sub(result.Bounds.Min)

	var localPrevCamera *scene.Camera
	if d.prevCameraAbs != nil {
		shifted := *d.prevCameraAbs
		shifted.Position = d.prevCameraAbs.Position.Sub(result.Bounds.Min)
		localPrevCamera = &shifted
	}

	t0 = time.Now()
	out, err := shade.Shade(grid, result.Converted, d.cfg, d.colors, localCamera, localPrevCamera, d.rng.Uint32())
	stages.Shade = time.Since(t0)
	if err != nil {
		return d.dropFrame(frameID, stages, wrapBackendError(err))
	}

	d.recordReport(FrameReport{FrameID: frameID, Stages: stages})

	d.outputs[d.nextParity()] = out
	d.parity = d.nextParity()
	presented := camera
	d.prevCameraAbs = &presented

	return out, nil
}

// stageAtoms copies atoms into this frame's triple-buffered input lane,
// keyed by frameID mod atomInputLanes, so a caller's FrameProvider is free
// to reuse its own backing array across calls without aliasing a lane that
// a previous frame's downstream stages might still be reading.
func (d *Driver) stageAtoms(frameID uint64, atoms []scene.Atom) []scene.Atom {
	lane := int(frameID % atomInputLanes)
	buf := append(d.atomLanes[lane][:0], atoms...)
	d.atomLanes[lane] = buf
	return buf
}

// nextParity returns the output-texture slot RenderFrame should write to
// next: the one not currently presented.
func (d *Driver) nextParity() int { return 1 - d.parity }

// dropFrame logs and records a fatal frame failure, then returns whichever
// output texture is still the presented one so the caller can keep showing
// it rather than a half-built frame.
func (d *Driver) dropFrame(frameID uint64, stages StageDurations, err *DriverError) (*shade.Output, error) {
	d.logger.Errorf("frame %d dropped: %v", frameID, err)
	d.recordReport(FrameReport{FrameID: frameID, Stages: stages, Dropped: true, Err: err})
	return d.outputs[d.parity], err
}

// recordReport pushes a report onto the ring buffer, evicting the oldest
// entry once frameReportCapacity is exceeded.
func (d *Driver) recordReport(r FrameReport) {
	d.reports.PushBack(r)
	if d.reports.Len() > frameReportCapacity {
		d.reports.PopFront()
	}
}

// wrapPreprocessError classifies a preprocess.Run failure into the driver's
// CapacityExceeded/EmptyWorld kinds, matching on the package's sentinel
// errors rather than redefining them.
func wrapPreprocessError(err error) *DriverError {
	switch {
	case errors.Is(err, preprocess.ErrCapacityExceededAtoms):
		return &DriverError{Kind: CapacityExceeded, Resource: ResourceAtoms, Cause: err}
	case errors.Is(err, preprocess.ErrCapacityExceededReferences):
		return &DriverError{Kind: CapacityExceeded, Resource: ResourceReferences, Cause: err}
	case errors.Is(err, preprocess.ErrEmptyWorld):
		return &DriverError{Kind: EmptyWorld, Cause: err}
	default:
		return &DriverError{Kind: BackendError, Cause: err}
	}
}

// wrapBackendError classifies a shade.Shade failure. In the current
// pipeline shade.Shade only ever returns an error shadePixel could not
// absorb per-pixel, so this always reports BackendError in practice; the
// *traverse.FaultError case is kept so a future backend that surfaces a
// whole-frame traversal fault (as opposed to the per-pixel marker-color
// path already handled inside shade) classifies correctly without another
// edit here.
func wrapBackendError(err error) *DriverError {
	var faultErr *traverse.FaultError
	if errors.As(err, &faultErr) {
		return &DriverError{Kind: TraversalFault, Code: faultErr.Code, Cause: err}
	}
	return &DriverError{Kind: BackendError, Cause: err}
}

func errBuildNotReady(s bvh.State) error {
	return notReadyError{state: s}
}

type notReadyError struct{ state bvh.State }

func (e notReadyError) Error() string {
	return "grid builder stopped before reaching the ready state (state " + e.state.String() + ")"
}
