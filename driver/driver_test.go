package driver

import (
	"errors"
	"testing"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/shade"
	"github.com/achilleasa/go-atomtrace/types"
)

// driverTestConfig uses a world edge whose half-extent (4) is itself a
// multiple of the large-voxel edge (2), so the preprocessor's snap/clamp
// step never produces a boundary that splits a large voxel.
func driverTestConfig() config.Config {
	cfg := config.Default()
	cfg.WorldEdgeNM = 8
	cfg.LargeVoxelNM = 2
	cfg.SmallVoxelNM = 0.5
	cfg.TextureSize = 1
	cfg.FaultLimit = 64
	cfg.AOSamples = 4
	cfg.AOCutoffNM = 1.433
	cfg.MaxAtoms = 16
	cfg.MaxReferences = 4096
	return cfg
}

func centeredCamera(position types.Vec3) scene.Camera {
	return scene.Camera{Position: position, Basis: types.Ident3(), FOVMultiplier: 1}
}

// singleCarbonAtomAtOrigin is a single carbon atom at the world origin,
// expressed in the caller's absolute coordinate frame (the frame
// RenderFrame's camera argument is also given in).
func singleCarbonAtomAtOrigin() []scene.Atom {
	return []scene.Atom{{Position: types.XYZ(0, 0, 0), Element: 6}}
}

// cameraAboveOrigin sits inside the world volume (not on a grid boundary,
// which would put the outer DDA's starting cell one step out of bounds)
// looking down -z at the atom placed by singleCarbonAtomAtOrigin.
func cameraAboveOrigin() scene.Camera {
	return centeredCamera(types.XYZ(0, 0, 1.5))
}

func TestRenderFrameAdvancesFrameCounterAndRecordsReport(t *testing.T) {
	d := New(driverTestConfig(), scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	out, err := d.RenderFrame(singleCarbonAtomAtOrigin(), cameraAboveOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a non-nil output")
	}
	if d.FrameCounter() != 1 {
		t.Fatalf("frame counter = %d, want 1", d.FrameCounter())
	}

	reports := d.Reports()
	if len(reports) != 1 {
		t.Fatalf("expected 1 frame report, got %d", len(reports))
	}
	if reports[0].Dropped {
		t.Fatalf("expected a successful frame report")
	}
}

func TestRenderFrameHitsAtomAndReportsExpectedDepthAndColor(t *testing.T) {
	d := New(driverTestConfig(), scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	out, err := d.RenderFrame(singleCarbonAtomAtOrigin(), cameraAboveOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Camera at absolute z=1.5 looking at a carbon atom (table radius
	// 0.17nm) centered at the origin: near-surface distance 1.5-0.17.
	const wantDepth = float32(1.33)
	if d := out.Depth[0]; approxAbs(d-wantDepth) > 0.02 {
		t.Fatalf("depth = %v, want ~%v", d, wantDepth)
	}

	wantColor := shade.DefaultElementColors()[6]
	r, g, b := out.Color[0].Float32(), out.Color[1].Float32(), out.Color[2].Float32()
	if approxAbs(r-wantColor[0]) > 0.05 || approxAbs(g-wantColor[1]) > 0.05 || approxAbs(b-wantColor[2]) > 0.05 {
		t.Fatalf("color = (%v,%v,%v), want ~%v (unoccluded, head-on diffuse)", r, g, b, wantColor)
	}
}

func TestRenderFrameSecondFrameReusesPreviousCameraForMotion(t *testing.T) {
	d := New(driverTestConfig(), scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	camera := cameraAboveOrigin()
	if _, err := d.RenderFrame(singleCarbonAtomAtOrigin(), camera); err != nil {
		t.Fatalf("frame 1: unexpected error: %v", err)
	}

	out, err := d.RenderFrame(singleCarbonAtomAtOrigin(), camera)
	if err != nil {
		t.Fatalf("frame 2: unexpected error: %v", err)
	}
	// Identical atoms and camera across frames: the same AABB gets
	// snapped both times, so the hit pixel should reproject to (almost)
	// the same location, i.e. ~zero motion.
	if approxAbs(out.Motion[0].Float32()) > 0.5 || approxAbs(out.Motion[1].Float32()) > 0.5 {
		t.Fatalf("expected near-zero motion for a static camera; got (%v, %v)", out.Motion[0].Float32(), out.Motion[1].Float32())
	}
}

func TestRenderFrameEmptyWorldDropsFrameWithTypedError(t *testing.T) {
	d := New(driverTestConfig(), scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	_, err := d.RenderFrame(nil, cameraAboveOrigin())
	if err == nil {
		t.Fatalf("expected an error for an empty atom set")
	}
	var driverErr *DriverError
	if !errors.As(err, &driverErr) {
		t.Fatalf("expected a *DriverError, got %T: %v", err, err)
	}
	if driverErr.Kind != EmptyWorld {
		t.Fatalf("expected Kind EmptyWorld, got %v", driverErr.Kind)
	}

	reports := d.Reports()
	if len(reports) != 1 || !reports[0].Dropped {
		t.Fatalf("expected a single dropped frame report, got %+v", reports)
	}
}

func TestRenderFrameCapacityExceededAtomsIsFatalAndAdvises(t *testing.T) {
	cfg := driverTestConfig()
	cfg.MaxAtoms = 1
	d := New(cfg, scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	atoms := []scene.Atom{
		{Position: types.XYZ(0, 0, 0), Element: 6},
		{Position: types.XYZ(0, 0, 1), Element: 6},
	}
	_, err := d.RenderFrame(atoms, cameraAboveOrigin())
	var driverErr *DriverError
	if !errors.As(err, &driverErr) {
		t.Fatalf("expected a *DriverError, got %T: %v", err, err)
	}
	if driverErr.Kind != CapacityExceeded {
		t.Fatalf("expected Kind CapacityExceeded, got %v", driverErr.Kind)
	}
	if driverErr.Resource != ResourceAtoms {
		t.Fatalf("expected Resource atoms, got %v", driverErr.Resource)
	}
	if driverErr.Advice() == "" {
		t.Fatalf("expected CapacityExceeded to carry remediation advice")
	}
}

func TestRenderFrameDroppedFramePresentsPreviousOutput(t *testing.T) {
	d := New(driverTestConfig(), scene.DefaultElementRadii(), shade.DefaultElementColors(), 1)

	camera := cameraAboveOrigin()
	first, err := d.RenderFrame(singleCarbonAtomAtOrigin(), camera)
	if err != nil {
		t.Fatalf("frame 1: unexpected error: %v", err)
	}

	second, err := d.RenderFrame(nil, camera)
	if err == nil {
		t.Fatalf("expected frame 2 (empty atom set) to fail")
	}
	if second != first {
		t.Fatalf("expected a dropped frame to return the previously presented output")
	}
}

// countingGridBuilder wraps a bvh.Builder and counts Build calls, standing
// in for an alternate compute.GridBuilder (e.g. compute/cl.Backend) so
// WithGridBuilder's selection can be exercised without an opencl device.
type countingGridBuilder struct {
	inner *bvh.Builder
	calls int
}

func (c *countingGridBuilder) Build(atoms []scene.ConvertedAtom, bounds scene.WorldBounds) (*bvh.Grid, error) {
	c.calls++
	return c.inner.Build(atoms, bounds)
}

func (c *countingGridBuilder) State() bvh.State { return c.inner.State() }

func TestWithGridBuilderOverridesTheHostBuilder(t *testing.T) {
	cfg := driverTestConfig()
	alt := &countingGridBuilder{inner: bvh.New(cfg)}

	d := New(cfg, scene.DefaultElementRadii(), shade.DefaultElementColors(), 1, WithGridBuilder(alt))

	out, err := d.RenderFrame(singleCarbonAtomAtOrigin(), cameraAboveOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a non-nil output")
	}
	if alt.calls != 1 {
		t.Fatalf("expected the overriding builder to be called once, got %d", alt.calls)
	}
}

func approxAbs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
