package shade

import (
	"testing"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

func shadeTestConfig() config.Config {
	cfg := config.Default()
	cfg.WorldEdgeNM = 6
	cfg.LargeVoxelNM = 2
	cfg.SmallVoxelNM = 0.5
	cfg.TextureSize = 1
	cfg.FaultLimit = 64
	cfg.AOSamples = 4
	cfg.AOCutoffNM = 1.433
	return cfg
}

func buildShadeGrid(t *testing.T, cfg config.Config, atoms []scene.ConvertedAtom) *bvh.Grid {
	t.Helper()
	b := bvh.New(cfg)
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(cfg.WorldEdgeNM, cfg.WorldEdgeNM, cfg.WorldEdgeNM)}
	grid, err := b.Build(atoms, bounds)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return grid
}

func centeredCamera(position types.Vec3) scene.Camera {
	return scene.Camera{
		Position:      position,
		Basis:         types.Ident3(),
		FOVMultiplier: 1,
	}
}

func TestShadeSingleAtomCenterPixelDepth(t *testing.T) {
	cfg := shadeTestConfig()
	atoms := []scene.ConvertedAtom{{Position: types.XYZ(3, 3, 2), Radius: types.HalfFromFloat32(0.5), Element: 6}}
	grid := buildShadeGrid(t, cfg, atoms)

	camera := centeredCamera(types.XYZ(3, 3, 5))
	out, err := Shade(grid, atoms, cfg, DefaultElementColors(), camera, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	depth := out.Depth[0]
	if want := float32(2.5); depth < want-1e-2 || depth > want+1e-2 {
		t.Fatalf("depth = %v, want ~%v", depth, want)
	}

	r, g, b := out.Color[0].Float32(), out.Color[1].Float32(), out.Color[2].Float32()
	wantColor := DefaultElementColors()[6]
	if approxAbs(r-wantColor[0]) > 0.05 || approxAbs(g-wantColor[1]) > 0.05 || approxAbs(b-wantColor[2]) > 0.05 {
		t.Fatalf("color = (%v,%v,%v), want ~%v (unoccluded, head-on diffuse)", r, g, b, wantColor)
	}
}

func TestShadeMissProducesInfiniteDepthAndTransparentColor(t *testing.T) {
	cfg := shadeTestConfig()
	atoms := []scene.ConvertedAtom{{Position: types.XYZ(3, 3, 2), Radius: types.HalfFromFloat32(0.5), Element: 6}}
	grid := buildShadeGrid(t, cfg, atoms)

	// Look the opposite direction, away from the atom.
	camera := centeredCamera(types.XYZ(3, 3, 5))
	camera.Basis = types.Basis3(types.XYZ(1, 0, 0), types.XYZ(0, 1, 0), types.XYZ(0, 0, -1))
	out, err := Shade(grid, atoms, cfg, DefaultElementColors(), camera, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Depth[0] < 1e30 {
		t.Fatalf("expected an effectively infinite depth for a miss; got %v", out.Depth[0])
	}
	if out.Color[3].Float32() != 0 {
		t.Fatalf("expected alpha 0 for a miss; got %v", out.Color[3].Float32())
	}
}

func TestShadeCameraInsideAtomMisses(t *testing.T) {
	cfg := shadeTestConfig()
	atoms := []scene.ConvertedAtom{{Position: types.XYZ(3, 3, 3), Radius: types.HalfFromFloat32(0.5), Element: 6}}
	grid := buildShadeGrid(t, cfg, atoms)

	// Camera sits at the atom's center, well inside its radius; prefer a
	// miss over flickering between the atom's near and far surface.
	camera := centeredCamera(types.XYZ(3, 3, 3))
	out, err := Shade(grid, atoms, cfg, DefaultElementColors(), camera, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Depth[0] < 1e30 {
		t.Fatalf("expected an effectively infinite depth for a camera inside the atom; got %v", out.Depth[0])
	}
	if out.Color[3].Float32() != 0 {
		t.Fatalf("expected alpha 0 for a camera inside the atom; got %v", out.Color[3].Float32())
	}
}

func TestShadeZeroMotionWithoutPreviousCamera(t *testing.T) {
	cfg := shadeTestConfig()
	atoms := []scene.ConvertedAtom{{Position: types.XYZ(3, 3, 2), Radius: types.HalfFromFloat32(0.5), Element: 6}}
	grid := buildShadeGrid(t, cfg, atoms)

	camera := centeredCamera(types.XYZ(3, 3, 5))
	out, err := Shade(grid, atoms, cfg, DefaultElementColors(), camera, nil, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Motion[0] != 0 || out.Motion[1] != 0 {
		t.Fatalf("expected zero motion with no previous camera; got (%v, %v)", out.Motion[0].Float32(), out.Motion[1].Float32())
	}
}

func TestReprojectRoundTripsThroughPrimaryRay(t *testing.T) {
	camera := scene.Camera{
		Position:      types.XYZ(2, 2, 4),
		Basis:         types.Ident3(),
		FOVMultiplier: 0.05,
	}
	const n = 64
	px, py := 20, 40
	origin, dir := camera.PrimaryRay(px, py, n)
	worldPoint := origin.Add(dir.Mul(5))

	gotX, gotY, ok := reproject(camera, worldPoint, n)
	if !ok {
		t.Fatalf("expected reproject to succeed for a point in front of the camera")
	}
	if approxAbs(gotX-float32(px)) > 1e-2 || approxAbs(gotY-float32(py)) > 1e-2 {
		t.Fatalf("reproject(%v) = (%v, %v), want ~(%v, %v)", worldPoint, gotX, gotY, px, py)
	}
}

func approxAbs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
