package cmd

import (
	"fmt"
	"math/rand"

	"github.com/urfave/cli"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/compute"
	"github.com/achilleasa/go-atomtrace/compute/cl"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/preprocess"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

// Debug builds a grid over a synthetic atom set and checks the compacted
// large-cell table against I3 (compacted_index == 0 iff atom_ref_count == 0)
// and the density part of I5 (compacted indices are dense, unique and agree
// with the dense table; there are no holes). The order of the compacted
// entries in large-cell linear order is not checked. It exists to catch a broken eight-lane-counter
// collapse before it ever reaches a shaded pixel. -device runs the same
// checks against an opencl device's grid-build output instead of the host
// reference builder, by device name substring (see findDevice).
func Debug(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg := config.Default()
	cfg.WorldEdgeNM = float32(ctx.Float64("world-edge"))
	if err := cfg.Validate(); err != nil {
		return err
	}

	n := ctx.Int("atoms")
	atoms := randomAtoms(n, cfg.WorldEdgeNM*0.4, rand.New(rand.NewSource(1)))
	logger.Infof("checking a %d-atom random scattering against a %gnm world", len(atoms), cfg.WorldEdgeNM)

	pre := preprocess.New(cfg, scene.DefaultElementRadii())
	result, err := pre.Run(atoms)
	if err != nil {
		logger.Error(err)
		return err
	}

	var builder compute.GridBuilder = bvh.New(cfg)
	if name := ctx.String("device"); name != "" {
		dev, err := findDevice([]string{name})
		if err != nil {
			logger.Error(err)
			return err
		}
		backend := cl.New(cfg, dev)
		if err := backend.Init(); err != nil {
			logger.Error(err)
			return err
		}
		defer backend.Close()
		logger.Infof("checking opencl device %q instead of the host reference builder", dev.Name)
		builder = backend
	}

	grid, err := builder.Build(result.Converted, result.Bounds)
	if err != nil {
		logger.Error(err)
		return err
	}
	if builder.State() != bvh.Ready {
		err := fmt.Errorf("grid builder stopped before reaching the ready state (state %v)", builder.State())
		logger.Error(err)
		return err
	}

	if err := checkCompactedLargeCells(grid); err != nil {
		logger.Error(err)
		return err
	}

	logger.Noticef("ok: %d occupied large cells, %d dense entries, invariants I3/I5 hold", grid.OccupiedCount, len(grid.CompactedLargeCells))
	return nil
}

// randomAtoms scatters n carbon atoms uniformly inside [-halfExtent,
// halfExtent]^3.
func randomAtoms(n int, halfExtent float32, rng *rand.Rand) []scene.Atom {
	atoms := make([]scene.Atom, n)
	for i := range atoms {
		atoms[i] = scene.Atom{
			Position: types.XYZ(
				(rng.Float32()*2-1)*halfExtent,
				(rng.Float32()*2-1)*halfExtent,
				(rng.Float32()*2-1)*halfExtent,
			),
			Element: 6,
		}
	}
	return atoms
}

// checkCompactedLargeCells verifies I3 and I5 over a built grid: every dense
// LargeCellMeta entry's emptiness must agree with its atom reference count,
// and the compacted table must be dense with no holes and no duplicate
// slots, each slot i naming a large cell whose dense CompactedIndex is i+1.
// Whether the slots follow large-cell linear order is not checked.
func checkCompactedLargeCells(grid *bvh.Grid) error {
	for i, meta := range grid.LargeCells {
		emptyByIndex := meta.Empty()
		emptyByCount := meta.AtomRefCount() == 0
		if emptyByIndex != emptyByCount {
			return fmt.Errorf("I3 violated at dense large cell %d: compacted_index==0 is %v but atom_ref_count==0 is %v", i, emptyByIndex, emptyByCount)
		}
	}

	seen := make(map[uint32]bool, len(grid.CompactedLargeCells))
	for i, cell := range grid.CompactedLargeCells {
		wantIndex := uint32(i + 1)
		if meta := grid.LargeCells[denseIndexFor(grid, cell.Coord)]; meta.CompactedIndex != wantIndex {
			return fmt.Errorf("I5 violated: compacted slot %d holds large cell %v whose dense CompactedIndex is %d, want %d", i, bvh.UnpackCoord(cell.Coord), meta.CompactedIndex, wantIndex)
		}
		if seen[cell.Coord] {
			return fmt.Errorf("I5 violated: large cell %v appears more than once in the compacted table", bvh.UnpackCoord(cell.Coord))
		}
		seen[cell.Coord] = true
	}

	if uint32(len(grid.CompactedLargeCells)) != grid.OccupiedCount {
		return fmt.Errorf("I5 violated: compacted table holds %d entries but OccupiedCount is %d", len(grid.CompactedLargeCells), grid.OccupiedCount)
	}

	return nil
}

// denseIndexFor returns the dense LargeCells index for a packed large-voxel
// coordinate, using the same row-major linearization the builder fills
// LargeCells in.
func denseIndexFor(grid *bvh.Grid, packedCoord uint32) int {
	c := bvh.UnpackCoord(packedCoord)
	return c.Linear(grid.LargeGridDim)
}
