package cmd

import (
	"math/rand"
	"testing"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/preprocess"
	"github.com/achilleasa/go-atomtrace/scene"
)

func debugTestConfig() config.Config {
	cfg := config.Default()
	cfg.WorldEdgeNM = 16
	cfg.LargeVoxelNM = 2
	cfg.SmallVoxelNM = 0.5
	cfg.MaxAtoms = 4096
	cfg.MaxReferences = 1 << 20
	return cfg
}

func TestCheckCompactedLargeCellsAcceptsAWellFormedGrid(t *testing.T) {
	cfg := debugTestConfig()
	atoms := randomAtoms(200, cfg.WorldEdgeNM*0.4, rand.New(rand.NewSource(42)))

	pre := preprocess.New(cfg, scene.DefaultElementRadii())
	result, err := pre.Run(atoms)
	if err != nil {
		t.Fatalf("unexpected preprocess error: %v", err)
	}

	grid, err := bvh.New(cfg).Build(result.Converted, result.Bounds)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}

	if err := checkCompactedLargeCells(grid); err != nil {
		t.Fatalf("expected a freshly built grid to satisfy I3/I5: %v", err)
	}
}

func TestCheckCompactedLargeCellsCatchesAMissingCompactedEntry(t *testing.T) {
	cfg := debugTestConfig()
	atoms := randomAtoms(50, cfg.WorldEdgeNM*0.4, rand.New(rand.NewSource(7)))

	pre := preprocess.New(cfg, scene.DefaultElementRadii())
	result, err := pre.Run(atoms)
	if err != nil {
		t.Fatalf("unexpected preprocess error: %v", err)
	}

	grid, err := bvh.New(cfg).Build(result.Converted, result.Bounds)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if len(grid.CompactedLargeCells) == 0 {
		t.Fatalf("expected at least one occupied large cell in this fixture")
	}

	// Drop the last compacted entry without correcting OccupiedCount, the
	// same failure shape a broken counter collapse would produce: a
	// compacted table shorter than the dense table's occupied set.
	grid.CompactedLargeCells = grid.CompactedLargeCells[:len(grid.CompactedLargeCells)-1]

	if err := checkCompactedLargeCells(grid); err == nil {
		t.Fatalf("expected a hole in the compacted table to be detected")
	}
}

func TestCheckCompactedLargeCellsCatchesADuplicateEntry(t *testing.T) {
	cfg := debugTestConfig()
	atoms := randomAtoms(50, cfg.WorldEdgeNM*0.4, rand.New(rand.NewSource(7)))

	pre := preprocess.New(cfg, scene.DefaultElementRadii())
	result, err := pre.Run(atoms)
	if err != nil {
		t.Fatalf("unexpected preprocess error: %v", err)
	}

	grid, err := bvh.New(cfg).Build(result.Converted, result.Bounds)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	if len(grid.CompactedLargeCells) == 0 {
		t.Fatalf("expected at least one occupied large cell in this fixture")
	}

	grid.CompactedLargeCells = append(grid.CompactedLargeCells, grid.CompactedLargeCells[0])

	if err := checkCompactedLargeCells(grid); err == nil {
		t.Fatalf("expected a duplicate compacted entry to be detected")
	}
}

func TestRandomAtomsProducesRequestedCountWithinExtent(t *testing.T) {
	atoms := randomAtoms(64, 3.0, rand.New(rand.NewSource(1)))
	if len(atoms) != 64 {
		t.Fatalf("expected 64 atoms, got %d", len(atoms))
	}
	for _, a := range atoms {
		for axis := 0; axis < 3; axis++ {
			if a.Position[axis] < -3.0 || a.Position[axis] > 3.0 {
				t.Fatalf("atom position %v out of requested extent", a.Position)
			}
		}
	}
}
