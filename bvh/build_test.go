package bvh

import (
	"testing"

	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.WorldEdgeNM = 8
	cfg.LargeVoxelNM = 2
	cfg.SmallVoxelNM = 0.5
	return cfg
}

func convertedAtom(x, y, z, radius float32) scene.ConvertedAtom {
	return scene.ConvertedAtom{
		Position: types.XYZ(x, y, z),
		Radius:   types.HalfFromFloat32(radius),
		Element:  6,
	}
}

func TestBuildSingleAtomIsReferencedAndCompacted(t *testing.T) {
	cfg := smallConfig()
	b := New(cfg)

	atoms := []scene.ConvertedAtom{convertedAtom(1, 1, 1, 0.3)}
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(8, 8, 8)}

	grid, err := b.Build(atoms, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != Ready {
		t.Fatalf("expected builder to end in Ready state; got %v", b.State())
	}
	if grid.OccupiedCount == 0 {
		t.Fatalf("expected at least one occupied large cell")
	}
	if len(grid.CompactedLargeCells) != int(grid.OccupiedCount) {
		t.Fatalf("compacted table length %d does not match occupied count %d", len(grid.CompactedLargeCells), grid.OccupiedCount)
	}

	// I3: every compacted cell must report at least one atom reference.
	for _, cc := range grid.CompactedLargeCells {
		if cc.AtomRefCount() == 0 {
			t.Fatalf("compacted cell has zero atom references")
		}
	}

	// P2: the atom's own large cell must list it exactly once.
	found := 0
	for _, ref := range grid.LargeAtomReferences {
		if ref == 0 {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected exactly one large reference to atom 0; found %d", found)
	}
}

func TestBuildCompactedIndicesAreDenseAndOneBased(t *testing.T) {
	cfg := smallConfig()
	b := New(cfg)

	atoms := []scene.ConvertedAtom{
		convertedAtom(0.5, 0.5, 0.5, 0.2),
		convertedAtom(6.5, 6.5, 6.5, 0.2),
	}
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(8, 8, 8)}

	grid, err := b.Build(atoms, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[uint32]bool)
	for _, meta := range grid.LargeCells {
		if meta.Empty() {
			continue
		}
		if meta.CompactedIndex == 0 {
			t.Fatalf("occupied cell reported CompactedIndex 0")
		}
		if seen[meta.CompactedIndex] {
			t.Fatalf("duplicate compacted index %d", meta.CompactedIndex)
		}
		seen[meta.CompactedIndex] = true
	}
	if uint32(len(seen)) != grid.OccupiedCount {
		t.Fatalf("expected %d distinct compacted indices; saw %d", grid.OccupiedCount, len(seen))
	}
	for idx := uint32(1); idx <= grid.OccupiedCount; idx++ {
		if !seen[idx] {
			t.Fatalf("compacted index sequence has a hole at %d", idx)
		}
	}
}

func TestBuildSmallReferencesCoverEveryOverlappedVoxel(t *testing.T) {
	cfg := smallConfig()
	b := New(cfg)

	// A single atom whose radius spans multiple small voxels inside one
	// large cell.
	atoms := []scene.ConvertedAtom{convertedAtom(1, 1, 1, 0.8)}
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(8, 8, 8)}

	grid, err := b.Build(atoms, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	smallPerLarge := cfg.SmallPerLarge()
	smallBlock := int(smallPerLarge * smallPerLarge * smallPerLarge)

	totalSmallRefs := 0
	for cell := 0; cell < int(grid.OccupiedCount); cell++ {
		base := cell * smallBlock
		for s := 0; s < smallBlock; s++ {
			totalSmallRefs += int(grid.SmallCells[base+s].Count)
		}
	}
	if totalSmallRefs == 0 {
		t.Fatalf("expected at least one small-voxel reference for a 0.8nm-radius atom")
	}
	if totalSmallRefs != len(grid.SmallAtomReferences) {
		t.Fatalf("sum of small cell counts (%d) does not match emitted reference count (%d)", totalSmallRefs, len(grid.SmallAtomReferences))
	}
	for _, ref := range grid.SmallAtomReferences {
		if ref != 0 {
			t.Fatalf("expected every small reference to point at atom 0; got %d", ref)
		}
	}
}

func TestBuildLargeCellMetaSmallReferenceBaseMatchesCompactedEntry(t *testing.T) {
	cfg := smallConfig()
	b := New(cfg)

	atoms := []scene.ConvertedAtom{convertedAtom(1, 1, 1, 0.8)}
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(8, 8, 8)}

	grid, err := b.Build(atoms, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for cellIdx, meta := range grid.LargeCells {
		if meta.Empty() {
			continue
		}
		cc := grid.CompactedLargeCells[meta.CompactedIndex-1]
		if meta.SmallReferenceBase != cc.SmallReferenceBase {
			t.Fatalf("dense cell %d: SmallReferenceBase %d does not match compacted entry %d", cellIdx, meta.SmallReferenceBase, cc.SmallReferenceBase)
		}
		if meta.SmallRefCount() != cc.SmallRefCount() {
			t.Fatalf("dense cell %d: SmallRefCount %d does not match compacted entry %d", cellIdx, meta.SmallRefCount(), cc.SmallRefCount())
		}
	}
}

func TestBuildEmptyAtomSetProducesEmptyGrid(t *testing.T) {
	cfg := smallConfig()
	b := New(cfg)
	bounds := scene.WorldBounds{Min: types.XYZ(0, 0, 0), Max: types.XYZ(8, 8, 8)}

	grid, err := b.Build(nil, bounds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grid.OccupiedCount != 0 {
		t.Fatalf("expected no occupied cells for an empty atom set; got %d", grid.OccupiedCount)
	}
	if len(grid.LargeAtomReferences) != 0 || len(grid.SmallAtomReferences) != 0 {
		t.Fatalf("expected no references for an empty atom set")
	}
}

func TestCubeOverlapsSphere(t *testing.T) {
	cases := []struct {
		name    string
		center  types.Vec3
		radius  float32
		cellMin types.Vec3
		edge    float32
		want    bool
	}{
		{"sphere centered inside cell", types.XYZ(1, 1, 1), 0.1, types.XYZ(0, 0, 0), 2, true},
		{"sphere touching cell corner", types.XYZ(-0.5, -0.5, -0.5), 0.867, types.XYZ(0, 0, 0), 2, true},
		{"sphere far from cell", types.XYZ(-10, -10, -10), 0.1, types.XYZ(0, 0, 0), 2, false},
		{"sphere exactly at cutoff", types.XYZ(2.5, 1, 1), 0.5, types.XYZ(0, 0, 0), 2, true},
		{"sphere just short of cutoff", types.XYZ(2.6, 1, 1), 0.5, types.XYZ(0, 0, 0), 2, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := CubeOverlapsSphere(c.center, c.radius, c.cellMin, c.edge)
			if got != c.want {
				t.Fatalf("CubeOverlapsSphere() = %v, want %v", got, c.want)
			}
		})
	}
}
