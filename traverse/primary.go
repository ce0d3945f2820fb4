package traverse

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

// fillBatchSize mirrors the device kernel's K=16 cooperative subgroup fill
// width: candidate atom references are gathered into batches of this size
// before being tested, the same granularity a SIMD subgroup would share.
const fillBatchSize = 16

// Hit is the result of a traversal: the index into the frame's converted
// atom set of the nearest intersected sphere, or Miss if none was found.
type Hit struct {
	AtomIndex int32
	Distance  float32
}

// Miss is the zero-value "no hit" result.
var Miss = Hit{AtomIndex: -1}

// Primary traces a single coherent primary ray through the grid, returning
// the nearest atom it intersects. It returns a *FaultError, without a
// partial result, if either the outer (large-voxel) or inner (small-voxel)
// DDA loop exceeds cfg.FaultLimit iterations before converging.
//
// The device kernel resolves this by cooperatively filling a K=16-wide
// scratchpad of candidate atom references across a subgroup before
// draining it with independent ray-sphere tests, coalescing memory traffic
// across lanes tracing similar rays. This host-side reference walks the
// same two-level grid and batches each small voxel's references into
// fillBatchSize groups before testing them, producing the identical
// nearest-hit result a subgroup-coherent device traversal would.
func Primary(grid *bvh.Grid, atoms []scene.ConvertedAtom, cfg config.Config, origin, dir types.Vec3) (Hit, error) {
	worldSize := types.XYZ(
		float32(grid.LargeGridDim[0])*cfg.LargeVoxelNM,
		float32(grid.LargeGridDim[1])*cfg.LargeVoxelNM,
		float32(grid.LargeGridDim[2])*cfg.LargeVoxelNM,
	)

	tEntry, tExit, ok := rayBoxEntry(origin, dir, worldSize)
	if !ok || tExit < 0 {
		return Miss, nil
	}
	if tEntry > 0 {
		origin = origin.Add(dir.Mul(tEntry + epsilon))
	}

	best := Miss
	outer := NewDDA(origin, dir, cfg.LargeVoxelNM)

	smallPerLarge := cfg.SmallPerLarge()
	smallBlock := int(smallPerLarge * smallPerLarge * smallPerLarge)

	for steps := 0; ; steps++ {
		if steps > int(cfg.FaultLimit) {
			return Miss, &FaultError{Code: FaultOuterPrimary}
		}
		if !outer.Cell.InBounds(grid.LargeGridDim) {
			break
		}

		if grid.GroupOccupied(outer.Cell) {
			largeIdx := outer.Cell.Linear(grid.LargeGridDim)
			meta := grid.LargeCells[largeIdx]
			if !meta.Empty() {
				hit, err := traceSmallVoxels(grid, atoms, meta, outer.Cell, cfg.LargeVoxelNM, cfg.SmallVoxelNM, smallPerLarge, smallBlock, origin, dir, cfg.FaultLimit)
				if err != nil {
					return Miss, err
				}
				if hit.AtomIndex >= 0 && (best.AtomIndex < 0 || hit.Distance < best.Distance) {
					best = hit
				}
			}
		}

		_, t := outer.Advance()
		if best.AtomIndex >= 0 && t > best.Distance {
			break
		}
	}

	return best, nil
}

// traceSmallVoxels runs the inner DDA over one occupied large cell's
// SmallPerLarge^3 small voxels, testing every atom referenced by each
// voxel the ray crosses, in fillBatchSize-sized batches.
func traceSmallVoxels(
	grid *bvh.Grid,
	atoms []scene.ConvertedAtom,
	meta bvh.LargeCellMeta,
	largeCell types.Vec3i,
	largeEdge, smallEdge float32,
	smallPerLarge int32,
	smallBlock int,
	rayOrigin, dir types.Vec3,
	faultLimit uint32,
) (Hit, error) {
	largeCellMin := types.XYZ(
		float32(largeCell[0])*largeEdge,
		float32(largeCell[1])*largeEdge,
		float32(largeCell[2])*largeEdge,
	)
	localOrigin := rayOrigin.Sub(largeCellMin)
	smallDims := types.XYZi(smallPerLarge, smallPerLarge, smallPerLarge)

	// rayOrigin is the single global ray origin the outer DDA is walking,
	// not the point where the ray actually enters this large voxel; for
	// every large cell but the one the ray starts in, localOrigin sits
	// outside [0, largeEdge)^3 on at least one axis, which would seed the
	// inner DDA at a cell outside smallDims and break on step 0 without
	// testing an atom. Advance localOrigin to this voxel's entry point
	// first, keeping track of the ray parameter spent doing so (bias) so
	// the inner loop's early-exit check still compares against the same
	// global distances testBatches returns.
	largeSize := types.XYZ(largeEdge, largeEdge, largeEdge)
	tEntry, tExit, ok := rayBoxEntry(localOrigin, dir, largeSize)
	if !ok || tExit < 0 {
		return Miss, nil
	}
	var bias float32
	if tEntry > 0 {
		bias = tEntry + epsilon
		localOrigin = localOrigin.Add(dir.Mul(bias))
	}

	compacted := int(meta.CompactedIndex - 1)
	base := compacted * smallBlock

	best := Miss
	inner := NewDDA(localOrigin, dir, smallEdge)

	for steps := 0; ; steps++ {
		if steps > int(faultLimit) {
			return Miss, &FaultError{Code: FaultInnerPrimary}
		}
		if !inner.Cell.InBounds(smallDims) {
			break
		}

		localIdx := inner.Cell.Linear(smallDims)
		cellMeta := grid.SmallCells[base+localIdx]
		if cellMeta.Count > 0 {
			refBase := meta.SmallReferenceBase + uint32(cellMeta.Offset)
			refs := grid.SmallAtomReferences[refBase : refBase+uint32(cellMeta.Count)]
			hit := testBatches(refs, atoms, rayOrigin, dir)
			if hit.AtomIndex >= 0 && (best.AtomIndex < 0 || hit.Distance < best.Distance) {
				best = hit
			}
		}

		_, t := inner.Advance()
		if best.AtomIndex >= 0 && t+bias > best.Distance {
			break
		}
	}

	return best, nil
}

// testBatches tests every referenced atom against the ray, fillBatchSize
// references at a time, returning the nearest hit.
func testBatches(refs []uint32, atoms []scene.ConvertedAtom, origin, dir types.Vec3) Hit {
	best := Miss
	for start := 0; start < len(refs); start += fillBatchSize {
		end := start + fillBatchSize
		if end > len(refs) {
			end = len(refs)
		}
		for _, ref := range refs[start:end] {
			atom := atoms[ref]
			t, ok := testCell(origin, dir, atom.Position, atom.Radius.Float32())
			if ok && (best.AtomIndex < 0 || t < best.Distance) {
				best = Hit{AtomIndex: int32(ref), Distance: t}
			}
		}
	}
	return best
}

// rayBoxEntry is the standard slab test against the axis-aligned box
// [0, size]. It returns the entry/exit ray parameters and whether the ray
// intersects the box at all.
func rayBoxEntry(origin, dir, size types.Vec3) (tEntry, tExit float32, hit bool) {
	tEntry = math32.Inf(-1)
	tExit = math32.Inf(1)

	for axis := 0; axis < 3; axis++ {
		if dir[axis] > -epsilon && dir[axis] < epsilon {
			if origin[axis] < 0 || origin[axis] > size[axis] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / dir[axis]
		t0 := (0 - origin[axis]) * inv
		t1 := (size[axis] - origin[axis]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tEntry {
			tEntry = t0
		}
		if t1 < tExit {
			tExit = t1
		}
	}

	if tEntry > tExit {
		return 0, 0, false
	}
	return tEntry, tExit, true
}
