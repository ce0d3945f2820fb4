package traverse

import (
	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

// AOHit reports whether an ambient-occlusion probe ray was occluded before
// reaching cutoff.
type AOHit struct {
	Occluded bool
	Distance float32
}

// AO traces a single short ambient-occlusion probe ray and reports whether
// it hits any atom before cfg.AOCutoffNM. Unlike Primary, AO rays are too
// short to make the large-voxel group-occupancy cache worth consulting: it
// walks the small-voxel grid directly, looking up each small voxel's owning
// large cell to find its atom references, stopping as soon as it either
// finds an occluder or crosses the cutoff distance.
//
// AO returns a *FaultError tagged FaultSmallDDA if the small-voxel DDA loop
// exceeds cfg.FaultLimit iterations before resolving.
func AO(grid *bvh.Grid, atoms []scene.ConvertedAtom, cfg config.Config, origin, dir types.Vec3) (AOHit, error) {
	dda := NewDDA(origin, dir, cfg.SmallVoxelNM)
	smallPerLarge := cfg.SmallPerLarge()
	smallBlock := int(smallPerLarge * smallPerLarge * smallPerLarge)

	for steps := 0; ; steps++ {
		if steps > int(cfg.FaultLimit) {
			return AOHit{}, &FaultError{Code: FaultSmallDDA}
		}

		largeCell := types.XYZi(
			floorDivI32(dda.Cell[0], smallPerLarge),
			floorDivI32(dda.Cell[1], smallPerLarge),
			floorDivI32(dda.Cell[2], smallPerLarge),
		)
		if largeCell.InBounds(grid.LargeGridDim) {
			meta := grid.LargeCells[largeCell.Linear(grid.LargeGridDim)]
			if !meta.Empty() {
				local := types.XYZi(
					dda.Cell[0]-largeCell[0]*smallPerLarge,
					dda.Cell[1]-largeCell[1]*smallPerLarge,
					dda.Cell[2]-largeCell[2]*smallPerLarge,
				)
				smallDims := types.XYZi(smallPerLarge, smallPerLarge, smallPerLarge)
				compacted := int(meta.CompactedIndex - 1)
				localIdx := local.Linear(smallDims)
				cellMeta := grid.SmallCells[compacted*smallBlock+localIdx]
				if cellMeta.Count > 0 {
					refBase := meta.SmallReferenceBase + uint32(cellMeta.Offset)
					refs := grid.SmallAtomReferences[refBase : refBase+uint32(cellMeta.Count)]
					for _, ref := range refs {
						atom := atoms[ref]
						t, hit := testCell(origin, dir, atom.Position, atom.Radius.Float32())
						if hit && t <= cfg.AOCutoffNM {
							return AOHit{Occluded: true, Distance: t}, nil
						}
					}
				}
			}
		}

		_, t := dda.Advance()
		if t > cfg.AOCutoffNM {
			break
		}
	}

	return AOHit{Occluded: false, Distance: cfg.AOCutoffNM}, nil
}

// floorDivI32 computes floor(a/b) for positive b, matching cube-sphere's
// floor semantics for negative a.
func floorDivI32(a, b int32) int32 {
	if a >= 0 {
		return a / b
	}
	return -((-a + b - 1) / b)
}
