package cl

import (
	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/types"
)

// rawLargeCellMeta mirrors CL/main.cl's large_cell_meta layout: the same
// four packed uint32 words as rawCompactedLargeCell, in the same order, so
// a Buffer.ReadData memcpy into either type reads the device's bytes
// correctly regardless of field names.
type rawLargeCellMeta struct {
	CompactedIndex     uint32
	AtomReferenceBase  uint32
	SmallReferenceBase uint32
	CountsPacked       uint32
}

// readGrid reads back every device table dispatchBuildGrid filled in and
// assembles them into a host *bvh.Grid with the same field layout
// bvh.Builder.Build produces, so the unmodified traverse/shade pipeline can
// consume a device-built grid exactly as it would a host-built one.
//
// The device's dense LargeCells entries never receive a SmallReferenceBase
// (only the compacted table does, via patchSmallReferenceBases), mirroring
// CL/main.cl's kernels; this patches the dense copy the same way
// bvh.Builder.Build does after its own small-voxel prefix sum.
func (b *Backend) readGrid(occupiedCount int) (*bvh.Grid, error) {
	numLargeCells := int(b.dims[0]) * int(b.dims[1]) * int(b.dims[2])
	smallPerLarge := int(b.cfg.SmallPerLarge())
	smallBlock := smallPerLarge * smallPerLarge * smallPerLarge

	rawLarge := make([]rawLargeCellMeta, numLargeCells)
	if err := b.buffers.LargeCells.ReadInto(0, rawLarge); err != nil {
		return nil, err
	}
	largeCells := make([]bvh.LargeCellMeta, numLargeCells)
	for i, rc := range rawLarge {
		largeCells[i] = bvh.LargeCellMeta{
			CompactedIndex:     rc.CompactedIndex,
			AtomReferenceBase:  rc.AtomReferenceBase,
			SmallReferenceBase: rc.SmallReferenceBase,
			CountsPacked:       rc.CountsPacked,
		}
	}

	compactedCells := make([]bvh.CompactedLargeCell, occupiedCount)
	var compactMin, compactMax types.Vec3i
	if occupiedCount > 0 {
		rawCompacted := make([]rawCompactedLargeCell, occupiedCount)
		if err := b.buffers.CompactedLargeCells.ReadInto(0, rawCompacted); err != nil {
			return nil, err
		}
		for i, rc := range rawCompacted {
			compactedCells[i] = bvh.CompactedLargeCell{
				Coord:              rc.Coord,
				AtomReferenceBase:  rc.AtomReferenceBase,
				SmallReferenceBase: rc.SmallReferenceBase,
				CountsPacked:       rc.CountsPacked,
			}

			coord := bvh.UnpackCoord(rc.Coord)
			denseIdx := coord.Linear(b.dims)
			largeCells[denseIdx].SmallReferenceBase = rc.SmallReferenceBase
			largeCells[denseIdx].CountsPacked = rc.CountsPacked

			if i == 0 {
				compactMin, compactMax = coord, coord
			} else {
				compactMin = minVec3i(compactMin, coord)
				compactMax = maxVec3i(compactMax, coord)
			}
		}
	}

	smallCells := make([]bvh.SmallCellMeta, occupiedCount*smallBlock)
	if occupiedCount > 0 {
		rawSmall := make([]uint32, occupiedCount*smallBlock)
		if err := b.buffers.SmallCells.ReadInto(0, rawSmall); err != nil {
			return nil, err
		}
		for i, packed := range rawSmall {
			// small_cell_meta packs {ushort offset; ushort count;}; the
			// host-side prefix sum in dispatchBuildGrid writes count in the
			// upper 16 bits and offset in the lower 16, matching this order.
			smallCells[i] = bvh.SmallCellMeta{Offset: uint16(packed & 0xFFFF), Count: uint16(packed >> 16)}
		}
	}

	largeAtomRefs := make([]uint32, b.lastLargeRefCount)
	if b.lastLargeRefCount > 0 {
		if err := b.buffers.LargeAtomRefs.ReadInto(0, largeAtomRefs); err != nil {
			return nil, err
		}
	}

	smallAtomRefs := make([]uint32, b.lastSmallRefCount)
	if b.lastSmallRefCount > 0 {
		if err := b.buffers.SmallAtomRefs.ReadInto(0, smallAtomRefs); err != nil {
			return nil, err
		}
	}

	numGroups := int(b.groupDims[0]) * int(b.groupDims[1]) * int(b.groupDims[2])
	groupMarks := make([]uint32, numGroups)
	if err := b.buffers.GroupMarks.ReadInto(0, groupMarks); err != nil {
		return nil, err
	}

	return &bvh.Grid{
		LargeCells:          largeCells,
		CompactedLargeCells: compactedCells,
		SmallCells:          smallCells,
		LargeAtomReferences: largeAtomRefs,
		SmallAtomReferences: smallAtomRefs,
		LargeGridDim:        b.dims,
		CompactMin:          compactMin,
		CompactMax:          compactMax,
		OccupiedCount:       uint32(occupiedCount),
		GroupMarks:          groupMarks,
		GroupDim:            b.groupDims,
	}, nil
}

func minVec3i(a, b types.Vec3i) types.Vec3i {
	out := a
	for axis := 0; axis < 3; axis++ {
		if b[axis] < out[axis] {
			out[axis] = b[axis]
		}
	}
	return out
}

func maxVec3i(a, b types.Vec3i) types.Vec3i {
	out := a
	for axis := 0; axis < 3; axis++ {
		if b[axis] > out[axis] {
			out[axis] = b[axis]
		}
	}
	return out
}
