// Package bvh implements the two-level uniform-grid BVH: the grid builder
// (component B) that bins converted atoms into large/small voxels each
// frame, and the data layout both ray traversers walk.
package bvh

import "github.com/achilleasa/go-atomtrace/types"

// smallBlockSize is the number of small-voxel slots per occupied large
// voxel: (small voxels per large-voxel axis)^3, 8^3 per the reference
// configuration (2nm / 0.25nm).
const smallBlockSize = 512 // 8*8*8 small voxels per occupied large voxel

// LargeCellMeta is the dense per-large-voxel record (§3): one entry per
// large voxel in the (W/2)^3 grid. A cell is empty iff CompactedIndex == 0.
type LargeCellMeta struct {
	CompactedIndex     uint32
	AtomReferenceBase  uint32
	SmallReferenceBase uint32
	CountsPacked       uint32
}

// AtomRefCount extracts the low 14 bits of CountsPacked.
func (m LargeCellMeta) AtomRefCount() uint32 { return m.CountsPacked & 0x3FFF }

// SmallRefCount extracts the upper 18 bits of CountsPacked.
func (m LargeCellMeta) SmallRefCount() uint32 { return m.CountsPacked >> 14 }

// PackCounts combines an atom-reference count (<=14 bits) and a
// small-reference count (<=18 bits) into the CountsPacked layout.
func PackCounts(atomRefs, smallRefs uint32) uint32 {
	return (atomRefs & 0x3FFF) | (smallRefs << 14)
}

// Empty reports whether this large cell holds no atoms (I3).
func (m LargeCellMeta) Empty() bool { return m.CompactedIndex == 0 }

// CompactedLargeCell is the dense, hole-free table the primary traverser
// scans, indexed by CompactedIndex-1.
type CompactedLargeCell struct {
	// Coord packs the large voxel's integer (x, y, z) into one word
	// (10 bits per axis, supporting grids up to 1024^3).
	Coord              uint32
	AtomReferenceBase  uint32
	SmallReferenceBase uint32
	CountsPacked       uint32
}

func (c CompactedLargeCell) AtomRefCount() uint32  { return c.CountsPacked & 0x3FFF }
func (c CompactedLargeCell) SmallRefCount() uint32 { return c.CountsPacked >> 14 }

// PackCoord packs a large-voxel coordinate into one word.
func PackCoord(c types.Vec3i) uint32 {
	return uint32(c[0]&0x3FF) | uint32(c[1]&0x3FF)<<10 | uint32(c[2]&0x3FF)<<20
}

// UnpackCoord reverses PackCoord.
func UnpackCoord(packed uint32) types.Vec3i {
	return types.Vec3i{
		int32(packed & 0x3FF),
		int32((packed >> 10) & 0x3FF),
		int32((packed >> 20) & 0x3FF),
	}
}

// SmallCellMeta is one of the 512 consecutive per-large-cell entries (§3).
// Offset is relative to the owning large cell's SmallReferenceBase.
type SmallCellMeta struct {
	Offset uint16
	Count  uint16
}

// Grid is the complete, rebuilt-from-scratch BVH for one frame.
type Grid struct {
	// Dense per-large-voxel metadata, one entry per (W/2)^3 large voxel.
	LargeCells []LargeCellMeta

	// Compacted, hole-free table of occupied large voxels.
	CompactedLargeCells []CompactedLargeCell

	// 512-entry blocks of small-voxel metadata, one block per occupied
	// large voxel, in compacted-index order.
	SmallCells []SmallCellMeta

	// Shared atom-id reference arrays.
	LargeAtomReferences []uint32
	SmallAtomReferences []uint32

	// Dimensions of the dense large-voxel grid, in voxels per axis.
	LargeGridDim types.Vec3i

	// The tight bounding box of the occupied large-voxel set, updated by
	// B3's compact world-bounding-box reducer.
	CompactMin, CompactMax types.Vec3i

	// Number of occupied (non-empty) large voxels.
	OccupiedCount uint32

	// Coarse occupancy marks over groupSize^3 blocks of large voxels,
	// letting the primary traverser's outer DDA skip the per-cell
	// metadata lookup inside empty groups; the DDA still steps through
	// every large voxel of such a group one at a time.
	GroupMarks []uint32
	GroupDim   types.Vec3i
}

// GroupOccupied reports whether the groupSize^3 block of large voxels
// containing large-voxel coordinate c holds any referenced atom.
func (g *Grid) GroupOccupied(c types.Vec3i) bool {
	group := types.XYZi(c[0]/groupSize, c[1]/groupSize, c[2]/groupSize)
	if !group.InBounds(g.GroupDim) {
		return false
	}
	return g.GroupMarks[group.Linear(g.GroupDim)] != 0
}
