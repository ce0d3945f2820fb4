// Package cl provides the OpenCL-backed implementation of the grid-build
// and render pipeline, dispatching the kernels in CL/main.cl over a
// selected device. See bvh.Builder for the host-executable reference
// implementation of the same algorithm.
package cl

import (
	"fmt"
	"path"
	"runtime"

	"github.com/achilleasa/go-atomtrace/bvh"
	"github.com/achilleasa/go-atomtrace/compute/cl/device"
	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/log"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
	"github.com/achilleasa/gopencl/v1.2/cl"
)

const relativePathToMainKernel = "CL/main.cl"

const groupSize = 8

// Backend drives one OpenCL device through the grid-build pipeline and the
// per-pixel render pass, owning the device buffers across frames.
type Backend struct {
	logger log.Logger
	cfg    config.Config
	device *device.Device

	buffers *bufferSet
	kernels []*device.Kernel

	dims      types.Vec3i
	groupDims types.Vec3i

	atomCapacity     int
	occupiedCapacity int

	state bvh.State

	// lastLargeRefCount and lastSmallRefCount size the LargeAtomReferences
	// and SmallAtomReferences readback slices in readGrid; dispatchBuildGrid fills
	// them in once the host-side prefix sum over the frame's small-voxel
	// counts has run.
	lastLargeRefCount int
	lastSmallRefCount int
}

// State reports the stage the most recent (or in-flight) Build call reached,
// mirroring bvh.Builder.State so either backend satisfies compute.GridBuilder
// identically from the driver's point of view.
func (b *Backend) State() bvh.State { return b.state }

// New wraps the given (already-selected) device; call Init before use.
func New(cfg config.Config, dev *device.Device) *Backend {
	return &Backend{
		logger: log.New(fmt.Sprintf("opencl backend (%s)", dev.Name)),
		cfg:    cfg,
		device: dev,
	}
}

// Init loads and compiles CL/main.cl on the associated device and allocates
// the initial (empty) buffer set.
func (b *Backend) Init() error {
	_, thisFile, _, _ := runtime.Caller(0)
	programPath := path.Join(path.Dir(thisFile), relativePathToMainKernel)

	if err := b.device.Init(programPath); err != nil {
		return err
	}

	b.kernels = make([]*device.Kernel, numKernels)
	var kt kernelType
	for kt = 0; kt < numKernels; kt++ {
		kernel, err := b.device.Kernel(kt.String())
		if err != nil {
			return err
		}
		b.kernels[kt] = kernel
	}

	b.buffers = newBufferSet(b.device)

	b.dims = types.XYZi(b.cfg.LargeGridDim(), b.cfg.LargeGridDim(), b.cfg.LargeGridDim())
	b.groupDims = types.XYZi(
		(b.dims[0]+groupSize-1)/groupSize,
		(b.dims[1]+groupSize-1)/groupSize,
		(b.dims[2]+groupSize-1)/groupSize,
	)

	numLargeCells := int(b.dims[0]) * int(b.dims[1]) * int(b.dims[2])
	numGroups := int(b.groupDims[0]) * int(b.groupDims[1]) * int(b.groupDims[2])

	if err := b.buffers.LaneCounters.Allocate(numLargeCells*8*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.LargeCells.Allocate(numLargeCells*16, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.GroupMarks.Allocate(numGroups*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.Globals.Allocate(3*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.WriteCursors.Allocate(numLargeCells*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}

	return nil
}

// Close releases all device resources owned by this backend.
func (b *Backend) Close() {
	if b.buffers != nil {
		b.buffers.release()
		b.buffers = nil
	}
	for _, k := range b.kernels {
		if k != nil {
			k.Release()
		}
	}
	b.kernels = nil
	b.device.Close()
}

// ensureAtomCapacity grows the per-atom input buffers so they can hold at
// least n atoms, avoiding a reallocation every frame once the high-water
// mark is reached.
func (b *Backend) ensureAtomCapacity(n int) error {
	if n <= b.atomCapacity {
		return nil
	}
	if err := b.buffers.AtomPositions.Allocate(n*12, cl.MEM_READ_ONLY); err != nil {
		return err
	}
	if err := b.buffers.AtomRadii.Allocate(n*4, cl.MEM_READ_ONLY); err != nil {
		return err
	}
	if err := b.buffers.AtomElements.Allocate(n*1, cl.MEM_READ_ONLY); err != nil {
		return err
	}
	b.atomCapacity = n
	return nil
}

// ensureOccupiedCapacity grows the compacted tables and small-voxel arrays
// so they can hold at least n occupied large cells.
func (b *Backend) ensureOccupiedCapacity(n int) error {
	if n <= b.occupiedCapacity {
		return nil
	}
	smallBlock := int(b.cfg.SmallPerLarge() * b.cfg.SmallPerLarge() * b.cfg.SmallPerLarge())
	if err := b.buffers.CompactedLargeCells.Allocate(n*16, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.SmallCells.Allocate(n*smallBlock*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	if err := b.buffers.SmallCounts.Allocate(n*smallBlock*4, cl.MEM_READ_WRITE); err != nil {
		return err
	}
	b.occupiedCapacity = n
	return nil
}

// Build implements compute.GridBuilder: it dispatches the five-stage grid
// build over the device via dispatchBuildGrid and reads the resulting
// tables back into a host *bvh.Grid with the same layout bvh.Builder.Build
// produces, so driver.Driver runs the unmodified host traverse/shade
// pipeline against either backend's output.
func (b *Backend) Build(atoms []scene.ConvertedAtom, bounds scene.WorldBounds) (*bvh.Grid, error) {
	occupied, err := b.dispatchBuildGrid(atoms, bounds)
	if err != nil {
		b.state = bvh.Idle
		return nil, err
	}
	grid, err := b.readGrid(occupied)
	if err != nil {
		b.state = bvh.Idle
		return nil, err
	}
	b.state = bvh.Ready
	return grid, nil
}

// dispatchBuildGrid dispatches the five-stage grid build (B1-B5) for the
// given converted atom set and world bounds on the device, returning the
// number of occupied large cells so Build can size the readback buffers for
// the compacted tables.
//
// Reading back the per-cell atom-reference counts to size the large- and
// small-reference buffers, and computing the small-cell prefix sum between
// reference_large_and_count_small and emit_small, happens on the host; see
// the note between those two kernels in CL/main.cl.
func (b *Backend) dispatchBuildGrid(atoms []scene.ConvertedAtom, bounds scene.WorldBounds) (occupied int, err error) {
	b.state = bvh.Preparing
	if err := b.ensureAtomCapacity(len(atoms)); err != nil {
		return 0, err
	}

	positions := make([]types.Vec3, len(atoms))
	radii := make([]float32, len(atoms))
	elements := make([]uint8, len(atoms))
	for i, a := range atoms {
		positions[i] = a.Position
		radii[i] = a.Radius.Float32()
		elements[i] = a.Element
	}
	if len(atoms) > 0 {
		if err := b.buffers.AtomPositions.WriteData(positions, 0); err != nil {
			return 0, err
		}
		if err := b.buffers.AtomRadii.WriteData(radii, 0); err != nil {
			return 0, err
		}
		if err := b.buffers.AtomElements.WriteData(elements, 0); err != nil {
			return 0, err
		}
	}

	numLargeCells := int(b.dims[0]) * int(b.dims[1]) * int(b.dims[2])

	b.state = bvh.Counting
	if err := b.kernels[resetCounters].SetArgs(b.buffers.LaneCounters, uint32(numLargeCells*8)); err != nil {
		return 0, err
	}
	if _, err := b.kernels[resetCounters].Exec1D(0, numLargeCells*8, 0); err != nil {
		return 0, err
	}

	numGroups := int(b.groupDims[0]) * int(b.groupDims[1]) * int(b.groupDims[2])
	if err := b.kernels[resetGroupMarks].SetArgs(b.buffers.GroupMarks, uint32(numGroups)); err != nil {
		return 0, err
	}
	if _, err := b.kernels[resetGroupMarks].Exec1D(0, numGroups, 0); err != nil {
		return 0, err
	}

	if err := b.kernels[resetGlobals].SetArgs(b.buffers.Globals); err != nil {
		return 0, err
	}
	if _, err := b.kernels[resetGlobals].Exec1D(0, 1, 0); err != nil {
		return 0, err
	}

	if len(atoms) > 0 {
		if err := b.kernels[countLarge].SetArgs(
			b.buffers.AtomPositions, b.buffers.AtomRadii, uint32(len(atoms)),
			b.dims, b.cfg.LargeVoxelNM, int32(groupSize),
			b.buffers.LaneCounters, b.buffers.GroupMarks, b.groupDims,
		); err != nil {
			return 0, err
		}
		if _, err := b.kernels[countLarge].Exec1D(0, len(atoms), 0); err != nil {
			return 0, err
		}
	}

	// compact_large needs the final occupied-cell table sized before
	// dispatch, so the host allocates it optimistically at numLargeCells
	// and the kernel writes a dense prefix of it.
	b.state = bvh.Compacting
	if err := b.ensureOccupiedCapacity(numLargeCells); err != nil {
		return 0, err
	}
	if err := b.kernels[compactLarge].SetArgs(
		b.buffers.LaneCounters, b.buffers.LargeCells, b.buffers.CompactedLargeCells, b.buffers.Globals, b.dims,
	); err != nil {
		return 0, err
	}
	if _, err := b.kernels[compactLarge].Exec1D(0, numLargeCells, 0); err != nil {
		return 0, err
	}

	globals := make([]uint32, 3)
	if err := b.buffers.Globals.ReadInto(0, globals); err != nil {
		return 0, err
	}
	occupiedCount := int(globals[0])
	largeRefCount := int(globals[1])
	b.lastLargeRefCount = largeRefCount

	if err := b.buffers.LargeAtomRefs.Allocate(largeRefCount*4, cl.MEM_READ_WRITE); err != nil {
		return 0, err
	}
	zeroCursors := make([]uint32, numLargeCells)
	if err := b.buffers.WriteCursors.WriteData(zeroCursors, 0); err != nil {
		return 0, err
	}

	b.state = bvh.Referencing
	if len(atoms) > 0 {
		if err := b.kernels[referenceLargeAndCountSmall].SetArgs(
			b.buffers.AtomPositions, b.buffers.AtomRadii, uint32(len(atoms)),
			b.dims, b.cfg.LargeVoxelNM, b.cfg.SmallVoxelNM, b.cfg.SmallPerLarge(),
			b.buffers.LargeCells, b.buffers.WriteCursors, b.buffers.LargeAtomRefs, b.buffers.SmallCounts,
		); err != nil {
			return 0, err
		}
		if _, err := b.kernels[referenceLargeAndCountSmall].Exec1D(0, len(atoms), 0); err != nil {
			return 0, err
		}
	}

	// Host-side prefix sum over each occupied cell's 512 small-voxel
	// counts; see dispatchBuildGrid's doc comment.
	smallBlock := int(b.cfg.SmallPerLarge() * b.cfg.SmallPerLarge() * b.cfg.SmallPerLarge())
	rawCounts := make([]uint32, occupiedCount*smallBlock)
	if occupiedCount > 0 {
		if err := b.buffers.SmallCounts.ReadInto(0, rawCounts); err != nil {
			return 0, err
		}
	}
	// small_cell_meta packs {ushort offset; ushort count;}; on a
	// little-endian device that's offset in the low 16 bits of the word.
	smallMeta := make([]uint32, occupiedCount*smallBlock)
	var smallRefTotal uint32
	cellTotals := make([]uint32, occupiedCount)
	for cellIdx := 0; cellIdx < occupiedCount; cellIdx++ {
		base := cellIdx * smallBlock
		var offset uint32
		for s := 0; s < smallBlock; s++ {
			count := rawCounts[base+s]
			smallMeta[base+s] = (count << 16) | (offset & 0xFFFF)
			offset += count
		}
		cellTotals[cellIdx] = offset
		smallRefTotal += offset
	}
	b.lastSmallRefCount = int(smallRefTotal)
	if occupiedCount > 0 {
		if err := b.buffers.SmallCells.WriteData(smallMeta, 0); err != nil {
			return 0, err
		}
	}

	if occupiedCount > 0 {
		if err := b.patchSmallReferenceBases(occupiedCount, cellTotals); err != nil {
			return 0, err
		}
	}

	if err := b.buffers.SmallAtomRefs.Allocate(int(smallRefTotal)*4, cl.MEM_READ_WRITE); err != nil {
		return 0, err
	}
	zeroSmallCursors := make([]uint32, occupiedCount*smallBlock)
	if occupiedCount > 0 {
		if err := b.buffers.SmallCounts.WriteData(zeroSmallCursors, 0); err != nil {
			return 0, err
		}
	}

	if len(atoms) > 0 {
		if err := b.kernels[emitSmall].SetArgs(
			b.buffers.AtomPositions, b.buffers.AtomRadii, uint32(len(atoms)),
			b.dims, b.cfg.LargeVoxelNM, b.cfg.SmallVoxelNM, b.cfg.SmallPerLarge(),
			b.buffers.LargeCells, b.buffers.CompactedLargeCells, b.buffers.SmallCells, b.buffers.SmallCounts, b.buffers.SmallAtomRefs,
		); err != nil {
			return 0, err
		}
		if _, err := b.kernels[emitSmall].Exec1D(0, len(atoms), 0); err != nil {
			return 0, err
		}
	}

	b.logger.Debugf("built grid on device: %d/%d large cells occupied, %d large refs, %d small refs",
		occupiedCount, numLargeCells, largeRefCount, smallRefTotal)

	return occupiedCount, nil
}

// FrameResult holds the device-rendered output for one frame.
type FrameResult struct {
	Color []uint8 // RGBA8, width*height*4 bytes
	Depth []float32
}

// Render dispatches render_atoms over a width x height pixel grid, given the
// traversal stage's per-pixel nearest-hit atom index, hit distance, and
// ambient-occlusion factor (computed by the traverse/shade pipeline on the
// host and uploaded here).
func (b *Backend) Render(width, height uint32, hitAtom []int32, hitDistance, aoFactor []float32) (*FrameResult, error) {
	pixels := int(width * height)

	if err := b.buffers.HitAtom.AllocateAndWriteData(hitAtom, cl.MEM_READ_ONLY); err != nil {
		return nil, err
	}
	if err := b.buffers.HitDistance.AllocateAndWriteData(hitDistance, cl.MEM_READ_ONLY); err != nil {
		return nil, err
	}
	if err := b.buffers.AOFactor.AllocateAndWriteData(aoFactor, cl.MEM_READ_ONLY); err != nil {
		return nil, err
	}
	if err := b.buffers.ColorOut.Allocate(pixels*4, cl.MEM_WRITE_ONLY); err != nil {
		return nil, err
	}
	if err := b.buffers.DepthOut.Allocate(pixels*4, cl.MEM_WRITE_ONLY); err != nil {
		return nil, err
	}

	if err := b.kernels[renderAtoms].SetArgs(
		b.buffers.HitAtom, b.buffers.HitDistance, b.buffers.AOFactor, b.buffers.AtomElements,
		width, height, b.buffers.ColorOut, b.buffers.DepthOut,
	); err != nil {
		return nil, err
	}
	if _, err := b.kernels[renderAtoms].Exec2D(0, 0, int(width), int(height), 0, 0); err != nil {
		return nil, err
	}

	result := &FrameResult{
		Color: make([]uint8, pixels*4),
		Depth: make([]float32, pixels),
	}
	if err := b.buffers.ColorOut.ReadInto(0, result.Color); err != nil {
		return nil, err
	}
	if err := b.buffers.DepthOut.ReadInto(0, result.Depth); err != nil {
		return nil, err
	}

	return result, nil
}

// rawCompactedLargeCell mirrors CL/main.cl's compacted_large_cell layout for
// a host-side read-modify-write round trip.
type rawCompactedLargeCell struct {
	Coord              uint32
	AtomReferenceBase  uint32
	SmallReferenceBase uint32
	CountsPacked       uint32
}

// patchSmallReferenceBases reads back the compacted-cell table, fills in
// each cell's small_reference_base and small-reference count now that the
// host has finished the small-voxel prefix sum, and writes it back.
func (b *Backend) patchSmallReferenceBases(occupiedCount int, totals []uint32) error {
	cells := make([]rawCompactedLargeCell, occupiedCount)
	if err := b.buffers.CompactedLargeCells.ReadInto(0, cells); err != nil {
		return err
	}

	var running uint32
	for i := range cells {
		cells[i].SmallReferenceBase = running
		cells[i].CountsPacked = (cells[i].CountsPacked & 0x3FFF) | (totals[i] << 14)
		running += totals[i]
	}

	return b.buffers.CompactedLargeCells.WriteData(cells, 0)
}
