package bvh

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/log"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

const (
	lanesPerCell = 8 // per-cell atomic counters, indexed by atom slot to spread contention
	groupSize    = 8 // large cells per occupancy-group edge
)

// Builder runs the five-stage grid build pipeline (B1-B5) over a converted
// atom set, producing a fresh Grid every call. A Builder owns no state
// across calls; each frame gets its own arena of backing arrays.
type Builder struct {
	logger log.Logger
	cfg    config.Config
	state  State
}

func New(cfg config.Config) *Builder {
	return &Builder{
		logger: log.New("grid builder"),
		cfg:    cfg,
		state:  Idle,
	}
}

// State reports the stage the most recent (or in-flight) Build call reached.
func (b *Builder) State() State { return b.state }

// Build executes B1 (reset) through B5 (emit small references) over the
// given atom set and world bounds, returning the completed Grid.
func (b *Builder) Build(atoms []scene.ConvertedAtom, bounds scene.WorldBounds) (*Grid, error) {
	size := bounds.Size()
	dims := types.XYZi(
		round32(size[0]/b.cfg.LargeVoxelNM),
		round32(size[1]/b.cfg.LargeVoxelNM),
		round32(size[2]/b.cfg.LargeVoxelNM),
	)
	numLargeCells := int(dims[0]) * int(dims[1]) * int(dims[2])

	b.state = Preparing
	grid := &Grid{
		LargeCells:   make([]LargeCellMeta, numLargeCells),
		LargeGridDim: dims,
	}

	lanes := make([]uint32, numLargeCells*lanesPerCell)
	groupDims := types.XYZi(
		(dims[0]+groupSize-1)/groupSize,
		(dims[1]+groupSize-1)/groupSize,
		(dims[2]+groupSize-1)/groupSize,
	)
	groupMarks := make([]uint32, int(groupDims[0])*int(groupDims[1])*int(groupDims[2]))

	positions := make([]types.Vec3, len(atoms))
	radii := make([]float32, len(atoms))
	for i, a := range atoms {
		positions[i] = a.Position
		radii[i] = a.Radius.Float32()
	}

	// --- B2: count large references ---------------------------------
	b.state = Counting
	b.forEachAtom(len(atoms), func(i int) {
		lane := uint32(i % lanesPerCell)
		overlappedCells(positions[i], radii[i], b.cfg.LargeVoxelNM, dims, func(c types.Vec3i) {
			cellIdx := c.Linear(dims)
			atomic.AddUint32(&lanes[cellIdx*lanesPerCell+int(lane)], 1)
			g := types.XYZi(c[0]/groupSize, c[1]/groupSize, c[2]/groupSize)
			atomic.StoreUint32(&groupMarks[g.Linear(groupDims)], 1)
		})
	})

	// Reduce the 8 lanes of each cell into its atom-reference count.
	occupied := make([]bool, numLargeCells)
	var occupiedCount uint32
	for cell := 0; cell < numLargeCells; cell++ {
		var sum uint32
		for lane := 0; lane < lanesPerCell; lane++ {
			sum += lanes[cell*lanesPerCell+lane]
		}
		if sum > 0 {
			grid.LargeCells[cell].CountsPacked = PackCounts(sum, 0)
			occupied[cell] = true
			occupiedCount++
		}
	}

	// --- B3: compact and allocate ------------------------------------
	b.state = Compacting
	grid.CompactedLargeCells = make([]CompactedLargeCell, 0, occupiedCount)

	var largeRefCounter uint32
	var compactMin, compactMax types.Vec3i
	haveBounds := false
	for z := int32(0); z < dims[2]; z++ {
		for y := int32(0); y < dims[1]; y++ {
			for x := int32(0); x < dims[0]; x++ {
				coord := types.XYZi(x, y, z)
				cellIdx := coord.Linear(dims)
				if !occupied[cellIdx] {
					continue
				}
				meta := &grid.LargeCells[cellIdx]
				atomRefs := meta.AtomRefCount()
				meta.AtomReferenceBase = fetchAddU32(&largeRefCounter, atomRefs)
				meta.CompactedIndex = uint32(len(grid.CompactedLargeCells)) + 1

				grid.CompactedLargeCells = append(grid.CompactedLargeCells, CompactedLargeCell{
					Coord:             PackCoord(coord),
					AtomReferenceBase: meta.AtomReferenceBase,
					CountsPacked:      meta.CountsPacked,
				})

				if !haveBounds {
					compactMin, compactMax = coord, coord
					haveBounds = true
				} else {
					compactMin = minVec3i(compactMin, coord)
					compactMax = maxVec3i(compactMax, coord)
				}
			}
		}
	}
	grid.OccupiedCount = occupiedCount
	grid.CompactMin, grid.CompactMax = compactMin, compactMax
	grid.LargeAtomReferences = make([]uint32, largeRefCounter)
	grid.GroupMarks = groupMarks
	grid.GroupDim = groupDims

	smallPerLarge := b.cfg.SmallPerLarge()
	smallBlock := smallPerLarge * smallPerLarge * smallPerLarge
	smallCounts := make([]uint32, int(occupiedCount)*int(smallBlock))

	// --- B4: populate large references, count small references -----
	b.state = Referencing
	writeCursors := make([]uint32, numLargeCells)
	b.forEachAtom(len(atoms), func(i int) {
		overlappedCells(positions[i], radii[i], b.cfg.LargeVoxelNM, dims, func(c types.Vec3i) {
			cellIdx := c.Linear(dims)
			meta := &grid.LargeCells[cellIdx]
			slot := atomic.AddUint32(&writeCursors[cellIdx], 1) - 1
			grid.LargeAtomReferences[meta.AtomReferenceBase+slot] = uint32(i)

			compacted := meta.CompactedIndex - 1
			largeCellMin := types.XYZ(float32(c[0])*b.cfg.LargeVoxelNM, float32(c[1])*b.cfg.LargeVoxelNM, float32(c[2])*b.cfg.LargeVoxelNM)
			smallDims := types.XYZi(smallPerLarge, smallPerLarge, smallPerLarge)
			overlappedCells(positions[i].Sub(largeCellMin), radii[i], b.cfg.SmallVoxelNM, smallDims, func(s types.Vec3i) {
				idx := int(compacted)*int(smallBlock) + s.Linear(smallDims)
				atomic.AddUint32(&smallCounts[idx], 1)
			})
		})
	})

	grid.SmallCells = make([]SmallCellMeta, int(occupiedCount)*int(smallBlock))
	var smallRefCounter uint32
	for cell := 0; cell < int(occupiedCount); cell++ {
		base := cell * int(smallBlock)
		var offset uint32
		var total uint32
		for s := 0; s < int(smallBlock); s++ {
			count := smallCounts[base+s]
			grid.SmallCells[base+s] = SmallCellMeta{Offset: uint16(offset), Count: uint16(count)}
			offset += count
			total += count
		}
		smallBase := fetchAddU32(&smallRefCounter, total)
		grid.CompactedLargeCells[cell].SmallReferenceBase = smallBase
		grid.CompactedLargeCells[cell].CountsPacked = PackCounts(grid.CompactedLargeCells[cell].AtomRefCount(), total)

		denseIdx := UnpackCoord(grid.CompactedLargeCells[cell].Coord).Linear(dims)
		grid.LargeCells[denseIdx].SmallReferenceBase = smallBase
		grid.LargeCells[denseIdx].CountsPacked = grid.CompactedLargeCells[cell].CountsPacked
	}
	grid.SmallAtomReferences = make([]uint32, smallRefCounter)

	// --- B5: emit small references -----------------------------------
	for i := range smallCounts {
		smallCounts[i] = 0 // reuse as per-small-voxel write cursor
	}
	b.forEachAtom(len(atoms), func(i int) {
		overlappedCells(positions[i], radii[i], b.cfg.LargeVoxelNM, dims, func(c types.Vec3i) {
			cellIdx := c.Linear(dims)
			meta := &grid.LargeCells[cellIdx]
			compacted := int(meta.CompactedIndex - 1)
			cc := &grid.CompactedLargeCells[compacted]

			largeCellMin := types.XYZ(float32(c[0])*b.cfg.LargeVoxelNM, float32(c[1])*b.cfg.LargeVoxelNM, float32(c[2])*b.cfg.LargeVoxelNM)
			smallDims := types.XYZi(smallPerLarge, smallPerLarge, smallPerLarge)
			overlappedCells(positions[i].Sub(largeCellMin), radii[i], b.cfg.SmallVoxelNM, smallDims, func(s types.Vec3i) {
				localIdx := s.Linear(smallDims)
				idx := compacted*int(smallBlock) + localIdx
				slot := atomic.AddUint32(&smallCounts[idx], 1) - 1
				smallMeta := grid.SmallCells[idx]
				grid.SmallAtomReferences[cc.SmallReferenceBase+uint32(smallMeta.Offset)+slot] = uint32(i)
			})
		})
	})

	b.state = Ready
	b.logger.Debugf(
		"built grid: %d/%d large cells occupied, %d large refs, %d small refs",
		occupiedCount, numLargeCells, largeRefCounter, smallRefCounter,
	)

	return grid, nil
}

// forEachAtom dispatches work over n independent atom indices using a
// worker pool bounded by GOMAXPROCS, mirroring the device's wide parallel
// dispatch of one work item per atom.
func (b *Builder) forEachAtom(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > n {
		numWorkers = n
	}
	chunk := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}

func fetchAddU32(addr *uint32, delta uint32) uint32 {
	return atomic.AddUint32(addr, delta) - delta
}

func round32(v float32) int32 {
	return int32(v + 0.5)
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
