package cl

import "github.com/achilleasa/go-atomtrace/compute/cl/device"

// bufferSet holds every device buffer the grid-build and render kernels
// read from or write to. Buffers are (re)allocated per frame as atom counts
// and occupied-cell counts change; see Backend.ensureAtomCapacity and
// Backend.ensureOccupiedCapacity.
type bufferSet struct {
	// Per-atom input, uploaded once per frame.
	AtomPositions *device.Buffer
	AtomRadii     *device.Buffer
	AtomElements  *device.Buffer

	// Dense per-large-voxel metadata and its 8-lane counters.
	LaneCounters *device.Buffer
	LargeCells   *device.Buffer
	GroupMarks   *device.Buffer

	// Compacted tables, sized to the occupied-cell count once known.
	CompactedLargeCells *device.Buffer
	SmallCells          *device.Buffer

	// Reference arrays and their allocation cursors.
	WriteCursors      *device.Buffer
	LargeAtomRefs     *device.Buffer
	SmallCounts       *device.Buffer
	SmallAtomRefs     *device.Buffer
	Globals           *device.Buffer

	// Per-pixel traversal and shading intermediates.
	HitAtom     *device.Buffer
	HitDistance *device.Buffer
	AOFactor    *device.Buffer
	ColorOut    *device.Buffer
	DepthOut    *device.Buffer
}

func newBufferSet(dev *device.Device) *bufferSet {
	return &bufferSet{
		AtomPositions: dev.Buffer("atomPositions"),
		AtomRadii:     dev.Buffer("atomRadii"),
		AtomElements:  dev.Buffer("atomElements"),

		LaneCounters: dev.Buffer("laneCounters"),
		LargeCells:   dev.Buffer("largeCells"),
		GroupMarks:   dev.Buffer("groupMarks"),

		CompactedLargeCells: dev.Buffer("compactedLargeCells"),
		SmallCells:          dev.Buffer("smallCells"),

		WriteCursors:  dev.Buffer("writeCursors"),
		LargeAtomRefs: dev.Buffer("largeAtomRefs"),
		SmallCounts:   dev.Buffer("smallCounts"),
		SmallAtomRefs: dev.Buffer("smallAtomRefs"),
		Globals:       dev.Buffer("globals"),

		HitAtom:     dev.Buffer("hitAtom"),
		HitDistance: dev.Buffer("hitDistance"),
		AOFactor:    dev.Buffer("aoFactor"),
		ColorOut:    dev.Buffer("colorOut"),
		DepthOut:    dev.Buffer("depthOut"),
	}
}

func (bs *bufferSet) release() {
	for _, b := range []*device.Buffer{
		bs.AtomPositions, bs.AtomRadii, bs.AtomElements,
		bs.LaneCounters, bs.LargeCells, bs.GroupMarks,
		bs.CompactedLargeCells, bs.SmallCells,
		bs.WriteCursors, bs.LargeAtomRefs, bs.SmallCounts, bs.SmallAtomRefs, bs.Globals,
		bs.HitAtom, bs.HitDistance, bs.AOFactor, bs.ColorOut, bs.DepthOut,
	} {
		if b != nil {
			b.Release()
		}
	}
}
