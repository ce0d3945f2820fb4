// Package preprocess implements the atom preprocessor (component A):
// world bounding-box reduction, snap/clamp, the reference-count capacity
// check, and the conversion of atoms to the packed world-relative layout
// consumed by the grid builder.
//
// The bounding-box reduction runs on the host tier using a worker pool over
// independent ~64K-atom blocks, mirroring the way the teacher's BVH builder
// farms out split-score candidates over goroutines and a result channel.
package preprocess

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/achilleasa/go-atomtrace/config"
	"github.com/achilleasa/go-atomtrace/log"
	"github.com/achilleasa/go-atomtrace/scene"
	"github.com/achilleasa/go-atomtrace/types"
)

const blockSize = 1 << 16 // ~64K atoms per reduction block

// Result is the output of a successful preprocessing pass.
type Result struct {
	Converted []scene.ConvertedAtom
	Bounds    scene.WorldBounds

	// Estimated total number of small-voxel references the converted atom
	// set needs (see footprintReferenceCount). Checked against
	// cfg.MaxReferences.
	ReferenceCount uint64
}

type blockReduction struct {
	min, max       types.Vec3
	referenceCount uint64
}

// Preprocessor converts a raw atom array into the packed representation the
// grid builder consumes, and computes the snapped/clamped world bounds.
type Preprocessor struct {
	logger log.Logger
	cfg    config.Config
	radii  scene.ElementRadii
}

func New(cfg config.Config, radii scene.ElementRadii) *Preprocessor {
	return &Preprocessor{
		logger: log.New("atom preprocessor"),
		cfg:    cfg,
		radii:  radii,
	}
}

// Run executes the bounding-box reduction, capacity check, and conversion
// kernel for the given atom set. It returns CapacityExceeded if the atom
// count or derived reference count exceed the configured caps, and
// EmptyWorld if no atom intersects the world volume.
func (p *Preprocessor) Run(atoms []scene.Atom) (*Result, error) {
	if uint32(len(atoms)) > p.cfg.MaxAtoms {
		return nil, ErrCapacityExceededAtoms
	}

	half := p.cfg.WorldEdgeNM / 2

	// Drop atoms wholly outside the world volume before reducing, so the
	// bounding box (and the reference-count estimate) only reflects atoms
	// that will actually be converted.
	kept := make([]scene.Atom, 0, len(atoms))
	for _, a := range atoms {
		r := p.radii[a.Element]
		if a.Position[0]+r < -half || a.Position[0]-r > half ||
			a.Position[1]+r < -half || a.Position[1]-r > half ||
			a.Position[2]+r < -half || a.Position[2]-r > half {
			continue
		}
		kept = append(kept, a)
	}

	if len(kept) == 0 {
		return nil, ErrEmptyWorld
	}

	reduced := p.reduceBounds(kept)
	if reduced.referenceCount > uint64(p.cfg.MaxReferences) {
		return nil, ErrCapacityExceededReferences
	}

	bounds := p.snapAndClamp(reduced.min, reduced.max)

	converted := p.convert(kept, bounds)

	p.logger.Debugf(
		"preprocessed %d atoms (dropped %d out of bounds), world bounds [%v, %v], %d references",
		len(converted), len(atoms)-len(kept), bounds.Min, bounds.Max, reduced.referenceCount,
	)

	return &Result{
		Converted:      converted,
		Bounds:         bounds,
		ReferenceCount: reduced.referenceCount,
	}, nil
}

// reduceBounds partitions atoms into independent blocks and reduces each
// block's bounding box and reference-count estimate in parallel, combining
// results on the calling goroutine.
func (p *Preprocessor) reduceBounds(atoms []scene.Atom) blockReduction {
	numBlocks := (len(atoms) + blockSize - 1) / blockSize
	results := make(chan blockReduction, numBlocks)

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for b := 0; b < numBlocks; b++ {
		start := b * blockSize
		end := start + blockSize
		if end > len(atoms) {
			end = len(atoms)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(block []scene.Atom) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- p.reduceBlock(block)
		}(atoms[start:end])
	}
	wg.Wait()
	close(results)

	half := p.cfg.WorldEdgeNM / 2
	combined := blockReduction{
		min: types.XYZ(half, half, half),
		max: types.XYZ(-half, -half, -half),
	}
	for r := range results {
		combined.min = types.MinVec3(combined.min, r.min)
		combined.max = types.MaxVec3(combined.max, r.max)
		combined.referenceCount += r.referenceCount
	}
	return combined
}

func (p *Preprocessor) reduceBlock(atoms []scene.Atom) blockReduction {
	half := p.cfg.WorldEdgeNM / 2
	r := blockReduction{
		min: types.XYZ(half, half, half),
		max: types.XYZ(-half, -half, -half),
	}
	for _, a := range atoms {
		radius := p.radii[a.Element]
		rvec := types.XYZ(radius, radius, radius)
		r.min = types.MinVec3(r.min, a.Position.Sub(rvec))
		r.max = types.MaxVec3(r.max, a.Position.Add(rvec))
		r.referenceCount += footprintReferenceCount(radius, p.cfg.SmallVoxelNM)
	}
	return r
}

// footprintReferenceCount estimates ceil((2r+eps)/smallVoxel)^3 small
// references a single atom contributes, per §4.A's capacity check.
func footprintReferenceCount(radius, smallVoxelNM float32) uint64 {
	const eps = 1e-4
	span := math.Ceil(float64((2*radius + eps) / smallVoxelNM))
	if span < 1 {
		span = 1
	}
	return uint64(span * span * span)
}

// snapAndClamp implements §4.A's bounding-box snap: min <- floor(min/2)*2,
// max <- ceil(max/2)*2, then clamp both to +-W/2, guaranteeing large-voxel
// alignment.
func (p *Preprocessor) snapAndClamp(min, max types.Vec3) scene.WorldBounds {
	half := p.cfg.WorldEdgeNM / 2
	edge := p.cfg.LargeVoxelNM

	snap := func(v types.Vec3, floorOp bool) types.Vec3 {
		out := v
		for axis := 0; axis < 3; axis++ {
			q := v[axis] / edge
			if floorOp {
				q = float32(math.Floor(float64(q)))
			} else {
				q = float32(math.Ceil(float64(q)))
			}
			out[axis] = q * edge
		}
		return out
	}

	lo := snap(min, true).Clamp(types.XYZ(-half, -half, -half), types.XYZ(half, half, half))
	hi := snap(max, false).Clamp(types.XYZ(-half, -half, -half), types.XYZ(half, half, half))
	return scene.WorldBounds{Min: lo, Max: hi}
}

// convert runs the conversion kernel: one task per atom, translating center
// to world-relative coordinates, substituting the element radius, and
// packing the result to half precision.
func (p *Preprocessor) convert(atoms []scene.Atom, bounds scene.WorldBounds) []scene.ConvertedAtom {
	out := make([]scene.ConvertedAtom, len(atoms))

	numWorkers := runtime.GOMAXPROCS(0)
	chunk := (len(atoms) + numWorkers - 1) / numWorkers
	if chunk == 0 {
		chunk = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < len(atoms); start += chunk {
		end := start + chunk
		if end > len(atoms) {
			end = len(atoms)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				a := atoms[i]
				out[i] = scene.ConvertedAtom{
					Position: a.Position.Sub(bounds.Min),
					Radius:   types.HalfFromFloat32(p.radii[a.Element]),
					Element:  a.Element,
				}
			}
		}(start, end)
	}
	wg.Wait()

	return out
}

var (
	// ErrCapacityExceededAtoms is returned when the incoming atom count
	// exceeds config.Config.MaxAtoms.
	ErrCapacityExceededAtoms = fmt.Errorf("preprocess: capacity exceeded (atoms)")

	// ErrCapacityExceededReferences is returned when the estimated total
	// small-voxel reference count exceeds config.Config.MaxReferences.
	ErrCapacityExceededReferences = fmt.Errorf("preprocess: capacity exceeded (references)")

	// ErrEmptyWorld is returned when no atom intersects the world volume.
	ErrEmptyWorld = fmt.Errorf("preprocess: no atoms intersect the world volume")
)
