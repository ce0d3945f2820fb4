// Package traverse implements the primary and ambient-occlusion ray
// traversers that walk the bvh package's two-level uniform grid.
package traverse

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/go-atomtrace/types"
)

const epsilon = 1e-6

// DDA is a digital differential analyzer: a value type that walks a ray
// through a uniformly-spaced voxel grid one voxel at a time, always
// stepping into whichever neighboring voxel the ray reaches soonest.
type DDA struct {
	Cell types.Vec3i
	step types.Vec3i
	tMax types.Vec3
	tDel types.Vec3
}

// NewDDA initializes a DDA walking the given ray through a grid of the
// given voxel edge length, starting from the voxel containing origin.
func NewDDA(origin, dir types.Vec3, edge float32) DDA {
	d := DDA{}
	for axis := 0; axis < 3; axis++ {
		d.Cell[axis] = int32(floor32(origin[axis] / edge))

		switch {
		case dir[axis] > epsilon:
			d.step[axis] = 1
			nextBoundary := float32(d.Cell[axis]+1) * edge
			d.tMax[axis] = (nextBoundary - origin[axis]) / dir[axis]
			d.tDel[axis] = edge / dir[axis]
		case dir[axis] < -epsilon:
			d.step[axis] = -1
			boundary := float32(d.Cell[axis]) * edge
			d.tMax[axis] = (boundary - origin[axis]) / dir[axis]
			d.tDel[axis] = -edge / dir[axis]
		default:
			d.step[axis] = 0
			d.tMax[axis] = inf32()
			d.tDel[axis] = inf32()
		}
	}
	return d
}

// Advance steps the DDA into the next voxel along whichever axis the ray
// crosses soonest, returning that axis and the ray parameter t at which the
// crossing occurs.
func (d *DDA) Advance() (axis int, t float32) {
	axis = 0
	if d.tMax[1] < d.tMax[axis] {
		axis = 1
	}
	if d.tMax[2] < d.tMax[axis] {
		axis = 2
	}
	t = d.tMax[axis]
	d.Cell[axis] += d.step[axis]
	d.tMax[axis] += d.tDel[axis]
	return axis, t
}

func floor32(v float32) float32 {
	i := float32(int32(v))
	if v < i {
		i--
	}
	return i
}

func inf32() float32 {
	return math32.Inf(1)
}
