package bvh

import "github.com/achilleasa/go-atomtrace/types"

// CubeOverlapsSphere is the exact cube-sphere overlap test: it reports
// whether the closed cube [cellMin, cellMin+edge]^3 intersects the sphere of
// the given center and radius. For each axis the closest point the cube
// offers is the sphere center clamped into the cube's extent on that axis;
// the overlap holds iff the squared distance to that closest point does not
// exceed r^2.
//
// This is deliberately the inclusive (<=) form rather than the strict (<)
// test d^2 = r^2 - distSq > 0: spec.md's B2 boundary case requires a sphere
// exactly tangent to a shared face (distSq == r^2) to be accepted in both
// adjacent voxels, not dropped by both, so equality ties toward acceptance
// rather than rejection.
func CubeOverlapsSphere(center types.Vec3, radius float32, cellMin types.Vec3, edge float32) bool {
	var distSq float32
	for axis := 0; axis < 3; axis++ {
		lo := cellMin[axis]
		hi := lo + edge
		c := center[axis]
		closest := c
		if closest < lo {
			closest = lo
		} else if closest > hi {
			closest = hi
		}
		d := closest - c
		distSq += d * d
	}
	return distSq <= radius*radius
}

// cellRangeForSphere returns the half-open [lo, hi) voxel-index range on one
// axis that a sphere's AABB can touch, clamped to [0, dim).
func cellRangeForSphere(center, radius, edge float32, dim int32) (lo, hi int32) {
	lo = int32(floorDiv(center-radius, edge))
	hi = int32(floorDiv(center+radius, edge)) + 1
	if lo < 0 {
		lo = 0
	}
	if hi > dim {
		hi = dim
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func floorDiv(v, edge float32) float32 {
	q := v / edge
	i := float32(int32(q))
	if q < i {
		i--
	}
	return i
}

// overlappedCells enumerates every voxel coordinate, within [0, dims), whose
// cube exactly overlaps the given sphere.
func overlappedCells(center types.Vec3, radius float32, edge float32, dims types.Vec3i, visit func(types.Vec3i)) {
	xlo, xhi := cellRangeForSphere(center[0], radius, edge, dims[0])
	ylo, yhi := cellRangeForSphere(center[1], radius, edge, dims[1])
	zlo, zhi := cellRangeForSphere(center[2], radius, edge, dims[2])

	for z := zlo; z < zhi; z++ {
		for y := ylo; y < yhi; y++ {
			for x := xlo; x < xhi; x++ {
				cellMin := types.XYZ(float32(x)*edge, float32(y)*edge, float32(z)*edge)
				if CubeOverlapsSphere(center, radius, cellMin, edge) {
					visit(types.XYZi(x, y, z))
				}
			}
		}
	}
}
