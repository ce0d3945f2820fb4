package traverse

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/go-atomtrace/types"
)

// testCell is the exact ray-sphere intersection test each traverser runs
// against a candidate atom. dir must be normalized. It returns only the near
// root: a ray whose origin lies inside the sphere (near < 0) misses rather
// than falling through to the far root, so a camera embedded in an atom
// reports no hit instead of flickering between the atom's near and far
// surface from frame to frame.
func testCell(origin, dir types.Vec3, center types.Vec3, radius float32) (t float32, hit bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius

	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math32.Sqrt(disc)

	near := -b - sq
	if near < 0 {
		return 0, false
	}

	return near, true
}
