package scene

import "github.com/achilleasa/go-atomtrace/types"

// WorldBounds is the axis-aligned box snapped to large-voxel granularity
// that the atom preprocessor derives for a frame. Both corners are
// clamped to [-W/2, +W/2].
type WorldBounds struct {
	Min, Max types.Vec3
}

// Size returns Max - Min.
func (wb WorldBounds) Size() types.Vec3 {
	return wb.Max.Sub(wb.Min)
}
