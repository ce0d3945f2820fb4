package shade

import "github.com/achilleasa/go-atomtrace/types"

// Output holds one frame's three shaded textures, laid out as described in
// the compute backend contract: color (RGBA16F), depth (R32F, camera-space
// nanometers) and motion (RG16F, pixel units).
type Output struct {
	Width, Height uint32
	Color         []types.Half // 4 components per pixel
	Depth         []float32    // 1 component per pixel
	Motion        []types.Half // 2 components per pixel
}

// NewOutput allocates a zeroed output of the given dimensions.
func NewOutput(width, height uint32) *Output {
	n := int(width) * int(height)
	return &Output{
		Width:  width,
		Height: height,
		Color:  make([]types.Half, n*4),
		Depth:  make([]float32, n),
		Motion: make([]types.Half, n*2),
	}
}

func (o *Output) setColor(x, y uint32, c types.Vec3, alpha float32) {
	idx := (y*o.Width + x) * 4
	o.Color[idx+0] = types.HalfFromFloat32(c[0])
	o.Color[idx+1] = types.HalfFromFloat32(c[1])
	o.Color[idx+2] = types.HalfFromFloat32(c[2])
	o.Color[idx+3] = types.HalfFromFloat32(alpha)
}

func (o *Output) setDepth(x, y uint32, depth float32) {
	o.Depth[y*o.Width+x] = depth
}

func (o *Output) setMotion(x, y uint32, motion types.Vec2) {
	idx := (y*o.Width + x) * 2
	o.Motion[idx+0] = types.HalfFromFloat32(motion[0])
	o.Motion[idx+1] = types.HalfFromFloat32(motion[1])
}
