package types

import "golang.org/x/image/math/f16"

// Half is a IEEE-754 binary16 value, used for converted-atom radii and for
// the backing arrays of the color/motion output textures (RGBA16F/RG16F).
type Half uint16

// HalfFromFloat32 rounds f to the nearest representable half value.
func HalfFromFloat32(f float32) Half {
	return Half(f16.NewFloat16(f))
}

// Float32 widens h back to a float32.
func (h Half) Float32() float32 {
	return f16.Float16(h).Float32()
}
