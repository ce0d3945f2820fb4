package scene

import "github.com/achilleasa/go-atomtrace/types"

// Camera mirrors the camera provider contract: a position, a column-major
// rotation basis, the precomputed FOV multiplier (tan(fov/2) * 2/N) and a
// per-frame jitter offset used for camera-space antialiasing.
type Camera struct {
	Position      types.Vec3
	Basis         types.Mat3
	FOVMultiplier float32
	Jitter        types.Vec2
}

// CameraProvider supplies the camera for a given frame id.
type CameraProvider interface {
	Camera(frameID uint64) (Camera, error)
}

// PrimaryRay builds the primary ray for pixel (px, py) out of N x N, per the
// pixel shader's ray generation rule (§4.D): pixel center + half-pixel +
// jitter, flipped in y, scaled by the FOV multiplier, normalized, rotated
// by the camera basis, offset from the camera position.
func (c Camera) PrimaryRay(px, py int, n int) (origin, dir types.Vec3) {
	half := float32(n) * 0.5
	x := (float32(px) + 0.5 + c.Jitter[0] - half)
	y := -(float32(py) + 0.5 + c.Jitter[1] - half)

	local := types.XYZ(x*c.FOVMultiplier, y*c.FOVMultiplier, -1).Normalize()
	dir = c.Basis.MulVec3(local).Normalize()
	origin = c.Position
	return origin, dir
}
