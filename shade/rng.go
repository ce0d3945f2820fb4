package shade

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/go-atomtrace/types"
)

const teaDelta = 0x9e3779b9
const teaRounds = 4
const tau = 6.283185307179586

// teaHash mixes two words with the Tiny Encryption Algorithm's round
// function, used to derive deterministic per-pixel and per-sample random
// seeds from (pixel index, frame seed, sample index) tuples without any
// shared mutable generator state, so every pixel's sample sequence is
// reproducible from its inputs alone (R2).
func teaHash(v0, v1 uint32) uint32 {
	var sum uint32
	for i := 0; i < teaRounds; i++ {
		sum += teaDelta
		v0 += ((v1 << 4) + 0xa341316c) ^ (v1 + sum) ^ ((v1 >> 5) + 0xc8013ea4)
		v1 += ((v0 << 4) + 0xad90777d) ^ (v0 + sum) ^ ((v0 >> 5) + 0x7e95761e)
	}
	return v0
}

// pixelSeed derives a per-pixel random seed from the pixel's linear index
// and the frame's seed value.
func pixelSeed(pixelIndex uint32, frameSeed uint32) uint32 {
	return teaHash(pixelIndex, frameSeed)
}

// sampleUV derives a deterministic (u, v) pair in [0, 1) for the
// sampleIndex-th AO sample of a pixel carrying the given seed.
func sampleUV(seed uint32, sampleIndex uint32) (u, v float32) {
	// Keep the top 24 bits so the float32 conversion is exact and the
	// result never rounds up to 1.
	const inv2Pow24 = 1.0 / (1 << 24)
	h1 := teaHash(seed, 2*sampleIndex+1)
	h2 := teaHash(seed, 2*sampleIndex+2)
	return float32(h1>>8) * inv2Pow24, float32(h2>>8) * inv2Pow24
}

// cosineSampleHemisphere maps the (u, v) unit-square sample to a direction
// drawn from the cosine-weighted hemisphere around normal, using Malley's
// method (disk sample projected up onto the hemisphere).
func cosineSampleHemisphere(normal types.Vec3, u, v float32) types.Vec3 {
	r := math32.Sqrt(u)
	theta := tau * v
	x := r * math32.Cos(theta)
	y := r * math32.Sin(theta)
	z := math32.Sqrt(max32(0, 1-u))

	t, b := tangentFrame(normal)
	return t.Mul(x).Add(b.Mul(y)).Add(normal.Mul(z))
}

// tangentFrame builds an arbitrary orthonormal basis (tangent, bitangent)
// perpendicular to normal.
func tangentFrame(normal types.Vec3) (tangent, bitangent types.Vec3) {
	up := types.XYZ(0, 1, 0)
	if math32.Abs(normal[1]) > 0.99 {
		up = types.XYZ(1, 0, 0)
	}
	tangent = up.Cross(normal).Normalize()
	bitangent = normal.Cross(tangent)
	return tangent, bitangent
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
