// Package scene defines the external contract types the core consumes:
// atoms supplied by the frame provider and cameras supplied by the camera
// provider (see the compute backend and frame/camera contracts).
package scene

import "github.com/achilleasa/go-atomtrace/types"

// Atom is a single sphere as delivered by the frame provider, in nanometers.
// Element is an atomic number in 0..=118.
type Atom struct {
	Position types.Vec3
	Radius   float32
	Element  uint8
}

// ConvertedAtom is the packed, world-relative representation produced by
// the atom preprocessor. Position has been translated so that the world
// minimum corner sits at the origin; Radius has been substituted from the
// element radius table and stored at half precision.
type ConvertedAtom struct {
	Position types.Vec3
	Radius   types.Half
	Element  uint8
}

// FrameProvider supplies the atom array for a given frame id. It is an
// external collaborator; the core never constructs one itself.
type FrameProvider interface {
	Atoms(frameID uint64) ([]Atom, error)
}

// ElementRadii maps an atomic number (0..=118) to its covalent/van-der-Waals
// radius in nanometers, used by the preprocessor's conversion stage.
type ElementRadii [119]float32

// DefaultElementRadii returns a table seeded with a handful of common
// elements (hydrogen through iron) and a generic fallback of 0.15nm for any
// element not explicitly listed; callers may override individual slots.
func DefaultElementRadii() ElementRadii {
	var t ElementRadii
	for i := range t {
		t[i] = 0.15
	}
	t[1] = 0.110  // hydrogen
	t[6] = 0.170  // carbon
	t[7] = 0.155  // nitrogen
	t[8] = 0.152  // oxygen
	t[15] = 0.180 // phosphorus
	t[16] = 0.180 // sulfur
	t[26] = 0.126 // iron
	return t
}
