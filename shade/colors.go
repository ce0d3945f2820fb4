package shade

import "github.com/achilleasa/go-atomtrace/types"

// ElementColors maps an atomic number (0..=118) to its diffuse base color.
type ElementColors [119]types.Vec3

// DefaultElementColors returns the conventional CPK coloring for a handful
// of common elements, falling back to a neutral pink for anything not
// explicitly listed.
func DefaultElementColors() ElementColors {
	var t ElementColors
	for i := range t {
		t[i] = types.XYZ(0.9, 0.6, 0.7) // CPK fallback: pink
	}
	t[1] = types.XYZ(1.0, 1.0, 1.0)  // hydrogen: white
	t[6] = types.XYZ(0.25, 0.25, 0.25) // carbon: dark gray
	t[7] = types.XYZ(0.19, 0.31, 0.97) // nitrogen: blue
	t[8] = types.XYZ(1.0, 0.05, 0.05)  // oxygen: red
	t[15] = types.XYZ(1.0, 0.5, 0.0)   // phosphorus: orange
	t[16] = types.XYZ(0.9, 0.78, 0.2)  // sulfur: yellow
	t[26] = types.XYZ(0.88, 0.4, 0.2)  // iron: rust orange
	return t
}
