package traverse

import (
	"testing"

	"github.com/achilleasa/go-atomtrace/types"
)

func TestNewDDAInitialCellAndStepDirection(t *testing.T) {
	d := NewDDA(types.XYZ(0.5, 2.5, -1.5), types.XYZ(1, -1, 0), 1)

	want := types.XYZi(0, 2, -2)
	if d.Cell != want {
		t.Fatalf("Cell = %v, want %v", d.Cell, want)
	}
	if d.step[0] != 1 || d.step[1] != -1 || d.step[2] != 0 {
		t.Fatalf("step = %v, want {1 -1 0}", d.step)
	}
	// The zero-direction axis must carry infinite tMax/tDel so Advance
	// never selects it.
	if d.tMax[2] <= 1e30 || d.tDel[2] <= 1e30 {
		t.Fatalf("expected infinite tMax/tDel on the zero-direction axis; got tMax=%v tDel=%v", d.tMax[2], d.tDel[2])
	}
}

func TestAdvanceStepsIntoNextCrossedVoxel(t *testing.T) {
	d := NewDDA(types.XYZ(0.25, 0.5, 0.5), types.XYZ(1, 0, 0), 1)

	axis, t0 := d.Advance()
	if axis != 0 {
		t.Fatalf("expected axis 0 to be crossed first; got %d", axis)
	}
	if t0 <= 0 {
		t.Fatalf("expected a positive crossing distance; got %v", t0)
	}
	if d.Cell[0] != 1 || d.Cell[1] != 0 || d.Cell[2] != 0 {
		t.Fatalf("expected DDA to step into cell (1,0,0); got %v", d.Cell)
	}

	// A second advance must cross the very next voxel boundary along the
	// same axis, since the ray direction never varies.
	axis2, t1 := d.Advance()
	if axis2 != 0 {
		t.Fatalf("expected axis 0 again; got %d", axis2)
	}
	if t1 <= t0 {
		t.Fatalf("expected monotonically increasing crossing distances; got %v then %v", t0, t1)
	}
	if d.Cell[0] != 2 {
		t.Fatalf("expected Cell[0] == 2 after second advance; got %d", d.Cell[0])
	}
}

func TestAdvancePicksEarliestCrossingAmongAxes(t *testing.T) {
	// A ray moving diagonally through a 1-unit grid should cross whichever
	// axis boundary is nearer first: the smaller tMax wins. dir has equal
	// x and y components, but the origin sits 0.1 from the next x
	// boundary and 0.9 from the next y boundary, so x is crossed first.
	d := NewDDA(types.XYZ(0.9, 0.1, 0.5), types.XYZ(1, 1, 0), 1)
	axis, _ := d.Advance()
	if axis != 0 {
		t.Fatalf("expected the x axis to be crossed first; got axis %d", axis)
	}
}
