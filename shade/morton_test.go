package shade

import "testing"

func TestForEachPixelInTileOrderVisitsEveryPixelExactlyOnce(t *testing.T) {
	const w, h = 17, 13 // deliberately not a multiple of TileSize
	seen := make(map[[2]uint32]bool)
	count := 0
	forEachPixelInTileOrder(w, h, func(x, y uint32) {
		key := [2]uint32{x, y}
		if seen[key] {
			t.Fatalf("pixel (%d,%d) visited more than once", x, y)
		}
		seen[key] = true
		count++
	})
	if count != w*h {
		t.Fatalf("visited %d pixels, want %d", count, w*h)
	}
}

func TestMorton2DInterleavesBits(t *testing.T) {
	cases := []struct {
		x, y uint32
		want uint32
	}{
		{0, 0, 0},
		{1, 0, 1},
		{0, 1, 2},
		{1, 1, 3},
		{2, 0, 4},
		{3, 3, 15},
	}
	for _, c := range cases {
		if got := morton2D(c.x, c.y); got != c.want {
			t.Fatalf("morton2D(%d,%d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestTileLocalOrderCoversEveryOffsetOnce(t *testing.T) {
	seen := make(map[[2]uint32]bool)
	for _, off := range tileLocalOrder {
		key := [2]uint32{off[0], off[1]}
		if seen[key] {
			t.Fatalf("offset %v repeated in tileLocalOrder", off)
		}
		seen[key] = true
	}
	if len(seen) != TileSize*TileSize {
		t.Fatalf("tileLocalOrder covers %d offsets, want %d", len(seen), TileSize*TileSize)
	}
}
