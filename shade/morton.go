package shade

// TileSize is the edge length of the square tile the pixel shader dispatches
// work in; the 64 pixels of a tile are visited in Morton (Z-order) sequence
// so that neighboring dispatch slots trace rays through nearby large
// voxels, the locality the primary traverser's cooperative fill relies on.
const TileSize = 8

var mortonMasks = [5]uint32{0x0000FFFF, 0x00FF00FF, 0x0F0F0F0F, 0x33333333, 0x55555555}

// morton2D interleaves the bits of x and y into a single Z-order index.
func morton2D(x, y uint32) uint32 {
	x = (x | x<<16) & mortonMasks[0]
	x = (x | x<<8) & mortonMasks[1]
	x = (x | x<<4) & mortonMasks[2]
	x = (x | x<<2) & mortonMasks[3]
	x = (x | x<<1) & mortonMasks[4]

	y = (y | y<<16) & mortonMasks[0]
	y = (y | y<<8) & mortonMasks[1]
	y = (y | y<<4) & mortonMasks[2]
	y = (y | y<<2) & mortonMasks[3]
	y = (y | y<<1) & mortonMasks[4]

	return x | y<<1
}

// tileLocalOrder is the fixed TileSize x TileSize sequence of (x, y) offsets
// a tile's 64 dispatch slots visit, sorted by their Morton index.
var tileLocalOrder = buildTileLocalOrder()

func buildTileLocalOrder() [TileSize * TileSize][2]uint32 {
	type offset struct {
		x, y  uint32
		index uint32
	}
	offsets := make([]offset, 0, TileSize*TileSize)
	for y := uint32(0); y < TileSize; y++ {
		for x := uint32(0); x < TileSize; x++ {
			offsets = append(offsets, offset{x, y, morton2D(x, y)})
		}
	}
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j-1].index > offsets[j].index; j-- {
			offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
		}
	}
	var out [TileSize * TileSize][2]uint32
	for i, o := range offsets {
		out[i] = [2]uint32{o.x, o.y}
	}
	return out
}

// forEachPixelInTileOrder visits every pixel of a width x height frame
// tile-by-tile in raster order, and Morton order within each tile, calling
// fn once per pixel with its (x, y) coordinate.
func forEachPixelInTileOrder(width, height uint32, fn func(x, y uint32)) {
	for tileY := uint32(0); tileY < height; tileY += TileSize {
		for tileX := uint32(0); tileX < width; tileX += TileSize {
			for _, off := range tileLocalOrder {
				x, y := tileX+off[0], tileY+off[1]
				if x >= width || y >= height {
					continue
				}
				fn(x, y)
			}
		}
	}
}
