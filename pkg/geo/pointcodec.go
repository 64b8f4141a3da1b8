package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// CoordBits is the quantization precision used for every persisted point.
// Writers and readers must agree on it; at 30 bits a packed point lands
// within ~2 cm of the input point.
const CoordBits uint32 = 30

// maxCoordBits keeps both tile axes and the quadkey inside their integer
// widths (maptile computes 1<<z in uint32).
const maxCoordBits = 31

// PackPoint quantizes p to the zoom-bits web mercator tile that contains it
// and returns that tile's quadkey.
// Latitudes beyond ±85.0511° snap to the edge row.
func PackPoint(p orb.Point, bits uint32) uint64 {
	checkBits(bits)
	t := maptile.At(p, maptile.Zoom(bits))

	// lon == 180 lands one past the last column.
	last := uint32(1)<<bits - 1
	t.X = min(t.X, last)
	t.Y = min(t.Y, last)
	return t.Quadkey()
}

// UnpackPoint returns the centre of the tile encoded by PackPoint.
func UnpackPoint(v uint64, bits uint32) orb.Point {
	checkBits(bits)
	return maptile.FromQuadkey(v, maptile.Zoom(bits)).Center()
}

func checkBits(bits uint32) {
	if bits == 0 || bits > maxCoordBits {
		panic(fmt.Sprintf("geo: coordinate bits %d out of range [1, %d]", bits, maxCoordBits))
	}
}
