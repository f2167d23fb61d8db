package archive

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

/*
Tile ID scheme.

Every addressable tile maps to a single uint64: the cumulative count of
all tiles at shallower zooms (sum of 4^t for t < z) plus the position of
(x, y) on the Hilbert curve of order z. Hilbert ordering keeps spatially
adjacent tiles adjacent in the file, which is what makes range reads over
a clustered tile data section cheap.

The mapping is bijective for z <= 26; the pipeline only ever emits
z <= 22.
*/

const maxIDZoom = 26

// TileID converts a tile coordinate to its archive tile ID.
func TileID(t maptile.Tile) (uint64, *ArchiveError) {
	if t.Z > maxIDZoom {
		return 0, &ArchiveError{
			Message:   fmt.Sprintf("zoom %d exceeds the addressable pyramid", t.Z),
			Retryable: false,
			Cause:     ErrCauseZoomRange,
		}
	}
	n := uint32(1) << t.Z
	if t.X >= n || t.Y >= n {
		return 0, &ArchiveError{
			Message:   fmt.Sprintf("coordinate %d/%d/%d outside the grid", t.Z, t.X, t.Y),
			Retryable: false,
			Cause:     ErrCauseZoomRange,
		}
	}

	var acc uint64
	for z := maptile.Zoom(0); z < t.Z; z++ {
		acc += uint64(1) << (2 * z)
	}

	var d uint64
	tx, ty := t.X, t.Y
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint32
		if tx&s > 0 {
			rx = 1
		}
		if ty&s > 0 {
			ry = 1
		}
		d += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		rotateQuadrant(s, &tx, &ty, rx, ry)
	}
	return acc + d, nil
}

// TileIDToCoord converts an archive tile ID back to its coordinate.
func TileIDToCoord(id uint64) (maptile.Tile, *ArchiveError) {
	var acc uint64
	for z := maptile.Zoom(0); z <= maxIDZoom; z++ {
		numTiles := uint64(1) << (2 * z)
		if id < acc+numTiles {
			return hilbertToCoord(z, id-acc), nil
		}
		acc += numTiles
	}
	return maptile.Tile{}, &ArchiveError{
		Message:   fmt.Sprintf("tile id %d beyond zoom %d", id, maxIDZoom),
		Retryable: false,
		Cause:     ErrCauseZoomRange,
	}
}

func hilbertToCoord(z maptile.Zoom, d uint64) maptile.Tile {
	n := uint64(1) << z
	var x, y uint64
	t := d
	for s := uint64(1); s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		t /= 4
	}
	return maptile.New(uint32(x), uint32(y), z)
}

func rotateQuadrant(n uint32, x, y *uint32, rx, ry uint32) {
	if ry == 0 {
		if rx == 1 {
			*x = n - 1 - *x
			*y = n - 1 - *y
		}
		*x, *y = *y, *x
	}
}
