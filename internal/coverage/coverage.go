package coverage

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

/*
Responsibilities

- Convert between tile coordinates and geographic bounds
- Compute how much of a bounded region at a bounded zoom range is covered
- Enumerate the bounded set of missing tiles, deepest zoom first

Coverage Semantics

- All analysis is confined to [minZoom, targetMaxZoom], where
  targetMaxZoom = min(maxZoom + expandZoom, MaxAnalysisZoom)
- The full addressable pyramid (z0-z22) never enters any computation
- Mapping functions are pure; only Analyze records metadata

The calculator never fetches anything; it only does tile arithmetic.
*/

// TileToBounds returns the WGS84 geographic bounds of a single tile.
func TileToBounds(t maptile.Tile) orb.Bound {
	return t.Bound()
}

// BoundsOf returns the union of the geographic bounds of all given tiles.
// Errors on an empty input: there is no meaningful bound of nothing.
func BoundsOf(tiles []maptile.Tile) (orb.Bound, failure.ClassifiedError) {
	if len(tiles) == 0 {
		return orb.Bound{}, &CoverageError{
			Message:   "cannot compute bounds of an empty tile set",
			Retryable: false,
			Cause:     ErrCauseEmptyTileSet,
		}
	}

	bound := tiles[0].Bound()
	for _, t := range tiles[1:] {
		bound = bound.Union(t.Bound())
	}
	return bound, nil
}

// TilesInBounds enumerates every tile at the given zoom intersecting the
// bounds, clamped to the valid tile grid on each axis. Bounds exceeding
// the projected world never produce out-of-range coordinates.
func TilesInBounds(bound orb.Bound, zoom maptile.Zoom) []maptile.Tile {
	minX, minY, maxX, maxY := tileRange(bound, zoom)

	capacity := int64(maxX-minX+1) * int64(maxY-minY+1)
	if capacity > 1<<20 {
		capacity = 1 << 20
	}
	tiles := make([]maptile.Tile, 0, capacity)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, maptile.New(x, y, zoom))
		}
	}
	return tiles
}

// tileRange computes the inclusive tile-index box covering bound at zoom,
// clamped to [0, 2^zoom-1] on both axes.
func tileRange(bound orb.Bound, zoom maptile.Zoom) (minX, minY, maxX, maxY uint32) {
	n := uint32(1) << zoom
	last := n - 1

	// Tile y grows southward, so the north-west corner carries the minimum
	// indices on both axes.
	nw := maptile.Fraction(orb.Point{bound.Min[0], bound.Max[1]}, zoom)
	se := maptile.Fraction(orb.Point{bound.Max[0], bound.Min[1]}, zoom)

	minX = clampIndex(nw[0], last)
	minY = clampIndex(nw[1], last)
	maxX = clampIndex(se[0], last)
	maxY = clampIndex(se[1], last)

	if maxX < minX {
		maxX = minX
	}
	if maxY < minY {
		maxY = minY
	}
	return minX, minY, maxX, maxY
}

func clampIndex(f float64, last uint32) uint32 {
	if f < 0 {
		return 0
	}
	if f > float64(last) {
		return last
	}
	return uint32(f)
}

// Calculator performs gap analysis for one tile source, recording failures
// to the metadata sink.
type Calculator struct {
	metadataSink metadata.MetadataSink
}

func NewCalculator(metadataSink metadata.MetadataSink) Calculator {
	return Calculator{
		metadataSink: metadataSink,
	}
}

// Analyze computes the coverage report for a set of captured tiles within
// the given bounds.
//
// The analysed zoom range is [minZoom, targetMaxZoom] where minZoom and
// maxZoom come from the captured set and
// targetMaxZoom = min(maxZoom+expandZoom, MaxAnalysisZoom). The cap is a
// hard ceiling regardless of input; a negative expandZoom counts as zero.
func (c *Calculator) Analyze(
	tiles []maptile.Tile,
	bounds orb.Bound,
	expandZoom int,
) (Report, failure.ClassifiedError) {
	if len(tiles) == 0 {
		err := &CoverageError{
			Message:   "cannot analyze coverage of an empty tile set",
			Retryable: false,
			Cause:     ErrCauseEmptyTileSet,
		}
		c.recordError("Calculator.Analyze", err)
		return Report{}, err
	}
	if expandZoom < 0 {
		expandZoom = 0
	}

	minZoom := tiles[0].Z
	maxZoom := tiles[0].Z
	perZoom := make(map[maptile.Zoom]int)
	for _, t := range tiles {
		if t.Z < minZoom {
			minZoom = t.Z
		}
		if t.Z > maxZoom {
			maxZoom = t.Z
		}
		perZoom[t.Z]++
	}
	if maxZoom > MaxAddressableZoom {
		err := &CoverageError{
			Message:   fmt.Sprintf("captured tile at zoom %d exceeds the addressable pyramid", maxZoom),
			Retryable: false,
			Cause:     ErrCauseInvalidZoom,
		}
		c.recordError("Calculator.Analyze", err)
		return Report{}, err
	}

	targetMaxZoom := maxZoom + maptile.Zoom(expandZoom)
	if targetMaxZoom > MaxAnalysisZoom {
		targetMaxZoom = MaxAnalysisZoom
	}
	if targetMaxZoom < minZoom {
		// captured set lives entirely above the analysis ceiling; keep the
		// range non-empty instead of inventing an unreachable target
		targetMaxZoom = minZoom
	}

	captured := make(maptile.Set, len(tiles))
	for _, t := range tiles {
		captured[t] = true
	}

	var totalPossible int64
	var capturedInRange int64
	for z := minZoom; z <= targetMaxZoom; z++ {
		minX, minY, maxX, maxY := tileRange(bounds, z)
		possible := int64(maxX-minX+1) * int64(maxY-minY+1)
		totalPossible += possible

		for t := range captured {
			if t.Z == z && t.X >= minX && t.X <= maxX && t.Y >= minY && t.Y <= maxY {
				capturedInRange++
			}
		}
	}

	missing := totalPossible - capturedInRange
	if missing < 0 {
		missing = 0
	}

	coverage := 0.0
	if totalPossible > 0 {
		coverage = float64(capturedInRange) / float64(totalPossible) * 100.0
	}

	return Report{
		Bounds:          bounds,
		MinZoom:         minZoom,
		MaxZoom:         maxZoom,
		TargetMaxZoom:   targetMaxZoom,
		CapturedCount:   len(tiles),
		TotalPossible:   totalPossible,
		MissingCount:    missing,
		CoveragePercent: coverage,
		PerZoomCounts:   perZoom,
	}, nil
}

// MissingTiles enumerates up to limit missing tiles within the report's
// bounds and zoom range, deepest zoom first (more visual detail per unit
// area), then row-major within a zoom. Deterministic for a given input.
func (c *Calculator) MissingTiles(
	tiles []maptile.Tile,
	report Report,
	limit int,
) []maptile.Tile {
	if limit <= 0 {
		return nil
	}

	captured := make(maptile.Set, len(tiles))
	for _, t := range tiles {
		captured[t] = true
	}

	missing := make([]maptile.Tile, 0, limit)
	for z := report.TargetMaxZoom; ; z-- {
		minX, minY, maxX, maxY := tileRange(report.Bounds, z)
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				t := maptile.New(x, y, z)
				if captured[t] {
					continue
				}
				missing = append(missing, t)
				if len(missing) == limit {
					return missing
				}
			}
		}
		if z == report.MinZoom {
			break
		}
	}
	return missing
}

func (c *Calculator) recordError(action string, err *CoverageError) {
	c.metadataSink.RecordError(
		time.Now(),
		"coverage",
		action,
		mapCoverageErrorToMetadataCause(err),
		err.Error(),
		nil,
	)
}
