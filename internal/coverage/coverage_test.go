package coverage_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/mapfreeze/internal/coverage"
	"github.com/rohmanhakim/mapfreeze/internal/metadata"
)

func TestTileToBounds_KnownTile(t *testing.T) {
	// z1 splits the world in four; tile (0,0,1) is the north-west quadrant
	bound := coverage.TileToBounds(maptile.New(0, 0, 1))

	assert.InDelta(t, -180.0, bound.Min[0], 1e-9)
	assert.InDelta(t, 0.0, bound.Max[0], 1e-9)
	assert.InDelta(t, 0.0, bound.Min[1], 1e-6)
	assert.InDelta(t, 85.0511, bound.Max[1], 1e-3)
}

// tileToBounds then tilesInBounds at the same zoom must include the
// original coordinate, for any valid coordinate.
func TestRoundTrip_TileContainedInOwnBounds(t *testing.T) {
	tiles := []maptile.Tile{
		maptile.New(0, 0, 0),
		maptile.New(1, 0, 1),
		maptile.New(654, 1583, 12),
		maptile.New(0, 4095, 12),
		maptile.New(4095, 0, 12),
		maptile.New(140000, 90000, 18),
	}

	for _, tile := range tiles {
		bound := coverage.TileToBounds(tile)
		candidates := coverage.TilesInBounds(bound, tile.Z)
		assert.Contains(t, candidates, tile, "tile %v not found in its own bounds", tile)
	}
}

func TestTilesInBounds_ClampedToGrid(t *testing.T) {
	// bounds wildly exceeding the projected world
	huge := orb.Bound{Min: orb.Point{-500, -95}, Max: orb.Point{500, 95}}

	for _, z := range []maptile.Zoom{0, 1, 3} {
		tiles := coverage.TilesInBounds(huge, z)
		n := uint32(1) << z
		assert.Len(t, tiles, int(n*n))
		for _, tile := range tiles {
			assert.Less(t, tile.X, n)
			assert.Less(t, tile.Y, n)
		}
	}
}

func TestBoundsOf_UnionOfTiles(t *testing.T) {
	tiles := []maptile.Tile{
		maptile.New(2, 2, 4),
		maptile.New(3, 3, 4),
	}

	bound, err := coverage.BoundsOf(tiles)
	require.Nil(t, err)

	assert.Equal(t, maptile.New(2, 2, 4).Bound().Min[0], bound.Min[0])
	assert.Equal(t, maptile.New(2, 2, 4).Bound().Max[1], bound.Max[1])
	assert.Equal(t, maptile.New(3, 3, 4).Bound().Max[0], bound.Max[0])
	assert.Equal(t, maptile.New(3, 3, 4).Bound().Min[1], bound.Min[1])
}

func TestBoundsOf_EmptyInputErrors(t *testing.T) {
	_, err := coverage.BoundsOf(nil)
	require.NotNil(t, err)

	var covErr *coverage.CoverageError
	require.ErrorAs(t, err, &covErr)
	assert.Equal(t, coverage.ErrCauseEmptyTileSet, covErr.Cause)
}

func TestAnalyze_EmptyTileSetErrors(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})

	_, err := calc.Analyze(nil, orb.Bound{}, 1)
	require.NotNil(t, err)
}

// ~50km2 area around a city at zooms 10-13, two sources' worth of tiles.
func cityTiles(t *testing.T) []maptile.Tile {
	t.Helper()

	center := orb.Point{13.40, 52.52}
	var tiles []maptile.Tile
	for z := maptile.Zoom(10); z <= 13; z++ {
		base := maptile.At(center, z)
		span := uint32(1)
		if z >= 12 {
			span = 2
		}
		for dx := uint32(0); dx <= span; dx++ {
			for dy := uint32(0); dy <= span; dy++ {
				tiles = append(tiles, maptile.New(base.X+dx, base.Y+dy, z))
			}
		}
	}
	return tiles
}

func TestAnalyze_CityScenario(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})
	tiles := cityTiles(t)

	bounds, berr := coverage.BoundsOf(tiles)
	require.Nil(t, berr)

	report, err := calc.Analyze(tiles, bounds, 1)
	require.Nil(t, err)

	assert.Equal(t, maptile.Zoom(10), report.MinZoom)
	assert.Equal(t, maptile.Zoom(13), report.MaxZoom)
	assert.Equal(t, maptile.Zoom(14), report.TargetMaxZoom)
	assert.Equal(t, len(tiles), report.CapturedCount)

	// a handful of zoom levels over a city: missing tiles number in the
	// tens or hundreds, never millions
	assert.Greater(t, report.MissingCount, int64(0))
	assert.Less(t, report.MissingCount, int64(1000))
	assert.Greater(t, report.CoveragePercent, 0.0)
	assert.LessOrEqual(t, report.CoveragePercent, 100.0)

	assert.Equal(t, 4, report.PerZoomCounts[maptile.Zoom(10)])
	assert.Equal(t, 9, report.PerZoomCounts[maptile.Zoom(13)])
}

// total_possible is bounded by [minZoom, min(maxZoom+expandZoom, 18)] for
// any expandZoom, never by the full pyramid.
func TestAnalyze_BoundedCoverage(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})
	tiles := cityTiles(t)

	bounds, berr := coverage.BoundsOf(tiles)
	require.Nil(t, berr)

	for _, expand := range []int{0, 1, 5, 50, 1000} {
		report, err := calc.Analyze(tiles, bounds, expand)
		require.Nil(t, err)

		assert.LessOrEqual(t, report.TargetMaxZoom, coverage.MaxAnalysisZoom,
			"expandZoom=%d exceeded the analysis ceiling", expand)

		// upper bound: the full grid of the analysis range, which for a
		// city-sized box at z<=18 stays far below the z22 pyramid
		var gridBound int64
		for z := report.MinZoom; z <= report.TargetMaxZoom; z++ {
			all := coverage.TilesInBounds(report.Bounds, z)
			gridBound += int64(len(all))
		}
		assert.Equal(t, gridBound, report.TotalPossible)
	}
}

func TestAnalyze_NegativeExpandTreatedAsZero(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})
	tiles := []maptile.Tile{maptile.New(550, 335, 10)}

	report, err := calc.Analyze(tiles, coverage.TileToBounds(tiles[0]), -3)
	require.Nil(t, err)
	assert.Equal(t, maptile.Zoom(10), report.TargetMaxZoom)
}

func TestMissingTiles_DeepestZoomFirstAndBounded(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})
	tiles := cityTiles(t)

	bounds, berr := coverage.BoundsOf(tiles)
	require.Nil(t, berr)

	report, err := calc.Analyze(tiles, bounds, 1)
	require.Nil(t, err)

	limit := 10
	missing := calc.MissingTiles(tiles, report, limit)
	assert.Len(t, missing, limit)

	captured := make(maptile.Set, len(tiles))
	for _, tile := range tiles {
		captured[tile] = true
	}

	prevZoom := missing[0].Z
	assert.Equal(t, report.TargetMaxZoom, prevZoom)
	for _, m := range missing {
		assert.False(t, captured[m], "missing list contains a captured tile")
		assert.LessOrEqual(t, m.Z, prevZoom, "zoom order must be non-increasing")
		prevZoom = m.Z
	}
}

func TestMissingTiles_Deterministic(t *testing.T) {
	calc := coverage.NewCalculator(&metadata.NoopSink{})
	tiles := cityTiles(t)

	bounds, _ := coverage.BoundsOf(tiles)
	report, err := calc.Analyze(tiles, bounds, 0)
	require.Nil(t, err)

	first := calc.MissingTiles(tiles, report, 25)
	second := calc.MissingTiles(tiles, report, 25)
	assert.Equal(t, first, second)
}
