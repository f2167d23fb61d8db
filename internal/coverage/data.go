package coverage

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Zoom bounds of the analysis subsystem.
//
// MaxAddressableZoom is the deepest zoom a captured tile may carry.
// MaxAnalysisZoom is the hard ceiling for coverage analysis and expansion:
// analysing a city-sized bounding box over the full z0-z22 pyramid implies
// on the order of 10^8 tiles, so every analysis is clamped to the captured
// zoom range plus a bounded expansion, never past this ceiling.
const (
	MaxAddressableZoom = maptile.Zoom(22)
	MaxAnalysisZoom    = maptile.Zoom(18)
)

// Report is the gap-analysis result for one tile source.
//
// TotalPossible and MissingCount are evaluated only over
// [MinZoom, TargetMaxZoom]; the full theoretical pyramid never enters the
// computation. Pure derived value: recomputing over the same tile set
// yields identical figures.
type Report struct {
	Bounds          orb.Bound
	MinZoom         maptile.Zoom
	MaxZoom         maptile.Zoom
	TargetMaxZoom   maptile.Zoom
	CapturedCount   int
	TotalPossible   int64
	MissingCount    int64
	CoveragePercent float64
	PerZoomCounts   map[maptile.Zoom]int
}
