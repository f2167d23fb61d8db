package classifier

import (
	"github.com/paulmach/orb/maptile"
)

type TileType string

const (
	TileTypeVector TileType = "vector"
	TileTypeRaster TileType = "raster"
)

// Observation is one raw request seen by the capture agent: a URL and the
// bytes that came back. The classifier decides whether it is a tile at all.
type Observation struct {
	URL  string
	Body []byte
}

// PreparedTile is a tile the capture agent already resolved to a
// coordinate, as opposed to a raw request log entry.
type PreparedTile struct {
	Coord      maptile.Tile
	SourceName string
	OriginURL  string
	Format     string
	Data       []byte
}

// Source identifies one remote tile endpoint discovered in the capture.
type Source struct {
	name        string
	urlTemplate string // literal {z}/{x}/{y} template; empty when never observed
	tileType    TileType
	format      string
	sampleURL   string // one concrete tile URL, for domain matching
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) URLTemplate() string {
	return s.urlTemplate
}

func (s *Source) TileType() TileType {
	return s.tileType
}

func (s *Source) Format() string {
	return s.format
}

func (s *Source) SampleURL() string {
	return s.sampleURL
}

// NewSourceForTest constructs a Source without running classification.
// Test-only; production sources always come out of Classify.
func NewSourceForTest(name, urlTemplate string, tileType TileType, format, sampleURL string) Source {
	return Source{
		name:        name,
		urlTemplate: urlTemplate,
		tileType:    tileType,
		format:      format,
		sampleURL:   sampleURL,
	}
}

// ClassifiedTile pairs a tile coordinate with its payload. Owned
// transiently by the pipeline; it is always folded into an archive.
type ClassifiedTile struct {
	Coord maptile.Tile
	Data  []byte
}

// Classification is one source together with every tile attributed to it.
type Classification struct {
	Source Source
	Tiles  []ClassifiedTile
}

// Result is the full outcome of classifying a capture: sources keyed by
// name, plus the count of observations that were not tiles.
type Result struct {
	Sources  map[string]*Classification
	Rejected int
}
