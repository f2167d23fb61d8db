package bundle

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// RawTile is a tile the capture agent already resolved to a coordinate.
type RawTile struct {
	Z          uint32 `json:"z"`
	X          uint32 `json:"x"`
	Y          uint32 `json:"y"`
	SourceHint string `json:"source,omitempty"`
	OriginURL  string `json:"origin_url,omitempty"`
	Format     string `json:"format,omitempty"`
	Data       []byte `json:"data"` // base64 in the JSON encoding
}

func (t RawTile) Coord() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// RequestEntry is one raw request from a HAR-like capture log, before any
// tile classification has happened.
type RequestEntry struct {
	URL  string `json:"url"`
	Body []byte `json:"body"` // base64 in the JSON encoding
}

// Viewport is where the captured map was looking.
type Viewport struct {
	CenterLon float64 `json:"center_lon"`
	CenterLat float64 `json:"center_lat"`
	Zoom      float64 `json:"zoom"`
	Bounds    *ViewportBounds `json:"bounds,omitempty"`
}

type ViewportBounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (b *ViewportBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// CaptureBundle is everything the capture agent hands the pipeline. At
// least one of Tiles or Requests must be non-empty; Style and Viewport
// are optional extras.
type CaptureBundle struct {
	Tiles    []RawTile      `json:"tiles,omitempty"`
	Requests []RequestEntry `json:"requests,omitempty"`
	Style    json.RawMessage `json:"style,omitempty"` // raw style JSON, passed through untouched
	Viewport *Viewport      `json:"viewport,omitempty"`
}

// harLog mirrors just enough of the HAR 1.2 shape to pull out request
// URLs and response bodies.
type harLog struct {
	Log struct {
		Entries []harEntry `json:"entries"`
	} `json:"log"`
}

type harEntry struct {
	Request struct {
		URL string `json:"url"`
	} `json:"request"`
	Response struct {
		Status  int `json:"status"`
		Content struct {
			Text     string `json:"text"`
			Encoding string `json:"encoding"`
		} `json:"content"`
	} `json:"response"`
}
