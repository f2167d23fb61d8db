package classifier

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/urlutil"
)

/*
Responsibilities

- Decide whether a captured request is a tile at all
- Extract the (z, x, y) coordinate from path or query addressing
- Infer tile type (vector/raster) from extension, then content magic
- Derive a stable source identity from the URL

Classification Semantics

- A URL that cannot be parsed into (z, x, y) is silently excluded; it is
  not an error, most captured requests are not tiles
- Two tiles sharing the same derived URL template belong to one source
- An empty result for a bundle that claims to contain tiles is the
  caller's error to report, not this component's

The classifier never fetches anything; it only inspects what the capture
agent recorded.
*/

// pathTilePattern matches a trailing /{z}/{x}/{y}[.ext] coordinate triple
// in a URL path.
var pathTilePattern = regexp.MustCompile(`/(\d{1,2})/(\d+)/(\d+)(?:\.([a-zA-Z0-9]+))?$`)

type Classifier struct {
	metadataSink metadata.MetadataSink
}

func NewClassifier(metadataSink metadata.MetadataSink) Classifier {
	return Classifier{
		metadataSink: metadataSink,
	}
}

// Classify inspects raw request observations and groups the tile-shaped
// ones into sources.
func (c *Classifier) Classify(observations []Observation) Result {
	result := Result{Sources: make(map[string]*Classification)}
	byTemplate := make(map[string]*Classification)

	for _, obs := range observations {
		if len(obs.Body) == 0 {
			result.Rejected++
			continue
		}

		coord, template, ext, err := parseTileURL(obs.URL)
		if err != nil {
			// a URL with a coordinate that falls off the grid is worth an
			// event; a URL that simply is not a tile is not
			if err.Cause == ErrCauseCoordinateRange {
				c.recordError("Classifier.Classify", obs.URL, err)
			}
			result.Rejected++
			continue
		}

		key := urlutil.CanonicalizeTemplate(template)
		group, exists := byTemplate[key]
		if !exists {
			tileType, format := inferTileType(ext, obs.Body)
			group = &Classification{
				Source: Source{
					name:        c.uniqueName(result.Sources, obs.URL),
					urlTemplate: template,
					tileType:    tileType,
					format:      format,
					sampleURL:   obs.URL,
				},
			}
			byTemplate[key] = group
			result.Sources[group.Source.name] = group
		}
		group.Tiles = append(group.Tiles, ClassifiedTile{Coord: coord, Data: obs.Body})
	}

	if result.Rejected > 0 {
		c.metadataSink.RecordWarning(
			"classifier",
			fmt.Sprintf("%d observations were not tiles and were excluded", result.Rejected),
		)
	}
	return result
}

// ClassifyPrepared groups tiles the capture agent already resolved to
// coordinates, validating each coordinate against the tile grid.
func (c *Classifier) ClassifyPrepared(tiles []PreparedTile) Result {
	result := Result{Sources: make(map[string]*Classification)}

	for _, tile := range tiles {
		if len(tile.Data) == 0 || !validCoord(tile.Coord) {
			result.Rejected++
			continue
		}

		name := tile.SourceName
		if name == "" {
			name = sourceNameFromURL(tile.OriginURL)
		}

		group, exists := result.Sources[name]
		if !exists {
			tileType, format := inferTileType(tile.Format, tile.Data)
			template := ""
			if tile.OriginURL != "" {
				if _, derived, _, err := parseTileURL(tile.OriginURL); err == nil {
					template = derived
				}
			}
			group = &Classification{
				Source: Source{
					name:        name,
					urlTemplate: template,
					tileType:    tileType,
					format:      format,
					sampleURL:   tile.OriginURL,
				},
			}
			result.Sources[name] = group
		}
		group.Tiles = append(group.Tiles, ClassifiedTile{Coord: tile.Coord, Data: tile.Data})
	}

	if result.Rejected > 0 {
		c.metadataSink.RecordWarning(
			"classifier",
			fmt.Sprintf("%d prepared tiles were invalid and were excluded", result.Rejected),
		)
	}
	return result
}

// uniqueName derives a source name from the URL and de-collides it
// against already-known sources belonging to other templates.
func (c *Classifier) uniqueName(known map[string]*Classification, rawURL string) string {
	name := sourceNameFromURL(rawURL)
	if _, taken := known[name]; !taken {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", name, i)
		if _, taken := known[candidate]; !taken {
			return candidate
		}
	}
}

func (c *Classifier) recordError(action string, rawURL string, err *ClassifierError) {
	c.metadataSink.RecordError(
		time.Now(),
		"classifier",
		action,
		mapClassifierErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, rawURL),
		},
	)
}

func sourceNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}

	path := parsed.Path
	// drop the coordinate part so it never contributes a "segment"
	if loc := pathTilePattern.FindStringIndex(path); loc != nil {
		path = path[:loc[0]]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")

	return deriveSourceName(parsed.Host, segments)
}

// parseTileURL extracts the coordinate from a tile URL and derives the
// {z}/{x}/{y} template, preserving non-coordinate query parameters.
func parseTileURL(rawURL string) (maptile.Tile, string, string, *ClassifierError) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return maptile.Tile{}, "", "", &ClassifierError{
			Message:   fmt.Sprintf("unparseable url: %q", rawURL),
			Retryable: false,
			Cause:     ErrCauseNotATile,
		}
	}

	if match := pathTilePattern.FindStringSubmatchIndex(parsed.Path); match != nil {
		z, _ := strconv.ParseUint(parsed.Path[match[2]:match[3]], 10, 32)
		x, _ := strconv.ParseUint(parsed.Path[match[4]:match[5]], 10, 32)
		y, _ := strconv.ParseUint(parsed.Path[match[6]:match[7]], 10, 32)

		ext := ""
		if match[8] >= 0 {
			ext = parsed.Path[match[8]:match[9]]
		}

		coord := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
		if !validCoord(coord) {
			return maptile.Tile{}, "", "", &ClassifierError{
				Message:   fmt.Sprintf("coordinate %d/%d/%d out of range", z, x, y),
				Retryable: false,
				Cause:     ErrCauseCoordinateRange,
			}
		}

		templatePath := parsed.Path[:match[0]] + "/{z}/{x}/{y}"
		if ext != "" {
			templatePath += "." + ext
		}
		template := parsed.Scheme + "://" + parsed.Host + templatePath
		if parsed.RawQuery != "" {
			template += "?" + parsed.RawQuery
		}
		return coord, template, ext, nil
	}

	// query addressing: ?z=..&x=..&y=..
	query := parsed.Query()
	if coord, ok := coordFromQuery(query); ok {
		if !validCoord(coord) {
			return maptile.Tile{}, "", "", &ClassifierError{
				Message:   fmt.Sprintf("coordinate %v out of range", coord),
				Retryable: false,
				Cause:     ErrCauseCoordinateRange,
			}
		}

		template := parsed.Scheme + "://" + parsed.Host + parsed.Path +
			"?" + templateQuery(parsed.RawQuery)
		ext := strings.TrimPrefix(strings.ToLower(pathExt(parsed.Path)), ".")
		return coord, template, ext, nil
	}

	return maptile.Tile{}, "", "", &ClassifierError{
		Message:   fmt.Sprintf("no tile coordinate in %q", rawURL),
		Retryable: false,
		Cause:     ErrCauseNotATile,
	}
}

func coordFromQuery(query url.Values) (maptile.Tile, bool) {
	zs, xs, ys := query.Get("z"), query.Get("x"), query.Get("y")
	if zs == "" || xs == "" || ys == "" {
		return maptile.Tile{}, false
	}
	z, errZ := strconv.ParseUint(zs, 10, 32)
	x, errX := strconv.ParseUint(xs, 10, 32)
	y, errY := strconv.ParseUint(ys, 10, 32)
	if errZ != nil || errX != nil || errY != nil || z > 31 {
		return maptile.Tile{}, false
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), true
}

// templateQuery rewrites the coordinate parameters of a raw query string
// to placeholders while preserving every other parameter in order.
func templateQuery(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key := pair
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key = pair[:eq]
		}
		switch key {
		case "z", "x", "y":
			pairs[i] = key + "={" + key + "}"
		}
	}
	return strings.Join(pairs, "&")
}

func pathExt(path string) string {
	if dot := strings.LastIndexByte(path, '.'); dot >= 0 {
		return path[dot:]
	}
	return ""
}

func validCoord(t maptile.Tile) bool {
	if t.Z > 22 {
		return false
	}
	n := uint32(1) << t.Z
	return t.X < n && t.Y < n
}

// inferTileType decides vector vs raster. Extension first, content magic
// as fallback, vector as the final assumption (tile servers routinely
// serve protobuf without a telling extension).
func inferTileType(ext string, body []byte) (TileType, string) {
	switch strings.ToLower(ext) {
	case "pbf", "mvt":
		return TileTypeVector, strings.ToLower(ext)
	case "png", "jpg", "jpeg", "webp":
		return TileTypeRaster, strings.ToLower(ext)
	}

	switch {
	case bytes.HasPrefix(body, []byte("\x89PNG")):
		return TileTypeRaster, "png"
	case bytes.HasPrefix(body, []byte("\xFF\xD8")):
		return TileTypeRaster, "jpg"
	case len(body) >= 12 && bytes.Equal(body[0:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WEBP")):
		return TileTypeRaster, "webp"
	default:
		return TileTypeVector, "pbf"
	}
}
