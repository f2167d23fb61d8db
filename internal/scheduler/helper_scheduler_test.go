package scheduler_test

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/mapfreeze/internal/bundle"
	"github.com/rohmanhakim/mapfreeze/internal/config"
	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/internal/storage"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

func newTestConfig(t *testing.T, outputDir string) *config.Config {
	t.Helper()
	return config.WithDefault().
		WithOutputDir(outputDir).
		WithBaseDelay(time.Millisecond).
		WithJitter(0).
		WithRandomSeed(42)
}

func buildTestConfig(t *testing.T, builder *config.Config) config.Config {
	t.Helper()
	cfg, err := builder.Build()
	require.NoError(t, err)
	return cfg
}

// sampleMVT encodes a real vector tile with the given layer names.
func sampleMVT(t *testing.T, layerNames ...string) []byte {
	t.Helper()

	collections := make(map[string]*geojson.FeatureCollection, len(layerNames))
	for _, name := range layerNames {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{1, 1}))
		collections[name] = fc
	}

	data, err := mvt.Marshal(mvt.NewLayers(collections))
	require.NoError(t, err)
	return data
}

func writeBundle(t *testing.T, capture bundle.CaptureBundle) string {
	t.Helper()

	data, err := json.Marshal(capture)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// blockTiles produces an n by n block of raw tiles at one zoom, all
// carrying the same payload shape but distinct layer names so the
// builder does not deduplicate them away.
func blockTiles(t *testing.T, sourceHint string, originBase string, z, x0, y0 uint32, n int) []bundle.RawTile {
	t.Helper()

	tiles := make([]bundle.RawTile, 0, n*n)
	for dx := 0; dx < n; dx++ {
		for dy := 0; dy < n; dy++ {
			tiles = append(tiles, bundle.RawTile{
				Z:          z,
				X:          x0 + uint32(dx),
				Y:          y0 + uint32(dy),
				SourceHint: sourceHint,
				OriginURL:  originBase,
				Format:     "pbf",
				Data:       sampleMVT(t, "roads", "water"),
			})
		}
	}
	return tiles
}

// harEntry shapes one HAR log entry the way browsers export them, with
// the response body carried as base64.
func harEntry(t *testing.T, url string, body []byte) map[string]any {
	t.Helper()
	return map[string]any{
		"request": map[string]any{"url": url},
		"response": map[string]any{
			"status": 200,
			"content": map[string]any{
				"text":     base64.StdEncoding.EncodeToString(body),
				"encoding": "base64",
			},
		},
	}
}

// redirectSink routes one source's archive path into a directory that
// does not exist, forcing a write failure for that source only.
type redirectSink struct {
	inner     storage.Sink
	badSource string
}

func (r *redirectSink) EnsureOutputDir(path string) failure.ClassifiedError {
	return r.inner.EnsureOutputDir(path)
}

func (r *redirectSink) ArchivePath(outputDir string, sourceName string) string {
	if sourceName == r.badSource {
		return filepath.Join(outputDir, "no-such-dir", "bad.pmtiles")
	}
	return r.inner.ArchivePath(outputDir, sourceName)
}

func (r *redirectSink) RecordArchive(path string, sourceName string) {
	r.inner.RecordArchive(path, sourceName)
}

func (r *redirectSink) WriteStyle(outputDir string, style []byte) (storage.WriteResult, failure.ClassifiedError) {
	return r.inner.WriteStyle(outputDir, style)
}

func (r *redirectSink) WriteReport(outputDir string, report metadata.BuildReport) (storage.WriteResult, failure.ClassifiedError) {
	return r.inner.WriteReport(outputDir, report)
}
