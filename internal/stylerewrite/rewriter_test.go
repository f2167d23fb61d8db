package stylerewrite_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/internal/stylerewrite"
)

func decodeStyle(t *testing.T, style []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(style, &doc))
	return doc
}

func styleSource(t *testing.T, style []byte, name string) map[string]any {
	t.Helper()
	doc := decodeStyle(t, style)
	sources, ok := doc["sources"].(map[string]any)
	require.True(t, ok)
	source, ok := sources[name].(map[string]any)
	require.True(t, ok, "source %q missing", name)
	return source
}

func TestRewrite_TemplateMatchIgnoresQueryString(t *testing.T) {
	style := []byte(`{
		"version": 8,
		"sources": {
			"streets": {
				"type": "vector",
				"tiles": ["https://tiles.example.com/v3/{z}/{x}/{y}.pbf?key=SECRET"]
			}
		},
		"layers": [{"id": "bg", "type": "background"}]
	}`)

	recorder := metadata.NewRecorder()
	rewriter := stylerewrite.NewRewriter(recorder)

	result, err := rewriter.Rewrite(style, []stylerewrite.ArchiveRef{
		{
			SourceName:  "tiles.example.com",
			Path:        "/out/tiles-example-com.pmtiles",
			URLTemplate: "https://tiles.example.com/v3/{z}/{x}/{y}.pbf?key=OTHER",
			SampleURL:   "https://tiles.example.com/v3/12/654/1583.pbf?key=OTHER",
		},
	})
	require.Nil(t, err)
	assert.Equal(t, 1, result.Rewritten)
	assert.Equal(t, 0, result.Unmatched)

	source := styleSource(t, result.Style, "streets")
	assert.Equal(t, "pmtiles://tiles-example-com.pmtiles", source["url"])
	assert.NotContains(t, source, "tiles")

	report := recorder.Finalize()
	require.Len(t, report.Matches, 1)
	assert.Equal(t, metadata.MatchByTemplate, report.Matches[0].Strategy)
	assert.True(t, report.Matches[0].Matched)
	assert.NotEmpty(t, report.Matches[0].SourcePattern)
	assert.NotEmpty(t, report.Matches[0].ArchivePattern)
}

func TestRewrite_DomainMatchForTileJSONSource(t *testing.T) {
	style := []byte(`{
		"version": 8,
		"sources": {
			"basemap": {
				"type": "vector",
				"url": "https://tiles.example.com/data/basemap.json"
			}
		}
	}`)

	recorder := metadata.NewRecorder()
	rewriter := stylerewrite.NewRewriter(recorder)

	result, err := rewriter.Rewrite(style, []stylerewrite.ArchiveRef{
		{
			SourceName: "tiles.example.com basemap",
			Path:       "/out/basemap.pmtiles",
			SampleURL:  "https://tiles.example.com/data/12/654/1583.pbf",
		},
	})
	require.Nil(t, err)
	assert.Equal(t, 1, result.Rewritten)

	source := styleSource(t, result.Style, "basemap")
	assert.Equal(t, "pmtiles://basemap.pmtiles", source["url"])

	report := recorder.Finalize()
	require.Len(t, report.Matches, 1)
	assert.Equal(t, metadata.MatchByDomain, report.Matches[0].Strategy)
	assert.True(t, report.Matches[0].Matched)
}

func TestRewrite_UnmatchedSourceLeftUntouched(t *testing.T) {
	style := []byte(`{
		"version": 8,
		"sources": {
			"elsewhere": {
				"type": "raster",
				"tiles": ["https://other.example.org/{z}/{x}/{y}.png"],
				"tileSize": 256
			}
		}
	}`)

	recorder := metadata.NewRecorder()
	rewriter := stylerewrite.NewRewriter(recorder)

	result, err := rewriter.Rewrite(style, []stylerewrite.ArchiveRef{
		{
			SourceName:  "tiles.example.com",
			Path:        "/out/tiles.pmtiles",
			URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.pbf",
			SampleURL:   "https://tiles.example.com/12/1/1.pbf",
		},
	})
	require.Nil(t, err)
	assert.Equal(t, 0, result.Rewritten)
	assert.Equal(t, 1, result.Unmatched)

	source := styleSource(t, result.Style, "elsewhere")
	assert.Equal(t, []any{"https://other.example.org/{z}/{x}/{y}.png"}, source["tiles"])
	assert.Equal(t, float64(256), source["tileSize"])

	report := recorder.Finalize()
	require.Len(t, report.Matches, 1)
	assert.False(t, report.Matches[0].Matched)
	assert.Len(t, report.Warnings, 1)
}

func TestRewrite_NonTileSourcesPassThrough(t *testing.T) {
	style := []byte(`{
		"version": 8,
		"sources": {
			"pois": {"type": "geojson", "data": {"type": "FeatureCollection", "features": []}}
		}
	}`)

	rewriter := stylerewrite.NewRewriter(&metadata.NoopSink{})
	result, err := rewriter.Rewrite(style, nil)
	require.Nil(t, err)
	assert.Equal(t, 0, result.Rewritten)
	assert.Equal(t, 0, result.Unmatched)
	assert.JSONEq(t, string(style), string(result.Style))
}

func TestRewrite_StyleWithoutSources(t *testing.T) {
	style := []byte(`{"version": 8, "layers": []}`)

	rewriter := stylerewrite.NewRewriter(&metadata.NoopSink{})
	result, err := rewriter.Rewrite(style, nil)
	require.Nil(t, err)
	assert.Equal(t, style, result.Style)
}

func TestRewrite_MalformedStyle(t *testing.T) {
	rewriter := stylerewrite.NewRewriter(&metadata.NoopSink{})
	_, err := rewriter.Rewrite([]byte(`{"version": 8,`), nil)

	require.NotNil(t, err)
	assert.Equal(t, stylerewrite.ErrCauseMalformedStyle, err.Cause)
}

func TestRewrite_UnknownFieldsSurviveRoundTrip(t *testing.T) {
	style := []byte(`{
		"version": 8,
		"sprite": "https://cdn.example.com/sprite",
		"glyphs": "https://cdn.example.com/fonts/{fontstack}/{range}.pbf",
		"custom-extension": {"deeply": {"nested": [1, 2, 3]}},
		"sources": {
			"streets": {
				"type": "vector",
				"tiles": ["https://tiles.example.com/{z}/{x}/{y}.pbf"],
				"minzoom": 0,
				"maxzoom": 14,
				"attribution": "test"
			}
		}
	}`)

	rewriter := stylerewrite.NewRewriter(&metadata.NoopSink{})
	result, err := rewriter.Rewrite(style, []stylerewrite.ArchiveRef{
		{
			SourceName:  "tiles.example.com",
			Path:        "/out/streets.pmtiles",
			URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.pbf",
			SampleURL:   "https://tiles.example.com/12/1/1.pbf",
		},
	})
	require.Nil(t, err)

	doc := decodeStyle(t, result.Style)
	assert.Equal(t, "https://cdn.example.com/sprite", doc["sprite"])
	assert.NotNil(t, doc["custom-extension"])

	source := styleSource(t, result.Style, "streets")
	assert.Equal(t, "pmtiles://streets.pmtiles", source["url"])
	assert.Equal(t, float64(14), source["maxzoom"])
	assert.Equal(t, "test", source["attribution"])
}
