package stylerewrite

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/urlutil"
)

/*
Responsibilities

- Point each tile source of a captured style document at a local archive
- Leave everything it cannot match exactly as it was

Matching Strategies

Two strategies per style source, tried in order:

 1. template match: the source carries a literal tile URL template, so
    canonicalize it and every archive's inferred template and compare for
    equality or containment
 2. domain match: the source only references an indirection endpoint
    (a TileJSON url, say), so compare its host against the host of each
    archive's sample tile URL

The matching is heuristic, so every decision is recorded with the exact
patterns compared. An unmatched source stays untouched and produces a
warning, never an error; a partially rewritten style is a valid output.

The style document is decoded to map[string]any so fields this package
has never heard of survive the round trip unchanged.
*/

type Rewriter struct {
	metadataSink metadata.MetadataSink
}

func NewRewriter(metadataSink metadata.MetadataSink) Rewriter {
	return Rewriter{
		metadataSink: metadataSink,
	}
}

// Rewrite maps each tile source of the style to a built archive and
// rewrites the matched ones to pmtiles:// references.
func (r *Rewriter) Rewrite(style []byte, archives []ArchiveRef) (Result, *RewriteError) {
	var doc map[string]any
	if err := json.Unmarshal(style, &doc); err != nil {
		rerr := &RewriteError{
			Message:   fmt.Sprintf("decoding style: %v", err),
			Retryable: false,
			Cause:     ErrCauseMalformedStyle,
		}
		r.recordError("Rewriter.Rewrite", rerr)
		return Result{}, rerr
	}

	sources, ok := doc["sources"].(map[string]any)
	if !ok || len(sources) == 0 {
		r.metadataSink.RecordWarning("stylerewrite", "style document has no sources to rewrite")
		return Result{Style: style}, nil
	}

	var result Result
	for name, rawSource := range sources {
		source, ok := rawSource.(map[string]any)
		if !ok {
			continue
		}
		if !isTileSource(source) {
			continue
		}

		archive, event := r.match(name, source, archives)
		r.metadataSink.RecordMatch(event)
		if archive == nil {
			result.Unmatched++
			r.metadataSink.RecordWarning(
				"stylerewrite",
				fmt.Sprintf("style source %q matched no archive and keeps its remote url", name),
			)
			continue
		}

		rewriteSource(source, archive.Path)
		result.Rewritten++
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		rerr := &RewriteError{
			Message:   fmt.Sprintf("re-encoding style: %v", err),
			Retryable: false,
			Cause:     ErrCauseEncodeFailure,
		}
		r.recordError("Rewriter.Rewrite", rerr)
		return Result{}, rerr
	}
	result.Style = encoded
	return result, nil
}

// match tries the template strategy, then the domain strategy, and
// reports the decision either way.
func (r *Rewriter) match(name string, source map[string]any, archives []ArchiveRef) (*ArchiveRef, metadata.MatchEvent) {
	if template, ok := sourceTemplate(source); ok {
		canonical := urlutil.CanonicalizeTemplate(template)
		for i := range archives {
			if archives[i].URLTemplate == "" {
				continue
			}
			archivePattern := urlutil.CanonicalizeTemplate(archives[i].URLTemplate)
			if templatesMatch(canonical, archivePattern) {
				return &archives[i], metadata.MatchEvent{
					StyleSource:    name,
					Strategy:       metadata.MatchByTemplate,
					SourcePattern:  canonical,
					ArchivePattern: archivePattern,
					ArchivePath:    archives[i].Path,
					Matched:        true,
				}
			}
		}
		return nil, metadata.MatchEvent{
			StyleSource:   name,
			Strategy:      metadata.MatchByTemplate,
			SourcePattern: canonical,
			Matched:       false,
		}
	}

	if indirect, ok := source["url"].(string); ok && indirect != "" {
		host := urlutil.Host(indirect)
		for i := range archives {
			sampleHost := urlutil.Host(archives[i].SampleURL)
			if host != "" && host == sampleHost {
				return &archives[i], metadata.MatchEvent{
					StyleSource:    name,
					Strategy:       metadata.MatchByDomain,
					SourcePattern:  host,
					ArchivePattern: sampleHost,
					ArchivePath:    archives[i].Path,
					Matched:        true,
				}
			}
		}
		return nil, metadata.MatchEvent{
			StyleSource:   name,
			Strategy:      metadata.MatchByDomain,
			SourcePattern: host,
			Matched:       false,
		}
	}

	return nil, metadata.MatchEvent{
		StyleSource: name,
		Strategy:    metadata.MatchNone,
		Matched:     false,
	}
}

func (r *Rewriter) recordError(action string, err *RewriteError) {
	r.metadataSink.RecordError(
		time.Now(),
		"stylerewrite",
		action,
		mapRewriteErrorToMetadataCause(err),
		err.Message,
		nil,
	)
}

// isTileSource reports whether a style source is the kind an archive can
// replace. Geojson, image and video sources have no tile URL.
func isTileSource(source map[string]any) bool {
	switch source["type"] {
	case "vector", "raster":
		return true
	default:
		return false
	}
}

// sourceTemplate pulls the first literal tile URL template out of a
// style source, when it has one.
func sourceTemplate(source map[string]any) (string, bool) {
	tiles, ok := source["tiles"].([]any)
	if !ok || len(tiles) == 0 {
		return "", false
	}
	first, ok := tiles[0].(string)
	if !ok || first == "" {
		return "", false
	}
	return first, true
}

// templatesMatch compares two canonicalized templates by equality, then
// containment in either direction. Containment covers templates that
// differ only in a path prefix one side never saw.
func templatesMatch(a, b string) bool {
	if a == b {
		return true
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// rewriteSource repoints one style source at a local archive. The tiles
// array goes away; a single pmtiles url replaces whatever addressing the
// source used before. Every other field stays.
func rewriteSource(source map[string]any, archivePath string) {
	source["url"] = "pmtiles://" + filepath.Base(archivePath)
	delete(source, "tiles")
}
