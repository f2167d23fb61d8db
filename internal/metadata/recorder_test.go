package metadata_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_FinalizeCollectsEverything(t *testing.T) {
	r := metadata.NewRecorder()

	r.RecordWarning("stylerewrite", "no archive matched source 'hillshade'")
	r.RecordError(
		time.Now(),
		"expander",
		"Expander.Expand",
		metadata.CauseNetworkFailure,
		"fetch failed",
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, "https://host/12/1/2.pbf")},
	)
	r.RecordFetch("https://host/12/1/2.pbf", 200, 30*time.Millisecond, 0, 12)
	r.RecordArtifact(metadata.ArtifactArchive, "out/basemap.pmtiles", nil)
	r.RecordMatch(metadata.MatchEvent{
		StyleSource: "openmaptiles",
		Strategy:    metadata.MatchByTemplate,
		Matched:     true,
	})
	r.RecordSourceReport(metadata.SourceReport{SourceName: "basemap", CapturedCount: 33})
	r.RecordFinalBuildStats(1, 33, 1, 2*time.Second)

	report := r.Finalize()

	assert.Len(t, report.Warnings, 1)
	assert.Len(t, report.Errors, 1)
	assert.Len(t, report.Fetches, 1)
	assert.Len(t, report.Artifacts, 1)
	assert.Len(t, report.Matches, 1)
	require.Len(t, report.Sources, 1)
	assert.Equal(t, "basemap", report.Sources[0].SourceName)
	assert.Equal(t, 1, report.TotalSources)
	assert.Equal(t, 33, report.TotalTiles)
	assert.Equal(t, int64(2000), report.DurationMs)
	assert.Equal(t, "network failure", report.Errors[0].Cause)
}

func TestRecorder_SourcesSortedByName(t *testing.T) {
	r := metadata.NewRecorder()
	r.RecordSourceReport(metadata.SourceReport{SourceName: "overlay"})
	r.RecordSourceReport(metadata.SourceReport{SourceName: "basemap"})

	report := r.Finalize()
	require.Len(t, report.Sources, 2)
	assert.Equal(t, "basemap", report.Sources[0].SourceName)
	assert.Equal(t, "overlay", report.Sources[1].SourceName)
}

func TestRecorder_FinalizeReturnsIndependentCopies(t *testing.T) {
	r := metadata.NewRecorder()
	r.RecordWarning("scheduler", "first")

	first := r.Finalize()
	r.RecordWarning("scheduler", "second")
	second := r.Finalize()

	assert.Len(t, first.Warnings, 1)
	assert.Len(t, second.Warnings, 2)
}

// Per-source workers record concurrently. Run with -race.
func TestRecorder_ConcurrentRecording(t *testing.T) {
	r := metadata.NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordWarning("expander", "w")
			r.RecordFetch("https://host/1/2/3.pbf", 200, time.Millisecond, 0, 1)
		}()
	}
	wg.Wait()

	report := r.Finalize()
	assert.Len(t, report.Warnings, 16)
	assert.Len(t, report.Fetches, 16)
}

func TestErrorCause_String(t *testing.T) {
	tests := []struct {
		cause metadata.ErrorCause
		want  string
	}{
		{metadata.CauseUnknown, "unknown"},
		{metadata.CauseNetworkFailure, "network failure"},
		{metadata.CauseSafetyLimit, "safety limit"},
		{metadata.CauseContentInvalid, "content invalid"},
		{metadata.CauseStorageFailure, "storage failure"},
		{metadata.CauseInvariantViolation, "invariant violation"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cause.String())
	}
}
