package storage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/internal/storage"
)

func TestArchivePath_DeterministicSlug(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})

	path := sink.ArchivePath("/out", "tiles.example.com streets")
	assert.Equal(t, filepath.Join("/out", "tiles-example-com-streets.pmtiles"), path)
}

func TestArchivePath_CollisionsGetSuffixed(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})

	first := sink.ArchivePath("/out", "basemap")
	second := sink.ArchivePath("/out", "basemap")
	third := sink.ArchivePath("/out", "Basemap!")

	assert.Equal(t, filepath.Join("/out", "basemap.pmtiles"), first)
	assert.Equal(t, filepath.Join("/out", "basemap-2.pmtiles"), second)
	assert.Equal(t, filepath.Join("/out", "basemap-3.pmtiles"), third)
}

func TestArchivePath_EmptySlugFallsBack(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})

	path := sink.ArchivePath("/out", "!!!")
	assert.Equal(t, filepath.Join("/out", "source.pmtiles"), path)
}

func TestWriteStyle_WritesAndRecordsArtifact(t *testing.T) {
	recorder := metadata.NewRecorder()
	sink := storage.NewLocalSink(recorder)
	outDir := t.TempDir()

	result, err := sink.WriteStyle(outDir, []byte(`{"version":8}`))
	require.Nil(t, err)

	written, rerr := os.ReadFile(result.Path())
	require.NoError(t, rerr)
	assert.JSONEq(t, `{"version":8}`, string(written))

	report := recorder.Finalize()
	require.Len(t, report.Artifacts, 1)
	assert.Equal(t, metadata.ArtifactStyle, report.Artifacts[0].Kind)
}

func TestWriteReport_RoundTrips(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})
	outDir := t.TempDir()

	recorder := metadata.NewRecorder()
	recorder.RecordWarning("coverage", "thin capture at z14")
	buildReport := recorder.Finalize()

	result, err := sink.WriteReport(outDir, buildReport)
	require.Nil(t, err)

	raw, rerr := os.ReadFile(result.Path())
	require.NoError(t, rerr)

	var decoded metadata.BuildReport
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Warnings, 1)
	assert.Equal(t, "thin capture at z14", decoded.Warnings[0].Message)
}

func TestEnsureOutputDir_CreatesNestedDirs(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})
	outDir := filepath.Join(t.TempDir(), "deep", "nested", "out")

	require.Nil(t, sink.EnsureOutputDir(outDir))

	info, err := os.Stat(outDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteStyle_FailsOnMissingDir(t *testing.T) {
	sink := storage.NewLocalSink(&metadata.NoopSink{})

	_, err := sink.WriteStyle(filepath.Join(t.TempDir(), "absent"), []byte(`{}`))
	require.NotNil(t, err)

	storageErr, ok := err.(*storage.StorageError)
	require.True(t, ok)
	assert.Equal(t, storage.ErrCauseWriteFailure, storageErr.Cause)
}
