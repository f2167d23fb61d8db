package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
	"github.com/rohmanhakim/mapfreeze/pkg/fileutil"
)

/*
Responsibilities

- Own the output directory: create it, allocate deterministic artifact
  paths inside it, write the style and report files
- Ensure two sources never collide on a filename

Output Characteristics

- Archive filenames derive from the source name alone, so reruns of the
  same capture produce the same names
- Overwrite-safe: rerunning into the same directory replaces artifacts
  in place
*/

type Sink interface {
	EnsureOutputDir(outputDir string) failure.ClassifiedError
	ArchivePath(outputDir string, sourceName string) string
	RecordArchive(path string, sourceName string)
	WriteStyle(outputDir string, style []byte) (WriteResult, failure.ClassifiedError)
	WriteReport(outputDir string, report metadata.BuildReport) (WriteResult, failure.ClassifiedError)
}

type LocalSink struct {
	metadataSink metadata.MetadataSink

	mu        sync.Mutex
	allocated map[string]struct{}
}

func NewLocalSink(metadataSink metadata.MetadataSink) *LocalSink {
	return &LocalSink{
		metadataSink: metadataSink,
		allocated:    make(map[string]struct{}),
	}
}

func (s *LocalSink) EnsureOutputDir(outputDir string) failure.ClassifiedError {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      outputDir,
		}
		s.recordError("LocalSink.EnsureOutputDir", storageErr)
		return storageErr
	}
	return nil
}

// ArchivePath allocates a deterministic, collision-free file path for one
// source's archive. Identical source names across runs produce identical
// paths; colliding slugs within one run get a numeric suffix.
func (s *LocalSink) ArchivePath(outputDir string, sourceName string) string {
	slug := fileutil.Slug(sourceName)
	if slug == "" {
		slug = "source"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := slug
	for i := 2; ; i++ {
		if _, taken := s.allocated[candidate]; !taken {
			break
		}
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
	s.allocated[candidate] = struct{}{}
	return filepath.Join(outputDir, candidate+archiveExtension)
}

// RecordArchive notes a successfully built archive in the report. The
// builder owns the bytes; the sink owns the artifact ledger.
func (s *LocalSink) RecordArchive(path string, sourceName string) {
	s.metadataSink.RecordArtifact(
		metadata.ArtifactArchive,
		path,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrSource, sourceName),
			metadata.NewAttr(metadata.AttrPath, path),
		},
	)
}

func (s *LocalSink) WriteStyle(outputDir string, style []byte) (WriteResult, failure.ClassifiedError) {
	path := filepath.Join(outputDir, styleFileName)
	if err := os.WriteFile(path, style, 0o644); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
		s.recordError("LocalSink.WriteStyle", storageErr)
		return WriteResult{}, storageErr
	}

	s.metadataSink.RecordArtifact(
		metadata.ArtifactStyle,
		path,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrPath, path),
		},
	)
	return WriteResult{path: path}, nil
}

func (s *LocalSink) WriteReport(outputDir string, report metadata.BuildReport) (WriteResult, failure.ClassifiedError) {
	path := filepath.Join(outputDir, reportFileName)

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseEncodeFailure,
			Path:      path,
		}
		s.recordError("LocalSink.WriteReport", storageErr)
		return WriteResult{}, storageErr
	}

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
		s.recordError("LocalSink.WriteReport", storageErr)
		return WriteResult{}, storageErr
	}
	return WriteResult{path: path}, nil
}

func (s *LocalSink) recordError(action string, err *StorageError) {
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		action,
		mapStorageErrorToMetadataCause(err),
		err.Message,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrPath, err.Path),
		},
	)
}
