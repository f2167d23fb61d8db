package archive

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type ArchiveErrorCause string

const (
	ErrCauseEmptyTileSet     ArchiveErrorCause = "no usable tiles"
	ErrCauseZoomRange        ArchiveErrorCause = "zoom out of range"
	ErrCauseWriteFailure     ArchiveErrorCause = "write failure"
	ErrCauseCorruptHeader    ArchiveErrorCause = "corrupt header"
	ErrCauseCorruptDirectory ArchiveErrorCause = "corrupt directory"
	ErrCauseCompression      ArchiveErrorCause = "compression failure"
)

type ArchiveError struct {
	Message   string
	Retryable bool
	Cause     ArchiveErrorCause
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive error: %s", e.Cause)
}

func (e *ArchiveError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ArchiveError) IsRetryable() bool {
	return e.Retryable
}

// mapArchiveErrorToMetadataCause maps archive-local error semantics to the
// canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapArchiveErrorToMetadataCause(err *ArchiveError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyTileSet:
		return metadata.CauseContentInvalid
	case ErrCauseZoomRange:
		return metadata.CauseInvariantViolation
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseCorruptHeader:
		return metadata.CauseContentInvalid
	case ErrCauseCorruptDirectory:
		return metadata.CauseContentInvalid
	case ErrCauseCompression:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
