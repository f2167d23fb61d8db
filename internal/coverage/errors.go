package coverage

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type CoverageErrorCause string

const (
	ErrCauseEmptyTileSet CoverageErrorCause = "empty tile set"
	ErrCauseInvalidZoom  CoverageErrorCause = "invalid zoom"
)

type CoverageError struct {
	Message   string
	Retryable bool
	Cause     CoverageErrorCause
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage error: %s", e.Cause)
}

func (e *CoverageError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapCoverageErrorToMetadataCause maps coverage-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapCoverageErrorToMetadataCause(err *CoverageError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyTileSet:
		return metadata.CauseContentInvalid
	case ErrCauseInvalidZoom:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
