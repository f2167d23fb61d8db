package classifier

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type ClassifierErrorCause string

const (
	ErrCauseNotATile        ClassifierErrorCause = "not a tile url"
	ErrCauseCoordinateRange ClassifierErrorCause = "coordinate out of range"
	ErrCauseEmptyBody       ClassifierErrorCause = "empty body"
)

type ClassifierError struct {
	Message   string
	Retryable bool
	Cause     ClassifierErrorCause
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier error: %s", e.Cause)
}

func (e *ClassifierError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapClassifierErrorToMetadataCause maps classifier-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapClassifierErrorToMetadataCause(err *ClassifierError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotATile:
		return metadata.CauseContentInvalid
	case ErrCauseEmptyBody:
		return metadata.CauseContentInvalid
	case ErrCauseCoordinateRange:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
