package expander

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type ExpanderErrorCause string

const (
	ErrCauseNetwork      ExpanderErrorCause = "network failure"
	ErrCauseHTTPStatus   ExpanderErrorCause = "unexpected http status"
	ErrCauseEmptyPayload ExpanderErrorCause = "empty tile payload"
)

type ExpanderError struct {
	Message   string
	Retryable bool
	Cause     ExpanderErrorCause
}

func (e *ExpanderError) Error() string {
	return fmt.Sprintf("expander error: %s", e.Cause)
}

func (e *ExpanderError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ExpanderError) IsRetryable() bool {
	return e.Retryable
}

// mapExpanderErrorToMetadataCause maps expander-local error semantics to
// the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapExpanderErrorToMetadataCause(err *ExpanderError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNetwork:
		return metadata.CauseNetworkFailure
	case ErrCauseHTTPStatus:
		return metadata.CauseNetworkFailure
	case ErrCauseEmptyPayload:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
