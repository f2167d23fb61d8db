package bundle

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type BundleErrorCause string

const (
	ErrCauseUnreadable  BundleErrorCause = "unreadable bundle"
	ErrCauseMalformed   BundleErrorCause = "malformed bundle"
	ErrCauseEmptyBundle BundleErrorCause = "bundle contains no tiles"
)

type BundleError struct {
	Message   string
	Retryable bool
	Cause     BundleErrorCause
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle error: %s", e.Cause)
}

func (e *BundleError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *BundleError) IsRetryable() bool {
	return e.Retryable
}

// mapBundleErrorToMetadataCause maps bundle-local error semantics to the
// canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapBundleErrorToMetadataCause(err *BundleError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnreadable:
		return metadata.CauseStorageFailure
	case ErrCauseMalformed:
		return metadata.CauseContentInvalid
	case ErrCauseEmptyBundle:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
