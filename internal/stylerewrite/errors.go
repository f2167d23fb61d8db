package stylerewrite

import (
	"fmt"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
)

type RewriteErrorCause string

const (
	ErrCauseMalformedStyle RewriteErrorCause = "malformed style document"
	ErrCauseEncodeFailure  RewriteErrorCause = "style re-encode failure"
)

type RewriteError struct {
	Message   string
	Retryable bool
	Cause     RewriteErrorCause
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("stylerewrite error: %s", e.Cause)
}

func (e *RewriteError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RewriteError) IsRetryable() bool {
	return e.Retryable
}

// mapRewriteErrorToMetadataCause maps rewriter-local error semantics to
// the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRewriteErrorToMetadataCause(err *RewriteError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseMalformedStyle:
		return metadata.CauseContentInvalid
	case ErrCauseEncodeFailure:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
