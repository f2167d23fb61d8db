package scheduler

import (
	"github.com/rohmanhakim/mapfreeze/internal/classifier"
	"github.com/rohmanhakim/mapfreeze/internal/stylerewrite"
)

// RunInput names the capture to build from. Exactly one of BundlePath or
// HARPath should be set; when both are, the native bundle wins.
type RunInput struct {
	BundlePath string
	HARPath    string
}

// RunResult is what a completed run hands back to the CLI, alongside the
// build report.
type RunResult struct {
	ArchivePaths []string
	StylePath    string
	ReportPath   string
}

// sourceOutcome is the per-source worker result collected by the run.
type sourceOutcome struct {
	name       string
	tileCount  int
	archiveRef *stylerewrite.ArchiveRef
}

// sourceJob is one unit of per-source pipeline work.
type sourceJob struct {
	name  string
	group *classifier.Classification
}
