package metadata

import (
	"sort"
	"sync"
	"time"
)

/*
Recorder captures structured build events.
It must not:
- perform I/O
- affect control flow
- impose a logging backend
Ordering guarantees:
- Events are recorded in the order they arrive at the recorder.
- Per-source workers record concurrently; no global ordering across
  sources is guaranteed.
- Consumers MUST NOT assume total ordering across the build.
- Finalize sorts per-source reports and matches by name for stable output.
*/
type Recorder struct {
	mu        sync.Mutex
	startedAt time.Time
	errors    []ErrorEvent
	fetches   []FetchEvent
	warnings  []Warning
	artifacts []ArtifactRecord
	matches   []MatchEvent
	sources   []SourceReport
	stats     buildStats
	finalized bool
}

func NewRecorder() *Recorder {
	return &Recorder{
		startedAt: time.Now(),
	}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, ErrorEvent{
		ObservedAt: observedAt,
		Package:    packageName,
		Action:     action,
		Cause:      cause.String(),
		Details:    details,
		Attrs:      attrs,
	})
}

func (r *Recorder) RecordFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
	zoom int,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetches = append(r.fetches, FetchEvent{
		URL:        fetchURL,
		HTTPStatus: httpStatus,
		DurationMs: duration.Milliseconds(),
		RetryCount: retryCount,
		Zoom:       zoom,
	})
}

func (r *Recorder) RecordWarning(packageName string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.warnings = append(r.warnings, Warning{Package: packageName, Message: message})
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifacts = append(r.artifacts, ArtifactRecord{Kind: kind, Path: path, Attrs: attrs})
}

func (r *Recorder) RecordMatch(event MatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.matches = append(r.matches, event)
}

func (r *Recorder) RecordSourceReport(report SourceReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sources = append(r.sources, report)
}

/*
RecordFinalBuildStats records a terminal, derived summary of a completed
build.

Contract:
  - MUST be called exactly once per build execution.
  - MUST be called only after pipeline termination.
  - MUST NOT be called during an active build.
  - The provided figures MUST be derived from scheduler state,
    not accumulated incrementally via the recorder.
  - Recorded stats MUST NOT influence control flow or scheduling.
*/
func (r *Recorder) RecordFinalBuildStats(
	totalSources int,
	totalTiles int,
	totalArchives int,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats = buildStats{
		totalSources:  totalSources,
		totalTiles:    totalTiles,
		totalArchives: totalArchives,
		durationMs:    duration.Milliseconds(),
	}
	r.finalized = true
}

// Finalize snapshots everything recorded so far into a BuildReport.
// Safe to call more than once; each call returns an independent copy.
func (r *Recorder) Finalize() BuildReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := BuildReport{
		GeneratedAt:   time.Now(),
		DurationMs:    r.stats.durationMs,
		TotalSources:  r.stats.totalSources,
		TotalTiles:    r.stats.totalTiles,
		TotalArchives: r.stats.totalArchives,
		Sources:       append([]SourceReport(nil), r.sources...),
		Matches:       append([]MatchEvent(nil), r.matches...),
		Warnings:      append([]Warning(nil), r.warnings...),
		Errors:        append([]ErrorEvent(nil), r.errors...),
		Fetches:       append([]FetchEvent(nil), r.fetches...),
		Artifacts:     append([]ArtifactRecord(nil), r.artifacts...),
	}

	// per-source workers finish in arbitrary order; sort for stable output
	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].SourceName < report.Sources[j].SourceName
	})
	sort.Slice(report.Matches, func(i, j int) bool {
		return report.Matches[i].StyleSource < report.Matches[j].StyleSource
	})

	return report
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchURL string,
		httpStatus int,
		duration time.Duration,
		retryCount int,
		zoom int,
	)
	RecordWarning(packageName string, message string)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordMatch(event MatchEvent)
	RecordSourceReport(report SourceReport)
}

type BuildFinalizer interface {
	RecordFinalBuildStats(
		totalSources int,
		totalTiles int,
		totalArchives int,
		duration time.Duration,
	)
	Finalize() BuildReport
}

// NoopSink implements MetadataSink but records nothing.
// The scheduler (or a test) decides whether to inject Recorder or NoopSink;
// the purpose is to keep metadata orthogonal.

type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
	zoom int,
) {
}

func (n *NoopSink) RecordWarning(packageName string, message string) {}

func (n *NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}

func (n *NoopSink) RecordMatch(event MatchEvent) {}

func (n *NoopSink) RecordSourceReport(report SourceReport) {}
