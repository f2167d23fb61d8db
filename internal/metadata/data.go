package metadata

import (
	"time"
)

/*
Metadata Collected
- Fetch timestamps and HTTP status codes
- Per-source tile counts and coverage figures
- Style source match decisions (the exact patterns compared)
- Artifact paths and checksums

Reporting Goals
- Debuggable builds: every heuristic decision is reconstructible
- Post-run auditability
- Failure diagnostics without a debugger

Determinism guarantees:
 - Metadata does not affect control flow
 - Recording an event never fails and never blocks the pipeline
 - Output is stable given identical inputs and a fixed clock

Metadata is write-only during the build.
No component may read metadata to influence build decisions; the only
read happens once, in Finalize, after the pipeline has terminated.
*/

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (reporting).

Rules:
 - ErrorCause is for observability only.
 - ErrorCause MUST NOT influence control flow.
 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
 - Pipeline packages MAY map their local errors to ErrorCause,
   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	// CauseUnknown is the safe fallback for unclassifiable failures.
	CauseUnknown ErrorCause = iota

	// CauseNetworkFailure covers transport failures and remote
	// unavailability during coverage expansion: timeouts, DNS failures,
	// connection resets.
	CauseNetworkFailure

	// CauseSafetyLimit covers refusals by a safety bound: the expansion
	// sanity gate, the maxTiles ceiling, the zoom cap.
	CauseSafetyLimit

	// CauseContentInvalid covers payloads that were obtained but could not
	// be processed: unparseable tile URLs, tiles with empty bodies,
	// undecodable vector tiles, style JSON that does not parse.
	CauseContentInvalid

	// CauseStorageFailure covers failures while persisting artifacts:
	// disk full, permission errors, filesystem I/O failures.
	CauseStorageFailure

	// CauseInvariantViolation covers system-level invariant breaches:
	// out-of-range tile coordinates, an archive that fails its round-trip
	// validation.
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network failure"
	case CauseSafetyLimit:
		return "safety limit"
	case CauseContentInvalid:
		return "content invalid"
	case CauseStorageFailure:
		return "storage failure"
	case CauseInvariantViolation:
		return "invariant violation"
	default:
		return "unknown"
	}
}

type AttributeKey string

const (
	AttrURL     AttributeKey = "url"
	AttrMessage AttributeKey = "message"
	AttrSource  AttributeKey = "source"
	AttrPattern AttributeKey = "pattern"
	AttrPath    AttributeKey = "path"
	AttrTile    AttributeKey = "tile"
)

type Attribute struct {
	Key   AttributeKey `json:"key"`
	Value string       `json:"value"`
}

func NewAttr(key AttributeKey, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

type ArtifactKind string

const (
	ArtifactArchive ArtifactKind = "archive"
	ArtifactStyle   ArtifactKind = "style"
	ArtifactReport  ArtifactKind = "report"
)

type ErrorEvent struct {
	ObservedAt time.Time   `json:"observed_at"`
	Package    string      `json:"package"`
	Action     string      `json:"action"`
	Cause      string      `json:"cause"`
	Details    string      `json:"details"`
	Attrs      []Attribute `json:"attrs,omitempty"`
}

type FetchEvent struct {
	URL        string `json:"url"`
	HTTPStatus int    `json:"http_status"`
	DurationMs int64  `json:"duration_ms"`
	RetryCount int    `json:"retry_count"`
	Zoom       int    `json:"zoom"`
}

type Warning struct {
	Package string `json:"package"`
	Message string `json:"message"`
}

type ArtifactRecord struct {
	Kind  ArtifactKind `json:"kind"`
	Path  string       `json:"path"`
	Attrs []Attribute  `json:"attrs,omitempty"`
}

// MatchStrategy names which of the two style-matching strategies produced
// a decision.
type MatchStrategy string

const (
	MatchByTemplate MatchStrategy = "template"
	MatchByDomain   MatchStrategy = "domain"
	MatchNone       MatchStrategy = "none"
)

// MatchEvent records one style-source match decision, including the exact
// patterns that were compared. The matching logic is heuristic; without
// this record a wrong match is undiagnosable from the output alone.
type MatchEvent struct {
	StyleSource    string        `json:"style_source"`
	Strategy       MatchStrategy `json:"strategy"`
	SourcePattern  string        `json:"source_pattern,omitempty"`
	ArchivePattern string        `json:"archive_pattern,omitempty"`
	ArchivePath    string        `json:"archive_path,omitempty"`
	Matched        bool          `json:"matched"`
}

// ValidationSummary is the post-build round-trip diagnostic for one
// archive, flattened for the report.
type ValidationSummary struct {
	TileType            string `json:"tile_type"`
	InternalCompression string `json:"internal_compression"`
	TileCompression     string `json:"tile_compression"`
	SamplePrefixHex     string `json:"sample_prefix_hex"`
	SampleDecompresses  bool   `json:"sample_decompresses"`
}

// SourceReport is the per-source slice of the build report. It is derived
// state only: recomputing it from the same tile set yields the same values.
type SourceReport struct {
	SourceName      string             `json:"source_name"`
	TileType        string             `json:"tile_type"`
	Format          string             `json:"format"`
	CapturedCount   int                `json:"captured_count"`
	SkippedCount    int                `json:"skipped_count"`
	DedupedCount    int                `json:"deduped_count"`
	FetchedCount    int                `json:"fetched_count"`
	FetchFailures   int                `json:"fetch_failures"`
	MinZoom         int                `json:"min_zoom"`
	MaxZoom         int                `json:"max_zoom"`
	TargetMaxZoom   int                `json:"target_max_zoom"`
	TotalPossible   int64              `json:"total_possible"`
	MissingCount    int64              `json:"missing_count"`
	CoveragePercent float64            `json:"coverage_percent"`
	PerZoomCounts   map[int]int        `json:"per_zoom_counts"`
	VectorLayers    []string           `json:"vector_layers,omitempty"`
	ArchivePath     string             `json:"archive_path"`
	ArchiveBytes    int64              `json:"archive_bytes"`
	Checksum        string             `json:"checksum,omitempty"`
	Validation      *ValidationSummary `json:"validation,omitempty"`
}

/*
buildStats
  - Represents a terminal, derived summary of a completed build
  - Contains only aggregate counts and durations
  - Is computed by the scheduler after pipeline termination
  - Is recorded exactly once
  - Must not influence scheduling, retries, or build termination
*/
type buildStats struct {
	totalSources  int
	totalTiles    int
	totalArchives int
	durationMs    int64
}

// BuildReport is the structured, return-by-value output of a whole run.
// Callers render it however they choose; the core never prints it.
type BuildReport struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	DurationMs    int64            `json:"duration_ms"`
	TotalSources  int              `json:"total_sources"`
	TotalTiles    int              `json:"total_tiles"`
	TotalArchives int              `json:"total_archives"`
	Sources       []SourceReport   `json:"sources"`
	Matches       []MatchEvent     `json:"matches"`
	Warnings      []Warning        `json:"warnings,omitempty"`
	Errors        []ErrorEvent     `json:"errors,omitempty"`
	Fetches       []FetchEvent     `json:"fetches,omitempty"`
	Artifacts     []ArtifactRecord `json:"artifacts,omitempty"`
}
