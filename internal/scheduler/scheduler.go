package scheduler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/rohmanhakim/mapfreeze/internal/archive"
	"github.com/rohmanhakim/mapfreeze/internal/bundle"
	"github.com/rohmanhakim/mapfreeze/internal/classifier"
	"github.com/rohmanhakim/mapfreeze/internal/config"
	"github.com/rohmanhakim/mapfreeze/internal/coverage"
	"github.com/rohmanhakim/mapfreeze/internal/expander"
	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/internal/storage"
	"github.com/rohmanhakim/mapfreeze/internal/stylerewrite"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
	"github.com/rohmanhakim/mapfreeze/pkg/limiter"
	"github.com/rohmanhakim/mapfreeze/pkg/retry"
	"github.com/rohmanhakim/mapfreeze/pkg/timeutil"
)

/*
 Scheduler is the sole control-plane authority of a build.

 Control-flow guarantees:
 - Pipeline stages detect and classify failure, but never decide
   skip, continuation, or abortion; those decisions live here.
 - A fatal error before any source work (unreadable bundle, unwritable
   output directory) aborts the run.
 - A fatal error inside one source's pipeline (empty tile set, archive
   build failure, validation failure) skips that source and continues;
   sources are fully independent.
 - Expansion never fails a source; a skipped or failed expansion leaves
   the captured tile set as it was.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or build termination.

 Scheduler Responsibilities:
 - Coordinate the build lifecycle
 - Run per-source pipelines in a bounded worker pool
 - Aggregate build statistics and finalize the report exactly once
*/

type Scheduler struct {
	cfg            config.Config
	metadataSink   metadata.MetadataSink
	buildFinalizer metadata.BuildFinalizer
	loader         bundle.Loader
	tileClassifier classifier.Classifier
	calculator     coverage.Calculator
	builder        archive.Builder
	validator      archive.Validator
	gapExpander    *expander.Expander
	rewriter       stylerewrite.Rewriter
	storageSink    storage.Sink
}

func NewScheduler(cfg config.Config) Scheduler {
	recorder := metadata.NewRecorder()
	return NewSchedulerWithDeps(cfg, recorder, recorder, storage.NewLocalSink(recorder))
}

// NewSchedulerWithDeps creates a Scheduler with injected dependencies for
// testing. The sink and finalizer are usually the same Recorder.
func NewSchedulerWithDeps(
	cfg config.Config,
	buildFinalizer metadata.BuildFinalizer,
	metadataSink metadata.MetadataSink,
	storageSink storage.Sink,
) Scheduler {
	s := Scheduler{
		cfg:            cfg,
		metadataSink:   metadataSink,
		buildFinalizer: buildFinalizer,
		loader:         bundle.NewLoader(metadataSink),
		tileClassifier: classifier.NewClassifier(metadataSink),
		calculator:     coverage.NewCalculator(metadataSink),
		builder:        archive.NewBuilder(metadataSink),
		validator:      archive.NewValidator(metadataSink),
		rewriter:       stylerewrite.NewRewriter(metadataSink),
		storageSink:    storageSink,
	}
	if cfg.Expand() {
		e := expander.NewExpander(
			&http.Client{Timeout: cfg.Timeout()},
			limiter.NewConcurrentRateLimiter(),
			coverage.NewCalculator(metadataSink),
			metadataSink,
			expander.NewParam(
				cfg.MaxTiles(),
				cfg.BaseDelay(),
				cfg.Timeout(),
				cfg.Concurrency(),
				cfg.UserAgent(),
				retry.NewRetryParam(
					cfg.BaseDelay(),
					cfg.Jitter(),
					cfg.RandomSeed(),
					cfg.MaxAttempt(),
					timeutil.NewBackoffParam(
						cfg.BackoffInitialDuration(),
						cfg.BackoffMultiplier(),
						cfg.BackoffMaxDuration(),
					),
				),
			),
		)
		s.gapExpander = &e
	}
	return s
}

// Run executes the whole pipeline for one capture and returns the
// finalized build report.
func (s *Scheduler) Run(ctx context.Context, input RunInput) (metadata.BuildReport, RunResult, failure.ClassifiedError) {
	startedAt := time.Now()

	capture, loadErr := s.loadCapture(input)
	if loadErr != nil {
		s.buildFinalizer.RecordFinalBuildStats(0, 0, 0, time.Since(startedAt))
		return s.buildFinalizer.Finalize(), RunResult{}, loadErr
	}

	classified := s.classify(capture)

	if !s.cfg.DryRun() {
		if err := s.storageSink.EnsureOutputDir(s.cfg.OutputDir()); err != nil {
			s.buildFinalizer.RecordFinalBuildStats(0, 0, 0, time.Since(startedAt))
			return s.buildFinalizer.Finalize(), RunResult{}, err
		}
	}

	outcomes := s.processSources(ctx, classified)

	var result RunResult
	var archiveRefs []stylerewrite.ArchiveRef
	totalTiles := 0
	for _, outcome := range outcomes {
		totalTiles += outcome.tileCount
		if outcome.archiveRef != nil {
			archiveRefs = append(archiveRefs, *outcome.archiveRef)
			result.ArchivePaths = append(result.ArchivePaths, outcome.archiveRef.Path)
		}
	}
	sort.Strings(result.ArchivePaths)

	result.StylePath = s.rewriteStyle(capture, archiveRefs)

	s.buildFinalizer.RecordFinalBuildStats(
		len(classified.Sources),
		totalTiles,
		len(archiveRefs),
		time.Since(startedAt),
	)
	report := s.buildFinalizer.Finalize()

	if !s.cfg.DryRun() {
		if written, err := s.storageSink.WriteReport(s.cfg.OutputDir(), report); err == nil {
			result.ReportPath = written.Path()
		}
	}
	return report, result, nil
}

func (s *Scheduler) loadCapture(input RunInput) (bundle.CaptureBundle, failure.ClassifiedError) {
	if input.BundlePath != "" {
		capture, err := s.loader.LoadBundle(input.BundlePath)
		if err != nil {
			return bundle.CaptureBundle{}, err
		}
		return capture, nil
	}
	capture, err := s.loader.LoadHAR(input.HARPath)
	if err != nil {
		return bundle.CaptureBundle{}, err
	}
	return capture, nil
}

// classify merges the pre-classified tiles and the raw request log into
// one source map. A source hinted by the capture agent and a source
// derived from the log never share a name, so merging is additive.
func (s *Scheduler) classify(capture bundle.CaptureBundle) classifier.Result {
	prepared := make([]classifier.PreparedTile, 0, len(capture.Tiles))
	for _, tile := range capture.Tiles {
		prepared = append(prepared, classifier.PreparedTile{
			Coord:      tile.Coord(),
			SourceName: tile.SourceHint,
			OriginURL:  tile.OriginURL,
			Format:     tile.Format,
			Data:       tile.Data,
		})
	}
	result := s.tileClassifier.ClassifyPrepared(prepared)

	if len(capture.Requests) > 0 {
		observations := make([]classifier.Observation, 0, len(capture.Requests))
		for _, req := range capture.Requests {
			observations = append(observations, classifier.Observation{URL: req.URL, Body: req.Body})
		}
		fromLog := s.tileClassifier.Classify(observations)
		result.Rejected += fromLog.Rejected
		for name, group := range fromLog.Sources {
			if existing, ok := result.Sources[name]; ok {
				existing.Tiles = append(existing.Tiles, group.Tiles...)
				continue
			}
			result.Sources[name] = group
		}
	}
	return result
}

// processSources runs the per-source pipeline in a bounded worker pool.
// Sources are independent: no cross-worker coordination beyond the
// shared metadata sink.
func (s *Scheduler) processSources(ctx context.Context, classified classifier.Result) []sourceOutcome {
	names := make([]string, 0, len(classified.Sources))
	for name := range classified.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	jobs := make(chan sourceJob)
	var (
		mu       sync.Mutex
		outcomes []sourceOutcome
	)

	workers := s.cfg.SourceWorkers()
	if len(names) < workers {
		workers = len(names)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcome := s.processOneSource(ctx, job)
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}
		}()
	}
	for _, name := range names {
		jobs <- sourceJob{name: name, group: classified.Sources[name]}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].name < outcomes[j].name
	})
	return outcomes
}

// processOneSource runs coverage analysis, optional expansion, the
// archive build and optional validation for a single source. Any fatal
// error skips the source; the rest of the run is unaffected.
func (s *Scheduler) processOneSource(ctx context.Context, job sourceJob) sourceOutcome {
	outcome := sourceOutcome{name: job.name, tileCount: len(job.group.Tiles)}

	coords := tileCoords(job.group.Tiles)
	bounds, err := coverage.BoundsOf(coords)
	if err != nil {
		return outcome
	}
	report, err := s.calculator.Analyze(coords, bounds, s.cfg.ExpandZoom())
	if err != nil {
		return outcome
	}

	tiles := job.group.Tiles
	fetchedCount, fetchFailures := 0, 0
	if s.gapExpander != nil {
		expansion := s.gapExpander.Expand(ctx, &job.group.Source, coords, report)
		fetchFailures = expansion.FailedCount
		if len(expansion.Fetched) > 0 {
			tiles = append(append([]classifier.ClassifiedTile(nil), tiles...), expansion.Fetched...)
			fetchedCount = len(expansion.Fetched)

			// coverage is derived state; recompute it over the merged set
			coords = tileCoords(tiles)
			if refreshed, err := s.calculator.Analyze(coords, bounds, s.cfg.ExpandZoom()); err == nil {
				report = refreshed
			}
		}
	}

	sourceReport := metadata.SourceReport{
		SourceName:      job.name,
		TileType:        string(job.group.Source.TileType()),
		Format:          job.group.Source.Format(),
		CapturedCount:   outcome.tileCount,
		FetchedCount:    fetchedCount,
		FetchFailures:   fetchFailures,
		MinZoom:         int(report.MinZoom),
		MaxZoom:         int(report.MaxZoom),
		TargetMaxZoom:   int(report.TargetMaxZoom),
		TotalPossible:   report.TotalPossible,
		MissingCount:    report.MissingCount,
		CoveragePercent: report.CoveragePercent,
		PerZoomCounts:   perZoomCounts(report),
	}

	if s.cfg.DryRun() {
		s.metadataSink.RecordSourceReport(sourceReport)
		return outcome
	}

	archivePath := s.storageSink.ArchivePath(s.cfg.OutputDir(), job.name)
	buildResult, buildErr := s.builder.Build(archivePath, archive.BuildInput{
		SourceName: job.name,
		TileType:   job.group.Source.TileType(),
		Format:     job.group.Source.Format(),
		Tiles:      tiles,
	})
	if buildErr != nil {
		s.metadataSink.RecordSourceReport(sourceReport)
		return outcome
	}

	sourceReport.SkippedCount = buildResult.SkippedTiles
	sourceReport.DedupedCount = buildResult.DedupedTiles
	sourceReport.VectorLayers = buildResult.VectorLayers
	sourceReport.ArchivePath = buildResult.Path
	sourceReport.ArchiveBytes = buildResult.SizeBytes
	sourceReport.Checksum = buildResult.Checksum

	if s.cfg.Validate() {
		diagnostic, validateErr := s.validator.Validate(buildResult.Path)
		if validateErr != nil {
			// integrity failure is fatal for this source's archive only
			s.metadataSink.RecordSourceReport(sourceReport)
			return outcome
		}
		sourceReport.Validation = &metadata.ValidationSummary{
			TileType:            diagnostic.TileType,
			InternalCompression: diagnostic.InternalCompression,
			TileCompression:     diagnostic.TileCompression,
			SamplePrefixHex:     diagnostic.SamplePrefixHex,
			SampleDecompresses:  diagnostic.SampleDecompresses,
		}
	}

	s.storageSink.RecordArchive(buildResult.Path, job.name)
	s.metadataSink.RecordSourceReport(sourceReport)

	outcome.archiveRef = &stylerewrite.ArchiveRef{
		SourceName:  job.name,
		Path:        buildResult.Path,
		URLTemplate: job.group.Source.URLTemplate(),
		SampleURL:   job.group.Source.SampleURL(),
	}
	return outcome
}

// rewriteStyle runs the style rewriter when the capture carried a style
// document, and writes the result. A rewrite failure degrades to no
// style output; the archives stand on their own.
func (s *Scheduler) rewriteStyle(capture bundle.CaptureBundle, archiveRefs []stylerewrite.ArchiveRef) string {
	if len(capture.Style) == 0 {
		return ""
	}

	rewritten, err := s.rewriter.Rewrite(capture.Style, archiveRefs)
	if err != nil {
		s.metadataSink.RecordWarning("scheduler", "style document could not be rewritten, no style artifact produced")
		return ""
	}
	if s.cfg.DryRun() {
		return ""
	}

	written, writeErr := s.storageSink.WriteStyle(s.cfg.OutputDir(), rewritten.Style)
	if writeErr != nil {
		return ""
	}
	return written.Path()
}

func tileCoords(tiles []classifier.ClassifiedTile) []maptile.Tile {
	coords := make([]maptile.Tile, 0, len(tiles))
	for _, tile := range tiles {
		coords = append(coords, tile.Coord)
	}
	return coords
}

func perZoomCounts(report coverage.Report) map[int]int {
	counts := make(map[int]int, len(report.PerZoomCounts))
	for zoom, count := range report.PerZoomCounts {
		counts[int(zoom)] = count
	}
	return counts
}
