package expander

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/rohmanhakim/mapfreeze/internal/classifier"
	"github.com/rohmanhakim/mapfreeze/internal/coverage"
	"github.com/rohmanhakim/mapfreeze/internal/metadata"
	"github.com/rohmanhakim/mapfreeze/pkg/failure"
	"github.com/rohmanhakim/mapfreeze/pkg/limiter"
	"github.com/rohmanhakim/mapfreeze/pkg/retry"
	"github.com/rohmanhakim/mapfreeze/pkg/urlutil"
)

/*
Responsibilities

- Fill coverage gaps for one source by fetching missing tiles over the
  network, inside a hard budget
- Never make the run worse: a failed fetch is a count, not an abort

Safety Rules

- Expansion refuses to start when the analysis implies an unreasonable
  request volume (the sanity gate); it skips with a warning instead
- The fetch list is the deterministic priority subset from the coverage
  calculator, never more than maxTiles
- Every request carries a timeout, goes through the shared per-host rate
  limiter, and is retried at most once
- Cancellation is cooperative: workers stop picking up tiles once the
  context is done, in-flight requests finish on their own

Expansion is the only network-bound stage of the pipeline.
*/

type Expander struct {
	httpClient   *http.Client
	rateLimiter  limiter.RateLimiter
	calculator   coverage.Calculator
	metadataSink metadata.MetadataSink
	param        Param
}

func NewExpander(
	httpClient *http.Client,
	rateLimiter limiter.RateLimiter,
	calculator coverage.Calculator,
	metadataSink metadata.MetadataSink,
	param Param,
) Expander {
	rateLimiter.SetBaseDelay(param.baseDelay)
	return Expander{
		httpClient:   httpClient,
		rateLimiter:  rateLimiter,
		calculator:   calculator,
		metadataSink: metadataSink,
		param:        param,
	}
}

// Expand fetches missing tiles for one source. The returned outcome
// carries whatever was fetched; merging into the source's tile set is
// the caller's business.
func (e *Expander) Expand(
	ctx context.Context,
	source *classifier.Source,
	tiles []maptile.Tile,
	report coverage.Report,
) Outcome {
	if report.TotalPossible > safetyMaxRequestVolume {
		reason := fmt.Sprintf(
			"source %q: possible tile count %d exceeds the sanity limit %d, expansion skipped",
			source.Name(), report.TotalPossible, safetyMaxRequestVolume,
		)
		e.metadataSink.RecordWarning("expander", reason)
		return Outcome{Skipped: true, SkipReason: reason}
	}
	if source.URLTemplate() == "" {
		reason := fmt.Sprintf("source %q has no tile url template, expansion skipped", source.Name())
		e.metadataSink.RecordWarning("expander", reason)
		return Outcome{Skipped: true, SkipReason: reason}
	}

	missing := e.calculator.MissingTiles(tiles, report, e.param.maxTiles)
	if len(missing) == 0 {
		return Outcome{}
	}

	host := urlutil.Host(source.URLTemplate())

	var (
		mu      sync.Mutex
		fetched []classifier.ClassifiedTile
		failed  int
	)

	work := make(chan maptile.Tile)
	var wg sync.WaitGroup
	for i := 0; i < e.workerCount(len(missing)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tile := range work {
				data, err := e.fetchTile(ctx, source.URLTemplate(), host, tile)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					fetched = append(fetched, classifier.ClassifiedTile{Coord: tile, Data: data})
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, tile := range missing {
		select {
		case <-ctx.Done():
			break feed
		case work <- tile:
		}
	}
	close(work)
	wg.Wait()

	if failed > 0 {
		e.metadataSink.RecordWarning(
			"expander",
			fmt.Sprintf("source %q: %d of %d gap fetches failed", source.Name(), failed, len(missing)),
		)
	}
	return Outcome{Fetched: fetched, FailedCount: failed}
}

func (e *Expander) workerCount(pending int) int {
	n := e.param.concurrency
	if n < 1 {
		n = 1
	}
	if pending < n {
		n = pending
	}
	return n
}

// fetchTile performs one rate-limited, once-retried tile fetch.
func (e *Expander) fetchTile(
	ctx context.Context,
	template string,
	host string,
	tile maptile.Tile,
) ([]byte, failure.ClassifiedError) {
	fetchURL := fillTemplate(template, tile)
	attempts := 0
	startedAt := time.Now()

	data, err := retry.Retry(e.param.retryParam, func() ([]byte, failure.ClassifiedError) {
		attempts++
		if delay := e.rateLimiter.ResolveDelay(host); delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return nil, &ExpanderError{
				Message:   fmt.Sprintf("fetch %s: %v", fetchURL, ctx.Err()),
				Retryable: false,
				Cause:     ErrCauseNetwork,
			}
		}
		e.rateLimiter.MarkLastFetchAsNow(host)
		return e.doFetch(ctx, fetchURL, host, tile)
	})

	status := 0
	if err == nil {
		status = http.StatusOK
	}
	e.metadataSink.RecordFetch(fetchURL, status, time.Since(startedAt), attempts-1, int(tile.Z))

	if err != nil {
		e.recordError("Expander.fetchTile", fetchURL, err)
		return nil, err
	}
	return data, nil
}

func (e *Expander) doFetch(ctx context.Context, fetchURL string, host string, tile maptile.Tile) ([]byte, failure.ClassifiedError) {
	reqCtx, cancel := context.WithTimeout(ctx, e.param.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("building request for %s: %v", fetchURL, err),
			Retryable: false,
			Cause:     ErrCauseNetwork,
		}
	}
	if e.param.userAgent != "" {
		req.Header.Set("User-Agent", e.param.userAgent)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("fetch %s: %v", fetchURL, err),
			Retryable: true,
			Cause:     ErrCauseNetwork,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to the body read
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		e.rateLimiter.Backoff(host)
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("fetch %s: status %d", fetchURL, resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseHTTPStatus,
		}
	default:
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("fetch %s: status %d", fetchURL, resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseHTTPStatus,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("reading %s: %v", fetchURL, err),
			Retryable: true,
			Cause:     ErrCauseNetwork,
		}
	}
	if len(body) == 0 {
		return nil, &ExpanderError{
			Message:   fmt.Sprintf("fetch %s: empty payload", fetchURL),
			Retryable: false,
			Cause:     ErrCauseEmptyPayload,
		}
	}

	e.rateLimiter.ResetBackoff(host)
	return body, nil
}

func (e *Expander) recordError(action string, fetchURL string, err failure.ClassifiedError) {
	cause := metadata.CauseUnknown
	details := err.Error()
	if expErr, ok := err.(*ExpanderError); ok {
		cause = mapExpanderErrorToMetadataCause(expErr)
		details = expErr.Message
	}
	e.metadataSink.RecordError(
		time.Now(),
		"expander",
		action,
		cause,
		details,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, fetchURL),
		},
	)
}

func fillTemplate(template string, tile maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(tile.Z), 10),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	).Replace(template)
}
