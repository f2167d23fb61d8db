package expander

import (
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/classifier"
	"github.com/rohmanhakim/mapfreeze/pkg/retry"
)

// safetyMaxRequestVolume is the sanity gate: when the coverage analysis
// says the possible tile count is above this, expansion refuses to start
// at all. A number this size means the bounds or zoom inputs are
// pathological and no amount of fetching would fix the capture.
const safetyMaxRequestVolume = 10_000

// Param is the fetch budget and pacing for one expansion run. Values are
// passed in from config; the expander has no defaults of its own.
type Param struct {
	maxTiles    int
	baseDelay   time.Duration
	timeout     time.Duration
	concurrency int
	userAgent   string
	retryParam  retry.RetryParam
}

func NewParam(
	maxTiles int,
	baseDelay time.Duration,
	timeout time.Duration,
	concurrency int,
	userAgent string,
	retryParam retry.RetryParam,
) Param {
	return Param{
		maxTiles:    maxTiles,
		baseDelay:   baseDelay,
		timeout:     timeout,
		concurrency: concurrency,
		userAgent:   userAgent,
		retryParam:  retryParam,
	}
}

func (p *Param) MaxTiles() int {
	return p.maxTiles
}

func (p *Param) BaseDelay() time.Duration {
	return p.baseDelay
}

func (p *Param) Timeout() time.Duration {
	return p.timeout
}

func (p *Param) Concurrency() int {
	return p.concurrency
}

func (p *Param) UserAgent() string {
	return p.userAgent
}

func (p *Param) RetryParam() retry.RetryParam {
	return p.retryParam
}

// Outcome is what one expansion run produced. A skipped run is not a
// failed run; the pipeline continues with whatever was captured.
type Outcome struct {
	Fetched     []classifier.ClassifiedTile
	FailedCount int
	Skipped     bool
	SkipReason  string
}
