package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	//===============
	// Expansion
	//===============
	// How many zoom levels past the deepest captured zoom the gap analysis
	// may look. The analysis ceiling (z18) still applies on top of this.
	expandZoom int
	// Hard ceiling on gap-fill fetches per source, independent of how many
	// tiles the analysis says are missing.
	maxTiles int
	// Whether to run network expansion at all.
	expand bool

	//===============
	// Politeness
	//===============
	// Maximum number of concurrent gap-fill fetch workers per source.
	concurrency int
	// Minimum, fixed waiting time between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which to store archives, style and report
	outputDir string
	// Whether to reopen each archive after writing and decode a sample tile
	validate bool
	// Whether the program simulates what it would do without writing output
	dryRun bool

	//===============
	// Workers
	//===============
	// Maximum number of sources processed concurrently. Sources are fully
	// independent, so this only bounds memory and file handles.
	sourceWorkers int
}

type configDTO struct {
	ExpandZoom             int           `json:"expandZoom,omitempty"`
	MaxTiles               int           `json:"maxTiles,omitempty"`
	Expand                 *bool         `json:"expand,omitempty"`
	Concurrency            int           `json:"concurrency,omitempty"`
	BaseDelay              time.Duration `json:"baseDelay,omitempty"`
	Jitter                 time.Duration `json:"jitter,omitempty"`
	RandomSeed             int64         `json:"randomSeed,omitempty"`
	MaxAttempt             int           `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration `json:"timeout,omitempty"`
	UserAgent              string        `json:"userAgent,omitempty"`
	OutputDir              string        `json:"outputDir,omitempty"`
	Validate               *bool         `json:"validate,omitempty"`
	DryRun                 *bool         `json:"dryRun,omitempty"`
	SourceWorkers          int           `json:"sourceWorkers,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault().Build()
	if err != nil {
		return Config{}, err
	}

	// For most fields, only override if a non-zero value is provided
	if dto.ExpandZoom != 0 {
		cfg.expandZoom = dto.ExpandZoom
	}
	if dto.MaxTiles != 0 {
		cfg.maxTiles = dto.MaxTiles
	}
	// booleans are pointers so an omitted field keeps its default
	// (validate defaults to true) while an explicit false still lands
	if dto.Expand != nil {
		cfg.expand = *dto.Expand
	}
	if dto.Validate != nil {
		cfg.validate = *dto.Validate
	}
	if dto.DryRun != nil {
		cfg.dryRun = *dto.DryRun
	}

	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	if dto.SourceWorkers != 0 {
		cfg.sourceWorkers = dto.SourceWorkers
	}

	return cfg.validated()
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with default values for all fields.
func WithDefault() *Config {
	defaultConfig := Config{
		expandZoom:             1,
		maxTiles:               500,
		expand:                 false,
		concurrency:            4,
		baseDelay:              200 * time.Millisecond,
		jitter:                 100 * time.Millisecond,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             2,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                10 * time.Second,
		userAgent:              "mapfreeze/1.0",
		outputDir:              "output",
		validate:               true,
		dryRun:                 false,
		sourceWorkers:          4,
	}
	return &defaultConfig
}

func (c *Config) WithExpandZoom(expandZoom int) *Config {
	c.expandZoom = expandZoom
	return c
}

func (c *Config) WithMaxTiles(maxTiles int) *Config {
	c.maxTiles = maxTiles
	return c
}

func (c *Config) WithExpand(expand bool) *Config {
	c.expand = expand
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithValidate(validate bool) *Config {
	c.validate = validate
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithSourceWorkers(workers int) *Config {
	c.sourceWorkers = workers
	return c
}

func (c *Config) Build() (Config, error) {
	return c.validated()
}

func (c *Config) validated() (Config, error) {
	if c.expandZoom < 0 {
		return Config{}, fmt.Errorf("%w: expandZoom cannot be negative", ErrInvalidConfig)
	}
	if c.maxTiles < 1 {
		return Config{}, fmt.Errorf("%w: maxTiles must be at least 1", ErrInvalidConfig)
	}
	if c.baseDelay <= 0 {
		return Config{}, fmt.Errorf("%w: baseDelay must be positive", ErrInvalidConfig)
	}
	if c.timeout <= 0 {
		return Config{}, fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.concurrency < 1 {
		return Config{}, fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	}
	if c.sourceWorkers < 1 {
		return Config{}, fmt.Errorf("%w: sourceWorkers must be at least 1", ErrInvalidConfig)
	}
	if c.outputDir == "" {
		return Config{}, fmt.Errorf("%w: outputDir cannot be empty", ErrInvalidConfig)
	}
	return *c, nil
}

func (c Config) ExpandZoom() int {
	return c.expandZoom
}

func (c Config) MaxTiles() int {
	return c.maxTiles
}

func (c Config) Expand() bool {
	return c.expand
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) Validate() bool {
	return c.validate
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) SourceWorkers() int {
	return c.sourceWorkers
}
