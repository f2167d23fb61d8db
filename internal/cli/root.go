package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/mapfreeze/internal/build"
	"github.com/rohmanhakim/mapfreeze/internal/config"
	"github.com/rohmanhakim/mapfreeze/internal/scheduler"
)

var (
	cfgFile       string
	bundlePath    string
	harPath       string
	outputDir     string
	expandZoom    int
	maxTiles      int
	expand        bool
	concurrency   int
	sourceWorkers int
	baseDelay     time.Duration
	jitter        time.Duration
	randomSeed    int64
	timeout       time.Duration
	userAgent     string
	noValidate    bool
	dryRun        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mapfreeze",
	Short: "Freeze a captured web map into offline tile archives.",
	Long: `mapfreeze turns a browser capture of a web map session into
self-contained offline artifacts: one PMTiles archive per tile source,
a style document rewritten to point at those archives, and a build
report describing exactly what was captured, fetched and skipped.

Input is either a native capture bundle or a HAR export; the tool
classifies tile traffic, measures coverage of the visited area, and can
optionally fetch the remaining gaps over the network.`,
	Version: build.FullVersion(),
	Run: func(cmd *cobra.Command, args []string) {
		if bundlePath == "" && harPath == "" {
			fmt.Fprintf(os.Stderr, "Error: either --bundle or --har is required.\n")
			cmd.Usage()
			os.Exit(1)
		}

		cfg := InitConfig()

		s := scheduler.NewScheduler(cfg)
		report, result, err := s.Run(context.Background(), scheduler.RunInput{
			BundlePath: bundlePath,
			HARPath:    harPath,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
			os.Exit(1)
		}

		fmt.Printf("Sources: %d\n", report.TotalSources)
		fmt.Printf("Tiles: %d\n", report.TotalTiles)
		fmt.Printf("Archives: %d\n", report.TotalArchives)
		for _, path := range result.ArchivePaths {
			fmt.Printf("  %s\n", path)
		}
		if result.StylePath != "" {
			fmt.Printf("Style: %s\n", result.StylePath)
		}
		if result.ReportPath != "" {
			fmt.Printf("Report: %s\n", result.ReportPath)
		}
		if len(report.Warnings) > 0 {
			fmt.Printf("Warnings: %d\n", len(report.Warnings))
		}
		if len(report.Errors) > 0 {
			fmt.Printf("Errors: %d (see report for details)\n", len(report.Errors))
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&bundlePath, "bundle", "", "path to a native capture bundle (JSON)")
	rootCmd.PersistentFlags().StringVar(&harPath, "har", "", "path to a HAR export of the map session")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for archives, style and report")
	rootCmd.PersistentFlags().IntVar(&expandZoom, "expand-zoom", 0, "zoom levels past the deepest captured zoom to analyse")
	rootCmd.PersistentFlags().IntVar(&maxTiles, "max-tiles", 0, "maximum gap-fill fetches per source")
	rootCmd.PersistentFlags().BoolVar(&expand, "expand", false, "fetch missing tiles over the network")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent fetch workers per source")
	rootCmd.PersistentFlags().IntVar(&sourceWorkers, "source-workers", 0, "number of sources processed concurrently")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().BoolVar(&noValidate, "no-validate", false, "skip reopening archives for the integrity check")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "analyse the capture without writing output")
}

// InitConfig reads in config file and flag values if set.
func InitConfig() config.Config {
	cfg, err := InitConfigWithError()
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and flag values if set, returning any errors.
// This makes it easier to test error cases.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	configBuilder := config.WithDefault()

	// Override with CLI flag values where provided
	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if expandZoom > 0 {
		configBuilder = configBuilder.WithExpandZoom(expandZoom)
	}

	if maxTiles > 0 {
		configBuilder = configBuilder.WithMaxTiles(maxTiles)
	}

	if expand {
		configBuilder = configBuilder.WithExpand(expand)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if sourceWorkers > 0 {
		configBuilder = configBuilder.WithSourceWorkers(sourceWorkers)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if noValidate {
		configBuilder = configBuilder.WithValidate(false)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	bundlePath = ""
	harPath = ""
	outputDir = ""
	expandZoom = 0
	maxTiles = 0
	expand = false
	concurrency = 0
	sourceWorkers = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	timeout = 0
	userAgent = ""
	noValidate = false
	dryRun = false
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetBundleForTest(path string) {
	bundlePath = path
}

func SetHARForTest(path string) {
	harPath = path
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetExpandZoomForTest(zoom int) {
	expandZoom = zoom
}

func SetMaxTilesForTest(tiles int) {
	maxTiles = tiles
}

func SetExpandForTest(enabled bool) {
	expand = enabled
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetSourceWorkersForTest(workers int) {
	sourceWorkers = workers
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetNoValidateForTest(skip bool) {
	noValidate = skip
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}
