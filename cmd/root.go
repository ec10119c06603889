// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bonial-oss/threat-collector/internal/collect"
	"github.com/bonial-oss/threat-collector/internal/config"
	"github.com/bonial-oss/threat-collector/internal/datasource/epss"
	"github.com/bonial-oss/threat-collector/internal/datasource/kev"
	"github.com/bonial-oss/threat-collector/internal/datasource/nvd"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ExitError signals a non-zero exit code with an optional message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// Options holds all CLI flag values.
type Options struct {
	Config       string
	OutputDir    string
	CacheDir     string
	Timeout      time.Duration
	SkipDBUpdate bool
	NoNVD        bool
	NoKEV        bool
	NoEPSS       bool
	Top          int
	LogLevel     string
	LogFormat    string
}

// NewRootCommand creates the root cobra command with all flags. The root
// command performs one collection run; recurrence is the scheduler's job.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:     "threat-collector",
		Short:   "Aggregate NVD, KEV, and EPSS feeds into a composite threat score",
		Version: Version,
		Long: `threat-collector fetches the NVD vulnerability catalog, the CISA Known
Exploited Vulnerabilities list, and FIRST EPSS probability scores, computes
a weighted 0-100 composite threat score, and writes two JSON documents:
latest.json (current state) and history_24h.json (rolling 24-hour window).

One invocation performs one full run and exits. Invoke it hourly from cron
or a CI schedule; the history window prunes itself by timestamp.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogging(opts)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Config, "config", "", "Path to YAML config file")
	flags.StringVarP(&opts.OutputDir, "output-dir", "o", "", "Directory for latest.json and history_24h.json")
	flags.StringVar(&opts.CacheDir, "cache-dir", "", "Override cache directory")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Per-feed fetch timeout")
	flags.BoolVar(&opts.SkipDBUpdate, "skip-db-update", false, "Use cached feed data without update check")
	flags.BoolVar(&opts.NoNVD, "no-nvd", false, "Disable the NVD feed")
	flags.BoolVar(&opts.NoKEV, "no-kev", false, "Disable the KEV feed")
	flags.BoolVar(&opts.NoEPSS, "no-epss", false, "Disable the EPSS feed")
	flags.IntVar(&opts.Top, "top", 0, "Cap for the top-vulnerability and recent-KEV lists")

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pflags.StringVar(&opts.LogFormat, "log-format", "text", "Log format: text, json")

	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}

// setupLogging configures logrus. Logs go to stderr so stdout stays clean
// for machine-readable output.
func setupLogging(opts *Options) error {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return &ExitError{Code: 2, Message: fmt.Sprintf("invalid log level: %s", opts.LogLevel)}
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	switch opts.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("invalid log format: %s", opts.LogFormat)}
	}
	return nil
}

// runCollect builds the sources from config and flags and executes one
// pipeline run.
func runCollect(cmd *cobra.Command, opts *Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	applyFlags(cmd, opts, &cfg)

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("determining cache directory: %w", err)
		}
		cacheDir = filepath.Join(base, "threat-collector")
	}

	timeout := cfg.Fetch.ParseTimeout()
	ttl := cfg.Fetch.ParseCacheTTL()

	var nvdSource collect.NVDSource
	var kevSource collect.KEVSource
	var epssSource collect.EPSSSource

	if cfg.Feeds.NVD.Enabled {
		nvdSource = nvd.NewSource(nvd.Config{
			URL:      cfg.Feeds.NVD.URL,
			PageSize: cfg.Feeds.NVD.PageSize,
			CacheDir: filepath.Join(cacheDir, "nvd"),
			CacheTTL: ttl,
			Timeout:  timeout,
		})
	}
	if cfg.Feeds.KEV.Enabled {
		kevSource = kev.NewSource(kev.Config{
			URL:         cfg.Feeds.KEV.URL,
			FallbackURL: cfg.Feeds.KEV.FallbackURL,
			CacheDir:    filepath.Join(cacheDir, "kev"),
			CacheTTL:    ttl,
			Timeout:     timeout,
		})
	}
	if cfg.Feeds.EPSS.Enabled {
		epssSource = epss.NewSource(epss.Config{
			URL:      cfg.Feeds.EPSS.URL,
			Limit:    cfg.Feeds.EPSS.Limit,
			CacheDir: filepath.Join(cacheDir, "epss"),
			CacheTTL: ttl,
			Timeout:  timeout,
		})
	}

	collector := collect.New(nvdSource, kevSource, epssSource, collect.Options{
		LatestPath:    filepath.Join(cfg.OutputDir, "latest.json"),
		HistoryPath:   filepath.Join(cfg.OutputDir, "history_24h.json"),
		FetchTimeout:  timeout,
		SkipUpdate:    opts.SkipDBUpdate,
		TopN:          cfg.TopN,
		KEVLookback:   cfg.Scoring.ParseKEVLookback(),
		KEVSaturation: cfg.Scoring.KEVSaturation,
	})

	if err := collector.Run(cmd.Context()); err != nil {
		// The only fatal condition: no observable output was produced.
		return &ExitError{Code: 1, Message: fmt.Sprintf("persisting output: %v", err)}
	}
	return nil
}

// loadConfig returns the file config when --config is given, defaults
// otherwise.
func loadConfig(opts *Options) (config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	return config.Load(opts.Config)
}

// applyFlags overlays explicitly-set flags onto the config.
func applyFlags(cmd *cobra.Command, opts *Options, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = opts.OutputDir
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.CacheDir
	}
	if flags.Changed("timeout") {
		cfg.Fetch.Timeout = opts.Timeout.String()
	}
	if flags.Changed("top") {
		cfg.TopN = opts.Top
	}
	if opts.NoNVD {
		cfg.Feeds.NVD.Enabled = false
	}
	if opts.NoKEV {
		cfg.Feeds.KEV.Enabled = false
	}
	if opts.NoEPSS {
		cfg.Feeds.EPSS.Enabled = false
	}
}
