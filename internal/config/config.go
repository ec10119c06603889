// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Flag values override file values.
type Config struct {
	OutputDir string        `yaml:"output_dir"`
	CacheDir  string        `yaml:"cache_dir"`
	Fetch     FetchConfig   `yaml:"fetch"`
	Feeds     FeedsConfig   `yaml:"feeds"`
	Scoring   ScoringConfig `yaml:"scoring"`
	TopN      int           `yaml:"top_n"`
}

// FetchConfig bounds feed fetching and caching.
type FetchConfig struct {
	Timeout  string `yaml:"timeout"`
	CacheTTL string `yaml:"cache_ttl"`
}

// ParseTimeout returns the per-feed fetch timeout.
func (f FetchConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ParseCacheTTL returns the feed cache freshness window.
func (f FetchConfig) ParseCacheTTL() time.Duration {
	d, err := time.ParseDuration(f.CacheTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// FeedsConfig holds per-feed settings.
type FeedsConfig struct {
	NVD  NVDConfig  `yaml:"nvd"`
	KEV  KEVConfig  `yaml:"kev"`
	EPSS EPSSConfig `yaml:"epss"`
}

// NVDConfig for the NVD CVE feed.
type NVDConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	PageSize int    `yaml:"page_size"`
}

// KEVConfig for the CISA KEV catalog feed.
type KEVConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	FallbackURL string `yaml:"fallback_url"`
}

// EPSSConfig for the FIRST EPSS feed.
type EPSSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Limit   int    `yaml:"limit"`
}

// ScoringConfig tunes the KEV urgency curve.
type ScoringConfig struct {
	KEVLookback   string `yaml:"kev_lookback"`
	KEVSaturation int    `yaml:"kev_saturation"`
}

// ParseKEVLookback returns the KEV urgency lookback window.
func (s ScoringConfig) ParseKEVLookback() time.Duration {
	d, err := time.ParseDuration(s.KEVLookback)
	if err != nil || d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutputDir: ".",
		Fetch: FetchConfig{
			Timeout:  "30s",
			CacheTTL: "30m",
		},
		Feeds: FeedsConfig{
			NVD:  NVDConfig{Enabled: true},
			KEV:  KEVConfig{Enabled: true},
			EPSS: EPSSConfig{Enabled: true},
		},
		Scoring: ScoringConfig{
			KEVLookback:   "720h",
			KEVSaturation: 20,
		},
		TopN: 10,
	}
}

// Load reads a YAML config file over the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}
