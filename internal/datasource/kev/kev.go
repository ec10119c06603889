// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bonial-oss/threat-collector/internal/cache"
	"github.com/bonial-oss/threat-collector/internal/types"
)

const (
	cacheFilename   = "known_exploited_vulnerabilities.json"
	defaultURL      = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	defaultFallback = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"
	maxResponseSize = 50 * 1024 * 1024 // 50 MB
	defaultTimeout  = 30 * time.Second
)

// Config controls where the KEV catalog is fetched from and cached.
// Zero values fall back to the CISA defaults.
type Config struct {
	URL         string
	FallbackURL string
	CacheDir    string
	CacheTTL    time.Duration
	Timeout     time.Duration
}

// Source fetches the CISA KEV catalog with caching support.
type Source struct {
	cache       *cache.Cache
	client      *http.Client
	url         string
	fallbackURL string
}

// NewSource creates a KEV source with cache stored under CacheDir.
func NewSource(cfg Config) *Source {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.FallbackURL == "" {
		cfg.FallbackURL = defaultFallback
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Source{
		cache:       cache.New(cfg.CacheDir, cfg.CacheTTL),
		client:      &http.Client{Timeout: cfg.Timeout},
		url:         cfg.URL,
		fallbackURL: cfg.FallbackURL,
	}
}

// Fetch returns the KEV catalog entries, using cache when appropriate.
//
// Logic:
//  1. If skipUpdate and cache exists -> load from cache, parse, return.
//  2. If cache is fresh -> load from cache, parse, return.
//  3. Download fresh data.
//  4. If download succeeds -> store in cache, parse, return.
//  5. If download fails and cache exists -> warn, load stale cache, parse, return.
//  6. If download fails and no cache -> return error.
func (s *Source) Fetch(ctx context.Context, skipUpdate bool) ([]types.KEVEntry, error) {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		return s.loadFromCache()
	}

	data, url, err := s.download(ctx)
	if err == nil {
		if storeErr := s.cache.Store(cacheFilename, url, data); storeErr != nil {
			return nil, fmt.Errorf("storing KEV data in cache: %w", storeErr)
		}
		return parseCatalog(data)
	}

	if s.cache.Exists(cacheFilename) {
		logrus.WithField("feed", "kev").Warnf("download failed (%v), using stale cache", err)
		return s.loadFromCache()
	}

	return nil, fmt.Errorf("downloading KEV catalog: %w", err)
}

// loadFromCache loads and parses the cached catalog JSON.
func (s *Source) loadFromCache() ([]types.KEVEntry, error) {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return nil, fmt.Errorf("loading KEV data from cache: %w", err)
	}
	return parseCatalog(data)
}

// download fetches the KEV catalog JSON from the primary URL, falling back
// to the mirror if the primary fails. Returns the URL that served the data.
func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	data, err := s.downloadFrom(ctx, s.url)
	if err == nil {
		return data, s.url, nil
	}

	data, err2 := s.downloadFrom(ctx, s.fallbackURL)
	if err2 == nil {
		return data, s.fallbackURL, nil
	}

	return nil, "", fmt.Errorf("primary (%s): %w; fallback (%s): %v", s.url, err, s.fallbackURL, err2)
}

func (s *Source) downloadFrom(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return data, nil
}

// parseCatalog unmarshals the KEV catalog JSON and returns its entries.
func parseCatalog(data []byte) ([]types.KEVEntry, error) {
	var catalog types.KEVCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}
	return catalog.Vulnerabilities, nil
}
