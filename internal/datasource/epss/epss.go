// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package epss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bonial-oss/threat-collector/internal/cache"
	"github.com/bonial-oss/threat-collector/internal/types"
)

const (
	cacheFilename   = "epss_scores.json"
	defaultURL      = "https://api.first.org/data/v1/epss"
	defaultLimit    = 1000
	maxResponseSize = 50 * 1024 * 1024 // 50 MB
	defaultTimeout  = 30 * time.Second
)

// Config controls where EPSS scores are fetched from and cached.
// Zero values fall back to the FIRST API defaults.
type Config struct {
	URL      string
	Limit    int
	CacheDir string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Source fetches EPSS probability scores with caching support.
type Source struct {
	cache  *cache.Cache
	client *http.Client
	url    string
	limit  int
}

// NewSource creates an EPSS source with cache stored under CacheDir.
func NewSource(cfg Config) *Source {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Source{
		cache:  cache.New(cfg.CacheDir, cfg.CacheTTL),
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		limit:  cfg.Limit,
	}
}

// Fetch returns up to Limit EPSS score records, using cache when
// appropriate. The cache ladder matches the other sources.
func (s *Source) Fetch(ctx context.Context, skipUpdate bool) ([]types.EPSSScore, error) {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		return s.loadFromCache()
	}

	data, reqURL, err := s.download(ctx)
	if err == nil {
		if storeErr := s.cache.Store(cacheFilename, reqURL, data); storeErr != nil {
			return nil, fmt.Errorf("storing EPSS data in cache: %w", storeErr)
		}
		return s.parseResponse(data)
	}

	if s.cache.Exists(cacheFilename) {
		logrus.WithField("feed", "epss").Warnf("download failed (%v), using stale cache", err)
		return s.loadFromCache()
	}

	return nil, fmt.Errorf("downloading EPSS data: %w", err)
}

func (s *Source) loadFromCache() ([]types.EPSSScore, error) {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return nil, fmt.Errorf("loading EPSS data from cache: %w", err)
	}
	return s.parseResponse(data)
}

func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(s.limit))
	reqURL := s.url + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, reqURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("reading response body: %w", err)
	}

	return data, reqURL, nil
}

// parseResponse unmarshals the EPSS envelope and returns at most Limit
// records. The limit is enforced again here because a cached file may
// predate a configuration change.
func (s *Source) parseResponse(data []byte) ([]types.EPSSScore, error) {
	var resp types.EPSSResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling EPSS response: %w", err)
	}
	scores := resp.Data
	if len(scores) > s.limit {
		scores = scores[:s.limit]
	}
	return scores, nil
}
