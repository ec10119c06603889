// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package nvd

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
	cacheFilename   = "nvd_recent_cves.json"
	defaultURL      = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	defaultPageSize = 100
	maxResponseSize = 50 * 1024 * 1024 // 50 MB
	defaultTimeout  = 30 * time.Second
)

// Config controls where recent CVEs are fetched from and cached.
// Zero values fall back to the NVD defaults.
type Config struct {
	URL      string
	PageSize int
	CacheDir string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Source fetches recent CVEs from the NVD API 2.0 with caching support.
type Source struct {
	cache    *cache.Cache
	client   *http.Client
	url      string
	pageSize int
}

// NewSource creates an NVD source with cache stored under CacheDir.
func NewSource(cfg Config) *Source {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Source{
		cache:    cache.New(cfg.CacheDir, cfg.CacheTTL),
		client:   &http.Client{Timeout: cfg.Timeout},
		url:      cfg.URL,
		pageSize: cfg.PageSize,
	}
}

// Fetch returns one page of recent CVE entries, using cache when
// appropriate. The cache ladder matches the other sources: skip-update,
// fresh cache, download, stale-cache fallback, error.
func (s *Source) Fetch(ctx context.Context, skipUpdate bool) ([]types.NVDVulnerability, error) {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		return s.loadFromCache()
	}

	data, reqURL, err := s.download(ctx)
	if err == nil {
		if storeErr := s.cache.Store(cacheFilename, reqURL, data); storeErr != nil {
			return nil, fmt.Errorf("storing NVD data in cache: %w", storeErr)
		}
		return parseResponse(data)
	}

	if s.cache.Exists(cacheFilename) {
		logrus.WithField("feed", "nvd").Warnf("download failed (%v), using stale cache", err)
		return s.loadFromCache()
	}

	return nil, fmt.Errorf("downloading NVD data: %w", err)
}

func (s *Source) loadFromCache() ([]types.NVDVulnerability, error) {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return nil, fmt.Errorf("loading NVD data from cache: %w", err)
	}
	return parseResponse(data)
}

// download fetches the first page of CVEs ordered as the API returns them.
func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	q := url.Values{}
	q.Set("resultsPerPage", strconv.Itoa(s.pageSize))
	q.Set("startIndex", "0")
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

// parseResponse unmarshals the NVD envelope and returns its entries.
func parseResponse(data []byte) ([]types.NVDVulnerability, error) {
	var resp types.NVDResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling NVD response: %w", err)
	}
	return resp.Vulnerabilities, nil
}
