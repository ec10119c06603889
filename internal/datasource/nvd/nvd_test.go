// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "resultsPerPage": 2,
  "startIndex": 0,
  "totalResults": 2,
  "vulnerabilities": [
    {
      "cve": {
        "id": "CVE-2024-0001",
        "published": "2024-01-15T10:00:00.000",
        "metrics": {
          "cvssMetricV31": [{"cvssData": {"baseScore": 9.8}}]
        }
      }
    },
    {
      "cve": {
        "id": "CVE-2024-0002",
        "published": "2024-01-16T08:30:00.000",
        "metrics": {
          "cvssMetricV2": [{"cvssData": {"baseScore": 7.5}}]
        }
      }
    }
  ]
}`

func TestParseResponse(t *testing.T) {
	vulns, err := parseResponse([]byte(sampleJSON))
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	assert.Equal(t, "CVE-2024-0001", vulns[0].CVE.ID)
	require.Len(t, vulns[0].CVE.Metrics.CVSSMetricV31, 1)
	assert.InDelta(t, 9.8, vulns[0].CVE.Metrics.CVSSMetricV31[0].CVSSData.BaseScore, 0.001)
	require.Len(t, vulns[1].CVE.Metrics.CVSSMetricV2, 1)
}

func TestParseResponse_MalformedEnvelope(t *testing.T) {
	_, err := parseResponse([]byte("<html>rate limited</html>"))
	assert.Error(t, err)
}

func TestFetch_SendsPagingParams(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(sampleJSON))
	}))
	defer srv.Close()

	s := NewSource(Config{URL: srv.URL, PageSize: 100, CacheDir: t.TempDir()})
	vulns, err := s.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, vulns, 2)
	assert.Contains(t, query, "resultsPerPage=100")
	assert.Contains(t, query, "startIndex=0")
}

func TestFetch_StaleCacheFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFilename), []byte(sampleJSON), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSource(Config{URL: srv.URL, CacheDir: dir})
	vulns, err := s.Fetch(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, vulns, 2)
}

func TestFetch_ErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSource(Config{URL: srv.URL, CacheDir: t.TempDir()})
	_, err := s.Fetch(context.Background(), false)
	assert.Error(t, err)
}
