// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package collect

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/threat-collector/internal/types"
)

type fakeNVD struct {
	vulns []types.NVDVulnerability
	err   error
}

func (f *fakeNVD) Fetch(context.Context, bool) ([]types.NVDVulnerability, error) {
	return f.vulns, f.err
}

type fakeKEV struct {
	entries []types.KEVEntry
	err     error
}

func (f *fakeKEV) Fetch(context.Context, bool) ([]types.KEVEntry, error) {
	return f.entries, f.err
}

type fakeEPSS struct {
	scores []types.EPSSScore
	err    error
}

func (f *fakeEPSS) Fetch(context.Context, bool) ([]types.EPSSScore, error) {
	return f.scores, f.err
}

func nvdVuln(id string, score float64) types.NVDVulnerability {
	return types.NVDVulnerability{CVE: types.NVDCVE{
		ID:        id,
		Published: "2024-01-15T10:00:00.000",
		Metrics: types.NVDMetrics{
			CVSSMetricV31: []types.NVDCVSSMetric{{CVSSData: types.NVDCVSSData{BaseScore: score}}},
		},
	}}
}

func testOptions(dir string, now time.Time) Options {
	return Options{
		LatestPath:  filepath.Join(dir, "latest.json"),
		HistoryPath: filepath.Join(dir, "history_24h.json"),
		Now:         func() time.Time { return now },
	}
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestRun_AllFeedsHealthy(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	nvd := &fakeNVD{vulns: []types.NVDVulnerability{
		nvdVuln("CVE-2024-0001", 9.8),
		nvdVuln("CVE-2024-0002", 7.2),
		nvdVuln("CVE-2024-0003", 5.0),
	}}
	kev := &fakeKEV{entries: []types.KEVEntry{
		{CVEID: "CVE-2023-1111", VendorProject: "Acme", Product: "Widget", DateAdded: now.AddDate(0, 0, -2).Format("2006-01-02")},
	}}
	epss := &fakeEPSS{scores: []types.EPSSScore{
		{CVE: "CVE-2024-0001", EPSS: "0.5"},
	}}

	c := New(nvd, kev, epss, testOptions(dir, now))
	require.NoError(t, c.Run(context.Background()))

	doc := readDoc(t, filepath.Join(dir, "latest.json"))
	threat := doc["threatScore"].(map[string]any)
	scores := threat["categoryScores"].(map[string]any)
	assert.InDelta(t, 73.33, scores["cveSeverity"], 0.01)
	assert.InDelta(t, 50.0, scores["epssProbability"], 0.01)

	status := doc["dataStatus"].(map[string]any)
	assert.Equal(t, true, status["nvdAvailable"])
	assert.Equal(t, true, status["kevAvailable"])
	assert.Equal(t, true, status["epssAvailable"])
	assert.Empty(t, status["errors"])

	meta := threat["metadata"].(map[string]any)
	assert.EqualValues(t, 3, meta["cveCount"])
	assert.EqualValues(t, 1, meta["kevCount"])
	assert.EqualValues(t, 1, meta["epssCount"])

	hist := readDoc(t, filepath.Join(dir, "history_24h.json"))
	assert.EqualValues(t, 1, hist["entryCount"])
}

func TestRun_OneFeedFails(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	nvd := &fakeNVD{vulns: []types.NVDVulnerability{nvdVuln("CVE-2024-0001", 8.0)}}
	kev := &fakeKEV{entries: []types.KEVEntry{}}
	epss := &fakeEPSS{err: errors.New("context deadline exceeded")}

	c := New(nvd, kev, epss, testOptions(dir, now))
	require.NoError(t, c.Run(context.Background()))

	doc := readDoc(t, filepath.Join(dir, "latest.json"))
	status := doc["dataStatus"].(map[string]any)
	assert.Equal(t, false, status["epssAvailable"])
	errs := status["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "EPSS fetch failed")

	// EPSS contributes the fallback 0; KEV is available with zero count.
	threat := doc["threatScore"].(map[string]any)
	scores := threat["categoryScores"].(map[string]any)
	assert.Zero(t, scores["epssProbability"])
	assert.Equal(t, true, status["kevAvailable"])
	assert.InDelta(t, 0.30*80.0, threat["compositeScore"], 0.01)
}

func TestRun_TotalFailureStillPublishes(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	c := New(
		&fakeNVD{err: errors.New("down")},
		&fakeKEV{err: errors.New("down")},
		&fakeEPSS{err: errors.New("down")},
		testOptions(dir, now),
	)
	require.NoError(t, c.Run(context.Background()))

	doc := readDoc(t, filepath.Join(dir, "latest.json"))
	threat := doc["threatScore"].(map[string]any)
	assert.Zero(t, threat["compositeScore"])

	status := doc["dataStatus"].(map[string]any)
	assert.Equal(t, false, status["nvdAvailable"])
	assert.Equal(t, false, status["kevAvailable"])
	assert.Equal(t, false, status["epssAvailable"])
	require.Len(t, status["errors"].([]any), 3)

	assert.Empty(t, doc["topVulnerabilities"])
	assert.Empty(t, doc["recentKEVs"])

	hist := readDoc(t, filepath.Join(dir, "history_24h.json"))
	assert.EqualValues(t, 1, hist["entryCount"])
}

func TestRun_DisabledFeedHasNoError(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	c := New(
		&fakeNVD{vulns: []types.NVDVulnerability{nvdVuln("CVE-2024-0001", 8.0)}},
		&fakeKEV{entries: []types.KEVEntry{}},
		nil, // EPSS disabled
		testOptions(dir, now),
	)
	require.NoError(t, c.Run(context.Background()))

	doc := readDoc(t, filepath.Join(dir, "latest.json"))
	status := doc["dataStatus"].(map[string]any)
	assert.Equal(t, false, status["epssAvailable"])
	assert.Empty(t, status["errors"])
}

func TestRun_HistoryAccumulatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	// 30 hourly runs: the window must retain at most the last 24 hours.
	for i := 0; i < 30; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		c := New(
			&fakeNVD{vulns: []types.NVDVulnerability{nvdVuln("CVE-2024-0001", 8.0)}},
			&fakeKEV{entries: []types.KEVEntry{}},
			&fakeEPSS{scores: []types.EPSSScore{{CVE: "CVE-2024-0001", EPSS: "0.2"}}},
			testOptions(dir, now),
		)
		require.NoError(t, c.Run(context.Background()))
	}

	hist := readDoc(t, filepath.Join(dir, "history_24h.json"))
	entries := hist["entries"].([]any)
	assert.LessOrEqual(t, len(entries), 25)
	assert.EqualValues(t, len(entries), hist["entryCount"])

	last := base.Add(29 * time.Hour)
	cutoff := last.Add(-24 * time.Hour)
	for _, raw := range entries {
		e := raw.(map[string]any)
		at, err := time.Parse(time.RFC3339, e["timestamp"].(string))
		require.NoError(t, err)
		assert.False(t, at.Before(cutoff))
	}
}

func TestRun_PersistFailureIsFatal(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	opts := Options{
		LatestPath:  filepath.Join(string([]byte{0}), "latest.json"),
		HistoryPath: filepath.Join(string([]byte{0}), "history_24h.json"),
		Now:         func() time.Time { return now },
	}
	c := New(&fakeNVD{}, &fakeKEV{}, &fakeEPSS{}, opts)
	assert.Error(t, c.Run(context.Background()))
}

func TestRun_SnapshotFullyReplaced(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	first := New(
		&fakeNVD{vulns: []types.NVDVulnerability{nvdVuln("CVE-2024-0001", 9.0)}},
		&fakeKEV{entries: []types.KEVEntry{}},
		&fakeEPSS{scores: []types.EPSSScore{}},
		testOptions(dir, now),
	)
	require.NoError(t, first.Run(context.Background()))

	// Second run with no NVD data: the old top list must not survive.
	second := New(
		&fakeNVD{vulns: nil},
		&fakeKEV{entries: []types.KEVEntry{}},
		&fakeEPSS{scores: []types.EPSSScore{}},
		testOptions(dir, now.Add(time.Hour)),
	)
	require.NoError(t, second.Run(context.Background()))

	doc := readDoc(t, filepath.Join(dir, "latest.json"))
	assert.Empty(t, doc["topVulnerabilities"])
	assert.Equal(t, now.Add(time.Hour).Format(time.RFC3339), doc["timestamp"])
}
