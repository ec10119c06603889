// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/threat-collector/internal/types"
)

func cveRecord(id string, severity float64, published time.Time) types.NormalizedRecord {
	return types.NormalizedRecord{
		ID:          id,
		Severity:    &severity,
		PublishedAt: &published,
		Source:      types.CategoryCVE,
	}
}

func kevRecord(id, vendor, product string, added time.Time) types.NormalizedRecord {
	return types.NormalizedRecord{
		ID:          id,
		Vendor:      vendor,
		Product:     product,
		PublishedAt: &added,
		Source:      types.CategoryKEV,
	}
}

func TestBuild_TopVulnerabilitiesOrdering(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	records := []types.NormalizedRecord{
		cveRecord("CVE-2024-0002", 7.5, now),
		cveRecord("CVE-2024-0001", 9.8, now),
		cveRecord("CVE-2024-0003", 9.8, now), // tie with 0001, ID ascending
		{ID: "CVE-2024-0004", Source: types.CategoryCVE}, // no severity, excluded
	}

	snap := Build(now, types.ThreatScore{}, types.DataStatus{}, records, nil, 10)
	require.Len(t, snap.TopVulnerabilities, 3)
	assert.Equal(t, "CVE-2024-0001", snap.TopVulnerabilities[0].ID)
	assert.Equal(t, "CVE-2024-0003", snap.TopVulnerabilities[1].ID)
	assert.Equal(t, "CVE-2024-0002", snap.TopVulnerabilities[2].ID)
	assert.InDelta(t, 9.8, snap.TopVulnerabilities[0].BaseScore, 0.001)
}

func TestBuild_RecentKEVsOrdering(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	records := []types.NormalizedRecord{
		kevRecord("CVE-2023-1111", "Acme", "Widget", now.AddDate(0, 0, -5)),
		kevRecord("CVE-2023-2222", "Umbrella", "Gadget", now.AddDate(0, 0, -1)),
		{ID: "CVE-2023-3333", Source: types.CategoryKEV}, // no date, excluded
	}

	snap := Build(now, types.ThreatScore{}, types.DataStatus{}, nil, records, 10)
	require.Len(t, snap.RecentKEVs, 2)
	assert.Equal(t, "CVE-2023-2222", snap.RecentKEVs[0].CVEID)
	assert.Equal(t, "Umbrella", snap.RecentKEVs[0].VendorProject)
	assert.Equal(t, "CVE-2023-1111", snap.RecentKEVs[1].CVEID)
	assert.Equal(t, now.AddDate(0, 0, -1).Format("2006-01-02"), snap.RecentKEVs[0].DateAdded)
}

func TestBuild_TruncatesToTopN(t *testing.T) {
	now := time.Now().UTC()
	var cves, kevs []types.NormalizedRecord
	for i := 0; i < 25; i++ {
		cves = append(cves, cveRecord("CVE-2024-"+string(rune('A'+i)), float64(i%10), now))
		kevs = append(kevs, kevRecord("CVE-2023-"+string(rune('A'+i)), "V", "P", now.AddDate(0, 0, -i)))
	}

	snap := Build(now, types.ThreatScore{}, types.DataStatus{}, cves, kevs, 10)
	assert.Len(t, snap.TopVulnerabilities, 10)
	assert.Len(t, snap.RecentKEVs, 10)
}

func TestBuild_EmptyListsAreNotNull(t *testing.T) {
	now := time.Now().UTC()
	snap := Build(now, types.ThreatScore{}, types.DataStatus{Errors: []string{}}, nil, nil, 10)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topVulnerabilities":[]`)
	assert.Contains(t, string(data), `"recentKEVs":[]`)
}

func TestBuild_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	records := []types.NormalizedRecord{
		cveRecord("CVE-2024-0002", 9.8, now),
		cveRecord("CVE-2024-0001", 9.8, now),
	}
	a := Build(now, types.ThreatScore{}, types.DataStatus{}, records, nil, 10)
	b := Build(now, types.ThreatScore{}, types.DataStatus{}, records, nil, 10)
	assert.Equal(t, a, b)
}

func TestWrite_ProducesDocumentFields(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	threat := types.ThreatScore{
		CompositeScore: 45.12,
		CategoryScores: types.CategoryScores{CVESeverity: 73.33, KEVUrgency: 45.12, EPSSProbability: 12.5},
		Metadata:       types.ScoreMetadata{CVECount: 3, KEVCount: 12, EPSSCount: 100},
	}
	status := types.DataStatus{NVDAvailable: true, KEVAvailable: true, EPSSAvailable: false, Errors: []string{"EPSS fetch failed: timeout"}}
	snap := Build(now, threat, status, nil, nil, 10)

	path := filepath.Join(t.TempDir(), "latest.json")
	require.NoError(t, Write(path, snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "2026-08-28T12:00:00Z", doc["timestamp"])
	threatDoc, ok := doc["threatScore"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 45.12, threatDoc["compositeScore"], 0.001)
	scores, ok := threatDoc["categoryScores"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 73.33, scores["cveSeverity"], 0.001)
	assert.InDelta(t, 45.12, scores["kevUrgency"], 0.001)
	assert.InDelta(t, 12.5, scores["epssProbability"], 0.001)
	statusDoc, ok := doc["dataStatus"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, statusDoc["nvdAvailable"])
	assert.Equal(t, false, statusDoc["epssAvailable"])
}
