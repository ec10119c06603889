// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package snapshot assembles the current-state document. The document is
// a pure function of one run's inputs; it is never merged with the
// previous snapshot.
package snapshot

import (
	"sort"
	"time"

	"github.com/bonial-oss/threat-collector/internal/output"
	"github.com/bonial-oss/threat-collector/internal/types"
)

// DefaultTopN caps both derived lists in the snapshot.
const DefaultTopN = 10

const kevDateLayout = "2006-01-02"

// Build assembles the snapshot for a run. cveRecords and kevRecords are
// the normalized records the scorers consumed; topN bounds both lists.
func Build(ts time.Time, threat types.ThreatScore, status types.DataStatus, cveRecords, kevRecords []types.NormalizedRecord, topN int) types.Snapshot {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return types.Snapshot{
		Timestamp:          ts.UTC().Format(time.RFC3339),
		ThreatScore:        threat,
		TopVulnerabilities: topVulnerabilities(cveRecords, topN),
		RecentKEVs:         recentKEVs(kevRecords, topN),
		DataStatus:         status,
	}
}

// Write persists the snapshot document to path atomically.
func Write(path string, snap types.Snapshot) error {
	return output.WriteJSONFile(path, snap)
}

// topVulnerabilities ranks CVE records by severity descending, ties broken
// by identifier ascending for determinism. Records without a severity
// carry no ranking signal and are excluded.
func topVulnerabilities(records []types.NormalizedRecord, topN int) []types.TopVulnerability {
	scored := make([]types.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if r.Severity != nil {
			scored = append(scored, r)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].Severity != *scored[j].Severity {
			return *scored[i].Severity > *scored[j].Severity
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}

	top := make([]types.TopVulnerability, 0, len(scored))
	for _, r := range scored {
		v := types.TopVulnerability{ID: r.ID, BaseScore: *r.Severity}
		if r.PublishedAt != nil {
			v.Published = r.PublishedAt.UTC().Format(time.RFC3339)
		}
		top = append(top, v)
	}
	return top
}

// recentKEVs ranks KEV records by dateAdded descending, ties broken by
// identifier ascending. Records with no parseable date are excluded from
// the recency ranking.
func recentKEVs(records []types.NormalizedRecord, topN int) []types.RecentKEV {
	dated := make([]types.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if r.PublishedAt != nil {
			dated = append(dated, r)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].PublishedAt.Equal(*dated[j].PublishedAt) {
			return dated[i].PublishedAt.After(*dated[j].PublishedAt)
		}
		return dated[i].ID < dated[j].ID
	})
	if len(dated) > topN {
		dated = dated[:topN]
	}

	recent := make([]types.RecentKEV, 0, len(dated))
	for _, r := range dated {
		recent = append(recent, types.RecentKEV{
			CVEID:         r.ID,
			VendorProject: r.Vendor,
			Product:       r.Product,
			DateAdded:     r.PublishedAt.UTC().Format(kevDateLayout),
		})
	}
	return recent
}
