// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package feed reduces each upstream's raw records to the common
// NormalizedRecord shape. Parsing problems never escape this package: a
// malformed record is skipped, a whole-feed failure is carried as the
// FeedResult's FetchErr.
package feed

import (
	"strconv"
	"time"

	"github.com/bonial-oss/threat-collector/internal/types"
)

// NVD publishes timestamps without a zone suffix; KEV uses bare dates.
var nvdPublishedLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

const kevDateLayout = "2006-01-02"

// FromNVD normalizes raw NVD entries. Records without a CVE ID are
// skipped; a record without any CVSS metric is kept with a nil Severity,
// since "no score assigned yet" is not the same as a score of zero.
func FromNVD(vulns []types.NVDVulnerability, fetchErr error) types.FeedResult {
	result := types.FeedResult{Category: types.CategoryCVE, FetchErr: fetchErr}
	if fetchErr != nil {
		return result
	}

	for _, v := range vulns {
		if v.CVE.ID == "" {
			continue
		}
		rec := types.NormalizedRecord{
			ID:          v.CVE.ID,
			Severity:    baseScore(v.CVE.Metrics),
			PublishedAt: parseTime(v.CVE.Published, nvdPublishedLayouts...),
			Source:      types.CategoryCVE,
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

// FromKEV normalizes raw KEV catalog entries. Records without a CVE ID
// are skipped; an unparseable dateAdded leaves PublishedAt nil, which
// excludes the entry from recency ranking and lookback counting.
func FromKEV(entries []types.KEVEntry, fetchErr error) types.FeedResult {
	result := types.FeedResult{Category: types.CategoryKEV, FetchErr: fetchErr}
	if fetchErr != nil {
		return result
	}

	for _, e := range entries {
		if e.CVEID == "" {
			continue
		}
		rec := types.NormalizedRecord{
			ID:          e.CVEID,
			PublishedAt: parseTime(e.DateAdded, kevDateLayout),
			Vendor:      e.VendorProject,
			Product:     e.Product,
			Source:      types.CategoryKEV,
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

// FromEPSS normalizes raw EPSS score records. The API serves probabilities
// as decimal strings; records whose probability cannot be parsed carry no
// usable signal and are skipped.
func FromEPSS(scores []types.EPSSScore, fetchErr error) types.FeedResult {
	result := types.FeedResult{Category: types.CategoryEPSS, FetchErr: fetchErr}
	if fetchErr != nil {
		return result
	}

	for _, s := range scores {
		if s.CVE == "" {
			continue
		}
		prob, err := strconv.ParseFloat(s.EPSS, 64)
		if err != nil || prob < 0 || prob > 1 {
			continue
		}
		rec := types.NormalizedRecord{
			ID:                 s.CVE,
			ExploitProbability: &prob,
			PublishedAt:        parseTime(s.Date, kevDateLayout),
			Source:             types.CategoryEPSS,
		}
		result.Records = append(result.Records, rec)
	}
	return result
}

// baseScore picks the CVSS base score, preferring v3.1 over v3.0 over v2,
// matching NVD's own display precedence. Returns nil when no metric exists.
func baseScore(m types.NVDMetrics) *float64 {
	for _, metrics := range [][]types.NVDCVSSMetric{m.CVSSMetricV31, m.CVSSMetricV30, m.CVSSMetricV2} {
		if len(metrics) > 0 {
			score := metrics[0].CVSSData.BaseScore
			return &score
		}
	}
	return nil
}

// parseTime tries each layout in order, returning nil if none match.
func parseTime(value string, layouts ...string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
