// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package score reduces normalized feed results to category subscores and
// combines them into the composite threat score. Every function here is
// pure and total: a scorer always returns a usable value object, even when
// its feed failed outright.
package score

import (
	"fmt"
	"math"
	"time"

	"github.com/bonial-oss/threat-collector/internal/types"
)

const (
	// DefaultKEVSaturation is the entry count at which the urgency curve
	// has climbed to roughly 63 of its 100-point ceiling. Past it, each
	// additional entry contributes less than the one before.
	DefaultKEVSaturation = 20

	// DefaultKEVLookback bounds which KEV entries count toward urgency.
	DefaultKEVLookback = 30 * 24 * time.Hour
)

// CVESeverity averages the CVSS base scores across records and rescales
// 0-10 to 0-100. Records without a severity value do not contribute; if no
// record carries one, the category is unavailable.
func CVESeverity(r types.FeedResult) types.CategoryScore {
	s := types.CategoryScore{Category: types.CategoryCVE}
	if r.Failed() {
		s.Err = fmt.Sprintf("NVD fetch failed: %v", r.FetchErr)
		return s
	}

	var sum float64
	for _, rec := range r.Records {
		if rec.Severity == nil {
			continue
		}
		sum += clamp(*rec.Severity*10, 0, 100)
		s.SampleCount++
	}
	if s.SampleCount == 0 {
		return s
	}

	s.Score = sum / float64(s.SampleCount)
	s.Available = true
	return s
}

// KEVUrgency scores the count of known-exploited entries added within the
// lookback window on a saturating curve: 100*(1-exp(-n/saturation)). A
// count of zero is a valid signal and scores 0 while staying available;
// only a failed fetch makes the category unavailable.
func KEVUrgency(r types.FeedResult, now time.Time, lookback time.Duration, saturation int) types.CategoryScore {
	s := types.CategoryScore{Category: types.CategoryKEV}
	if r.Failed() {
		s.Err = fmt.Sprintf("KEV fetch failed: %v", r.FetchErr)
		return s
	}
	if lookback <= 0 {
		lookback = DefaultKEVLookback
	}
	if saturation <= 0 {
		saturation = DefaultKEVSaturation
	}

	cutoff := now.Add(-lookback)
	for _, rec := range r.Records {
		if rec.PublishedAt == nil || rec.PublishedAt.Before(cutoff) {
			continue
		}
		s.SampleCount++
	}

	s.Score = clamp(100*(1-math.Exp(-float64(s.SampleCount)/float64(saturation))), 0, 100)
	s.Available = true
	return s
}

// EPSSProbability averages exploitation probabilities across records and
// rescales 0-1 to 0-100. Unavailable when the feed failed or no record
// carries a probability.
func EPSSProbability(r types.FeedResult) types.CategoryScore {
	s := types.CategoryScore{Category: types.CategoryEPSS}
	if r.Failed() {
		s.Err = fmt.Sprintf("EPSS fetch failed: %v", r.FetchErr)
		return s
	}

	var sum float64
	for _, rec := range r.Records {
		if rec.ExploitProbability == nil {
			continue
		}
		sum += clamp(*rec.ExploitProbability*100, 0, 100)
		s.SampleCount++
	}
	if s.SampleCount == 0 {
		return s
	}

	s.Score = sum / float64(s.SampleCount)
	s.Available = true
	return s
}

// Aggregate combines the three subscores with the fixed weights. An
// unavailable category contributes the neutral fallback constant; weights
// are never re-normalized, so a missing feed depresses the composite
// rather than disappearing from it.
func Aggregate(cve, kev, epss types.CategoryScore, meta types.ScoreMetadata) types.ThreatScore {
	c := effective(cve)
	k := effective(kev)
	e := effective(epss)

	composite := types.WeightCVESeverity*c + types.WeightKEVUrgency*k + types.WeightEPSSProbability*e

	return types.ThreatScore{
		CompositeScore: round2(clamp(composite, 0, 100)),
		CategoryScores: types.CategoryScores{
			CVESeverity:     round2(c),
			KEVUrgency:      round2(k),
			EPSSProbability: round2(e),
		},
		Metadata: meta,
	}
}

// FoldStatus combines the three scorer results into the published data
// status. Error strings keep scorer order (NVD, KEV, EPSS) so the output
// is deterministic.
func FoldStatus(cve, kev, epss types.CategoryScore) types.DataStatus {
	status := types.DataStatus{
		NVDAvailable:  cve.Available,
		KEVAvailable:  kev.Available,
		EPSSAvailable: epss.Available,
		Errors:        []string{},
	}
	for _, s := range []types.CategoryScore{cve, kev, epss} {
		if s.Err != "" {
			status.Errors = append(status.Errors, s.Err)
		}
	}
	return status
}

func effective(s types.CategoryScore) float64 {
	if !s.Available {
		return types.FallbackScore
	}
	return clamp(s.Score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
