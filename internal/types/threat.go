// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// Category identifies one of the three upstream threat feeds.
type Category string

const (
	CategoryCVE  Category = "cve"
	CategoryKEV  Category = "kev"
	CategoryEPSS Category = "epss"
)

// Weights applied by the composite aggregator. They always sum to 1.0 and
// are never re-normalized when a category is unavailable; a missing feed
// shows up as a score depression instead of being silently hidden.
const (
	WeightCVESeverity     = 0.30
	WeightKEVUrgency      = 0.50
	WeightEPSSProbability = 0.20
)

// FallbackScore substitutes for an unavailable category in the composite.
const FallbackScore = 0.0

// NormalizedRecord is the common shape each feed's records are reduced to.
// Optional numeric fields are pointers: nil means the source did not carry
// the value, which must never be conflated with zero.
type NormalizedRecord struct {
	ID                 string
	Severity           *float64   // CVSS base score, 0-10
	ExploitProbability *float64   // EPSS probability, 0-1
	PublishedAt        *time.Time // publication or KEV dateAdded time
	Vendor             string     // KEV only
	Product            string     // KEV only
	Source             Category
}

// FeedResult is one feed's outcome for a single run: its normalized
// records, or the error that prevented fetching them. It is owned by the
// run that produced it and discarded after scoring.
type FeedResult struct {
	Category Category
	Records  []NormalizedRecord
	FetchErr error
}

// Failed reports whether the feed as a whole could not be fetched.
func (r FeedResult) Failed() bool { return r.FetchErr != nil }

// CategoryScore is the result of reducing one feed's records to a single
// 0-100 subscore. Score is always a usable number, even on total failure,
// so downstream arithmetic stays total.
type CategoryScore struct {
	Category    Category
	Score       float64
	SampleCount int
	Available   bool
	Err         string // human-readable failure reason, empty when none
}

// ThreatScore is the composite result published in the snapshot document.
type ThreatScore struct {
	CompositeScore float64        `json:"compositeScore"`
	CategoryScores CategoryScores `json:"categoryScores"`
	Metadata       ScoreMetadata  `json:"metadata"`
}

// CategoryScores holds the three published subscores, each 0-100.
type CategoryScores struct {
	CVESeverity     float64 `json:"cveSeverity"`
	KEVUrgency      float64 `json:"kevUrgency"`
	EPSSProbability float64 `json:"epssProbability"`
}

// ScoreMetadata carries the per-category record counts.
type ScoreMetadata struct {
	CVECount  int `json:"cveCount"`
	KEVCount  int `json:"kevCount"`
	EPSSCount int `json:"epssCount"`
}

// DataStatus records which feeds produced data for a run.
type DataStatus struct {
	NVDAvailable  bool     `json:"nvdAvailable"`
	KEVAvailable  bool     `json:"kevAvailable"`
	EPSSAvailable bool     `json:"epssAvailable"`
	Errors        []string `json:"errors"`
}

// TopVulnerability is one entry in the snapshot's severity ranking.
type TopVulnerability struct {
	ID        string  `json:"id"`
	BaseScore float64 `json:"baseScore"`
	Published string  `json:"published"`
}

// RecentKEV is one entry in the snapshot's recency-ranked KEV list.
type RecentKEV struct {
	CVEID         string `json:"cveID"`
	VendorProject string `json:"vendorProject"`
	Product       string `json:"product"`
	DateAdded     string `json:"dateAdded"`
}

// Snapshot is the current-state document. It is fully replaced each run,
// never merged with its predecessor.
type Snapshot struct {
	Timestamp          string             `json:"timestamp"`
	ThreatScore        ThreatScore        `json:"threatScore"`
	TopVulnerabilities []TopVulnerability `json:"topVulnerabilities"`
	RecentKEVs         []RecentKEV        `json:"recentKEVs"`
	DataStatus         DataStatus         `json:"dataStatus"`
}

// HistoryEntry is one composite score observation in the rolling ledger.
type HistoryEntry struct {
	Timestamp      string         `json:"timestamp"`
	CompositeScore float64        `json:"compositeScore"`
	CategoryScores CategoryScores `json:"categoryScores"`
}

// History is the rolling 24-hour ledger document, the only piece of state
// with cross-run lifetime. EntryCount always equals len(Entries).
type History struct {
	LastUpdated string         `json:"lastUpdated"`
	Entries     []HistoryEntry `json:"entries"`
	EntryCount  int            `json:"entryCount"`
}
