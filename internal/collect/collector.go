// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package collect orchestrates one full pipeline run: fetch the three
// feeds concurrently, normalize, score, aggregate, and persist the two
// output documents. A run always publishes a well-formed snapshot, even
// when every feed failed; the only fatal condition is being unable to
// write the documents themselves.
package collect

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bonial-oss/threat-collector/internal/feed"
	"github.com/bonial-oss/threat-collector/internal/ledger"
	"github.com/bonial-oss/threat-collector/internal/score"
	"github.com/bonial-oss/threat-collector/internal/snapshot"
	"github.com/bonial-oss/threat-collector/internal/types"
)

// NVDSource fetches raw NVD CVE entries.
type NVDSource interface {
	Fetch(ctx context.Context, skipUpdate bool) ([]types.NVDVulnerability, error)
}

// KEVSource fetches raw KEV catalog entries.
type KEVSource interface {
	Fetch(ctx context.Context, skipUpdate bool) ([]types.KEVEntry, error)
}

// EPSSSource fetches raw EPSS score records.
type EPSSSource interface {
	Fetch(ctx context.Context, skipUpdate bool) ([]types.EPSSScore, error)
}

// Options configures a pipeline run.
type Options struct {
	LatestPath    string
	HistoryPath   string
	FetchTimeout  time.Duration // per-feed bound; a slow upstream fails alone
	SkipUpdate    bool
	TopN          int
	KEVLookback   time.Duration
	KEVSaturation int
	Now           func() time.Time // test hook; defaults to time.Now
}

// Collector runs the aggregation-and-scoring pipeline. A nil source means
// the feed is disabled: it is reported unavailable without an error.
type Collector struct {
	nvd  NVDSource
	kev  KEVSource
	epss EPSSSource
	opts Options
	log  *logrus.Entry
}

// New creates a collector over the given sources.
func New(nvd NVDSource, kev KEVSource, epss EPSSSource, opts Options) *Collector {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.TopN <= 0 {
		opts.TopN = snapshot.DefaultTopN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		nvd:  nvd,
		kev:  kev,
		epss: epss,
		opts: opts,
		log:  logrus.WithField("component", "collector"),
	}
}

// Run executes one pipeline pass. The returned error is non-nil only when
// an output document could not be persisted.
func (c *Collector) Run(ctx context.Context) error {
	now := c.opts.Now().UTC()
	c.log.WithField("timestamp", now.Format(time.RFC3339)).Info("starting collection run")

	nvdRes, kevRes, epssRes := c.fetchAll(ctx)

	cveScore := score.CVESeverity(nvdRes)
	kevScore := score.KEVUrgency(kevRes, now, c.opts.KEVLookback, c.opts.KEVSaturation)
	epssScore := score.EPSSProbability(epssRes)

	// Disabled feeds score as unavailable but contribute no error string,
	// since nothing actually failed.
	if c.nvd == nil {
		cveScore = types.CategoryScore{Category: types.CategoryCVE}
	}
	if c.kev == nil {
		kevScore = types.CategoryScore{Category: types.CategoryKEV}
	}
	if c.epss == nil {
		epssScore = types.CategoryScore{Category: types.CategoryEPSS}
	}

	meta := types.ScoreMetadata{
		CVECount:  len(nvdRes.Records),
		KEVCount:  len(kevRes.Records),
		EPSSCount: len(epssRes.Records),
	}
	threat := score.Aggregate(cveScore, kevScore, epssScore, meta)
	status := score.FoldStatus(cveScore, kevScore, epssScore)

	if !status.NVDAvailable && !status.KEVAvailable && !status.EPSSAvailable {
		c.log.Error("all feeds unavailable, publishing degraded snapshot")
	}

	snap := snapshot.Build(now, threat, status, nvdRes.Records, kevRes.Records, c.opts.TopN)
	if err := snapshot.Write(c.opts.LatestPath, snap); err != nil {
		return err
	}

	led := ledger.Load(c.opts.HistoryPath)
	led.Append(types.HistoryEntry{
		Timestamp:      snap.Timestamp,
		CompositeScore: threat.CompositeScore,
		CategoryScores: threat.CategoryScores,
	})
	led.Prune(now)
	if err := led.Persist(); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"composite":      threat.CompositeScore,
		"cve_count":      meta.CVECount,
		"kev_count":      meta.KEVCount,
		"epss_count":     meta.EPSSCount,
		"history_length": led.History().EntryCount,
		"errors":         len(status.Errors),
	}).Info("collection run complete")
	return nil
}

// fetchAll fetches the three feeds concurrently. Each fetch is bounded by
// its own timeout; the WaitGroup is the synchronization barrier required
// before aggregation.
func (c *Collector) fetchAll(ctx context.Context) (nvdRes, kevRes, epssRes types.FeedResult) {
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		if c.nvd == nil {
			nvdRes = types.FeedResult{Category: types.CategoryCVE}
			return
		}
		vulns, err := c.fetchNVD(ctx)
		nvdRes = feed.FromNVD(vulns, err)
		c.logFeed("nvd", len(nvdRes.Records), err)
	}()
	go func() {
		defer wg.Done()
		if c.kev == nil {
			kevRes = types.FeedResult{Category: types.CategoryKEV}
			return
		}
		entries, err := c.fetchKEV(ctx)
		kevRes = feed.FromKEV(entries, err)
		c.logFeed("kev", len(kevRes.Records), err)
	}()
	go func() {
		defer wg.Done()
		if c.epss == nil {
			epssRes = types.FeedResult{Category: types.CategoryEPSS}
			return
		}
		scores, err := c.fetchEPSS(ctx)
		epssRes = feed.FromEPSS(scores, err)
		c.logFeed("epss", len(epssRes.Records), err)
	}()
	wg.Wait()

	return nvdRes, kevRes, epssRes
}

func (c *Collector) fetchNVD(ctx context.Context) ([]types.NVDVulnerability, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return c.nvd.Fetch(ctx, c.opts.SkipUpdate)
}

func (c *Collector) fetchKEV(ctx context.Context) ([]types.KEVEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return c.kev.Fetch(ctx, c.opts.SkipUpdate)
}

func (c *Collector) fetchEPSS(ctx context.Context) ([]types.EPSSScore, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return c.epss.Fetch(ctx, c.opts.SkipUpdate)
}

func (c *Collector) logFeed(name string, records int, err error) {
	entry := c.log.WithField("feed", name)
	if err != nil {
		entry.WithError(err).Warn("feed fetch failed")
		return
	}
	entry.WithField("records", records).Info("feed fetched")
}
