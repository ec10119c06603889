// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package ledger maintains the rolling 24-hour history document, the one
// piece of state that survives across runs. Its lifecycle per run is
// Load -> Append -> Prune -> Persist; the sequence is a read-modify-write
// and must not be interleaved with another writer.
package ledger

import (
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bonial-oss/threat-collector/internal/output"
	"github.com/bonial-oss/threat-collector/internal/types"
)

// RetentionWindow is the horizon beyond which entries are dropped.
const RetentionWindow = 24 * time.Hour

// Ledger wraps the persisted history document.
type Ledger struct {
	path    string
	history types.History
}

// Load reads the prior ledger from path. A missing or corrupt document is
// a recoverable condition: the run proceeds from an empty ledger and the
// next Persist overwrites whatever was there.
func Load(path string) *Ledger {
	l := &Ledger{path: path, history: types.History{Entries: []types.HistoryEntry{}}}

	var hist types.History
	if err := output.ReadJSONFile(path, &hist); err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("could not load existing history (%v), starting fresh", err)
		}
		return l
	}
	l.history.LastUpdated = hist.LastUpdated
	if hist.Entries != nil {
		l.history.Entries = hist.Entries
	}
	return l
}

// Append adds one entry for the current run and stamps LastUpdated with
// its timestamp.
func (l *Ledger) Append(entry types.HistoryEntry) {
	l.history.Entries = append(l.history.Entries, entry)
	l.history.LastUpdated = entry.Timestamp
}

// Prune drops every entry older than now minus the retention window, plus
// any entry whose timestamp cannot be parsed. Remaining entries are kept
// in non-decreasing timestamp order. Pruning is idempotent.
func (l *Ledger) Prune(now time.Time) {
	cutoff := now.Add(-RetentionWindow)

	type stamped struct {
		entry types.HistoryEntry
		at    time.Time
	}
	kept := make([]stamped, 0, len(l.history.Entries))
	for _, e := range l.history.Entries {
		at, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			logrus.Warnf("skipping history entry with invalid timestamp %q", e.Timestamp)
			continue
		}
		if at.Before(cutoff) {
			continue
		}
		kept = append(kept, stamped{entry: e, at: at})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })

	entries := make([]types.HistoryEntry, 0, len(kept))
	for _, s := range kept {
		entries = append(entries, s.entry)
	}
	l.history.Entries = entries
}

// Persist overwrites the ledger document. EntryCount is recomputed here so
// it always equals len(Entries).
func (l *Ledger) Persist() error {
	l.history.EntryCount = len(l.history.Entries)
	return output.WriteJSONFile(l.path, l.history)
}

// History returns the current in-memory document.
func (l *Ledger) History() types.History {
	l.history.EntryCount = len(l.history.Entries)
	return l.history
}
