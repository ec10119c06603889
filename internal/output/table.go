// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	aqtable "github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bonial-oss/threat-collector/internal/types"
)

// StatusConfig controls how the snapshot status view is rendered.
type StatusConfig struct {
	IsTerminal bool // true when output goes to a terminal (enables ANSI styling)
}

// IsOutputToTerminal returns true if the writer is stdout connected to a
// character device (TTY).
func IsOutputToTerminal(output io.Writer) bool {
	return output == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
}

// WriteStatus renders the current-state snapshot as terminal tables: the
// composite score with its category breakdown, the two top-N lists, and
// the per-feed availability.
func WriteStatus(w io.Writer, snap *types.Snapshot, cfg StatusConfig) error {
	writeHeader(w, fmt.Sprintf("Threat Score — %s", snap.Timestamp), cfg.IsTerminal)
	writeScoreTable(w, snap, cfg)

	if len(snap.TopVulnerabilities) > 0 {
		writeHeader(w, "Top Vulnerabilities", cfg.IsTerminal)
		writeTopVulnTable(w, snap.TopVulnerabilities, cfg)
	}

	if len(snap.RecentKEVs) > 0 {
		writeHeader(w, "Recently Exploited", cfg.IsTerminal)
		writeRecentKEVTable(w, snap.RecentKEVs, cfg)
	}

	writeHeader(w, "Feed Status", cfg.IsTerminal)
	writeStatusTable(w, snap.DataStatus, cfg)

	for _, e := range snap.DataStatus.Errors {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
	return nil
}

// writeHeader writes a section title, underlined on dumb outputs and
// bold-underlined on terminals.
func writeHeader(w io.Writer, title string, isTerminal bool) {
	fmt.Fprintln(w)
	if isTerminal {
		_ = tml.Fprintf(w, "<underline><bold>%s</bold></underline>\n", title)
	} else {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(title)))
	}
}

// newTableWriter creates a table writer with borders and row lines,
// matching the layout the upstream Trivy tables use. Header and line
// styles use ANSI formatting on terminals.
func newTableWriter(w io.Writer, isTerminal bool) *aqtable.Table {
	tw := aqtable.New(w)
	if isTerminal {
		tw.SetHeaderStyle(aqtable.StyleBold)
		tw.SetLineStyle(aqtable.StyleDim)
	}
	tw.SetBorders(true)
	tw.SetRowLines(true)
	return tw
}

func writeScoreTable(w io.Writer, snap *types.Snapshot, cfg StatusConfig) {
	ts := snap.ThreatScore
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders("Category", "Score", "Level", "Records")
	tw.AddRow("Composite", formatScore(ts.CompositeScore, cfg.IsTerminal), scoreLevel(ts.CompositeScore), "")
	tw.AddRow("CVE Severity", formatScore(ts.CategoryScores.CVESeverity, cfg.IsTerminal),
		scoreLevel(ts.CategoryScores.CVESeverity), fmt.Sprintf("%d", ts.Metadata.CVECount))
	tw.AddRow("KEV Urgency", formatScore(ts.CategoryScores.KEVUrgency, cfg.IsTerminal),
		scoreLevel(ts.CategoryScores.KEVUrgency), fmt.Sprintf("%d", ts.Metadata.KEVCount))
	tw.AddRow("EPSS Probability", formatScore(ts.CategoryScores.EPSSProbability, cfg.IsTerminal),
		scoreLevel(ts.CategoryScores.EPSSProbability), fmt.Sprintf("%d", ts.Metadata.EPSSCount))
	tw.Render()
}

func writeTopVulnTable(w io.Writer, vulns []types.TopVulnerability, cfg StatusConfig) {
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders("Vulnerability", "CVSS", "Published")
	for _, v := range vulns {
		tw.AddRow(v.ID, fmt.Sprintf("%.1f", v.BaseScore), v.Published)
	}
	tw.Render()
}

func writeRecentKEVTable(w io.Writer, kevs []types.RecentKEV, cfg StatusConfig) {
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders("Vulnerability", "Vendor", "Product", "Added")
	for _, k := range kevs {
		tw.AddRow(k.CVEID, k.VendorProject, k.Product, k.DateAdded)
	}
	tw.Render()
}

func writeStatusTable(w io.Writer, status types.DataStatus, cfg StatusConfig) {
	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders("Feed", "Available")
	tw.AddRow("NVD", formatAvailable(status.NVDAvailable, cfg.IsTerminal))
	tw.AddRow("KEV", formatAvailable(status.KEVAvailable, cfg.IsTerminal))
	tw.AddRow("EPSS", formatAvailable(status.EPSSAvailable, cfg.IsTerminal))
	tw.Render()
}

// levelColors maps score levels to color functions, reusing the palette
// Trivy applies to severities.
var levelColors = map[string]func(a ...any) string{
	"LOW":      color.New(color.FgBlue).SprintFunc(),
	"MODERATE": color.New(color.FgYellow).SprintFunc(),
	"HIGH":     color.New(color.FgHiRed).SprintFunc(),
	"CRITICAL": color.New(color.FgRed).SprintFunc(),
}

// scoreLevel buckets a 0-100 score into a coarse label.
func scoreLevel(score float64) string {
	switch {
	case score >= 75:
		return "CRITICAL"
	case score >= 50:
		return "HIGH"
	case score >= 25:
		return "MODERATE"
	default:
		return "LOW"
	}
}

func formatScore(score float64, isTerminal bool) string {
	s := fmt.Sprintf("%.2f", score)
	if !isTerminal {
		return s
	}
	if fn, ok := levelColors[scoreLevel(score)]; ok {
		return fn(s)
	}
	return s
}

func formatAvailable(available, isTerminal bool) string {
	if available {
		if isTerminal {
			return color.New(color.FgGreen).Sprint("YES")
		}
		return "YES"
	}
	if isTerminal {
		return color.New(color.FgRed).Sprint("NO")
	}
	return "NO"
}
