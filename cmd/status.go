// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/threat-collector/internal/output"
	"github.com/bonial-oss/threat-collector/internal/types"
)

// statusOptions holds flag values for the status subcommand.
type statusOptions struct {
	OutputDir string
	Format    string
}

// newStatusCommand creates the status subcommand, which renders the most
// recent snapshot without running the pipeline.
func newStatusCommand(_ *Options) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recently collected threat score",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.OutputDir, "output-dir", "o", ".", "Directory containing latest.json")
	flags.StringVar(&opts.Format, "format", "table", "Output format: table, json")

	return cmd
}

func runStatus(opts *statusOptions) error {
	path := filepath.Join(opts.OutputDir, "latest.json")

	var snap types.Snapshot
	if err := output.ReadJSONFile(path, &snap); err != nil {
		if os.IsNotExist(err) {
			return &ExitError{Code: 2, Message: fmt.Sprintf("no snapshot found at %s, run a collection first", path)}
		}
		return &ExitError{Code: 2, Message: fmt.Sprintf("reading snapshot: %v", err)}
	}

	switch opts.Format {
	case "json":
		return output.WriteJSON(os.Stdout, snap)
	case "table":
		cfg := output.StatusConfig{IsTerminal: output.IsOutputToTerminal(os.Stdout)}
		return output.WriteStatus(os.Stdout, &snap, cfg)
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unsupported output format: %s", opts.Format)}
	}
}
