package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/datesort/datesort/filesystem/types"

	"github.com/spf13/cobra"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(cmd *cobra.Command, report *types.Report, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, report)
	}

	out := cmd.OutOrStdout()

	summary := [][]string{
		{"Scanned", strconv.Itoa(report.Scanned)},
		{"Eligible", strconv.Itoa(report.Eligible)},
		{"Moved", strconv.Itoa(report.Moved)},
	}
	if report.DryRun {
		summary = append(summary, []string{"Planned", strconv.Itoa(report.Planned)})
	}
	summary = append(summary,
		[]string{"Skipped", strconv.Itoa(report.Skipped)},
		[]string{"Failed", strconv.Itoa(report.Failed)},
		[]string{"Duration", report.Duration.Round(time.Millisecond).String()},
	)
	fmt.Fprintln(out, renderTable(report.Root, []string{"Result", "Count"}, summary, []columnAlignment{alignLeft, alignRight}))

	if report.DryRun {
		var rows [][]string
		for _, op := range report.Operations {
			if op.Type != types.OpPlan {
				continue
			}
			rows = append(rows, []string{relTo(report.Root, op.SourcePath), relTo(report.Root, op.TargetPath)})
		}
		if len(rows) > 0 {
			fmt.Fprintln(out, renderTable("Planned moves", []string{"From", "To"}, rows, nil))
		}
	}

	if len(report.Failures) > 0 {
		rows := make([][]string, 0, len(report.Failures))
		for _, f := range report.Failures {
			rows = append(rows, []string{relTo(report.Root, f.Path), string(f.Kind), f.Error})
		}
		fmt.Fprintln(out, renderTable("Failures", []string{"Path", "Kind", "Error"}, rows, nil))
	}

	return nil
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
