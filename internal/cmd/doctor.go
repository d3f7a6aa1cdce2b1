package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/S-feLayer/SafeLayer-Chat/internal/doctor"
)

var (
	doctorJSON         bool
	doctorSkipDetector bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the SafeLayer installation",
	Long: `Runs environment checks: config, data directory, crypto keys, audit and
vault databases, recognizer patterns, and detector backend reachability.
Exits non-zero if any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := doctor.Run(cmd.Context(), doctor.Options{SkipDetector: doctorSkipDetector})

		if doctorJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(cmd, report)
		}

		if report.Status == "fail" {
			return fmt.Errorf("%d check(s) failed", report.Summary.Fail)
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipDetector, "skip-detector", false, "skip detector backend reachability checks")
	rootCmd.AddCommand(doctorCmd)
}

func printReport(cmd *cobra.Command, report *doctor.Report) {
	out := cmd.OutOrStdout()
	marks := map[string]string{"pass": "✓", "warn": "!", "fail": "✗"}
	for _, c := range report.Checks {
		fmt.Fprintf(out, "%s %-20s %s\n", marks[c.Status], c.Name, c.Message)
		if c.Fix != "" && c.Status != "pass" {
			fmt.Fprintf(out, "    fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d warnings, %d failed\n",
		report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
}
