package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one evaluation pass and wait for its notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := getApp().CheckNow(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "checked rules: %d\n", report.CheckedRules)
		fmt.Fprintf(out, "triggered alerts: %d\n", report.TriggeredAlerts)
		fmt.Fprintf(out, "notifications sent: %d\n", report.SentNotifications)
		fmt.Fprintf(out, "notifications failed: %d\n", report.FailedNotifications)
		for _, msg := range report.Errors {
			fmt.Fprintf(out, "error: %s\n", msg)
		}
		return nil
	},
}
