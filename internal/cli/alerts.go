package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"metric-alerts/internal/app"
)

var (
	alertsLimit    int
	alertsRuleID   int64
	alertsSeverity string
	alertsStatus   string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent alert events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:    alertsLimit,
			RuleID:   alertsRuleID,
			Severity: alertsSeverity,
			Status:   alertsStatus,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <event-id>",
	Short: "Acknowledge an alert event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event, err := getApp().AcknowledgeAlert(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s (%s) at %s\n",
			event.ID, event.RuleName, event.AcknowledgedAt.UTC().Format(time.RFC3339))
		return nil
	},
}

func init() {
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 20, "Number of alert events to display")
	alertsCmd.Flags().Int64Var(&alertsRuleID, "rule", 0, "Filter by rule id")
	alertsCmd.Flags().StringVar(&alertsSeverity, "severity", "", "Filter by severity (info, warning, critical)")
	alertsCmd.Flags().StringVar(&alertsStatus, "status", "", "Filter by status (pending, sent, failed, acknowledged)")

	alertsCmd.AddCommand(ackCmd)
}
