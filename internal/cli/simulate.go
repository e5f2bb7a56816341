package cli

import (
	"time"

	"github.com/spf13/cobra"

	"metric-alerts/internal/app"
)

var (
	simulateSymbol    string
	simulateValues    []string
	simulateThreshold string
	simulateOperator  string
	simulateKind      string
	simulateWindow    time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a synthetic rule against inline samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Symbol:    simulateSymbol,
			Values:    simulateValues,
			Threshold: simulateThreshold,
			Operator:  simulateOperator,
			Kind:      simulateKind,
			Window:    simulateWindow,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Symbol for the synthetic samples")
	simulateCmd.Flags().StringSliceVar(&simulateValues, "value", nil, "Sample values, oldest first (repeatable)")
	simulateCmd.Flags().StringVar(&simulateThreshold, "threshold", "0", "Rule threshold")
	simulateCmd.Flags().StringVar(&simulateOperator, "operator", "greater_than", "Comparison operator (greater_than, less_than, equal_to)")
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "price_threshold", "Rule kind (price_threshold, volatility)")
	simulateCmd.Flags().DurationVar(&simulateWindow, "window", 10*time.Minute, "Lookback window for volatility rules")
}
