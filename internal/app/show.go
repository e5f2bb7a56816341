package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"metric-alerts/internal/rule"
	"metric-alerts/internal/storage"
)

// Show prints recent alert events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	filter := storage.EventFilter{
		RuleID:   opts.RuleID,
		Severity: rule.Severity(opts.Severity),
		Status:   storage.EventStatus(opts.Status),
		Limit:    opts.Limit,
	}

	events, err := a.ListAlerts(ctx, filter)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no alert events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tEvent ID\tRule\tSeverity\tStatus\tMessage")

	for _, event := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			event.TriggeredAt.UTC().Format(time.RFC3339),
			event.ID,
			event.RuleName,
			event.Severity,
			event.Status,
			sanitizeInline(event.Message),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
