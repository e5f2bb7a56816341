package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"metric-alerts/internal/alerting"
	"metric-alerts/internal/cooldown"
	"metric-alerts/internal/dispatch"
	"metric-alerts/internal/evaluator"
	"metric-alerts/internal/rule"
	"metric-alerts/internal/scheduler"
	"metric-alerts/internal/service"
	"metric-alerts/internal/storage"
)

// Simulate runs one evaluation pass over synthetic samples, entirely
// in memory, and prints anything the rule would have delivered.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if len(opts.Values) == 0 {
		return errors.New("at least one --value is required")
	}

	threshold, err := decimal.NewFromString(opts.Threshold)
	if err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}

	simRule := rule.Rule{
		ID:        1,
		Name:      fmt.Sprintf("simulated-%s", opts.Symbol),
		Kind:      rule.Kind(opts.Kind),
		Symbol:    opts.Symbol,
		Source:    "simulated",
		Threshold: threshold,
		Operator:  rule.Operator(opts.Operator),
		Window:    opts.Window,
		Severity:  rule.SeverityInfo,
		Channels:  []string{"console"},
		MaxPerDay: len(opts.Values),
		Enabled:   true,
	}
	if err := simRule.Validate(); err != nil {
		return err
	}

	store := storage.NewMemory()
	store.PutRule(simRule)

	now := time.Now().UTC()
	spacing := time.Minute
	if opts.Window > 0 && len(opts.Values) > 1 {
		spacing = opts.Window / time.Duration(len(opts.Values))
	}
	for i, raw := range opts.Values {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("parse value %q: %w", raw, err)
		}
		store.AddSample(storage.MetricSample{
			Symbol:    opts.Symbol,
			Source:    "simulated",
			Value:     value,
			Timestamp: now.Add(-time.Duration(len(opts.Values)-1-i) * spacing),
		})
	}

	dispatcher := dispatch.New(alerting.NewRegistry(&consoleAdapter{}), store, dispatch.Config{
		Workers:     1,
		MaxAttempts: 1,
		SendTimeout: time.Second,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
	}, a.Logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	svc := service.New(service.Options{
		Scheduler:  scheduler.New(scheduler.Options{Interval: time.Hour}, a.Logger),
		Rules:      store,
		Events:     store,
		Evaluator:  evaluator.New(store, nil, a.Logger),
		Tracker:    cooldown.New(store, a.Logger),
		Dispatcher: dispatcher,
	}, a.Logger)

	report, err := svc.CheckNow(ctx)
	if err != nil {
		return err
	}

	if report.TriggeredAlerts == 0 {
		fmt.Fprintln(os.Stdout, "rule did not trigger")
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(os.Stdout, "error: %s\n", msg)
	}
	return nil
}

// consoleAdapter prints rendered alerts to stdout instead of delivering them.
type consoleAdapter struct{}

func (c *consoleAdapter) Name() string { return "console" }

func (c *consoleAdapter) Send(ctx context.Context, recipient string, msg alerting.Message) error {
	fmt.Fprintf(os.Stdout, "[%s] %s\n%s\n", msg.Severity, msg.RuleName, msg.Body)
	return nil
}
