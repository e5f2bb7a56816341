package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metric-alerts/internal/health"
	"metric-alerts/internal/rule"
	"metric-alerts/internal/storage"
)

// ErrZeroBaseline marks a volatility window whose earliest sample is zero,
// which would divide by zero. The rule is skipped for the pass.
var ErrZeroBaseline = errors.New("evaluator: earliest sample in window is zero")

// Outcome is the result of evaluating a rule that did not error.
type Outcome struct {
	Triggered bool
	Message   string
}

// Evaluator decides whether a rule's condition currently holds. It is
// read-only with respect to rules and metric data.
type Evaluator struct {
	metrics storage.MetricStore
	health  health.Collector
	logger  zerolog.Logger
}

// New constructs an Evaluator.
func New(metrics storage.MetricStore, collector health.Collector, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		metrics: metrics,
		health:  collector,
		logger:  logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate dispatches on the rule kind. Any rule it cannot interpret yields
// an error, never a panic; the caller skips the rule for this pass.
func (e *Evaluator) Evaluate(ctx context.Context, r rule.Rule, now time.Time) (Outcome, error) {
	if err := r.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("rule not evaluable: %w", err)
	}

	switch r.Kind {
	case rule.KindPriceThreshold:
		return e.evalPriceThreshold(ctx, r)
	case rule.KindVolatility:
		return e.evalVolatility(ctx, r, now)
	case rule.KindDataMissing:
		return e.evalDataMissing(ctx, r, now)
	case rule.KindSystemHealth:
		return e.evalSystemHealth(ctx, r)
	default:
		return Outcome{}, fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

func (e *Evaluator) evalPriceThreshold(ctx context.Context, r rule.Rule) (Outcome, error) {
	latest, err := e.metrics.LatestSample(ctx, r.Symbol)
	if err != nil {
		return Outcome{}, fmt.Errorf("latest sample for %s: %w", r.Symbol, err)
	}
	if latest == nil {
		// Insufficient data is not an alert condition; data_missing rules
		// cover absent feeds.
		e.logger.Debug().Str("symbol", r.Symbol).Msg("no samples for symbol, rule stays quiet")
		return Outcome{}, nil
	}

	triggered, err := rule.Compare(latest.Value, r.Threshold, r.Operator)
	if err != nil {
		return Outcome{}, err
	}
	if !triggered {
		return Outcome{}, nil
	}

	return Outcome{
		Triggered: true,
		Message: fmt.Sprintf("%s price %s is %s threshold %s",
			r.Symbol, latest.Value.String(), operatorPhrase(r.Operator), r.Threshold.String()),
	}, nil
}

func (e *Evaluator) evalVolatility(ctx context.Context, r rule.Rule, now time.Time) (Outcome, error) {
	samples, err := e.metrics.SamplesInWindow(ctx, r.Symbol, now.Add(-r.Window), now)
	if err != nil {
		return Outcome{}, fmt.Errorf("samples in window for %s: %w", r.Symbol, err)
	}
	if len(samples) < 2 {
		e.logger.Debug().Str("symbol", r.Symbol).Int("samples", len(samples)).Msg("not enough samples in window, rule stays quiet")
		return Outcome{}, nil
	}

	earliest := samples[0]
	latest := samples[len(samples)-1]
	if earliest.Value.IsZero() {
		return Outcome{}, ErrZeroBaseline
	}

	changePct := latest.Value.Sub(earliest.Value).
		Div(earliest.Value).
		Mul(decimal.NewFromInt(100)).
		Abs()
	if changePct.LessThan(r.Threshold) {
		return Outcome{}, nil
	}

	return Outcome{
		Triggered: true,
		Message: fmt.Sprintf("%s moved %s%% over %s (threshold %s%%)",
			r.Symbol, changePct.StringFixed(2), r.Window, r.Threshold.String()),
	}, nil
}

func (e *Evaluator) evalDataMissing(ctx context.Context, r rule.Rule, now time.Time) (Outcome, error) {
	last, err := e.metrics.LastSampleTime(ctx, r.Source)
	if err != nil {
		return Outcome{}, fmt.Errorf("last sample time for %s: %w", r.Source, err)
	}
	if last == nil {
		return Outcome{
			Triggered: true,
			Message:   fmt.Sprintf("no data has ever been received from %s", r.Source),
		}, nil
	}

	elapsed := now.Sub(*last)
	if elapsed < r.Window {
		return Outcome{}, nil
	}

	return Outcome{
		Triggered: true,
		Message: fmt.Sprintf("no data from %s for %s (limit %s)",
			r.Source, elapsed.Truncate(time.Second), r.Window),
	}, nil
}

func (e *Evaluator) evalSystemHealth(ctx context.Context, r rule.Rule) (Outcome, error) {
	if e.health == nil {
		return Outcome{}, errors.New("health collector not configured")
	}

	snap, err := e.health.Sample(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("health sample: %w", err)
	}

	if r.HealthMetric == rule.HealthDatabase {
		if snap.DBReachable {
			return Outcome{}, nil
		}
		return Outcome{Triggered: true, Message: "database is unreachable"}, nil
	}

	var gauge float64
	switch r.HealthMetric {
	case rule.HealthDisk:
		gauge = snap.DiskPct
	case rule.HealthMemory:
		gauge = snap.MemPct
	case rule.HealthCPU:
		gauge = snap.CPUPct
	default:
		return Outcome{}, fmt.Errorf("unknown health metric %q", r.HealthMetric)
	}

	value := decimal.NewFromFloat(gauge)
	if value.LessThan(r.Threshold) {
		return Outcome{}, nil
	}

	return Outcome{
		Triggered: true,
		Message: fmt.Sprintf("%s usage at %s%% (threshold %s%%)",
			r.HealthMetric, value.StringFixed(1), r.Threshold.String()),
	}, nil
}

func operatorPhrase(op rule.Operator) string {
	switch op {
	case rule.OpGreaterThan:
		return "above"
	case rule.OpLessThan:
		return "below"
	case rule.OpEqualTo:
		return "at"
	default:
		return string(op)
	}
}
