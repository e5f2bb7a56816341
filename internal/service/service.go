package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metric-alerts/internal/cooldown"
	"metric-alerts/internal/dispatch"
	"metric-alerts/internal/evaluator"
	"metric-alerts/internal/metrics"
	"metric-alerts/internal/rule"
	"metric-alerts/internal/scheduler"
	"metric-alerts/internal/storage"
)

// Report summarises one evaluation pass for the on-demand check.
type Report struct {
	CheckedRules        int
	TriggeredAlerts     int
	SentNotifications   int
	FailedNotifications int
	Errors              []string
}

// Service orchestrates rule evaluation, admission, and dispatch.
type Service struct {
	scheduler   *scheduler.Scheduler
	rules       storage.RuleStore
	events      storage.EventStore
	eval        *evaluator.Evaluator
	tracker     *cooldown.Tracker
	dispatcher  *dispatch.Dispatcher
	logger      zerolog.Logger
	evalWorkers int
	locker      storage.AdvisoryLocker
	lockKey     int64
}

// Options configure Service construction.
type Options struct {
	Scheduler   *scheduler.Scheduler
	Rules       storage.RuleStore
	Events      storage.EventStore
	Evaluator   *evaluator.Evaluator
	Tracker     *cooldown.Tracker
	Dispatcher  *dispatch.Dispatcher
	EvalWorkers int
	Locker      storage.AdvisoryLocker
	LockKey     int64
}

// New constructs the alert engine service.
func New(opts Options, logger zerolog.Logger) *Service {
	workers := opts.EvalWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		scheduler:   opts.Scheduler,
		rules:       opts.Rules,
		events:      opts.Events,
		eval:        opts.Evaluator,
		tracker:     opts.Tracker,
		dispatcher:  opts.Dispatcher,
		logger:      logger.With().Str("component", "service").Logger(),
		evalWorkers: workers,
		locker:      opts.Locker,
		lockKey:     opts.LockKey,
	}
}

// Run begins the periodic evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, now time.Time) error {
		_, err := s.runPass(ctx, now, false)
		return err
	})
}

// CheckNow runs one evaluation pass synchronously and reports counts. The
// pass shares the scheduler's non-overlap guard, so a check racing a timer
// tick fails with ErrPassInProgress instead of running twice.
func (s *Service) CheckNow(ctx context.Context) (Report, error) {
	if s.scheduler == nil {
		return Report{}, fmt.Errorf("scheduler not configured")
	}

	var report Report
	err := s.scheduler.RunNow(ctx, func(ctx context.Context, now time.Time) error {
		r, passErr := s.runPass(ctx, now, true)
		report = r
		return passErr
	})
	return report, err
}

// ListAlertEvents exposes the alert log to the CLI/API layer.
func (s *Service) ListAlertEvents(ctx context.Context, filter storage.EventFilter) ([]storage.AlertEvent, error) {
	return s.events.ListAlertEvents(ctx, filter)
}

// AcknowledgeAlertEvent marks an alert event acknowledged.
func (s *Service) AcknowledgeAlertEvent(ctx context.Context, eventID string) (storage.AlertEvent, error) {
	return s.events.AcknowledgeAlertEvent(ctx, eventID, time.Now().UTC())
}

// ReportStaleTasks logs tasks left queued by a previous run so operators can
// decide whether to re-deliver.
func (s *Service) ReportStaleTasks(ctx context.Context) {
	stale, err := s.events.ListStaleTasks(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list stale tasks")
		return
	}
	if len(stale) == 0 {
		return
	}
	s.logger.Warn().Int("count", len(stale)).Msg("notification tasks left queued by a previous run")
	for _, task := range stale {
		s.logger.Warn().
			Str("task_id", task.ID).
			Str("event_id", task.AlertEventID).
			Str("channel", task.Channel).
			Msg("stale notification task")
	}
}

// runPass executes one full sweep over all enabled rules. Evaluation errors
// skip their rule only; a rule-store failure aborts the pass for the next
// tick to retry. When collect is set the pass waits for its own deliveries
// so the report carries real sent/failed counts.
func (s *Service) runPass(ctx context.Context, now time.Time, collect bool) (Report, error) {
	start := time.Now()
	defer func() {
		metrics.PassesTotal.Inc()
		metrics.PassDuration.Observe(time.Since(start).Seconds())
	}()

	if s.locker != nil && s.lockKey != 0 {
		unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
		if err != nil {
			return Report{}, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			s.logger.Debug().Msg("skip pass because advisory lock held elsewhere")
			return Report{}, nil
		}
		defer unlock()
	}

	rules, err := s.rules.GetEnabledRules(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch enabled rules: %w", err)
	}

	report := Report{CheckedRules: len(rules)}
	deliveries := make([]*dispatch.Delivery, 0)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, s.evalWorkers)
	for _, r := range rules {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(r rule.Rule) {
			defer wg.Done()
			defer func() { <-sem }()

			delivery, errs, admitted := s.evaluateRule(ctx, r, now)
			mu.Lock()
			defer mu.Unlock()
			report.Errors = append(report.Errors, errs...)
			if admitted {
				report.TriggeredAlerts++
			}
			if delivery != nil {
				deliveries = append(deliveries, delivery)
			}
		}(r)
	}
	wg.Wait()

	if collect {
		for _, delivery := range deliveries {
			if waitErr := delivery.Wait(ctx); waitErr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("wait for delivery: %v", waitErr))
				continue
			}
			report.SentNotifications += delivery.Sent()
			report.FailedNotifications += delivery.Failed()
		}
	}

	s.logger.Info().
		Int("checked_rules", report.CheckedRules).
		Int("triggered_alerts", report.TriggeredAlerts).
		Int("errors", len(report.Errors)).
		Msg("evaluation pass complete")

	return report, nil
}

// evaluateRule runs evaluation and admission for one rule and dispatches on
// admit. Returned errors are informational; they never abort the pass.
func (s *Service) evaluateRule(ctx context.Context, r rule.Rule, now time.Time) (*dispatch.Delivery, []string, bool) {
	metrics.RulesEvaluated.Inc()

	outcome, err := s.eval.Evaluate(ctx, r, now)
	if err != nil {
		metrics.EvaluationErrors.Inc()
		s.logger.Warn().Err(err).Int64("rule_id", r.ID).Str("rule", r.Name).Msg("rule skipped for this pass")
		return nil, []string{fmt.Sprintf("rule %s: %v", r.Name, err)}, false
	}
	if !outcome.Triggered {
		return nil, nil, false
	}

	decision, err := s.tracker.Admit(ctx, r, now)
	if err != nil {
		s.logger.Error().Err(err).Int64("rule_id", r.ID).Str("rule", r.Name).Msg("admission check failed")
		return nil, []string{fmt.Sprintf("rule %s: admit: %v", r.Name, err)}, false
	}
	if !decision.Admitted {
		metrics.AlertsSuppressed.WithLabelValues(decision.Reason).Inc()
		s.logger.Debug().
			Int64("rule_id", r.ID).
			Str("rule", r.Name).
			Str("reason", decision.Reason).
			Msg("triggered rule suppressed")
		return nil, nil, false
	}

	event := storage.AlertEvent{
		ID:          uuid.NewString(),
		RuleID:      r.ID,
		RuleName:    r.Name,
		Severity:    r.Severity,
		Message:     outcome.Message,
		Status:      storage.EventPending,
		TriggeredAt: now.UTC(),
	}

	metrics.AlertsAdmitted.Inc()
	s.logger.Info().
		Int64("rule_id", r.ID).
		Str("rule", r.Name).
		Str("severity", string(r.Severity)).
		Str("message", outcome.Message).
		Msg("alert admitted")

	delivery, err := s.dispatcher.Dispatch(ctx, event, r)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to dispatch alert")
		return nil, []string{fmt.Sprintf("rule %s: dispatch: %v", r.Name, err)}, true
	}
	return delivery, nil, true
}
