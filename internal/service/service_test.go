package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metric-alerts/internal/alerting"
	"metric-alerts/internal/cooldown"
	"metric-alerts/internal/dispatch"
	"metric-alerts/internal/evaluator"
	"metric-alerts/internal/rule"
	"metric-alerts/internal/scheduler"
	"metric-alerts/internal/storage"
)

type countingAdapter struct {
	name  string
	fail  bool
	sends int32
}

func (a *countingAdapter) Name() string { return a.name }

func (a *countingAdapter) Send(ctx context.Context, recipient string, msg alerting.Message) error {
	atomic.AddInt32(&a.sends, 1)
	if a.fail {
		return errors.New("send rejected")
	}
	return nil
}

type fixture struct {
	store   *storage.Memory
	adapter *countingAdapter
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemory()
	adapter := &countingAdapter{name: "telegram"}
	logger := zerolog.Nop()

	dispatcher := dispatch.New(alerting.NewRegistry(adapter), store, dispatch.Config{
		Workers:     2,
		MaxAttempts: 2,
		SendTimeout: time.Second,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	}, logger)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	svc := New(Options{
		Scheduler:   scheduler.New(scheduler.Options{Interval: time.Hour}, logger),
		Rules:       store,
		Events:      store,
		Evaluator:   evaluator.New(store, nil, logger),
		Tracker:     cooldown.New(store, logger),
		Dispatcher:  dispatcher,
		EvalWorkers: 2,
	}, logger)

	return &fixture{store: store, adapter: adapter, svc: svc}
}

func btcRule(enabled bool) rule.Rule {
	return rule.Rule{
		ID:        1,
		Name:      "btc-high",
		Kind:      rule.KindPriceThreshold,
		Symbol:    "BTC",
		Threshold: decimal.NewFromInt(50000),
		Operator:  rule.OpGreaterThan,
		Severity:  rule.SeverityWarning,
		Channels:  []string{"telegram"},
		Cooldown:  30 * time.Minute,
		MaxPerDay: 5,
		Enabled:   enabled,
	}
}

func TestCheckNowAdmitsAndDelivers(t *testing.T) {
	f := newFixture(t)
	f.store.PutRule(btcRule(true))
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(51000), Timestamp: time.Now().UTC()})

	report, err := f.svc.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}

	if report.CheckedRules != 1 || report.TriggeredAlerts != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.SentNotifications != 1 || report.FailedNotifications != 0 {
		t.Fatalf("expected one sent notification, got %+v", report)
	}

	events, err := f.svc.ListAlertEvents(context.Background(), storage.EventFilter{})
	if err != nil {
		t.Fatalf("ListAlertEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Status != storage.EventSent {
		t.Fatalf("expected event sent, got %s", events[0].Status)
	}

	tasks, _ := f.store.ListTasks(context.Background(), events[0].ID)
	if len(tasks) != 1 || tasks[0].Status != storage.TaskSent {
		t.Fatalf("expected one sent task, got %+v", tasks)
	}
}

func TestDisabledRuleNeverProducesEvents(t *testing.T) {
	f := newFixture(t)
	f.store.PutRule(btcRule(false))
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(99999), Timestamp: time.Now().UTC()})

	report, err := f.svc.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if report.CheckedRules != 0 || report.TriggeredAlerts != 0 {
		t.Fatalf("disabled rule must be invisible to a pass, got %+v", report)
	}

	events, _ := f.svc.ListAlertEvents(context.Background(), storage.EventFilter{})
	if len(events) != 0 {
		t.Fatalf("disabled rule produced %d events", len(events))
	}
}

func TestCooldownSuppressesSecondPass(t *testing.T) {
	f := newFixture(t)
	f.store.PutRule(btcRule(true))
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(51000), Timestamp: time.Now().UTC()})

	if _, err := f.svc.CheckNow(context.Background()); err != nil {
		t.Fatalf("first CheckNow: %v", err)
	}
	report, err := f.svc.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("second CheckNow: %v", err)
	}
	if report.TriggeredAlerts != 0 {
		t.Fatal("second pass inside the cooldown must not admit")
	}

	events, _ := f.svc.ListAlertEvents(context.Background(), storage.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event across passes, got %d", len(events))
	}
}

func TestEvaluationErrorSkipsRuleOnly(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	broken := rule.Rule{
		ID:        2,
		Name:      "eth-vol",
		Kind:      rule.KindVolatility,
		Symbol:    "ETH",
		Threshold: decimal.NewFromInt(5),
		Window:    10 * time.Minute,
		Severity:  rule.SeverityWarning,
		Channels:  []string{"telegram"},
		MaxPerDay: 5,
		Enabled:   true,
	}
	f.store.PutRule(broken)
	f.store.PutRule(btcRule(true))
	f.store.AddSample(storage.MetricSample{Symbol: "ETH", Value: decimal.Zero, Timestamp: now.Add(-5 * time.Minute)})
	f.store.AddSample(storage.MetricSample{Symbol: "ETH", Value: decimal.NewFromInt(10), Timestamp: now})
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(51000), Timestamp: now})

	report, err := f.svc.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if report.CheckedRules != 2 {
		t.Fatalf("expected 2 checked rules, got %d", report.CheckedRules)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 evaluation error, got %v", report.Errors)
	}
	if report.TriggeredAlerts != 1 {
		t.Fatal("healthy rule must still alert when a sibling rule errors")
	}
}

func TestFailedDeliveryReflectedInReportAndEvent(t *testing.T) {
	f := newFixture(t)
	f.adapter.fail = true
	f.store.PutRule(btcRule(true))
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(51000), Timestamp: time.Now().UTC()})

	report, err := f.svc.CheckNow(context.Background())
	if err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if report.FailedNotifications != 1 || report.SentNotifications != 0 {
		t.Fatalf("expected one failed notification, got %+v", report)
	}

	events, _ := f.svc.ListAlertEvents(context.Background(), storage.EventFilter{})
	if len(events) != 1 || events[0].Status != storage.EventFailed {
		t.Fatalf("expected a failed event, got %+v", events)
	}
}

func TestAcknowledgeAlertEvent(t *testing.T) {
	f := newFixture(t)
	f.store.PutRule(btcRule(true))
	f.store.AddSample(storage.MetricSample{Symbol: "BTC", Value: decimal.NewFromInt(51000), Timestamp: time.Now().UTC()})

	if _, err := f.svc.CheckNow(context.Background()); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	events, _ := f.svc.ListAlertEvents(context.Background(), storage.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	acked, err := f.svc.AcknowledgeAlertEvent(context.Background(), events[0].ID)
	if err != nil {
		t.Fatalf("AcknowledgeAlertEvent: %v", err)
	}
	if acked.Status != storage.EventAcknowledged || acked.AcknowledgedAt == nil {
		t.Fatalf("unexpected acknowledged event %+v", acked)
	}

	if _, err := f.svc.AcknowledgeAlertEvent(context.Background(), "no-such-event"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
