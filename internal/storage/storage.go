package storage

import (
	"context"
	"errors"
	"time"

	"metric-alerts/internal/rule"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// RuleStore exposes the rule records the engine evaluates. Rule CRUD itself
// lives with the surrounding API layer; the engine only reads.
type RuleStore interface {
	GetEnabledRules(ctx context.Context) ([]rule.Rule, error)
	GetRule(ctx context.Context, id int64) (rule.Rule, error)
}

// TrackingStateStore persists per-rule cooldown/daily-cap state.
type TrackingStateStore interface {
	// GetTrackingState returns the state for a rule, lazily creating a zero
	// record on first evaluation.
	GetTrackingState(ctx context.Context, ruleID int64) (TrackingState, error)
	// SaveTrackingState writes state conditionally: it succeeds only when the
	// stored version equals expectedVersion, and bumps the version. Returns
	// false (and no error) when another writer got there first.
	SaveTrackingState(ctx context.Context, state TrackingState, expectedVersion int64) (bool, error)
}

// MetricStore provides time-series reads for rule evaluation.
type MetricStore interface {
	LatestSample(ctx context.Context, symbol string) (*MetricSample, error)
	SamplesInWindow(ctx context.Context, symbol string, from, to time.Time) ([]MetricSample, error)
	LastSampleTime(ctx context.Context, source string) (*time.Time, error)
}

// EventStore persists alert events and their delivery tasks.
type EventStore interface {
	// InsertAlertEvent writes the event and its tasks in one transaction.
	InsertAlertEvent(ctx context.Context, event AlertEvent, tasks []NotificationTask) error
	UpdateEventStatus(ctx context.Context, eventID string, status EventStatus) error
	ListAlertEvents(ctx context.Context, filter EventFilter) ([]AlertEvent, error)
	GetAlertEvent(ctx context.Context, eventID string) (AlertEvent, error)
	// AcknowledgeAlertEvent sets status=acknowledged and the acknowledge
	// timestamp. Returns ErrNotFound for unknown ids.
	AcknowledgeAlertEvent(ctx context.Context, eventID string, at time.Time) (AlertEvent, error)
	UpdateTask(ctx context.Context, task NotificationTask) error
	ListTasks(ctx context.Context, eventID string) ([]NotificationTask, error)
	// ListStaleTasks returns tasks still queued from a previous run.
	ListStaleTasks(ctx context.Context) ([]NotificationTask, error)
}

// AdvisoryLocker exposes cross-process mutual exclusion for evaluation passes.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
