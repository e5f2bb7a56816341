package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"metric-alerts/internal/rule"
)

// MetricSample is one observed time-series point. Samples are written by the
// ingestion side and read-only here.
type MetricSample struct {
	Symbol    string
	Source    string
	Value     decimal.Decimal
	Timestamp time.Time
}

// TrackingState carries the per-rule cooldown and daily-cap bookkeeping.
// Version is the optimistic concurrency token: SaveTrackingState only
// succeeds when the stored version still matches.
type TrackingState struct {
	RuleID         int64
	LastAlertTime  *time.Time
	TriggeredToday int
	DayBoundary    string // UTC date, YYYY-MM-DD
	Version        int64
}

// EventStatus tracks an alert event through its lifecycle.
type EventStatus string

const (
	EventPending      EventStatus = "pending"
	EventSent         EventStatus = "sent"
	EventFailed       EventStatus = "failed"
	EventAcknowledged EventStatus = "acknowledged"
)

// AlertEvent is one admitted trigger of a rule.
type AlertEvent struct {
	ID             string
	RuleID         int64
	RuleName       string
	Severity       rule.Severity
	Message        string
	Status         EventStatus
	TriggeredAt    time.Time
	AcknowledgedAt *time.Time
}

// TaskStatus tracks a delivery task. Sent and failed are terminal.
type TaskStatus string

const (
	TaskQueued TaskStatus = "queued"
	TaskSent   TaskStatus = "sent"
	TaskFailed TaskStatus = "failed"
)

// NotificationTask is one delivery of an alert event through one channel.
type NotificationTask struct {
	ID            string
	AlertEventID  string
	Channel       string
	Recipient     string
	Status        TaskStatus
	RetryCount    int
	LastError     *string
	LastAttemptAt *time.Time
}

// EventFilter narrows ListAlertEvents results. Zero values mean "any".
type EventFilter struct {
	RuleID   int64
	Severity rule.Severity
	Status   EventStatus
	Since    time.Time
	Limit    int
}
