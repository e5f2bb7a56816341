package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"metric-alerts/internal/rule"
)

// Memory is an in-memory implementation of the store interfaces. It backs
// the simulate command and the package tests; the conditional tracking-state
// save has the same semantics as the postgres version.
type Memory struct {
	mu       sync.Mutex
	rules    map[int64]rule.Rule
	tracking map[int64]TrackingState
	samples  []MetricSample
	events   map[string]AlertEvent
	tasks    map[string]NotificationTask
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rules:    make(map[int64]rule.Rule),
		tracking: make(map[int64]TrackingState),
		events:   make(map[string]AlertEvent),
		tasks:    make(map[string]NotificationTask),
	}
}

// PutRule adds or replaces a rule.
func (m *Memory) PutRule(r rule.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
}

// AddSample appends a metric sample.
func (m *Memory) AddSample(sample MetricSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample)
}

// GetEnabledRules returns enabled rules ordered by id.
func (m *Memory) GetEnabledRules(ctx context.Context) ([]rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := make([]rule.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// GetRule fetches a rule by id.
func (m *Memory) GetRule(ctx context.Context, id int64) (rule.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return rule.Rule{}, ErrNotFound
	}
	return r, nil
}

// GetTrackingState returns the state for a rule, zero-valued when absent.
func (m *Memory) GetTrackingState(ctx context.Context, ruleID int64) (TrackingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.tracking[ruleID]; ok {
		return state, nil
	}
	return TrackingState{RuleID: ruleID}, nil
}

// SaveTrackingState applies the compare-and-swap write.
func (m *Memory) SaveTrackingState(ctx context.Context, state TrackingState, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.tracking[state.RuleID]
	if expectedVersion == 0 {
		if exists {
			return false, nil
		}
		state.Version = 1
		m.tracking[state.RuleID] = state
		return true, nil
	}
	if !exists || current.Version != expectedVersion {
		return false, nil
	}
	state.Version = current.Version + 1
	m.tracking[state.RuleID] = state
	return true, nil
}

// LatestSample returns the newest sample for a symbol.
func (m *Memory) LatestSample(ctx context.Context, symbol string) (*MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *MetricSample
	for i := range m.samples {
		sample := m.samples[i]
		if sample.Symbol != symbol {
			continue
		}
		if latest == nil || sample.Timestamp.After(latest.Timestamp) {
			copied := sample
			latest = &copied
		}
	}
	return latest, nil
}

// SamplesInWindow returns symbol samples within [from, to] ascending.
func (m *Memory) SamplesInWindow(ctx context.Context, symbol string, from, to time.Time) ([]MetricSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]MetricSample, 0)
	for _, sample := range m.samples {
		if sample.Symbol != symbol {
			continue
		}
		if sample.Timestamp.Before(from) || sample.Timestamp.After(to) {
			continue
		}
		matched = append(matched, sample)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })
	return matched, nil
}

// LastSampleTime returns when a source last produced a sample.
func (m *Memory) LastSampleTime(ctx context.Context, source string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *time.Time
	for _, sample := range m.samples {
		if sample.Source != source {
			continue
		}
		if last == nil || sample.Timestamp.After(*last) {
			ts := sample.Timestamp
			last = &ts
		}
	}
	return last, nil
}

// InsertAlertEvent stores the event together with its tasks.
func (m *Memory) InsertAlertEvent(ctx context.Context, event AlertEvent, tasks []NotificationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[event.ID] = event
	for _, task := range tasks {
		m.tasks[task.ID] = task
	}
	return nil
}

// UpdateEventStatus sets the aggregate status of an event.
func (m *Memory) UpdateEventStatus(ctx context.Context, eventID string, status EventStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	event.Status = status
	m.events[eventID] = event
	return nil
}

// ListAlertEvents filters stored events, newest first.
func (m *Memory) ListAlertEvents(ctx context.Context, filter EventFilter) ([]AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]AlertEvent, 0, len(m.events))
	for _, event := range m.events {
		if filter.RuleID != 0 && event.RuleID != filter.RuleID {
			continue
		}
		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && event.TriggeredAt.Before(filter.Since) {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].TriggeredAt.After(events[j].TriggeredAt) })
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// GetAlertEvent fetches an event by id.
func (m *Memory) GetAlertEvent(ctx context.Context, eventID string) (AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[eventID]
	if !ok {
		return AlertEvent{}, ErrNotFound
	}
	return event, nil
}

// AcknowledgeAlertEvent marks an event acknowledged.
func (m *Memory) AcknowledgeAlertEvent(ctx context.Context, eventID string, at time.Time) (AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[eventID]
	if !ok {
		return AlertEvent{}, ErrNotFound
	}
	event.Status = EventAcknowledged
	event.AcknowledgedAt = &at
	m.events[eventID] = event
	return event, nil
}

// UpdateTask records a delivery attempt outcome.
func (m *Memory) UpdateTask(ctx context.Context, task NotificationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[task.ID] = task
	return nil
}

// ListTasks returns the tasks of one event ordered by channel.
func (m *Memory) ListTasks(ctx context.Context, eventID string) ([]NotificationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]NotificationTask, 0)
	for _, task := range m.tasks {
		if task.AlertEventID == eventID {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Channel < tasks[j].Channel })
	return tasks, nil
}

// ListStaleTasks returns tasks still queued.
func (m *Memory) ListStaleTasks(ctx context.Context) ([]NotificationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]NotificationTask, 0)
	for _, task := range m.tasks {
		if task.Status == TaskQueued {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

var (
	_ RuleStore          = (*Memory)(nil)
	_ TrackingStateStore = (*Memory)(nil)
	_ MetricStore        = (*Memory)(nil)
	_ EventStore         = (*Memory)(nil)
)
