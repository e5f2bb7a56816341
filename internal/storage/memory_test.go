package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTrackingStateLazyCreate(t *testing.T) {
	m := NewMemory()
	state, err := m.GetTrackingState(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetTrackingState: %v", err)
	}
	if state.Version != 0 || state.TriggeredToday != 0 || state.LastAlertTime != nil {
		t.Fatalf("expected zero state, got %+v", state)
	}
}

func TestMemoryTrackingStateCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	first := TrackingState{RuleID: 1, LastAlertTime: &now, TriggeredToday: 1, DayBoundary: "2026-08-29"}
	ok, err := m.SaveTrackingState(ctx, first, 0)
	if err != nil || !ok {
		t.Fatalf("initial save should succeed: ok=%v err=%v", ok, err)
	}

	// A second writer that still thinks the row does not exist must lose.
	ok, err = m.SaveTrackingState(ctx, first, 0)
	if err != nil {
		t.Fatalf("SaveTrackingState: %v", err)
	}
	if ok {
		t.Fatal("conflicting insert should be rejected")
	}

	state, err := m.GetTrackingState(ctx, 1)
	if err != nil {
		t.Fatalf("GetTrackingState: %v", err)
	}
	if state.Version != 1 {
		t.Fatalf("expected version 1, got %d", state.Version)
	}

	state.TriggeredToday = 2
	ok, err = m.SaveTrackingState(ctx, state, state.Version)
	if err != nil || !ok {
		t.Fatalf("update with matching version should succeed: ok=%v err=%v", ok, err)
	}

	// Re-using the old version must fail.
	ok, err = m.SaveTrackingState(ctx, state, 1)
	if err != nil {
		t.Fatalf("SaveTrackingState: %v", err)
	}
	if ok {
		t.Fatal("stale version should be rejected")
	}
}

func TestMemoryEventAndTaskLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	event := AlertEvent{ID: "ev-1", RuleID: 1, RuleName: "btc-high", Status: EventPending, TriggeredAt: time.Now().UTC()}
	tasks := []NotificationTask{
		{ID: "t-1", AlertEventID: "ev-1", Channel: "telegram", Status: TaskQueued},
		{ID: "t-2", AlertEventID: "ev-1", Channel: "webhook", Status: TaskQueued},
	}
	if err := m.InsertAlertEvent(ctx, event, tasks); err != nil {
		t.Fatalf("InsertAlertEvent: %v", err)
	}

	stale, err := m.ListStaleTasks(ctx)
	if err != nil {
		t.Fatalf("ListStaleTasks: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", len(stale))
	}

	tasks[0].Status = TaskSent
	if err := m.UpdateTask(ctx, tasks[0]); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	stale, _ = m.ListStaleTasks(ctx)
	if len(stale) != 1 {
		t.Fatalf("expected 1 queued task after send, got %d", len(stale))
	}

	acked, err := m.AcknowledgeAlertEvent(ctx, "ev-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("AcknowledgeAlertEvent: %v", err)
	}
	if acked.Status != EventAcknowledged || acked.AcknowledgedAt == nil {
		t.Fatalf("expected acknowledged event, got %+v", acked)
	}

	if _, err := m.AcknowledgeAlertEvent(ctx, "missing", time.Now()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
