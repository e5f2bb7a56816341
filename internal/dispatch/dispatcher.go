package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"metric-alerts/internal/alerting"
	"metric-alerts/internal/metrics"
	"metric-alerts/internal/rule"
	"metric-alerts/internal/storage"
)

// Config holds dispatcher tuning.
type Config struct {
	Workers     int
	MaxAttempts int
	SendTimeout time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	QueueSize   int
}

// Delivery tracks the tasks spawned by one Dispatch call so an on-demand
// check can wait for its own notifications without blocking the scheduler.
type Delivery struct {
	pending int32
	sent    int32
	failed  int32
	done    chan struct{}
}

// Wait blocks until every task of this delivery reached a terminal state or
// ctx expires.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

// Sent reports how many tasks were delivered.
func (d *Delivery) Sent() int { return int(atomic.LoadInt32(&d.sent)) }

// Failed reports how many tasks exhausted their retries.
func (d *Delivery) Failed() int { return int(atomic.LoadInt32(&d.failed)) }

func (d *Delivery) finishTask(delivered bool) {
	if delivered {
		atomic.AddInt32(&d.sent, 1)
	} else {
		atomic.AddInt32(&d.failed, 1)
	}
	if atomic.AddInt32(&d.pending, -1) == 0 {
		close(d.done)
	}
}

type job struct {
	task     storage.NotificationTask
	event    storage.AlertEvent
	delivery *Delivery
}

// Dispatcher turns admitted alerts into per-channel delivery tasks and
// drives the retry state machine on a bounded worker pool. Delivery is
// decoupled from evaluation: Dispatch returns once tasks are persisted and
// enqueued.
type Dispatcher struct {
	registry *alerting.Registry
	events   storage.EventStore
	cfg      Config
	logger   zerolog.Logger

	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Dispatcher. Start must be called before Dispatch.
func New(registry *alerting.Registry, events storage.EventStore, cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		events:   events,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		jobs:     make(chan job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.logger.Info().
		Int("workers", d.cfg.Workers).
		Int("max_attempts", d.cfg.MaxAttempts).
		Dur("send_timeout", d.cfg.SendTimeout).
		Msg("starting dispatch workers")

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop drains in-flight attempts and stops the workers. Task state is
// persisted after every attempt, so whatever remains queued is durably
// recorded and reported stale on the next start.
func (d *Dispatcher) Stop() {
	d.logger.Info().Msg("stopping dispatch workers")
	d.cancel()
	d.wg.Wait()
	d.logger.Info().Msg("dispatch workers stopped")
}

// Dispatch creates one queued task per configured channel, persists them
// atomically with the event, and enqueues delivery. A channel with no
// adapter fails its task immediately without touching the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event storage.AlertEvent, r rule.Rule) (*Delivery, error) {
	tasks := make([]storage.NotificationTask, 0, len(r.Channels))
	for _, channel := range r.Channels {
		tasks = append(tasks, storage.NotificationTask{
			ID:           uuid.NewString(),
			AlertEventID: event.ID,
			Channel:      channel,
			Recipient:    r.Recipients[channel],
			Status:       storage.TaskQueued,
		})
	}

	if err := d.events.InsertAlertEvent(ctx, event, tasks); err != nil {
		return nil, fmt.Errorf("persist alert event: %w", err)
	}

	delivery := &Delivery{
		pending: int32(len(tasks)),
		done:    make(chan struct{}),
	}
	if len(tasks) == 0 {
		close(delivery.done)
		return delivery, nil
	}

	for _, task := range tasks {
		select {
		case d.jobs <- job{task: task, event: event, delivery: delivery}:
		case <-ctx.Done():
			return delivery, ctx.Err()
		case <-d.ctx.Done():
			return delivery, fmt.Errorf("dispatcher stopped")
		}
	}
	return delivery, nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	log := d.logger.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-d.ctx.Done():
			return
		case j := <-d.jobs:
			d.deliver(log, j)
		}
	}
}

// deliver runs the retry state machine for one task: queued -> sent, or
// queued -> failed once retries are exhausted. retry_count is the only
// decision variable.
func (d *Dispatcher) deliver(log zerolog.Logger, j job) {
	task := j.task

	adapter, err := d.registry.Get(task.Channel)
	if err != nil {
		d.finishTask(log, j, task, err.Error())
		return
	}

	msg := alerting.Message{
		RuleName:    j.event.RuleName,
		Severity:    j.event.Severity,
		Body:        j.event.Message,
		TriggeredAt: j.event.TriggeredAt,
	}

	for {
		attemptAt := time.Now().UTC()
		task.LastAttemptAt = &attemptAt

		sendCtx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		start := time.Now()
		sendErr := adapter.Send(sendCtx, task.Recipient, msg)
		cancel()
		metrics.DeliveryAttemptDuration.WithLabelValues(task.Channel).Observe(time.Since(start).Seconds())

		if sendErr == nil {
			task.Status = storage.TaskSent
			task.LastError = nil
			d.persistTask(log, task)
			metrics.NotificationsSent.WithLabelValues(task.Channel).Inc()
			log.Info().
				Str("channel", task.Channel).
				Str("event_id", task.AlertEventID).
				Int("retry_count", task.RetryCount).
				Msg("notification sent")
			d.settle(log, j, true)
			return
		}

		task.RetryCount++
		errMsg := sendErr.Error()
		task.LastError = &errMsg
		log.Warn().
			Str("channel", task.Channel).
			Str("event_id", task.AlertEventID).
			Int("retry_count", task.RetryCount).
			Err(sendErr).
			Msg("delivery attempt failed")

		if task.RetryCount >= d.cfg.MaxAttempts {
			d.finishTask(log, j, task, errMsg)
			return
		}

		// Keep the failure durable before backing off.
		d.persistTask(log, task)

		if !d.sleep(backoffDelay(d.cfg.BackoffBase, d.cfg.BackoffCap, task.RetryCount)) {
			// Shutdown mid-backoff: the task stays queued in storage and is
			// reported stale on restart.
			return
		}
	}
}

func (d *Dispatcher) finishTask(log zerolog.Logger, j job, task storage.NotificationTask, errMsg string) {
	task.Status = storage.TaskFailed
	task.LastError = &errMsg
	d.persistTask(log, task)
	metrics.NotificationsFailed.WithLabelValues(task.Channel).Inc()
	log.Error().
		Str("channel", task.Channel).
		Str("event_id", task.AlertEventID).
		Int("retry_count", task.RetryCount).
		Str("last_error", errMsg).
		Msg("notification failed permanently")
	d.settle(log, j, false)
}

// settle updates per-delivery counters and recomputes the owning event's
// aggregate status once this task reached a terminal state.
func (d *Dispatcher) settle(log zerolog.Logger, j job, delivered bool) {
	d.refreshEventStatus(log, j.event.ID)
	j.delivery.finishTask(delivered)
}

func (d *Dispatcher) refreshEventStatus(log zerolog.Logger, eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tasks, err := d.events.ListTasks(ctx, eventID)
	if err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("failed to list tasks for status rollup")
		return
	}

	status := aggregateStatus(tasks)
	if status == storage.EventPending {
		return
	}
	if err := d.events.UpdateEventStatus(ctx, eventID, status); err != nil {
		log.Error().Err(err).Str("event_id", eventID).Msg("failed to update event status")
	}
}

// aggregateStatus rolls task outcomes up to the event: sent when every task
// was delivered, failed when every task failed, pending otherwise.
func aggregateStatus(tasks []storage.NotificationTask) storage.EventStatus {
	if len(tasks) == 0 {
		return storage.EventPending
	}
	allSent := true
	allFailed := true
	for _, task := range tasks {
		switch task.Status {
		case storage.TaskSent:
			allFailed = false
		case storage.TaskFailed:
			allSent = false
		default:
			return storage.EventPending
		}
	}
	if allSent {
		return storage.EventSent
	}
	if allFailed {
		return storage.EventFailed
	}
	return storage.EventPending
}

func (d *Dispatcher) persistTask(log zerolog.Logger, task storage.NotificationTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.events.UpdateTask(ctx, task); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist task state")
	}
}

func (d *Dispatcher) sleep(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-d.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoffDelay doubles from base per completed attempt, capped.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}
