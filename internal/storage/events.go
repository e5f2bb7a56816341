package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"metric-alerts/internal/rule"
)

const (
	insertEventSQL = `INSERT INTO alert_events (
        id,
        rule_id,
        rule_name,
        severity,
        message,
        status,
        triggered_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	insertTaskSQL = `INSERT INTO notification_tasks (
        id,
        alert_event_id,
        channel,
        recipient,
        status,
        retry_count
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	updateEventStatusSQL = `UPDATE alert_events SET status = $2 WHERE id = $1;`

	getEventSQL = `SELECT
        id,
        rule_id,
        rule_name,
        severity,
        message,
        status,
        triggered_at,
        acknowledged_at
    FROM alert_events
    WHERE id = $1;`

	acknowledgeEventSQL = `UPDATE alert_events
    SET status = 'acknowledged', acknowledged_at = $2
    WHERE id = $1
    RETURNING id, rule_id, rule_name, severity, message, status, triggered_at, acknowledged_at;`

	updateTaskSQL = `UPDATE notification_tasks
    SET status = $2,
        retry_count = $3,
        last_error = $4,
        last_attempt_at = $5
    WHERE id = $1;`

	listTasksSQL = `SELECT
        id,
        alert_event_id,
        channel,
        recipient,
        status,
        retry_count,
        last_error,
        last_attempt_at
    FROM notification_tasks
    WHERE alert_event_id = $1
    ORDER BY channel;`

	listStaleTasksSQL = `SELECT
        id,
        alert_event_id,
        channel,
        recipient,
        status,
        retry_count,
        last_error,
        last_attempt_at
    FROM notification_tasks
    WHERE status = 'queued'
    ORDER BY alert_event_id, channel;`
)

// InsertAlertEvent persists an admitted alert and its delivery tasks in a
// single transaction so an event can never exist without its tasks.
func (s *Store) InsertAlertEvent(ctx context.Context, event AlertEvent, tasks []NotificationTask) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, txErr := pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("begin insert alert event: %w", txErr)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, insertEventSQL,
		event.ID,
		event.RuleID,
		event.RuleName,
		string(event.Severity),
		event.Message,
		string(event.Status),
		event.TriggeredAt,
	); execErr != nil {
		return fmt.Errorf("insert alert event: %w", execErr)
	}

	for _, task := range tasks {
		if _, execErr := tx.Exec(ctx, insertTaskSQL,
			task.ID,
			task.AlertEventID,
			task.Channel,
			task.Recipient,
			string(task.Status),
			task.RetryCount,
		); execErr != nil {
			return fmt.Errorf("insert notification task: %w", execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit alert event: %w", commitErr)
	}
	return nil
}

// UpdateEventStatus sets the aggregate delivery status of an event.
func (s *Store) UpdateEventStatus(ctx context.Context, eventID string, status EventStatus) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, updateEventStatusSQL, eventID, string(status))
	if execErr != nil {
		return fmt.Errorf("update event status: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAlertEvents returns events matching the filter, newest first.
func (s *Store) ListAlertEvents(ctx context.Context, filter EventFilter) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := strings.Builder{}
	query.WriteString(`SELECT id, rule_id, rule_name, severity, message, status, triggered_at, acknowledged_at FROM alert_events`)

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.RuleID != 0 {
		args = append(args, filter.RuleID)
		conditions = append(conditions, fmt.Sprintf("rule_id = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("triggered_at >= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY triggered_at DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, queryErr := pool.Query(ctx, query.String(), args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list alert events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]AlertEvent, 0)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// GetAlertEvent fetches a single event by id.
func (s *Store) GetAlertEvent(ctx context.Context, eventID string) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}

	rows, queryErr := pool.Query(ctx, getEventSQL, eventID)
	if queryErr != nil {
		return AlertEvent{}, fmt.Errorf("get alert event: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return AlertEvent{}, rows.Err()
		}
		return AlertEvent{}, ErrNotFound
	}
	return scanEvent(rows)
}

// AcknowledgeAlertEvent marks an event acknowledged.
func (s *Store) AcknowledgeAlertEvent(ctx context.Context, eventID string, at time.Time) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}

	rows, queryErr := pool.Query(ctx, acknowledgeEventSQL, eventID, at)
	if queryErr != nil {
		return AlertEvent{}, fmt.Errorf("acknowledge alert event: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return AlertEvent{}, rows.Err()
		}
		return AlertEvent{}, ErrNotFound
	}
	return scanEvent(rows)
}

// UpdateTask records the outcome of a delivery attempt.
func (s *Store) UpdateTask(ctx context.Context, task NotificationTask) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, updateTaskSQL,
		task.ID,
		string(task.Status),
		task.RetryCount,
		task.LastError,
		task.LastAttemptAt,
	)
	if execErr != nil {
		return fmt.Errorf("update notification task: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns the delivery tasks of one event.
func (s *Store) ListTasks(ctx context.Context, eventID string) ([]NotificationTask, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTasksSQL, eventID)
	if queryErr != nil {
		return nil, fmt.Errorf("list notification tasks: %w", queryErr)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListStaleTasks returns tasks still queued from a previous process run so
// they can be reported after restart.
func (s *Store) ListStaleTasks(ctx context.Context) ([]NotificationTask, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listStaleTasksSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list stale tasks: %w", queryErr)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func scanEvent(rows pgx.Rows) (AlertEvent, error) {
	var (
		event    AlertEvent
		severity string
		status   string
	)
	if err := rows.Scan(
		&event.ID,
		&event.RuleID,
		&event.RuleName,
		&severity,
		&event.Message,
		&status,
		&event.TriggeredAt,
		&event.AcknowledgedAt,
	); err != nil {
		return AlertEvent{}, fmt.Errorf("scan alert event: %w", err)
	}
	event.Severity = rule.Severity(severity)
	event.Status = EventStatus(status)
	return event, nil
}

func collectTasks(rows pgx.Rows) ([]NotificationTask, error) {
	tasks := make([]NotificationTask, 0)
	for rows.Next() {
		var (
			task   NotificationTask
			status string
		)
		if err := rows.Scan(
			&task.ID,
			&task.AlertEventID,
			&task.Channel,
			&task.Recipient,
			&status,
			&task.RetryCount,
			&task.LastError,
			&task.LastAttemptAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification task: %w", err)
		}
		task.Status = TaskStatus(status)
		tasks = append(tasks, task)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tasks, nil
}
