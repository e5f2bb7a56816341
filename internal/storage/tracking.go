package storage

import (
	"context"
	"fmt"
)

const (
	getTrackingStateSQL = `SELECT
        rule_id,
        last_alert_time,
        triggered_today,
        day_boundary,
        version
    FROM alert_tracking
    WHERE rule_id = $1;`

	insertTrackingStateSQL = `INSERT INTO alert_tracking (
        rule_id,
        last_alert_time,
        triggered_today,
        day_boundary,
        version
    ) VALUES (
        $1,$2,$3,$4,1
    )
    ON CONFLICT (rule_id) DO NOTHING;`

	updateTrackingStateSQL = `UPDATE alert_tracking
    SET last_alert_time = $2,
        triggered_today = $3,
        day_boundary    = $4,
        version         = version + 1
    WHERE rule_id = $1
      AND version = $5;`
)

// GetTrackingState loads the cooldown/cap state for a rule. A rule that has
// never alerted gets a zero state with Version 0; the first conditional save
// creates the row.
func (s *Store) GetTrackingState(ctx context.Context, ruleID int64) (TrackingState, error) {
	pool, err := s.getPool()
	if err != nil {
		return TrackingState{}, err
	}

	var state TrackingState
	row := pool.QueryRow(ctx, getTrackingStateSQL, ruleID)
	if scanErr := row.Scan(
		&state.RuleID,
		&state.LastAlertTime,
		&state.TriggeredToday,
		&state.DayBoundary,
		&state.Version,
	); scanErr != nil {
		if isNoRows(scanErr) {
			return TrackingState{RuleID: ruleID}, nil
		}
		return TrackingState{}, fmt.Errorf("get tracking state: %w", scanErr)
	}
	return state, nil
}

// SaveTrackingState performs the compare-and-swap write that makes alert
// admission atomic. Version 0 means "row does not exist yet" and maps to a
// conditional insert; anything else is a conditional update. A false return
// means a concurrent writer won and the caller must re-read and re-decide.
func (s *Store) SaveTrackingState(ctx context.Context, state TrackingState, expectedVersion int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	if expectedVersion == 0 {
		tag, execErr := pool.Exec(ctx, insertTrackingStateSQL,
			state.RuleID,
			state.LastAlertTime,
			state.TriggeredToday,
			state.DayBoundary,
		)
		if execErr != nil {
			return false, fmt.Errorf("insert tracking state: %w", execErr)
		}
		return tag.RowsAffected() == 1, nil
	}

	tag, execErr := pool.Exec(ctx, updateTrackingStateSQL,
		state.RuleID,
		state.LastAlertTime,
		state.TriggeredToday,
		state.DayBoundary,
		expectedVersion,
	)
	if execErr != nil {
		return false, fmt.Errorf("update tracking state: %w", execErr)
	}
	return tag.RowsAffected() == 1, nil
}
