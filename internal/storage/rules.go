package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"metric-alerts/internal/rule"
)

const (
	listEnabledRulesSQL = `SELECT
        id,
        name,
        kind,
        symbol,
        source,
        health_metric,
        threshold,
        operator,
        window_seconds,
        severity,
        channels,
        recipients,
        cooldown_seconds,
        max_per_day,
        enabled,
        created_at,
        updated_at
    FROM alert_rules
    WHERE enabled = TRUE
    ORDER BY id;`

	getRuleSQL = `SELECT
        id,
        name,
        kind,
        symbol,
        source,
        health_metric,
        threshold,
        operator,
        window_seconds,
        severity,
        channels,
        recipients,
        cooldown_seconds,
        max_per_day,
        enabled,
        created_at,
        updated_at
    FROM alert_rules
    WHERE id = $1;`
)

// GetEnabledRules returns every rule the next evaluation pass must consider.
func (s *Store) GetEnabledRules(ctx context.Context) ([]rule.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEnabledRulesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list enabled rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]rule.Rule, 0)
	for rows.Next() {
		r, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rules = append(rules, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// GetRule fetches a single rule by id.
func (s *Store) GetRule(ctx context.Context, id int64) (rule.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return rule.Rule{}, err
	}

	rows, queryErr := pool.Query(ctx, getRuleSQL, id)
	if queryErr != nil {
		return rule.Rule{}, fmt.Errorf("get rule: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return rule.Rule{}, rows.Err()
		}
		return rule.Rule{}, ErrNotFound
	}
	return scanRule(rows)
}

func scanRule(rows pgx.Rows) (rule.Rule, error) {
	var (
		r               rule.Rule
		kind            string
		healthMetric    string
		thresholdStr    string
		operator        string
		windowSeconds   int64
		severity        string
		recipientsJSON  []byte
		cooldownSeconds int64
	)

	if err := rows.Scan(
		&r.ID,
		&r.Name,
		&kind,
		&r.Symbol,
		&r.Source,
		&healthMetric,
		&thresholdStr,
		&operator,
		&windowSeconds,
		&severity,
		&r.Channels,
		&recipientsJSON,
		&cooldownSeconds,
		&r.MaxPerDay,
		&r.Enabled,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return rule.Rule{}, fmt.Errorf("scan rule: %w", err)
	}

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return rule.Rule{}, fmt.Errorf("parse threshold: %w", err)
	}

	r.Kind = rule.Kind(kind)
	r.HealthMetric = rule.HealthMetric(healthMetric)
	r.Threshold = threshold
	r.Operator = rule.Operator(operator)
	r.Window = time.Duration(windowSeconds) * time.Second
	r.Severity = rule.Severity(severity)
	r.Cooldown = time.Duration(cooldownSeconds) * time.Second

	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &r.Recipients); err != nil {
			return rule.Rule{}, fmt.Errorf("parse recipients: %w", err)
		}
	}

	return r, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
