package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	latestSampleSQL = `SELECT
        symbol,
        source,
        value,
        ts
    FROM metric_samples
    WHERE symbol = $1
    ORDER BY ts DESC
    LIMIT 1;`

	samplesInWindowSQL = `SELECT
        symbol,
        source,
        value,
        ts
    FROM metric_samples
    WHERE symbol = $1
      AND ts >= $2
      AND ts <= $3
    ORDER BY ts;`

	lastSampleTimeSQL = `SELECT MAX(ts) FROM metric_samples WHERE source = $1;`
)

// LatestSample returns the most recent sample for a symbol, or nil when the
// symbol has never been observed.
func (s *Store) LatestSample(ctx context.Context, symbol string) (*MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		sample   MetricSample
		valueStr string
	)
	row := pool.QueryRow(ctx, latestSampleSQL, symbol)
	if scanErr := row.Scan(&sample.Symbol, &sample.Source, &valueStr, &sample.Timestamp); scanErr != nil {
		if isNoRows(scanErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest sample: %w", scanErr)
	}

	value, convErr := decimal.NewFromString(valueStr)
	if convErr != nil {
		return nil, fmt.Errorf("parse sample value: %w", convErr)
	}
	sample.Value = value
	return &sample, nil
}

// SamplesInWindow lists samples for a symbol within [from, to] ascending.
func (s *Store) SamplesInWindow(ctx context.Context, symbol string, from, to time.Time) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, samplesInWindowSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("samples in window: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]MetricSample, 0)
	for rows.Next() {
		var (
			sample   MetricSample
			valueStr string
		)
		if scanErr := rows.Scan(&sample.Symbol, &sample.Source, &valueStr, &sample.Timestamp); scanErr != nil {
			return nil, scanErr
		}
		value, convErr := decimal.NewFromString(valueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sample value: %w", convErr)
		}
		sample.Value = value
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// LastSampleTime returns when a source last produced any sample, or nil when
// it never has.
func (s *Store) LastSampleTime(ctx context.Context, source string) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var ts *time.Time
	if scanErr := pool.QueryRow(ctx, lastSampleTimeSQL, source).Scan(&ts); scanErr != nil {
		return nil, fmt.Errorf("last sample time: %w", scanErr)
	}
	return ts, nil
}
