package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meal-plan-coordinator/internal/shared"
)

// ExecutionMetric records metadata for a single provider attempt.
type ExecutionMetric struct {
	AgentName        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Success          bool
	Timestamp        time.Time
}

// Store persists execution metrics to SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_metrics
			(agent_name, provider, model, prompt_tokens, completion_tokens, latency_ms, success, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.AgentName, m.Provider, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, m.Success, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert execution metric: %w", err)
	}
	return nil
}

// RecordMeta records one gateway attempt, failed attempts included.
func (s *Store) RecordMeta(meta shared.AgentMeta) error {
	return s.Record(context.Background(), MapMeta(meta, s.now().UTC()))
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
	Failures        int
}

// GetDailyUsage retrieves usage for the last N days, newest first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := s.now().AddDate(0, 0, -days).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(timestamp / 1000, 'unixepoch') AS day,
		       SUM(prompt_tokens), SUM(completion_tokens), COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalPrompt, &u.TotalCompletion, &u.TotalExecution, &u.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// ProviderUsage is the attempt count and success rate of one provider.
type ProviderUsage struct {
	Provider     string
	Attempts     int
	Successes    int
	AvgLatencyMS int64
}

// GetProviderUsage summarizes attempts per provider over the last N days.
func (s *Store) GetProviderUsage(ctx context.Context, days int) ([]ProviderUsage, error) {
	since := s.now().AddDate(0, 0, -days).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COUNT(*), SUM(success), CAST(AVG(latency_ms) AS INTEGER)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY provider
		ORDER BY provider`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider usage: %w", err)
	}
	defer rows.Close()

	var results []ProviderUsage
	for rows.Next() {
		var u ProviderUsage
		if err := rows.Scan(&u.Provider, &u.Attempts, &u.Successes, &u.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan provider usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := s.now().AddDate(0, 0, -olderThanDays).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up execution metrics: %w", err)
	}
	return res.RowsAffected()
}

// MapMeta converts gateway metadata into an ExecutionMetric.
func MapMeta(meta shared.AgentMeta, at time.Time) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        meta.AgentName,
		Provider:         meta.Provider,
		Model:            meta.Usage.Model,
		PromptTokens:     meta.Usage.PromptTokens,
		CompletionTokens: meta.Usage.CompletionTokens,
		LatencyMS:        meta.Latency.Milliseconds(),
		Success:          meta.Success,
		Timestamp:        at,
	}
}
