package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ai-meal-plan-api/internal/shared"
)

// timestamps are stored as UTC text so SQLite's date() can group them.
const timestampLayout = "2006-01-02 15:04:05"

// ExecutionMetric records metadata for a single model call.
type ExecutionMetric struct {
	AgentName        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// Store handles persistence of usage metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing, migrated database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_usage (agent_name, model, prompt_tokens, completion_tokens, latency_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.AgentName, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage for %s: %w", m.AgentName, err)
	}
	return nil
}

// RecordMeta records metrics directly from shared.AgentMeta. Calls that
// consumed no tokens are skipped.
func (s *Store) RecordMeta(ctx context.Context, meta shared.AgentMeta) error {
	if meta.Usage.PromptTokens == 0 && meta.Usage.CompletionTokens == 0 {
		return nil
	}
	return s.Record(ctx, MapUsage(meta.AgentName, meta.Usage, meta.Latency))
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
}

// GetDailyUsage retrieves usage for the last N days, newest day first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT date(timestamp) AS day, SUM(prompt_tokens), SUM(completion_tokens), COUNT(*)
		 FROM llm_usage WHERE timestamp >= ?
		 GROUP BY day ORDER BY day DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var (
			day                sql.NullString
			prompt, completion sql.NullInt64
			u                  DailyUsage
		)
		if err := rows.Scan(&day, &prompt, &completion, &u.TotalExecution); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		u.Date = "Unknown"
		if day.Valid {
			u.Date = day.String
		}
		u.TotalPrompt = int(prompt.Int64)
		u.TotalCompletion = int(completion.Int64)
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days and
// returns how many were deleted.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_usage WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up usage: %w", err)
	}
	return res.RowsAffected()
}

// MapUsage converts shared.TokenUsage to an ExecutionMetric.
func MapUsage(agentName string, usage shared.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
