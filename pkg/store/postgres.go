package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profile_memory (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_memory (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS episodic_memory (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	tool_name TEXT,
	decision TEXT,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_usage (
	id BIGSERIAL PRIMARY KEY,
	profile_name TEXT NOT NULL,
	caller TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens BIGINT NOT NULL DEFAULT 0,
	completion_tokens BIGINT NOT NULL DEFAULT 0,
	total_tokens BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_api_usage_profile_created
ON api_usage(profile_name, created_at DESC);

CREATE TABLE IF NOT EXISTS approval_queue (
	id BIGSERIAL PRIMARY KEY,
	profile_name TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tier TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	reviewed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS interop_nonces (
	nonce TEXT PRIMARY KEY,
	source_node TEXT NOT NULL,
	target_node TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interop_messages (
	id BIGSERIAL PRIMARY KEY,
	direction TEXT NOT NULL,
	source_node TEXT NOT NULL,
	target_node TEXT NOT NULL,
	task_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	nonce TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store against a Postgres database, selected when
// DATABASE_URL is set in place of the default embedded SQLite file.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens dsn and runs schema migration.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	if _, err := s.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("store: postgres schema init: %w", err)
	}
	for _, stmt := range []string{
		"ALTER TABLE approval_queue ADD COLUMN IF NOT EXISTS execution_status TEXT NOT NULL DEFAULT 'not_executed'",
		"ALTER TABLE approval_queue ADD COLUMN IF NOT EXISTS executed_at TIMESTAMPTZ",
		"ALTER TABLE approval_queue ADD COLUMN IF NOT EXISTS execution_result JSONB",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: postgres migration %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) InsertNonce(ctx context.Context, nonce, source, target string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interop_nonces (nonce, source_node, target_node) VALUES ($1, $2, $3)`,
		nonce, source, target,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: insert nonce: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, rec MessageRecord) (MessageRecord, error) {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("store: marshal message payload: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO interop_messages (direction, source_node, target_node, task_type, payload, nonce, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		string(rec.Direction), rec.Source, rec.Target, rec.TaskType, payloadJSON, rec.Nonce, rec.Status,
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return MessageRecord{}, fmt.Errorf("store: append message: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, direction, source_node, target_node, task_type, payload, nonce, status, created_at
		 FROM interop_messages ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var direction, status string
		var payloadJSON []byte
		if err := rows.Scan(&rec.ID, &direction, &rec.Source, &rec.Target, &rec.TaskType, &payloadJSON, &rec.Nonce, &status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		rec.Direction = MessageDirection(direction)
		rec.Status = status
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("store: unmarshal message payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LastOutboxTimestamp(ctx context.Context, target, taskType, status string) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT EXTRACT(EPOCH FROM created_at)::BIGINT
		 FROM interop_messages
		 WHERE direction = 'outbox' AND target_node = $1 AND task_type = $2 AND status = $3
		 ORDER BY id DESC LIMIT 1`, target, taskType, status)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: last outbox timestamp: %w", err)
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return ts.Int64, true, nil
}

func (s *PostgresStore) EnqueueApproval(ctx context.Context, profile, toolName, tier string, payload map[string]interface{}) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("store: marshal approval payload: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO approval_queue (profile_name, tool_name, tier, payload) VALUES ($1, $2, $3, $4) RETURNING id`,
		profile, toolName, tier, payloadJSON,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("store: enqueue approval: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ResolveApproval(ctx context.Context, id int64, approve bool) (bool, error) {
	status := string(ApprovalRejected)
	if approve {
		status = string(ApprovalApproved)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_queue SET status = $1, reviewed_at = now() WHERE id = $2 AND status = 'pending'`,
		status, id,
	)
	if err != nil {
		return false, fmt.Errorf("store: resolve approval: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) MarkApprovalExecuted(ctx context.Context, id int64, result map[string]interface{}) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("store: marshal execution result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_queue SET execution_status = 'executed', executed_at = now(), execution_result = $1
		 WHERE id = $2 AND status = 'approved' AND execution_status != 'executed'`,
		resultJSON, id,
	)
	if err != nil {
		return false, fmt.Errorf("store: mark executed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const pgApprovalColumns = `id, profile_name, tool_name, tier, payload, status, created_at, reviewed_at, execution_status, executed_at, execution_result`

func scanPgApproval(row interface{ Scan(...interface{}) error }) (*ApprovalRecord, error) {
	var rec ApprovalRecord
	var status, execStatus string
	var payloadJSON, executionResult []byte
	var reviewedAt, executedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Profile, &rec.ToolName, &rec.Tier, &payloadJSON, &status,
		&rec.CreatedAt, &reviewedAt, &execStatus, &executedAt, &executionResult); err != nil {
		return nil, err
	}
	rec.Status = ApprovalStatus(status)
	rec.ExecutionStatus = ExecutionStatus(execStatus)
	if reviewedAt.Valid {
		rec.ReviewedAt = &reviewedAt.Time
	}
	if executedAt.Valid {
		rec.ExecutedAt = &executedAt.Time
	}
	if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
		return nil, fmt.Errorf("store: unmarshal approval payload: %w", err)
	}
	if len(executionResult) > 0 {
		if err := json.Unmarshal(executionResult, &rec.ExecutionResult); err != nil {
			return nil, fmt.Errorf("store: unmarshal execution result: %w", err)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) GetApproval(ctx context.Context, id int64) (*ApprovalRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pgApprovalColumns+` FROM approval_queue WHERE id = $1`, id)
	rec, err := scanPgApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get approval: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) listApprovals(ctx context.Context, query string, args ...interface{}) ([]ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer rows.Close()
	var out []ApprovalRecord
	for rows.Next() {
		rec, err := scanPgApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan approval: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPendingApprovals(ctx context.Context, limit int) ([]ApprovalRecord, error) {
	return s.listApprovals(ctx, `SELECT `+pgApprovalColumns+` FROM approval_queue WHERE status = 'pending' ORDER BY id ASC LIMIT $1`, limit)
}

func (s *PostgresStore) ListRecentApprovals(ctx context.Context, limit int) ([]ApprovalRecord, error) {
	return s.listApprovals(ctx, `SELECT `+pgApprovalColumns+` FROM approval_queue ORDER BY id DESC LIMIT $1`, limit)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, eventType, toolName string, decision Decision, payload map[string]interface{}) (EpisodicEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return EpisodicEvent{}, fmt.Errorf("store: marshal event payload: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO episodic_memory (event_type, tool_name, decision, payload) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		eventType, toolName, string(decision), payloadJSON,
	)
	ev := EpisodicEvent{EventType: eventType, ToolName: toolName, Decision: decision, Payload: payload}
	if err := row.Scan(&ev.ID, &ev.CreatedAt); err != nil {
		return EpisodicEvent{}, fmt.Errorf("store: record event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]EpisodicEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, tool_name, decision, payload, created_at FROM episodic_memory ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()
	var out []EpisodicEvent
	for rows.Next() {
		var ev EpisodicEvent
		var toolName, decision sql.NullString
		var payloadJSON []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &toolName, &decision, &payloadJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.ToolName = toolName.String
		ev.Decision = Decision(decision.String)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
				return nil, fmt.Errorf("store: unmarshal event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetProfileFact(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_memory (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: set profile fact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfileFact(ctx context.Context, key string) (ProfileFact, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM profile_memory WHERE key = $1`, key)
	var fact ProfileFact
	if err := row.Scan(&fact.Key, &fact.Value, &fact.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ProfileFact{}, false, nil
		}
		return ProfileFact{}, false, fmt.Errorf("store: get profile fact: %w", err)
	}
	return fact, true, nil
}

func (s *PostgresStore) UpsertProjectItem(ctx context.Context, item ProjectItem) (ProjectItem, error) {
	if item.ID == 0 {
		row := s.db.QueryRowContext(ctx,
			`INSERT INTO project_memory (title, body, status) VALUES ($1, $2, $3) RETURNING id`,
			item.Title, item.Body, orDefault(item.Status, "active"),
		)
		if err := row.Scan(&item.ID); err != nil {
			return ProjectItem{}, fmt.Errorf("store: insert project item: %w", err)
		}
		return item, nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE project_memory SET title = $1, body = $2, status = $3, updated_at = now() WHERE id = $4`,
		item.Title, item.Body, item.Status, item.ID,
	)
	if err != nil {
		return ProjectItem{}, fmt.Errorf("store: update project item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListProjectItems(ctx context.Context, status string) ([]ProjectItem, error) {
	query := `SELECT id, title, body, status, created_at, updated_at FROM project_memory`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list project items: %w", err)
	}
	defer rows.Close()
	var out []ProjectItem
	for rows.Next() {
		var item ProjectItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan project item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecordApiUsage(ctx context.Context, profile, caller, model string, promptTokens, completionTokens int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_usage (profile_name, caller, model, prompt_tokens, completion_tokens, total_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		profile, caller, model, promptTokens, completionTokens, promptTokens+completionTokens,
	)
	if err != nil {
		return fmt.Errorf("store: record api usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) SummarizeApiUsage(ctx context.Context, windowDays *int) (ApiUsageSummary, error) {
	where := ""
	var args []interface{}
	if windowDays != nil {
		days := *windowDays
		if days < 1 {
			days = 1
		}
		if days > 365 {
			days = 365
		}
		where = `WHERE created_at >= now() - ($1 || ' days')::interval`
		args = append(args, days)
	}

	summary := ApiUsageSummary{Enabled: true, WindowDays: windowDays}
	totalsRow := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0), COALESCE(SUM(total_tokens),0) FROM api_usage `+where, args...)
	if err := totalsRow.Scan(&summary.TotalCalls, &summary.TotalPromptTokens, &summary.TotalCompletionTokens, &summary.TotalTokens); err != nil {
		return ApiUsageSummary{}, fmt.Errorf("store: summarize api usage totals: %w", err)
	}

	byModel, err := s.groupApiUsage(ctx, "model", where, args)
	if err != nil {
		return ApiUsageSummary{}, err
	}
	summary.ByModel = byModel

	byCaller, err := s.groupApiUsage(ctx, "caller", where, args)
	if err != nil {
		return ApiUsageSummary{}, err
	}
	summary.ByCaller = byCaller

	rows, err := s.db.QueryContext(ctx, `SELECT id, profile_name, caller, model, prompt_tokens, completion_tokens, total_tokens, created_at FROM api_usage ORDER BY id DESC LIMIT 25`)
	if err != nil {
		return ApiUsageSummary{}, fmt.Errorf("store: recent api usage: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec ApiUsageRecord
		if err := rows.Scan(&rec.ID, &rec.ProfileName, &rec.Caller, &rec.Model, &rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &rec.CreatedAt); err != nil {
			return ApiUsageSummary{}, fmt.Errorf("store: scan api usage: %w", err)
		}
		summary.Recent = append(summary.Recent, rec)
	}
	return summary, rows.Err()
}

func (s *PostgresStore) groupApiUsage(ctx context.Context, column, where string, args []interface{}) ([]ApiUsageGroupTotal, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*), COALESCE(SUM(total_tokens),0) FROM api_usage %s GROUP BY %s ORDER BY 3 DESC`, column, where, column)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: group api usage by %s: %w", column, err)
	}
	defer rows.Close()
	var out []ApiUsageGroupTotal
	for rows.Next() {
		var g ApiUsageGroupTotal
		if err := rows.Scan(&g.Key, &g.Calls, &g.TotalTokens); err != nil {
			return nil, fmt.Errorf("store: scan api usage group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
