package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profile_memory (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS project_memory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	body TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS episodic_memory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	tool_name TEXT,
	decision TEXT,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_name TEXT NOT NULL,
	caller TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_api_usage_profile_created
ON api_usage(profile_name, created_at DESC);

CREATE TABLE IF NOT EXISTS approval_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile_name TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tier TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	reviewed_at TEXT
);

CREATE TABLE IF NOT EXISTS interop_nonces (
	nonce TEXT PRIMARY KEY,
	source_node TEXT NOT NULL,
	target_node TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS interop_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	direction TEXT NOT NULL,
	source_node TEXT NOT NULL,
	target_node TEXT NOT NULL,
	task_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	nonce TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore is the default, embedded Store backend: a single
// *sql.DB connection, serialized behind a mutex because the underlying
// engine does not tolerate concurrent writers.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite file at path and runs
// schema migration.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("store: sqlite schema init: %w", err)
	}
	for _, stmt := range []string{
		"ALTER TABLE approval_queue ADD COLUMN execution_status TEXT NOT NULL DEFAULT 'not_executed'",
		"ALTER TABLE approval_queue ADD COLUMN executed_at TEXT",
		"ALTER TABLE approval_queue ADD COLUMN execution_result TEXT",
	} {
		// SQLite has no "ADD COLUMN IF NOT EXISTS"; re-running ALTER on an
		// already-migrated database fails with "duplicate column name",
		// which is the expected steady-state outcome and is ignored.
		_, _ = s.db.Exec(stmt)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertNonce(ctx context.Context, nonce, source, target string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interop_nonces (nonce, source_node, target_node) VALUES (?, ?, ?)`,
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

func (s *SQLiteStore) AppendMessage(ctx context.Context, rec MessageRecord) (MessageRecord, error) {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("store: marshal message payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interop_messages (direction, source_node, target_node, task_type, payload, nonce, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Direction), rec.Source, rec.Target, rec.TaskType, string(payloadJSON), rec.Nonce, rec.Status,
	)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("store: append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MessageRecord{}, fmt.Errorf("store: message id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = time.Now().UTC()
	return rec, nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, direction, source_node, target_node, task_type, payload, nonce, status, created_at
		 FROM interop_messages ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var direction, status, createdAt, payloadJSON string
		if err := rows.Scan(&rec.ID, &direction, &rec.Source, &rec.Target, &rec.TaskType, &payloadJSON, &rec.Nonce, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		rec.Direction = MessageDirection(direction)
		rec.Status = status
		rec.CreatedAt = parseTime(createdAt)
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, fmt.Errorf("store: unmarshal message payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastOutboxTimestamp(ctx context.Context, target, taskType, status string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT CAST(strftime('%s', created_at) AS INTEGER) AS ts
		 FROM interop_messages
		 WHERE direction = 'outbox' AND target_node = ? AND task_type = ? AND status = ?
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

func (s *SQLiteStore) EnqueueApproval(ctx context.Context, profile, toolName, tier string, payload map[string]interface{}) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("store: marshal approval payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_queue (profile_name, tool_name, tier, payload) VALUES (?, ?, ?, ?)`,
		profile, toolName, tier, string(payloadJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue approval: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ResolveApproval(ctx context.Context, id int64, approve bool) (bool, error) {
	status := string(ApprovalRejected)
	if approve {
		status = string(ApprovalApproved)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_queue SET status = ?, reviewed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'`,
		status, id,
	)
	if err != nil {
		return false, fmt.Errorf("store: resolve approval: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) MarkApprovalExecuted(ctx context.Context, id int64, result map[string]interface{}) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("store: marshal execution result: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE approval_queue SET execution_status = 'executed', executed_at = CURRENT_TIMESTAMP, execution_result = ?
		 WHERE id = ? AND status = 'approved' AND execution_status != 'executed'`,
		string(resultJSON), id,
	)
	if err != nil {
		return false, fmt.Errorf("store: mark executed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanApproval(row interface{ Scan(...interface{}) error }) (*ApprovalRecord, error) {
	var rec ApprovalRecord
	var status, createdAt, payloadJSON, execStatus string
	var reviewedAt, executedAt, executionResult sql.NullString
	if err := row.Scan(&rec.ID, &rec.Profile, &rec.ToolName, &rec.Tier, &payloadJSON, &status,
		&createdAt, &reviewedAt, &execStatus, &executedAt, &executionResult); err != nil {
		return nil, err
	}
	rec.Status = ApprovalStatus(status)
	rec.ExecutionStatus = ExecutionStatus(execStatus)
	rec.CreatedAt = parseTime(createdAt)
	if reviewedAt.Valid {
		t := parseTime(reviewedAt.String)
		rec.ReviewedAt = &t
	}
	if executedAt.Valid {
		t := parseTime(executedAt.String)
		rec.ExecutedAt = &t
	}
	if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
		return nil, fmt.Errorf("store: unmarshal approval payload: %w", err)
	}
	if executionResult.Valid && executionResult.String != "" {
		if err := json.Unmarshal([]byte(executionResult.String), &rec.ExecutionResult); err != nil {
			return nil, fmt.Errorf("store: unmarshal execution result: %w", err)
		}
	}
	return &rec, nil
}

const approvalColumns = `id, profile_name, tool_name, tier, payload, status, created_at, reviewed_at, execution_status, executed_at, execution_result`

func (s *SQLiteStore) GetApproval(ctx context.Context, id int64) (*ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_queue WHERE id = ?`, id)
	rec, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get approval: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) listApprovals(ctx context.Context, query string, args ...interface{}) ([]ApprovalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer rows.Close()
	var out []ApprovalRecord
	for rows.Next() {
		rec, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan approval: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListPendingApprovals(ctx context.Context, limit int) ([]ApprovalRecord, error) {
	return s.listApprovals(ctx, `SELECT `+approvalColumns+` FROM approval_queue WHERE status = 'pending' ORDER BY id ASC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListRecentApprovals(ctx context.Context, limit int) ([]ApprovalRecord, error) {
	return s.listApprovals(ctx, `SELECT `+approvalColumns+` FROM approval_queue ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, eventType, toolName string, decision Decision, payload map[string]interface{}) (EpisodicEvent, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return EpisodicEvent{}, fmt.Errorf("store: marshal event payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO episodic_memory (event_type, tool_name, decision, payload) VALUES (?, ?, ?, ?)`,
		eventType, toolName, string(decision), string(payloadJSON),
	)
	if err != nil {
		return EpisodicEvent{}, fmt.Errorf("store: record event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return EpisodicEvent{}, fmt.Errorf("store: event id: %w", err)
	}
	return EpisodicEvent{ID: id, EventType: eventType, ToolName: toolName, Decision: decision, Payload: payload, CreatedAt: time.Now().UTC()}, nil
}

func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]EpisodicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, tool_name, decision, payload, created_at FROM episodic_memory ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()
	var out []EpisodicEvent
	for rows.Next() {
		var ev EpisodicEvent
		var toolName, decision, createdAt, payloadJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EventType, &toolName, &decision, &payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.ToolName = toolName.String
		ev.Decision = Decision(decision.String)
		ev.CreatedAt = parseTime(createdAt.String)
		if payloadJSON.Valid {
			if err := json.Unmarshal([]byte(payloadJSON.String), &ev.Payload); err != nil {
				return nil, fmt.Errorf("store: unmarshal event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetProfileFact(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_memory (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: set profile fact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfileFact(ctx context.Context, key string) (ProfileFact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM profile_memory WHERE key = ?`, key)
	var fact ProfileFact
	var updatedAt string
	if err := row.Scan(&fact.Key, &fact.Value, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ProfileFact{}, false, nil
		}
		return ProfileFact{}, false, fmt.Errorf("store: get profile fact: %w", err)
	}
	fact.UpdatedAt = parseTime(updatedAt)
	return fact, true, nil
}

func (s *SQLiteStore) UpsertProjectItem(ctx context.Context, item ProjectItem) (ProjectItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO project_memory (title, body, status) VALUES (?, ?, ?)`,
			item.Title, item.Body, orDefault(item.Status, "active"),
		)
		if err != nil {
			return ProjectItem{}, fmt.Errorf("store: insert project item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ProjectItem{}, fmt.Errorf("store: project item id: %w", err)
		}
		item.ID = id
		return item, nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE project_memory SET title = ?, body = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		item.Title, item.Body, item.Status, item.ID,
	)
	if err != nil {
		return ProjectItem{}, fmt.Errorf("store: update project item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) ListProjectItems(ctx context.Context, status string) ([]ProjectItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query := `SELECT id, title, body, status, created_at, updated_at FROM project_memory`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
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
		var createdAt, updatedAt string
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan project item: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		item.UpdatedAt = parseTime(updatedAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RecordApiUsage(ctx context.Context, profile, caller, model string, promptTokens, completionTokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_usage (profile_name, caller, model, prompt_tokens, completion_tokens, total_tokens)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		profile, caller, model, promptTokens, completionTokens, promptTokens+completionTokens,
	)
	if err != nil {
		return fmt.Errorf("store: record api usage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SummarizeApiUsage(ctx context.Context, windowDays *int) (ApiUsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		where = `WHERE created_at >= datetime('now', ?)`
		args = append(args, fmt.Sprintf("-%d days", days))
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
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.ProfileName, &rec.Caller, &rec.Model, &rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens, &createdAt); err != nil {
			return ApiUsageSummary{}, fmt.Errorf("store: scan api usage: %w", err)
		}
		rec.CreatedAt = parseTime(createdAt)
		summary.Recent = append(summary.Recent, rec)
	}
	return summary, rows.Err()
}

func (s *SQLiteStore) groupApiUsage(ctx context.Context, column, where string, args []interface{}) ([]ApiUsageGroupTotal, error) {
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

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseTime tries the encodings this codebase's stores already tolerate:
// RFC3339Nano, RFC3339, then SQLite's bare "YYYY-MM-DD HH:MM:SS" default.
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_PRIMARYKEY as a message
	// containing "UNIQUE constraint failed"; lib/pq surfaces error code
	// 23505 as "duplicate key value violates unique constraint". Matching
	// on text keeps both stores decoupled from driver-specific error types.
	msg := err.Error()
	return containsFold(msg, "UNIQUE constraint failed") ||
		containsFold(msg, "constraint failed: UNIQUE") ||
		containsFold(msg, "duplicate key value violates unique constraint")
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return nl == 0
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
