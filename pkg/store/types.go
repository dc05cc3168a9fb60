// Package store implements the Memory Store: the embedded relational
// persistence layer backing the nonce ledger, message log, approval queue,
// episodic recorder, profile facts, project items, and API usage records.
// It ships two backends behind the same Store interface: modernc.org/sqlite
// (the default, embedded) and lib/pq (optional, selected by DATABASE_URL),
// mirroring this tree's existing lite-mode/Postgres split.
package store

import "time"

// MessageDirection is one of the three MessageRecord directions.
type MessageDirection string

const (
	DirectionInbox  MessageDirection = "inbox"
	DirectionOutbox MessageDirection = "outbox"
	DirectionRelay  MessageDirection = "relay"
)

// ApprovalStatus is the pending/approved/rejected lifecycle state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ExecutionStatus tracks whether an approved action has run yet.
type ExecutionStatus string

const (
	ExecutionNotExecuted ExecutionStatus = "not_executed"
	ExecutionExecuted    ExecutionStatus = "executed"
)

// Decision mirrors the Policy Engine's three-way outcome, recorded on every
// EpisodicEvent.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionRequireApproval Decision = "require_approval"
	DecisionDeny            Decision = "deny"
)

// NonceRecord is a single replay-ledger row.
type NonceRecord struct {
	Nonce     string
	Source    string
	Target    string
	CreatedAt time.Time
}

// MessageRecord is one append-only inbox/outbox/relay entry.
type MessageRecord struct {
	ID        int64
	Direction MessageDirection
	Source    string
	Target    string
	TaskType  string
	Payload   map[string]interface{}
	Nonce     string
	Status    string
	CreatedAt time.Time
}

// ApprovalRecord is a durable tier-gated-action approval.
type ApprovalRecord struct {
	ID               int64
	Profile          string
	ToolName         string
	Tier             string
	Payload          map[string]interface{}
	Status           ApprovalStatus
	CreatedAt        time.Time
	ReviewedAt       *time.Time
	ExecutionStatus  ExecutionStatus
	ExecutedAt       *time.Time
	ExecutionResult  map[string]interface{}
}

// EpisodicEvent is one structured record in the append-only event log.
type EpisodicEvent struct {
	ID        int64
	EventType string
	ToolName  string
	Decision  Decision
	Payload   map[string]interface{}
	CreatedAt time.Time
}

// ProfileFact is an upsertable key/value pair of durable profile memory.
type ProfileFact struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ProjectItem is a mutable tracked work item.
type ProjectItem struct {
	ID        int64
	Title     string
	Body      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApiUsageRecord is one LLM-call accounting entry.
type ApiUsageRecord struct {
	ID               int64
	ProfileName      string
	Caller           string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CreatedAt        time.Time
}

// ApiUsageSummary aggregates ApiUsageRecords, optionally windowed by age.
type ApiUsageSummary struct {
	Enabled                bool
	TotalCalls             int64
	TotalPromptTokens      int64
	TotalCompletionTokens  int64
	TotalTokens            int64
	WindowDays             *int
	ByModel                []ApiUsageGroupTotal
	ByCaller               []ApiUsageGroupTotal
	Recent                 []ApiUsageRecord
}

// ApiUsageGroupTotal is one grouped row of an ApiUsageSummary.
type ApiUsageGroupTotal struct {
	Key        string
	Calls      int64
	TotalTokens int64
}
