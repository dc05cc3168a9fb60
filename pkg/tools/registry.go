package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
)

// Registry holds a name->tool mapping and mediates every invocation through
// the Policy Engine and Approval Queue.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	policy  *policy.Engine
	store   store.Store
	profile string
}

// NewRegistry builds an empty registry for profile, gated by engine and
// persisting approvals/events to st.
func NewRegistry(engine *policy.Engine, st store.Store, profileName string) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		policy:  engine,
		store:   st,
		profile: profileName,
	}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs the Tool Registry's full pipeline: schema validation, policy
// check, approval enqueue, or direct execution.
func (r *Registry) Execute(ctx context.Context, name string, payload map[string]interface{}) (Result, error) {
	tool, ok := r.lookup(name)
	if !ok {
		return Result{OK: false, Output: map[string]interface{}{"error": fmt.Sprintf("unknown tool: %s", name)}}, nil
	}

	if schema := tool.Schema(); schema != nil {
		if err := schema.ValidateInterface(payload); err != nil {
			return Result{OK: false, Output: map[string]interface{}{"error": fmt.Sprintf("payload schema violation: %v", err)}}, nil
		}
	}

	decision := r.policy.Check(name, tool.Tier(), payload)

	switch decision.Decision {
	case store.DecisionDeny:
		if _, err := r.store.RecordEvent(ctx, "tool_denied", name, store.DecisionDeny, map[string]interface{}{
			"reason": decision.Reason, "payload": payload,
		}); err != nil {
			return Result{}, err
		}
		return Result{OK: false, Output: map[string]interface{}{"error": decision.Reason}}, nil

	case store.DecisionRequireApproval:
		approvalID, err := r.store.EnqueueApproval(ctx, r.profile, name, string(tool.Tier()), payload)
		if err != nil {
			return Result{}, err
		}
		if _, err := r.store.RecordEvent(ctx, "tool_queued_for_approval", name, store.DecisionRequireApproval, map[string]interface{}{
			"approval_id": approvalID, "payload": payload,
		}); err != nil {
			return Result{}, err
		}
		return Result{OK: false, Output: map[string]interface{}{
			"approval_required": true,
			"approval_id":       approvalID,
			"reason":            decision.Reason,
		}}, nil

	default: // allow
		result, err := tool.Execute(ctx, payload)
		if err != nil {
			return Result{}, err
		}
		if _, err := r.store.RecordEvent(ctx, "tool_executed", name, store.DecisionAllow, map[string]interface{}{
			"payload": payload, "output": result.Output,
		}); err != nil {
			return Result{}, err
		}
		return result, nil
	}
}

// ExecuteApproved runs the tool behind a resolved, approved approval record,
// idempotently: a second call observes already_executed without re-running
// the tool.
func (r *Registry) ExecuteApproved(ctx context.Context, approvalID int64) (Result, error) {
	approval, err := r.store.GetApproval(ctx, approvalID)
	if err != nil {
		return Result{}, err
	}
	if approval == nil {
		return Result{OK: false, Output: map[string]interface{}{"error": "approval not found"}}, nil
	}
	if approval.Status != store.ApprovalApproved {
		return Result{OK: false, Output: map[string]interface{}{"error": fmt.Sprintf("approval %d is not approved", approvalID)}}, nil
	}
	if approval.ExecutionStatus == store.ExecutionExecuted {
		return Result{OK: true, Output: map[string]interface{}{
			"already_executed": true,
			"approval_id":      approvalID,
			"execution_result": approval.ExecutionResult,
		}}, nil
	}

	tool, ok := r.lookup(approval.ToolName)
	if !ok {
		return Result{OK: false, Output: map[string]interface{}{"error": fmt.Sprintf("unknown tool: %s", approval.ToolName)}}, nil
	}

	result, err := tool.Execute(ctx, approval.Payload)
	if err != nil {
		return Result{}, err
	}

	persisted, err := r.store.MarkApprovalExecuted(ctx, approvalID, map[string]interface{}{
		"ok": result.OK, "output": result.Output,
	})
	if err != nil {
		return Result{}, err
	}

	if _, err := r.store.RecordEvent(ctx, "tool_executed_after_approval", approval.ToolName, store.DecisionAllow, map[string]interface{}{
		"approval_id":                 approvalID,
		"payload":                     approval.Payload,
		"result":                      result.Output,
		"execution_status_persisted": persisted,
	}); err != nil {
		return Result{}, err
	}

	return result, nil
}
