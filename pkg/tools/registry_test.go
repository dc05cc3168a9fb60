package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, allowedTiers []string) (*Registry, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := policy.NewEngine(allowedTiers, nil)
	reg := NewRegistry(engine, st, "jason")
	reg.Register(NewGetTimeTool())
	reg.Register(NewMathTool())
	reg.Register(NewRequestEmailTool())
	return reg, st
}

func TestExecute_Tier0Allowed(t *testing.T) {
	reg, _ := newTestRegistry(t, []string{"tier0"})
	result, err := reg.Execute(context.Background(), "math", map[string]interface{}{"expression": "2 + 3 * 4"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.EqualValues(t, 14, result.Output["result"])
}

func TestExecute_UnknownTool(t *testing.T) {
	reg, _ := newTestRegistry(t, []string{"tier0"})
	result, err := reg.Execute(context.Background(), "nonexistent", nil)
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestExecute_Tier1RequiresApproval(t *testing.T) {
	reg, st := newTestRegistry(t, []string{"tier0", "tier1"})
	result, err := reg.Execute(context.Background(), "request_email", map[string]interface{}{
		"to": "a@b.com", "subject": "x", "body": "y",
	})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, true, result.Output["approval_required"])
	approvalID := result.Output["approval_id"].(int64)

	pending, err := st.ListPendingApprovals(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approvalID, pending[0].ID)
}

func TestExecute_DeniedTierNotPermitted(t *testing.T) {
	reg, st := newTestRegistry(t, []string{"tier0"})
	result, err := reg.Execute(context.Background(), "request_email", map[string]interface{}{"to": "a@b.com"})
	require.NoError(t, err)
	assert.False(t, result.OK)

	pending, err := st.ListPendingApprovals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a denied tool must not enqueue an approval")

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.DecisionDeny, events[0].Decision)
}

func TestExecute_SchemaViolationSkipsPolicyCheck(t *testing.T) {
	reg, st := newTestRegistry(t, []string{"tier0"})
	result, err := reg.Execute(context.Background(), "request_email", map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, result.OK)

	events, err := st.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events, "schema rejection happens before any policy event is recorded")
}

func TestExecuteApproved_IdempotentSecondCall(t *testing.T) {
	reg, st := newTestRegistry(t, []string{"tier0", "tier1"})
	ctx := context.Background()

	result, err := reg.Execute(ctx, "request_email", map[string]interface{}{"to": "a@b.com"})
	require.NoError(t, err)
	approvalID := result.Output["approval_id"].(int64)

	ok, err := st.ResolveApproval(ctx, approvalID, true)
	require.NoError(t, err)
	require.True(t, ok)

	first, err := reg.ExecuteApproved(ctx, approvalID)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.Nil(t, first.Output["already_executed"])

	second, err := reg.ExecuteApproved(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, true, second.Output["already_executed"])
}
