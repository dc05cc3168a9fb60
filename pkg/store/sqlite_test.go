package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertNonce_RejectsReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertNonce(ctx, "abc123", "scarlet", "jason")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertNonce(ctx, "abc123", "scarlet", "jason")
	require.NoError(t, err)
	assert.False(t, inserted, "replayed nonce must not insert a second row")
}

func TestAppendAndRecentMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.AppendMessage(ctx, MessageRecord{
		Direction: DirectionInbox,
		Source:    "scarlet",
		Target:    "jason",
		TaskType:  "skills_checkin",
		Payload:   map[string]interface{}{"question": "hi"},
		Nonce:     "n1",
		Status:    "accepted",
	})
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	recent, err := s.RecentMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "scarlet", recent[0].Source)
	assert.Equal(t, "hi", recent[0].Payload["question"])
}

func TestAppendMessage_IDsAreStrictlyIncreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		rec, err := s.AppendMessage(ctx, MessageRecord{
			Direction: DirectionOutbox,
			Source:    "scarlet",
			Target:    "jason",
			TaskType:  "skills_checkin",
			Payload:   map[string]interface{}{"n": i},
			Nonce:     fmt.Sprintf("n%d", i),
			Status:    "sent",
		})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestApprovalLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.EnqueueApproval(ctx, "jason", "request_email", "t2", map[string]interface{}{"to": "x@example.com"})
	require.NoError(t, err)

	pending, err := s.ListPendingApprovals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ApprovalPending, pending[0].Status)
	assert.Equal(t, ExecutionNotExecuted, pending[0].ExecutionStatus)

	ok, err := s.ResolveApproval(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ResolveApproval(ctx, id, true)
	require.NoError(t, err)
	assert.False(t, ok, "resolving twice must be a no-op")

	approved, err := s.GetApproval(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, approved)
	assert.Equal(t, ApprovalApproved, approved.Status)

	executed, err := s.MarkApprovalExecuted(ctx, id, map[string]interface{}{"sent": true})
	require.NoError(t, err)
	assert.True(t, executed)

	executed, err = s.MarkApprovalExecuted(ctx, id, map[string]interface{}{"sent": true})
	require.NoError(t, err)
	assert.False(t, executed, "marking executed twice must be a no-op")

	final, err := s.GetApproval(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ExecutionExecuted, final.ExecutionStatus)
	assert.NotNil(t, final.ExecutedAt)
}

func TestProfileFactsAndProjectItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetProfileFact(ctx, "name", "jason"))
	require.NoError(t, s.SetProfileFact(ctx, "name", "jason-updated"))

	fact, ok, err := s.GetProfileFact(ctx, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jason-updated", fact.Value)

	item, err := s.UpsertProjectItem(ctx, ProjectItem{Title: "ship helm", Body: "finish it", Status: "active"})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)

	item.Status = "done"
	item.Body = "finished it"
	_, err = s.UpsertProjectItem(ctx, item)
	require.NoError(t, err)

	active, err := s.ListProjectItems(ctx, "active")
	require.NoError(t, err)
	assert.Len(t, active, 0)

	done, err := s.ListProjectItems(ctx, "done")
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "finished it", done[0].Body)
}

func TestApiUsageSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordApiUsage(ctx, "jason", "bridge", "gpt-5", 100, 50))
	require.NoError(t, s.RecordApiUsage(ctx, "jason", "scheduler", "gpt-5", 10, 5))

	summary, err := s.SummarizeApiUsage(ctx, nil)
	require.NoError(t, err)
	assert.True(t, summary.Enabled)
	assert.EqualValues(t, 2, summary.TotalCalls)
	assert.EqualValues(t, 165, summary.TotalTokens)
	require.Len(t, summary.ByModel, 1)
	assert.Equal(t, "gpt-5", summary.ByModel[0].Key)
	assert.Len(t, summary.ByCaller, 2)
}

func TestRecordEventAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordEvent(ctx, "tool_call", "request_email", DecisionRequireApproval, map[string]interface{}{"to": "x@example.com"})
	require.NoError(t, err)

	events, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, DecisionRequireApproval, events[0].Decision)
}
