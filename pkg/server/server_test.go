package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/bridge"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/policy"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSharedKey = []byte("shared-secret")

func newTestServer(t *testing.T, readonly bool) (*Server, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	profile := &config.Profile{
		Name:               "jason",
		AllowedToolTiers:   []string{"tier0", "tier1"},
		PublicReadonlyMode: readonly,
		PublicReadonlyGetEndpoints: []string{"/health", "/status"},
		Paths: config.ProfilePaths{BaseDataDir: t.TempDir()},
	}
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}
	b := bridge.New("jason", 0, t.TempDir(), envelope.IdentityModeCompat, nodes, st, testSharedKey, nil, discardLogger())

	engine := policy.NewEngine(profile.AllowedToolTiers, nil)
	registry := tools.NewRegistry(engine, st, profile.Name)
	registry.Register(tools.NewMathTool())
	registry.Register(tools.NewRequestEmailTool())

	srv := New(profile, nodes, b, registry, st, nil, nil, nil, discardLogger())
	return srv, st
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestReadonlyMode_RejectsNonAllowlistedGet(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/interop/messages", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadonlyMode_RejectsAnyPost(t *testing.T) {
	srv, _ := newTestServer(t, true)
	body, _ := json.Marshal(toolExecuteRequest{ToolName: "math", Payload: map[string]interface{}{"expression": "1+1"}})
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadonlyMode_AllowsAllowlistedGet(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestToolsExecute_RunsAllowedTool(t *testing.T) {
	srv, _ := newTestServer(t, false)
	body, _ := json.Marshal(toolExecuteRequest{ToolName: "math", Payload: map[string]interface{}{"expression": "6 * 7"}})
	req := httptest.NewRequest(http.MethodPost, "/tools/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result tools.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.EqualValues(t, 42, result.Output["result"])
}

func TestApprovalResolveAndExecute(t *testing.T) {
	srv, st := newTestServer(t, false)
	ctx := context.Background()

	approvalID, err := st.EnqueueApproval(ctx, "jason", "request_email", "tier1", map[string]interface{}{"to": "a@b.com"})
	require.NoError(t, err)

	resolveBody, _ := json.Marshal(approvalResolveRequest{Approve: true})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/approvals/%d/resolve", approvalID), bytes.NewReader(resolveBody))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/approvals/%d/execute", approvalID), nil)
	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestInteropInbox_AcceptsValidEnvelope(t *testing.T) {
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}
	senderBridge := bridge.New("alice", 0, t.TempDir(), envelope.IdentityModeCompat, nodes, nil, testSharedKey, nil, discardLogger())

	srv, _ := newTestServer(t, false)

	e, err := senderBridge.Build("jason", "ping", map[string]interface{}{"hello": "world"})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{"envelope": e})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/interop/inbox", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestToolsExecute_RateLimitedPerAddress(t *testing.T) {
	srv, _ := newTestServer(t, false)
	body, _ := json.Marshal(toolExecuteRequest{ToolName: "math", Payload: map[string]interface{}{"expression": "1+1"}})

	var last int
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/tools/execute", bytes.NewReader(body))
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		last = w.Code
		if last == http.StatusTooManyRequests {
			break
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last, "repeated calls from the same address must eventually be throttled")
}

func TestInteropRelay_RejectsSourceSpoof(t *testing.T) {
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}
	senderBridge := bridge.New("alice", 0, t.TempDir(), envelope.IdentityModeCompat, nodes, nil, testSharedKey, nil, discardLogger())

	srv, _ := newTestServer(t, false)

	e, err := senderBridge.Build("carol", "ping", map[string]interface{}{"hello": "world"})
	require.NoError(t, err)

	payload, err := json.Marshal(relayRequest{RelayerSource: "mallory", Envelope: e})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/interop/relay", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
