package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, profile string, nodes *config.NodeDirectory, sharedKey []byte) (*Bridge, store.Store) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := New(profile, 0, t.TempDir(), envelope.IdentityModeCompat, nodes, st, sharedKey, nil, discardLogger())
	return b, st
}

func hostPort(t *testing.T, ts *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestSend_AutoFallsBackToHubOnDirectFailure(t *testing.T) {
	sharedKey := []byte("shared-secret")

	var hubReceived []byte
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hubReceived = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":{"message":"ok via hub"}}`))
	}))
	defer hub.Close()

	hubHost, hubPort := hostPort(t, hub)

	nodes := &config.NodeDirectory{
		HubProfile: "hub",
		Nodes: map[string]config.NodeDirectoryEntry{
			"hub":      {NodeID: "hub", Profile: "hub", Host: hubHost},
			"deadpeer": {NodeID: "deadpeer", Profile: "deadpeer", Host: "invalid.invalid.example"},
		},
	}

	b, st := newTestBridge(t, "jason", nodes, sharedKey)
	b.healthPort = hubPort

	result, err := b.Send(context.Background(), "deadpeer", "ping", map[string]interface{}{"hello": "world"}, RouteAuto)
	require.NoError(t, err)
	assert.True(t, result.Sent)
	assert.Equal(t, "hub", result.RoutedVia)
	assert.NotEmpty(t, hubReceived, "the hub must have actually received the routed envelope")

	messages, lerr := st.RecentMessages(context.Background(), 10)
	require.NoError(t, lerr)
	require.NotEmpty(t, messages)
}

func TestSend_AutoReturnsOriginalErrorWhenHubAlsoFails(t *testing.T) {
	sharedKey := []byte("shared-secret")
	nodes := &config.NodeDirectory{
		HubProfile: "hub",
		Nodes: map[string]config.NodeDirectoryEntry{
			"hub":      {NodeID: "hub", Profile: "hub", Host: "invalid.invalid.example"},
			"deadpeer": {NodeID: "deadpeer", Profile: "deadpeer", Host: "invalid.invalid.example"},
		},
	}

	b, _ := newTestBridge(t, "jason", nodes, sharedKey)

	_, err := b.Send(context.Background(), "deadpeer", "ping", map[string]interface{}{"hello": "world"}, RouteAuto)
	require.Error(t, err, "when both direct and hub delivery fail, Send must still surface an error")
}

func TestReceive_AcceptsValidEnvelope(t *testing.T) {
	sharedKey := []byte("shared-secret")
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}

	sender, _ := newTestBridge(t, "alice", nodes, sharedKey)
	receiver, receiverStore := newTestBridge(t, "bob", nodes, sharedKey)

	e, err := sender.Build("bob", "ping", map[string]interface{}{"hello": "world"})
	require.NoError(t, err)

	raw := toRawMap(t, e)

	accepted, err := receiver.Receive(context.Background(), raw, e)
	require.NoError(t, err)
	assert.True(t, accepted.Accepted)
	assert.Equal(t, "alice", accepted.Source)

	messages, err := receiverStore.RecentMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.DirectionInbox, messages[0].Direction)
}

func TestReceive_RejectsReplayWithoutWritingSecondRecord(t *testing.T) {
	sharedKey := []byte("shared-secret")
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}

	sender, _ := newTestBridge(t, "alice", nodes, sharedKey)
	receiver, receiverStore := newTestBridge(t, "bob", nodes, sharedKey)

	e, err := sender.Build("bob", "ping", map[string]interface{}{"hello": "world"})
	require.NoError(t, err)
	raw := toRawMap(t, e)

	_, err = receiver.Receive(context.Background(), raw, e)
	require.NoError(t, err)

	_, err = receiver.Receive(context.Background(), raw, e)
	require.Error(t, err)

	messages, err := receiverStore.RecentMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "a replayed envelope must not produce a second MessageRecord")
}

func TestRelay_RejectsSourceSpoofBeforeNetworkIO(t *testing.T) {
	sharedKey := []byte("shared-secret")
	nodes := &config.NodeDirectory{Nodes: map[string]config.NodeDirectoryEntry{}}

	sender, _ := newTestBridge(t, "alice", nodes, sharedKey)
	hub, hubStore := newTestBridge(t, "hub", nodes, sharedKey)

	e, err := sender.Build("carol", "ping", map[string]interface{}{"hello": "world"})
	require.NoError(t, err)

	_, err = hub.Relay(context.Background(), "mallory", e)
	require.Error(t, err)

	messages, err := hubStore.RecentMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, messages, "a spoofed relay must not reach the network or the message log")
}

func toRawMap(t *testing.T, e envelope.Envelope) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}
