// Package bridge implements the Interop Bridge: construction, delivery,
// acceptance, and relay of signed envelopes between agent node profiles.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
)

// Route selects how Send delivers an envelope.
type Route string

const (
	RouteDirect Route = "direct"
	RouteHub    Route = "hub"
	RouteAuto   Route = "auto"
)

// SendResult is the outcome of a successful Send.
type SendResult struct {
	Sent     bool                   `json:"sent"`
	Target   string                 `json:"target"`
	RoutedVia string                `json:"routed_via,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// AcceptedEnvelope is what Receive returns on success.
type AcceptedEnvelope struct {
	Accepted               bool                   `json:"accepted"`
	Source                 string                 `json:"source"`
	Target                 string                 `json:"target"`
	TaskType                string                 `json:"task_type"`
	Payload                 map[string]interface{} `json:"payload"`
	Nonce                  string                 `json:"nonce"`
	IdentitySignatureValid bool                   `json:"identity_signature_valid"`
}

// RelayResult is the outcome of Relay.
type RelayResult struct {
	Forwarded bool   `json:"forwarded"`
	Target    string `json:"target"`
}

// CheckinResult is one peer's outcome from SendDailySkillsCheckins.
type CheckinResult struct {
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Bridge orchestrates build, send, receive, and relay for one local profile.
type Bridge struct {
	profileName string
	healthPort  int
	secretsDir  string
	identityMode envelope.IdentityMode
	nodes       *config.NodeDirectory
	store       store.Store
	httpClient  *http.Client
	logger      *slog.Logger

	sharedKey []byte
	signer    envelope.Signer // nil if no identity signing key available
}

// New constructs a Bridge. sharedKey is the HMAC key loaded from the
// profile's secrets directory; signer is nil when no Ed25519 identity key
// is configured for this node.
func New(profileName string, healthPort int, secretsDir string, identityMode envelope.IdentityMode, nodes *config.NodeDirectory, st store.Store, sharedKey []byte, signer envelope.Signer, logger *slog.Logger) *Bridge {
	return &Bridge{
		profileName:  profileName,
		healthPort:   healthPort,
		secretsDir:   secretsDir,
		identityMode: identityMode,
		nodes:        nodes,
		store:        st,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		sharedKey:    sharedKey,
		signer:       signer,
	}
}

// Build constructs a fully signed outbound envelope.
func (b *Bridge) Build(target, taskType string, payload map[string]interface{}) (envelope.Envelope, error) {
	nonce, err := envelope.NewNonce()
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("bridge: generating nonce: %w", err)
	}

	e := envelope.Envelope{
		Source:    b.profileName,
		Target:    target,
		TaskType:  taskType,
		Payload:   payload,
		Nonce:     nonce,
		Timestamp: envelope.Now(),
	}

	sig, err := envelope.SignHMAC(e, b.sharedKey)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("bridge: signing envelope: %w", err)
	}
	e.Signature = sig

	if b.signer != nil {
		sigV2, err := envelope.SignIdentity(e, b.signer)
		if err != nil {
			return envelope.Envelope{}, fmt.Errorf("bridge: identity-signing envelope: %w", err)
		}
		e.SignatureV2 = sigV2
		e.SignatureV2Alg = envelope.IdentityAlgorithmEd25519
	}

	return e, nil
}

// Send resolves target against the node directory and delivers the
// envelope per route.
func (b *Bridge) Send(ctx context.Context, target, taskType string, payload map[string]interface{}, route Route) (SendResult, error) {
	targets := b.nodes.ConfiguredTargets(b.profileName)
	entry, ok := targets[target]
	if !ok {
		return SendResult{}, faults.NewConfigError("target", fmt.Sprintf("target not allowlisted/configured: %s", target))
	}

	e, err := b.Build(target, taskType, payload)
	if err != nil {
		return SendResult{}, err
	}

	switch route {
	case RouteDirect:
		return b.sendDirect(ctx, entry, target, taskType, payload, e)
	case RouteHub:
		return b.sendViaHub(ctx, target, taskType, payload, e)
	default: // auto
		result, directErr := b.sendDirect(ctx, entry, target, taskType, payload, e)
		if directErr == nil {
			return result, nil
		}
		if target == b.nodes.HubProfile {
			return SendResult{}, directErr
		}
		hubResult, hubErr := b.sendViaHub(ctx, target, taskType, payload, e)
		if hubErr != nil {
			return SendResult{}, directErr
		}
		return hubResult, nil
	}
}

func (b *Bridge) sendDirect(ctx context.Context, entry config.NodeDirectoryEntry, target, taskType string, payload map[string]interface{}, e envelope.Envelope) (SendResult, error) {
	url := fmt.Sprintf("http://%s:%d/interop/inbox", entry.Host, b.healthPort)
	response, err := b.postEnvelope(ctx, url, e)
	if err != nil {
		b.appendOutbox(ctx, target, taskType, payload, e.Nonce, fmt.Sprintf("failed:%v", err))
		return SendResult{}, faults.NewTransportError(target, err.Error())
	}
	b.appendOutbox(ctx, target, taskType, responseLoggedPayload(payload, response), e.Nonce, "sent")
	return SendResult{Sent: true, Target: target, Response: response}, nil
}

func (b *Bridge) sendViaHub(ctx context.Context, target, taskType string, payload map[string]interface{}, e envelope.Envelope) (SendResult, error) {
	hubTargets := b.nodes.ConfiguredTargets(b.profileName)
	hubEntry, ok := hubTargets[b.nodes.HubProfile]
	if !ok {
		return SendResult{}, faults.NewConfigError("hub_profile", "routing hub is not a configured target")
	}

	wrapped := map[string]interface{}{
		"kind":             "route_envelope",
		"final_target":     target,
		"inner_envelope":   e,
	}
	hubEnvelope, err := b.Build(b.nodes.HubProfile, "route_envelope", wrapped)
	if err != nil {
		return SendResult{}, err
	}

	url := fmt.Sprintf("http://%s:%d/interop/inbox", hubEntry.Host, b.healthPort)
	response, err := b.postEnvelope(ctx, url, hubEnvelope)
	if err != nil {
		b.appendOutbox(ctx, target, taskType, payload, e.Nonce, fmt.Sprintf("failed:%v", err))
		return SendResult{}, faults.NewTransportError(target, err.Error())
	}
	status := fmt.Sprintf("sent:routed:%s", b.nodes.HubProfile)
	b.appendOutbox(ctx, target, taskType, responseLoggedPayload(payload, response), e.Nonce, status)
	return SendResult{Sent: true, Target: target, RoutedVia: b.nodes.HubProfile, Response: response}, nil
}

func (b *Bridge) postEnvelope(ctx context.Context, url string, e envelope.Envelope) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]interface{}{"envelope": e})
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("peer returned %d: %s", resp.StatusCode, string(raw))
	}

	var response map[string]interface{}
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return response, nil
}

func (b *Bridge) appendOutbox(ctx context.Context, target, taskType string, payload map[string]interface{}, nonce, status string) {
	_, err := b.store.AppendMessage(ctx, store.MessageRecord{
		Direction: store.DirectionOutbox,
		Source:    b.profileName,
		Target:    target,
		TaskType:  taskType,
		Payload:   payload,
		Nonce:     nonce,
		Status:    status,
	})
	if err != nil {
		b.logger.Error("bridge: recording outbox message failed", slog.String("target", target), slog.Any("error", err))
	}
}

// responseLoggedPayload truncates an overlong reply message before it is
// written to the message log (the live HTTP response is untouched).
func responseLoggedPayload(payload map[string]interface{}, response map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	reply, ok := response["reply"].(map[string]interface{})
	if !ok {
		return out
	}
	replyCopy := make(map[string]interface{}, len(reply))
	for k, v := range reply {
		replyCopy[k] = v
	}
	if msg, ok := replyCopy["message"].(string); ok {
		if runes := []rune(msg); len(runes) > 600 {
			replyCopy["message"] = string(runes[:597]) + "..."
		}
	}
	out["reply"] = replyCopy
	return out
}

// RecentMessages returns the most recent MessageRecords across all
// directions.
func (b *Bridge) RecentMessages(ctx context.Context, limit int) ([]store.MessageRecord, error) {
	return b.store.RecentMessages(ctx, limit)
}
