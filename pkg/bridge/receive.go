package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/envelope"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
)

// Receive validates and accepts an inbound envelope: schema completeness,
// target match, clock skew, HMAC signature, identity-mode policy, and
// replay, in that order. On success it burns the nonce and appends an
// inbox MessageRecord.
func (b *Bridge) Receive(ctx context.Context, raw map[string]interface{}, e envelope.Envelope) (AcceptedEnvelope, error) {
	if missing := envelope.ValidateComplete(raw); len(missing) > 0 {
		return AcceptedEnvelope{}, faults.NewValidationError("envelope", fmt.Sprintf("missing fields: %v", missing))
	}
	if e.Target != b.profileName {
		return AcceptedEnvelope{}, faults.NewSecurityError(fmt.Sprintf("envelope target mismatch: expected %s", b.profileName))
	}
	if !envelope.WithinSkew(envelope.Now(), e.Timestamp) {
		return AcceptedEnvelope{}, faults.NewSecurityError("envelope timestamp outside allowed skew window")
	}

	ok, err := envelope.VerifyHMAC(e, e.Signature, b.sharedKey)
	if err != nil || !ok {
		return AcceptedEnvelope{}, faults.NewSecurityError("envelope signature invalid")
	}

	outcome, err := b.verifyIdentitySignature(e)
	if err != nil {
		return AcceptedEnvelope{}, err
	}
	if err := envelope.EnforceIdentity(b.identityMode, outcome); err != nil {
		return AcceptedEnvelope{}, err
	}

	return b.acceptAndRecord(ctx, e, outcome.Valid, store.DirectionInbox, fmt.Sprintf("forwarded_by:%s", b.profileName))
}

// acceptAndRecord inserts the nonce (rejecting replays) and appends a
// MessageRecord of the given direction; statusIfRelay is used only when
// direction is relay (the caller's forwarded_by status is ignored for inbox).
func (b *Bridge) acceptAndRecord(ctx context.Context, e envelope.Envelope, identityValid bool, direction store.MessageDirection, statusIfRelay string) (AcceptedEnvelope, error) {
	inserted, err := b.store.InsertNonce(ctx, e.Nonce, e.Source, e.Target)
	if err != nil {
		return AcceptedEnvelope{}, fmt.Errorf("bridge: inserting nonce: %w", err)
	}
	if !inserted {
		b.logger.Warn("bridge: replay detected", slog.String("nonce", e.Nonce), slog.String("source", e.Source))
		return AcceptedEnvelope{}, faults.NewSecurityError("replay detected: nonce already seen")
	}

	status := "received"
	if direction == store.DirectionRelay {
		status = statusIfRelay
	}
	if _, err := b.store.AppendMessage(ctx, store.MessageRecord{
		Direction: direction,
		Source:    e.Source,
		Target:    e.Target,
		TaskType:  e.TaskType,
		Payload:   e.Payload,
		Nonce:     e.Nonce,
		Status:    status,
	}); err != nil {
		return AcceptedEnvelope{}, fmt.Errorf("bridge: recording message: %w", err)
	}

	return AcceptedEnvelope{
		Accepted:               true,
		Source:                 e.Source,
		Target:                 e.Target,
		TaskType:               e.TaskType,
		Payload:                e.Payload,
		Nonce:                  e.Nonce,
		IdentitySignatureValid: identityValid,
	}, nil
}

func (b *Bridge) verifyIdentitySignature(e envelope.Envelope) (envelope.IdentityOutcome, error) {
	entry, ok := b.nodes.ByProfile(e.SignerName())
	if !ok || entry.SigningPublicKeyB64 == "" {
		return envelope.VerifyIdentity(e, nil)
	}
	pubKey, err := base64.StdEncoding.DecodeString(entry.SigningPublicKeyB64)
	if err != nil {
		return envelope.VerifyIdentity(e, nil)
	}
	return envelope.VerifyIdentity(e, pubKey)
}

// Relay forwards an inner envelope on behalf of relayerSource, rejecting
// source spoofing before any network I/O. The inner envelope is
// re-validated but its nonce is not burned at the hub.
func (b *Bridge) Relay(ctx context.Context, relayerSource string, inner envelope.Envelope) (RelayResult, error) {
	if inner.Source != relayerSource {
		return RelayResult{}, faults.NewSecurityError("relay source mismatch")
	}

	if !envelope.WithinSkew(envelope.Now(), inner.Timestamp) {
		return RelayResult{}, faults.NewSecurityError("relayed envelope timestamp outside allowed skew window")
	}
	ok, err := envelope.VerifyHMAC(inner, inner.Signature, b.sharedKey)
	if err != nil || !ok {
		return RelayResult{}, faults.NewSecurityError("relayed envelope signature invalid")
	}

	targets := b.nodes.ConfiguredTargets(b.profileName)
	entry, ok := targets[inner.Target]
	if !ok {
		return RelayResult{}, faults.NewConfigError("target", fmt.Sprintf("relay target not configured: %s", inner.Target))
	}

	url := fmt.Sprintf("http://%s:%d/interop/inbox", entry.Host, b.healthPort)
	if _, err := b.postEnvelope(ctx, url, inner); err != nil {
		return RelayResult{}, faults.NewTransportError(inner.Target, err.Error())
	}

	if _, err := b.store.AppendMessage(ctx, store.MessageRecord{
		Direction: store.DirectionRelay,
		Source:    inner.Source,
		Target:    inner.Target,
		TaskType:  inner.TaskType,
		Payload:   inner.Payload,
		Nonce:     inner.Nonce,
		Status:    fmt.Sprintf("forwarded_by:%s", b.profileName),
	}); err != nil {
		return RelayResult{}, fmt.Errorf("bridge: recording relay message: %w", err)
	}

	return RelayResult{Forwarded: true, Target: inner.Target}, nil
}
