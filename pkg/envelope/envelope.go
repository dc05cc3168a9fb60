// Package envelope implements the signed message unit exchanged between
// agent nodes: canonical serialization, HMAC-SHA-256 signing/verification,
// and an optional Ed25519 identity signature layered on top of it.
package envelope

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/canonicalize"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
)

// MaxClockSkewSeconds bounds how far an envelope's timestamp may drift from
// the receiver's clock before it is rejected.
const MaxClockSkewSeconds = 300

// IdentityAlgorithmEd25519 is the only recognized signature_v2_alg value.
const IdentityAlgorithmEd25519 = "ed25519"

// Envelope is the wire entity exchanged between nodes. JSON field names are
// exact and stable; this is the contract other nodes decode against.
type Envelope struct {
	Source          string                 `json:"source"`
	Target          string                 `json:"target"`
	TaskType        string                 `json:"task_type"`
	Payload         map[string]interface{} `json:"payload"`
	Nonce           string                 `json:"nonce"`
	Timestamp       int64                  `json:"timestamp"`
	Signature       string                 `json:"signature"`
	Signer          string                 `json:"signer,omitempty"`
	SignatureV2     string                 `json:"signature_v2,omitempty"`
	SignatureV2Alg  string                 `json:"signature_v2_alg,omitempty"`
}

// canonicalBody is the exact field set covered by the signature, per 4.1:
// {source, target, task_type, payload, nonce, timestamp} with sorted keys.
type canonicalBody struct {
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	TaskType  string                 `json:"task_type"`
	Payload   map[string]interface{} `json:"payload"`
	Nonce     string                 `json:"nonce"`
	Timestamp int64                  `json:"timestamp"`
}

// CanonicalForm returns the exact bytes the signature is computed over: the
// JSON serialization of the signed field set with lexicographically sorted
// keys and no insignificant whitespace, UTF-8 encoded.
//
// canonicalize.JCS already sorts map keys and disables HTML escaping; the
// struct's own field order does not matter because JCS re-derives order from
// the decoded generic map, not from Go struct layout.
func (e Envelope) CanonicalForm() ([]byte, error) {
	body := canonicalBody{
		Source:    e.Source,
		Target:    e.Target,
		TaskType:  e.TaskType,
		Payload:   e.Payload,
		Nonce:     e.Nonce,
		Timestamp: e.Timestamp,
	}
	return canonicalize.JCS(body)
}

// NewNonce generates a 16-byte nonce, hex-encoded to 32 characters.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("envelope: generating nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SignHMAC computes the lowercase-hex HMAC-SHA-256 signature of the
// envelope's canonical form under key.
func SignHMAC(e Envelope, key []byte) (string, error) {
	canon, err := e.CanonicalForm()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canon)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyHMAC reports whether signature matches the envelope's canonical form
// under key, using a constant-time comparison.
func VerifyHMAC(e Envelope, signature string, key []byte) (bool, error) {
	expected, err := SignHMAC(e, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// Signer is the subset of crypto.Ed25519Signer needed to produce the
// optional v2 identity signature.
type Signer interface {
	Sign(data []byte) (string, error)
}

// SignIdentity computes the hex Ed25519 signature over the envelope's
// canonical form, to be stored in signature_v2.
func SignIdentity(e Envelope, signer Signer) (string, error) {
	canon, err := e.CanonicalForm()
	if err != nil {
		return "", err
	}
	return signer.Sign(canon)
}

// requiredFields lists the envelope fields that must be present on the wire
// for an inbound envelope to be considered well-formed.
var requiredFields = []string{"source", "target", "task_type", "payload", "nonce", "timestamp", "signature"}

// ValidateComplete checks that raw (as decoded from inbound JSON) carries
// every required field, returning a sorted list of the ones missing.
func ValidateComplete(raw map[string]interface{}) []string {
	var missing []string
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// WithinSkew reports whether ts is within MaxClockSkewSeconds of now.
func WithinSkew(now, ts int64) bool {
	diff := now - ts
	if diff < 0 {
		diff = -diff
	}
	return diff <= MaxClockSkewSeconds
}

// SignerName resolves the identity that signed the envelope: the explicit
// Signer field, defaulting to Source per 4.1.
func (e Envelope) SignerName() string {
	if e.Signer != "" {
		return e.Signer
	}
	return e.Source
}

// Now returns the current epoch second from the wall clock.
func Now() int64 {
	return time.Now().Unix()
}

// ErrMissingFields builds the SecurityError for an incomplete envelope.
func ErrMissingFields(missing []string) error {
	return faults.NewSecurityError(fmt.Sprintf("envelope missing fields: %v", missing))
}
