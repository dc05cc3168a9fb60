package envelope

import (
	"fmt"
	"os"
	"strings"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/crypto"
	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/faults"
)

// IdentityMode governs how an inbound envelope's optional v2 Ed25519
// identity signature is enforced, per the table in 4.1.
type IdentityMode string

const (
	IdentityModeCompat     IdentityMode = "compat"
	IdentityModeProvenance IdentityMode = "provenance"
	IdentityModeStrict     IdentityMode = "strict"
)

// ParseIdentityMode validates a raw mode string, rejecting anything unknown
// with a ConfigError rather than silently defaulting — the hardening this
// spec calls for over the source's original ambiguity.
func ParseIdentityMode(raw string) (IdentityMode, error) {
	switch IdentityMode(strings.TrimSpace(raw)) {
	case IdentityModeCompat:
		return IdentityModeCompat, nil
	case IdentityModeProvenance:
		return IdentityModeProvenance, nil
	case IdentityModeStrict:
		return IdentityModeStrict, nil
	default:
		return "", faults.NewConfigError("identity_mode", fmt.Sprintf("unrecognized identity mode %q", raw))
	}
}

// LoadIdentityMode reads the mode string from path. A missing file defaults
// to compat; any other read failure or unrecognized content is a ConfigError.
func LoadIdentityMode(path string) (IdentityMode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IdentityModeCompat, nil
		}
		return "", faults.NewConfigError("identity_mode_file", err.Error())
	}
	return ParseIdentityMode(string(data))
}

// IdentityOutcome is the result of evaluating the v2 signature against the
// configured mode.
type IdentityOutcome struct {
	Present bool
	Valid   bool
}

// EnforceIdentity applies the mode table from 4.1 and returns an error when
// the envelope must be rejected.
func EnforceIdentity(mode IdentityMode, outcome IdentityOutcome) error {
	switch mode {
	case IdentityModeCompat:
		return nil
	case IdentityModeProvenance:
		if outcome.Present && !outcome.Valid {
			return faults.NewSecurityError("identity signature present but invalid")
		}
		return nil
	case IdentityModeStrict:
		if !outcome.Present {
			return faults.NewSecurityError("identity signature required but absent")
		}
		if !outcome.Valid {
			return faults.NewSecurityError("identity signature present but invalid")
		}
		return nil
	default:
		return faults.NewConfigError("identity_mode", fmt.Sprintf("unrecognized identity mode %q", mode))
	}
}

// VerifyIdentity checks the envelope's v2 signature (if present) against the
// signer's public key, resolved by the caller via the node directory, and
// returns the outcome used to drive EnforceIdentity plus the caller-visible
// identity_signature_valid flag.
func VerifyIdentity(e Envelope, signerPubKey []byte) (IdentityOutcome, error) {
	if e.SignatureV2 == "" {
		return IdentityOutcome{Present: false, Valid: false}, nil
	}
	if e.SignatureV2Alg != "" && e.SignatureV2Alg != IdentityAlgorithmEd25519 {
		return IdentityOutcome{Present: true, Valid: false}, nil
	}
	if signerPubKey == nil {
		return IdentityOutcome{Present: true, Valid: false}, nil
	}
	canon, err := e.CanonicalForm()
	if err != nil {
		return IdentityOutcome{Present: true, Valid: false}, err
	}
	valid, err := crypto.VerifyRaw(signerPubKey, e.SignatureV2, canon)
	if err != nil {
		return IdentityOutcome{Present: true, Valid: false}, nil
	}
	return IdentityOutcome{Present: true, Valid: valid}, nil
}
