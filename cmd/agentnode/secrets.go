package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/crypto"
)

const (
	sharedKeyFile  = "hmac_shared_key"
	signerSeedFile = "identity_seed"
)

// loadOrGenerateSharedKey reads the profile's HMAC shared key from
// secretsDir, generating and persisting a fresh 32-byte key on first run.
func loadOrGenerateSharedKey(secretsDir string) ([]byte, error) {
	path := filepath.Join(secretsDir, sharedKeyFile)
	if raw, err := os.ReadFile(path); err == nil {
		key, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil {
			return nil, fmt.Errorf("agentnode: invalid %s format: %w", path, decodeErr)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("agentnode: reading %s: %w", path, err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("agentnode: generating shared key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("agentnode: saving %s: %w", path, err)
	}
	return key, nil
}

// loadOrGenerateSigner reads the profile's Ed25519 identity seed from
// secretsDir, generating and persisting a fresh keypair on first run. This
// key produces the optional v2 signature on outbound envelopes.
func loadOrGenerateSigner(secretsDir string) (crypto.Signer, error) {
	path := filepath.Join(secretsDir, signerSeedFile)
	if raw, err := os.ReadFile(path); err == nil {
		seed, decodeErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decodeErr != nil {
			return nil, fmt.Errorf("agentnode: invalid %s format: %w", path, decodeErr)
		}
		return crypto.NewEd25519SignerFromSeed(seed, "node")
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("agentnode: reading %s: %w", path, err)
	}

	signer, err := crypto.NewEd25519Signer("node")
	if err != nil {
		return nil, fmt.Errorf("agentnode: generating identity key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(signer.Seed())), 0o600); err != nil {
		return nil, fmt.Errorf("agentnode: saving %s: %w", path, err)
	}
	return signer, nil
}
