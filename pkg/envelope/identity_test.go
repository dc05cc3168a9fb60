package envelope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentityMode(t *testing.T) {
	for _, raw := range []string{"compat", "provenance", "strict"} {
		mode, err := ParseIdentityMode(raw)
		require.NoError(t, err)
		assert.Equal(t, IdentityMode(raw), mode)
	}
	_, err := ParseIdentityMode("yolo")
	assert.Error(t, err)
}

func TestLoadIdentityMode_MissingFileDefaultsCompat(t *testing.T) {
	mode, err := LoadIdentityMode(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, IdentityModeCompat, mode)
}

func TestLoadIdentityMode_UnknownValueRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity_mode.txt")
	require.NoError(t, os.WriteFile(path, []byte("paranoid\n"), 0o600))
	_, err := LoadIdentityMode(path)
	assert.Error(t, err)
}

func TestEnforceIdentity_ModeTable(t *testing.T) {
	cases := []struct {
		mode      IdentityMode
		present   bool
		valid     bool
		expectErr bool
	}{
		{IdentityModeCompat, false, false, false},
		{IdentityModeCompat, true, true, false},
		{IdentityModeCompat, true, false, false},
		{IdentityModeProvenance, false, false, false},
		{IdentityModeProvenance, true, true, false},
		{IdentityModeProvenance, true, false, true},
		{IdentityModeStrict, false, false, true},
		{IdentityModeStrict, true, true, false},
		{IdentityModeStrict, true, false, true},
	}
	for _, tc := range cases {
		err := EnforceIdentity(tc.mode, IdentityOutcome{Present: tc.present, Valid: tc.valid})
		if tc.expectErr {
			assert.Error(t, err, "mode=%s present=%v valid=%v", tc.mode, tc.present, tc.valid)
		} else {
			assert.NoError(t, err, "mode=%s present=%v valid=%v", tc.mode, tc.present, tc.valid)
		}
	}
}

func TestVerifyIdentity(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("scarlet")
	require.NoError(t, err)

	e := Envelope{
		Source:    "scarlet",
		Target:    "jason",
		TaskType:  "skills_checkin",
		Payload:   map[string]interface{}{"question": "hi"},
		Nonce:     "00112233445566778899aabbccddeeff",
		Timestamp: 1_700_000_000,
	}
	sigV2, err := SignIdentity(e, signer)
	require.NoError(t, err)
	e.SignatureV2 = sigV2
	e.SignatureV2Alg = IdentityAlgorithmEd25519

	outcome, err := VerifyIdentity(e, signer.PublicKeyBytes())
	require.NoError(t, err)
	assert.True(t, outcome.Present)
	assert.True(t, outcome.Valid)

	outcome, err = VerifyIdentity(e, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Present)
	assert.False(t, outcome.Valid)

	noSig := e
	noSig.SignatureV2 = ""
	outcome, err = VerifyIdentity(noSig, signer.PublicKeyBytes())
	require.NoError(t, err)
	assert.False(t, outcome.Present)
}
